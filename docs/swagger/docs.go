// Package swagger holds the generated OpenAPI document for the
// experiment API. Regenerate with `swag init` after changing handler
// annotations.
package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/v1/experiments/{experiment_id}/sessions": {
            "post": {
                "tags": ["Sessions"],
                "summary": "Start a session",
                "parameters": [
                    {"type": "string", "name": "experiment_id", "in": "path", "required": true}
                ],
                "responses": {"201": {"description": "Created"}}
            }
        },
        "/v1/sessions/{session_id}/messages": {
            "get": {
                "tags": ["Sessions"],
                "summary": "Get session history",
                "parameters": [
                    {"type": "string", "name": "session_id", "in": "path", "required": true}
                ],
                "responses": {"200": {"description": "OK"}}
            },
            "post": {
                "tags": ["Sessions"],
                "summary": "Send a message",
                "parameters": [
                    {"type": "string", "name": "session_id", "in": "path", "required": true}
                ],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/v1/sessions/{session_id}/cancel": {
            "post": {
                "tags": ["Sessions"],
                "summary": "Cancel an in-flight generation",
                "parameters": [
                    {"type": "string", "name": "session_id", "in": "path", "required": true}
                ],
                "responses": {"202": {"description": "Accepted"}}
            }
        },
        "/v1/webhooks/telegram/{channel_id}": {
            "post": {
                "tags": ["Webhooks"],
                "summary": "Receive a Telegram update",
                "parameters": [
                    {"type": "string", "name": "channel_id", "in": "path", "required": true}
                ],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/v1/webhooks/twilio": {
            "post": {
                "tags": ["Webhooks"],
                "summary": "Receive a Twilio WhatsApp event",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/v1/webhooks/facebook": {
            "post": {
                "tags": ["Webhooks"],
                "summary": "Receive a Messenger event",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/v1/webhooks/slack": {
            "post": {
                "tags": ["Webhooks"],
                "summary": "Receive a Slack event",
                "responses": {"200": {"description": "OK"}}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Experiment API",
	Description:      "Multi-tenant conversational experiment service.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
