package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName = "chorus-server/experiment-api"
)

// GetTracer returns the tracer for the experiment-api service.
func GetTracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// SessionAttributes returns common attributes for session spans.
func SessionAttributes(sessionPublicID, platform, status string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("session.public_id", sessionPublicID),
		attribute.String("session.platform", platform),
		attribute.String("session.status", status),
	}
}

// GenerationAttributes returns common attributes for generation spans.
func GenerationAttributes(strategy, model string, chatID uint) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("generation.strategy", strategy),
		attribute.String("generation.model", model),
		attribute.Int("generation.chat_id", int(chatID)),
	}
}

// StartInboundSpan starts a new span for inbound message handling.
func StartInboundSpan(ctx context.Context, platform, chatID string) (context.Context, trace.Span) {
	ctx, span := GetTracer().Start(ctx, "inbound.handle",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("inbound.platform", platform),
			attribute.String("inbound.chat_id", chatID),
		),
	)
	return ctx, span
}

// StartGenerationSpan starts a new span for one LLM generation.
func StartGenerationSpan(ctx context.Context, strategy, model string, chatID uint) (context.Context, trace.Span) {
	ctx, span := GetTracer().Start(ctx, "generation."+strategy,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(GenerationAttributes(strategy, model, chatID)...),
	)
	return ctx, span
}

// RecordError records an error on a span.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// AddStatusTransition adds a session status transition event to a span.
func AddStatusTransition(span trace.Span, fromStatus, toStatus string) {
	span.AddEvent("status.transition",
		trace.WithAttributes(
			attribute.String("status.from", fromStatus),
			attribute.String("status.to", toStatus),
		),
	)
}

// AddTokenUsage adds token accounting to a span.
func AddTokenUsage(span trace.Span, promptTokens, completionTokens int) {
	span.SetAttributes(
		attribute.Int("generation.prompt_tokens", promptTokens),
		attribute.Int("generation.completion_tokens", completionTokens),
	)
}
