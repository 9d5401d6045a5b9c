package runnable

import (
	"encoding/json"
	"strings"
	"time"

	"chorus-server/experiment-api/internal/domain/experiment"
)

const (
	sourceMaterialPlaceholder  = "{source_material}"
	participantDataPlaceholder = "{participant_data}"
	inputPlaceholder           = "{input}"
)

// RenderSystemPrompt builds the system prompt for one invocation:
// the experiment's prompt text with {source_material} and
// {participant_data} substituted, plus a trailing line stating the
// current datetime in the participant's timezone. Missing data
// substitutes the empty string.
func RenderSystemPrompt(
	exp *experiment.Experiment,
	participant *experiment.Participant,
	platform experiment.Platform,
	now time.Time,
) string {
	text := exp.PromptText
	text = strings.ReplaceAll(text, sourceMaterialPlaceholder, exp.SourceMaterial)
	text = strings.ReplaceAll(text, participantDataPlaceholder, renderParticipantData(participant, platform))

	loc := participantLocation(participant)
	return text + "\nThe current datetime is " + now.In(loc).Format("Monday, 02 January 2006 15:04:05 MST")
}

// renderParticipantData serializes participant memory for prompt
// interpolation. Unauthorized participants resolve to empty.
func renderParticipantData(participant *experiment.Participant, platform experiment.Platform) string {
	if participant == nil || len(participant.Memory) == 0 {
		return ""
	}
	if !participant.Authorized(platform) {
		return ""
	}
	data, err := json.Marshal(participant.Memory)
	if err != nil {
		return ""
	}
	return string(data)
}

func participantLocation(participant *experiment.Participant) *time.Location {
	tz := participant.Timezone()
	if tz == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.UTC
	}
	return loc
}

// FormatInput applies the experiment's optional input formatter template
// to the raw user text.
func FormatInput(exp *experiment.Experiment, input string) string {
	if exp.InputFormatter == "" || !strings.Contains(exp.InputFormatter, inputPlaceholder) {
		return input
	}
	return strings.ReplaceAll(exp.InputFormatter, inputPlaceholder, input)
}
