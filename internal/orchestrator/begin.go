package orchestrator

import (
	"strings"
	"time"

	apperrors "github.com/GriffinCanCode/voicebridge/internal/errors"
	"github.com/GriffinCanCode/voicebridge/internal/telephony"
)

// Defaults are the configured endpoint settings a call may override.
type Defaults struct {
	Model        string
	Voice        string
	Locale       string
	Instructions string
}

// Begin is the immutable configuration snapshot of one call, captured from
// its start event.
type Begin struct {
	CallID   string
	StreamID string
	From     string
	To       string

	Model        string
	Voice        string
	Locale       string
	Instructions string

	StartedAt time.Time
}

// Stream parameters a call may use to override defaults.
const (
	paramLocale       = "locale"
	paramVoice        = "voice"
	paramInstructions = "instructions"
)

// NewBegin builds the snapshot for a start event.
func NewBegin(evt telephony.Event, d Defaults) (Begin, error) {
	info := evt.Start
	if info == nil {
		return Begin{}, apperrors.New(apperrors.CodeInvalidArgument, "start event carries no call metadata")
	}

	b := Begin{
		CallID:       info.CallSID,
		StreamID:     evt.StreamSID,
		From:         info.From,
		To:           info.To,
		Model:        d.Model,
		Voice:        override(info.CustomParameters, paramVoice, d.Voice),
		Locale:       override(info.CustomParameters, paramLocale, d.Locale),
		Instructions: override(info.CustomParameters, paramInstructions, d.Instructions),
		StartedAt:    time.Now(),
	}
	if b.StreamID == "" {
		b.StreamID = info.StreamSID
	}
	if b.CallID == "" {
		b.CallID = b.StreamID
	}
	if b.CallID == "" {
		return Begin{}, apperrors.New(apperrors.CodeInvalidArgument, "start event has neither call nor stream id")
	}
	return b, nil
}

func override(params map[string]string, key, def string) string {
	if v := strings.TrimSpace(params[key]); v != "" {
		return v
	}
	return def
}
