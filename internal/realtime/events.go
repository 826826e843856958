package realtime

import (
	"encoding/base64"
	"encoding/json"

	"github.com/GriffinCanCode/voicebridge/internal/audio"
	apperrors "github.com/GriffinCanCode/voicebridge/internal/errors"
)

// Kind is the closed set of inbound event variants.
type Kind int

const (
	KindUnknown Kind = iota
	KindSessionCreated
	KindSessionReady
	KindAudioDelta
	KindTextDelta
	KindTurnComplete
	KindError
)

func (k Kind) String() string {
	return [...]string{"unknown", "session_created", "session_ready", "audio_delta", "text_delta", "turn_complete", "error"}[k]
}

var kindByType = map[string]Kind{
	typeSessionCreated:    KindSessionCreated,
	typeSessionUpdated:    KindSessionReady,
	typeAudioDelta:        KindAudioDelta,
	typeAudioDeltaLegacy:  KindAudioDelta,
	typeTextDelta:         KindTextDelta,
	typeTextDeltaLegacy:   KindTextDelta,
	typeResponseCompleted: KindTurnComplete,
	typeResponseDone:      KindTurnComplete,
	typeError:             KindError,
}

// Event is one decoded endpoint message.
type Event struct {
	Kind       Kind
	Type       string
	ResponseID string

	Frame audio.Frame // KindAudioDelta, always FormatRealtime
	Text  string      // KindTextDelta
	Err   error       // KindError, or the terminal read error
}

// Outbound wire shapes.
type sessionUpdate struct {
	Type    string        `json:"type"`
	EventID string        `json:"event_id,omitempty"`
	Session sessionConfig `json:"session"`
}

type sessionConfig struct {
	Model             string      `json:"model,omitempty"`
	Modalities        []string    `json:"modalities"`
	Voice             string      `json:"voice,omitempty"`
	Locale            string      `json:"locale,omitempty"`
	Instructions      string      `json:"instructions,omitempty"`
	InputAudioFormat  audioFormat `json:"input_audio_format"`
	OutputAudioFormat audioFormat `json:"output_audio_format"`
}

type audioFormat struct {
	Type     string `json:"type"`
	Rate     int    `json:"rate"`
	Channels int    `json:"channels"`
}

type bufferAppend struct {
	Type    string `json:"type"`
	EventID string `json:"event_id,omitempty"`
	Audio   string `json:"audio"`
}

type response struct {
	Modalities []string `json:"modalities"`
}

type clientEvent struct {
	Type     string    `json:"type"`
	EventID  string    `json:"event_id,omitempty"`
	Response *response `json:"response,omitempty"`
}

// Inbound wire shape, wide enough for every recognized type.
type serverEvent struct {
	Type       string          `json:"type"`
	ResponseID string          `json:"response_id,omitempty"`
	Delta      string          `json:"delta,omitempty"`
	Response   json.RawMessage `json:"response,omitempty"`
	Error      *struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
		EventID string `json:"event_id"`
	} `json:"error,omitempty"`
}

// ParseEvent decodes one endpoint message. Unknown types yield KindUnknown.
func ParseEvent(data []byte) (Event, error) {
	var msg serverEvent
	if err := json.Unmarshal(data, &msg); err != nil {
		return Event{}, apperrors.Wrap(err, apperrors.CodeDecodeFailed, "realtime event is not valid JSON")
	}
	if msg.Type == "" {
		return Event{}, apperrors.New(apperrors.CodeDecodeFailed, "realtime event has no type")
	}

	evt := Event{Kind: kindByType[msg.Type], Type: msg.Type, ResponseID: msg.ResponseID}

	switch evt.Kind {
	case KindAudioDelta:
		raw, err := base64.StdEncoding.DecodeString(msg.Delta)
		if err != nil {
			return Event{}, apperrors.Wrap(err, apperrors.CodeDecodeFailed, "audio delta is not base64")
		}
		if len(raw)%audio.PCM16ByteSize != 0 {
			return Event{}, apperrors.Newf(apperrors.CodeDecodeFailed, "audio delta has odd length %d", len(raw))
		}
		evt.Frame = audio.NewFrame(audio.FormatRealtime, raw)

	case KindTextDelta:
		evt.Text = msg.Delta

	case KindTurnComplete:
		if evt.ResponseID == "" && len(msg.Response) > 0 {
			var r struct {
				ID string `json:"id"`
			}
			if json.Unmarshal(msg.Response, &r) == nil {
				evt.ResponseID = r.ID
			}
		}

	case KindError:
		appErr := apperrors.New(apperrors.CodeRemoteError, "realtime endpoint reported an error")
		if msg.Error != nil {
			appErr.Message = msg.Error.Message
			appErr.WithMetadata("type", msg.Error.Type)
			if msg.Error.Code != "" {
				appErr.WithMetadata("code", msg.Error.Code)
			}
		}
		evt.Err = appErr
	}

	return evt, nil
}
