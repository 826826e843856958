// Package telephony speaks the media-stream protocol of the telephony platform
package telephony

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
	KindConnected
	KindStart
	KindMedia
	KindStop
	KindMark
	KindDTMF
)

func (k Kind) String() string {
	return [...]string{"unknown", "connected", "start", "media", "stop", "mark", "dtmf"}[k]
}

var kindByName = map[string]Kind{
	"connected": KindConnected,
	"start":     KindStart,
	"media":     KindMedia,
	"stop":      KindStop,
	"mark":      KindMark,
	"dtmf":      KindDTMF,
}

// Event is one decoded inbound message. Only the fields of its Kind are set.
type Event struct {
	Kind      Kind
	Name      string // raw "event" value, kept for unknown variants
	StreamSID string
	Sequence  string

	Start *StartInfo  // KindStart
	Frame audio.Frame // KindMedia
	Track string      // KindMedia
	Mark  string      // KindMark
	Digit string      // KindDTMF
}

// StartInfo is the call metadata carried by the start event.
type StartInfo struct {
	AccountSID       string
	CallSID          string
	StreamSID        string
	From             string
	To               string
	Tracks           []string
	MediaFormat      MediaFormat
	CustomParameters map[string]string
}

// MediaFormat is the platform's declaration of the stream encoding.
type MediaFormat struct {
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sampleRate"`
	Channels   int    `json:"channels"`
}

// Wire shapes.
type message struct {
	Event          string        `json:"event"`
	StreamSID      string        `json:"streamSid,omitempty"`
	SequenceNumber string        `json:"sequenceNumber,omitempty"`
	Start          *startPayload `json:"start,omitempty"`
	Media          *mediaPayload `json:"media,omitempty"`
	Mark           *markPayload  `json:"mark,omitempty"`
	Stop           *stopPayload  `json:"stop,omitempty"`
	DTMF           *dtmfPayload  `json:"dtmf,omitempty"`
}

type startPayload struct {
	AccountSID       string            `json:"accountSid"`
	StreamSID        string            `json:"streamSid"`
	CallSID          string            `json:"callSid"`
	From             string            `json:"from,omitempty"`
	To               string            `json:"to,omitempty"`
	Tracks           []string          `json:"tracks"`
	MediaFormat      MediaFormat       `json:"mediaFormat"`
	CustomParameters map[string]string `json:"customParameters"`
}

type mediaPayload struct {
	Track     string `json:"track,omitempty"`
	Chunk     string `json:"chunk,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   string `json:"payload"`
}

type markPayload struct {
	Name string `json:"name"`
}

type stopPayload struct {
	AccountSID string `json:"accountSid"`
	CallSID    string `json:"callSid"`
}

type dtmfPayload struct {
	Track string `json:"track"`
	Digit string `json:"digit"`
}

// Parse decodes one text message. Malformed input is a decode error;
// an unrecognized event name is not an error and yields KindUnknown.
func Parse(data []byte) (Event, error) {
	var msg message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Event{}, apperrors.Wrap(err, apperrors.CodeDecodeFailed, "telephony event is not valid JSON")
	}
	if msg.Event == "" {
		return Event{}, apperrors.New(apperrors.CodeDecodeFailed, "telephony event has no event field")
	}

	evt := Event{
		Kind:      kindByName[msg.Event],
		Name:      msg.Event,
		StreamSID: msg.StreamSID,
		Sequence:  msg.SequenceNumber,
	}

	switch evt.Kind {
	case KindStart:
		if msg.Start == nil {
			return Event{}, apperrors.New(apperrors.CodeDecodeFailed, "start event without start payload")
		}
		evt.Start = msg.Start.info()
		if evt.StreamSID == "" {
			evt.StreamSID = evt.Start.StreamSID
		}

	case KindMedia:
		if msg.Media == nil {
			return Event{}, apperrors.New(apperrors.CodeDecodeFailed, "media event without media payload")
		}
		raw, err := base64.StdEncoding.DecodeString(msg.Media.Payload)
		if err != nil {
			return Event{}, apperrors.Wrap(err, apperrors.CodeDecodeFailed, "media payload is not base64")
		}
		evt.Frame = audio.NewFrame(audio.FormatTelephony, raw)
		evt.Track = msg.Media.Track

	case KindMark:
		if msg.Mark != nil {
			evt.Mark = msg.Mark.Name
		}

	case KindDTMF:
		if msg.DTMF != nil {
			evt.Digit = msg.DTMF.Digit
		}
	}

	return evt, nil
}

func (p *startPayload) info() *StartInfo {
	info := &StartInfo{
		AccountSID:       p.AccountSID,
		CallSID:          p.CallSID,
		StreamSID:        p.StreamSID,
		From:             p.From,
		To:               p.To,
		Tracks:           p.Tracks,
		MediaFormat:      p.MediaFormat,
		CustomParameters: p.CustomParameters,
	}
	// Numbers usually arrive as <Parameter> values on the stream.
	if info.From == "" {
		info.From = p.CustomParameters["from"]
	}
	if info.To == "" {
		info.To = p.CustomParameters["to"]
	}
	return info
}

// EncodeMedia wraps a telephony-format frame in the platform's media envelope.
func EncodeMedia(streamSID string, f audio.Frame) ([]byte, error) {
	if f.Format() != audio.FormatTelephony {
		return nil, apperrors.Newf(apperrors.CodeUnsupportedFormat, "outbound media must be %s, got %s", audio.FormatTelephony, f.Format())
	}
	return json.Marshal(message{
		Event:     "media",
		StreamSID: streamSID,
		Media:     &mediaPayload{Payload: base64.StdEncoding.EncodeToString(f.Bytes())},
	})
}

// EncodeMark builds an outbound mark the platform echoes once playback reaches it.
func EncodeMark(streamSID, name string) ([]byte, error) {
	return json.Marshal(message{
		Event:     "mark",
		StreamSID: streamSID,
		Mark:      &markPayload{Name: name},
	})
}
