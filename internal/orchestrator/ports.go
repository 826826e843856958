package orchestrator

import (
	"context"

	"github.com/GriffinCanCode/voicebridge/internal/audio"
	"github.com/GriffinCanCode/voicebridge/internal/realtime"
	"github.com/GriffinCanCode/voicebridge/internal/resilience"
	"github.com/GriffinCanCode/voicebridge/internal/telephony"
)

// TelephonyLeg is the caller side of a session. *telephony.Conn implements it.
type TelephonyLeg interface {
	Read(ctx context.Context) (telephony.Event, error)
	WriteMedia(ctx context.Context, streamSID string, f audio.Frame) error
	WriteMark(ctx context.Context, streamSID, name string) error
	Ping(ctx context.Context) error
	Close(reason string) error
}

// SpeechClient is the AI side of a session. *realtime.Client implements it.
type SpeechClient interface {
	SubmitAudio(ctx context.Context, f audio.Frame) error
	RequestResponse(ctx context.Context) error
	Events() <-chan realtime.Event
	Close() error
}

// Dialer opens the AI leg for a call.
type Dialer interface {
	Dial(ctx context.Context, b Begin) (SpeechClient, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, b Begin) (SpeechClient, error)

func (f DialerFunc) Dial(ctx context.Context, b Begin) (SpeechClient, error) { return f(ctx, b) }

// RealtimeDialer dials the realtime endpoint with per-call settings,
// failing fast while Breaker is open.
type RealtimeDialer struct {
	Base    realtime.Options
	Breaker *resilience.Breaker
}

func (d *RealtimeDialer) Dial(ctx context.Context, b Begin) (SpeechClient, error) {
	opts := d.Base
	opts.Model = b.Model
	opts.Voice = b.Voice
	opts.Locale = b.Locale
	opts.Instructions = b.Instructions

	dial := func() (*realtime.Client, error) { return realtime.Dial(ctx, opts) }
	var (
		c   *realtime.Client
		err error
	)
	if d.Breaker != nil {
		c, err = resilience.Call(d.Breaker, dial)
	} else {
		c, err = dial()
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}
