package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/voicebridge/internal/audio"
	apperrors "github.com/GriffinCanCode/voicebridge/internal/errors"
	"github.com/GriffinCanCode/voicebridge/internal/realtime"
	"github.com/GriffinCanCode/voicebridge/internal/telemetry"
	"github.com/GriffinCanCode/voicebridge/internal/telephony"
)

const waitFor = 2 * time.Second

// written is one message the session sent to the caller.
type written struct {
	streamSID string
	frame     audio.Frame
	mark      string
}

// fakeLeg is a telephony leg fed from a channel. Closing in simulates the
// caller hanging up.
type fakeLeg struct {
	in   chan telephony.Event
	errs chan error // read errors returned before the next event

	mu     sync.Mutex
	writes []written
	reason string
	closed chan struct{}
	once   sync.Once
	block  chan struct{} // when set, writes wait on it

	pings   int
	pingErr error
}

func newFakeLeg() *fakeLeg {
	return &fakeLeg{
		in:     make(chan telephony.Event, 64),
		errs:   make(chan error, 4),
		closed: make(chan struct{}),
	}
}

func (l *fakeLeg) Read(ctx context.Context) (telephony.Event, error) {
	select {
	case err := <-l.errs:
		return telephony.Event{}, err
	default:
	}
	select {
	case err := <-l.errs:
		return telephony.Event{}, err
	case evt, ok := <-l.in:
		if !ok {
			return telephony.Event{}, apperrors.New(apperrors.CodeLegClosed, "caller hung up")
		}
		return evt, nil
	case <-l.closed:
		return telephony.Event{}, apperrors.New(apperrors.CodeLegClosed, "leg closed")
	case <-ctx.Done():
		return telephony.Event{}, apperrors.Wrap(ctx.Err(), apperrors.CodeLegClosed, "read cancelled")
	}
}

func (l *fakeLeg) WriteMedia(ctx context.Context, streamSID string, f audio.Frame) error {
	return l.write(ctx, written{streamSID: streamSID, frame: f})
}

func (l *fakeLeg) WriteMark(ctx context.Context, streamSID, name string) error {
	return l.write(ctx, written{streamSID: streamSID, mark: name})
}

func (l *fakeLeg) write(ctx context.Context, w written) error {
	if l.block != nil {
		select {
		case <-l.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writes = append(l.writes, w)
	return nil
}

func (l *fakeLeg) Ping(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pings++
	return l.pingErr
}

// failPings makes every later ping return err.
func (l *fakeLeg) failPings(err error) {
	l.mu.Lock()
	l.pingErr = err
	l.mu.Unlock()
}

func (l *fakeLeg) pingCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pings
}

func (l *fakeLeg) Close(reason string) error {
	l.once.Do(func() {
		l.mu.Lock()
		l.reason = reason
		l.mu.Unlock()
		close(l.closed)
	})
	return nil
}

func (l *fakeLeg) media() []audio.Frame {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []audio.Frame
	for _, w := range l.writes {
		if w.mark == "" {
			out = append(out, w.frame)
		}
	}
	return out
}

func (l *fakeLeg) marks() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []string
	for _, w := range l.writes {
		if w.mark != "" {
			out = append(out, w.mark)
		}
	}
	return out
}

func (l *fakeLeg) closeReason() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.reason
}

// fakeAI records what the session submits and replays scripted events.
type fakeAI struct {
	events chan realtime.Event

	mu       sync.Mutex
	calls    []string
	frames   []audio.Frame
	closed   bool
	submitFn func() error
}

func newFakeAI() *fakeAI {
	return &fakeAI{events: make(chan realtime.Event, 64)}
}

func (a *fakeAI) SubmitAudio(_ context.Context, f audio.Frame) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.submitFn != nil {
		if err := a.submitFn(); err != nil {
			return err
		}
	}
	a.calls = append(a.calls, "submit")
	a.frames = append(a.frames, f)
	return nil
}

func (a *fakeAI) RequestResponse(context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, "request")
	return nil
}

func (a *fakeAI) Events() <-chan realtime.Event { return a.events }

func (a *fakeAI) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.closed {
		a.closed = true
		close(a.events)
	}
	return nil
}

func (a *fakeAI) send(evt realtime.Event) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.closed {
		a.events <- evt
	}
}

func (a *fakeAI) callLog() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.calls...)
}

func (a *fakeAI) submitted() []audio.Frame {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]audio.Frame(nil), a.frames...)
}

func (a *fakeAI) isClosed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closed
}

// dialTo returns a dialer that hands out ai and counts dials.
func dialTo(ai *fakeAI, dials *dialCount) Dialer {
	return DialerFunc(func(ctx context.Context, b Begin) (SpeechClient, error) {
		if dials != nil {
			dials.inc()
		}
		return ai, nil
	})
}

type dialCount struct {
	mu sync.Mutex
	n  int
}

func (c *dialCount) inc() {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
}

func (c *dialCount) get() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

// recordingSink keeps every telemetry event.
type recordingSink struct {
	mu     sync.Mutex
	events []telemetry.Event
}

func (r *recordingSink) Emit(e telemetry.Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recordingSink) transitions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.events {
		if e.Kind == telemetry.KindStateChange {
			out = append(out, e.From+"->"+e.To)
		}
	}
	return out
}

func (r *recordingSink) count(kind telemetry.Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

func (r *recordingSink) closed() (telemetry.Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.Kind == telemetry.KindSessionClosed {
			return e, true
		}
	}
	return telemetry.Event{}, false
}

func startEvent(callSID, streamSID string) telephony.Event {
	return telephony.Event{
		Kind:      telephony.KindStart,
		Name:      "start",
		StreamSID: streamSID,
		Start: &telephony.StartInfo{
			CallSID:   callSID,
			StreamSID: streamSID,
			From:      "+15550001111",
			To:        "+15550002222",
		},
	}
}

func stopEvent(streamSID string) telephony.Event {
	return telephony.Event{Kind: telephony.KindStop, Name: "stop", StreamSID: streamSID}
}

// mulawFrame is a 20 ms caller frame filled with b.
func mulawFrame(b byte) audio.Frame {
	payload := make([]byte, audio.TelephonyFrameSamples)
	for i := range payload {
		payload[i] = b
	}
	return audio.NewFrame(audio.FormatTelephony, payload)
}

func mediaEvent(streamSID string, f audio.Frame) telephony.Event {
	return telephony.Event{Kind: telephony.KindMedia, Name: "media", StreamSID: streamSID, Frame: f}
}

// pcmFrame is a 20 ms realtime frame holding a constant sample value.
func pcmFrame(v int16) audio.Frame {
	samples := make([]int16, 2*audio.TelephonyFrameSamples)
	for i := range samples {
		samples[i] = v
	}
	return audio.PCM16Frame(audio.RealtimeSampleRate, samples)
}

func testOptions(sink telemetry.Sink) Options {
	return Options{
		DrainGrace:       500 * time.Millisecond,
		HandshakeTimeout: time.Second,
		PingInterval:     -1,
		Defaults:         Defaults{Model: "test-model", Voice: "alloy", Locale: "fr-FR"},
		Sink:             sink,
	}
}

// runSession starts s and returns a channel carrying Run's result.
func runSession(t *testing.T, s *Session) <-chan error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()
	return done
}

func waitState(t *testing.T, s *Session, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return s.State() == want }, waitFor, 5*time.Millisecond,
		"state stuck at %s, want %s", s.State(), want)
}

func waitDone(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(waitFor):
		t.Fatal("session did not close")
		return nil
	}
}
