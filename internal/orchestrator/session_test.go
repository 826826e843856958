package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/voicebridge/internal/audio"
	apperrors "github.com/GriffinCanCode/voicebridge/internal/errors"
	"github.com/GriffinCanCode/voicebridge/internal/realtime"
	"github.com/GriffinCanCode/voicebridge/internal/telemetry"
)

// activate drives s from Initializing to Active with call id CA1.
func activate(t *testing.T, s *Session, leg *fakeLeg, ai *fakeAI) {
	t.Helper()
	leg.in <- startEvent("CA1", "MZ1")
	waitState(t, s, StateAwaitingAIReady)
	ai.send(realtime.Event{Kind: realtime.KindSessionReady})
	waitState(t, s, StateActive)
}

func TestSessionRelaysCallEndToEnd(t *testing.T) {
	leg, ai, sink := newFakeLeg(), newFakeAI(), &recordingSink{}
	reg := NewRegistry()
	s := NewSession(leg, dialTo(ai, nil), reg, testOptions(sink))
	done := runSession(t, s)

	activate(t, s, leg, ai)
	assert.Equal(t, 1, reg.Len())

	in := []audio.Frame{mulawFrame(0xFF), mulawFrame(0x80), mulawFrame(0x10)}
	for _, f := range in {
		leg.in <- mediaEvent("MZ1", f)
	}
	require.Eventually(t, func() bool { return len(ai.callLog()) == 6 }, waitFor, 5*time.Millisecond)
	assert.Equal(t, []string{"submit", "request", "submit", "request", "submit", "request"}, ai.callLog())
	for i, got := range ai.submitted() {
		want, err := audio.TelephonyToRealtime(in[i])
		require.NoError(t, err)
		assert.Equal(t, audio.FormatRealtime, got.Format())
		assert.Equal(t, want.Bytes(), got.Bytes(), "inbound frame %d out of order", i)
	}

	out := []audio.Frame{pcmFrame(1000), pcmFrame(-1000)}
	for _, f := range out {
		ai.send(realtime.Event{Kind: realtime.KindAudioDelta, Frame: f})
	}
	ai.send(realtime.Event{Kind: realtime.KindTextDelta, Text: "Bonjour"})
	ai.send(realtime.Event{Kind: realtime.KindTurnComplete, ResponseID: "resp_1"})

	require.Eventually(t, func() bool { return len(leg.marks()) == 1 }, waitFor, 5*time.Millisecond)
	media := leg.media()
	require.Len(t, media, 2)
	for i, got := range media {
		want, err := audio.RealtimeToTelephony(out[i])
		require.NoError(t, err)
		assert.Equal(t, want.Bytes(), got.Bytes(), "outbound frame %d out of order", i)
	}
	assert.Equal(t, []string{"turn-1"}, leg.marks())

	snap := s.Snapshot()
	assert.Equal(t, "CA1", snap.CallID)
	assert.Equal(t, "MZ1", snap.StreamID)
	assert.Equal(t, StateActive, snap.State)
	assert.Equal(t, uint64(3), snap.SubmittedFrames)
	assert.Equal(t, uint64(2), snap.OutboundFrames)
	assert.Equal(t, uint64(1), snap.Turns)
	assert.Equal(t, "AI: Bonjour", snap.Transcript)

	leg.in <- stopEvent("MZ1")
	require.NoError(t, waitDone(t, done))

	assert.Equal(t, StateClosed, s.State())
	assert.Equal(t, ReasonStop, leg.closeReason())
	assert.True(t, ai.isClosed())
	assert.Equal(t, 0, reg.Len())
	assert.Equal(t, []string{
		"initializing->awaiting_ai_ready",
		"awaiting_ai_ready->active",
		"active->draining",
		"draining->closed",
	}, sink.transitions())

	closed, ok := sink.closed()
	require.True(t, ok)
	assert.Equal(t, "CA1", closed.CallID)
	assert.Equal(t, ReasonStop, closed.Reason)
}

func TestSessionStopBeforeReadyNeverActivates(t *testing.T) {
	leg, ai, sink := newFakeLeg(), newFakeAI(), &recordingSink{}
	dials := &dialCount{}
	s := NewSession(leg, dialTo(ai, dials), nil, testOptions(sink))
	done := runSession(t, s)

	leg.in <- startEvent("CA1", "MZ1")
	waitState(t, s, StateAwaitingAIReady)
	leg.in <- mediaEvent("MZ1", mulawFrame(0xFF))
	leg.in <- stopEvent("MZ1")

	require.NoError(t, waitDone(t, done))
	assert.Equal(t, StateClosed, s.State())
	assert.Empty(t, ai.callLog(), "nothing may reach the AI leg before it is ready")
	assert.True(t, ai.isClosed())
	assert.Equal(t, 1, dials.get())
	assert.Equal(t, []string{
		"initializing->awaiting_ai_ready",
		"awaiting_ai_ready->draining",
		"draining->closed",
	}, sink.transitions())
}

func TestSessionStopBeforeStart(t *testing.T) {
	leg, ai, sink := newFakeLeg(), newFakeAI(), &recordingSink{}
	dials := &dialCount{}
	s := NewSession(leg, dialTo(ai, dials), nil, testOptions(sink))
	done := runSession(t, s)

	leg.in <- stopEvent("")
	require.NoError(t, waitDone(t, done))

	assert.Equal(t, 0, dials.get())
	assert.Equal(t, []string{"initializing->draining", "draining->closed"}, sink.transitions())
}

func TestSessionBuffersAudioUntilReady(t *testing.T) {
	leg, ai, sink := newFakeLeg(), newFakeAI(), &recordingSink{}
	opts := testOptions(sink)
	opts.InboundBuffer = 3
	s := NewSession(leg, dialTo(ai, nil), nil, opts)
	done := runSession(t, s)

	leg.in <- startEvent("CA1", "MZ1")
	waitState(t, s, StateAwaitingAIReady)

	var in []audio.Frame
	for b := byte(1); b <= 5; b++ {
		f := mulawFrame(b)
		in = append(in, f)
		leg.in <- mediaEvent("MZ1", f)
	}
	require.Eventually(t, func() bool { return s.Snapshot().InboundFrames == 5 }, waitFor, 5*time.Millisecond)

	snap := s.Snapshot()
	assert.Equal(t, uint64(2), snap.DroppedInbound)
	assert.Equal(t, 2, sink.count(telemetry.KindFrameDropped))
	assert.Empty(t, ai.callLog())

	ai.send(realtime.Event{Kind: realtime.KindSessionReady})
	require.Eventually(t, func() bool { return len(ai.submitted()) == 3 }, waitFor, 5*time.Millisecond)

	// The two oldest frames were evicted; the rest arrive in order.
	for i, got := range ai.submitted() {
		want, err := audio.TelephonyToRealtime(in[i+2])
		require.NoError(t, err)
		assert.Equal(t, want.Bytes(), got.Bytes(), "frame %d", i)
	}

	leg.in <- stopEvent("MZ1")
	require.NoError(t, waitDone(t, done))
	assert.Equal(t, uint64(2), s.Snapshot().DroppedInbound)
}

func TestSessionFramesPerResponseBatches(t *testing.T) {
	leg, ai := newFakeLeg(), newFakeAI()
	opts := testOptions(nil)
	opts.FramesPerResponse = 2
	s := NewSession(leg, dialTo(ai, nil), nil, opts)
	done := runSession(t, s)
	activate(t, s, leg, ai)

	for b := byte(1); b <= 4; b++ {
		leg.in <- mediaEvent("MZ1", mulawFrame(b))
	}
	require.Eventually(t, func() bool { return len(ai.callLog()) == 6 }, waitFor, 5*time.Millisecond)
	assert.Equal(t, []string{"submit", "submit", "request", "submit", "submit", "request"}, ai.callLog())

	leg.in <- stopEvent("MZ1")
	require.NoError(t, waitDone(t, done))
}

func TestSessionPrecheckFailureStaysInitializing(t *testing.T) {
	leg, ai, sink := newFakeLeg(), newFakeAI(), &recordingSink{}
	dials := &dialCount{}
	opts := testOptions(sink)
	opts.Precheck = func() error {
		return apperrors.New(apperrors.CodeConfigMissing, "OPENAI_API_KEY is not set")
	}
	s := NewSession(leg, dialTo(ai, dials), nil, opts)
	done := runSession(t, s)

	leg.in <- startEvent("CA1", "MZ1")
	err := waitDone(t, done)

	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeConfigMissing))
	assert.Equal(t, 0, dials.get())
	assert.Equal(t, "config_missing", leg.closeReason())
	assert.Equal(t, []string{"initializing->draining", "draining->closed"}, sink.transitions())
}

func TestSessionDialFailure(t *testing.T) {
	leg, sink := newFakeLeg(), &recordingSink{}
	dialer := DialerFunc(func(context.Context, Begin) (SpeechClient, error) {
		return nil, apperrors.New(apperrors.CodeEndpointUnreachable, "connection refused")
	})
	s := NewSession(leg, dialer, nil, testOptions(sink))
	done := runSession(t, s)

	leg.in <- startEvent("CA1", "MZ1")
	err := waitDone(t, done)

	assert.True(t, apperrors.IsCode(err, apperrors.CodeEndpointUnreachable))
	assert.Equal(t, "endpoint_unreachable", leg.closeReason())
	assert.NotContains(t, sink.transitions(), "awaiting_ai_ready->active")
}

func TestSessionReadyTimeout(t *testing.T) {
	leg, ai := newFakeLeg(), newFakeAI()
	opts := testOptions(nil)
	opts.HandshakeTimeout = 100 * time.Millisecond
	s := NewSession(leg, dialTo(ai, nil), nil, opts)
	done := runSession(t, s)

	leg.in <- startEvent("CA1", "MZ1")
	err := waitDone(t, done)

	assert.True(t, apperrors.IsCode(err, apperrors.CodeHandshakeFailed))
	assert.True(t, ai.isClosed())
	assert.Equal(t, StateClosed, s.State())
}

func TestSessionCallerHangup(t *testing.T) {
	leg, ai := newFakeLeg(), newFakeAI()
	s := NewSession(leg, dialTo(ai, nil), nil, testOptions(nil))
	done := runSession(t, s)
	activate(t, s, leg, ai)

	close(leg.in)
	err := waitDone(t, done)

	assert.True(t, apperrors.IsCode(err, apperrors.CodeLegClosed))
	assert.True(t, ai.isClosed())
}

func TestSessionEndpointClosesStream(t *testing.T) {
	leg, ai := newFakeLeg(), newFakeAI()
	s := NewSession(leg, dialTo(ai, nil), nil, testOptions(nil))
	done := runSession(t, s)
	activate(t, s, leg, ai)

	require.NoError(t, ai.Close())
	err := waitDone(t, done)

	assert.True(t, apperrors.IsCode(err, apperrors.CodeLegClosed))
	assert.Equal(t, "leg_closed", leg.closeReason())
}

func TestSessionSubmitFailureIsFatal(t *testing.T) {
	leg, ai := newFakeLeg(), newFakeAI()
	ai.submitFn = func() error { return apperrors.New(apperrors.CodeWriteFailed, "broken pipe") }
	s := NewSession(leg, dialTo(ai, nil), nil, testOptions(nil))
	done := runSession(t, s)
	activate(t, s, leg, ai)

	leg.in <- mediaEvent("MZ1", mulawFrame(0xFF))
	err := waitDone(t, done)

	assert.True(t, apperrors.IsCode(err, apperrors.CodeWriteFailed))
}

func TestSessionRemoteErrorsAreNotFatal(t *testing.T) {
	leg, ai, sink := newFakeLeg(), newFakeAI(), &recordingSink{}
	s := NewSession(leg, dialTo(ai, nil), nil, testOptions(sink))
	done := runSession(t, s)
	activate(t, s, leg, ai)

	ai.send(realtime.Event{Kind: realtime.KindError, Err: apperrors.New(apperrors.CodeRemoteError, "buffer too small")})
	ai.send(realtime.Event{Kind: realtime.KindError, Err: apperrors.New(apperrors.CodeDecodeFailed, "bad base64")})
	require.Eventually(t, func() bool {
		snap := s.Snapshot()
		return snap.RemoteErrors == 1 && snap.DecodeErrors == 1
	}, waitFor, 5*time.Millisecond)
	assert.Equal(t, StateActive, s.State())
	assert.Equal(t, 1, sink.count(telemetry.KindRemoteError))
	assert.Equal(t, 1, sink.count(telemetry.KindDecodeError))

	leg.in <- stopEvent("MZ1")
	require.NoError(t, waitDone(t, done))
}

func TestSessionCancelDrains(t *testing.T) {
	leg, ai := newFakeLeg(), newFakeAI()
	s := NewSession(leg, dialTo(ai, nil), nil, testOptions(nil))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	activate(t, s, leg, ai)

	cancel()
	require.NoError(t, waitDone(t, done))
	assert.Equal(t, ReasonCancelled, leg.closeReason())
	assert.True(t, ai.isClosed())
}

func TestSessionDrainIsBoundedByGrace(t *testing.T) {
	leg, ai := newFakeLeg(), newFakeAI()
	leg.block = make(chan struct{})
	opts := testOptions(nil)
	opts.DrainGrace = 100 * time.Millisecond
	s := NewSession(leg, dialTo(ai, nil), nil, opts)
	done := runSession(t, s)
	activate(t, s, leg, ai)

	ai.send(realtime.Event{Kind: realtime.KindAudioDelta, Frame: pcmFrame(500)})
	ai.send(realtime.Event{Kind: realtime.KindAudioDelta, Frame: pcmFrame(600)})

	start := time.Now()
	leg.in <- stopEvent("MZ1")
	require.NoError(t, waitDone(t, done))

	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, StateClosed, s.State())
}

func TestSessionDuplicateCallRejected(t *testing.T) {
	reg := NewRegistry()
	leg1, ai1 := newFakeLeg(), newFakeAI()
	first := NewSession(leg1, dialTo(ai1, nil), reg, testOptions(nil))
	done1 := runSession(t, first)
	activate(t, first, leg1, ai1)

	leg2, ai2 := newFakeLeg(), newFakeAI()
	second := NewSession(leg2, dialTo(ai2, nil), reg, testOptions(nil))
	done2 := runSession(t, second)
	leg2.in <- startEvent("CA1", "MZ2")

	err := waitDone(t, done2)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeDuplicateSession))

	// The rejected session must not evict the live one.
	snap, ok := reg.Lookup("CA1")
	require.True(t, ok)
	assert.Equal(t, "MZ1", snap.StreamID)

	leg1.in <- stopEvent("MZ1")
	require.NoError(t, waitDone(t, done1))
	assert.Equal(t, 0, reg.Len())
}

func TestSessionIgnoresControlNoise(t *testing.T) {
	leg, ai := newFakeLeg(), newFakeAI()
	dials := &dialCount{}
	s := NewSession(leg, dialTo(ai, dials), nil, testOptions(nil))
	done := runSession(t, s)
	activate(t, s, leg, ai)

	leg.in <- startEvent("CA1", "MZ1")
	leg.in <- stopEvent("")
	require.NoError(t, waitDone(t, done))
	assert.Equal(t, 1, dials.get(), "a repeated start must not dial again")
}

func TestSessionCountsEvictedOutboundAudio(t *testing.T) {
	leg, ai, sink := newFakeLeg(), newFakeAI(), &recordingSink{}
	leg.block = make(chan struct{})
	opts := testOptions(sink)
	opts.OutboundBuffer = 2
	s := NewSession(leg, dialTo(ai, nil), nil, opts)
	done := runSession(t, s)
	activate(t, s, leg, ai)

	for _, v := range []int16{100, 200, 300} {
		ai.send(realtime.Event{Kind: realtime.KindAudioDelta, Frame: pcmFrame(v)})
	}
	ai.send(realtime.Event{Kind: realtime.KindTurnComplete, ResponseID: "resp_1"})
	require.Eventually(t, func() bool { return sink.count(telemetry.KindTurnComplete) == 1 }, waitFor, 5*time.Millisecond)

	close(leg.block)
	require.Eventually(t, func() bool { return len(leg.marks()) == 1 }, waitFor, 5*time.Millisecond)

	snap := s.Snapshot()
	assert.GreaterOrEqual(t, snap.DroppedOutbound, uint64(1))
	assert.Equal(t, 3, len(leg.media())+int(snap.DroppedOutbound), "every delta is either written or counted")
	assert.Equal(t, int(snap.DroppedOutbound), sink.count(telemetry.KindFrameDropped))
	assert.Equal(t, []string{"turn-1"}, leg.marks())

	leg.in <- stopEvent("MZ1")
	require.NoError(t, waitDone(t, done))
}

func TestSessionKeepaliveFailureTearsDown(t *testing.T) {
	leg, ai, sink := newFakeLeg(), newFakeAI(), &recordingSink{}
	opts := testOptions(sink)
	opts.PingInterval = 20 * time.Millisecond
	s := NewSession(leg, dialTo(ai, nil), nil, opts)
	done := runSession(t, s)
	activate(t, s, leg, ai)

	require.Eventually(t, func() bool { return leg.pingCount() >= 2 }, waitFor, 5*time.Millisecond)
	assert.Equal(t, StateActive, s.State(), "healthy pings keep the call up")

	leg.failPings(apperrors.New(apperrors.CodeLegClosed, "pong not received"))
	err := waitDone(t, done)

	assert.True(t, apperrors.IsCode(err, apperrors.CodeLegClosed), "err = %v", err)
	assert.Equal(t, StateClosed, s.State())
	assert.Equal(t, "leg_closed", leg.closeReason())
	assert.True(t, ai.isClosed())
	evt, ok := sink.closed()
	require.True(t, ok)
	assert.Equal(t, "leg_closed", evt.Reason)
}

func TestSessionSurvivesTelephonyDecodeFailure(t *testing.T) {
	leg, ai, sink := newFakeLeg(), newFakeAI(), &recordingSink{}
	s := NewSession(leg, dialTo(ai, nil), nil, testOptions(sink))
	done := runSession(t, s)
	activate(t, s, leg, ai)

	leg.errs <- apperrors.New(apperrors.CodeDecodeFailed, "binary frame on telephony socket")
	require.Eventually(t, func() bool { return s.Snapshot().DecodeErrors == 1 }, waitFor, 5*time.Millisecond)
	assert.Equal(t, StateActive, s.State())
	assert.Equal(t, 1, sink.count(telemetry.KindDecodeError))

	leg.in <- mediaEvent("MZ1", mulawFrame(0x55))
	require.Eventually(t, func() bool { return len(ai.submitted()) == 1 }, waitFor, 5*time.Millisecond)

	leg.in <- stopEvent("MZ1")
	require.NoError(t, waitDone(t, done))
	assert.Equal(t, ReasonStop, leg.closeReason())
}
