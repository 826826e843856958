package orchestrator

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/looplab/fsm"
	"golang.org/x/sync/errgroup"

	"github.com/GriffinCanCode/voicebridge/internal/audio"
	apperrors "github.com/GriffinCanCode/voicebridge/internal/errors"
	"github.com/GriffinCanCode/voicebridge/internal/orchestrator/transcript"
	"github.com/GriffinCanCode/voicebridge/internal/realtime"
	"github.com/GriffinCanCode/voicebridge/internal/syncx"
	"github.com/GriffinCanCode/voicebridge/internal/telemetry"
	"github.com/GriffinCanCode/voicebridge/internal/telephony"
	"github.com/GriffinCanCode/voicebridge/internal/trace"
)

type signalKind int

const (
	sigControl signalKind = iota // telephony control event
	sigReady                     // AI leg reported ready
	sigFatal                     // leg-fatal error from any goroutine
)

type signal struct {
	kind signalKind
	evt  telephony.Event
	err  error
}

// outItem is one entry of the outbound queue: a media frame or a mark.
type outItem struct {
	frame audio.Frame
	mark  string
}

type dialResult struct {
	client SpeechClient
	err    error
}

type counters struct {
	inbound           atomic.Uint64
	outbound          atomic.Uint64
	submitted         atomic.Uint64
	responses         atomic.Uint64
	decodeErrors      atomic.Uint64
	consecutiveDecode atomic.Uint64
	remoteErrors      atomic.Uint64
}

// Session owns one call: the telephony leg handed to it, the AI leg it
// dials after the start event, and the relay between them. Sessions share
// nothing with each other.
type Session struct {
	key      string
	opts     Options
	leg      TelephonyLeg
	dialer   Dialer
	registry *Registry

	machine    *fsm.FSM
	begin      *syncx.RWGuard[Begin]
	createdAt  time.Time
	stats      counters
	transcript *transcript.MemoryStore
	logger     atomic.Pointer[slog.Logger]

	inbound  *syncx.DropQueue[audio.Frame]
	outbound *syncx.DropQueue[outItem]
	signals  chan signal
	live     atomic.Bool
	ready    sync.Once

	// Owned by Run.
	group      errgroup.Group
	legCtx     context.Context
	client     SpeechClient
	dialDone   chan dialResult
	cancelDial context.CancelFunc
	stopPump   context.CancelFunc
	stopPing   context.CancelFunc
	aiDone     chan struct{}
	writerDone chan struct{}
	registered bool
}

// NewSession prepares a session for an accepted telephony leg. registry may be nil.
func NewSession(leg TelephonyLeg, dialer Dialer, registry *Registry, opts Options) *Session {
	opts = opts.withDefaults()
	s := &Session{
		key:        "conn-" + uuid.NewString(),
		opts:       opts,
		leg:        leg,
		dialer:     dialer,
		registry:   registry,
		begin:      syncx.NewGuard(Begin{}),
		createdAt:  time.Now(),
		transcript: transcript.NewStore(TranscriptMaxTurns),
		inbound:    syncx.NewDropQueue[audio.Frame](opts.InboundBuffer),
		outbound:   syncx.NewDropQueue[outItem](opts.OutboundBuffer),
		signals:    make(chan signal, signalBuffer),
		writerDone: make(chan struct{}),
	}
	s.machine = newMachine(s.onTransition)
	s.live.Store(true)
	s.logger.Store(slog.Default())
	return s
}

// State returns the current lifecycle state.
func (s *Session) State() State { return State(s.machine.Current()) }

// CallID returns the platform call id, or a provisional id before start.
func (s *Session) CallID() string {
	if id := s.begin.Get().CallID; id != "" {
		return id
	}
	return s.key
}

// Run drives the session to Closed. Cancelling ctx drains the session
// rather than dropping it. The returned error is the leg-fatal or
// configuration error that ended the call, nil for a normal stop.
func (s *Session) Run(ctx context.Context) error {
	ctx = trace.WithCall(ctx, s.key)
	s.logger.Store(trace.Logger(ctx))
	s.emit(telemetry.Event{Kind: telemetry.KindSessionStarted})

	// Legs outlive ctx so a cancelled session still drains.
	legCtx, stopLegs := context.WithCancel(context.WithoutCancel(ctx))
	defer stopLegs()
	s.legCtx = legCtx

	pingCtx, stopPing := context.WithCancel(legCtx)
	defer stopPing()
	s.stopPing = stopPing

	s.group.Go(func() error { return s.readTelephony(legCtx) })
	s.group.Go(func() error { return s.writeTelephony(legCtx) })
	if s.opts.PingInterval > 0 {
		s.group.Go(func() error { return s.keepalive(pingCtx) })
	}

	reason, cause := s.supervise(ctx)

	s.drain(ctx, reason)
	stopLegs()
	if err := s.group.Wait(); err != nil {
		s.log().Debug("relay goroutine ended with error", "error", err)
	}
	s.releaseLateDial()

	s.transition(ctx, eventClose)
	if s.registered {
		s.registry.Unregister(s.CallID(), s)
	}
	s.emit(telemetry.Event{
		Kind:     telemetry.KindSessionClosed,
		Reason:   reason,
		Err:      cause,
		Duration: time.Since(s.createdAt),
	})
	return cause
}

// supervise owns the state machine until the session must drain.
func (s *Session) supervise(ctx context.Context) (string, error) {
	var readyTimeout <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return ReasonCancelled, nil

		case <-readyTimeout:
			err := apperrors.Newf(apperrors.CodeHandshakeFailed, "realtime session not ready within %s", s.opts.HandshakeTimeout)
			return reasonOf(err), err

		case res := <-s.dialDone:
			s.dialDone = nil
			if res.err != nil {
				return reasonOf(res.err), res.err
			}
			s.client = res.client
			s.aiDone = make(chan struct{})
			client := res.client
			s.group.Go(func() error { return s.consumeAI(s.legCtx, client) })

		case sig := <-s.signals:
			switch sig.kind {
			case sigFatal:
				return reasonOf(sig.err), sig.err

			case sigReady:
				if s.State() != StateAwaitingAIReady {
					continue
				}
				readyTimeout = nil
				s.transition(ctx, eventReady)
				pumpCtx, stop := context.WithCancel(s.legCtx)
				s.stopPump = stop
				client := s.client
				s.group.Go(func() error { return s.pump(pumpCtx, client) })

			case sigControl:
				done, err := s.handleControl(ctx, sig.evt)
				if err != nil {
					return reasonOf(err), err
				}
				if done {
					return ReasonStop, nil
				}
				if s.dialDone != nil && readyTimeout == nil && s.State() == StateAwaitingAIReady {
					timer := time.NewTimer(s.opts.HandshakeTimeout)
					defer timer.Stop()
					readyTimeout = timer.C
				}
			}
		}
	}
}

// handleControl reacts to a non-media telephony event. done reports a stop.
func (s *Session) handleControl(ctx context.Context, evt telephony.Event) (done bool, err error) {
	log := s.log()

	switch evt.Kind {
	case telephony.KindStart:
		if s.State() != StateInitializing {
			log.Debug("duplicate start event ignored", "stream_id", evt.StreamSID)
			return false, nil
		}
		return false, s.startCall(ctx, evt)

	case telephony.KindStop:
		return true, nil

	case telephony.KindMark:
		log.Debug("playback reached mark", "mark", evt.Mark)

	case telephony.KindDTMF:
		log.Debug("dtmf received", "digit", evt.Digit)

	case telephony.KindConnected:
		log.Debug("telephony stream connected")

	default:
		log.Debug("unrecognized telephony event ignored", "event", evt.Name)
	}
	return false, nil
}

// startCall captures the call snapshot, registers the call and dials the AI leg.
func (s *Session) startCall(ctx context.Context, evt telephony.Event) error {
	b, err := NewBegin(evt, s.opts.Defaults)
	if err != nil {
		return err
	}
	if s.opts.Precheck != nil {
		if err := s.opts.Precheck(); err != nil {
			return err
		}
	}
	if s.registry != nil {
		if err := s.registry.Register(b.CallID, s); err != nil {
			return err
		}
		s.registered = true
	}
	s.begin.Set(b)

	s.logger.Store(trace.Logger(trace.WithCall(ctx, b.CallID)).With("stream_id", b.StreamID))
	s.log().Info("call started", "from", b.From, "to", b.To, "locale", b.Locale, "voice", b.Voice)

	s.transition(ctx, eventStart)

	dialCtx, cancel := context.WithTimeout(s.legCtx, s.opts.HandshakeTimeout)
	s.cancelDial = cancel
	s.dialDone = make(chan dialResult, 1)
	dialDone := s.dialDone
	s.group.Go(func() error {
		client, err := s.dialer.Dial(dialCtx, b)
		dialDone <- dialResult{client: client, err: err}
		return nil
	})
	return nil
}

// drain stops intake, closes the AI leg, flushes queued audio to the
// caller and closes the telephony leg, all within the grace period.
func (s *Session) drain(ctx context.Context, reason string) {
	s.transition(ctx, eventDrain)
	s.live.Store(false)
	s.log().Info("session draining", "reason", reason)

	s.inbound.Close()
	if s.stopPump != nil {
		s.stopPump()
	}
	if s.cancelDial != nil {
		s.cancelDial()
	}

	graceCtx, cancel := context.WithTimeout(context.Background(), s.opts.DrainGrace)
	defer cancel()

	if s.client != nil {
		client := s.client
		go func() {
			if err := client.Close(); err != nil {
				s.log().Debug("realtime close", "error", err)
			}
		}()
		select {
		case <-s.aiDone:
		case <-graceCtx.Done():
		}
	}

	s.outbound.Close()
	select {
	case <-s.writerDone:
	case <-graceCtx.Done():
		s.log().Warn("drain grace elapsed with audio still queued", "queued", s.outbound.Len())
	}

	s.stopPing()
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		if err := s.leg.Close(reason); err != nil {
			s.log().Debug("telephony close", "error", err)
		}
	}()
	select {
	case <-closed:
	case <-graceCtx.Done():
	}
}

// releaseLateDial closes an AI leg whose dial finished after draining began.
func (s *Session) releaseLateDial() {
	if s.dialDone == nil {
		return
	}
	select {
	case res := <-s.dialDone:
		if res.err == nil && res.client != nil {
			_ = res.client.Close()
		}
	default:
	}
}

// readTelephony is the caller leg's read loop. Media goes straight to the
// inbound queue; everything else is handed to the supervisor.
func (s *Session) readTelephony(ctx context.Context) error {
	for {
		evt, err := s.leg.Read(ctx)
		if err != nil {
			if apperrors.ClassOf(err) == apperrors.ClassDecode {
				s.decodeError(telemetry.Inbound, err)
				continue
			}
			s.fail(ctx, err)
			return nil
		}

		if evt.Kind != telephony.KindMedia {
			s.signal(ctx, signal{kind: sigControl, evt: evt})
			continue
		}
		if !s.live.Load() || evt.Frame.IsEmpty() {
			continue
		}

		s.stats.inbound.Add(1)
		s.stats.consecutiveDecode.Store(0)
		if s.inbound.Push(evt.Frame) {
			s.emit(telemetry.Event{Kind: telemetry.KindFrameDropped, Direction: telemetry.Inbound, Count: s.inbound.Dropped()})
		}
	}
}

// pump relays buffered caller audio to the AI leg in receipt order.
func (s *Session) pump(ctx context.Context, client SpeechClient) error {
	pending := 0
	for {
		frame, err := s.inbound.Pop(ctx)
		if err != nil {
			return nil
		}

		pcm, err := audio.TelephonyToRealtime(frame)
		if err != nil {
			s.decodeError(telemetry.Inbound, err)
			continue
		}
		if err := client.SubmitAudio(ctx, pcm); err != nil {
			return s.relayFailed(ctx, err)
		}
		n := s.stats.submitted.Add(1)
		s.emit(telemetry.Event{Kind: telemetry.KindFrameRelayed, Direction: telemetry.Inbound, Count: n})

		pending++
		if pending < s.opts.FramesPerResponse {
			continue
		}
		pending = 0
		if err := client.RequestResponse(ctx); err != nil {
			return s.relayFailed(ctx, err)
		}
		s.stats.responses.Add(1)
	}
}

func (s *Session) relayFailed(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return nil
	}
	s.fail(ctx, err)
	return err
}

// consumeAI is the AI leg's read loop.
func (s *Session) consumeAI(ctx context.Context, client SpeechClient) error {
	defer close(s.aiDone)
	events := client.Events()
	for {
		select {
		case <-ctx.Done():
			return nil
		case evt, ok := <-events:
			if !ok {
				s.fail(ctx, apperrors.New(apperrors.CodeLegClosed, "realtime event stream ended"))
				return nil
			}
			s.handleAI(ctx, evt)
		}
	}
}

func (s *Session) handleAI(ctx context.Context, evt realtime.Event) {
	switch evt.Kind {
	case realtime.KindSessionCreated:
		s.log().Debug("realtime session created")

	case realtime.KindSessionReady:
		s.ready.Do(func() { s.signal(ctx, signal{kind: sigReady}) })

	case realtime.KindAudioDelta:
		frame, err := audio.RealtimeToTelephony(evt.Frame)
		if err != nil {
			s.decodeError(telemetry.Outbound, err)
			return
		}
		if frame.IsEmpty() {
			return
		}
		s.stats.consecutiveDecode.Store(0)
		s.enqueue(outItem{frame: frame})

	case realtime.KindTextDelta:
		s.transcript.AddDelta(evt.Text)

	case realtime.KindTurnComplete:
		turn := s.transcript.CompleteTurn(evt.ResponseID)
		s.log().Debug("ai turn complete", "turn", turn.Index, "text", turn.Text)
		s.enqueue(outItem{mark: markPrefix + strconv.Itoa(turn.Index)})
		s.emit(telemetry.Event{Kind: telemetry.KindTurnComplete, Count: uint64(s.transcript.Count())})

	case realtime.KindError:
		switch apperrors.ClassOf(evt.Err) {
		case apperrors.ClassDecode:
			s.decodeError(telemetry.Outbound, evt.Err)
		case apperrors.ClassLegFatal:
			s.fail(ctx, evt.Err)
		default:
			n := s.stats.remoteErrors.Add(1)
			s.emit(telemetry.Event{Kind: telemetry.KindRemoteError, Err: evt.Err, Count: n})
		}
	}
}

// enqueue queues an item for the caller, reporting any frame or mark the
// bounded queue had to discard.
func (s *Session) enqueue(item outItem) {
	if s.outbound.Push(item) {
		s.emit(telemetry.Event{Kind: telemetry.KindFrameDropped, Direction: telemetry.Outbound, Count: s.outbound.Dropped()})
	}
}

// writeTelephony is the caller leg's only writer.
func (s *Session) writeTelephony(ctx context.Context) error {
	defer close(s.writerDone)
	for {
		item, err := s.outbound.Pop(ctx)
		if err != nil {
			return nil
		}

		streamSID := s.begin.Get().StreamID
		if item.mark != "" {
			err = s.leg.WriteMark(ctx, streamSID, item.mark)
		} else {
			err = s.leg.WriteMedia(ctx, streamSID, item.frame)
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.fail(ctx, err)
			return err
		}

		if item.mark == "" {
			n := s.stats.outbound.Add(1)
			s.emit(telemetry.Event{Kind: telemetry.KindFrameRelayed, Direction: telemetry.Outbound, Count: n})
		}
	}
}

// keepalive pings the caller leg so a silently dead socket tears the session down.
func (s *Session) keepalive(ctx context.Context) error {
	ticker := time.NewTicker(s.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, s.opts.PingInterval)
			err := s.leg.Ping(pingCtx)
			cancel()
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				s.fail(ctx, err)
				return err
			}
		}
	}
}

// signal hands sig to the supervisor. Once draining it is discarded.
func (s *Session) signal(ctx context.Context, sig signal) {
	if !s.live.Load() {
		return
	}
	select {
	case s.signals <- sig:
	case <-ctx.Done():
	}
}

func (s *Session) fail(ctx context.Context, err error) {
	s.signal(ctx, signal{kind: sigFatal, err: err})
}

func (s *Session) decodeError(dir telemetry.Direction, err error) {
	if apperrors.CodeOf(err) == apperrors.CodeUnknown {
		err = apperrors.Wrap(err, apperrors.CodeDecodeFailed, "audio conversion failed")
	}
	n := s.stats.decodeErrors.Add(1)
	if s.stats.consecutiveDecode.Add(1) == DecodeErrorWarnThreshold {
		s.log().Warn("sustained decode failures", "direction", dir, "consecutive", DecodeErrorWarnThreshold, "error", err)
	}
	s.emit(telemetry.Event{Kind: telemetry.KindDecodeError, Direction: dir, Err: err, Count: n})
}

// transition fires event even when ctx is already cancelled.
func (s *Session) transition(ctx context.Context, event string) {
	if err := s.machine.Event(context.WithoutCancel(ctx), event); err != nil {
		s.log().Debug("state transition rejected", "event", event, "state", s.machine.Current(), "error", err)
	}
}

func (s *Session) onTransition(from, to State) {
	s.emit(telemetry.Event{Kind: telemetry.KindStateChange, From: string(from), To: string(to)})
}

func (s *Session) emit(e telemetry.Event) {
	e.CallID = s.CallID()
	e.At = time.Now()
	s.opts.Sink.Emit(e)
}

func (s *Session) log() *slog.Logger { return s.logger.Load() }

// reasonOf maps a terminal error to the closed event's reason code.
func reasonOf(err error) string {
	if code := apperrors.CodeOf(err); code != apperrors.CodeUnknown {
		return code.String()
	}
	return apperrors.CodeInternal.String()
}
