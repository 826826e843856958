// Package telemetry is the boundary through which sessions report state
// transitions and counters. Sinks never block the caller.
package telemetry

import (
	"context"
	"log/slog"
	"time"

	"github.com/GriffinCanCode/voicebridge/internal/trace"
)

// Kind identifies a telemetry event.
type Kind int

const (
	KindSessionStarted Kind = iota
	KindStateChange
	KindFrameRelayed
	KindFrameDropped
	KindDecodeError
	KindRemoteError
	KindTurnComplete
	KindSessionClosed
)

func (k Kind) String() string {
	return [...]string{"session_started", "state_change", "frame_relayed", "frame_dropped", "decode_error", "remote_error", "turn_complete", "session_closed"}[k]
}

// Direction of a relayed or dropped frame.
type Direction string

const (
	Inbound  Direction = "inbound"  // caller to AI
	Outbound Direction = "outbound" // AI to caller
)

// Event is one telemetry record. Fields not relevant to Kind are zero.
type Event struct {
	Kind      Kind
	CallID    string
	At        time.Time
	From      string // KindStateChange
	To        string // KindStateChange
	Direction Direction
	Reason    string // KindSessionClosed: "stop", "cancelled" or an error code string
	Count     uint64 // running total for counters
	Err       error
	Duration  time.Duration // KindSessionClosed: session lifetime
}

// Sink receives telemetry. Emit must not block.
type Sink interface {
	Emit(Event)
}

// Nop discards everything.
type Nop struct{}

func (Nop) Emit(Event) {}

// Multi fans an event out to every sink.
type Multi []Sink

func (m Multi) Emit(e Event) {
	for _, s := range m {
		s.Emit(e)
	}
}

// LogSink writes events through slog. Per-frame events are skipped.
type LogSink struct {
	Logger *slog.Logger
}

// NewLogSink creates a sink that logs through the trace-aware default logger.
func NewLogSink() *LogSink {
	return &LogSink{Logger: trace.Logger(context.Background())}
}

func (s *LogSink) Emit(e Event) {
	log := s.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("call_id", e.CallID)

	switch e.Kind {
	case KindSessionStarted:
		log.Info("session started")
	case KindStateChange:
		log.Info("session state changed", "from", e.From, "to", e.To)
	case KindDecodeError:
		log.Debug("frame discarded", "direction", e.Direction, "count", e.Count, "error", e.Err)
	case KindFrameDropped:
		log.Debug("frame dropped under backpressure", "direction", e.Direction, "dropped", e.Count)
	case KindRemoteError:
		log.Warn("realtime endpoint error", "error", e.Err)
	case KindSessionClosed:
		if e.Err != nil {
			log.Warn("session closed", "reason", e.Reason, "duration", e.Duration, "error", e.Err)
			return
		}
		log.Info("session closed", "reason", e.Reason, "duration", e.Duration)
	}
}
