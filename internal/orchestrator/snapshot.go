package orchestrator

import "time"

// Snapshot is a point-in-time view of a session for the read-only APIs.
type Snapshot struct {
	CallID    string    `json:"call_id"`
	StreamID  string    `json:"stream_id,omitempty"`
	From      string    `json:"from,omitempty"`
	To        string    `json:"to,omitempty"`
	State     State     `json:"state"`
	Model     string    `json:"model,omitempty"`
	Voice     string    `json:"voice,omitempty"`
	Locale    string    `json:"locale,omitempty"`
	StartedAt time.Time `json:"started_at"`

	InboundFrames   uint64 `json:"inbound_frames"`
	OutboundFrames  uint64 `json:"outbound_frames"`
	SubmittedFrames uint64 `json:"submitted_frames"`
	Responses       uint64 `json:"responses_requested"`
	DroppedInbound  uint64 `json:"dropped_inbound"`
	DroppedOutbound uint64 `json:"dropped_outbound"`
	DecodeErrors    uint64 `json:"decode_errors"`
	RemoteErrors    uint64 `json:"remote_errors"`
	Turns           uint64 `json:"turns"`

	Transcript string `json:"transcript,omitempty"`
}

// Snapshot captures the session's identity, state and counters.
func (s *Session) Snapshot() Snapshot {
	b := s.begin.Get()
	started := b.StartedAt
	if started.IsZero() {
		started = s.createdAt
	}
	return Snapshot{
		CallID:          s.CallID(),
		StreamID:        b.StreamID,
		From:            b.From,
		To:              b.To,
		State:           s.State(),
		Model:           b.Model,
		Voice:           b.Voice,
		Locale:          b.Locale,
		StartedAt:       started,
		InboundFrames:   s.stats.inbound.Load(),
		OutboundFrames:  s.stats.outbound.Load(),
		SubmittedFrames: s.stats.submitted.Load(),
		Responses:       s.stats.responses.Load(),
		DroppedInbound:  s.inbound.Dropped(),
		DroppedOutbound: s.outbound.Dropped(),
		DecodeErrors:    s.stats.decodeErrors.Load(),
		RemoteErrors:    s.stats.remoteErrors.Load(),
		Turns:           uint64(s.transcript.Count()),
		Transcript:      s.transcript.GetRecent(3),
	}
}
