// Package realtime is a client for the speech-to-speech realtime endpoint.
// One Client owns one socket and one endpoint session.
package realtime

import "time"

// Client defaults
const (
	DefaultHandshakeTimeout = 5 * time.Second
	DefaultWriteTimeout     = 2 * time.Second

	// Deltas queued between the socket reader and the consumer
	DefaultEventBuffer = 256

	// Audio deltas can be large; the endpoint sends up to ~100 ms per delta
	MaxMessageBytes = 1 << 20
)

// Outbound message types
const (
	typeSessionUpdate = "session.update"
	typeBufferAppend  = "input_audio_buffer.append"
	typeBufferCommit  = "input_audio_buffer.commit"
	typeResponseNew   = "response.create"
)

// Inbound message types
const (
	typeSessionCreated    = "session.created"
	typeSessionUpdated    = "session.updated"
	typeAudioDelta        = "response.output_audio.delta"
	typeAudioDeltaLegacy  = "response.audio.delta"
	typeTextDelta         = "response.output_text.delta"
	typeTextDeltaLegacy   = "response.text.delta"
	typeResponseCompleted = "response.completed"
	typeResponseDone      = "response.done"
	typeError             = "error"
)

// pcmFormatType is the wire name for linear 16-bit PCM.
const pcmFormatType = "audio/pcm"
