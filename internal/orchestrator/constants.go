// Package orchestrator runs one call session per telephony connection,
// relaying audio between the caller and the realtime endpoint.
package orchestrator

import "time"

// Session defaults, used when Options leaves a field zero.
const (
	// ~1 s of 20 ms caller frames held while the AI leg comes up
	DefaultInboundBuffer = 50

	// ~10 s of synthesized speech waiting for the telephony socket
	DefaultOutboundBuffer = 500

	// Request a reply after every inbound frame
	DefaultFramesPerResponse = 1

	DefaultDrainGrace       = 2 * time.Second
	DefaultHandshakeTimeout = 5 * time.Second
	DefaultPingInterval     = 10 * time.Second

	// Completed AI turns kept per session for diagnostics
	TranscriptMaxTurns = 20

	// Consecutive decode failures before a warning is logged
	DecodeErrorWarnThreshold = 50

	// Control events queued from the telephony reader to the supervisor
	signalBuffer = 16
)

// Close reasons that are not error codes.
const (
	ReasonStop      = "stop"
	ReasonCancelled = "cancelled"
)

// Outbound mark names are "turn-<n>".
const markPrefix = "turn-"
