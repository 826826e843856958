package orchestrator

import (
	"time"

	"github.com/GriffinCanCode/voicebridge/internal/config"
	"github.com/GriffinCanCode/voicebridge/internal/telemetry"
)

// Options configures every session a Manager runs.
type Options struct {
	InboundBuffer     int
	OutboundBuffer    int
	FramesPerResponse int
	DrainGrace        time.Duration
	HandshakeTimeout  time.Duration
	PingInterval      time.Duration // negative disables keepalive

	Defaults Defaults

	// Precheck runs when the start event arrives, before the AI leg is
	// dialed. An error closes the session without leaving Initializing.
	Precheck func() error

	Sink telemetry.Sink
}

func (o Options) withDefaults() Options {
	if o.InboundBuffer <= 0 {
		o.InboundBuffer = DefaultInboundBuffer
	}
	if o.OutboundBuffer <= 0 {
		o.OutboundBuffer = DefaultOutboundBuffer
	}
	if o.FramesPerResponse <= 0 {
		o.FramesPerResponse = DefaultFramesPerResponse
	}
	if o.DrainGrace <= 0 {
		o.DrainGrace = DefaultDrainGrace
	}
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if o.PingInterval == 0 {
		o.PingInterval = DefaultPingInterval
	}
	if o.Sink == nil {
		o.Sink = telemetry.Nop{}
	}
	return o
}

// OptionsFromConfig maps process configuration onto session options.
func OptionsFromConfig(cfg *config.Config, sink telemetry.Sink) Options {
	return Options{
		InboundBuffer:     cfg.InboundBufferFrames,
		OutboundBuffer:    cfg.OutboundBufferFrames,
		FramesPerResponse: cfg.FramesPerResponse,
		DrainGrace:        cfg.DrainGrace,
		HandshakeTimeout:  cfg.HandshakeTimeout,
		PingInterval:      cfg.PingInterval,
		Defaults: Defaults{
			Model:        cfg.Model,
			Voice:        cfg.Voice,
			Locale:       cfg.Locale,
			Instructions: cfg.Instructions,
		},
		Precheck: cfg.Validate,
		Sink:     sink,
	}
}
