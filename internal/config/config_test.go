package config

import (
	"testing"
	"time"

	apperrors "github.com/GriffinCanCode/voicebridge/internal/errors"
)

var envVars = []string{
	"HTTP_ADDR", "ADMIN_ADDR", "MEDIA_STREAM_PATH", "REALTIME_URL", "OPENAI_API_KEY",
	"REALTIME_MODEL", "VOICE", "LOCALE", "INSTRUCTIONS", "HANDSHAKE_TIMEOUT",
	"INBOUND_BUFFER_FRAMES", "OUTBOUND_BUFFER_FRAMES", "FRAMES_PER_RESPONSE",
	"DRAIN_GRACE", "PING_INTERVAL", "WRITE_TIMEOUT", "DIAL_BREAKER_THRESHOLD", "DIAL_BREAKER_RESET",
}

func TestLoad(t *testing.T) {
	for _, v := range envVars {
		t.Setenv(v, "")
	}

	cfg := Load()

	if cfg.HTTPAddr != ":8000" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, ":8000")
	}
	if cfg.AdminAddr != ":50061" {
		t.Errorf("AdminAddr = %q, want %q", cfg.AdminAddr, ":50061")
	}
	if cfg.MediaStreamPath != "/media-stream" {
		t.Errorf("MediaStreamPath = %q, want %q", cfg.MediaStreamPath, "/media-stream")
	}
	if cfg.Locale != "fr-FR" {
		t.Errorf("Locale = %q, want %q", cfg.Locale, "fr-FR")
	}
	if cfg.Instructions != DefaultInstructions {
		t.Error("Instructions should default to DefaultInstructions")
	}
	if cfg.InboundBufferFrames != 50 {
		t.Errorf("InboundBufferFrames = %d, want %d", cfg.InboundBufferFrames, 50)
	}
	if cfg.FramesPerResponse != 1 {
		t.Errorf("FramesPerResponse = %d, want %d", cfg.FramesPerResponse, 1)
	}
	if cfg.DrainGrace != 2*time.Second {
		t.Errorf("DrainGrace = %v, want %v", cfg.DrainGrace, 2*time.Second)
	}
	if cfg.PingInterval != 10*time.Second {
		t.Errorf("PingInterval = %v, want %v", cfg.PingInterval, 10*time.Second)
	}
}

func TestLoadWithEnv(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9000")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("VOICE", "verse")
	t.Setenv("INBOUND_BUFFER_FRAMES", "10")
	t.Setenv("DRAIN_GRACE", "500ms")
	t.Setenv("HANDSHAKE_TIMEOUT", "3")
	t.Setenv("PING_INTERVAL", "not-a-duration")

	cfg := Load()

	if cfg.HTTPAddr != ":9000" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, ":9000")
	}
	if cfg.APIKey != "sk-test" {
		t.Errorf("APIKey = %q, want %q", cfg.APIKey, "sk-test")
	}
	if cfg.Voice != "verse" {
		t.Errorf("Voice = %q, want %q", cfg.Voice, "verse")
	}
	if cfg.InboundBufferFrames != 10 {
		t.Errorf("InboundBufferFrames = %d, want %d", cfg.InboundBufferFrames, 10)
	}
	if cfg.DrainGrace != 500*time.Millisecond {
		t.Errorf("DrainGrace = %v, want %v", cfg.DrainGrace, 500*time.Millisecond)
	}
	if cfg.HandshakeTimeout != 3*time.Second {
		t.Errorf("HandshakeTimeout = %v, want %v", cfg.HandshakeTimeout, 3*time.Second)
	}
	if cfg.PingInterval != 10*time.Second {
		t.Errorf("PingInterval = %v, want default on parse error", cfg.PingInterval)
	}
}

func TestValidate(t *testing.T) {
	for _, v := range envVars {
		t.Setenv(v, "")
	}
	cfg := Load()

	err := cfg.Validate()
	if !apperrors.IsCode(err, apperrors.CodeConfigMissing) {
		t.Errorf("Validate() = %v, want config_missing", err)
	}

	cfg.APIKey = "sk-test"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}

	cfg.OutboundBufferFrames = 0
	if err := cfg.Validate(); !apperrors.IsCode(err, apperrors.CodeInvalidArgument) {
		t.Errorf("Validate() = %v, want invalid_argument", err)
	}
}
