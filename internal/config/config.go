// Package config handles bridge configuration
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/GriffinCanCode/voicebridge/internal/errors"
)

// DefaultInstructions is used when INSTRUCTIONS is unset.
const DefaultInstructions = "You are a friendly phone assistant taking a fast-food order. " +
	"Keep replies short, confirm each item and quantity, and speak in the caller's language."

type Config struct {
	HTTPAddr        string
	AdminAddr       string
	MediaStreamPath string

	// Realtime endpoint
	RealtimeURL      string
	APIKey           string
	Model            string
	Voice            string
	Locale           string
	Instructions     string
	HandshakeTimeout time.Duration

	// Session relay
	InboundBufferFrames  int
	OutboundBufferFrames int
	FramesPerResponse    int
	DrainGrace           time.Duration
	PingInterval         time.Duration
	WriteTimeout         time.Duration

	// Dial circuit breaker
	DialBreakerThreshold int
	DialBreakerReset     time.Duration
}

func Load() *Config {
	return &Config{
		HTTPAddr:             getEnv("HTTP_ADDR", ":8000"),
		AdminAddr:            getEnv("ADMIN_ADDR", ":50061"),
		MediaStreamPath:      getEnv("MEDIA_STREAM_PATH", "/media-stream"),
		RealtimeURL:          getEnv("REALTIME_URL", "wss://api.openai.com/v1/realtime"),
		APIKey:               getEnv("OPENAI_API_KEY", ""),
		Model:                getEnv("REALTIME_MODEL", "gpt-realtime"),
		Voice:                getEnv("VOICE", "alloy"),
		Locale:               getEnv("LOCALE", "fr-FR"),
		Instructions:         getEnv("INSTRUCTIONS", DefaultInstructions),
		HandshakeTimeout:     getEnvDuration("HANDSHAKE_TIMEOUT", 5*time.Second),
		InboundBufferFrames:  getEnvInt("INBOUND_BUFFER_FRAMES", 50),
		OutboundBufferFrames: getEnvInt("OUTBOUND_BUFFER_FRAMES", 500),
		FramesPerResponse:    getEnvInt("FRAMES_PER_RESPONSE", 1),
		DrainGrace:           getEnvDuration("DRAIN_GRACE", 2*time.Second),
		PingInterval:         getEnvDuration("PING_INTERVAL", 10*time.Second),
		WriteTimeout:         getEnvDuration("WRITE_TIMEOUT", 2*time.Second),
		DialBreakerThreshold: getEnvInt("DIAL_BREAKER_THRESHOLD", 5),
		DialBreakerReset:     getEnvDuration("DIAL_BREAKER_RESET", 30*time.Second),
	}
}

// Validate reports the first setting that prevents sessions from reaching the realtime endpoint.
func (c *Config) Validate() error {
	switch {
	case c.APIKey == "":
		return apperrors.New(apperrors.CodeConfigMissing, "OPENAI_API_KEY is not set")
	case c.RealtimeURL == "":
		return apperrors.New(apperrors.CodeConfigMissing, "REALTIME_URL is not set")
	case c.Model == "":
		return apperrors.New(apperrors.CodeConfigMissing, "REALTIME_MODEL is not set")
	case c.InboundBufferFrames <= 0 || c.OutboundBufferFrames <= 0:
		return apperrors.New(apperrors.CodeInvalidArgument, "buffer sizes must be positive")
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		// Bare numbers are seconds
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return time.Duration(f * float64(time.Second))
		}
	}
	return def
}
