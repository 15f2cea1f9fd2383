// Package config loads settings from the environment, reading a .env file
// first when one exists.
package config

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Server    ServerConfig
	Signaling SignalingConfig
	ICE       ICEConfig
	Call      CallConfig
	LogLevel  zerolog.Level
}

type ServerConfig struct {
	Addr        string
	CORSOrigins []string
}

type SignalingConfig struct {
	// URL is the relay base address the agent dials, e.g. ws://localhost:8080.
	URL string
}

type ICEConfig struct {
	URLs              []string
	CandidatePoolSize uint8
}

type CallConfig struct {
	OtherPartyGrace time.Duration
}

const (
	defaultAddr      = ":8080"
	defaultSignaling = "ws://localhost:8080"
	defaultSTUN      = "stun:stun.l.google.com:19302,stun:stun1.l.google.com:19302"
	defaultPoolSize  = "10"
	defaultGrace     = "5s"
	defaultOrigins   = "http://localhost:3000,http://localhost:5173"
)

// Load reads the configuration. A missing .env file is not an error.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv builds a Config from the process environment only.
func FromEnv() (*Config, error) {
	pool, err := strconv.ParseUint(getEnv("ICE_CANDIDATE_POOL_SIZE", defaultPoolSize), 10, 8)
	if err != nil {
		return nil, fmt.Errorf("invalid ICE_CANDIDATE_POOL_SIZE: %w", err)
	}

	grace, err := time.ParseDuration(getEnv("OTHER_PARTY_GRACE", defaultGrace))
	if err != nil {
		return nil, fmt.Errorf("invalid OTHER_PARTY_GRACE: %w", err)
	}
	if grace <= 0 {
		return nil, fmt.Errorf("invalid OTHER_PARTY_GRACE: must be positive, got %s", grace)
	}

	level, err := zerolog.ParseLevel(strings.ToLower(getEnv("LOG_LEVEL", "info")))
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}

	iceURLs := splitList(getEnv("ICE_SERVERS", defaultSTUN))
	if len(iceURLs) == 0 {
		return nil, fmt.Errorf("ICE_SERVERS must list at least one STUN url")
	}

	return &Config{
		Server: ServerConfig{
			Addr:        getEnv("SERVER_ADDR", defaultAddr),
			CORSOrigins: splitList(getEnv("CORS_ORIGINS", defaultOrigins)),
		},
		Signaling: SignalingConfig{
			URL: getEnv("SIGNALING_URL", defaultSignaling),
		},
		ICE: ICEConfig{
			URLs:              iceURLs,
			CandidatePoolSize: uint8(pool),
		},
		Call: CallConfig{
			OtherPartyGrace: grace,
		},
		LogLevel: level,
	}, nil
}

// SetupLogger points the global logger at a console writer on out.
func SetupLogger(level zerolog.Level, out io.Writer) {
	zerolog.SetGlobalLevel(level)
	w := zerolog.ConsoleWriter{Out: out, TimeFormat: time.TimeOnly}
	log.Logger = zerolog.New(w).With().Timestamp().Caller().Logger()
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
