// Package config reads the per-deployment environment configuration named
// in spec.md §6.6 and derives the subscription-token salt from a master
// secret rather than accepting a raw salt value.
package config

import (
	"crypto/sha256"
	"fmt"
	"hash"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/hkdf"
)

func newSHA256() hash.Hash { return sha256.New() }

// Config holds the environment-derived settings shared by the command
// processor, process manager, and async projector runner.
type Config struct {
	// AllowedOrigins is the CSV ALLOWED_ORIGINS list (CORS is an external
	// collaborator per spec.md §1; this core only carries the value
	// through to whatever HTTP layer wires it in).
	AllowedOrigins []string

	// AuthEnabled is loaded from AUTH_ENABLED (default true). No component
	// reads it: the command handlers authorize every command regardless.
	AuthEnabled bool

	// TokenSalt is the derived subscription-token salt (see DeriveSalt).
	TokenSalt string

	// AlarmBatchDelay is how long the per-aggregate alarm waits before
	// firing a queued-effect/async-projection catch-up cycle.
	AlarmBatchDelay time.Duration

	// ProjectorBatchSize is the max events an async projector cycle loads
	// per call to EventStore.LoadAllEvents (spec.md §4.6 default 100).
	ProjectorBatchSize int

	// MaxRetries is the default max retry count for failed effects
	// (spec.md §4.5 default 3).
	MaxRetries int
}

// Defaults mirror the spec's stated defaults.
const (
	DefaultProjectorBatchSize = 100
	DefaultMaxRetries         = 3
	DefaultAlarmBatchDelay    = time.Second
)

// Load reads configuration from the process environment. masterSecret and
// deploymentID feed DeriveSalt; cmd/labourctl takes the master secret from
// --master-secret or the MASTER_SECRET env var.
func Load(masterSecret, deploymentID string) (*Config, error) {
	cfg := &Config{
		AllowedOrigins:     splitCSV(os.Getenv("ALLOWED_ORIGINS")),
		AuthEnabled:        true,
		AlarmBatchDelay:    DefaultAlarmBatchDelay,
		ProjectorBatchSize: DefaultProjectorBatchSize,
		MaxRetries:         DefaultMaxRetries,
	}

	if v := os.Getenv("AUTH_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid AUTH_ENABLED value %q: %w", v, err)
		}
		cfg.AuthEnabled = enabled
	}

	if v := os.Getenv("PROJECTOR_BATCH_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid PROJECTOR_BATCH_SIZE value %q: %w", v, err)
		}
		cfg.ProjectorBatchSize = n
	}

	if v := os.Getenv("MAX_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid MAX_RETRIES value %q: %w", v, err)
		}
		cfg.MaxRetries = n
	}

	if v := os.Getenv("ALARM_BATCH_DELAY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid ALARM_BATCH_DELAY value %q: %w", v, err)
		}
		cfg.AlarmBatchDelay = d
	}

	salt, err := DeriveSalt(masterSecret, deploymentID)
	if err != nil {
		return nil, fmt.Errorf("failed to derive token salt: %w", err)
	}
	cfg.TokenSalt = salt

	return cfg, nil
}

// DeriveSalt derives a deployment-scoped subscription-token salt from a
// master secret via HKDF-SHA256, so the salt can be rotated by rotating the
// master secret without touching already-issued tokens for a stable
// deploymentID (spec.md §9: "treat the salt as a secret but not as a
// security boundary").
func DeriveSalt(masterSecret, deploymentID string) (string, error) {
	if masterSecret == "" {
		return "", fmt.Errorf("master secret is required")
	}

	reader := hkdf.New(newSHA256, []byte(masterSecret), []byte(deploymentID), []byte("fern-labour-subscription-token-salt"))

	out := make([]byte, 32)
	if _, err := io.ReadFull(reader, out); err != nil {
		return "", fmt.Errorf("hkdf expand failed: %w", err)
	}

	return fmt.Sprintf("%x", out), nil
}

func splitCSV(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
