package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultAddr is used when --host or --client is given without an address.
const DefaultAddr = "localhost:3000"

type AppConfig struct {
	// DisplayName is sent to the peer during negotiation.
	DisplayName string

	// NegotiationTimeout bounds the handshake wait on both sides.
	NegotiationTimeout time.Duration

	// InboundQueueSize caps the link's decoded-packet channel.
	InboundQueueSize int

	// TickInterval drives the coordinator update loop.
	TickInterval time.Duration
}

// fileConfig mirrors the optional YAML file pointed at by NETCHESS_CONFIG.
type fileConfig struct {
	DisplayName           string `yaml:"display_name"`
	NegotiationTimeoutSec int    `yaml:"negotiation_timeout_sec"`
	InboundQueueSize      int    `yaml:"inbound_queue_size"`
	TickIntervalMs        int    `yaml:"tick_interval_ms"`
}

// Load builds the config from defaults, then the YAML file if present, then
// NETCHESS_* environment overrides.
func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		NegotiationTimeout: 30 * time.Second,
		InboundQueueSize:   32,
		TickInterval:       16 * time.Millisecond,
	}

	if path := strings.TrimSpace(os.Getenv("NETCHESS_CONFIG")); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		var fc fileConfig
		if err := yaml.Unmarshal(raw, &fc); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
		applyFile(cfg, &fc)
	}

	if v := strings.TrimSpace(os.Getenv("NETCHESS_NAME")); v != "" {
		cfg.DisplayName = v
	}
	if v := strings.TrimSpace(os.Getenv("NETCHESS_NEGOTIATION_TIMEOUT")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.NegotiationTimeout = time.Duration(n) * time.Second
		}
	}
	if v := strings.TrimSpace(os.Getenv("NETCHESS_QUEUE_SIZE")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.InboundQueueSize = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("NETCHESS_TICK_MS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.TickInterval = time.Duration(n) * time.Millisecond
		}
	}

	return cfg, nil
}

func applyFile(cfg *AppConfig, fc *fileConfig) {
	if s := strings.TrimSpace(fc.DisplayName); s != "" {
		cfg.DisplayName = s
	}
	if fc.NegotiationTimeoutSec > 0 {
		cfg.NegotiationTimeout = time.Duration(fc.NegotiationTimeoutSec) * time.Second
	}
	if fc.InboundQueueSize > 0 {
		cfg.InboundQueueSize = fc.InboundQueueSize
	}
	if fc.TickIntervalMs > 0 {
		cfg.TickInterval = time.Duration(fc.TickIntervalMs) * time.Millisecond
	}
}
