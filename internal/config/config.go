// Package config manages Fibre node configuration using koanf/v2.
//
// Supports compiled-in defaults, YAML files, and environment variables.
package config

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/fibrefabric/fibre/internal/domain"
)

// -------------------------------------------------------------------------
// Configuration Structures
// -------------------------------------------------------------------------

// Config holds the complete fibre-node configuration.
type Config struct {
	Domain    DomainConfig    `koanf:"domain"`
	Transport TransportConfig `koanf:"transport"`
	Discovery DiscoveryConfig `koanf:"discovery"`
	Metrics   MetricsConfig   `koanf:"metrics"`
	Admin     AdminConfig     `koanf:"admin"`
	Log       LogConfig       `koanf:"log"`
}

// DomainConfig holds the local Domain directory's identity and pool
// sizing.
type DomainConfig struct {
	// NodeIDSeed, if non-empty, deterministically derives this process's
	// NodeId from the given string (sha256-truncated to 16 bytes) —
	// useful for reproducible test fixtures. Empty means generate a fresh
	// random NodeId at startup.
	NodeIDSeed string `koanf:"node_id_seed"`

	// AllowHeap mirrors spec.md §5's compile-time allow_heap flag as a
	// runtime switch. This module only ever allocates call and slot state
	// on the Go heap (see DESIGN.md) — AllowHeap=false is accepted but
	// rejected by Validate, since no pool-backed allocation path exists
	// to fall back to.
	AllowHeap bool `koanf:"allow_heap"`

	MaxNodes                 int `koanf:"max_nodes"`
	MaxServerConnections     int `koanf:"max_server_connections"`
	MaxClientConnections     int `koanf:"max_client_connections"`
	InputSlotsPerConnection  int `koanf:"input_slots_per_connection"`
	OutputSlotsPerConnection int `koanf:"output_slots_per_connection"`
}

// ResolveNodeID returns the NodeId this config's NodeIDSeed names, or a
// freshly generated random NodeId if NodeIDSeed is empty.
func (dc DomainConfig) ResolveNodeID() (domain.NodeId, error) {
	if dc.NodeIDSeed == "" {
		return domain.NewNodeId()
	}
	sum := sha256.Sum256([]byte(dc.NodeIDSeed))
	var id domain.NodeId
	copy(id[:], sum[:16])
	return id, nil
}

// TransportConfig holds the sample UDP FrameStreamSink's settings.
type TransportConfig struct {
	// Addr is the UDP bind address (e.g., ":7000").
	Addr string `koanf:"addr"`
	// Interface optionally binds the socket to a named interface via
	// SO_BINDTODEVICE (Linux only; empty means unbound).
	Interface string `koanf:"interface"`
	// MTU bounds the largest packet this transport will send.
	MTU int `koanf:"mtu"`
}

// DiscoveryConfig selects and configures a discovery Backend.
type DiscoveryConfig struct {
	// Backend names the discovery backend: "static" or "dbus".
	Backend string `koanf:"backend"`
	// Spec is an opaque key=value spec string passed through to the
	// named Backend unmodified, per spec.md §6.
	Spec string `koanf:"spec"`
}

// MetricsConfig holds the Prometheus metrics endpoint configuration.
type MetricsConfig struct {
	// Addr is the HTTP listen address for the metrics endpoint (e.g., ":9100").
	Addr string `koanf:"addr"`
	// Path is the URL path for the metrics endpoint (e.g., "/metrics").
	Path string `koanf:"path"`
}

// AdminConfig holds the read-only introspection HTTP endpoint
// configuration. This listens on its own address, separate from
// MetricsConfig.Addr, since both are plain net/http servers a node runs
// side by side.
type AdminConfig struct {
	// Addr is the HTTP listen address for the admin endpoint (e.g., ":9101").
	Addr string `koanf:"addr"`
}

// LogConfig holds the logging configuration.
type LogConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `koanf:"level"`
	// Format is the log output format: "json" or "text".
	Format string `koanf:"format"`
}

// -------------------------------------------------------------------------
// Defaults
// -------------------------------------------------------------------------

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Domain: DomainConfig{
			AllowHeap:                true,
			MaxNodes:                 16,
			MaxServerConnections:     3,
			MaxClientConnections:     3,
			InputSlotsPerConnection:  1,
			OutputSlotsPerConnection: 4,
		},
		Transport: TransportConfig{
			Addr: ":7000",
			MTU:  1472, // typical Ethernet MTU minus IPv4+UDP headers
		},
		Discovery: DiscoveryConfig{
			Backend: "static",
		},
		Metrics: MetricsConfig{
			Addr: ":9100",
			Path: "/metrics",
		},
		Admin: AdminConfig{
			Addr: ":9101",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// -------------------------------------------------------------------------
// Loader
// -------------------------------------------------------------------------

// envPrefix is the environment variable prefix for Fibre configuration.
// Variables are named FIBRE_<section>__<key>, e.g., FIBRE_TRANSPORT__ADDR.
const envPrefix = "FIBRE_"

// Load reads configuration from a YAML file at path, overlays environment
// variable overrides (FIBRE_ prefix), and merges on top of DefaultConfig().
// Missing fields inherit defaults. An empty path skips the file layer
// entirely, leaving defaults plus any environment overrides — the mode
// cmd/fibre-node uses, since its CLI surface carries no --config flag.
//
// Environment variable mapping:
//
//	FIBRE_DOMAIN__NODE_ID_SEED   -> domain.node_id_seed
//	FIBRE_TRANSPORT__ADDR       -> transport.addr
//	FIBRE_DISCOVERY__BACKEND    -> discovery.backend
//	FIBRE_METRICS__ADDR         -> metrics.addr
//	FIBRE_LOG__LEVEL            -> log.level
//
// Uses koanf/v2 with file + env providers and YAML parser.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	defaults := DefaultConfig()
	if err := loadDefaults(k, defaults); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config from %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKeyMapper), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config from %s: %w", path, err)
	}

	return cfg, nil
}

// envKeyMapper transforms FIBRE_TRANSPORT__ADDR -> transport.addr.
// Strips the FIBRE_ prefix, lowercases, and replaces __ with .
func envKeyMapper(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	s = strings.ToLower(s)
	return strings.ReplaceAll(s, "__", ".")
}

// loadDefaults marshals the default config into koanf as the base layer.
func loadDefaults(k *koanf.Koanf, defaults *Config) error {
	defaultMap := map[string]any{
		"domain.node_id_seed":                defaults.Domain.NodeIDSeed,
		"domain.allow_heap":                  strconv.FormatBool(defaults.Domain.AllowHeap),
		"domain.max_nodes":                   defaults.Domain.MaxNodes,
		"domain.max_server_connections":      defaults.Domain.MaxServerConnections,
		"domain.max_client_connections":      defaults.Domain.MaxClientConnections,
		"domain.input_slots_per_connection":  defaults.Domain.InputSlotsPerConnection,
		"domain.output_slots_per_connection": defaults.Domain.OutputSlotsPerConnection,
		"transport.addr":                     defaults.Transport.Addr,
		"transport.interface":                defaults.Transport.Interface,
		"transport.mtu":                      defaults.Transport.MTU,
		"discovery.backend":                  defaults.Discovery.Backend,
		"discovery.spec":                     defaults.Discovery.Spec,
		"metrics.addr":                       defaults.Metrics.Addr,
		"metrics.path":                       defaults.Metrics.Path,
		"admin.addr":                         defaults.Admin.Addr,
		"log.level":                          defaults.Log.Level,
		"log.format":                         defaults.Log.Format,
	}

	for key, val := range defaultMap {
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}

	return nil
}

// -------------------------------------------------------------------------
// Validation
// -------------------------------------------------------------------------

// Validation errors.
var (
	// ErrNoPoolAllocator indicates AllowHeap was set to false; this
	// module has no pool-backed allocation path to honor that with.
	ErrNoPoolAllocator = errors.New("domain.allow_heap=false is not supported: no pool allocator is implemented")

	// ErrInvalidMaxNodes indicates the node table capacity is non-positive.
	ErrInvalidMaxNodes = errors.New("domain.max_nodes must be >= 1")

	// ErrInvalidMaxConnections indicates a connection table capacity is non-positive.
	ErrInvalidMaxConnections = errors.New("domain.max_server_connections and domain.max_client_connections must be >= 1")

	// ErrEmptyTransportAddr indicates the transport bind address is empty.
	ErrEmptyTransportAddr = errors.New("transport.addr must not be empty")

	// ErrInvalidMTU indicates the transport MTU is too small to carry a
	// LowLevelProtocol header plus at least one byte of payload.
	ErrInvalidMTU = errors.New("transport.mtu must be >= 16")

	// ErrInvalidDiscoveryBackend indicates an unrecognized discovery backend name.
	ErrInvalidDiscoveryBackend = errors.New("discovery.backend must be static or dbus")

	// ErrEmptyMetricsAddr indicates the metrics listen address is empty.
	ErrEmptyMetricsAddr = errors.New("metrics.addr must not be empty")

	// ErrEmptyAdminAddr indicates the admin listen address is empty.
	ErrEmptyAdminAddr = errors.New("admin.addr must not be empty")
)

// ValidDiscoveryBackends lists the recognized discovery backend names.
var ValidDiscoveryBackends = map[string]bool{
	"static": true,
	"dbus":   true,
}

// Validate checks the configuration for logical errors.
// Returns the first validation error encountered.
func Validate(cfg *Config) error {
	if !cfg.Domain.AllowHeap {
		return ErrNoPoolAllocator
	}
	if cfg.Domain.MaxNodes < 1 {
		return ErrInvalidMaxNodes
	}
	if cfg.Domain.MaxServerConnections < 1 || cfg.Domain.MaxClientConnections < 1 {
		return ErrInvalidMaxConnections
	}
	if cfg.Transport.Addr == "" {
		return ErrEmptyTransportAddr
	}
	if cfg.Transport.MTU < 16 {
		return ErrInvalidMTU
	}
	if !ValidDiscoveryBackends[cfg.Discovery.Backend] {
		return fmt.Errorf("discovery.backend %q: %w", cfg.Discovery.Backend, ErrInvalidDiscoveryBackend)
	}
	if cfg.Metrics.Addr == "" {
		return ErrEmptyMetricsAddr
	}
	if cfg.Admin.Addr == "" {
		return ErrEmptyAdminAddr
	}
	return nil
}

// -------------------------------------------------------------------------
// Log Level Parsing
// -------------------------------------------------------------------------

// ParseLogLevel maps a configuration log level string to the corresponding
// slog.Level. Unknown values default to slog.LevelInfo.
//
// Recognized values: "debug", "info", "warn", "error" (case-insensitive).
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
