// Package config parses process startup arguments into a Config, and sets
// up the process-wide structured logger. Argument shape is grounded on
// original_source/peer.py's parse_cli_args: positional peer_id/host/
// p2p_port/http_port/base_path, plus an optional trailing verbosity flag,
// translated from sys.argv handling into an explicit argv slice so it can
// be unit tested without touching os.Args.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"
)

// Defaults mirror the source's DEFAULT_* constants and spec.md §6's
// tunables table.
const (
	DefaultHost     = "localhost"
	DefaultP2PPort  = 8270
	DefaultHTTPPort = 8080
	DefaultBasePath = "./"

	// DefaultBootstrapEndpoint is the compiled-in well-known address every
	// new peer contacts once at startup, per spec.md §6.
	DefaultBootstrapEndpoint = "localhost:8270"

	DefaultPeerTimeout         = 60 * time.Second
	DefaultPeerCleanupInterval = 10 * time.Second
	DefaultGossipInterval      = 30 * time.Second
	DefaultGossipPeerCount     = 3
	DefaultNumFilesOnJoin      = 3
	DefaultSeenIDCacheCapacity = 10000
)

// SeenIDCacheCapacity bounds the gossip engine's seen-id LRU, per spec.md
// §9's production guidance (not an overridable tunable; 10^4 is the
// spec's own recommended order of magnitude).
const SeenIDCacheCapacity = DefaultSeenIDCacheCapacity

// Config is the fully parsed, validated startup configuration. The
// tunables are exposed as overridable fields (rather than bare constants)
// so tests can shrink timeouts and intervals without waiting out
// production-scale durations.
type Config struct {
	PeerID   string
	Host     string
	P2PPort  int
	HTTPPort int
	BasePath string
	Verbose  bool

	BootstrapEndpoint string

	PeerTimeout         time.Duration
	PeerCleanupInterval time.Duration
	GossipInterval      time.Duration
	GossipPeerCount     int
	NumFilesOnJoin      int
}

// Parse validates argv (not including the program name, i.e. os.Args[1:])
// against the positional peer_id/host/p2p_port/http_port/base_path shape,
// accepting an optional "--debug" or "--verbose" flag anywhere in argv as
// aliases for the same Verbose field, per SPEC_FULL.md's configuration
// note reconciling the source's --debug spelling with spec.md's "verbose"
// wording.
func Parse(argv []string) (*Config, error) {
	args := make([]string, 0, len(argv))
	verbose := false
	for _, a := range argv {
		if a == "--debug" || a == "--verbose" {
			verbose = true
			continue
		}
		args = append(args, a)
	}

	if len(args) < 1 || len(args) > 5 {
		return nil, fmt.Errorf("usage: gossipfs <peer_id> [host] [p2p_port] [http_port] [base_path]")
	}

	cfg := &Config{
		PeerID:            args[0],
		Host:              DefaultHost,
		P2PPort:           DefaultP2PPort,
		HTTPPort:          DefaultHTTPPort,
		BasePath:          DefaultBasePath,
		Verbose:           verbose,
		BootstrapEndpoint: DefaultBootstrapEndpoint,

		PeerTimeout:         DefaultPeerTimeout,
		PeerCleanupInterval: DefaultPeerCleanupInterval,
		GossipInterval:      DefaultGossipInterval,
		GossipPeerCount:     DefaultGossipPeerCount,
		NumFilesOnJoin:      DefaultNumFilesOnJoin,
	}

	if len(args) > 1 {
		cfg.Host = args[1]
	}
	if len(args) > 2 {
		p, err := strconv.Atoi(args[2])
		if err != nil {
			return nil, fmt.Errorf("p2p_port must be an integer: %w", err)
		}
		cfg.P2PPort = p
	}
	if len(args) > 3 {
		p, err := strconv.Atoi(args[3])
		if err != nil {
			return nil, fmt.Errorf("http_port must be an integer: %w", err)
		}
		cfg.HTTPPort = p
	}
	if len(args) > 4 {
		cfg.BasePath = args[4]
	}

	return cfg, nil
}

// NewLogger builds the process-wide slog.Logger, text-handler at Info level
// normally and Debug level when Verbose is set, matching the source's
// DEBUG_ENABLED gate on its debug() helper but structured rather than a
// bare print prefix.
func (c *Config) NewLogger() *slog.Logger {
	level := slog.LevelInfo
	if c.Verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return slog.New(handler).With("peer", c.PeerID)
}
