// Package config loads the proxy's environment-variable driven configuration
// (spec section 6) and applies the documented defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Default boundary for the numeric-block "old era routes to primary"
// refinement applied by pkg/proxy's router (forcePrimaryForOldBlock) via
// DolosPool.BlockBoundary. Preserved verbatim from
// the original deployment's constant.
const defaultDolosBlockBoundary = 4490510

// Config holds every environment-variable-derived setting the proxy needs.
type Config struct {
	ProxyAddr      string
	ProxyNamespace string

	TiersPath         string
	TiersPollInterval int // seconds

	PrometheusAddr string

	SSLCrtPath string
	SSLKeyPath string

	Blockfrost UpstreamPool
	Dolos      DolosPool

	CacheRulesPath          string
	CacheDBPath             string
	CacheFailedRequestsSecs int
	CacheMaxSizeBytes       int64

	ForbiddenEndpoints []string

	Logging Logging

	// AuditLogPath enables the optional SQLite request-audit log
	// (SPEC_FULL.md section 4 supplement) when non-empty.
	AuditLogPath string
}

// UpstreamPool identifies the primary blockfrost-style upstream pool.
type UpstreamPool struct {
	Port uint16
	DNS  string
}

// DolosPool identifies the alternate upstream pool, gated by Enabled.
type DolosPool struct {
	Enabled       bool
	Port          uint16
	DNS           string
	Endpoints     []string
	BlockBoundary int64
}

// Logging controls the ambient slog-based logger.
type Logging struct {
	Level  string
	Format string
}

// Load reads and validates configuration from the process environment.
func Load() (*Config, error) {
	cfg := &Config{}

	var missing []string
	req := func(name string) string {
		v := os.Getenv(name)
		if v == "" {
			missing = append(missing, name)
		}
		return v
	}

	cfg.ProxyAddr = req("PROXY_ADDR")
	cfg.ProxyNamespace = req("PROXY_NAMESPACE")
	cfg.TiersPath = req("PROXY_TIERS_PATH")
	cfg.PrometheusAddr = req("PROMETHEUS_ADDR")
	cfg.SSLCrtPath = req("SSL_CRT_PATH")
	cfg.SSLKeyPath = req("SSL_KEY_PATH")
	cfg.CacheRulesPath = req("CACHE_RULES_PATH")
	cfg.CacheDBPath = req("CACHE_DB_PATH")

	blockfrostPort := req("BLOCKFROST_PORT")
	cfg.Blockfrost.DNS = req("BLOCKFROST_DNS")

	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	port, err := strconv.ParseUint(blockfrostPort, 10, 16)
	if err != nil {
		return nil, fmt.Errorf("BLOCKFROST_PORT must be a number: %w", err)
	}
	cfg.Blockfrost.Port = uint16(port)

	cfg.TiersPollInterval = envInt("PROXY_TIERS_POLL_INTERVAL", 2)
	cfg.CacheFailedRequestsSecs = envInt("CACHE_FAILED_REQUESTS_SECONDS", 20)
	cfg.CacheMaxSizeBytes = envInt64("CACHE_MAX_SIZE_BYTES", 3_000_000)

	cfg.ForbiddenEndpoints = splitNonEmpty(os.Getenv("FORBIDDEN_ENDPOINTS"))

	cfg.Dolos.Enabled = envBool("DOLOS_ENABLED", false)
	if cfg.Dolos.Enabled {
		dolosPort := os.Getenv("DOLOS_PORT")
		cfg.Dolos.DNS = os.Getenv("DOLOS_DNS")
		if dolosPort == "" || cfg.Dolos.DNS == "" {
			return nil, fmt.Errorf("DOLOS_PORT and DOLOS_DNS must be set when DOLOS_ENABLED=true")
		}
		p, err := strconv.ParseUint(dolosPort, 10, 16)
		if err != nil {
			return nil, fmt.Errorf("DOLOS_PORT must be a number: %w", err)
		}
		cfg.Dolos.Port = uint16(p)
		cfg.Dolos.Endpoints = splitNonEmpty(os.Getenv("DOLOS_ENDPOINTS"))
	}
	cfg.Dolos.BlockBoundary = envInt64("DOLOS_BLOCK_BOUNDARY", defaultDolosBlockBoundary)

	cfg.Logging.Level = envString("LOG_LEVEL", "info")
	cfg.Logging.Format = envString("LOG_FORMAT", "text")

	cfg.AuditLogPath = os.Getenv("AUDIT_LOG_PATH")

	return cfg, nil
}

func envString(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}

func envInt(name string, def int) int {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envInt64(name string, def int64) int64 {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envBool(name string, def bool) bool {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
