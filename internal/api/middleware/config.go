// Package middleware provides HTTP middleware components for the event-ingestion API.
package middleware

import (
	"time"

	"github.com/correlator-io/eventd/internal/config"
)

// Config holds rate limiter configuration.
//
// Rate limits specify requests per second (RPS) for three tiers:
//   - Global: applied to all requests
//   - Per-client: applied once a client IP is known
//   - Unknown-client: applied when no client IP could be derived
//
// Burst capacity allows temporary bursts above sustained rate.
// If burst fields are 0, they are computed automatically as 2 × rate.
type Config struct {
	// Rate limits (requests per second)
	GlobalRPS  int // Default: 500
	ClientRPS  int // Default: 50
	UnknownRPS int // Default: 10

	// Optional burst capacity overrides (0 = compute automatically as 2 × rate) using computeBurstCapacity()
	GlobalBurst  int // Default: 0 (computed as 2 × GlobalRPS)
	ClientBurst  int // Default: 0 (computed as 2 × ClientRPS)
	UnknownBurst int // Default: 0 (computed as 2 × UnknownRPS)

	// Memory cleanup configuration
	CleanupInterval time.Duration // Default: 5 minutes
	IdleTimeout     time.Duration // Default: 1 hour
	MaxClients      int           // Default: 10,000
}

// LoadConfig loads middleware config from environment variables with fallback to defaults.
//
// Default burst capacity: 2 × rate (allows 2-second burst)
// Default cleanup: every 5 minutes, removes clients idle >1 hour
// Default max clients: 10,000 (prevents unbounded memory growth).
func LoadConfig() *Config {
	return &Config{
		// Rate limits
		GlobalRPS:  config.GetEnvInt("EVENTD_GLOBAL_RPS", defaultGlobalRPS),
		ClientRPS:  config.GetEnvInt("EVENTD_CLIENT_RPS", defaultClientRPS),
		UnknownRPS: config.GetEnvInt("EVENTD_UNKNOWN_RPS", defaultUnknownRPS),

		// Burst overrides (0 = auto-compute)
		GlobalBurst:  config.GetEnvInt("EVENTD_GLOBAL_BURST", 0),
		ClientBurst:  config.GetEnvInt("EVENTD_CLIENT_BURST", 0),
		UnknownBurst: config.GetEnvInt("EVENTD_UNKNOWN_BURST", 0),

		// Cleanup configuration
		CleanupInterval: config.GetEnvDuration(
			"EVENTD_RATE_LIMIT_CLEANUP_INTERVAL", rateLimiterCleanupInterval,
		),
		IdleTimeout: config.GetEnvDuration("EVENTD_RATE_LIMIT_IDLE_TIMEOUT", rateLimiterIdleTimeout),
		MaxClients:  config.GetEnvInt("EVENTD_RATE_LIMIT_MAX_CLIENTS", maxClients),
	}
}
