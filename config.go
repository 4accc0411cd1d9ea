package steward

import "time"

// Config holds configuration for the Steward engine.
type Config struct {
	// MaxTreeDepth is the maximum node ancestry depth walked during
	// permission resolution. Defaults to 100.
	MaxTreeDepth int `json:"max_tree_depth,omitempty"`

	// NotifyThrottle is the window inside which repeat notifications
	// for the same subject and recipient are suppressed.
	// Defaults to 24 hours. Zero disables throttling.
	NotifyThrottle time.Duration `json:"notify_throttle,omitempty"`

	// CacheTTL is the time-to-live for cached resolution results.
	// Zero means no caching.
	CacheTTL time.Duration `json:"cache_ttl,omitempty"`

	// BlockedEmailDomains lists domains rejected when inviting
	// unregistered members or registering users.
	BlockedEmailDomains []string `json:"blocked_email_domains,omitempty"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxTreeDepth:   100,
		NotifyThrottle: 24 * time.Hour,
	}
}
