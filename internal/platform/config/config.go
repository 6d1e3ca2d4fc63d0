package config

import (
	"os"
	"time"
)

// Server captures process level configuration.
type Server struct {
	Addr     string
	RedisURL string
	CRM      CRM
	Engine   Engine
}

// CRM holds connection settings for the CRM account.
type CRM struct {
	Token  string
	BaseV1 string
	BaseV2 string
}

// Engine holds the compiled-in tunables of the classification engine.
// Defaults mirror the request policy the CRM tolerates; override them only
// when you know the account's rate limits.
type Engine struct {
	RequestTimeout     time.Duration
	MaxRetries         int
	RetryBaseDelay     time.Duration
	Throttle           time.Duration // pacing between paced CRM calls
	DeepOrgDetailLimit int           // detail fetches per inconclusive email
	CheckLeads         bool
	ViewportOnly       bool // restrict linking and anchor work to visible elements
	ActiveTabOnly      bool // pause scans while the host reports hidden
	PersistDelay       time.Duration
	ScanTimeout        time.Duration // 0 disables the per-scan deadline
}

// DefaultEngine returns the stock tunables.
func DefaultEngine() Engine {
	return Engine{
		RequestTimeout:     10 * time.Second,
		MaxRetries:         2,
		RetryBaseDelay:     800 * time.Millisecond,
		Throttle:           250 * time.Millisecond,
		DeepOrgDetailLimit: 6,
		CheckLeads:         true,
		ViewportOnly:       true,
		ActiveTabOnly:      true,
		PersistDelay:       30 * time.Second,
	}
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	addr := os.Getenv("CRMSCAN_ADDR")
	if addr == "" {
		addr = "127.0.0.1:8873"
	}
	return Server{
		Addr:     addr,
		RedisURL: os.Getenv("CRMSCAN_REDIS_URL"),
		CRM: CRM{
			Token:  os.Getenv("CRM_API_TOKEN"),
			BaseV1: envOr("CRM_API_BASE_V1", "https://api.pipedrive.com/v1"),
			BaseV2: envOr("CRM_API_BASE_V2", "https://api.pipedrive.com/api/v2"),
		},
		Engine: DefaultEngine(),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
