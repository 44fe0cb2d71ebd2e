// Package config loads relay configuration from environment variables with
// optional .env support.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the relay hub process.
type Config struct {
	// HTTP bind settings
	BindAddr         string
	PortCandidates   []string
	PortAutoFallback bool

	// CDP connection settings
	CDPAddress    string
	CDPPort       int
	LaunchBrowser bool
	ProfileDir    string
	StartURL      string

	// Relay behavior
	RelayMode          string
	ProbeIntervalSec   int
	ExternalTimeoutSec int

	// Detached surface URLs and geometry
	PopoutURL      string
	TrackingURL    string
	PopoutWidth    int
	PopoutHeight   int
	TrackingWidth  int
	TrackingHeight int

	// Persistence
	StateDir          string
	ChannelConfigPath string

	// Logging
	LogLevel string
	LogFile  string
}

// Load reads configuration from environment variables and optional .env file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	cfg := &Config{
		BindAddr:         getEnvOrDefault("PORTHUB_BIND_ADDR", "127.0.0.1:8177"),
		PortCandidates:   getEnvListOrDefault("PORTHUB_BIND_CANDIDATES", []string{"127.0.0.1:8177", "127.0.0.1:8178", "127.0.0.1:8179"}),
		PortAutoFallback: getEnvBoolOrDefault("PORTHUB_PORT_AUTO_FALLBACK", true),

		CDPAddress:    getEnvOrDefault("CHROMIUM_CDP_ADDRESS", "127.0.0.1"),
		CDPPort:       getEnvIntOrDefault("CHROMIUM_CDP_PORT", 9220),
		LaunchBrowser: getEnvBoolOrDefault("PORTHUB_LAUNCH_BROWSER", false),
		ProfileDir:    getEnvOrDefault("PORTHUB_PROFILE_DIR", "./browser_profile"),
		StartURL:      getEnvOrDefault("PORTHUB_START_URL", "about:blank"),

		RelayMode:          strings.ToLower(getEnvOrDefault("PORTHUB_RELAY_MODE", "multitab")),
		ProbeIntervalSec:   getEnvIntOrDefault("PORTHUB_PROBE_INTERVAL_SEC", 25),
		ExternalTimeoutSec: getEnvIntOrDefault("PORTHUB_EXTERNAL_TIMEOUT_SEC", 10),

		PopoutURL:      getEnvOrDefault("PORTHUB_POPOUT_URL", "http://127.0.0.1:8177/popout"),
		TrackingURL:    getEnvOrDefault("PORTHUB_TRACKING_URL", "http://127.0.0.1:8177/tracking"),
		PopoutWidth:    getEnvIntOrDefault("PORTHUB_POPOUT_WIDTH", 420),
		PopoutHeight:   getEnvIntOrDefault("PORTHUB_POPOUT_HEIGHT", 640),
		TrackingWidth:  getEnvIntOrDefault("PORTHUB_TRACKING_WIDTH", 960),
		TrackingHeight: getEnvIntOrDefault("PORTHUB_TRACKING_HEIGHT", 720),

		StateDir:          getEnvOrDefault("PORTHUB_STATE_DIR", "./state"),
		ChannelConfigPath: getEnvOrDefault("PORTHUB_CHANNEL_CONFIG", ""),

		LogLevel: strings.ToLower(getEnvOrDefault("PORTHUB_LOG_LEVEL", "info")),
		LogFile:  getEnvOrDefault("PORTHUB_LOG_FILE", "logs/porthub.log"),
	}

	if cfg.ProbeIntervalSec < 1 {
		cfg.ProbeIntervalSec = 1
	}
	if cfg.ExternalTimeoutSec < 1 {
		cfg.ExternalTimeoutSec = 1
	}
	return cfg, nil
}

// CDPURL returns the full CDP HTTP endpoint used by the chromedp remote
// allocator.
func (c *Config) CDPURL() string {
	return fmt.Sprintf("http://%s:%d", c.CDPAddress, c.CDPPort)
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvIntOrDefault(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBoolOrDefault(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvListOrDefault(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
