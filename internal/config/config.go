// Package config loads server configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/microsandbox/microsandbox/internal/portalloc"
)

// Config holds all configuration for the microsandbox server.
type Config struct {
	Port     int    // HTTP port the RPC dispatcher listens on
	APIKey   string // optional bearer key for the pluggable auth layer
	LogLevel string

	Home string // $MICROSANDBOX_HOME, root of persisted state

	PortMin int // lower bound of the portal port pool
	PortMax int // upper bound of the portal port pool

	PortalGuestPort int // fixed guest-side port the portal listens on inside every VM

	FirecrackerBin string // path to the VMM binary (default: "firecracker")
	KernelPath     string // path to the guest kernel image
	ImagesDir      string // path to base rootfs images

	DefaultSandboxMemoryMB int
	DefaultSandboxCPUs     int

	ReadinessTimeoutReuseSec int // readiness poll timeout when no image pull is implied
	ReadinessTimeoutPullSec  int // readiness poll timeout when an image may need pulling
}

// Load reads configuration from environment variables with sensible
// defaults, following the env-var-with-fallback idiom used throughout this
// codebase (see envOrDefault/envOrDefaultInt below).
func Load() (*Config, error) {
	home := envOrDefault("MICROSANDBOX_HOME", defaultHome())

	cfg := &Config{
		Port:     envOrDefaultInt("MSB_PORT", 8080),
		APIKey:   os.Getenv("MSB_API_KEY"),
		LogLevel: envOrDefault("MSB_LOG_LEVEL", "info"),

		Home: home,

		PortMin: envOrDefaultInt("MSB_PORT_MIN", portalloc.DefaultMin),
		PortMax: envOrDefaultInt("MSB_PORT_MAX", portalloc.DefaultMax),

		PortalGuestPort: envOrDefaultInt("MSB_PORTAL_GUEST_PORT", 4444),

		FirecrackerBin: envOrDefault("MSB_VMM_BIN", "firecracker"),
		KernelPath:     envOrDefault("MSB_KERNEL_PATH", filepath.Join(home, "vmlinux")),
		ImagesDir:      envOrDefault("MSB_IMAGES_DIR", filepath.Join(home, "images")),

		DefaultSandboxMemoryMB: envOrDefaultInt("MSB_DEFAULT_MEMORY_MIB", 1024),
		DefaultSandboxCPUs:     envOrDefaultInt("MSB_DEFAULT_CPUS", 1),

		ReadinessTimeoutReuseSec: envOrDefaultInt("MSB_READINESS_TIMEOUT_REUSE_SEC", 60),
		ReadinessTimeoutPullSec:  envOrDefaultInt("MSB_READINESS_TIMEOUT_PULL_SEC", 180),
	}

	if cfg.PortMin >= cfg.PortMax {
		return nil, fmt.Errorf("MSB_PORT_MIN (%d) must be less than MSB_PORT_MAX (%d)", cfg.PortMin, cfg.PortMax)
	}

	return cfg, nil
}

func defaultHome() string {
	if dir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(dir, ".microsandbox")
	}
	return "/var/lib/microsandbox"
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
