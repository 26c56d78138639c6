// Package config loads process configuration from the environment and the
// hot-reloadable JSON settings file that carries credential material.
package config

import (
	"fmt"
	"time"

	"github.com/joeshaw/envdecode"
)

// Env is the environment-driven configuration, fixed for the process
// lifetime.
type Env struct {
	// ListenAddr is the HTTP bind address.
	ListenAddr string `env:"NOTEMCP_LISTEN_ADDR,default=127.0.0.1:16806"`

	// KernelURL and KernelToken locate the knowledge-base kernel API.
	KernelURL   string `env:"NOTEMCP_KERNEL_URL,default=http://127.0.0.1:6806"`
	KernelToken string `env:"NOTEMCP_KERNEL_TOKEN"`

	// SettingsPath is the JSON settings file watched for changes.
	SettingsPath string `env:"NOTEMCP_SETTINGS_PATH,default=settings.json"`

	// DataDir holds the indexing queue cache and audit log files.
	DataDir string `env:"NOTEMCP_DATA_DIR,default=data"`

	// SessionIdleTimeout is how long a session may sit idle before the
	// reaper removes it.
	SessionIdleTimeout time.Duration `env:"NOTEMCP_SESSION_IDLE_TIMEOUT,default=5m"`
	// ReaperInterval is how often the reaper sweeps.
	ReaperInterval time.Duration `env:"NOTEMCP_REAPER_INTERVAL,default=10m"`

	LogLevel string `env:"NOTEMCP_LOG_LEVEL,default=info"`
}

// LoadEnv decodes the environment into an Env.
func LoadEnv() (*Env, error) {
	var e Env
	if err := envdecode.Decode(&e); err != nil {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	return &e, nil
}
