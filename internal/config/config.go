// Package config provides application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Prefix is prepended to every environment variable name.
const Prefix = "DRIVEHEALTH"

// Settings holds all application configuration.
type Settings struct {
	// Application metadata
	Version   string `envconfig:"VERSION" default:"0.3.0"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"console"` // console or json

	// Input
	SmartDir      string `envconfig:"SMART_DIR" default:"/var/lib/smartmontools"`
	DeviceMapFile string `envconfig:"DEVICE_MAP"`
	AutoDiscover  bool   `envconfig:"AUTO_DISCOVER" default:"false"`
	Workers       int    `envconfig:"WORKERS" default:"4"`

	// Remote host. Empty SSHHost analyzes this machine.
	SSHHost        string        `envconfig:"SSH_HOST"`
	SSHUser        string        `envconfig:"SSH_USER" default:"root"`
	SSHPort        int           `envconfig:"SSH_PORT" default:"22"`
	SSHKeyFile     string        `envconfig:"SSH_KEY_FILE"`
	SSHKnownHosts  string        `envconfig:"SSH_KNOWN_HOSTS"`
	SSHInsecure    bool          `envconfig:"SSH_INSECURE" default:"false"`
	SSHMaxSessions int           `envconfig:"SSH_MAX_SESSIONS" default:"8"`
	SSHDialTimeout time.Duration `envconfig:"SSH_DIAL_TIMEOUT" default:"10s"`

	// Timeouts
	CommandTimeout time.Duration `envconfig:"COMMAND_TIMEOUT" default:"15s"`
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"60s"`

	// Circuit breaker around the remote host
	BreakerThreshold int           `envconfig:"BREAKER_THRESHOLD" default:"3"`
	BreakerTimeout   time.Duration `envconfig:"BREAKER_TIMEOUT" default:"1m"`

	// API server settings
	APIHost         string        `envconfig:"API_HOST" default:"0.0.0.0"`
	APIPort         int           `envconfig:"API_PORT" default:"9108"`
	RefreshInterval time.Duration `envconfig:"REFRESH_INTERVAL" default:"15m"`
}

// ListenAddr returns the address string for the HTTP server to bind to.
func (s *Settings) ListenAddr() string {
	return fmt.Sprintf("%s:%d", s.APIHost, s.APIPort)
}

// Validate rejects settings the commands cannot run with.
func (s *Settings) Validate() error {
	switch {
	case s.Workers < 1:
		return fmt.Errorf("%s_WORKERS must be at least 1, got %d", Prefix, s.Workers)
	case s.APIPort < 1 || s.APIPort > 65535:
		return fmt.Errorf("%s_API_PORT out of range: %d", Prefix, s.APIPort)
	case s.SSHPort < 1 || s.SSHPort > 65535:
		return fmt.Errorf("%s_SSH_PORT out of range: %d", Prefix, s.SSHPort)
	case s.CommandTimeout <= 0:
		return fmt.Errorf("%s_COMMAND_TIMEOUT must be positive", Prefix)
	case s.LogFormat != "console" && s.LogFormat != "json":
		return fmt.Errorf("%s_LOG_FORMAT must be console or json, got %q", Prefix, s.LogFormat)
	}
	return nil
}

var (
	cfg  *Settings
	once sync.Once
)

// Get returns the singleton Settings instance.
func Get() *Settings {
	once.Do(func() {
		s, err := Load()
		if err != nil {
			panic(fmt.Sprintf("failed to load config: %v", err))
		}
		cfg = s
	})
	return cfg
}

// Load creates a new Settings instance from environment variables. A
// dotenv file (DRIVEHEALTH_ENV_FILE, default .env) is read first when it
// exists; variables already set in the environment win.
func Load() (*Settings, error) {
	envFile := os.Getenv(Prefix + "_ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read %s: %w", envFile, err)
	}

	s := &Settings{}
	if err := envconfig.Process(Prefix, s); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}
