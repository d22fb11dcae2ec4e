package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix              = "ROOMSYNC"
	defaultHTTPAddress     = "0.0.0.0:8080"
	defaultDatabasePath    = "roomsync.db"
	defaultLogLevel        = "info"
	defaultLogFormat       = "json"
	defaultHistoryLimit    = 25
	maxHistoryLimit        = 100
	defaultRelayURL        = "http://127.0.0.1:8080"
	defaultLocalPath       = "roomsync-local.db"
	defaultApp             = "seating"
	defaultRoom            = "main"
	defaultSyncTimeout     = 10 * time.Second
	defaultAllowedOrigins  = "*"
	allowedOriginSeparator = ","
)

// RelayConfig captures runtime configuration for the room relay server.
type RelayConfig struct {
	HTTPAddress    string
	DatabasePath   string
	LogLevel       string
	LogFormat      string
	AllowedOrigins []string
	HistoryLimit   int
}

// ClientConfig captures runtime configuration for headless app clients.
type ClientConfig struct {
	RelayURL    string
	LocalPath   string
	App         string
	Room        string
	SyncTimeout time.Duration
	LogLevel    string
	LogFormat   string
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("log.format", defaultLogFormat)
	configViper.SetDefault("cors.allowed_origins", defaultAllowedOrigins)
	configViper.SetDefault("history.limit", defaultHistoryLimit)

	configViper.SetDefault("relay.url", defaultRelayURL)
	configViper.SetDefault("local.path", defaultLocalPath)
	configViper.SetDefault("app", defaultApp)
	configViper.SetDefault("room", defaultRoom)
	configViper.SetDefault("sync.timeout", defaultSyncTimeout)
}

// LoadRelay parses relay configuration from viper.
func LoadRelay(configViper *viper.Viper) (RelayConfig, error) {
	cfg := RelayConfig{
		HTTPAddress:    configViper.GetString("http.address"),
		DatabasePath:   configViper.GetString("database.path"),
		LogLevel:       configViper.GetString("log.level"),
		LogFormat:      configViper.GetString("log.format"),
		AllowedOrigins: splitOrigins(configViper.GetString("cors.allowed_origins")),
		HistoryLimit:   configViper.GetInt("history.limit"),
	}

	if err := cfg.validate(); err != nil {
		return RelayConfig{}, err
	}

	return cfg, nil
}

// LoadClient parses client configuration from viper.
func LoadClient(configViper *viper.Viper) (ClientConfig, error) {
	cfg := ClientConfig{
		RelayURL:    strings.TrimSpace(configViper.GetString("relay.url")),
		LocalPath:   strings.TrimSpace(configViper.GetString("local.path")),
		App:         strings.ToLower(strings.TrimSpace(configViper.GetString("app"))),
		Room:        configViper.GetString("room"),
		SyncTimeout: configViper.GetDuration("sync.timeout"),
		LogLevel:    configViper.GetString("log.level"),
		LogFormat:   configViper.GetString("log.format"),
	}

	if err := cfg.validate(); err != nil {
		return ClientConfig{}, err
	}

	return cfg, nil
}

func (c RelayConfig) validate() error {
	if strings.TrimSpace(c.HTTPAddress) == "" {
		return fmt.Errorf("http.address is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if len(c.AllowedOrigins) == 0 {
		return fmt.Errorf("cors.allowed_origins is required")
	}
	if c.HistoryLimit < 1 || c.HistoryLimit > maxHistoryLimit {
		return fmt.Errorf("history.limit must be between 1 and %d", maxHistoryLimit)
	}
	return nil
}

func (c ClientConfig) validate() error {
	if c.LocalPath == "" {
		return fmt.Errorf("local.path is required")
	}
	if c.App == "" {
		return fmt.Errorf("app is required")
	}
	if c.SyncTimeout <= 0 {
		return fmt.Errorf("sync.timeout must be positive")
	}
	return nil
}

func splitOrigins(raw string) []string {
	parts := strings.Split(raw, allowedOriginSeparator)
	origins := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}
