package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/voicenotes/backend/internal/database"
	"github.com/spf13/viper"
)

const (
	envPrefix             = "VOICENOTES"
	defaultHTTPAddress    = "0.0.0.0:8080"
	defaultDatabaseDriver = database.DriverSQLite
	defaultDatabasePath   = "voicenotes.db"
	defaultAudioDir       = "audio"
	defaultMaxUploadMB    = 25
	defaultGeminiModel    = "gemini-2.5-flash"
	defaultGeminiBaseURL  = "https://generativelanguage.googleapis.com"
	defaultGeminiTimeout  = 120
	defaultLogLevel       = "info"
	defaultLogFormat      = "json"
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress    string
	DatabaseDriver string
	DatabasePath   string
	DatabaseDSN    string
	AudioDir       string
	MaxUploadBytes int64
	GeminiAPIKey   string
	GeminiModel    string
	GeminiBaseURL  string
	GeminiTimeout  time.Duration
	AllowedOrigins []string
	LogLevel       string
	LogFormat      string
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
	configViper.SetDefault("database.driver", defaultDatabaseDriver)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("database.dsn", "")
	configViper.SetDefault("storage.audio_dir", defaultAudioDir)
	configViper.SetDefault("audio.max_upload_mb", defaultMaxUploadMB)
	configViper.SetDefault("gemini.model", defaultGeminiModel)
	configViper.SetDefault("gemini.base_url", defaultGeminiBaseURL)
	configViper.SetDefault("gemini.timeout_seconds", defaultGeminiTimeout)
	configViper.SetDefault("cors.allowed_origins", []string{"*"})
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("log.format", defaultLogFormat)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:    configViper.GetString("http.address"),
		DatabaseDriver: strings.ToLower(strings.TrimSpace(configViper.GetString("database.driver"))),
		DatabasePath:   configViper.GetString("database.path"),
		DatabaseDSN:    configViper.GetString("database.dsn"),
		AudioDir:       configViper.GetString("storage.audio_dir"),
		MaxUploadBytes: configViper.GetInt64("audio.max_upload_mb") << 20,
		GeminiAPIKey:   configViper.GetString("gemini.api_key"),
		GeminiModel:    configViper.GetString("gemini.model"),
		GeminiBaseURL:  strings.TrimRight(configViper.GetString("gemini.base_url"), "/"),
		GeminiTimeout:  time.Duration(configViper.GetInt("gemini.timeout_seconds")) * time.Second,
		AllowedOrigins: configViper.GetStringSlice("cors.allowed_origins"),
		LogLevel:       configViper.GetString("log.level"),
		LogFormat:      configViper.GetString("log.format"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	switch c.DatabaseDriver {
	case database.DriverSQLite:
		if strings.TrimSpace(c.DatabasePath) == "" {
			return fmt.Errorf("database.path is required")
		}
	case database.DriverPostgres:
		if strings.TrimSpace(c.DatabaseDSN) == "" {
			return fmt.Errorf("database.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("database.driver %q is not supported", c.DatabaseDriver)
	}
	if strings.TrimSpace(c.AudioDir) == "" {
		return fmt.Errorf("storage.audio_dir is required")
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("audio.max_upload_mb must be positive")
	}
	if strings.TrimSpace(c.GeminiAPIKey) == "" {
		return fmt.Errorf("gemini.api_key is required")
	}
	if strings.TrimSpace(c.GeminiModel) == "" {
		return fmt.Errorf("gemini.model is required")
	}
	if c.GeminiTimeout <= 0 {
		return fmt.Errorf("gemini.timeout_seconds must be positive")
	}
	return nil
}
