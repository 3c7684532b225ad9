package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Config is the root configuration for the capture orchestrator.
type Config struct {
	General  GeneralConfig  `json:"general"`
	Server   ServerConfig   `json:"server"`
	Channels ChannelsConfig `json:"channels"`
	LLM      LLMConfig      `json:"llm"`
	Photos   PhotosConfig   `json:"photos"`
	Publish  PublishConfig  `json:"publish"`
	Store    StoreConfig    `json:"store"`
}

type GeneralConfig struct {
	LogLevel string `json:"logLevel"`
	LogFile  string `json:"logFile,omitempty"`
	DataDir  string `json:"dataDir"`
}

// ServerConfig configures the HTTP server hosting webhooks and the API.
type ServerConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

type ChannelsConfig struct {
	WhatsApp WhatsAppConfig `json:"whatsapp"`
	Callbell CallbellConfig `json:"callbell"`
	Telegram TelegramConfig `json:"telegram"`
}

type WhatsAppConfig struct {
	Enabled       bool   `json:"enabled"`
	AppSecret     string `json:"appSecret,omitempty"`
	AccessToken   string `json:"accessToken,omitempty"`
	VerifyToken   string `json:"verifyToken,omitempty"`
	PhoneNumberID string `json:"phoneNumberId,omitempty"`
	WebhookPath   string `json:"webhookPath,omitempty"`
}

type CallbellConfig struct {
	Enabled     bool   `json:"enabled"`
	APIBase     string `json:"apiBase,omitempty"`
	APIKey      string `json:"apiKey,omitempty"`
	WebhookPath string `json:"webhookPath,omitempty"`
}

type TelegramConfig struct {
	Enabled bool   `json:"enabled"`
	Token   string `json:"token"`
}

// LLMConfig configures the extraction/response model and the transcriber.
type LLMConfig struct {
	APIBase      string `json:"apiBase"`
	APIKey       string `json:"apiKey"`
	Model        string `json:"model"`
	WhisperModel string `json:"whisperModel"`
	Language     string `json:"language"`
}

// PhotosConfig configures the photo studio collaborator and curation limits.
// An empty endpoint selects the passthrough studio.
type PhotosConfig struct {
	StudioEndpoint string `json:"studioEndpoint,omitempty"`
	StudioAPIKey   string `json:"studioApiKey,omitempty"`
	MaxPerCategory int    `json:"maxPerCategory"`
	MaxTotal       int    `json:"maxTotal"`
}

type PublishConfig struct {
	DestinationsDir string `json:"destinationsDir"`
	PlacesEndpoint  string `json:"placesEndpoint,omitempty"`
	PlacesAPIKey    string `json:"placesApiKey,omitempty"`
}

// StoreConfig selects the capture persistence backend.
type StoreConfig struct {
	Backend string `json:"backend"` // "memory" | "sqlite"
	DBPath  string `json:"dbPath,omitempty"`
}

// DefaultConfigDir returns the default config directory (~/.papaia).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".papaia"
	}
	return filepath.Join(home, ".papaia")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	cfg.General.DataDir = ExpandPath(cfg.General.DataDir)
	cfg.General.LogFile = ExpandPath(cfg.General.LogFile)
	cfg.Store.DBPath = ExpandPath(cfg.Store.DBPath)
	cfg.Publish.DestinationsDir = ExpandPath(cfg.Publish.DestinationsDir)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match // Keep original if no env var and no default
		}
		return val
	})
}

func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 0 and 65535")
	}

	switch cfg.General.LogLevel {
	case "", "debug", "info", "warn", "error":
		// valid
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}

	switch cfg.Store.Backend {
	case "memory":
	case "sqlite":
		if cfg.Store.DBPath == "" {
			errs = append(errs, "store.dbPath is required for the sqlite backend")
		}
	default:
		errs = append(errs, "store.backend must be one of: memory, sqlite")
	}

	if cfg.Channels.WhatsApp.Enabled {
		if cfg.Channels.WhatsApp.AccessToken == "" || cfg.Channels.WhatsApp.PhoneNumberID == "" {
			errs = append(errs, "channels.whatsapp: accessToken and phoneNumberId are required when enabled")
		}
	}
	if cfg.Channels.Callbell.Enabled && cfg.Channels.Callbell.APIKey == "" {
		errs = append(errs, "channels.callbell: apiKey is required when enabled")
	}
	if cfg.Channels.Telegram.Enabled && cfg.Channels.Telegram.Token == "" {
		errs = append(errs, "channels.telegram: token is required when enabled")
	}

	if cfg.Photos.MaxPerCategory < 1 {
		errs = append(errs, "photos.maxPerCategory must be >= 1")
	}
	if cfg.Photos.MaxTotal < 1 {
		errs = append(errs, "photos.maxTotal must be >= 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
