// Package config loads settings from a TOML file with environment
// variable overrides. Environment variables win, so a .env file or
// deployment environment can override anything the file sets.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// GoogleConfig holds Google Calendar OAuth client settings.
type GoogleConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
}

// MicrosoftConfig holds Microsoft Graph OAuth client settings.
type MicrosoftConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	TenantID     string `toml:"tenant_id"`
}

// CalDAVConfig holds CalDAV server settings.
type CalDAVConfig struct {
	ServerURL string `toml:"server_url"`
	Username  string `toml:"username"`
	Password  string `toml:"password"`
}

// LLMConfig holds completion service settings.
type LLMConfig struct {
	APIKey         string `toml:"api_key"`
	Model          string `toml:"model"`
	BaseURL        string `toml:"base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// SpeechConfig holds speech-to-text service settings.
type SpeechConfig struct {
	Model string `toml:"model"`
}

// Config is the full application configuration.
type Config struct {
	DBPath    string          `toml:"db_path"`
	LogLevel  string          `toml:"log_level"`
	Google    GoogleConfig    `toml:"google"`
	Microsoft MicrosoftConfig `toml:"microsoft"`
	CalDAV    CalDAVConfig    `toml:"caldav"`
	LLM       LLMConfig       `toml:"llm"`
	Speech    SpeechConfig    `toml:"speech"`
}

// LLMTimeout returns the bounded timeout for a single completion call.
func (c *Config) LLMTimeout() time.Duration {
	if c.LLM.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.LLM.TimeoutSeconds) * time.Second
}

// Load reads the config file at path (missing file is not an error; the
// environment alone may be enough), applies environment overrides, and
// fills defaults.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err == nil {
			if err := toml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	applyEnv(&cfg)

	if cfg.DBPath == "" {
		cfg.DBPath = "calagent.db"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "gpt-4o"
	}
	if cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Speech.Model == "" {
		cfg.Speech.Model = "whisper-1"
	}
	if cfg.Microsoft.TenantID == "" {
		cfg.Microsoft.TenantID = "common"
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.DBPath, "CALAGENT_DB_PATH")
	setString(&cfg.LogLevel, "LOG_LEVEL")

	setString(&cfg.Google.ClientID, "GOOGLE_CLIENT_ID")
	setString(&cfg.Google.ClientSecret, "GOOGLE_CLIENT_SECRET")

	setString(&cfg.Microsoft.ClientID, "MS_CLIENT_ID")
	setString(&cfg.Microsoft.ClientSecret, "MS_CLIENT_SECRET")
	setString(&cfg.Microsoft.TenantID, "MS_TENANT_ID")

	setString(&cfg.CalDAV.ServerURL, "CALDAV_SERVER_URL")
	setString(&cfg.CalDAV.Username, "CALDAV_USERNAME")
	setString(&cfg.CalDAV.Password, "CALDAV_PASSWORD")

	setString(&cfg.LLM.APIKey, "OPENAI_API_KEY")
	setString(&cfg.LLM.Model, "OPENAI_MODEL_NAME")
	setString(&cfg.LLM.BaseURL, "OPENAI_BASE_URL")
	if v := os.Getenv("LLM_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.LLM.TimeoutSeconds = n
		}
	}

	setString(&cfg.Speech.Model, "WHISPER_MODEL")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
