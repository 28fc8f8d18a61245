package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/BugisoftRSG/subathon-timer/internal/timer"
	"gopkg.in/yaml.v3"
)

// Config holds all runtime configuration for the subathon timer service.
type Config struct {
	// Channel is the Twitch channel whose chat is ingested.
	Channel string `yaml:"channel"`
	// Token is the OAuth token used to authenticate with Twitch chat.
	// When empty the service connects anonymously (read-only), which is
	// enough to receive subs, cheers and commands.
	Token string `yaml:"twitch_token"`
	// Admins are the chat usernames allowed to issue timer commands.
	Admins []string `yaml:"admins"`
	// Port the HTTP/WebSocket server listens on.
	Port int `yaml:"port"`
	// Database is the path of the SQLite database file.
	Database string `yaml:"database"`
	// PublicDir is the directory of static overlay assets.
	PublicDir string `yaml:"public_dir"`

	Time TimeConfig `yaml:"time"`
}

// TimeConfig holds the baseline seconds-per-sub and the per-kind multipliers.
type TimeConfig struct {
	BaseValue   float64           `yaml:"base_value"`
	Multipliers timer.Multipliers `yaml:"multipliers"`
}

// DefaultConfig returns the configuration used when a field is absent from
// the config file.
func DefaultConfig() *Config {
	return &Config{
		Port:      8080,
		Database:  "data.db",
		PublicDir: "public",
		Time: TimeConfig{
			BaseValue: 60,
			Multipliers: timer.Multipliers{
				Tier1:    1.0,
				Tier2:    2.0,
				Tier3:    5.0,
				Bits:     1.0,
				Donation: 1.0,
			},
		},
	}
}

// Load reads the YAML config file at path and applies environment overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	config.applyEnv()

	if config.Channel == "" {
		return nil, fmt.Errorf("config is missing required field: channel")
	}

	return config, nil
}

// applyEnv overrides file values with environment variables so secrets can
// stay out of the config file.
func (c *Config) applyEnv() {
	c.Channel = getEnv("TWITCH_CHANNEL", c.Channel)
	c.Token = getEnv("TWITCH_TOKEN", c.Token)
	c.Port = getEnvAsInt("PORT", c.Port)
	c.Database = getEnv("DATABASE_PATH", c.Database)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
