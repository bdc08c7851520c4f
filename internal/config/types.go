package config

import (
	"errors"
	"fmt"
	"strings"
)

// Config is the full startup configuration.
//
// All durations are Go duration strings (e.g. "500ms", "15m", "24h").
type Config struct {
	Twitter  TwitterConfig  `json:"twitter"`
	Telegram TelegramConfig `json:"telegram"`
	Radar    RadarConfig    `json:"radar"`
	Storage  StorageConfig  `json:"storage,omitempty"`
	Logging  LoggingConfig  `json:"logging"`
}

type TwitterConfig struct {
	BearerToken string `json:"bearer_token"`

	// Backoff is the wait between retries when the API answers 429.
	// Defaults to "15m".
	Backoff string `json:"backoff,omitempty"`

	// RatePerSec paces outbound API requests. Defaults to 5.
	RatePerSec int `json:"rate_per_sec,omitempty"`

	// BaseURL overrides the API endpoint (tests only).
	BaseURL string `json:"base_url,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`

	// ChannelID is the chat where follow announcements are posted.
	ChannelID int64 `json:"channel_id"`

	// PollTimeout is a Go duration string (e.g. "10s").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

// RadarConfig controls the follow-watch loop.
type RadarConfig struct {
	// Targets are the watched account handles. Immutable for the process
	// lifetime; changing them requires a restart.
	Targets []string `json:"targets"`

	// Schedule accepts a cron expression ("0 9 * * *", "@daily") or a
	// fixed interval ("24h"). Defaults to "24h".
	Schedule string `json:"schedule,omitempty"`
}

// StorageConfig controls the persistence layer.
//
// Driver values:
//   - "file": dependency-free JSON snapshot backend
//   - "sqlite": SQLite database file (build tag "sqlite")
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// Validate rejects configs the process cannot start (or hot-reload) with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Twitter.BearerToken) == "" {
		return errors.New("twitter.bearer_token is required")
	}
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return errors.New("telegram.token is required")
	}
	if c.Telegram.ChannelID == 0 {
		return errors.New("telegram.channel_id is required")
	}
	if len(c.Radar.Targets) == 0 {
		return errors.New("radar.targets must list at least one account")
	}
	for i, t := range c.Radar.Targets {
		if strings.TrimSpace(t) == "" {
			return fmt.Errorf("radar.targets[%d] is empty", i)
		}
	}
	if _, err := ParseDurationField("twitter.backoff", c.Twitter.Backoff); err != nil {
		return err
	}
	if _, err := ParseDurationField("telegram.poll_timeout", c.Telegram.PollTimeout); err != nil {
		return err
	}
	if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
		return err
	}
	return nil
}
