package config

import "time"

// Config holds engine tunables.
type Config struct {
	DatabasePath     string        `mapstructure:"database_path" yaml:"database_path"`
	LogLevel         string        `mapstructure:"log_level" yaml:"log_level"`
	DoubleTapWindow  time.Duration `mapstructure:"double_tap_window" yaml:"double_tap_window"`
	TypingIdleWindow time.Duration `mapstructure:"typing_idle_window" yaml:"typing_idle_window"`
	TypingExpiry     time.Duration `mapstructure:"typing_expiry" yaml:"typing_expiry"`
	PinLimit         int           `mapstructure:"pin_limit" yaml:"pin_limit"`
	FeedBuffer       int           `mapstructure:"feed_buffer" yaml:"feed_buffer"`
	MessageWindow    int           `mapstructure:"message_window" yaml:"message_window"`
	ResyncTimeout    time.Duration `mapstructure:"resync_timeout" yaml:"resync_timeout"`

	// FeedURL switches the engine from the in-process feed to the remote
	// change-feed endpoint when set.
	FeedURL string `mapstructure:"feed_url" yaml:"feed_url"`
	// FeedToken is the opaque credential for the remote feed.
	FeedToken string `mapstructure:"feed_token" yaml:"feed_token"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		DatabasePath:     "roomstate.db",
		LogLevel:         "info",
		DoubleTapWindow:  300 * time.Millisecond,
		TypingIdleWindow: 3 * time.Second,
		TypingExpiry:     4 * time.Second,
		PinLimit:         50,
		FeedBuffer:       16,
		MessageWindow:    200,
		ResyncTimeout:    10 * time.Second,
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.DatabasePath != "" {
		c.DatabasePath = other.DatabasePath
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.DoubleTapWindow != 0 {
		c.DoubleTapWindow = other.DoubleTapWindow
	}
	if other.TypingIdleWindow != 0 {
		c.TypingIdleWindow = other.TypingIdleWindow
	}
	if other.TypingExpiry != 0 {
		c.TypingExpiry = other.TypingExpiry
	}
	if other.PinLimit != 0 {
		c.PinLimit = other.PinLimit
	}
	if other.FeedBuffer != 0 {
		c.FeedBuffer = other.FeedBuffer
	}
	if other.MessageWindow != 0 {
		c.MessageWindow = other.MessageWindow
	}
	if other.ResyncTimeout != 0 {
		c.ResyncTimeout = other.ResyncTimeout
	}
	if other.FeedURL != "" {
		c.FeedURL = other.FeedURL
	}
	if other.FeedToken != "" {
		c.FeedToken = other.FeedToken
	}
}
