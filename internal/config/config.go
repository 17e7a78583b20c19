package config

import (
	"errors"
	"fmt"
	"time"

	"chatctl/internal/llm"

	"github.com/spf13/viper"
)

type Config struct {
	LLM     LLMConfig     `mapstructure:"llm"`
	History HistoryConfig `mapstructure:"history"`
	Log     LogConfig     `mapstructure:"log"`
}

type LLMConfig struct {
	URL              string        `mapstructure:"url"`
	Model            string        `mapstructure:"model"`
	Token            string        `mapstructure:"token"`
	Temperature      float64       `mapstructure:"temperature"`
	TopP             float64       `mapstructure:"top_p"`
	PresencePenalty  float64       `mapstructure:"presence_penalty"`
	FrequencyPenalty float64       `mapstructure:"frequency_penalty"`
	MaxTokens        int           `mapstructure:"max_tokens"`
	Stream           bool          `mapstructure:"stream"`
	ContextMessages  int           `mapstructure:"context_messages"`
	Retry            RetryConfig   `mapstructure:"retry"`
	Timeout          time.Duration `mapstructure:"timeout"`
}

type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	Delay       time.Duration `mapstructure:"delay"`
}

type HistoryConfig struct {
	// Path is a directory of JSON sessions, or a SQLite file ending in .db.
	Path string `mapstructure:"path"`
	Name string `mapstructure:"name"`
}

type LogConfig struct {
	Verbose bool `mapstructure:"verbose"`
}

// SetDefaults registers the client defaults on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("llm.url", llm.DefaultBaseURL)
	v.SetDefault("llm.model", llm.DefaultModel)
	v.SetDefault("llm.token", "")
	v.SetDefault("llm.temperature", llm.DefaultTemperature)
	v.SetDefault("llm.top_p", llm.DefaultTopP)
	v.SetDefault("llm.presence_penalty", 0.0)
	v.SetDefault("llm.frequency_penalty", 0.0)
	v.SetDefault("llm.max_tokens", 0)
	v.SetDefault("llm.stream", true)
	v.SetDefault("llm.context_messages", llm.DefaultContextMessages)
	v.SetDefault("llm.retry.max_attempts", llm.DefaultMaxRetries)
	v.SetDefault("llm.retry.delay", llm.DefaultRetryDelay)
	v.SetDefault("llm.timeout", 2*time.Minute)
	v.SetDefault("history.path", "")
	v.SetDefault("history.name", "default")
	v.SetDefault("log.verbose", false)
}

func Load() (Config, error) {
	return LoadFrom(viper.GetViper())
}

func LoadFrom(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	l := c.LLM
	if !(l.Temperature >= 0 && l.Temperature <= 2) {
		errs = append(errs, fmt.Errorf("invalid llm.temperature: %v", l.Temperature))
	}
	if !(l.TopP > 0 && l.TopP <= 1) {
		errs = append(errs, fmt.Errorf("invalid llm.top_p: %v", l.TopP))
	}
	if !(l.PresencePenalty >= -2 && l.PresencePenalty <= 2) {
		errs = append(errs, fmt.Errorf("invalid llm.presence_penalty: %v", l.PresencePenalty))
	}
	if !(l.FrequencyPenalty >= -2 && l.FrequencyPenalty <= 2) {
		errs = append(errs, fmt.Errorf("invalid llm.frequency_penalty: %v", l.FrequencyPenalty))
	}
	if l.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("invalid llm.max_tokens: %d", l.MaxTokens))
	}
	if l.ContextMessages < 0 {
		errs = append(errs, fmt.Errorf("invalid llm.context_messages: %d", l.ContextMessages))
	}
	if l.Retry.MaxAttempts < 0 {
		errs = append(errs, fmt.Errorf("invalid llm.retry.max_attempts: %d", l.Retry.MaxAttempts))
	}
	if l.Retry.Delay < 0 {
		errs = append(errs, fmt.Errorf("invalid llm.retry.delay: %s", l.Retry.Delay))
	}
	if l.Timeout < 0 {
		errs = append(errs, fmt.Errorf("invalid llm.timeout: %s", l.Timeout))
	}
	return errors.Join(errs...)
}

// Apply copies the configured settings onto c.
func (l LLMConfig) Apply(c *llm.Conversation) error {
	if l.Model != "" {
		if err := c.SetModel(l.Model); err != nil {
			return err
		}
	}
	if l.URL != "" {
		if err := c.SetBaseURL(l.URL); err != nil {
			return err
		}
	}
	if err := c.SetTemperature(l.Temperature); err != nil {
		return err
	}
	if err := c.SetTopP(l.TopP); err != nil {
		return err
	}
	if err := c.SetPresencePenalty(l.PresencePenalty); err != nil {
		return err
	}
	if err := c.SetFrequencyPenalty(l.FrequencyPenalty); err != nil {
		return err
	}
	if err := c.SetMaxTokens(l.MaxTokens); err != nil {
		return err
	}
	if err := c.SetContextMessages(l.ContextMessages); err != nil {
		return err
	}
	if err := c.SetRetryConfig(l.Retry.MaxAttempts, l.Retry.Delay); err != nil {
		return err
	}
	c.SetStreaming(l.Stream)
	return nil
}
