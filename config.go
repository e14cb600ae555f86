package sharelink

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Default prompt parameters.
const (
	DefaultSummaryLanguage  = "Japanese"
	DefaultSummaryMaxLength = 200
)

// Settings is the stored key-value configuration shared by every dispatch.
type Settings struct {
	AIProvider       ProviderName `yaml:"ai_provider" mapstructure:"ai_provider"`
	GroqAPIKey       string       `yaml:"groq_api_key" mapstructure:"groq_api_key"`
	GroqModel        string       `yaml:"groq_model" mapstructure:"groq_model"`
	OpenRouterAPIKey string       `yaml:"openrouter_api_key" mapstructure:"openrouter_api_key"`
	OpenRouterModel  string       `yaml:"openrouter_model" mapstructure:"openrouter_model"`
	SummaryLanguage  string       `yaml:"summary_language" mapstructure:"summary_language"`
	SummaryMaxLength int          `yaml:"summary_max_length" mapstructure:"summary_max_length"`
	SlackWebhookURL  string       `yaml:"slack_webhook_url" mapstructure:"slack_webhook_url"`

	// Nil means shown.
	ShowAI *bool `yaml:"show_ai" mapstructure:"show_ai"`
	ShowQR *bool `yaml:"show_qr" mapstructure:"show_qr"`
}

// Provider returns the stored provider choice or the default.
func (s Settings) Provider() ProviderName {
	if s.AIProvider == "" {
		return DefaultProvider
	}
	return s.AIProvider
}

// APIKey returns the stored key for p.
func (s Settings) APIKey(p ProviderName) string {
	if p == ProviderOpenRouter {
		return s.OpenRouterAPIKey
	}
	return s.GroqAPIKey
}

// Model returns the stored model for p, or the provider's default.
func (s Settings) Model(p ProviderName) string {
	m := s.GroqModel
	if p == ProviderOpenRouter {
		m = s.OpenRouterModel
	}
	if m == "" {
		return p.DefaultModel()
	}
	return m
}

// Language returns the summary language, defaulting to Japanese.
func (s Settings) Language() string {
	if s.SummaryLanguage == "" {
		return DefaultSummaryLanguage
	}
	return s.SummaryLanguage
}

// MaxLength returns the summary length limit, defaulting to 200.
func (s Settings) MaxLength() int {
	if s.SummaryMaxLength <= 0 {
		return DefaultSummaryMaxLength
	}
	return s.SummaryMaxLength
}

func (s Settings) AIVisible() bool { return s.ShowAI == nil || *s.ShowAI }
func (s Settings) QRVisible() bool { return s.ShowQR == nil || *s.ShowQR }

// LoadConfig reads and parses a YAML settings file.
// Environment variables in the format ${VAR} are expanded before parsing.
func LoadConfig(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("sharelink: read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var s Settings
	if err := yaml.Unmarshal([]byte(expanded), &s); err != nil {
		return Settings{}, fmt.Errorf("sharelink: parse config: %w", err)
	}

	if err := s.Validate(); err != nil {
		return Settings{}, err
	}

	return s, nil
}

// Validate checks the settings for consistency. Missing keys are not an
// error here; they only fail the dispatch that needs them.
func (s Settings) Validate() error {
	if s.AIProvider != "" && !s.AIProvider.Valid() {
		return fmt.Errorf("sharelink: config: ai_provider: %w: %q", ErrUnknownProvider, s.AIProvider)
	}
	if s.SummaryMaxLength < 0 {
		return fmt.Errorf("sharelink: config: summary_max_length must not be negative, got %d", s.SummaryMaxLength)
	}
	return nil
}

// SettingsStore returns the current stored settings.
type SettingsStore interface {
	Settings(ctx context.Context) (Settings, error)
}

// StaticSettings is a SettingsStore that always returns the same settings.
type StaticSettings Settings

var _ SettingsStore = StaticSettings{}

func (s StaticSettings) Settings(context.Context) (Settings, error) {
	return Settings(s), nil
}

// BoolPtr returns a pointer to the given bool.
func BoolPtr(v bool) *bool { return &v }
