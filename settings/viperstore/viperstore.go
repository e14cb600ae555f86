// Package viperstore provides a SettingsStore backed by viper, reading an
// optional config file with SHARELINK_* environment overrides.
package viperstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/viper"

	"github.com/ineyio/sharelink"
)

// EnvPrefix is the prefix of environment overrides, e.g. SHARELINK_GROQ_API_KEY.
const EnvPrefix = "SHARELINK"

// keys lists every settings key so env overrides work without a config file.
var keys = []string{
	"ai_provider",
	"groq_api_key",
	"groq_model",
	"openrouter_api_key",
	"openrouter_model",
	"summary_language",
	"summary_max_length",
	"slack_webhook_url",
	"show_ai",
	"show_qr",
}

// Store is a viper-backed sharelink.SettingsStore.
type Store struct {
	mu sync.Mutex
	v  *viper.Viper
}

var _ sharelink.SettingsStore = (*Store)(nil)

// New creates a Store. configPath may be empty, in which case the working
// directory and $HOME/.sharelink are searched for sharelink.yaml; a missing
// file is not an error.
func New(configPath string) (*Store, error) {
	v := viper.New()

	v.SetConfigName("sharelink")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.sharelink")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	for _, k := range keys {
		if err := v.BindEnv(k); err != nil {
			return nil, fmt.Errorf("sharelink/viperstore: bind env %s: %w", k, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("sharelink/viperstore: read config: %w", err)
		}
	}

	return &Store{v: v}, nil
}

// Settings decodes the current values and validates them.
func (s *Store) Settings(context.Context) (sharelink.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out sharelink.Settings
	if err := s.v.Unmarshal(&out); err != nil {
		return sharelink.Settings{}, fmt.Errorf("sharelink/viperstore: unmarshal: %w", err)
	}
	if err := out.Validate(); err != nil {
		return sharelink.Settings{}, err
	}
	return out, nil
}

// SetProvider overrides the stored provider choice for this process.
func (s *Store) SetProvider(p sharelink.ProviderName) error {
	if !p.Valid() {
		return fmt.Errorf("%w: %q", sharelink.ErrUnknownProvider, p)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.v.Set("ai_provider", string(p))
	return nil
}

// ConfigFile returns the file the settings were read from, if any.
func (s *Store) ConfigFile() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.v.ConfigFileUsed()
}
