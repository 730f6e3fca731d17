package config

import (
	"os"
	"strings"
	"sync"

	"github.com/spf13/viper"
)

// Settings holds the reconciliation tunables loaded from config/matching.yaml.
// Every key can be overridden with a RECON_* env var (RECON_MATCHING_FUZZY_THRESHOLD etc).
type Settings struct {
	Matching struct {
		ExactWindowDays int  `mapstructure:"exact_window_days"`
		FuzzyWindowDays int  `mapstructure:"fuzzy_window_days"`
		FuzzyThreshold  int  `mapstructure:"fuzzy_threshold"`
		AutoAccept      bool `mapstructure:"auto_accept"`
	} `mapstructure:"matching"`

	Headcount struct {
		Threshold int `mapstructure:"threshold"`
	} `mapstructure:"headcount"`

	Classifier struct {
		BaseURL           string `mapstructure:"base_url"`
		Model             string `mapstructure:"model"`
		MaxRetries        int    `mapstructure:"max_retries"`
		RequestsPerMinute int    `mapstructure:"requests_per_minute"`
		TimeoutSeconds    int    `mapstructure:"timeout_seconds"`
	} `mapstructure:"classifier"`

	Data struct {
		Dir string `mapstructure:"dir"`
	} `mapstructure:"data"`
}

var (
	settings     Settings
	settingsOnce sync.Once
)

func GetSettings() Settings {
	settingsOnce.Do(func() {
		path := strings.TrimSpace(os.Getenv("MATCHING_CONFIG"))
		if path == "" {
			path = "config/matching.yaml"
		}
		s, err := LoadSettings(path)
		if err != nil {
			GetLogger().WithField("path", path).Warn("matching config not loaded; using defaults")
		}
		settings = s
	})
	return settings
}

// LoadSettings reads the yaml file at path. A missing file is not an error:
// the returned Settings carry the defaults either way.
func LoadSettings(path string) (Settings, error) {
	v := viper.New()
	v.SetConfigFile(path)

	v.SetDefault("matching.exact_window_days", 30)
	v.SetDefault("matching.fuzzy_window_days", 90)
	v.SetDefault("matching.fuzzy_threshold", 80)
	v.SetDefault("matching.auto_accept", true)
	v.SetDefault("headcount.threshold", 80)
	v.SetDefault("classifier.base_url", "https://api.openai.com/v1")
	v.SetDefault("classifier.model", "gpt-4o")
	v.SetDefault("classifier.max_retries", 3)
	v.SetDefault("classifier.requests_per_minute", 60)
	v.SetDefault("classifier.timeout_seconds", 30)
	v.SetDefault("data.dir", "data")

	v.SetEnvPrefix("RECON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var s Settings
	readErr := v.ReadInConfig()
	if err := v.Unmarshal(&s); err != nil {
		return s, err
	}
	return s, readErr
}
