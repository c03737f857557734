package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

type TierConfig struct {
	ModelID       string
	MaxResolution int
	Timeout       time.Duration
}

type ResolutionConfig struct {
	Default       string
	MemoryLimitMB int
	BufferPercent float64
	MinDimension  int
}

type SelectionConfig struct {
	QualityKeywords []string
	SpeedKeywords   []string
	StrongKeywords  []string
}

type RemoteConfig struct {
	BaseURL    string
	APIKey     string
	TTL        time.Duration
	QuotaBytes int64
	Timeout    time.Duration
}

type MaintenanceConfig struct {
	MaxAgeHours  int
	KeepCount    int
	CronSchedule string
}

type Config struct {
	OutputDir   string
	DBPath      string
	LogLevel    string
	Fast        TierConfig
	Quality     TierConfig
	Resolution  ResolutionConfig
	Selection   SelectionConfig
	Remote      RemoteConfig
	Maintenance MaintenanceConfig
}

// TierMax returns the resolution ceiling for a resolved tier. Unresolved
// values fall back to the fast tier.
func (c *Config) TierMax(quality bool) int {
	if quality {
		return c.Quality.MaxResolution
	}
	return c.Fast.MaxResolution
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("IMAGEMCP")
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	cfg := fromViper(v)

	if cfg.Remote.APIKey == "" {
		cfg.Remote.APIKey = os.Getenv("GEMINI_API_KEY")
	}
	if cfg.Remote.APIKey == "" {
		cfg.Remote.APIKey = os.Getenv("GOOGLE_API_KEY")
	}

	if cfg.OutputDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home directory: %w", err)
		}
		cfg.OutputDir = filepath.Join(home, ".imagemcp", "images")
	}
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(filepath.Dir(cfg.OutputDir), "images.db")
	}

	return cfg, nil
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		OutputDir: v.GetString("output.dir"),
		DBPath:    v.GetString("output.dbpath"),
		LogLevel:  v.GetString("log.level"),
		Fast: TierConfig{
			ModelID:       v.GetString("tier.fast.model"),
			MaxResolution: v.GetInt("tier.fast.maxresolution"),
			Timeout:       v.GetDuration("tier.fast.timeout"),
		},
		Quality: TierConfig{
			ModelID:       v.GetString("tier.quality.model"),
			MaxResolution: v.GetInt("tier.quality.maxresolution"),
			Timeout:       v.GetDuration("tier.quality.timeout"),
		},
		Resolution: ResolutionConfig{
			Default:       v.GetString("resolution.default"),
			MemoryLimitMB: v.GetInt("resolution.memorylimitmb"),
			BufferPercent: v.GetFloat64("resolution.bufferpercent"),
			MinDimension:  v.GetInt("resolution.mindimension"),
		},
		Selection: SelectionConfig{
			QualityKeywords: v.GetStringSlice("selection.qualitykeywords"),
			SpeedKeywords:   v.GetStringSlice("selection.speedkeywords"),
			StrongKeywords:  v.GetStringSlice("selection.strongkeywords"),
		},
		Remote: RemoteConfig{
			BaseURL:    v.GetString("remote.baseurl"),
			APIKey:     v.GetString("remote.apikey"),
			TTL:        v.GetDuration("remote.ttl"),
			QuotaBytes: v.GetInt64("remote.quotabytes"),
			Timeout:    v.GetDuration("remote.timeout"),
		},
		Maintenance: MaintenanceConfig{
			MaxAgeHours:  v.GetInt("maintenance.maxagehours"),
			KeepCount:    v.GetInt("maintenance.keepcount"),
			CronSchedule: v.GetString("maintenance.cronschedule"),
		},
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")

	v.SetDefault("tier.fast.model", "gemini-2.5-flash-image")
	v.SetDefault("tier.fast.maxresolution", 2048)
	v.SetDefault("tier.fast.timeout", "60s")

	v.SetDefault("tier.quality.model", "gemini-3-pro-image-preview")
	v.SetDefault("tier.quality.maxresolution", 3840)
	v.SetDefault("tier.quality.timeout", "90s")

	v.SetDefault("resolution.default", "1024")
	v.SetDefault("resolution.memorylimitmb", 2048)
	v.SetDefault("resolution.bufferpercent", 0.2)
	v.SetDefault("resolution.mindimension", 16)

	v.SetDefault("selection.qualitykeywords", []string{
		"4k", "professional", "production", "detailed", "hd", "ultra",
		"premium", "magazine", "print", "crisp", "sharp",
	})
	v.SetDefault("selection.speedkeywords", []string{
		"quick", "fast", "draft", "prototype", "sketch", "rapid",
		"rough", "temporary", "test",
	})
	v.SetDefault("selection.strongkeywords", []string{
		"4k", "professional", "production", "high-res", "hd",
	})

	v.SetDefault("remote.baseurl", "https://generativelanguage.googleapis.com")
	v.SetDefault("remote.ttl", "48h")
	v.SetDefault("remote.quotabytes", int64(20)*1024*1024*1024)
	v.SetDefault("remote.timeout", "120s")

	v.SetDefault("maintenance.maxagehours", 168)
	v.SetDefault("maintenance.keepcount", 10)
	v.SetDefault("maintenance.cronschedule", "0 0 3 * * *")
}

// Default returns the built-in configuration without consulting the
// environment or any config file. Used by tests and as a base for overrides.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg := fromViper(v)
	cfg.OutputDir = "output"
	cfg.DBPath = filepath.Join("output", "images.db")
	return cfg
}
