package config

import (
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Config is the full application configuration. Values come from an
// optional argus.yaml in the data directory, overridden by ARGUS_*
// environment variables, overridden by CLI flags in main.
type Config struct {
	DataDir    string `mapstructure:"data_dir"`
	ListenAddr string `mapstructure:"listen_addr"`
	Log        LogConfig
	Speedtest  SpeedtestConfig
}

type LogConfig struct {
	Pretty bool   `mapstructure:"pretty"`
	Level  string `mapstructure:"level"`
}

type SpeedtestConfig struct {
	// TimeoutMS bounds a single external run; the process is force-killed
	// past it.
	TimeoutMS int `mapstructure:"timeout_ms"`
	// IntervalMin is the default schedule interval in minutes, 0 disables
	// scheduling.
	IntervalMin int    `mapstructure:"interval_min"`
	StateFile   string `mapstructure:"state_file"`
	RunOnStart  bool   `mapstructure:"run_on_start"`
	// OverridePath forces a specific speedtest executable, bypassing
	// resolution.
	OverridePath string `mapstructure:"override_path"`
	// BundledDir is where architecture-specific bundled binaries live.
	BundledDir string `mapstructure:"bundled_dir"`
	// EmbeddedFallback enables the built-in speedtest-go runner as the
	// last resolution candidate when no external CLI is installed.
	EmbeddedFallback bool `mapstructure:"embedded_fallback"`
}

func Default() Config {
	return Config{
		DataDir:    ".",
		ListenAddr: ":8080",
		Log:        LogConfig{Pretty: false, Level: "info"},
		Speedtest: SpeedtestConfig{
			TimeoutMS:   120000,
			IntervalMin: 0,
			StateFile:   "",
			RunOnStart:  false,
			BundledDir:  "bin",
		},
	}
}

// Load reads argus.yaml from dataDir if present and applies ARGUS_*
// environment overrides. A missing config file is not an error.
func Load(dataDir string) (Config, error) {
	def := Default()

	v := viper.New()
	v.SetConfigName("argus")
	v.SetConfigType("yaml")
	v.AddConfigPath(dataDir)
	v.SetEnvPrefix("argus")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("data_dir", dataDir)
	v.SetDefault("listen_addr", def.ListenAddr)
	v.SetDefault("log.pretty", def.Log.Pretty)
	v.SetDefault("log.level", def.Log.Level)
	v.SetDefault("speedtest.timeout_ms", def.Speedtest.TimeoutMS)
	v.SetDefault("speedtest.interval_min", def.Speedtest.IntervalMin)
	v.SetDefault("speedtest.state_file", "")
	v.SetDefault("speedtest.run_on_start", def.Speedtest.RunOnStart)
	v.SetDefault("speedtest.override_path", "")
	v.SetDefault("speedtest.bundled_dir", def.Speedtest.BundledDir)
	v.SetDefault("speedtest.embedded_fallback", false)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, errors.Wrap(err, "read config file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "unmarshal config")
	}

	if cfg.Speedtest.TimeoutMS <= 0 {
		cfg.Speedtest.TimeoutMS = def.Speedtest.TimeoutMS
	}
	if cfg.Speedtest.StateFile == "" {
		cfg.Speedtest.StateFile = filepath.Join(cfg.DataDir, "speedtest-state.json")
	}

	return cfg, nil
}
