// Package config loads the process configuration surface (spec §6) from
// defaults, an optional config file, `AGCS_`-prefixed environment
// variables, and CLI flags, in increasing priority, via
// github.com/spf13/viper bound to a github.com/spf13/pflag flag set — a
// teacher dependency (listed in its go.mod but never read from) wired
// here for real.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// LatLon is a geographic point, used for the configured home base.
type LatLon struct {
	Lat float64 `mapstructure:"lat"`
	Lon float64 `mapstructure:"lon"`
}

// Config is the typed target of the configuration surface (spec §6).
type Config struct {
	BrokerHost string `mapstructure:"broker_host"`
	BrokerPort int    `mapstructure:"broker_port"`
	TLS        bool   `mapstructure:"tls"`
	Username   string `mapstructure:"username"`
	Password   string `mapstructure:"password"`

	LLMProvider string `mapstructure:"llm_provider"`
	LLMModel    string `mapstructure:"llm_model"`
	LLMEndpoint string `mapstructure:"llm_endpoint"`
	APIKey      string `mapstructure:"api_key"`

	Persona         string `mapstructure:"persona"`
	SitrepIntervalS int    `mapstructure:"sitrep_interval_s"`

	StaleThresholdS int `mapstructure:"stale_threshold_s"`
	CriticalBattPct int `mapstructure:"critical_batt_pct"`
	WarningBattPct  int `mapstructure:"warning_batt_pct"`

	HomeBase       LatLon `mapstructure:"home_base"`
	TrafficClasses bool   `mapstructure:"traffic_classes"`

	RecordEnabled  bool    `mapstructure:"record_enabled"`
	MetricsEnabled bool    `mapstructure:"metrics_enabled"`
	BridgeEnabled  bool    `mapstructure:"bridge_enabled"`
	ReplayPath     string  `mapstructure:"replay_path"`
	ReplaySpeed    float64 `mapstructure:"replay_speed"`
	JumpToAction   bool    `mapstructure:"jump_to_action"`
}

// ErrConfigInvalid is the sentinel wrapped by every validation failure,
// so callers can test for it with errors.Is. cmd/agcs exits with code 2
// on any Load error, validation or otherwise (spec §6).
var ErrConfigInvalid = errors.New("invalid configuration")

// defaults mirrors spec §6's documented default values.
func defaults(v *viper.Viper) {
	v.SetDefault("broker_host", "192.168.192.100")
	v.SetDefault("broker_port", 1883)
	v.SetDefault("tls", false)
	v.SetDefault("llm_provider", "local")
	v.SetDefault("persona", "analyst")
	v.SetDefault("sitrep_interval_s", 45)
	v.SetDefault("stale_threshold_s", 90)
	v.SetDefault("critical_batt_pct", 15)
	v.SetDefault("warning_batt_pct", 25)
	v.SetDefault("traffic_classes", false)
	v.SetDefault("record_enabled", true)
	v.SetDefault("metrics_enabled", true)
	v.SetDefault("bridge_enabled", true)
	v.SetDefault("replay_speed", 1.0)
	v.SetDefault("jump_to_action", false)
}

// Load binds defaults, an optional config.yaml/config.json (searched in
// the working directory and /etc/agcs), AGCS_-prefixed environment
// variables, and flagSet (if non-nil), in that increasing priority, and
// validates the result.
func Load(flagSet *pflag.FlagSet) (Config, error) {
	v := viper.New()
	defaults(v)

	v.SetConfigName("config")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/agcs")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("config: reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("agcs")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flagSet != nil {
		if err := v.BindPFlags(flagSet); err != nil {
			return Config{}, fmt.Errorf("config: binding flags: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the invariants spec §6 implies (e.g.
// sitrep_interval_s >= 5). Every failure wraps ErrConfigInvalid.
func Validate(cfg Config) error {
	if cfg.SitrepIntervalS < 5 {
		return fmt.Errorf("%w: sitrep_interval_s must be >= 5, got %d", ErrConfigInvalid, cfg.SitrepIntervalS)
	}
	if cfg.StaleThresholdS <= 0 {
		return fmt.Errorf("%w: stale_threshold_s must be > 0, got %d", ErrConfigInvalid, cfg.StaleThresholdS)
	}
	switch cfg.Persona {
	case "pilot", "commander", "analyst":
	default:
		return fmt.Errorf("%w: persona must be one of pilot|commander|analyst, got %q", ErrConfigInvalid, cfg.Persona)
	}
	switch cfg.LLMProvider {
	case "local", "cloud":
	default:
		return fmt.Errorf("%w: llm_provider must be local or cloud, got %q", ErrConfigInvalid, cfg.LLMProvider)
	}
	if cfg.LLMProvider == "cloud" && cfg.APIKey == "" {
		return fmt.Errorf("%w: api_key is required when llm_provider is cloud", ErrConfigInvalid)
	}
	if cfg.BrokerPort <= 0 || cfg.BrokerPort > 65535 {
		return fmt.Errorf("%w: broker_port out of range, got %d", ErrConfigInvalid, cfg.BrokerPort)
	}
	if cfg.ReplaySpeed <= 0 {
		return fmt.Errorf("%w: replay_speed must be > 0, got %f", ErrConfigInvalid, cfg.ReplaySpeed)
	}
	if cfg.ReplayPath != "" && cfg.BrokerHost == "" {
		return fmt.Errorf("%w: broker_host must be set to target replay output", ErrConfigInvalid)
	}
	return nil
}
