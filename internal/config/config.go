package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"cementwatch/internal/model"
)

// Config holds all cementwatch configuration. It is loaded once at startup
// and treated as immutable afterwards; administrative threshold updates go
// through the override store, never back into this struct.
type Config struct {
	NATS     NATSConfig     `mapstructure:"nats"`
	Monitor  MonitorConfig  `mapstructure:"monitor"`
	Alerting AlertingConfig `mapstructure:"alerting"`
	Twilio   TwilioConfig   `mapstructure:"twilio"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Health   HealthConfig   `mapstructure:"health"`
	Storage  StorageConfig  `mapstructure:"storage"`
}

// NATSConfig defines the connection to the telemetry bus.
type NATSConfig struct {
	URL            string        `mapstructure:"url"`
	Name           string        `mapstructure:"name"`
	MaxReconnects  int           `mapstructure:"max_reconnects"`
	ReconnectWait  time.Duration `mapstructure:"reconnect_wait"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// MonitorConfig selects the process stage whose snapshots are evaluated.
type MonitorConfig struct {
	Stage string `mapstructure:"stage"`
}

// AlertingConfig defines thresholds, message templates, recipients and the
// global cooldown window.
type AlertingConfig struct {
	CooldownMinutes int                       `mapstructure:"cooldown_minutes"`
	Recipients      []string                  `mapstructure:"recipients"`
	Thresholds      map[string]ThresholdRange `mapstructure:"thresholds"`
	Messages        map[string]string         `mapstructure:"messages"`
}

// ThresholdRange is the configured safe range for one parameter.
type ThresholdRange struct {
	Min     float64 `mapstructure:"min"`
	Max     float64 `mapstructure:"max"`
	Enabled bool    `mapstructure:"enabled"`
}

// TwilioConfig defines the voice/SMS provider credentials.
type TwilioConfig struct {
	AccountSID          string `mapstructure:"account_sid"`
	AuthToken           string `mapstructure:"auth_token"`
	FromNumber          string `mapstructure:"from_number"`
	VoiceTimeoutSeconds int    `mapstructure:"voice_timeout_seconds"`
}

// HTTPConfig defines the admin API listener.
type HTTPConfig struct {
	Listen string `mapstructure:"listen"`
}

// HealthConfig defines the scheduled health check.
type HealthConfig struct {
	CronSpec string `mapstructure:"cron_spec"`
}

// StorageConfig defines the alert log database.
type StorageConfig struct {
	Path string `mapstructure:"path"`
}

// Cooldown returns the cooldown window as a duration.
func (c AlertingConfig) Cooldown() time.Duration {
	return time.Duration(c.CooldownMinutes) * time.Minute
}

// Threshold returns the configured default threshold for a parameter.
// Matching folds case because some config sources normalize map keys.
func (c AlertingConfig) Threshold(parameter string) (model.Threshold, bool) {
	r, ok := c.Thresholds[parameter]
	if !ok {
		for name, v := range c.Thresholds {
			if strings.EqualFold(name, parameter) {
				r, ok = v, true
				break
			}
		}
	}
	if !ok {
		return model.Threshold{}, false
	}
	return model.Threshold{
		Parameter: parameter,
		Min:       r.Min,
		Max:       r.Max,
		Enabled:   r.Enabled,
	}, true
}

// Message returns the alert template for a parameter, folding case the same
// way Threshold does.
func (c AlertingConfig) Message(parameter string) (string, bool) {
	if m, ok := c.Messages[parameter]; ok {
		return m, true
	}
	for name, m := range c.Messages {
		if strings.EqualFold(name, parameter) {
			return m, true
		}
	}
	return "", false
}

// Load reads configuration from the given file (or ./config/config.yaml when
// empty) and the CEMENTWATCH_* environment, layered over compiled-in defaults.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	setDefaults(v)

	v.SetEnvPrefix("CEMENTWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// The threshold and template tables are compiled-in configuration data;
	// a config file may replace them wholesale but runtime tuning goes
	// through the override store.
	if len(cfg.Alerting.Thresholds) == 0 {
		cfg.Alerting.Thresholds = DefaultThresholds()
	}
	if len(cfg.Alerting.Messages) == 0 {
		cfg.Alerting.Messages = DefaultMessages()
	}

	if cfg.Alerting.CooldownMinutes <= 0 {
		return nil, fmt.Errorf("alerting.cooldown_minutes must be positive, got %d", cfg.Alerting.CooldownMinutes)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("nats.url", "nats://127.0.0.1:4222")
	v.SetDefault("nats.name", "cementwatch")
	v.SetDefault("nats.max_reconnects", 10)
	v.SetDefault("nats.reconnect_wait", "2s")
	v.SetDefault("nats.connect_timeout", "5s")

	v.SetDefault("monitor.stage", "step5_cooling_grinding")

	v.SetDefault("alerting.cooldown_minutes", 10)
	v.SetDefault("alerting.recipients", []string{})

	// Credentials default to empty so the CEMENTWATCH_TWILIO_* environment
	// variables bind; viper only consults the environment for known keys.
	v.SetDefault("twilio.account_sid", "")
	v.SetDefault("twilio.auth_token", "")
	v.SetDefault("twilio.from_number", "")
	v.SetDefault("twilio.voice_timeout_seconds", 30)

	v.SetDefault("http.listen", ":8090")
	v.SetDefault("health.cron_spec", "0 0 9 * * *")
	v.SetDefault("storage.path", "cementwatch.db")
}
