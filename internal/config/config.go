// Package config handles loading and validating BatteryMaster configuration.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// envVarPattern matches ${VAR_NAME} placeholders in config values.
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// ErrConfigFileNotFound is returned by Load when the specified config file does not exist.
var ErrConfigFileNotFound = errors.New("config file not found")

// Config is the top-level BatteryMaster configuration.
type Config struct {
	Listen             string               `yaml:"listen"`
	DBPath             string               `yaml:"db_path"`
	LogLevel           string               `yaml:"log_level"`
	LogFormat          string               `yaml:"log_format"`
	Device             string               `yaml:"device"`
	IntervalSecs       int64                `yaml:"interval_secs"`
	SampleInterval     Duration             `yaml:"sample_interval"`
	RealtimeBucketSecs int64                `yaml:"realtime_bucket_secs"`
	RealtimeRetention  Duration             `yaml:"realtime_retention"`
	OneMinuteRetention Duration             `yaml:"one_minute_retention"`
	Source             SourceConfig         `yaml:"source"`
	Archive            ArchiveConfig        `yaml:"archive"`
	Notifications      []NotificationConfig `yaml:"notifications"`
	Alerts             AlertsConfig         `yaml:"alerts"`
}

// SourceConfig selects where snapshots are read from.
type SourceConfig struct {
	Type       string     `yaml:"type"`    // "sysfs" or "ssh"
	Battery    string     `yaml:"battery"` // power_supply name, e.g. BAT0
	SysfsRoot  string     `yaml:"sysfs_root"`
	Backlight  string     `yaml:"backlight,omitempty"` // empty picks the first device
	SSH        *SSHConfig `yaml:"ssh,omitempty"`
	MaxWorkers int        `yaml:"max_workers"`
}

// SSHConfig describes SSH access to a remote host whose battery is sampled.
type SSHConfig struct {
	Host    string `yaml:"host"`
	User    string `yaml:"user"`
	KeyPath string `yaml:"key_path"`
}

// ArchiveConfig controls Parquet export of long-tier data. An empty Dir
// disables archiving.
type ArchiveConfig struct {
	Dir      string   `yaml:"dir"`
	Interval Duration `yaml:"interval"`
}

// NotificationConfig describes a notification target.
type NotificationConfig struct {
	Type    string            `yaml:"type"` // "ntfy" or "webhook"
	URL     string            `yaml:"url"`
	Topic   string            `yaml:"topic,omitempty"`   // ntfy only
	Method  string            `yaml:"method,omitempty"`  // webhook only
	Headers map[string]string `yaml:"headers,omitempty"` // webhook only
}

// AlertsConfig holds settings for each alert type.
type AlertsConfig struct {
	StateChange *AlertStateChange `yaml:"state_change,omitempty"`
	LowBattery  *AlertLowBattery  `yaml:"low_battery,omitempty"`
}

type AlertStateChange struct {
	Cooldown Duration `yaml:"cooldown"`
}

type AlertLowBattery struct {
	Threshold float64 `yaml:"threshold"` // percent
	Severity  string  `yaml:"severity"`
}

// Duration wraps time.Duration with YAML string parsing support.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

// Load reads configuration from a YAML file. If no path is given, defaults
// and environment variables are used. If a path is given and the file does
// not exist, ErrConfigFileNotFound is returned.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigFileNotFound, path)
		}
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if len(data) > 0 {
			if err := yaml.Unmarshal(expandEnvVars(data), cfg); err != nil {
				return nil, fmt.Errorf("parsing config: %w", err)
			}
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("db_path is required")
	}
	if c.IntervalSecs < 1 || c.IntervalSecs > 60 {
		return fmt.Errorf("interval_secs must be between 1 and 60")
	}
	if c.SampleInterval.Duration < 100*time.Millisecond {
		return fmt.Errorf("sample_interval must be >= 100ms")
	}
	if c.RealtimeBucketSecs < 1 || c.RealtimeBucketSecs > 60 || 60%c.RealtimeBucketSecs != 0 {
		return fmt.Errorf("realtime_bucket_secs must divide 60")
	}
	if c.RealtimeRetention.Duration < 2*time.Minute {
		return fmt.Errorf("realtime_retention must be >= 2m")
	}
	if c.OneMinuteRetention.Duration < time.Hour {
		return fmt.Errorf("one_minute_retention must be >= 1h")
	}

	switch c.Source.Type {
	case "sysfs":
	case "ssh":
		if c.Source.SSH == nil || c.Source.SSH.Host == "" {
			return fmt.Errorf("source.ssh.host is required for ssh source")
		}
		if c.Source.SSH.KeyPath == "" {
			return fmt.Errorf("source.ssh.key_path is required for ssh source")
		}
	default:
		return fmt.Errorf("source.type must be one of: sysfs, ssh")
	}
	if c.Source.Battery == "" {
		return fmt.Errorf("source.battery is required")
	}
	if c.Source.MaxWorkers < 1 {
		return fmt.Errorf("source.max_workers must be >= 1")
	}

	if c.Archive.Dir != "" && c.Archive.Interval.Duration < time.Minute {
		return fmt.Errorf("archive.interval must be >= 1m")
	}

	for i, n := range c.Notifications {
		switch n.Type {
		case "ntfy":
			if n.URL == "" {
				return fmt.Errorf("notifications[%d]: url is required for ntfy", i)
			}
			if n.Topic == "" {
				return fmt.Errorf("notifications[%d]: topic is required for ntfy", i)
			}
		case "webhook":
			if n.URL == "" {
				return fmt.Errorf("notifications[%d]: url is required for webhook", i)
			}
		default:
			return fmt.Errorf("notifications[%d]: unknown type %q (expected ntfy or webhook)", i, n.Type)
		}
		if _, err := url.Parse(n.URL); err != nil {
			return fmt.Errorf("notifications[%d]: invalid url: %w", i, err)
		}
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.LogLevel] {
		return fmt.Errorf("log_level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.LogFormat] {
		return fmt.Errorf("log_format must be one of: text, json")
	}

	if a := c.Alerts.StateChange; a != nil {
		if a.Cooldown.Duration < 0 {
			return fmt.Errorf("alerts.state_change: cooldown must be >= 0")
		}
	}
	if a := c.Alerts.LowBattery; a != nil {
		if a.Threshold <= 0 || a.Threshold >= 100 {
			return fmt.Errorf("alerts.low_battery: threshold must be between 0 and 100")
		}
	}

	return nil
}

func defaults() *Config {
	device, err := os.Hostname()
	if err != nil {
		device = "localhost"
	}
	return &Config{
		Listen:             ":3801",
		DBPath:             "/var/lib/batterymaster/battery.db",
		LogLevel:           "info",
		LogFormat:          "text",
		Device:             device,
		IntervalSecs:       10,
		SampleInterval:     Duration{time.Second},
		RealtimeBucketSecs: 2,
		RealtimeRetention:  Duration{24 * time.Hour},
		OneMinuteRetention: Duration{30 * 24 * time.Hour},
		Source: SourceConfig{
			Type:       "sysfs",
			Battery:    "BAT0",
			SysfsRoot:  "/",
			MaxWorkers: 2,
		},
		Archive: ArchiveConfig{Interval: Duration{24 * time.Hour}},
	}
}

// expandEnvVars replaces ${VAR_NAME} placeholders in raw YAML with the
// corresponding environment variable values. Unset variables are replaced
// with an empty string, which will then fail validation with a clear error.
func expandEnvVars(data []byte) []byte {
	return envVarPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		key := string(match[2 : len(match)-1]) // strip ${ and }
		return []byte(os.Getenv(key))
	})
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BATTERYMASTER_LISTEN"); v != "" {
		cfg.Listen = v
	}
	if v := os.Getenv("BATTERYMASTER_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("BATTERYMASTER_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("BATTERYMASTER_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := os.Getenv("BATTERYMASTER_BATTERY"); v != "" {
		cfg.Source.Battery = v
	}
	if v := os.Getenv("BATTERYMASTER_ARCHIVE_DIR"); v != "" {
		cfg.Archive.Dir = v
	}
	if v := os.Getenv("BATTERYMASTER_INTERVAL_SECS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.IntervalSecs = n
		}
	}

	// Remote source from env vars (only if no YAML SSH source configured).
	if cfg.Source.SSH == nil {
		if host := os.Getenv("BATTERYMASTER_SSH_HOST"); host != "" {
			cfg.Source.Type = "ssh"
			cfg.Source.SSH = &SSHConfig{
				Host:    host,
				User:    os.Getenv("BATTERYMASTER_SSH_USER"),
				KeyPath: os.Getenv("BATTERYMASTER_SSH_KEY_PATH"),
			}
		}
	}

	// Single ntfy target from env vars (only if no YAML notifications configured).
	if len(cfg.Notifications) == 0 {
		if ntfyURL := os.Getenv("BATTERYMASTER_NTFY_URL"); ntfyURL != "" {
			topic := os.Getenv("BATTERYMASTER_NTFY_TOPIC")
			if topic == "" {
				topic = "battery"
			}
			cfg.Notifications = append(cfg.Notifications, NotificationConfig{
				Type:  "ntfy",
				URL:   ntfyURL,
				Topic: topic,
			})
		}
	}
}
