// Package config handles global configuration loading using viper.
package config

import (
	"fmt"
	"io"
	"strings"

	"github.com/c2h5oh/datasize"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"firestige.xyz/nfreject/internal/core"
)

// GlobalConfig represents the top-level configuration.
// Maps to the `nfreject:` root key in YAML.
type GlobalConfig struct {
	Queue   QueueConfig   `mapstructure:"queue" yaml:"queue"`
	Filter  FilterConfig  `mapstructure:"filter" yaml:"filter"`
	Reject  RejectConfig  `mapstructure:"reject" yaml:"reject"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
}

// ─── Interception ───

// QueueConfig configures the NFQUEUE the divert device binds to.
type QueueConfig struct {
	Num          uint16            `mapstructure:"num" yaml:"num"`
	MaxLen       uint32            `mapstructure:"max_len" yaml:"max_len"`               // Kernel queue length
	MaxPacketLen datasize.ByteSize `mapstructure:"max_packet_len" yaml:"max_packet_len"` // Bytes copied to user space
	FailOpen     bool              `mapstructure:"fail_open" yaml:"fail_open"`           // Accept instead of drop when the queue is full
	Mark         uint32            `mapstructure:"mark" yaml:"mark"`                     // SO_MARK of injected packets
	Backlog      int               `mapstructure:"backlog" yaml:"backlog"`               // Matched packets waiting for the main loop
}

// FilterConfig configures filter expression handling.
type FilterConfig struct {
	MaxLength int               `mapstructure:"max_length" yaml:"max_length"`
	SnapLen   datasize.ByteSize `mapstructure:"snap_len" yaml:"snap_len"`
}

// ─── Rejection ───

// EmbedPolicy selects how much of the original packet an ICMPv6 unreachable
// message carries.
type EmbedPolicy string

const (
	// EmbedFixed copies the IPv6 header plus 20 bytes, zero filled when the
	// captured packet is shorter.
	EmbedFixed EmbedPolicy = "fixed"
	// EmbedRFC4443 copies as much of the packet as fits the IPv6 minimum MTU.
	EmbedRFC4443 EmbedPolicy = "rfc4443"
)

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *EmbedPolicy) UnmarshalText(text []byte) error {
	switch v := EmbedPolicy(strings.ToLower(strings.TrimSpace(string(text)))); v {
	case EmbedFixed, EmbedRFC4443:
		*p = v
		return nil
	case "":
		*p = EmbedFixed
		return nil
	default:
		return fmt.Errorf("invalid icmpv6 embed policy: %s (must be fixed/rfc4443)", text)
	}
}

// RejectConfig contains response synthesis settings.
type RejectConfig struct {
	TTL         uint8       `mapstructure:"ttl" yaml:"ttl"`         // TTL and IPv6 hop limit of responses
	IPv4ID      uint16      `mapstructure:"ipv4_id" yaml:"ipv4_id"` // Identification of IPv4 responses
	ICMPv6Embed EmbedPolicy `mapstructure:"icmpv6_embed" yaml:"icmpv6_embed"`
}

// ─── Metrics ───

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Listen  string `mapstructure:"listen" yaml:"listen"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// ─── Log ───

// LogConfig contains logging settings.
type LogConfig struct {
	Level   string           `mapstructure:"level" yaml:"level"`   // debug / info / warn / error
	Format  string           `mapstructure:"format" yaml:"format"` // json / text
	Outputs LogOutputsConfig `mapstructure:"outputs" yaml:"outputs"`
}

// LogOutputsConfig contains structured log output destinations.
type LogOutputsConfig struct {
	File FileOutputConfig `mapstructure:"file" yaml:"file"`
}

// FileOutputConfig configures file log output.
type FileOutputConfig struct {
	Enabled  bool           `mapstructure:"enabled" yaml:"enabled"`
	Path     string         `mapstructure:"path" yaml:"path"`
	Rotation RotationConfig `mapstructure:"rotation" yaml:"rotation"`
}

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSizeMB  int  `mapstructure:"max_size_mb" yaml:"max_size_mb"`   // MB
	MaxAgeDays int  `mapstructure:"max_age_days" yaml:"max_age_days"` // Days
	MaxBackups int  `mapstructure:"max_backups" yaml:"max_backups"`
	Compress   bool `mapstructure:"compress" yaml:"compress"`
}

// ─── Loading ───

// configRoot is the top-level wrapper matching the YAML structure `nfreject: ...`.
type configRoot struct {
	NFReject GlobalConfig `mapstructure:"nfreject" yaml:"nfreject"`
}

// flagKeys maps command line flags to the configuration keys they override.
var flagKeys = map[string]string{
	"queue":     "nfreject.queue.num",
	"log-level": "nfreject.log.level",
}

// Load loads configuration from file. An empty path loads defaults only.
// The YAML file uses `nfreject:` as root key; env vars use the NFREJECT_
// prefix (e.g., NFREJECT_LOG_LEVEL). Flags in fs that appear in flagKeys
// override both when set on the command line.
func Load(path string, fs *pflag.FlagSet) (*GlobalConfig, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// The `nfreject.` key prefix maps to `NFREJECT_` through the replacer
	// (e.g., key "nfreject.queue.num" → env "NFREJECT_QUEUE_NUM").
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if fs != nil {
		for name, key := range flagKeys {
			if f := fs.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
	}

	var root configRoot
	if err := v.Unmarshal(&root, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.TextUnmarshallerHookFunc(),
		mapstructure.StringToTimeDurationHookFunc(),
	))); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.NFReject

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default values for configuration.
// All keys use "nfreject." prefix to match the YAML root wrapper.
func setDefaults(v *viper.Viper) {
	// Queue defaults
	v.SetDefault("nfreject.queue.num", 0)
	v.SetDefault("nfreject.queue.max_len", 1024)
	v.SetDefault("nfreject.queue.max_packet_len", "2KB")
	v.SetDefault("nfreject.queue.fail_open", false)
	v.SetDefault("nfreject.queue.mark", 0x6e66)
	v.SetDefault("nfreject.queue.backlog", 256)

	// Filter defaults
	v.SetDefault("nfreject.filter.max_length", DefaultFilterMaxLength)
	v.SetDefault("nfreject.filter.snap_len", "64KB")

	// Reject defaults
	v.SetDefault("nfreject.reject.ttl", 64)
	v.SetDefault("nfreject.reject.ipv4_id", 0xDEAD)
	v.SetDefault("nfreject.reject.icmpv6_embed", string(EmbedFixed))

	// Metrics defaults
	v.SetDefault("nfreject.metrics.enabled", false)
	v.SetDefault("nfreject.metrics.listen", ":9091")
	v.SetDefault("nfreject.metrics.path", "/metrics")

	// Log defaults
	v.SetDefault("nfreject.log.level", "info")
	v.SetDefault("nfreject.log.format", "text")
	v.SetDefault("nfreject.log.outputs.file.enabled", false)
	v.SetDefault("nfreject.log.outputs.file.path", "/var/log/nfreject/nfreject.log")
	v.SetDefault("nfreject.log.outputs.file.rotation.max_size_mb", 100)
	v.SetDefault("nfreject.log.outputs.file.rotation.max_age_days", 30)
	v.SetDefault("nfreject.log.outputs.file.rotation.max_backups", 5)
	v.SetDefault("nfreject.log.outputs.file.rotation.compress", true)
}

const (
	// DefaultFilterMaxLength bounds the joined filter expression.
	DefaultFilterMaxLength = 2048

	minPacketLen = 128
	maxPacketLen = 65535
	maxSnapLen   = 262144
)

// ValidateAndApplyDefaults validates configuration and applies runtime defaults.
// Every error wraps core.ErrConfigInvalid.
func (cfg *GlobalConfig) ValidateAndApplyDefaults() error {
	// ── Log validation ──
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Log.Level] {
		return fmt.Errorf("%w: invalid log level: %s (must be debug/info/warn/error)", core.ErrConfigInvalid, cfg.Log.Level)
	}
	if cfg.Log.Format != "json" && cfg.Log.Format != "text" {
		return fmt.Errorf("%w: invalid log format: %s (must be json/text)", core.ErrConfigInvalid, cfg.Log.Format)
	}
	if cfg.Log.Outputs.File.Enabled && cfg.Log.Outputs.File.Path == "" {
		return fmt.Errorf("%w: log.outputs.file.path is required when file output is enabled", core.ErrConfigInvalid)
	}

	// ── Queue validation ──
	if n := cfg.Queue.MaxPacketLen.Bytes(); n < minPacketLen || n > maxPacketLen {
		return fmt.Errorf("%w: queue.max_packet_len %s out of range [%d, %d]", core.ErrConfigInvalid, cfg.Queue.MaxPacketLen, minPacketLen, maxPacketLen)
	}
	if cfg.Queue.MaxLen == 0 {
		return fmt.Errorf("%w: queue.max_len must be positive", core.ErrConfigInvalid)
	}
	if cfg.Queue.Backlog <= 0 {
		return fmt.Errorf("%w: queue.backlog must be positive", core.ErrConfigInvalid)
	}
	if cfg.Queue.Mark == 0 {
		return fmt.Errorf("%w: queue.mark must be non-zero", core.ErrConfigInvalid)
	}

	// ── Filter validation ──
	if cfg.Filter.MaxLength == 0 {
		cfg.Filter.MaxLength = DefaultFilterMaxLength
	}
	if cfg.Filter.MaxLength < 2 {
		return fmt.Errorf("%w: filter.max_length must be at least 2", core.ErrConfigInvalid)
	}
	if n := cfg.Filter.SnapLen.Bytes(); n == 0 || n > maxSnapLen {
		return fmt.Errorf("%w: filter.snap_len %s out of range (0, %d]", core.ErrConfigInvalid, cfg.Filter.SnapLen, maxSnapLen)
	}

	// ── Reject validation ──
	if cfg.Reject.TTL == 0 {
		return fmt.Errorf("%w: reject.ttl must be positive", core.ErrConfigInvalid)
	}
	if cfg.Reject.ICMPv6Embed == "" {
		cfg.Reject.ICMPv6Embed = EmbedFixed
	}
	if cfg.Reject.ICMPv6Embed != EmbedFixed && cfg.Reject.ICMPv6Embed != EmbedRFC4443 {
		return fmt.Errorf("%w: invalid reject.icmpv6_embed: %s (must be fixed/rfc4443)", core.ErrConfigInvalid, cfg.Reject.ICMPv6Embed)
	}

	// ── Metrics validation ──
	if cfg.Metrics.Enabled {
		if cfg.Metrics.Listen == "" {
			return fmt.Errorf("%w: metrics.listen is required when metrics are enabled", core.ErrConfigInvalid)
		}
		if !strings.HasPrefix(cfg.Metrics.Path, "/") {
			return fmt.Errorf("%w: metrics.path must start with /", core.ErrConfigInvalid)
		}
	}

	return nil
}

// WriteYAML renders cfg under the `nfreject:` root key.
func (cfg *GlobalConfig) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(configRoot{NFReject: *cfg}); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return enc.Close()
}
