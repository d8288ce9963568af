// Package config loads, defaults, and validates the server's top-level
// configuration document: one Logging/Telemetry/Metrics section plus the
// per-listener array and every collaborator backend selector (journal,
// partner/logical-file stores, secrets, cluster, archival). It follows the
// teacher's layered-config idiom: environment variables override a YAML
// file which overrides built-in defaults, all decoded through viper with
// mapstructure hooks for human-readable byte sizes and durations.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/horssit/pesitd/internal/bytesize"
	"github.com/horssit/pesitd/internal/telemetry"
)

// Config is the full server configuration document.
type Config struct {
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
	Telemetry telemetry.Config `mapstructure:"telemetry" yaml:"telemetry"`
	Metrics   MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`

	Listeners []ListenerConfig `mapstructure:"listeners" yaml:"listeners" validate:"dive"`

	Journal      JournalConfig      `mapstructure:"journal" yaml:"journal"`
	Partners     PartnerStoreConfig `mapstructure:"partners" yaml:"partners"`
	LogicalFiles LogicalFileStoreConfig `mapstructure:"logical_files" yaml:"logical_files"`
	Secrets      SecretsConfig      `mapstructure:"secrets" yaml:"secrets"`
	Cluster      ClusterConfig      `mapstructure:"cluster" yaml:"cluster"`
	Archival     ArchivalConfig     `mapstructure:"archival" yaml:"archival"`

	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" validate:"required,gt=0"`
}

// LoggingConfig controls internal/logger's behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level" validate:"oneof=DEBUG INFO WARN ERROR"`
	Format string `mapstructure:"format" yaml:"format" validate:"oneof=text json"`
	Output string `mapstructure:"output" yaml:"output"`
}

// MetricsConfig controls the Prometheus metrics HTTP listener.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Address string `mapstructure:"address" yaml:"address"`
	Port    int    `mapstructure:"port" yaml:"port" validate:"omitempty,min=1,max=65535"`
}

// ListenerConfig is one configured PeSIT-E listening port, per spec §6.
type ListenerConfig struct {
	ServerID string `mapstructure:"server_id" yaml:"server_id" validate:"required,max=8,alphanumupper"`
	Port     int    `mapstructure:"port" yaml:"port" validate:"required,min=1,max=65535"`

	BindAddress string `mapstructure:"bind_address" yaml:"bind_address" validate:"required"`

	ProtocolVersion uint32 `mapstructure:"protocol_version" yaml:"protocol_version"`

	MaxConnections      int           `mapstructure:"max_connections" yaml:"max_connections" validate:"required,gt=0"`
	ConnectionTimeout    time.Duration `mapstructure:"connection_timeout" yaml:"connection_timeout" validate:"required,gt=0"`
	ReadTimeout          time.Duration `mapstructure:"read_timeout" yaml:"read_timeout" validate:"required,gt=0"`

	ReceiveDirectory string             `mapstructure:"receive_directory" yaml:"receive_directory" validate:"required"`
	SendDirectory    string             `mapstructure:"send_directory" yaml:"send_directory"`
	MaxEntitySize    bytesize.ByteSize `mapstructure:"max_entity_size" yaml:"max_entity_size" validate:"required,gt=0"`

	SyncPointsEnabled bool `mapstructure:"sync_points_enabled" yaml:"sync_points_enabled"`
	SyncIntervalKB    int  `mapstructure:"sync_interval_kb" yaml:"sync_interval_kb" validate:"omitempty,gt=0"`
	ResyncEnabled     bool `mapstructure:"resync_enabled" yaml:"resync_enabled"`

	StrictPartnerCheck bool `mapstructure:"strict_partner_check" yaml:"strict_partner_check"`
	StrictFileCheck    bool `mapstructure:"strict_file_check" yaml:"strict_file_check"`

	AutoStart    bool `mapstructure:"auto_start" yaml:"auto_start"`
	EBCDICFilter bool `mapstructure:"ebcdic_filter" yaml:"ebcdic_filter"`

	GCInterval           time.Duration `mapstructure:"gc_interval" yaml:"gc_interval"`
	GCRetention          time.Duration `mapstructure:"gc_retention" yaml:"gc_retention"`
	StaleSessionInterval time.Duration `mapstructure:"stale_session_interval" yaml:"stale_session_interval"`
	StaleSessionTimeout  time.Duration `mapstructure:"stale_session_timeout" yaml:"stale_session_timeout"`
	DrainTimeout         time.Duration `mapstructure:"drain_timeout" yaml:"drain_timeout"`

	TLS *TLSConfig `mapstructure:"tls" yaml:"tls,omitempty"`
}

// TLSConfig configures optional TLS/mTLS for a listener.
type TLSConfig struct {
	CertFile           string `mapstructure:"cert_file" yaml:"cert_file" validate:"required_with=KeyFile"`
	KeyFile            string `mapstructure:"key_file" yaml:"key_file" validate:"required_with=CertFile"`
	ClientAuth         bool   `mapstructure:"client_auth" yaml:"client_auth"`
	ClientCAFile       string `mapstructure:"client_ca_file" yaml:"client_ca_file" validate:"required_if=ClientAuth true"`
}

// JournalConfig selects and configures the transfer journal backend.
type JournalConfig struct {
	Backend  string         `mapstructure:"backend" yaml:"backend" validate:"oneof=memory postgres badger"`
	Postgres PostgresConfig `mapstructure:"postgres" yaml:"postgres"`
	Badger   BadgerConfig   `mapstructure:"badger" yaml:"badger"`
}

// PostgresConfig configures a Postgres-backed store (journal, partner, or
// logical-file), pool-tuned the way the teacher's metadata store is.
type PostgresConfig struct {
	DSN             string        `mapstructure:"dsn" yaml:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" yaml:"conn_max_lifetime"`
}

// BadgerConfig configures the embedded journal backend.
type BadgerConfig struct {
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// PartnerStoreConfig selects the partner directory backend.
type PartnerStoreConfig struct {
	Backend  string           `mapstructure:"backend" yaml:"backend" validate:"oneof=memory postgres"`
	Postgres PostgresConfig   `mapstructure:"postgres" yaml:"postgres"`
	Seed     []PartnerSeed    `mapstructure:"seed" yaml:"seed"`
}

// PartnerSeed is one partner record loaded into the memory backend at startup.
type PartnerSeed struct {
	ID                     string   `mapstructure:"id" yaml:"id"`
	DisplayName            string   `mapstructure:"display_name" yaml:"display_name"`
	Enabled                bool     `mapstructure:"enabled" yaml:"enabled"`
	AllowedAccess          string   `mapstructure:"allowed_access" yaml:"allowed_access"`
	Password               string   `mapstructure:"password" yaml:"password"`
	AllowedCIDRs           []string `mapstructure:"allowed_cidrs" yaml:"allowed_cidrs"`
	MaxConcurrentTransfers int      `mapstructure:"max_concurrent_transfers" yaml:"max_concurrent_transfers"`
}

// LogicalFileStoreConfig selects the logical-file directory backend.
type LogicalFileStoreConfig struct {
	Backend  string              `mapstructure:"backend" yaml:"backend" validate:"oneof=memory postgres"`
	Postgres PostgresConfig      `mapstructure:"postgres" yaml:"postgres"`
	Seed     []LogicalFileSeed   `mapstructure:"seed" yaml:"seed"`
}

// LogicalFileSeed is one logical-file record loaded into the memory backend.
type LogicalFileSeed struct {
	LogicalName         string `mapstructure:"logical_name" yaml:"logical_name"`
	FilenamePattern     string `mapstructure:"filename_pattern" yaml:"filename_pattern"`
	BackingRoot         string `mapstructure:"backing_root" yaml:"backing_root"`
	DefaultFileType     string `mapstructure:"default_file_type" yaml:"default_file_type"`
	DefaultRecordFormat string `mapstructure:"default_record_format" yaml:"default_record_format"`
	DefaultRecordLength uint32 `mapstructure:"default_record_length" yaml:"default_record_length"`
	MaxEntitySize       int64  `mapstructure:"max_entity_size" yaml:"max_entity_size"`
	Enabled             bool   `mapstructure:"enabled" yaml:"enabled"`
}

// SecretsConfig configures the secrets service used to decrypt partner
// passwords.
type SecretsConfig struct {
	Passphrase string `mapstructure:"passphrase" yaml:"passphrase"`
	Salt       string `mapstructure:"salt" yaml:"salt"`
}

// ClusterConfig selects standalone vs Raft-backed listener ownership.
type ClusterConfig struct {
	Mode string     `mapstructure:"mode" yaml:"mode" validate:"oneof=standalone raft"`
	Raft RaftConfig `mapstructure:"raft" yaml:"raft"`
}

// RaftConfig configures the dragonboat-backed cluster provider.
type RaftConfig struct {
	NodeID     uint64   `mapstructure:"node_id" yaml:"node_id"`
	DataDir    string   `mapstructure:"data_dir" yaml:"data_dir"`
	Peers      []string `mapstructure:"peers" yaml:"peers"`
	ListenAddr string   `mapstructure:"listen_addr" yaml:"listen_addr"`
}

// ArchivalConfig configures the optional S3 mirroring sink.
type ArchivalConfig struct {
	Enabled         bool   `mapstructure:"enabled" yaml:"enabled"`
	Bucket          string `mapstructure:"bucket" yaml:"bucket" validate:"required_if=Enabled true"`
	Region          string `mapstructure:"region" yaml:"region"`
	Endpoint        string `mapstructure:"endpoint" yaml:"endpoint"`
	KeyPrefix       string `mapstructure:"key_prefix" yaml:"key_prefix"`
	WorkerCount     int    `mapstructure:"worker_count" yaml:"worker_count" validate:"omitempty,gt=0"`
	ForcePathStyle  bool   `mapstructure:"force_path_style" yaml:"force_path_style"`
	AccessKeyID     string `mapstructure:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key" yaml:"secret_access_key"`
}

// Load reads configuration from configPath (or the default XDG location if
// empty), applies defaults, and validates the result. An absent config file
// is not itself an error, but the all-defaults Config has no listeners, so
// validation then fails.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	found, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}
	if !found {
		cfg := DefaultConfig()
		if err := Validate(cfg); err != nil {
			return nil, fmt.Errorf("config: default configuration failed validation: %w", err)
		}
		return cfg, nil
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("config: unmarshalling: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}
	return cfg, nil
}

// MustLoad loads configuration, returning an operator-actionable error when
// no config file exists anywhere MustLoad looked.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Please initialize a configuration file first:\n"+
				"  pesitd init\n\n"+
				"Or specify a custom config file:\n"+
				"  pesitd <command> --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s\n\n"+
			"Please create the configuration file:\n"+
			"  pesitd init --config %s", configPath, configPath)
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("config: loading: %w", err)
	}
	return cfg, nil
}

// SaveConfig writes cfg as YAML to path, creating parent directories as
// needed. File permissions are restricted since the document may carry a
// secrets passphrase.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("config: creating directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: marshalling: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("config: writing file: %w", err)
	}
	return nil
}

func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("PESITD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("config: reading file: %w", err)
	}
	return true, nil
}

func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
	)
}

func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return bytesize.ParseByteSize(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

func getConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "pesitd")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "pesitd")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists reports whether a config file exists at the default
// location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir exposes the configuration directory path for the init command.
func GetConfigDir() string {
	return getConfigDir()
}
