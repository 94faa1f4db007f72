// Package config loads server settings from defaults, an optional config
// file, WHITEBOARD_* environment variables and command-line flags.
package config

import (
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/collab-whiteboard/backend/internal/model"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "WHITEBOARD"

// Default values.
const (
	DefaultPort         = 4444
	DefaultAdminAddr    = ":8080"
	DefaultSendBuffer   = 256
	DefaultMaxLineBytes = 64 * 1024
)

// Config holds server configuration.
type Config struct {
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	AdminAddr     string `mapstructure:"admin_addr"`
	DBPath        string `mapstructure:"db_path"`
	TranscriptDir string `mapstructure:"transcript_dir"`
	SendBuffer    int    `mapstructure:"send_buffer"`
	MaxLineBytes  int    `mapstructure:"max_line_bytes"`
	LogLevel      string `mapstructure:"log_level"`
	LogFormat     string `mapstructure:"log_format"`
}

// New returns a viper instance carrying the defaults and env binding.
func New() *viper.Viper {
	v := viper.New()

	v.SetDefault("host", "")
	v.SetDefault("port", DefaultPort)
	v.SetDefault("admin_addr", DefaultAdminAddr)
	v.SetDefault("db_path", "")
	v.SetDefault("transcript_dir", "")
	v.SetDefault("send_buffer", DefaultSendBuffer)
	v.SetDefault("max_line_bytes", DefaultMaxLineBytes)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads configuration. configFile may be empty. Flags that were set on
// the command line override everything else.
func Load(v *viper.Viper, configFile string, flags *pflag.FlagSet) (Config, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}

	if flags != nil {
		var bindErr error
		flags.VisitAll(func(f *pflag.Flag) {
			key := strings.ReplaceAll(f.Name, "-", "_")
			if !isKnown(key) {
				return
			}
			if err := v.BindPFlag(key, f); err != nil && bindErr == nil {
				bindErr = err
			}
		})
		if bindErr != nil {
			return Config{}, fmt.Errorf("bind flags: %w", bindErr)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

var keys = []string{
	"host", "port", "admin_addr", "db_path", "transcript_dir",
	"send_buffer", "max_line_bytes", "log_level", "log_format",
}

func isKnown(key string) bool {
	for _, k := range keys {
		if k == key {
			return true
		}
	}
	return false
}

// Validate checks values that would otherwise fail late.
func (c Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range 0-65535: %w", c.Port, model.ErrInvalidPort)
	}
	if c.SendBuffer <= 0 {
		return fmt.Errorf("send_buffer must be positive, got %d", c.SendBuffer)
	}
	if c.MaxLineBytes <= 0 {
		return fmt.Errorf("max_line_bytes must be positive, got %d", c.MaxLineBytes)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("log_format must be text or json, got %q", c.LogFormat)
	}
	return nil
}

// ListenAddr is the TCP address of the line protocol listener.
func (c Config) ListenAddr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Level parses LogLevel.
func (c Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("log_level: %w", err)
	}
	return level, nil
}

// ParsePort parses a port argument.
func ParsePort(s string) (int, error) {
	port, err := strconv.Atoi(s)
	if err != nil || port < 0 || port > 65535 {
		return 0, fmt.Errorf("%q: %w", s, model.ErrInvalidPort)
	}
	return port, nil
}
