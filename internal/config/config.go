package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config holds application configuration
type Config struct {
	// Global settings
	Listen    string `mapstructure:"listen"`
	AccessKey string `mapstructure:"access_key"`
	Format    string `mapstructure:"format"`
	Level     string `mapstructure:"level"`
	Verbose   bool   `mapstructure:"verbose"`

	Terminal TerminalConfig `mapstructure:"terminal"`
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
}

// TerminalConfig tunes the websocket terminal
type TerminalConfig struct {
	HistorySize       int           `mapstructure:"history_size"`
	SendBuffer        int           `mapstructure:"send_buffer"`
	MaxSendFailures   int           `mapstructure:"max_send_failures"`
	MessagesPerSecond float64       `mapstructure:"messages_per_second"`
	Burst             int           `mapstructure:"burst"`
	PingInterval      time.Duration `mapstructure:"ping_interval"`
	WriteWait         time.Duration `mapstructure:"write_wait"`
	MaxMessageSize    int64         `mapstructure:"max_message_size"`
}

// ServerConfig describes the supervised server process
type ServerConfig struct {
	Dir           string        `mapstructure:"dir"`
	Command       string        `mapstructure:"command"`
	Args          []string      `mapstructure:"args"`
	Properties    string        `mapstructure:"properties"`
	SavesDir      string        `mapstructure:"saves_dir"`
	Commands      []string      `mapstructure:"commands"`
	StopCommand   string        `mapstructure:"stop_command"`
	ReloadCommand string        `mapstructure:"reload_command"`
	StopTimeout   time.Duration `mapstructure:"stop_timeout"`
	JoinPattern   string        `mapstructure:"join_pattern"`
	LeavePattern  string        `mapstructure:"leave_pattern"`
}

// AuthConfig controls control API tokens
type AuthConfig struct {
	TokenTTL   time.Duration `mapstructure:"token_ttl"`
	SigningKey string        `mapstructure:"signing_key"`
}

// Default returns a Config with default values
func Default() *Config {
	return &Config{
		Listen: ":3000",
		Format: "text",
		Level:  "info",
		Terminal: TerminalConfig{
			HistorySize:       500,
			SendBuffer:        256,
			MaxSendFailures:   3,
			MessagesPerSecond: 20,
			Burst:             40,
			PingInterval:      30 * time.Second,
			WriteWait:         10 * time.Second,
			MaxMessageSize:    64 << 10,
		},
		Server: ServerConfig{
			Properties:    "server.properties",
			StopCommand:   "stop",
			ReloadCommand: "reload",
			StopTimeout:   30 * time.Second,
		},
		Auth: AuthConfig{
			TokenTTL: 24 * time.Hour,
		},
	}
}

// Validate reports settings the control plane cannot run with
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.AccessKey) == "" {
		errs = append(errs, errors.New("access_key is required"))
	}
	if c.Terminal.HistorySize <= 0 {
		errs = append(errs, fmt.Errorf("terminal.history_size must be positive, got %d", c.Terminal.HistorySize))
	}
	if c.Terminal.SendBuffer <= 0 {
		errs = append(errs, fmt.Errorf("terminal.send_buffer must be positive, got %d", c.Terminal.SendBuffer))
	}
	return errors.Join(errs...)
}

// YAML renders the configuration as a config file. Durations are written in
// their string form so the file stays hand-editable.
func (c *Config) YAML() ([]byte, error) {
	doc := map[string]any{
		"listen":     c.Listen,
		"access_key": c.AccessKey,
		"format":     c.Format,
		"level":      c.Level,
		"verbose":    c.Verbose,
		"terminal": map[string]any{
			"history_size":        c.Terminal.HistorySize,
			"send_buffer":         c.Terminal.SendBuffer,
			"max_send_failures":   c.Terminal.MaxSendFailures,
			"messages_per_second": c.Terminal.MessagesPerSecond,
			"burst":               c.Terminal.Burst,
			"ping_interval":       c.Terminal.PingInterval.String(),
			"write_wait":          c.Terminal.WriteWait.String(),
			"max_message_size":    c.Terminal.MaxMessageSize,
		},
		"server": map[string]any{
			"dir":            c.Server.Dir,
			"command":        c.Server.Command,
			"args":           nonNil(c.Server.Args),
			"properties":     c.Server.Properties,
			"saves_dir":      c.Server.SavesDir,
			"commands":       nonNil(c.Server.Commands),
			"stop_command":   c.Server.StopCommand,
			"reload_command": c.Server.ReloadCommand,
			"stop_timeout":   c.Server.StopTimeout.String(),
			"join_pattern":   c.Server.JoinPattern,
			"leave_pattern":  c.Server.LeavePattern,
		},
		"auth": map[string]any{
			"token_ttl":   c.Auth.TokenTTL.String(),
			"signing_key": c.Auth.SigningKey,
		},
	}
	return yaml.Marshal(doc)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")

	// Environment variables: OPCTL_ACCESS_KEY, OPCTL_TERMINAL_HISTORY_SIZE, ...
	v.SetEnvPrefix("OPCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// Every key needs a default so AutomaticEnv applies during Unmarshal
	cfg := Default()
	v.SetDefault("listen", cfg.Listen)
	v.SetDefault("access_key", cfg.AccessKey)
	v.SetDefault("format", cfg.Format)
	v.SetDefault("level", cfg.Level)
	v.SetDefault("verbose", cfg.Verbose)

	v.SetDefault("terminal.history_size", cfg.Terminal.HistorySize)
	v.SetDefault("terminal.send_buffer", cfg.Terminal.SendBuffer)
	v.SetDefault("terminal.max_send_failures", cfg.Terminal.MaxSendFailures)
	v.SetDefault("terminal.messages_per_second", cfg.Terminal.MessagesPerSecond)
	v.SetDefault("terminal.burst", cfg.Terminal.Burst)
	v.SetDefault("terminal.ping_interval", cfg.Terminal.PingInterval)
	v.SetDefault("terminal.write_wait", cfg.Terminal.WriteWait)
	v.SetDefault("terminal.max_message_size", cfg.Terminal.MaxMessageSize)

	v.SetDefault("server.dir", cfg.Server.Dir)
	v.SetDefault("server.command", cfg.Server.Command)
	v.SetDefault("server.args", cfg.Server.Args)
	v.SetDefault("server.properties", cfg.Server.Properties)
	v.SetDefault("server.saves_dir", cfg.Server.SavesDir)
	v.SetDefault("server.commands", cfg.Server.Commands)
	v.SetDefault("server.stop_command", cfg.Server.StopCommand)
	v.SetDefault("server.reload_command", cfg.Server.ReloadCommand)
	v.SetDefault("server.stop_timeout", cfg.Server.StopTimeout)
	v.SetDefault("server.join_pattern", cfg.Server.JoinPattern)
	v.SetDefault("server.leave_pattern", cfg.Server.LeavePattern)

	v.SetDefault("auth.token_ttl", cfg.Auth.TokenTTL)
	v.SetDefault("auth.signing_key", cfg.Auth.SigningKey)

	return v
}

func decode(v *viper.Viper) (*Config, error) {
	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load loads configuration from the first config file found and the environment
func Load() (*Config, error) {
	v := newViper()

	if path := findConfigFile(); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}
	// No config file: defaults and environment only

	return decode(v)
}

// LoadFromFile loads configuration from a specific file
func LoadFromFile(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	return decode(v)
}

// ConfigFile returns the path to the config file Load would use
func ConfigFile() string {
	return findConfigFile()
}

// SearchPaths lists the directories searched for a config file, lowest
// precedence first
func SearchPaths() []string {
	paths := []string{"/etc/opctl"}
	if configDir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(configDir, "opctl"))
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, home)
	}
	return append(paths, ".")
}

// findConfigFile returns the highest precedence config file that exists
func findConfigFile() string {
	names := []string{"opctl.yaml", "opctl.yml", ".opctl.yaml", ".opctl.yml"}
	paths := SearchPaths()

	for i := len(paths) - 1; i >= 0; i-- {
		for _, name := range names {
			candidate := filepath.Join(paths[i], name)
			if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
				if abs, err := filepath.Abs(candidate); err == nil {
					return abs
				}
				return candidate
			}
		}
	}
	return ""
}

// Watch re-reads path on every change and passes valid revisions to onChange.
// Revisions that fail to decode or validate go to onError; the caller keeps
// running with what it had.
func Watch(path string, onChange func(*Config), onError func(error)) error {
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return err
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if e.Op&(fsnotify.Write|fsnotify.Create) == 0 {
			return
		}
		cfg, err := decode(v)
		if err == nil {
			err = cfg.Validate()
		}
		if err != nil {
			if onError != nil {
				onError(fmt.Errorf("reload %s: %w", e.Name, err))
			}
			return
		}
		onChange(cfg)
	})
	v.WatchConfig()
	return nil
}
