package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	require.NotNil(t, cfg)
	assert.Equal(t, ":3000", cfg.Listen)
	assert.Equal(t, "text", cfg.Format)
	assert.Equal(t, "info", cfg.Level)
	assert.False(t, cfg.Verbose)
	assert.Empty(t, cfg.AccessKey)
	assert.Equal(t, 500, cfg.Terminal.HistorySize)
	assert.Equal(t, 256, cfg.Terminal.SendBuffer)
	assert.Equal(t, 3, cfg.Terminal.MaxSendFailures)
	assert.Equal(t, 30*time.Second, cfg.Terminal.PingInterval)
	assert.Equal(t, "server.properties", cfg.Server.Properties)
	assert.Equal(t, "stop", cfg.Server.StopCommand)
	assert.Equal(t, 24*time.Hour, cfg.Auth.TokenTTL)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	assert.ErrorContains(t, cfg.Validate(), "access_key")

	cfg.AccessKey = "secret"
	assert.NoError(t, cfg.Validate())

	cfg.Terminal.HistorySize = 0
	cfg.Terminal.SendBuffer = -1
	err := cfg.Validate()
	assert.ErrorContains(t, err, "history_size")
	assert.ErrorContains(t, err, "send_buffer")
}

func TestLoad(t *testing.T) {
	t.Run("returns defaults when no config file exists", func(t *testing.T) {
		tmpDir := t.TempDir()
		origDir, _ := os.Getwd()
		os.Chdir(tmpDir)
		defer os.Chdir(origDir)
		t.Setenv("HOME", tmpDir)
		t.Setenv("XDG_CONFIG_HOME", tmpDir)

		cfg, err := Load()
		require.NoError(t, err)
		require.NotNil(t, cfg)

		assert.Equal(t, ":3000", cfg.Listen)
		assert.Equal(t, 500, cfg.Terminal.HistorySize)
	})

	t.Run("loads config from current directory", func(t *testing.T) {
		tmpDir := t.TempDir()
		origDir, _ := os.Getwd()
		os.Chdir(tmpDir)
		defer os.Chdir(origDir)

		err := os.WriteFile(filepath.Join(tmpDir, "opctl.yaml"), []byte("listen: \":4000\"\naccess_key: abc\n"), 0644)
		require.NoError(t, err)

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, ":4000", cfg.Listen)
		assert.Equal(t, "abc", cfg.AccessKey)
	})
}

func TestLoadFromFile(t *testing.T) {
	t.Run("returns error for non-existent file", func(t *testing.T) {
		cfg, err := LoadFromFile("/nonexistent/path/config.yaml")
		assert.Error(t, err)
		assert.Nil(t, cfg)
	})

	t.Run("returns error for invalid YAML", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "bad.yaml")
		err := os.WriteFile(configPath, []byte("invalid: yaml: content: ["), 0644)
		require.NoError(t, err)

		cfg, err := LoadFromFile(configPath)
		assert.Error(t, err)
		assert.Nil(t, cfg)
	})

	t.Run("parses all config fields", func(t *testing.T) {
		tmpDir := t.TempDir()
		configContent := `
listen: "127.0.0.1:8080"
access_key: hunter2
format: ndjson
level: debug
verbose: true
terminal:
  history_size: 100
  send_buffer: 32
  max_send_failures: 5
  messages_per_second: 2.5
  burst: 4
  ping_interval: 15s
  write_wait: 2s
  max_message_size: 1024
server:
  dir: /srv/mc
  command: java
  args: ["-jar", "server.jar", "nogui"]
  properties: custom.properties
  saves_dir: worlds
  commands: [say, stop]
  stop_command: end
  reload_command: reload confirm
  stop_timeout: 1m
  join_pattern: '(\w+) joined'
  leave_pattern: '(\w+) left'
auth:
  token_ttl: 2h
  signing_key: sign-me
`
		configPath := filepath.Join(tmpDir, "opctl.yaml")
		err := os.WriteFile(configPath, []byte(configContent), 0644)
		require.NoError(t, err)

		cfg, err := LoadFromFile(configPath)
		require.NoError(t, err)

		assert.Equal(t, "127.0.0.1:8080", cfg.Listen)
		assert.Equal(t, "hunter2", cfg.AccessKey)
		assert.Equal(t, "ndjson", cfg.Format)
		assert.Equal(t, "debug", cfg.Level)
		assert.True(t, cfg.Verbose)

		assert.Equal(t, TerminalConfig{
			HistorySize:       100,
			SendBuffer:        32,
			MaxSendFailures:   5,
			MessagesPerSecond: 2.5,
			Burst:             4,
			PingInterval:      15 * time.Second,
			WriteWait:         2 * time.Second,
			MaxMessageSize:    1024,
		}, cfg.Terminal)

		assert.Equal(t, ServerConfig{
			Dir:           "/srv/mc",
			Command:       "java",
			Args:          []string{"-jar", "server.jar", "nogui"},
			Properties:    "custom.properties",
			SavesDir:      "worlds",
			Commands:      []string{"say", "stop"},
			StopCommand:   "end",
			ReloadCommand: "reload confirm",
			StopTimeout:   time.Minute,
			JoinPattern:   `(\w+) joined`,
			LeavePattern:  `(\w+) left`,
		}, cfg.Server)

		assert.Equal(t, AuthConfig{TokenTTL: 2 * time.Hour, SigningKey: "sign-me"}, cfg.Auth)
	})
}

func TestConfigEnvironmentVariables(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "opctl.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("access_key: from-file\n"), 0644))

	t.Setenv("OPCTL_ACCESS_KEY", "from-env")
	t.Setenv("OPCTL_TERMINAL_HISTORY_SIZE", "42")
	t.Setenv("OPCTL_SERVER_STOP_TIMEOUT", "5s")

	cfg, err := LoadFromFile(configPath)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.AccessKey)
	assert.Equal(t, 42, cfg.Terminal.HistorySize)
	assert.Equal(t, 5*time.Second, cfg.Server.StopTimeout)
}

func TestYAMLRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.AccessKey = "generated"
	cfg.Server.Args = []string{"-jar", "server.jar"}

	data, err := cfg.YAML()
	require.NoError(t, err)
	assert.Contains(t, string(data), "ping_interval: 30s")

	path := filepath.Join(t.TempDir(), "opctl.yaml")
	require.NoError(t, os.WriteFile(path, data, 0644))

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.AccessKey, loaded.AccessKey)
	assert.Equal(t, cfg.Terminal, loaded.Terminal)
	assert.Equal(t, cfg.Server.Args, loaded.Server.Args)
	assert.Equal(t, cfg.Auth.TokenTTL, loaded.Auth.TokenTTL)
}

func TestFindConfigFile(t *testing.T) {
	chdir := func(t *testing.T) string {
		tmpDir := t.TempDir()
		origDir, _ := os.Getwd()
		os.Chdir(tmpDir)
		t.Cleanup(func() { os.Chdir(origDir) })
		t.Setenv("HOME", t.TempDir())
		t.Setenv("XDG_CONFIG_HOME", t.TempDir())
		return tmpDir
	}

	t.Run("finds .opctl.yaml in current directory", func(t *testing.T) {
		tmpDir := chdir(t)
		configPath := filepath.Join(tmpDir, ".opctl.yaml")
		require.NoError(t, os.WriteFile(configPath, []byte("format: text"), 0644))

		found := findConfigFile()
		// Resolve symlinks for comparison (macOS /var -> /private/var)
		expectedPath, _ := filepath.EvalSymlinks(configPath)
		foundPath, _ := filepath.EvalSymlinks(found)
		assert.Equal(t, expectedPath, foundPath)
	})

	t.Run("prefers opctl.yaml over .opctl.yaml", func(t *testing.T) {
		tmpDir := chdir(t)
		plain := filepath.Join(tmpDir, "opctl.yaml")
		require.NoError(t, os.WriteFile(plain, []byte("format: text"), 0644))
		require.NoError(t, os.WriteFile(filepath.Join(tmpDir, ".opctl.yaml"), []byte("format: ndjson"), 0644))

		expectedPath, _ := filepath.EvalSymlinks(plain)
		foundPath, _ := filepath.EvalSymlinks(findConfigFile())
		assert.Equal(t, expectedPath, foundPath)
	})

	t.Run("returns empty string when no config found", func(t *testing.T) {
		chdir(t)
		assert.Empty(t, findConfigFile())
	})
}

func TestWatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "opctl.yaml")
	require.NoError(t, os.WriteFile(path, []byte("access_key: one\n"), 0644))

	// A single write can surface as several events; never block the watcher.
	changes := make(chan *Config, 16)
	failures := make(chan error, 16)
	onChange := func(c *Config) {
		select {
		case changes <- c:
		default:
		}
	}
	onError := func(err error) {
		select {
		case failures <- err:
		default:
		}
	}
	require.NoError(t, Watch(path, onChange, onError))

	require.NoError(t, os.WriteFile(path, []byte("access_key: two\n"), 0644))
	deadline := time.After(5 * time.Second)
	for seen := false; !seen; {
		select {
		case cfg := <-changes:
			seen = cfg.AccessKey == "two"
		case <-deadline:
			t.Fatal("no change observed")
		}
	}

	require.NoError(t, os.WriteFile(path, []byte("access_key: \"\"\n"), 0644))
	select {
	case err := <-failures:
		assert.ErrorContains(t, err, "access_key")
	case <-time.After(5 * time.Second):
		t.Fatal("invalid revision not reported")
	}
}

func TestWatchMissingFile(t *testing.T) {
	assert.Error(t, Watch(filepath.Join(t.TempDir(), "absent.yaml"), func(*Config) {}, nil))
}
