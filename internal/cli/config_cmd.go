package cli

import (
	"fmt"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/vburojevic/opctl/internal/config"
	"github.com/vburojevic/opctl/internal/output"
)

// ConfigCmd groups the configuration subcommands
type ConfigCmd struct {
	Show     ConfigShowCmd     `cmd:"" default:"1" help:"Show the effective configuration"`
	Path     ConfigPathCmd     `cmd:"" help:"Show which config file is used"`
	Generate ConfigGenerateCmd `cmd:"" help:"Print a sample config file"`
}

// ConfigShowCmd prints the effective configuration
type ConfigShowCmd struct {
	ShowSecrets bool `help:"Print access_key and signing_key instead of masking them"`
}

func mask(secret string, show bool) string {
	if show || secret == "" {
		return secret
	}
	return "********"
}

func (c *ConfigShowCmd) rows(cfg *config.Config) [][]string {
	return [][]string{
		{"listen", cfg.Listen},
		{"access_key", mask(cfg.AccessKey, c.ShowSecrets)},
		{"format", cfg.Format},
		{"level", cfg.Level},
		{"verbose", fmt.Sprint(cfg.Verbose)},
		{"terminal.history_size", fmt.Sprint(cfg.Terminal.HistorySize)},
		{"terminal.send_buffer", fmt.Sprint(cfg.Terminal.SendBuffer)},
		{"terminal.max_send_failures", fmt.Sprint(cfg.Terminal.MaxSendFailures)},
		{"terminal.messages_per_second", fmt.Sprint(cfg.Terminal.MessagesPerSecond)},
		{"terminal.burst", fmt.Sprint(cfg.Terminal.Burst)},
		{"terminal.ping_interval", cfg.Terminal.PingInterval.String()},
		{"terminal.write_wait", cfg.Terminal.WriteWait.String()},
		{"terminal.max_message_size", fmt.Sprint(cfg.Terminal.MaxMessageSize)},
		{"server.dir", cfg.Server.Dir},
		{"server.command", cfg.Server.Command},
		{"server.args", strings.Join(cfg.Server.Args, " ")},
		{"server.properties", cfg.Server.Properties},
		{"server.saves_dir", cfg.Server.SavesDir},
		{"server.commands", strings.Join(cfg.Server.Commands, ", ")},
		{"server.stop_command", cfg.Server.StopCommand},
		{"server.reload_command", cfg.Server.ReloadCommand},
		{"server.stop_timeout", cfg.Server.StopTimeout.String()},
		{"server.join_pattern", cfg.Server.JoinPattern},
		{"server.leave_pattern", cfg.Server.LeavePattern},
		{"auth.token_ttl", cfg.Auth.TokenTTL.String()},
		{"auth.signing_key", mask(cfg.Auth.SigningKey, c.ShowSecrets)},
	}
}

// Run executes the config show command
func (c *ConfigShowCmd) Run(globals *Globals) error {
	cfg := globals.Config
	if cfg == nil {
		cfg = config.Default()
	}
	rows := c.rows(cfg)

	if globals.Format == "ndjson" {
		values := make(map[string]string, len(rows))
		for _, row := range rows {
			values[row[0]] = row[1]
		}
		return output.NewNDJSONWriter(globals.Stdout).WriteObject(map[string]interface{}{
			"type":          "config",
			"schemaVersion": output.SchemaVersion,
			"path":          globals.ConfigPath,
			"values":        values,
		})
	}

	source := globals.ConfigPath
	if source == "" {
		source = "defaults and environment"
	}
	fmt.Fprintf(globals.Stdout, "Current Configuration (%s):\n", source)

	table := tablewriter.NewWriter(globals.Stdout)
	table.Header("Key", "Value")
	for _, row := range rows {
		if err := table.Append(row); err != nil {
			return err
		}
	}
	return table.Render()
}

// ConfigPathCmd shows the config file in use and where files are searched
type ConfigPathCmd struct{}

// Run executes the config path command
func (c *ConfigPathCmd) Run(globals *Globals) error {
	if globals.Format == "ndjson" {
		return output.NewNDJSONWriter(globals.Stdout).WriteObject(map[string]interface{}{
			"type":          "config_path",
			"schemaVersion": output.SchemaVersion,
			"path":          globals.ConfigPath,
			"search_paths":  config.SearchPaths(),
		})
	}

	if globals.ConfigPath != "" {
		fmt.Fprintf(globals.Stdout, "Config file: %s\n", globals.ConfigPath)
	} else {
		fmt.Fprintln(globals.Stdout, "No configuration file found")
	}
	fmt.Fprintln(globals.Stdout, "Search paths (highest precedence last):")
	for _, p := range config.SearchPaths() {
		fmt.Fprintf(globals.Stdout, "  %s/{opctl,.opctl}.{yaml,yml}\n", p)
	}
	return nil
}

// ConfigGenerateCmd prints a commented sample config
type ConfigGenerateCmd struct{}

const configHeader = `# opctl configuration file
# Place at ./opctl.yaml, ~/.opctl.yaml, <user config dir>/opctl/opctl.yaml or /etc/opctl/opctl.yaml
# Every key can be overridden with OPCTL_<KEY>, e.g. OPCTL_ACCESS_KEY or OPCTL_TERMINAL_HISTORY_SIZE.
# Changes to access_key and terminal.* apply to new connections without a restart.
`

// Run executes the config generate command
func (c *ConfigGenerateCmd) Run(globals *Globals) error {
	sample := config.Default()
	sample.AccessKey = "change-me"
	sample.Server.Command = "java"
	sample.Server.Args = []string{"-Xmx2G", "-jar", "server.jar", "nogui"}
	sample.Server.SavesDir = "."
	sample.Server.Commands = []string{"help", "list", "say", "save-all", "stop", "tp", "weather", "whitelist"}

	data, err := sample.YAML()
	if err != nil {
		return err
	}
	fmt.Fprint(globals.Stdout, configHeader)
	_, err = globals.Stdout.Write(data)
	return err
}
