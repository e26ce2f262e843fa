// Package cli implements the opctl commands.
package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/alecthomas/kong"
	"go.uber.org/zap"

	"github.com/vburojevic/opctl/internal/config"
)

// Build information, set with -ldflags.
var (
	Version = "dev"
	Commit  = "none"
)

// CLI is the kong command tree.
type CLI struct {
	Format     string `short:"f" default:"${config_format}" enum:"text,ndjson" help:"Output format for command results (text, ndjson)"`
	Level      string `short:"l" default:"${config_level}" enum:"debug,info,warn,error" help:"Minimum log level"`
	Verbose    bool   `short:"v" help:"Enable debug logging"`
	ConfigFile string `name:"config" short:"c" type:"existingfile" help:"Config file (default: first opctl.yaml found in the search paths)"`

	Serve      ServeCmd      `cmd:"" help:"Run the control plane and supervise the server process"`
	Attach     AttachCmd     `cmd:"" help:"Attach to a running control plane's terminal"`
	Digest     DigestCmd     `cmd:"" help:"Print the terminal credential for an access key"`
	Schema     SchemaCmd     `cmd:"" help:"Output JSON Schema for terminal messages and attach output"`
	Config     ConfigCmd     `cmd:"" help:"Show or generate configuration"`
	Completion CompletionCmd `cmd:"" help:"Generate shell completions"`
	Version    VersionCmd    `cmd:"" help:"Show version information"`
}

// Vars exposes config values as flag defaults. Flags still win.
func Vars(cfg *config.Config) kong.Vars {
	if cfg == nil {
		cfg = config.Default()
	}
	return kong.Vars{
		"config_format": cfg.Format,
		"config_level":  cfg.Level,
	}
}

// Globals is passed to every command's Run.
type Globals struct {
	Format     string
	Level      string
	Verbose    bool
	Config     *config.Config
	ConfigPath string // empty when running on defaults and environment only
	Stdin      io.Reader
	Stdout     io.Writer
	Stderr     io.Writer

	logger *zap.Logger
}

// NewGlobalsWithConfig merges parsed flags over cfg. An explicit --config
// replaces cfg with the named file.
func NewGlobalsWithConfig(c *CLI, cfg *config.Config) (*Globals, error) {
	path := config.ConfigFile()
	if c.ConfigFile != "" {
		loaded, err := config.LoadFromFile(c.ConfigFile)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", c.ConfigFile, err)
		}
		cfg, path = loaded, c.ConfigFile
	}
	if cfg == nil {
		cfg = config.Default()
	}

	g := &Globals{
		Format:     c.Format,
		Level:      c.Level,
		Verbose:    c.Verbose || cfg.Verbose,
		Config:     cfg,
		ConfigPath: path,
		Stdin:      os.Stdin,
		Stdout:     os.Stdout,
		Stderr:     os.Stderr,
	}
	if g.Format == "" {
		g.Format = cfg.Format
	}
	if g.Level == "" {
		g.Level = cfg.Level
	}
	return g, nil
}

// Logger returns the process logger, building it on first use.
func (g *Globals) Logger() *zap.Logger {
	if g.logger == nil {
		logger, err := newLogger(g)
		if err != nil {
			fmt.Fprintf(g.Stderr, "Warning: %v, logging disabled\n", err)
			logger = zap.NewNop()
		}
		g.logger = logger
	}
	return g.logger
}

// Debug logs a formatted debug message.
func (g *Globals) Debug(format string, args ...interface{}) {
	g.Logger().Sugar().Debugf(format, args...)
}
