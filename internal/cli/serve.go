package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vburojevic/opctl/internal/auth"
	"github.com/vburojevic/opctl/internal/config"
	"github.com/vburojevic/opctl/internal/hostloop"
	"github.com/vburojevic/opctl/internal/logcapture"
	"github.com/vburojevic/opctl/internal/platform/process"
	"github.com/vburojevic/opctl/internal/server"
)

// ServeCmd runs the control plane
type ServeCmd struct {
	Listen    string   `help:"Listen address (overrides listen)"`
	AccessKey string   `name:"access-key" env:"OPCTL_ACCESS_KEY" help:"Shared secret for the terminal and control API (overrides access_key)"`
	Dir       string   `help:"Working directory of the server process (overrides server.dir)"`
	Command   string   `help:"Server executable to supervise (overrides server.command)"`
	Args      []string `arg:"" optional:"" help:"Arguments for the server executable (after --)"`
	NoWatch   bool     `help:"Do not reload the config file when it changes"`
}

// apply returns a copy of cfg with the command line overrides applied.
func (c *ServeCmd) apply(cfg *config.Config) *config.Config {
	out := *cfg
	if c.Listen != "" {
		out.Listen = c.Listen
	}
	if c.AccessKey != "" {
		out.AccessKey = c.AccessKey
	}
	if c.Dir != "" {
		out.Server.Dir = c.Dir
	}
	if c.Command != "" {
		out.Server.Command = c.Command
	}
	if len(c.Args) > 0 {
		out.Server.Args = c.Args
	}
	return &out
}

func processConfig(cfg *config.Config) process.Config {
	return process.Config{
		Dir:            cfg.Server.Dir,
		Command:        cfg.Server.Command,
		Args:           cfg.Server.Args,
		PropertiesFile: cfg.Server.Properties,
		SavesDir:       cfg.Server.SavesDir,
		Commands:       cfg.Server.Commands,
		StopCommand:    cfg.Server.StopCommand,
		ReloadCommand:  cfg.Server.ReloadCommand,
		StopTimeout:    cfg.Server.StopTimeout,
		JoinPattern:    cfg.Server.JoinPattern,
		LeavePattern:   cfg.Server.LeavePattern,
	}
}

// Run executes the serve command
func (c *ServeCmd) Run(globals *Globals) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return c.run(ctx, globals)
}

func (c *ServeCmd) run(ctx context.Context, globals *Globals) error {
	cfg := c.apply(globals.Config)
	if err := cfg.Validate(); err != nil {
		return outputErrorCommon(globals, "INVALID_CONFIG", err.Error(), "set access_key in opctl.yaml or OPCTL_ACCESS_KEY")
	}

	restoreLogger := zap.ReplaceGlobals(globals.Logger())
	defer restoreLogger()

	level, _ := logLevel(globals)
	capture := logcapture.New(cfg.Terminal.HistorySize,
		logcapture.WithLevel(level),
		logcapture.WithRawLogger("server"),
		logcapture.WithIgnoredLogger(server.RegistryLogger),
	)
	capture.Start()
	defer capture.Stop()

	// Everything below logs through the captured global logger.
	log := zap.L()
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	loop := hostloop.New(0, log.Named("host"))
	proc, err := process.New(processConfig(cfg), loop, log.Named("platform"), log.Named("server"), nil)
	if err != nil {
		return outputErrorCommon(globals, "INVALID_CONFIG", err.Error())
	}

	tokens, err := auth.NewTokenManager(cfg.Auth.SigningKey, cfg.Auth.TokenTTL, nil)
	if err != nil {
		return outputErrorCommon(globals, "AUTH_SETUP_FAILED", err.Error())
	}

	srv := server.New(cfg, server.Deps{
		Platform: proc,
		Capture:  capture,
		Tokens:   tokens,
		Logger:   log,
	})
	defer srv.Close()

	if globals.ConfigPath != "" && !c.NoWatch {
		err := config.Watch(globals.ConfigPath, func(next *config.Config) {
			srv.Reconfigure(c.apply(next))
			log.Info("configuration reloaded", zap.String("path", globals.ConfigPath))
		}, func(err error) {
			log.Warn("configuration reload rejected", zap.Error(err))
		})
		if err != nil {
			log.Warn("config watch disabled", zap.String("path", globals.ConfigPath), zap.Error(err))
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return loop.Run(gctx)
	})
	g.Go(func() error {
		// The control plane lives as long as the server process.
		defer cancel()
		return proc.Run(gctx)
	})
	g.Go(func() error {
		return srv.ListenAndServe(gctx)
	})

	if err := g.Wait(); err != nil {
		log.Error("control plane stopped", zap.Error(err))
		return outputErrorCommon(globals, "SERVE_FAILED", err.Error())
	}
	log.Info("control plane stopped")
	return nil
}
