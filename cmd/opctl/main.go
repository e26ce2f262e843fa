package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	"github.com/vburojevic/opctl/internal/cli"
	"github.com/vburojevic/opctl/internal/config"
)

const quickStart = `opctl - remote console and control API for a game server

Quick start:
  opctl config generate > opctl.yaml   Write a sample config
  opctl serve                          Run the control plane (and the server, if configured)
  opctl attach localhost:3000          Follow logs and run commands

For help:
  opctl --help                         All commands and flags
`

func main() {
	if len(os.Args) == 1 {
		fmt.Print(quickStart)
		return
	}

	// Load configuration from files/environment
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to load config: %v\n", err)
		cfg = config.Default()
	}

	var c cli.CLI
	ctx := kong.Parse(&c,
		kong.Name("opctl"),
		kong.Description("opctl: authenticated terminal and control API for a supervised game server"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
			Summary: true,
		}),
		cli.Vars(cfg),
	)

	globals, err := cli.NewGlobalsWithConfig(&c, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := ctx.Run(globals); err != nil {
		os.Exit(1)
	}
}
