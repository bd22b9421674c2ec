// Package main provides tablectl, the command line for inspecting and operating a table.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/devrev/tablecore/internal/config"
	"github.com/devrev/tablecore/internal/logging"
)

// env is the state shared by every command once global flags are parsed
type env struct {
	cfg    *config.Config
	logger *zap.Logger
}

func newApp(out io.Writer, in io.Reader) *cli.App {
	e := &env{}
	return &cli.App{
		Name:   "tablectl",
		Usage:  "inspect and operate a merge-on-read table",
		Writer: out,
		Reader: in,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "path to the configuration file",
				EnvVars: []string{"CONFIG_PATH"},
			},
			&cli.StringFlag{
				Name:  "base-path",
				Usage: "table base path, overrides table.base_path",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level written to stderr",
				Value: "warn",
			},
		},
		Before: func(c *cli.Context) error {
			cfg, err := config.LoadConfig(c.String("config"))
			if err != nil {
				return err
			}
			if p := c.String("base-path"); p != "" {
				cfg.Table.BasePath = p
			}
			if cfg.Table.BasePath == "" {
				return errors.New("table base path is required (--base-path or table.base_path)")
			}
			cfg.Logging.Level = c.String("log-level")
			cfg.Logging.Format = "console"
			logger, err := logging.New(cfg.Logging)
			if err != nil {
				return err
			}
			e.cfg, e.logger = cfg, logger
			return nil
		},
		After: func(c *cli.Context) error {
			if e.logger != nil {
				_ = e.logger.Sync()
			}
			return nil
		},
		Commands: []*cli.Command{
			initCommand(e),
			writeCommand(e),
			timelineCommand(e),
			fsviewCommand(e),
			compactionCommand(e),
		},
	}
}

func main() {
	if err := newApp(os.Stdout, os.Stdin).Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
