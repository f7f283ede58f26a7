package cmd

import (
	"log/slog"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/flywheel-gateway/control-plane/config"
	"github.com/flywheel-gateway/control-plane/internal/drain"
)

const (
	ServiceName = "flywheel-control-plane"
)

var (
	version    = "0.0.0"
	commit     = "hash"
	commitDate = time.Now().String()
	branch     = "branch"
)

// Run is the process entrypoint.
func Run() error {
	app := &cli.App{
		Name:  ServiceName,
		Usage: "Fan-out control plane: Hub, idempotency cache, and maintenance drain",
		Commands: []*cli.Command{
			serverCmd(),
		},
	}

	return app.Run(os.Args)
}

func serverCmd() *cli.Command {
	return &cli.Command{
		Name:    "server",
		Aliases: []string{"s"},
		Usage:   "Run the control plane server",
		Action: func(c *cli.Context) error {
			var logger *slog.Logger
			var drainCtl *drain.Controller
			var cfg config.Config

			app := NewApp(&logger, &drainCtl, &cfg)
			if err := app.Start(c.Context); err != nil {
				return err
			}

			drain.RunShutdownSequence(logger, drainCtl, cfg.DrainDeadlineSeconds, app.Stop)
			return nil
		},
	}
}
