package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/webitel/chat-core/config"
)

const (
	ServiceName      = "chat-core"
	ServiceNamespace = "webitel"
)

// Run is the process entrypoint, grounded on the teacher's cmd.Run: a
// single urfave/cli app with one "server" subcommand.
func Run() error {
	app := &cli.App{
		Name:  ServiceName,
		Usage: "Real-time one-to-one chat core",
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
		Usage:   "Run the chat core server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "Path to the configuration file",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, v, err := config.Load(os.Args[1:])
			if err != nil {
				return err
			}

			app := NewApp(cfg, v)
			if err := app.Start(c.Context); err != nil {
				return err
			}

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
			<-stop

			slog.Info("chat-core: shutting down")
			return app.Stop(context.Background())
		},
	}
}
