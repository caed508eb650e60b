package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/soeux/permits/config"
	"github.com/soeux/permits/stress"
	"github.com/urfave/cli/v2"
)

var (
	logger *slog.Logger
	cfg    *config.Config
)

func newApp() *cli.App {
	return &cli.App{
		Name:    "permits",
		Version: "v0.1",
		Usage:   "stress a FIFO counting semaphore and keep a history of the runs",
		Before: func(c *cli.Context) error {
			logLevel := slog.LevelError
			if c.Bool("debug") {
				logLevel = slog.LevelDebug
			}
			logger = slog.New(slog.NewTextHandler(c.App.ErrWriter, &slog.HandlerOptions{Level: logLevel}))
			slog.SetDefault(logger)

			var err error
			cfg, err = config.LoadConfigOrDefault(c.String("config"))
			return err
		},
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "debug",
				Aliases: []string{"d"},
				Usage:   "enable debug logging output",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "load configuration from `FILE`",
				Value:   "permits.toml",
			},
			&cli.StringFlag{
				Name:  "db",
				Usage: "store runs in `PATH` instead of the configured db_path",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "run the stress workload once and store the result",
				Flags: []cli.Flag{
					&cli.Int64Flag{Name: "permits", Aliases: []string{"p"}, Usage: "number of permits"},
					&cli.IntFlag{Name: "workers", Aliases: []string{"w"}, Usage: "number of concurrent workers"},
					&cli.IntFlag{Name: "rounds", Aliases: []string{"r"}, Usage: "operations per worker"},
					&cli.DurationFlag{Name: "hold", Usage: "time spent holding each permit"},
					&cli.Uint64Flag{Name: "seed", Usage: "random seed, 0 picks one"},
				},
				Action: func(c *cli.Context) error {
					applyOverrides(c)
					return stress.HandleRun(c, cfg, logger)
				},
			},
			{
				Name:  "history",
				Usage: "list stored runs, newest first",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Usage: "show at most `N` runs", Value: 10},
				},
				Action: func(c *cli.Context) error {
					applyOverrides(c)
					return stress.HandleHistory(c, cfg, c.Int("limit"))
				},
			},
		},
	}
}

// applyOverrides copies flags the user set over the loaded configuration.
func applyOverrides(c *cli.Context) {
	if c.IsSet("db") {
		cfg.Database = c.String("db")
	}
	if c.IsSet("permits") {
		cfg.Permits = c.Int64("permits")
	}
	if c.IsSet("workers") {
		cfg.Workers = c.Int("workers")
	}
	if c.IsSet("rounds") {
		cfg.Rounds = c.Int("rounds")
	}
	if c.IsSet("hold") {
		cfg.Hold = c.Duration("hold")
	}
	if c.IsSet("seed") {
		cfg.Seed = c.Uint64("seed")
	}
}

func main() {
	err := newApp().Run(os.Args)
	if err != nil {
		fmt.Fprintln(cli.ErrWriter, err)
		cli.OsExiter(1)
	}
}
