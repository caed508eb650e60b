package stress

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/soeux/permits/config"
	"github.com/soeux/permits/database"
	"github.com/urfave/cli/v2"
)

// HandleRun performs a stress run with cfg, stores it and prints the summary.
// An interrupted run is still stored but is not reported as an error.
func HandleRun(c *cli.Context, cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := parentContext(c.Context)
	defer stop()

	db, err := database.NewDB(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	run, err := NewRunner(cfg, logger).Run(ctx)
	if run != nil {
		if serr := db.SaveRun(run); serr != nil {
			logger.Error("failed to store run", "error", serr)
			if err == nil {
				err = serr
			}
		}
		fmt.Fprintln(c.App.Writer, run)
	}

	if err != nil {
		if isContextCanceledError(err) {
			logger.Warn("stress run cancelled")
			return nil
		}
		return err
	}

	return nil
}

// HandleHistory prints up to limit stored runs, newest first.
func HandleHistory(c *cli.Context, cfg *config.Config, limit int) error {
	db, err := database.NewDB(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	runs, err := db.Runs(limit)
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Fprintln(c.App.Writer, "no runs recorded")
		return nil
	}
	for _, run := range runs {
		fmt.Fprintln(c.App.Writer, run)
	}
	return nil
}

// parentContext returns a context cancelled on SIGINT, SIGQUIT or SIGTERM.
func parentContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGQUIT, syscall.SIGTERM)
}

func isContextCanceledError(err error) bool {
	return errors.Is(err, context.Canceled)
}
