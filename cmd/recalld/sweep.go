package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/recalld/internal/logging"
	"github.com/fyrsmithlabs/recalld/internal/scheduler"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run one maintenance and consolidation pass, then exit",
	Long: `Run the background jobs once in the foreground: hard-expire overdue
entries, then sweep every tenant for consolidation candidates. Useful
from cron or for catching up after downtime.`,
	RunE: runSweep,
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer logger.Sync()

	stack, err := buildStack(cfg, logger)
	if err != nil {
		return err
	}
	defer stack.Close()

	sched, err := scheduler.New(stack.store, stack.consolidation, cfg.Scheduler, logger)
	if err != nil {
		return fmt.Errorf("initializing scheduler: %w", err)
	}

	ctx := cmd.Context()
	sched.RunMaintenanceNow(ctx)
	sched.RunConsolidationNow(ctx)
	return nil
}
