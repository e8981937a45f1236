package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/alexisbeaulieu97/conveyor/internal/config"
	"github.com/alexisbeaulieu97/conveyor/internal/scheduler"
)

type scheduleOptions struct {
	ConfigPaths []string
	Interval    time.Duration
}

func newScheduleCmd(root *rootFlags) *cobra.Command {
	opts := scheduleOptions{}

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run the scheduler for the given pipeline definitions until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScheduler(cmd, root, opts)
		},
	}

	cmd.Flags().StringArrayVarP(&opts.ConfigPaths, "config", "c", nil, "Path to a pipeline definition file (repeatable)")
	cmd.Flags().DurationVar(&opts.Interval, "interval", scheduler.DefaultInterval, "How often to evaluate trigger schedules")
	cmd.MarkFlagRequired("config") //nolint:errcheck

	return cmd
}

func runScheduler(cmd *cobra.Command, root *rootFlags, opts scheduleOptions) error {
	definitions := make([]*config.Definition, 0, len(opts.ConfigPaths))
	for _, path := range opts.ConfigPaths {
		def, err := loadDefinition(path)
		if err != nil {
			return err
		}
		definitions = append(definitions, def)
	}

	app, err := newAppContext(root.verbose)
	if err != nil {
		return err
	}
	defer app.Close()

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sched := scheduler.New(definitions, app.trigger, app.store, app.log, scheduler.Options{
		Interval: opts.Interval,
	})
	sched.Run(ctx)
	return nil
}
