package main

import (
	"context"
	"fmt"
	"os/user"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alexisbeaulieu97/conveyor/internal/model"
	"github.com/alexisbeaulieu97/conveyor/internal/trigger"
)

type runOptions struct {
	ConfigPath  string
	TriggerName string
	Params      []string
}

func newRunCmd(root *rootFlags) *cobra.Command {
	opts := runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Trigger a pipeline run and wait for it to finish",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd, root, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", "", "Path to pipeline definition file")
	cmd.Flags().StringVarP(&opts.TriggerName, "trigger", "t", "", "Name of the trigger to fire")
	cmd.Flags().StringArrayVarP(&opts.Params, "param", "p", nil, "Trigger parameter as key=value (repeatable)")
	cmd.MarkFlagRequired("config")  //nolint:errcheck
	cmd.MarkFlagRequired("trigger") //nolint:errcheck

	return cmd
}

func runPipeline(cmd *cobra.Command, root *rootFlags, opts runOptions) error {
	def, err := loadDefinition(opts.ConfigPath)
	if err != nil {
		return err
	}

	params, err := parseParams(opts.Params)
	if err != nil {
		return err
	}

	app, err := newAppContext(root.verbose)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	run, err := app.trigger.TriggerRun(ctx, def, trigger.Request{
		PipelineName: def.Name,
		TriggerName:  opts.TriggerName,
		Parameters:   params,
		Identity:     localIdentity(),
	})
	if err != nil {
		return err
	}

	app.runner.WaitForRun(run.ID)

	final, err := app.store.GetRun(ctx, run.ID)
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), renderRunSummary(final))
	if final.State() == model.RunStateFailed {
		return fmt.Errorf("run %s failed", final.ID)
	}
	return nil
}

func parseParams(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	params := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid parameter %q, expected key=value", pair)
		}
		params[key] = value
	}
	return params, nil
}

func localIdentity() model.Identity {
	current, err := user.Current()
	if err != nil {
		return model.Identity{Name: "local", UPN: "local"}
	}
	return model.Identity{Name: current.Name, UPN: current.Username}
}
