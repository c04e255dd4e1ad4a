package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mcoot/relsync/internal/factory"
	"github.com/mcoot/relsync/internal/model"
)

// openApp builds an application from cfg for a one-shot command
func openApp(cmd *cobra.Command) (*factory.App, error) {
	fc := cfg.FactoryConfig()
	fc.Logger = newLogger(cmd)
	app, err := factory.New(fc)
	if err != nil {
		return nil, fmt.Errorf("failed to create application: %w", err)
	}
	return app, nil
}

func newReconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Fetch the relationship snapshot once and refresh the cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = app.Close() }()

			ctx := cmd.Context()
			if err := app.Engine.Init(ctx); err != nil {
				return err
			}
			report, err := app.Engine.Reconcile(ctx)
			if err != nil {
				return err
			}

			NewOutput(cfg.Output, cmd.OutOrStdout()).Print(report)
			return nil
		},
	}
}

func newStateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "state",
		Short: "Show the cached self record",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = app.Close() }()

			rec, err := app.Cache.GetSelf(cmd.Context())
			if err != nil {
				return err
			}

			NewOutput(cfg.Output, cmd.OutOrStdout()).Print(rec)
			return nil
		},
	}
}

func newProfileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "profile <id>",
		Short: "Show one cached peer profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := model.ParsePeerID(args[0])
			if err != nil {
				return fmt.Errorf("invalid peer id %q", args[0])
			}

			app, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = app.Close() }()

			profile, err := app.Cache.GetProfile(cmd.Context(), id)
			if err != nil {
				return err
			}

			NewOutput(cfg.Output, cmd.OutOrStdout()).Print(profile)
			return nil
		},
	}
}
