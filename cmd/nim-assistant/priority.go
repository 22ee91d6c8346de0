package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/becomeliminal/nim-assistant/core"
)

func init() {
	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "recalc",
			Short: "Recompute every task's priority score",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withApp(cmd, func(ctx context.Context, a *app) error {
					resp, err := a.svc.RecalculatePriorities(ctx)
					if err != nil {
						return err
					}
					return printJSON(resp)
				})
			},
		},
		&cobra.Command{
			Use:   "next",
			Short: "Recommend the next task to work on",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withApp(cmd, func(ctx context.Context, a *app) error {
					resp, err := a.svc.GetNextAction(ctx)
					if err != nil {
						return err
					}
					return printJSON(resp)
				})
			},
		},
		&cobra.Command{
			Use:   "deadlines",
			Short: "Suggest due dates for tasks without one",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withApp(cmd, func(ctx context.Context, a *app) error {
					resp, err := a.svc.SuggestDeadlines(ctx)
					if err != nil {
						return err
					}
					return printJSON(resp)
				})
			},
		},
	)

	alerts := &cobra.Command{
		Use:   "alerts",
		Short: "Show overdue and stuck tasks",
		Args:  cobra.NoArgs,
		RunE:  runAlerts,
	}
	alerts.Flags().Bool("notify", false, "Also publish the alerts")
	rootCmd.AddCommand(alerts)
}

func runAlerts(cmd *cobra.Command, args []string) error {
	publish, _ := cmd.Flags().GetBool("notify")
	return withApp(cmd, func(ctx context.Context, a *app) error {
		resp, err := a.svc.CheckAlerts(ctx)
		if err != nil {
			return err
		}
		if publish {
			all := make([]core.Alert, 0, resp.OverdueCount+resp.StuckCount)
			all = append(all, resp.OverdueTasks...)
			all = append(all, resp.StuckTasks...)
			if err := a.notifier().Notify(ctx, all); err != nil {
				return err
			}
		}
		return printJSON(resp)
	})
}
