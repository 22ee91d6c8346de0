package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func init() {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Validate and print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Anthropic.APIKey != "" {
				cfg.Anthropic.APIKey = "<redacted>"
			}
			if cfg.Redis.Password != "" {
				cfg.Redis.Password = "<redacted>"
			}
			out, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("marshal config: %w", err)
			}
			fmt.Print(string(out))
			return nil
		},
	}

	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Run every background job once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				sched, err := a.scheduler()
				if err != nil {
					return err
				}
				defer sched.Stop()
				return sched.RunAll(ctx)
			})
		},
	}

	rootCmd.AddCommand(configCmd, jobsCmd)
}
