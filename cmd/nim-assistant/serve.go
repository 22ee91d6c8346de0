package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/becomeliminal/nim-assistant/server"
)

func init() {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the chat server and background jobs",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	cmd.Flags().String("addr", "", "Override server.addr")
	cmd.Flags().Bool("no-jobs", false, "Do not run scheduled jobs")
	rootCmd.AddCommand(cmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	addr, _ := cmd.Flags().GetString("addr")
	noJobs, _ := cmd.Flags().GetBool("no-jobs")

	return withApp(cmd, func(ctx context.Context, a *app) error {
		ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer stop()

		if addr != "" {
			a.cfg.Server.Addr = addr
		}

		if !noJobs {
			sched, err := a.scheduler()
			if err != nil {
				return err
			}
			sched.Start()
			defer sched.Stop()
		}

		srv := server.New(a.svc, server.Config{
			Addr:            a.cfg.Server.Addr,
			GRPCAddr:        a.cfg.Server.GRPCAddr,
			ShutdownTimeout: a.cfg.Server.ShutdownTimeout,
		}, server.WithLogger(a.logger), server.WithPinger(a.store), server.WithGatherer(a.registry))
		return srv.Run(ctx)
	})
}
