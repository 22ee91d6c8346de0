package main

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/becomeliminal/nim-assistant/assistant"
)

func init() {
	remember := &cobra.Command{
		Use:   "remember <content>",
		Short: "Store a memory",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runRemember,
	}
	remember.Flags().String("type", "", "Memory type: preference, fact, conversation, contact, general")
	remember.Flags().Float64("importance", -1, "Importance in [0, 1]")
	remember.Flags().String("entity", "", "Linked entity, e.g. a task id")
	remember.Flags().String("source", "cli", "Where the memory came from")

	search := &cobra.Command{
		Use:   "search <query>",
		Short: "Search memories by meaning",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runSearch,
	}
	search.Flags().IntP("limit", "l", 10, "Max results")
	search.Flags().Float64("min-similarity", -1, "Similarity floor in [0, 1]")
	search.Flags().String("type", "", "Only this memory type")
	search.Flags().String("entity", "", "Only this entity")

	reconcile := &cobra.Command{
		Use:   "reconcile",
		Short: "Index memories whose index write failed",
		Args:  cobra.NoArgs,
		RunE:  runReconcile,
	}
	reconcile.Flags().Int("limit", 100, "Max memories to index")

	rootCmd.AddCommand(remember, search, reconcile)
}

func runRemember(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	req := assistant.RememberRequest{Content: strings.Join(args, " ")}
	req.Type, _ = flags.GetString("type")
	req.EntityID, _ = flags.GetString("entity")
	req.Source, _ = flags.GetString("source")
	if flags.Changed("importance") {
		v, _ := flags.GetFloat64("importance")
		req.Importance = &v
	}

	return withApp(cmd, func(ctx context.Context, a *app) error {
		resp, err := a.svc.RememberMemory(ctx, req)
		if err != nil {
			return err
		}
		return printJSON(resp)
	})
}

func runSearch(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	req := assistant.SearchRequest{Query: strings.Join(args, " "), Filter: map[string]string{}}
	req.Limit, _ = flags.GetInt("limit")
	if flags.Changed("min-similarity") {
		v, _ := flags.GetFloat64("min-similarity")
		req.MinSimilarity = &v
	}
	if v, _ := flags.GetString("type"); v != "" {
		req.Filter["type"] = v
	}
	if v, _ := flags.GetString("entity"); v != "" {
		req.Filter["entity_id"] = v
	}

	return withApp(cmd, func(ctx context.Context, a *app) error {
		resp, err := a.svc.SearchMemory(ctx, req)
		if err != nil {
			return err
		}
		return printJSON(resp)
	})
}

func runReconcile(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	return withApp(cmd, func(ctx context.Context, a *app) error {
		resp, err := a.svc.Reconcile(ctx, limit)
		if err != nil {
			return err
		}
		return printJSON(resp)
	})
}
