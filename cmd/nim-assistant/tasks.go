package main

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/becomeliminal/nim-assistant/core"
	"github.com/becomeliminal/nim-assistant/store"
)

func init() {
	task := &cobra.Command{
		Use:   "task",
		Short: "Manage tasks",
	}

	add := &cobra.Command{
		Use:   "add <title>",
		Short: "Create a task",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runTaskAdd,
	}
	add.Flags().String("description", "", "Task description")
	add.Flags().String("status", "open", "Initial status")
	add.Flags().String("due", "", "Due date, RFC3339 or YYYY-MM-DD")

	list := &cobra.Command{
		Use:   "list",
		Short: "List tasks by priority",
		Args:  cobra.NoArgs,
		RunE:  runTaskList,
	}
	list.Flags().StringSlice("status", nil, "Only these statuses")
	list.Flags().Bool("without-due", false, "Only tasks without a due date")

	get := &cobra.Command{
		Use:   "get <id>",
		Short: "Show a task",
		Args:  cobra.ExactArgs(1),
		RunE:  runTaskGet,
	}

	update := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a task",
		Args:  cobra.ExactArgs(1),
		RunE:  runTaskUpdate,
	}
	update.Flags().String("title", "", "New title")
	update.Flags().String("description", "", "New description")
	update.Flags().String("status", "", "New status")
	update.Flags().String("due", "", "New due date")
	update.Flags().Bool("clear-due", false, "Remove the due date")

	task.AddCommand(add, list, get, update)
	rootCmd.AddCommand(task)
}

func runTaskAdd(cmd *cobra.Command, args []string) error {
	desc, _ := cmd.Flags().GetString("description")
	status, _ := cmd.Flags().GetString("status")
	due, _ := cmd.Flags().GetString("due")

	st, err := core.ParseTaskStatus(status)
	if err != nil {
		return err
	}
	in := core.NewTask{Title: strings.Join(args, " "), Description: desc, Status: st}
	if due != "" {
		d, err := core.ParseDue(due)
		if err != nil {
			return err
		}
		in.DueAt = &d
	}

	return withApp(cmd, func(ctx context.Context, a *app) error {
		t, err := a.svc.CreateTask(ctx, in)
		if err != nil {
			return err
		}
		return printJSON(t)
	})
}

func runTaskList(cmd *cobra.Command, args []string) error {
	statuses, _ := cmd.Flags().GetStringSlice("status")
	withoutDue, _ := cmd.Flags().GetBool("without-due")

	filter := store.TaskFilter{WithoutDue: withoutDue}
	for _, s := range statuses {
		st, err := core.ParseTaskStatus(s)
		if err != nil {
			return err
		}
		filter.Statuses = append(filter.Statuses, st)
	}

	return withApp(cmd, func(ctx context.Context, a *app) error {
		tasks, err := a.svc.ListTasks(ctx, filter)
		if err != nil {
			return err
		}
		return printJSON(tasks)
	})
}

func runTaskGet(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		t, err := a.svc.GetTask(ctx, args[0])
		if err != nil {
			return err
		}
		return printJSON(t)
	})
}

func runTaskUpdate(cmd *cobra.Command, args []string) error {
	var update core.TaskUpdate
	flags := cmd.Flags()
	if flags.Changed("title") {
		v, _ := flags.GetString("title")
		update.Title = &v
	}
	if flags.Changed("description") {
		v, _ := flags.GetString("description")
		update.Description = &v
	}
	if flags.Changed("status") {
		v, _ := flags.GetString("status")
		st, err := core.ParseTaskStatus(v)
		if err != nil {
			return err
		}
		update.Status = &st
	}
	if flags.Changed("due") {
		v, _ := flags.GetString("due")
		d, err := core.ParseDue(v)
		if err != nil {
			return err
		}
		update.DueAt = &d
	}
	update.ClearDue, _ = flags.GetBool("clear-due")

	return withApp(cmd, func(ctx context.Context, a *app) error {
		t, err := a.svc.UpdateTask(ctx, args[0], update)
		if err != nil {
			return err
		}
		return printJSON(t)
	})
}
