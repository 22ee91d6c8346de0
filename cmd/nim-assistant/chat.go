package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/becomeliminal/nim-assistant/assistant"
)

func init() {
	chat := &cobra.Command{
		Use:   "chat [message]",
		Short: "Talk to the assistant",
		Long:  "Send one message, or start an interactive session when no message is given.",
		RunE:  runChat,
	}
	chat.Flags().StringP("thread", "t", "", "Thread to continue (default: a new thread)")
	chat.Flags().Bool("stream", false, "Print the reply as it is generated")
	rootCmd.AddCommand(chat)

	draft := &cobra.Command{
		Use:   "draft <task-id>",
		Short: "Draft a message about a task",
		Args:  cobra.ExactArgs(1),
		RunE:  runDraft,
	}
	draft.Flags().String("type", "", "Message type, e.g. follow-up, reminder, status-update")
	draft.Flags().String("lang", "", "Language (default: English)")
	draft.Flags().Bool("html", false, "Also render the draft as HTML")
	draft.Flags().Bool("refresh", false, "Regenerate even if a draft is cached")
	rootCmd.AddCommand(draft)
}

func runChat(cmd *cobra.Command, args []string) error {
	thread, _ := cmd.Flags().GetString("thread")
	if thread == "" {
		thread = uuid.New().String()
	}
	stream, _ := cmd.Flags().GetBool("stream")

	return withApp(cmd, func(ctx context.Context, a *app) error {
		scanner := bufio.NewScanner(os.Stdin)

		var streamed bool
		var onChunk func(string, bool)
		if stream {
			onChunk = func(chunk string, done bool) {
				if chunk != "" {
					streamed = true
					fmt.Print(chunk)
				}
				if done && streamed {
					fmt.Println()
				}
			}
		}

		var show func(resp *assistant.ChatResponse) error
		show = func(resp *assistant.ChatResponse) error {
			switch {
			case !streamed:
				fmt.Println(resp.Response)
			case resp.PendingAction != nil:
				fmt.Printf("I'd like to run %s.\n", resp.PendingAction.Summary)
			}
			streamed = false
			for _, w := range resp.Warnings {
				fmt.Fprintf(os.Stderr, "warning: %s\n", w)
			}
			if resp.PendingAction == nil {
				return nil
			}
			fmt.Fprint(os.Stderr, "confirm? [y/N] ")
			approve := false
			if scanner.Scan() {
				answer := strings.ToLower(strings.TrimSpace(scanner.Text()))
				approve = answer == "y" || answer == "yes"
			}
			next, err := a.svc.Confirm(ctx, assistant.ConfirmRequest{
				ThreadID: thread,
				ActionID: resp.PendingAction.ID,
				Approve:  approve,
				Stream:   onChunk,
			})
			if err != nil {
				return err
			}
			return show(next)
		}

		send := func(msg string) error {
			resp, err := a.svc.Chat(ctx, assistant.ChatRequest{ThreadID: thread, Message: msg, Stream: onChunk})
			if err != nil {
				return err
			}
			return show(resp)
		}

		if len(args) > 0 {
			return send(strings.Join(args, " "))
		}

		fmt.Fprintf(os.Stderr, "thread %s (ctrl-d to quit)\n", thread)
		for {
			fmt.Fprint(os.Stderr, "> ")
			if !scanner.Scan() {
				fmt.Fprintln(os.Stderr)
				return scanner.Err()
			}
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			if err := send(line); err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
			}
		}
	})
}

func runDraft(cmd *cobra.Command, args []string) error {
	typ, _ := cmd.Flags().GetString("type")
	lang, _ := cmd.Flags().GetString("lang")
	html, _ := cmd.Flags().GetBool("html")
	refresh, _ := cmd.Flags().GetBool("refresh")

	return withApp(cmd, func(ctx context.Context, a *app) error {
		resp, err := a.svc.ComposeDraft(ctx, assistant.DraftRequest{
			TaskID:      args[0],
			MessageType: typ,
			Language:    lang,
			HTML:        html,
			Refresh:     refresh,
		})
		if err != nil {
			return err
		}
		return printJSON(resp)
	})
}
