package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/loykin/dutywatch/internal/event"
	"github.com/loykin/dutywatch/pkg/client"
)

func createEventCommand(globalFlags *GlobalFlags) *cobra.Command {
	flags := &EventFlags{}
	cmd := &cobra.Command{
		Use:   "event",
		Short: "Ask the supervisor to restart the worker",
		Long: `Drop a restart request into the supervisor's event mailbox. The worker is
restarted at the next poll cycle and the reason is handed to it.

Examples:
  dutywatch event --reason hotfix
  dutywatch event --action restart --reason deploy --api-url=http://127.0.0.1:8787/api`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvent(cmd.Context(), cmd.OutOrStdout(), globalFlags, flags)
		},
	}
	cmd.Flags().StringVar(&flags.Action, "action", event.ActionRestart, "event action (only \"restart\" is supported)")
	cmd.Flags().StringVar(&flags.Reason, "reason", "", "free-text restart reason (default \""+event.DefaultReason+"\")")
	cmd.Flags().StringVar(&flags.APIUrl, "api-url", "", "send through the status API instead of the mailbox file")
	cmd.Flags().DurationVar(&flags.APITimeout, "api-timeout", defaultAPITimeout, "request timeout")
	return cmd
}

func runEvent(ctx context.Context, out io.Writer, globalFlags *GlobalFlags, flags *EventFlags) error {
	p := event.Payload{Action: flags.Action, Reason: flags.Reason}
	if err := p.Validate(); err != nil {
		return err
	}
	if flags.APIUrl != "" {
		if ctx == nil {
			ctx = context.Background()
		}
		c := client.New(client.Config{BaseURL: flags.APIUrl, Timeout: flags.APITimeout})
		if err := c.Restart(ctx, p.Reason); err != nil {
			return fmt.Errorf("send event: %w", err)
		}
		_, _ = fmt.Fprintln(out, "restart requested via", flags.APIUrl)
		return nil
	}

	layout, err := loadLayout(globalFlags)
	if err != nil {
		return err
	}
	if err := event.Write(layout.EventFile, p); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	_, _ = fmt.Fprintln(out, "restart requested:", layout.EventFile)
	return nil
}
