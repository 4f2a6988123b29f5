package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/loykin/dutywatch/pkg/client"
)

const defaultAPITimeout = 10 * time.Second

func createStatusCommand(globalFlags *GlobalFlags) *cobra.Command {
	flags := &StatusFlags{}
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show supervisor status",
		Long: `Query the running supervisor's status API. The URL defaults to the
api.listen address of the layout.

Examples:
  dutywatch status
  dutywatch status --api-url=http://127.0.0.1:8787/api --queue`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.Context(), cmd.OutOrStdout(), globalFlags, flags)
		},
	}
	cmd.Flags().StringVar(&flags.APIUrl, "api-url", "", "supervisor API URL (e.g. http://host:8787/api)")
	cmd.Flags().DurationVar(&flags.APITimeout, "api-timeout", defaultAPITimeout, "request timeout")
	cmd.Flags().BoolVar(&flags.Queue, "queue", false, "also list pending private messages")
	return cmd
}

func runStatus(ctx context.Context, out io.Writer, globalFlags *GlobalFlags, flags *StatusFlags) error {
	if ctx == nil {
		ctx = context.Background()
	}
	url := flags.APIUrl
	if url == "" {
		layout, err := loadLayout(globalFlags)
		if err != nil {
			return err
		}
		url = apiURLFromListen(layout.API.Listen, layout.API.BasePath)
	}
	if url == "" {
		return errors.New("no API configured: set api.listen in the layout or pass --api-url")
	}

	c := client.New(client.Config{BaseURL: url, Timeout: flags.APITimeout})
	st, err := c.Status(ctx)
	if err != nil {
		return fmt.Errorf("status: %w", err)
	}
	if err := printJSON(out, st); err != nil {
		return err
	}
	if flags.Queue {
		q, err := c.Queue(ctx)
		if err != nil {
			return fmt.Errorf("queue: %w", err)
		}
		return printJSON(out, q)
	}
	return nil
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
