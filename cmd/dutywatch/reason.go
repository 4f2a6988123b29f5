package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/loykin/dutywatch/internal/reason"
)

func createReasonCommand(globalFlags *GlobalFlags) *cobra.Command {
	flags := &ReasonFlags{}
	cmd := &cobra.Command{
		Use:   "reason",
		Short: "Print the pending restart reason",
		Long: `Print the reason the worker was last (re)started for. Workers not written
in Go can call "dutywatch reason --consume" once at startup; it prints the
reason, removes the file, and prints "initial" when nothing is pending.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReason(cmd.OutOrStdout(), globalFlags, flags)
		},
	}
	cmd.Flags().BoolVar(&flags.Consume, "consume", false, "remove the reason after reading it")
	return cmd
}

func runReason(out io.Writer, globalFlags *GlobalFlags, flags *ReasonFlags) error {
	layout, err := loadLayout(globalFlags)
	if err != nil {
		return err
	}
	var r reason.Reason
	if flags.Consume {
		r = reason.Consume(layout.ReasonFile)
	} else {
		r, err = reason.Read(layout.ReasonFile)
		if err != nil {
			return err
		}
	}
	_, _ = fmt.Fprintln(out, r)
	return nil
}
