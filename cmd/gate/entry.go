package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/alfredjeanlab/gatepass/internal/ui"
	"github.com/spf13/cobra"
)

var showCmd = &cobra.Command{
	Use:     "show <entry>",
	Short:   "Show a gate entry",
	GroupID: "register",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := gateClient.GetEntry(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(e)
			return nil
		}
		printEntry(e)
		return nil
	},
}

var eventsCmd = &cobra.Command{
	Use:     "events <entry>",
	Short:   "Show the audit trail of a gate entry",
	GroupID: "register",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		evts, err := gateClient.GetEvents(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(evts)
			return nil
		}
		if len(evts) == 0 {
			fmt.Println("No events.")
			return nil
		}
		printEvents(evts)
		return nil
	},
}

var printCmd = &cobra.Command{
	Use:     "print <entry>",
	Short:   "Download the printable gate pass",
	GroupID: "register",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := gateClient.Print(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		out, _ := cmd.Flags().GetString("output")
		if out == "" {
			out = d.Filename
		}
		if out == "" {
			out = "gate_pass_" + args[0] + ".pdf"
		}
		if err := os.WriteFile(out, d.Data, 0o644); err != nil {
			return err
		}
		fmt.Printf("Wrote %s (%d bytes)\n", out, len(d.Data))
		return nil
	},
}

var changeCmd = &cobra.Command{
	Use:     "change <entry>",
	Short:   "Open a saved entry for change",
	GroupID: "entry",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := gateClient.Change(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printDraft(v)
		return nil
	},
}

var reuseCmd = &cobra.Command{
	Use:     "reuse <entry>",
	Short:   "Open a new draft copied from an existing entry",
	GroupID: "entry",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := gateClient.Reuse(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printDraft(v)
		return nil
	},
}

var cancelCmd = &cobra.Command{
	Use:     "cancel <entry>",
	Short:   "Cancel a saved entry",
	GroupID: "entry",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reason, _ := cmd.Flags().GetString("reason")
		yes, _ := cmd.Flags().GetBool("yes")

		confirmed := yes
		if !yes && ui.IsInteractive() {
			ok, err := ui.Confirm(os.Stdin, os.Stderr, fmt.Sprintf("Cancel gate entry %s?", args[0]))
			if err != nil {
				return err
			}
			if !ok {
				return errors.New("not cancelled")
			}
			confirmed = true
		}

		res, err := gateClient.Cancel(cmd.Context(), args[0], reason, confirmed)
		if err != nil {
			return err
		}
		printResult("Cancelled", res)
		return nil
	},
}

var exitCmd = &cobra.Command{
	Use:     "exit <entry>",
	Short:   "Record the vehicle leaving the gate",
	GroupID: "entry",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var at *time.Time
		if s, _ := cmd.Flags().GetString("at"); s != "" {
			t, err := time.Parse(time.RFC3339, s)
			if err != nil {
				return fmt.Errorf("--at: want RFC 3339 time: %w", err)
			}
			at = &t
		}
		res, err := gateClient.Exit(cmd.Context(), args[0], at)
		if err != nil {
			return err
		}
		printResult("Exited", res)
		return nil
	},
}

func init() {
	printCmd.Flags().StringP("output", "o", "", "file to write (default: name sent by the server)")

	cancelCmd.Flags().String("reason", "", "cancellation reason (required)")
	cancelCmd.Flags().BoolP("yes", "y", false, "confirm without prompting")

	exitCmd.Flags().String("at", "", "check-out time, RFC 3339 (default: now)")
}
