package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var cleanupOlderThan time.Duration

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete checkpoints older than the retention period",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		retention := appConfig.Checkpoints.Retention
		if cmd.Flags().Changed("older-than") {
			retention = cleanupOlderThan
		}

		ctx := context.Background()
		app, err := openReplayer(ctx)
		if err != nil {
			return err
		}
		defer app.Close()

		deleted, err := app.Cleanup(ctx, retention)
		if err != nil {
			return err
		}
		fmt.Printf("Deleted %d checkpoints older than %s\n", deleted, retention)
		return nil
	},
}

var pauseCmd = &cobra.Command{
	Use:   "pause [session_id]",
	Short: "Ask a running session to pause at its next batch boundary",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		app, err := openReplayer(ctx)
		if err != nil {
			return err
		}
		defer app.Close()

		if err := app.Pause(ctx, args[0]); err != nil {
			return err
		}
		fmt.Printf("Pause requested for session %s\n", args[0])
		return nil
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume [session_id]",
	Short: "Resume a paused session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		app, err := openReplayer(ctx)
		if err != nil {
			return err
		}
		defer app.Close()

		if err := app.Resume(ctx, args[0]); err != nil {
			return err
		}
		fmt.Printf("Resume requested for session %s\n", args[0])
		return nil
	},
}

var deleteSessionCmd = &cobra.Command{
	Use:   "delete-session [session_id]",
	Short: "Delete a session and its checkpoints",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		app, err := openReplayer(ctx)
		if err != nil {
			return err
		}
		defer app.Close()

		if err := app.DeleteSession(ctx, args[0]); err != nil {
			return err
		}
		fmt.Printf("Deleted session %s\n", args[0])
		return nil
	},
}

var failedCmd = &cobra.Command{
	Use:   "failed [session_id]",
	Short: "List the events a session gave up on",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		app, err := openReplayer(ctx)
		if err != nil {
			return err
		}
		defer app.Close()

		failed, err := app.FailedEvents(ctx, args[0])
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		_, _ = fmt.Fprintln(w, "EVENT\tLEDGER\tATTEMPTS\tERROR")
		for _, fe := range failed {
			_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%s\n", fe.EventID, fe.LedgerSequence, fe.Attempts, fe.Error)
		}
		return w.Flush()
	},
}

var importCmd = &cobra.Command{
	Use:   "import [file]",
	Short: "Load newline-delimited JSON contract events into the event store",
	Long: `Load newline-delimited JSON contract events into the event store.
Use "-" to read from stdin. Events whose id already exists are skipped.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var in io.Reader = os.Stdin
		if args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open events file: %w", err)
			}
			defer func() {
				_ = f.Close()
			}()
			in = f
		}

		ctx := context.Background()
		app, err := openReplayer(ctx)
		if err != nil {
			return err
		}
		defer app.Close()

		n, err := app.ImportEvents(ctx, in)
		if err != nil {
			return err
		}
		fmt.Printf("Imported %d events\n", n)
		return nil
	},
}

func init() {
	cleanupCmd.Flags().DurationVar(&cleanupOlderThan, "older-than", 0, "retention period (default from checkpoints.retention)")

	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(pauseCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(deleteSessionCmd)
	rootCmd.AddCommand(failedCmd)
	rootCmd.AddCommand(importCmd)
}
