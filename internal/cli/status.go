package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/replayer/internal/core/domain"
)

var statusLimit int

var statusCmd = &cobra.Command{
	Use:   "status [session_id]",
	Short: "Show one replay session, or list recent sessions",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().IntVar(&statusLimit, "limit", 20, "number of sessions to list")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	app, err := openReplayer(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	if len(args) == 1 {
		meta, err := app.Session(ctx, args[0])
		if err != nil {
			return err
		}
		printSession(os.Stdout, meta)
		return nil
	}

	sessions, err := app.ListSessions(ctx, statusLimit)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	_, _ = fmt.Fprintln(w, "SESSION\tMODE\tRANGE\tSTATE\tPROCESSED\tFAILED\tSTARTED")
	for _, meta := range sessions {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
			meta.SessionID,
			meta.Config.Mode,
			meta.Config.Range,
			meta.Status.State,
			meta.Status.EventsProcessed,
			meta.Status.EventsFailed,
			meta.StartedAt.Format(time.RFC3339),
		)
	}
	return w.Flush()
}

func printSession(out io.Writer, meta *domain.ReplayMetadata) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Session:\t%s\n", meta.SessionID)
	_, _ = fmt.Fprintf(w, "Mode:\t%s\n", meta.Config.Mode)
	_, _ = fmt.Fprintf(w, "Range:\t%s\n", meta.Config.Range)
	_, _ = fmt.Fprintf(w, "Dry run:\t%t\n", meta.Config.DryRun)
	_, _ = fmt.Fprintf(w, "Status:\t%s\n", meta.Status)
	_, _ = fmt.Fprintf(w, "Started:\t%s\n", meta.StartedAt.Format(time.RFC3339))
	if meta.EndedAt != nil {
		_, _ = fmt.Fprintf(w, "Ended:\t%s\n", meta.EndedAt.Format(time.RFC3339))
	}
	if cp := meta.LastCheckpoint; cp != nil {
		_, _ = fmt.Fprintf(w, "Last checkpoint:\t%s (ledger %d)\n", cp.ID, cp.LastLedger)
		if v, ok := cp.Metadata["verification"]; ok {
			_, _ = fmt.Fprintf(w, "Verification:\t%s\n", v)
		}
	}
	_ = w.Flush()
}
