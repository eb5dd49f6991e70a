package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var checkpointsCmd = &cobra.Command{
	Use:   "checkpoints [session_id]",
	Short: "List the checkpoints of a session, newest first",
	Args:  cobra.ExactArgs(1),
	RunE:  runCheckpoints,
}

func init() {
	rootCmd.AddCommand(checkpointsCmd)
}

func runCheckpoints(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	app, err := openReplayer(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	cps, err := app.Checkpoints(ctx, args[0])
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	_, _ = fmt.Fprintln(w, "CHECKPOINT\tLEDGER\tPROCESSED\tFAILED\tSTATE HASH\tCREATED")
	for _, cp := range cps {
		_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%s\t%s\n",
			cp.ID,
			cp.LastLedger,
			cp.EventsProcessed,
			cp.EventsFailed,
			shortHash(cp.StateHash()),
			cp.CreatedAt.Format(time.RFC3339),
		)
	}
	return w.Flush()
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	if h == "" {
		return "-"
	}
	return h
}
