package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"faceenroll/internal/model"

	"github.com/spf13/cobra"
)

func newSessionsCmd() *cobra.Command {
	var (
		filter model.SessionFilter
		purge  bool
	)

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List recent enrollment attempts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := openApp()
			if err != nil {
				return err
			}
			defer application.Close()

			if purge {
				if err := application.Sessions().DeleteAll(); err != nil {
					return fmt.Errorf("failed to clear journal: %w", err)
				}
				fmt.Println("✅ Session journal cleared")
				return nil
			}

			sessions, err := application.Sessions().GetAll(&filter)
			if err != nil {
				return fmt.Errorf("failed to list sessions: %w", err)
			}
			if len(sessions) == 0 {
				fmt.Println("No sessions recorded")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "STARTED\tLABEL\tSTATE\tACCEPTED\tREJECTED\tSKIPPED\tDURATION\tERROR")
			for _, s := range sessions {
				duration := "-"
				if s.FinishedAt != nil {
					duration = s.FinishedAt.Sub(s.StartedAt).Round(100 * time.Millisecond).String()
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%d\t%d\t%s\t%s\n",
					s.StartedAt.Local().Format("2006-01-02 15:04:05"), s.Label, s.State,
					s.Accepted, s.Quota, s.Rejected, s.Skipped, duration, s.Error)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&filter.Label, "label", "", "only this label")
	cmd.Flags().StringVar(&filter.State, "state", "", "only this final state (done, failed, cancelled)")
	cmd.Flags().IntVar(&filter.Limit, "limit", 20, "maximum rows")
	cmd.Flags().BoolVar(&purge, "clear", false, "delete the whole journal")
	return cmd
}
