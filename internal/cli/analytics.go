package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ARIHARAN-KC/nexa/internal/analytics"
)

var analyticsCmd = &cobra.Command{
	Use:   "analytics",
	Short: "Stage attempt and provider call analytics",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, cleanup, err := openDB()
		if err != nil {
			return err
		}
		defer cleanup()

		since, _ := cmd.Flags().GetString("since")
		report, err := analytics.BuildReport(cmd.Context(), d, since)
		if err != nil {
			return err
		}

		format, _ := cmd.Flags().GetString("format")
		if format == "json" {
			return writeJSON(cmd, report)
		}

		out := cmd.OutOrStdout()
		if len(report.Stages) == 0 && len(report.LLM) == 0 {
			fmt.Fprintln(out, "No runs recorded.")
			return nil
		}

		w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "STAGE\tRUNS\tATTEMPTS\tFAIL%\tDEGRADED\tAVG ms\tP50 ms\tP95 ms")
		for _, s := range report.Stages {
			fmt.Fprintf(w, "%s\t%d\t%d\t%.1f\t%d\t%.0f\t%.0f\t%.0f\n",
				s.Stage, s.Runs, s.Attempts, s.FailureRate, s.Degraded, s.AvgMs, s.P50Ms, s.P95Ms)
		}
		w.Flush()

		fmt.Fprintln(out)
		w = tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "PROVIDER\tAGENT\tCALLS\tRATE LIMITED\tERROR%\tAVG ms\tP95 ms\tAVG WAIT ms")
		for _, c := range report.LLM {
			fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%.1f\t%.0f\t%.0f\t%.0f\n",
				c.Provider, c.Agent, c.Calls, c.RateLimited, c.ErrorRate, c.AvgMs, c.P95Ms, c.AvgWaitMs)
		}
		return w.Flush()
	},
}

var analyticsRunCmd = &cobra.Command{
	Use:   "run <run-id>",
	Short: "Timeline of stage attempts and provider calls for one run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, cleanup, err := openDB()
		if err != nil {
			return err
		}
		defer cleanup()

		events, err := analytics.QueryRunDetail(cmd.Context(), d, args[0])
		if err != nil {
			return err
		}
		if len(events) == 0 {
			return fmt.Errorf("no records for run %s", args[0])
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tTYPE\tSTAGE\tATT\tOUTCOME\tDETAIL")
		for _, e := range events {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n", e.Timestamp, e.Type, e.Stage, e.Attempt, e.Outcome, e.Detail)
		}
		return w.Flush()
	},
}

func init() {
	analyticsCmd.Flags().String("since", "", "only count records at or after this UTC time (e.g. 2026-01-01)")
	analyticsCmd.Flags().String("format", "text", "Output format: text or json")
	analyticsCmd.AddCommand(analyticsRunCmd)
}
