package arg

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/celerix-dev/celerix-attendance/pkg/schema"
	"github.com/celerix-dev/celerix-attendance/pkg/sdk"
)

var reportOpts struct {
	addr   string
	asJSON bool
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print every recorded session from a running daemon",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := sdk.Connect(cmd.Context(), reportOpts.addr)
		if err != nil {
			return fmt.Errorf("failed to connect to %s: %w", reportOpts.addr, err)
		}
		rows, err := client.Report(cmd.Context())
		if err != nil {
			return err
		}
		if reportOpts.asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(rows)
		}
		return printTable(cmd.OutOrStdout(), rows)
	},
}

func printTable(w io.Writer, rows []schema.ReportRow) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "USER\tNAME\tCLOCK IN\tCLOCK OUT\tWORKED")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.UserID, r.UserName, r.ClockIn, r.ClockOut, r.WorkTime)
	}
	return tw.Flush()
}

func init() {
	reportCmd.Flags().StringVar(&reportOpts.addr, "addr", envOr("ATTENDANCE_ADDR", sdk.DefaultAddr), "daemon address")
	reportCmd.Flags().BoolVar(&reportOpts.asJSON, "json", false, "print raw JSON rows")
	rootCmd.AddCommand(reportCmd)
}
