package arg

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/celerix-dev/celerix-attendance/internal/engine"
)

var verifyOpts struct {
	dataDir string
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check the data documents without starting the daemon",
	Long: `verify loads attendance_data.json and users.json the way the daemon
does and fails if either is unreadable or any user has an open session
that is not their last one.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := engine.NewPersistence(verifyOpts.dataDir)
		if err != nil {
			return err
		}
		order, data, err := p.LoadSessions()
		if err != nil {
			return err
		}
		names, err := p.LoadNames()
		if err != nil {
			return err
		}

		sessions, open := 0, 0
		for _, id := range order {
			sessions += len(data[id])
			if n := len(data[id]); n > 0 && data[id][n-1].IsOpen() {
				open++
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "OK: %d users, %d sessions (%d open), %d names\n",
			len(order), sessions, open, len(names))
		return nil
	},
}

func init() {
	verifyCmd.Flags().StringVar(&verifyOpts.dataDir, "data-dir", envOr("ATTENDANCE_DATA_DIR", "./data"), "directory holding the data documents")
	rootCmd.AddCommand(verifyCmd)
}
