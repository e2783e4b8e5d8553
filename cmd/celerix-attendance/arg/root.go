package arg

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "celerix-attendance",
	Short: "celerix-attendance is the command line tool for the attendance daemon",
	Long: `celerix-attendance reads reports from a running daemon and maintains
its stored state: verifying the data documents and moving them between
the file and Redis backends.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// envOr returns the environment value for key, or def when unset.
func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
