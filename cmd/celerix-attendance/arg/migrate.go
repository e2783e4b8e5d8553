package arg

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/celerix-dev/celerix-attendance/internal/engine"
)

var migrateOpts struct {
	dataDir       string
	redisAddr     string
	redisPassword string
	backup        bool
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Copy the file documents into Redis",
	Long: `migrate copies every user's sessions and display name from the data
directory into Redis, keeping first-seen user order. With --backup the
direction is reversed and Redis is written out to the data directory.

Stop the daemon first: the copy is not coordinated with live traffic.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if migrateOpts.redisAddr == "" {
			return fmt.Errorf("--redis-addr is required")
		}

		p, err := engine.NewPersistence(migrateOpts.dataDir)
		if err != nil {
			return err
		}
		client, err := engine.DialRedis(ctx, migrateOpts.redisAddr, migrateOpts.redisPassword)
		if err != nil {
			return fmt.Errorf("failed to connect to redis at %s: %w", migrateOpts.redisAddr, err)
		}
		defer client.Close()
		rs, rd := engine.NewRedisStore(client), engine.NewRedisDirectory(client)

		if migrateOpts.backup {
			// The documents are rewritten from Redis alone.
			fs, fd := engine.NewMemStore(nil, nil, p), engine.NewMemDirectory(nil, p)
			if err := engine.Migrate(ctx, rs, fs, rd, fd); err != nil {
				return err
			}
			return printMigrated(cmd, fs)
		}

		order, data, err := p.LoadSessions()
		if err != nil {
			return err
		}
		names, err := p.LoadNames()
		if err != nil {
			return err
		}
		fs, fd := engine.NewMemStore(order, data, nil), engine.NewMemDirectory(names, nil)
		if err := engine.Migrate(ctx, fs, rs, fd, rd); err != nil {
			return err
		}
		return printMigrated(cmd, rs)
	},
}

func printMigrated(cmd *cobra.Command, dst engine.SessionReader) error {
	users, err := dst.AllUsers(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Migrated %d users.\n", len(users))
	return nil
}

func init() {
	f := migrateCmd.Flags()
	f.StringVar(&migrateOpts.dataDir, "data-dir", envOr("ATTENDANCE_DATA_DIR", "./data"), "directory holding the data documents")
	f.StringVar(&migrateOpts.redisAddr, "redis-addr", envOr("ATTENDANCE_REDIS_ADDR", ""), "redis address (host:port)")
	f.StringVar(&migrateOpts.redisPassword, "redis-password", envOr("ATTENDANCE_REDIS_PASSWORD", ""), "redis password")
	f.BoolVar(&migrateOpts.backup, "backup", false, "copy Redis into the data directory instead")
	rootCmd.AddCommand(migrateCmd)
}
