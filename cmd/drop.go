package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pable/go-val-metrics/internal/storage"
)

var dropForce bool

// dropCmd deletes all stored data.
var dropCmd = &cobra.Command{
	Use:   "drop",
	Short: "Delete the metrics database",
	Long: `Permanently delete all stored games, player rows and map aggregates.
For SQLite the database file is removed; for Postgres the tables are dropped.`,
	Args: cobra.NoArgs,
	RunE: runDrop,
}

func init() {
	dropCmd.Flags().BoolVarP(&dropForce, "force", "f", false, "skip confirmation prompt")
}

func runDrop(cmd *cobra.Command, args []string) error {
	d, err := storage.ParseDriver(cfg.Database.Driver)
	if err != nil {
		return err
	}
	target := cfg.Database.DSN
	if d == storage.DialectPostgres {
		target = "all valmetrics tables in the configured Postgres database"
	}
	if !dropForce {
		fmt.Fprintf(os.Stderr, "This will permanently delete: %s\n", target)
		fmt.Fprintf(os.Stderr, "Re-run with --force to confirm.\n")
		return nil
	}

	if d == storage.DialectPostgres {
		db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.DropAll(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, "Dropped valmetrics tables.")
		return nil
	}

	if err := os.Remove(target); err != nil {
		if os.IsNotExist(err) {
			fmt.Fprintln(os.Stdout, "Database does not exist, nothing to drop.")
			return nil
		}
		return fmt.Errorf("remove database: %w", err)
	}
	for _, suffix := range []string{"-wal", "-shm"} {
		_ = os.Remove(target + suffix)
	}
	fmt.Fprintf(os.Stdout, "Deleted: %s\n", target)
	return nil
}
