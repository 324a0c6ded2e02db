package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pable/go-val-metrics/internal/config"
	"github.com/pable/go-val-metrics/internal/logging"
	"github.com/pable/go-val-metrics/internal/storage"
)

var (
	configPath string
	dbPath     string
	dbDriver   string
	logLevel   string

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "valmetrics",
	Short: "Valorant scoreboard metrics tool",
	Long: `Ingest Valorant end-of-match scoreboard screenshots, classify each match
by cohort and keep per-player and per-map stats for the male and female rosters.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config (default: $CONFIG_PATH or ./valmetrics.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database DSN; a file path for sqlite (default: ~/.valmetrics/metrics.db)")
	rootCmd.PersistentFlags().StringVar(&dbDriver, "driver", "", "database driver: sqlite or postgres")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level override (debug, info, warn, error)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(summaryCmd)
	rootCmd.AddCommand(sqlCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(dropCmd)
	rootCmd.AddCommand(shellCmd)
	rootCmd.AddCommand(analyzeCmd)
}

func loadConfig(cmd *cobra.Command, _ []string) error {
	c, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if dbPath != "" {
		c.Database.DSN = dbPath
	}
	if dbDriver != "" {
		c.Database.Driver = dbDriver
	}
	if logLevel != "" {
		c.Logging.Level = logLevel
	}
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	logging.Init(logging.Config{Level: c.Logging.Level, Format: c.Logging.Format, Output: os.Stderr})
	cfg = c
	return nil
}

// openStore opens the configured database, creating the SQLite directory if needed.
func openStore() (*storage.DB, error) {
	d, err := storage.ParseDriver(cfg.Database.Driver)
	if err != nil {
		return nil, err
	}
	if d == storage.DialectSQLite && cfg.Database.DSN != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Database.DSN), 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := storage.OpenDriver(d, cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	return db, nil
}
