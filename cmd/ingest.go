package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/pable/go-val-metrics/internal/extract"
	"github.com/pable/go-val-metrics/internal/ingest"
	"github.com/pable/go-val-metrics/internal/report"
)

var (
	cOK   = color.New(color.FgGreen, color.Bold)
	cSkip = color.New(color.FgYellow)
	cFail = color.New(color.FgRed, color.Bold)

	ingestAllowDup bool
	ingestQuiet    bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <image> [<image>...]",
	Short: "Extract and store one or more scoreboard screenshots",
	Long: `Run the scoreboard extractor on each image, classify the match and store
the player rows and map aggregates. Images already ingested are skipped.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().BoolVar(&ingestAllowDup, "allow-duplicates", false, "store images even if their hash is already recorded")
	ingestCmd.Flags().BoolVarP(&ingestQuiet, "quiet", "q", false, "only print one status line per image")
}

func runIngest(cmd *cobra.Command, args []string) error {
	reg, err := cfg.Registry()
	if err != nil {
		return err
	}
	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	svc := ingest.New(db, extract.NewRunner(cfg.ExtractConfig()), reg, ingest.Options{
		TempDir:         cfg.Ingest.TempDir,
		AllowDuplicates: ingestAllowDup || cfg.Ingest.AllowDuplicates,
	})

	var failed int
	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			cFail.Fprintf(os.Stderr, "✗ %s: %v\n", path, err)
			failed++
			continue
		}
		res, err := svc.Ingest(cmd.Context(), ingest.Upload{Filename: filepath.Base(path), Data: data})
		switch {
		case errors.Is(err, ingest.ErrDuplicateUpload):
			cSkip.Fprintf(os.Stdout, "- %s: already ingested\n", path)
			continue
		case err != nil:
			cFail.Fprintf(os.Stderr, "✗ %s: %v\n", path, err)
			failed++
			continue
		}

		cOK.Fprintf(os.Stdout, "✓ %s", path)
		cMuted.Fprintf(os.Stdout, "  game %d, %s, %d rows\n", res.GameID, res.Kind(), res.Rows)
		if !ingestQuiet {
			report.PrintMatchHeader(os.Stdout, res.Scoreboard, res.Kind())
			report.PrintScoreboard(os.Stdout, res.Scoreboard, reg)
			fmt.Fprintln(os.Stdout)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d images failed", failed, len(args))
	}
	return nil
}
