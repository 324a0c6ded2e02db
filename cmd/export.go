package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/spf13/cobra"

	"github.com/pable/go-val-metrics/internal/model"
	"github.com/pable/go-val-metrics/internal/stats"
	"github.com/pable/go-val-metrics/internal/storage"
)

var (
	exportSince    string
	exportOut      string
	exportCompress string
)

// exportDoc is the schema of an export file.
type exportDoc struct {
	GeneratedAt time.Time                     `json:"generated_at"`
	Since       *time.Time                    `json:"since,omitempty"`
	Games       []storage.ExportGame          `json:"games"`
	Cohorts     map[string]stats.CohortReport `json:"cohorts"`
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export stored games and cohort stats as JSON",
	Long: `Write every stored game with its per-cohort rows, plus each cohort's player
averages and map records, as a single JSON document.

The output is compressed when --out ends in .zst or .gz, or when --compress is set.

Example:
  valmetrics export --since 2025-01-01 --out season.json.zst`,
	Args: cobra.NoArgs,
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVar(&exportSince, "since", "", "only export games uploaded on or after this date (YYYY-MM-DD)")
	exportCmd.Flags().StringVar(&exportOut, "out", "", "output file path (default: stdout)")
	exportCmd.Flags().StringVar(&exportCompress, "compress", "", "compression: none, gzip or zstd (default: from --out extension)")
}

func runExport(cmd *cobra.Command, _ []string) error {
	var since time.Time
	if exportSince != "" {
		t, err := time.Parse("2006-01-02", exportSince)
		if err != nil {
			return fmt.Errorf("invalid --since %q: %w", exportSince, err)
		}
		since = t
	}
	codec, err := exportCodec(exportCompress, exportOut)
	if err != nil {
		return err
	}

	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := cmd.Context()
	games, err := db.ExportGames(ctx, since)
	if err != nil {
		return fmt.Errorf("export games: %w", err)
	}
	doc := exportDoc{
		GeneratedAt: time.Now().UTC(),
		Games:       games,
		Cohorts:     make(map[string]stats.CohortReport, len(model.Cohorts)),
	}
	if games == nil {
		doc.Games = []storage.ExportGame{}
	}
	if !since.IsZero() {
		doc.Since = &since
	}
	svc := stats.New(db)
	for _, c := range model.Cohorts {
		rep, err := svc.Cohort(ctx, c)
		if err != nil {
			return err
		}
		doc.Cohorts[c.String()] = rep
	}

	var w io.Writer = os.Stdout
	if exportOut != "" {
		f, err := os.Create(exportOut)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer f.Close()
		w = f
	}
	if err := writeExport(w, codec, doc); err != nil {
		return err
	}
	if exportOut != "" {
		fmt.Fprintf(os.Stderr, "Wrote %d games to %s\n", len(doc.Games), exportOut)
	}
	return nil
}

// exportCodec picks the compression from the flag, falling back to the
// output file extension.
func exportCodec(flag, out string) (string, error) {
	switch strings.ToLower(flag) {
	case "none", "gzip", "zstd":
		return strings.ToLower(flag), nil
	case "gz":
		return "gzip", nil
	case "zst":
		return "zstd", nil
	case "":
	default:
		return "", fmt.Errorf("unsupported --compress %q (want none, gzip or zstd)", flag)
	}
	switch {
	case strings.HasSuffix(out, ".zst"):
		return "zstd", nil
	case strings.HasSuffix(out, ".gz"):
		return "gzip", nil
	default:
		return "none", nil
	}
}

func writeExport(w io.Writer, codec string, doc any) error {
	var (
		dst    = w
		finish func() error
	)
	switch codec {
	case "zstd":
		enc, err := zstd.NewWriter(w)
		if err != nil {
			return fmt.Errorf("zstd: %w", err)
		}
		dst, finish = enc, enc.Close
	case "gzip":
		gz := gzip.NewWriter(w)
		dst, finish = gz, gz.Close
	}

	enc := json.NewEncoder(dst)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode export: %w", err)
	}
	if finish != nil {
		if err := finish(); err != nil {
			return fmt.Errorf("flush %s: %w", codec, err)
		}
	}
	return nil
}
