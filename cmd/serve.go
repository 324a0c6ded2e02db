package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/pable/go-val-metrics/internal/api"
	"github.com/pable/go-val-metrics/internal/extract"
	"github.com/pable/go-val-metrics/internal/ingest"
	"github.com/pable/go-val-metrics/internal/logging"
	"github.com/pable/go-val-metrics/internal/model"
	"github.com/pable/go-val-metrics/internal/stats"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP upload and query server",
	Long: `Serve scoreboard uploads (POST /upload, multipart field "scoreboard") and the
cohort query endpoints (/male_team, /female_team, /api/v1/...). Prometheus
metrics are exposed at /metrics.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.addr)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}
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
		AllowDuplicates: cfg.Ingest.AllowDuplicates,
	})
	srv := api.NewServer(svc, stats.New(db), db, api.Options{
		MaxUploadBytes:   cfg.Server.MaxUploadBytes,
		UploadsPerMinute: cfg.Server.UploadsPerMinute,
		CORSOrigins:      cfg.Server.CORSOrigins,
		StaticDir:        cfg.Server.StaticDir,
	})

	httpSrv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      srv.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logging.Info().
			Str("addr", cfg.Server.Addr).
			Str("driver", db.Dialect().String()).
			Int("male", len(reg.Members(model.CohortMale))).
			Int("female", len(reg.Members(model.CohortFemale))).
			Msg("server listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logging.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
