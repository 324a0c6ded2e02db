// Package ingest turns one uploaded scoreboard image into stored match data.
//
// An upload goes through four steps in order: duplicate check, extraction,
// classification and a single write transaction. Nothing is written unless
// the first three succeed, and the transaction covers the games row, every
// player row and both map aggregate increments.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/pable/go-val-metrics/internal/aggregator"
	"github.com/pable/go-val-metrics/internal/classifier"
	"github.com/pable/go-val-metrics/internal/extract"
	"github.com/pable/go-val-metrics/internal/logging"
	"github.com/pable/go-val-metrics/internal/metrics"
	"github.com/pable/go-val-metrics/internal/model"
	"github.com/pable/go-val-metrics/internal/roster"
	"github.com/pable/go-val-metrics/internal/storage"
)

// Error kinds. Callers match them with errors.Is.
var (
	ErrExtraction      = extract.ErrExtraction
	ErrClassification  = classifier.ErrUnknownCohort
	ErrPersistence     = errors.New("persisting match failed")
	ErrDuplicateUpload = errors.New("scoreboard already ingested")
)

// Store is the persistence the service needs. *storage.DB satisfies it.
type Store interface {
	GameExistsByHash(ctx context.Context, hash string) (bool, error)
	WithTx(ctx context.Context, fn func(*storage.Tx) error) error
}

// Options tunes a Service.
type Options struct {
	// TempDir receives uploaded images while the extractor runs. Defaults to os.TempDir().
	TempDir string
	// AllowDuplicates disables the image hash check.
	AllowDuplicates bool
}

// Service runs the ingestion pipeline.
type Service struct {
	store Store
	ext   extract.Extractor
	cls   *classifier.Classifier
	agg   *aggregator.Aggregator
	opts  Options
}

// New wires a Service.
func New(store Store, ext extract.Extractor, reg *roster.Registry, opts Options) *Service {
	if opts.TempDir == "" {
		opts.TempDir = os.TempDir()
	}
	return &Service{
		store: store,
		ext:   ext,
		cls:   classifier.New(reg),
		agg:   aggregator.New(reg),
		opts:  opts,
	}
}

// Upload is one scoreboard image.
type Upload struct {
	Filename string
	Data     []byte
}

// Result describes a stored match.
type Result struct {
	GameID      int64
	MapName     string
	InterCohort bool
	// Cohort is set for single-cohort matches.
	Cohort     model.Cohort
	Scoreboard *model.Scoreboard
	Rows       int
	// RequestID correlates the upload's log lines.
	RequestID string
}

// Kind names the match classification for logs and metrics.
func (r *Result) Kind() string {
	if r.InterCohort {
		return "inter_cohort"
	}
	return r.Cohort.String()
}

// HashImage returns the hex sha256 of an image.
func HashImage(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Ingest processes one upload end to end.
func (s *Service) Ingest(ctx context.Context, up Upload) (res *Result, err error) {
	reqID := logging.RequestIDFromContext(ctx)
	if reqID == "" {
		reqID = logging.NewRequestID()
		ctx = logging.ContextWithRequestID(ctx, reqID)
	}
	log := logging.Ctx(ctx)
	defer func() {
		metrics.Uploads.WithLabelValues(outcome(err)).Inc()
	}()

	if len(up.Data) == 0 {
		return nil, fmt.Errorf("%w: empty image", ErrExtraction)
	}
	hash := HashImage(up.Data)
	if !s.opts.AllowDuplicates {
		exists, err := s.store.GameExistsByHash(ctx, hash)
		if err != nil {
			return nil, fmt.Errorf("%w: check image hash: %v", ErrPersistence, err)
		}
		if exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateUpload, hash[:12])
		}
	}

	sb, err := s.extractBytes(ctx, up)
	if err != nil {
		return nil, err
	}

	cl, err := s.cls.Classify(sb.Players)
	if err != nil {
		log.Warn().Str("map", sb.MapName).Int("tracked", len(cl.First)+len(cl.Second)).Msg("could not classify scoreboard")
		return nil, err
	}

	match := &model.Match{
		MapName:      sb.MapName,
		Winner:       sb.Winner,
		FirstRounds:  sb.FirstRounds,
		SecondRounds: sb.SecondRounds,
		InterCohort:  cl.InterCohort,
	}
	if !s.opts.AllowDuplicates {
		match.ImageHash = hash
	}

	res = &Result{MapName: sb.MapName, InterCohort: cl.InterCohort, Cohort: cl.Cohort, Scoreboard: sb, RequestID: reqID}
	err = s.store.WithTx(ctx, func(tx *storage.Tx) error {
		if err := tx.InsertGame(ctx, match); err != nil {
			return err
		}
		recorded, err := s.agg.Record(ctx, tx, match, cl, sb.Players)
		if err != nil {
			return err
		}
		res.Rows = recorded.RowCount()
		for _, d := range recorded.Deltas {
			metrics.MapAggregateUpserts.WithLabelValues(d.Cohort.String()).Inc()
		}
		return nil
	})
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateUpload, hash[:12])
		}
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	res.GameID = match.ID

	metrics.MatchesRecorded.WithLabelValues(res.Kind()).Inc()
	log.Info().
		Int64("game_id", res.GameID).
		Str("map", model.AggregateMapKey(res.MapName)).
		Str("kind", res.Kind()).
		Str("winner", sb.Winner.String()).
		Int("rows", res.Rows).
		Msg("match recorded")
	return res, nil
}

func (s *Service) extractBytes(ctx context.Context, up Upload) (*model.Scoreboard, error) {
	ext := strings.ToLower(filepath.Ext(up.Filename))
	if ext == "" {
		ext = ".png"
	}
	path := filepath.Join(s.opts.TempDir, "valmetrics-"+uuid.NewString()+ext)
	if err := os.WriteFile(path, up.Data, 0o600); err != nil {
		return nil, fmt.Errorf("%w: stage image: %v", ErrExtraction, err)
	}
	defer os.Remove(path)

	return s.ext.Extract(ctx, path)
}

// isUniqueViolation detects a concurrent upload of the same image racing past
// the hash check.
func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "image_hash") &&
		(strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate key"))
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrDuplicateUpload):
		return "duplicate"
	case errors.Is(err, ErrExtraction):
		return "extraction"
	case errors.Is(err, ErrClassification):
		return "classification"
	default:
		return "persistence"
	}
}
