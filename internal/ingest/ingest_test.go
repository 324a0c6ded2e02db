package ingest

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pable/go-val-metrics/internal/extract"
	"github.com/pable/go-val-metrics/internal/logging"
	"github.com/pable/go-val-metrics/internal/model"
	"github.com/pable/go-val-metrics/internal/roster"
	"github.com/pable/go-val-metrics/internal/storage"
)

type fakeExtractor struct {
	sb    *model.Scoreboard
	err   error
	calls int
	seen  string
}

func (f *fakeExtractor) Extract(_ context.Context, path string) (*model.Scoreboard, error) {
	f.calls++
	f.seen = path
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("image not staged: %w", err)
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.sb, nil
}

func board(winner model.Side, t1, t2 int, names ...string) *model.Scoreboard {
	players := make([]model.PlayerRow, len(names))
	for i, n := range names {
		players[i] = model.PlayerRow{Name: n, ACS: 300 - 10*i, Kills: 20 - i, Deaths: 10 + i}
	}
	return &model.Scoreboard{Players: players, MapName: "ASCENT", Winner: winner, FirstRounds: t1, SecondRounds: t2}
}

var (
	males   = []string{"XPE nixcey", "XPE Burger", "Drahmenn", "Loveleiy", "Walid"}
	females = []string{"XPE Buttercup", "sawako", "XPE roro", "XPE Grass", "distressed"}
	guests  = []string{"g1", "g2", "g3", "g4", "g5"}
)

func join(a, b []string) []string { return append(append([]string{}, a...), b...) }

func newService(t *testing.T, ext extract.Extractor) (*Service, *storage.DB) {
	t.Helper()
	db, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db, ext, roster.Default(), Options{TempDir: t.TempDir()}), db
}

func counts(t *testing.T, db *storage.DB) storage.Overview {
	t.Helper()
	o, err := db.Overview(context.Background())
	require.NoError(t, err)
	return o
}

func TestIngestInterCohort(t *testing.T) {
	ext := &fakeExtractor{sb: board(model.SideFirst, 13, 7, join(males, females)...)}
	svc, db := newService(t, ext)

	res, err := svc.Ingest(context.Background(), Upload{Filename: "shot.PNG", Data: []byte("image-1")})
	require.NoError(t, err)
	assert.True(t, res.InterCohort)
	assert.Equal(t, 10, res.Rows)
	assert.NotZero(t, res.GameID)
	assert.Equal(t, "inter_cohort", res.Kind())
	assert.Len(t, res.RequestID, 8)

	_, statErr := os.Stat(ext.seen)
	assert.True(t, os.IsNotExist(statErr), "staged image should be removed")

	o := counts(t, db)
	assert.Equal(t, 1, o.Games)
	assert.Equal(t, 1, o.InterCohort)
	assert.Equal(t, 5, o.MaleRows)
	assert.Equal(t, 5, o.FemaleRows)
	assert.Equal(t, 1, o.MaleMaps)
	assert.Equal(t, 1, o.FemaleMaps)
}

func TestIngestKeepsCallerRequestID(t *testing.T) {
	ext := &fakeExtractor{sb: board(model.SideFirst, 13, 7, join(males, females)...)}
	svc, _ := newService(t, ext)

	ctx := logging.ContextWithRequestID(context.Background(), "req-42")
	res, err := svc.Ingest(ctx, Upload{Filename: "shot.png", Data: []byte("image-rid")})
	require.NoError(t, err)
	assert.Equal(t, "req-42", res.RequestID)
}

func TestIngestHomogeneous(t *testing.T) {
	ext := &fakeExtractor{sb: board(model.SideSecond, 9, 13, join(guests, females)...)}
	svc, db := newService(t, ext)

	res, err := svc.Ingest(context.Background(), Upload{Filename: "x.jpg", Data: []byte("image-2")})
	require.NoError(t, err)
	assert.False(t, res.InterCohort)
	assert.Equal(t, model.CohortFemale, res.Cohort)

	o := counts(t, db)
	assert.Equal(t, 0, o.MaleRows)
	assert.Equal(t, 5, o.FemaleRows)
	assert.Equal(t, 0, o.MaleMaps)
}

func TestIngestAllUnaffiliatedWritesNothing(t *testing.T) {
	ext := &fakeExtractor{sb: board(model.SideFirst, 13, 2, join(guests, []string{"h1", "h2", "h3", "h4", "h5"})...)}
	svc, db := newService(t, ext)

	_, err := svc.Ingest(context.Background(), Upload{Filename: "x.png", Data: []byte("image-3")})
	require.ErrorIs(t, err, ErrClassification)
	assert.NotErrorIs(t, err, ErrExtraction)

	o := counts(t, db)
	assert.Equal(t, storage.Overview{}, o)
}

func TestIngestExtractionFailureWritesNothing(t *testing.T) {
	ext := &fakeExtractor{err: fmt.Errorf("%w: timed out", extract.ErrExtraction)}
	svc, db := newService(t, ext)

	_, err := svc.Ingest(context.Background(), Upload{Filename: "x.png", Data: []byte("image-4")})
	require.ErrorIs(t, err, ErrExtraction)
	assert.NotErrorIs(t, err, ErrClassification)
	assert.Equal(t, storage.Overview{}, counts(t, db))
}

func TestIngestDuplicateRejected(t *testing.T) {
	ext := &fakeExtractor{sb: board(model.SideFirst, 13, 7, join(males, guests)...)}
	svc, db := newService(t, ext)
	up := Upload{Filename: "x.png", Data: []byte("same-bytes")}

	_, err := svc.Ingest(context.Background(), up)
	require.NoError(t, err)
	_, err = svc.Ingest(context.Background(), up)
	require.ErrorIs(t, err, ErrDuplicateUpload)

	assert.Equal(t, 1, ext.calls, "extractor must not run for a duplicate")
	assert.Equal(t, 1, counts(t, db).Games)
}

func TestIngestAllowDuplicates(t *testing.T) {
	ext := &fakeExtractor{sb: board(model.SideFirst, 13, 7, join(males, guests)...)}
	db, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	svc := New(db, ext, roster.Default(), Options{TempDir: t.TempDir(), AllowDuplicates: true})

	up := Upload{Filename: "x.png", Data: []byte("same-bytes")}
	for i := 0; i < 2; i++ {
		_, err := svc.Ingest(context.Background(), up)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, counts(t, db).Games)
}

func TestIngestEmptyUpload(t *testing.T) {
	svc, _ := newService(t, &fakeExtractor{})
	_, err := svc.Ingest(context.Background(), Upload{Filename: "x.png"})
	assert.ErrorIs(t, err, ErrExtraction)
}

// failingStore makes every transaction fail after the callback ran.
type failingStore struct{ *storage.DB }

func (f failingStore) WithTx(ctx context.Context, fn func(*storage.Tx) error) error {
	return f.DB.WithTx(ctx, func(tx *storage.Tx) error {
		if err := fn(tx); err != nil {
			return err
		}
		return fmt.Errorf("disk full")
	})
}

func TestIngestPersistenceFailureRollsBack(t *testing.T) {
	db, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ext := &fakeExtractor{sb: board(model.SideFirst, 13, 7, join(males, females)...)}
	svc := New(failingStore{db}, ext, roster.Default(), Options{TempDir: t.TempDir()})

	_, err = svc.Ingest(context.Background(), Upload{Filename: "x.png", Data: []byte("image-5")})
	require.ErrorIs(t, err, ErrPersistence)
	assert.Equal(t, storage.Overview{}, counts(t, db))
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, "ok", outcome(nil))
	assert.Equal(t, "duplicate", outcome(ErrDuplicateUpload))
	assert.Equal(t, "extraction", outcome(fmt.Errorf("x: %w", ErrExtraction)))
	assert.Equal(t, "classification", outcome(ErrClassification))
	assert.Equal(t, "persistence", outcome(ErrPersistence))
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, isUniqueViolation(fmt.Errorf("insert game: UNIQUE constraint failed: games.image_hash")))
	assert.True(t, isUniqueViolation(fmt.Errorf(`duplicate key value violates unique constraint "games_image_hash_key"`)))
	assert.False(t, isUniqueViolation(fmt.Errorf("disk full")))
}
