package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pable/go-val-metrics/internal/ingest"
	"github.com/pable/go-val-metrics/internal/model"
	"github.com/pable/go-val-metrics/internal/stats"
)

type fakeIngester struct {
	res   *ingest.Result
	err   error
	calls int
	got   ingest.Upload
}

func (f *fakeIngester) Ingest(_ context.Context, up ingest.Upload) (*ingest.Result, error) {
	f.calls++
	f.got = up
	return f.res, f.err
}

type fakeStats struct {
	players map[model.Cohort][]model.PlayerAggregate
	maps    map[model.Cohort][]model.MapAggregate
	err     error
}

func (f *fakeStats) PlayerAverages(_ context.Context, c model.Cohort) ([]model.PlayerAggregate, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := f.players[c]
	if out == nil {
		out = []model.PlayerAggregate{}
	}
	return out, nil
}

func (f *fakeStats) MapAggregates(_ context.Context, c model.Cohort) ([]model.MapAggregate, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := f.maps[c]
	if out == nil {
		out = []model.MapAggregate{}
	}
	return out, nil
}

func (f *fakeStats) Cohort(ctx context.Context, c model.Cohort) (stats.CohortReport, error) {
	players, err := f.PlayerAverages(ctx, c)
	if err != nil {
		return stats.CohortReport{}, err
	}
	maps, err := f.MapAggregates(ctx, c)
	if err != nil {
		return stats.CohortReport{}, err
	}
	return stats.CohortReport{Players: players, Maps: maps}, nil
}

type fakeGames struct {
	games   []model.GameSummary
	limit   int
	pingErr error
}

func (f *fakeGames) ListGames(_ context.Context, limit int) ([]model.GameSummary, error) {
	f.limit = limit
	if limit < len(f.games) {
		return f.games[:limit], nil
	}
	return f.games, nil
}

func (f *fakeGames) Ping(context.Context) error { return f.pingErr }

type fixture struct {
	ing   *fakeIngester
	stats *fakeStats
	games *fakeGames
	h     http.Handler
}

func newFixture(opts Options) *fixture {
	f := &fixture{
		ing:   &fakeIngester{},
		stats: &fakeStats{},
		games: &fakeGames{},
	}
	f.h = NewServer(f.ing, f.stats, f.games, opts).Router()
	return f
}

func (f *fixture) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	f.h.ServeHTTP(rec, req)
	return rec
}

func uploadRequest(t *testing.T, path, field, filename string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func sampleResult() *ingest.Result {
	players := make([]model.PlayerRow, 10)
	for i := range players {
		players[i] = model.PlayerRow{Name: fmt.Sprintf("p%d", i), ACS: 200 + i}
	}
	return &ingest.Result{
		GameID:      7,
		MapName:     "ASCENT",
		InterCohort: true,
		Scoreboard:  &model.Scoreboard{Players: players, MapName: "ASCENT", Winner: model.SideFirst, FirstRounds: 13, SecondRounds: 7},
		Rows:        10,
	}
}

func TestUploadSuccess(t *testing.T) {
	f := newFixture(Options{})
	f.ing.res = sampleResult()

	rec := f.do(t, uploadRequest(t, "/upload", "scoreboard", "board.png", []byte("png-bytes")))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var got struct {
		Success     bool              `json:"success"`
		GameID      int64             `json:"game_id"`
		Map         *string           `json:"map"`
		Players     []model.PlayerRow `json:"players"`
		IsInterTeam bool              `json:"is_inter_team"`
		Cohort      string            `json:"cohort"`
	}
	decode(t, rec, &got)
	assert.True(t, got.Success)
	assert.Equal(t, int64(7), got.GameID)
	require.NotNil(t, got.Map)
	assert.Equal(t, "ASCENT", *got.Map)
	assert.Len(t, got.Players, 10)
	assert.True(t, got.IsInterTeam)
	assert.Equal(t, "inter_cohort", got.Cohort)

	assert.Equal(t, "board.png", f.ing.got.Filename)
	assert.Equal(t, []byte("png-bytes"), f.ing.got.Data)
}

func TestUploadVersionedRoute(t *testing.T) {
	f := newFixture(Options{})
	res := sampleResult()
	res.MapName = ""
	res.InterCohort = false
	res.Cohort = model.CohortFemale
	f.ing.res = res

	rec := f.do(t, uploadRequest(t, "/api/v1/uploads", "scoreboard", "b.jpg", []byte("x")))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var got map[string]any
	decode(t, rec, &got)
	assert.Nil(t, got["map"])
	assert.Equal(t, "female", got["cohort"])
	assert.Equal(t, false, got["is_inter_team"])
}

func TestUploadErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		msg    string
	}{
		{"duplicate", fmt.Errorf("hash abc: %w", ingest.ErrDuplicateUpload), http.StatusConflict, "This scoreboard has already been uploaded."},
		{"extraction", fmt.Errorf("%w: bad payload", ingest.ErrExtraction), http.StatusBadGateway, "Could not read the scoreboard image."},
		{"classification", ingest.ErrClassification, http.StatusUnprocessableEntity, "Could not determine team type (male/female)."},
		{"persistence", fmt.Errorf("%w: disk full", ingest.ErrPersistence), http.StatusInternalServerError, "Database insert failed."},
		{"other", errors.New("boom"), http.StatusInternalServerError, "Database insert failed."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(Options{})
			f.ing.err = tt.err

			rec := f.do(t, uploadRequest(t, "/upload", "scoreboard", "b.png", []byte("x")))
			assert.Equal(t, tt.status, rec.Code)
			var body errorResponse
			decode(t, rec, &body)
			assert.Equal(t, tt.msg, body.Error)
		})
	}
}

func TestUploadMissingFile(t *testing.T) {
	f := newFixture(Options{})
	rec := f.do(t, uploadRequest(t, "/upload", "other_field", "b.png", []byte("x")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, f.ing.calls)

	req := httptest.NewRequest(http.MethodPost, "/upload", bytes.NewReader([]byte("not multipart")))
	req.Header.Set("Content-Type", "text/plain")
	rec = f.do(t, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, f.ing.calls)
}

func TestUploadTooLarge(t *testing.T) {
	f := newFixture(Options{MaxUploadBytes: 1024})
	rec := f.do(t, uploadRequest(t, "/upload", "scoreboard", "big.png", bytes.Repeat([]byte("a"), 4096)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, f.ing.calls)
}

func TestUploadRateLimited(t *testing.T) {
	f := newFixture(Options{UploadsPerMinute: 1})
	f.ing.res = sampleResult()

	first := f.do(t, uploadRequest(t, "/upload", "scoreboard", "a.png", []byte("a")))
	assert.Equal(t, http.StatusOK, first.Code)
	second := f.do(t, uploadRequest(t, "/upload", "scoreboard", "b.png", []byte("b")))
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, 1, f.ing.calls)
}

func TestLegacyCohortEndpoints(t *testing.T) {
	f := newFixture(Options{})
	f.stats.players = map[model.Cohort][]model.PlayerAggregate{
		model.CohortMale:   {{Name: "Drahmenn", GamesPlayed: 3, WinRate: 66.7}},
		model.CohortFemale: {{Name: "sawako", GamesPlayed: 1}},
	}
	f.stats.maps = map[model.Cohort][]model.MapAggregate{
		model.CohortMale: {{MapName: "ASCENT", TotalWins: 2, TotalLosses: 1, WinRate: 66.7}},
	}

	rec := f.do(t, httptest.NewRequest(http.MethodGet, "/male_team", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var male stats.CohortReport
	decode(t, rec, &male)
	require.Len(t, male.Players, 1)
	assert.Equal(t, "Drahmenn", male.Players[0].Name)
	require.Len(t, male.Maps, 1)
	assert.Equal(t, 66.7, male.Maps[0].WinRate)

	rec = f.do(t, httptest.NewRequest(http.MethodGet, "/female_team", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var raw map[string]json.RawMessage
	decode(t, rec, &raw)
	assert.JSONEq(t, `[]`, string(raw["maps"]))
	assert.Contains(t, string(raw["players"]), "sawako")
}

func TestCohortEndpoints(t *testing.T) {
	f := newFixture(Options{})
	f.stats.players = map[model.Cohort][]model.PlayerAggregate{
		model.CohortFemale: {{Name: "sawako"}},
	}
	f.stats.maps = map[model.Cohort][]model.MapAggregate{
		model.CohortFemale: {{MapName: "BIND", TotalWins: 1}},
	}

	rec := f.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/cohorts/female/players", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var players []model.PlayerAggregate
	decode(t, rec, &players)
	require.Len(t, players, 1)
	assert.Equal(t, "sawako", players[0].Name)

	rec = f.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/cohorts/female/maps", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var maps []model.MapAggregate
	decode(t, rec, &maps)
	require.Len(t, maps, 1)
	assert.Equal(t, "BIND", maps[0].MapName)

	rec = f.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/cohorts/mixed/players", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCohortQueryFailure(t *testing.T) {
	f := newFixture(Options{})
	f.stats.err = errors.New("db gone")

	for _, path := range []string{"/male_team", "/api/v1/cohorts/male/players", "/api/v1/cohorts/male/maps"} {
		rec := f.do(t, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusInternalServerError, rec.Code, path)
	}
}

func TestGamesLimit(t *testing.T) {
	f := newFixture(Options{})
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	f.games.games = []model.GameSummary{
		{ID: 2, MapName: "BIND", Winner: "Team 2", CreatedAt: now},
		{ID: 1, MapName: "ASCENT", Winner: "Team 1", CreatedAt: now.Add(-time.Hour)},
	}

	rec := f.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/games", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, defaultGamesLimit, f.games.limit)
	var games []model.GameSummary
	decode(t, rec, &games)
	assert.Len(t, games, 2)

	rec = f.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/games?limit=1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &games)
	require.Len(t, games, 1)
	assert.Equal(t, int64(2), games[0].ID)

	f.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/games?limit=100000", nil))
	assert.Equal(t, maxGamesLimit, f.games.limit)

	rec = f.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/games?limit=abc", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGamesEmptyIsArray(t *testing.T) {
	f := newFixture(Options{})
	rec := f.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/games", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestHealth(t *testing.T) {
	f := newFixture(Options{})

	rec := f.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	f.games.pingErr = errors.New("connection refused")
	rec = f.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCORS(t *testing.T) {
	f := newFixture(Options{CORSOrigins: []string{"https://stats.example"}})
	req := httptest.NewRequest(http.MethodGet, "/male_team", nil)
	req.Header.Set("Origin", "https://stats.example")
	rec := f.do(t, req)
	assert.Equal(t, "https://stats.example", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(Options{})
	f.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/health/live", nil))
	rec := f.do(t, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "valmetrics_http_requests_total")
}
