package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/pable/go-val-metrics/internal/ingest"
	"github.com/pable/go-val-metrics/internal/logging"
	"github.com/pable/go-val-metrics/internal/model"
)

const (
	defaultGamesLimit = 50
	maxGamesLimit     = 500
)

type errorResponse struct {
	Error string `json:"error"`
}

type uploadResponse struct {
	Success     bool              `json:"success"`
	GameID      int64             `json:"game_id"`
	Map         *string           `json:"map"`
	Players     []model.PlayerRow `json:"players"`
	IsInterTeam bool              `json:"is_inter_team"`
	Cohort      string            `json:"cohort"`
	Rows        int               `json:"rows"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		logging.Error().Err(err).Msg("marshal response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Debug().Err(err).Msg("write response")
	}
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, errorResponse{Error: msg})
}

// uploadStatus maps ingestion error kinds onto HTTP statuses and client messages.
func uploadStatus(err error) (int, string) {
	switch {
	case errors.Is(err, ingest.ErrDuplicateUpload):
		return http.StatusConflict, "This scoreboard has already been uploaded."
	case errors.Is(err, ingest.ErrExtraction):
		return http.StatusBadGateway, "Could not read the scoreboard image."
	case errors.Is(err, ingest.ErrClassification):
		return http.StatusUnprocessableEntity, "Could not determine team type (male/female)."
	default:
		return http.StatusInternalServerError, "Database insert failed."
	}
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.opts.MaxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusBadRequest, "Upload exceeds the size limit.")
			return
		}
		respondError(w, http.StatusBadRequest, "Expected a multipart form upload.")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("scoreboard")
	if err != nil {
		respondError(w, http.StatusBadRequest, "No scoreboard file uploaded.")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Could not read the uploaded file.")
		return
	}

	res, err := s.ingester.Ingest(r.Context(), ingest.Upload{Filename: header.Filename, Data: data})
	if err != nil {
		status, msg := uploadStatus(err)
		ev := logging.Ctx(r.Context()).Warn()
		if status >= http.StatusInternalServerError && status != http.StatusBadGateway {
			ev = logging.Ctx(r.Context()).Error()
		}
		ev.Err(err).Str("file", header.Filename).Int("status", status).Msg("upload rejected")
		respondError(w, status, msg)
		return
	}

	resp := uploadResponse{
		Success:     true,
		GameID:      res.GameID,
		Players:     res.Scoreboard.Players,
		IsInterTeam: res.InterCohort,
		Cohort:      res.Kind(),
		Rows:        res.Rows,
	}
	if res.MapName != "" {
		resp.Map = &res.MapName
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLegacyCohort(c model.Cohort) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rep, err := s.stats.Cohort(r.Context(), c)
		if err != nil {
			logging.Ctx(r.Context()).Error().Err(err).Str("cohort", c.String()).Msg("cohort query failed")
			respondError(w, http.StatusInternalServerError, "Database query failed.")
			return
		}
		respondJSON(w, http.StatusOK, rep)
	}
}

func cohortParam(w http.ResponseWriter, r *http.Request) (model.Cohort, bool) {
	c, err := model.ParseCohort(chi.URLParam(r, "cohort"))
	if err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return model.CohortUnknown, false
	}
	return c, true
}

func (s *Server) handleCohortPlayers(w http.ResponseWriter, r *http.Request) {
	c, ok := cohortParam(w, r)
	if !ok {
		return
	}
	players, err := s.stats.PlayerAverages(r.Context(), c)
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("player averages failed")
		respondError(w, http.StatusInternalServerError, "Database query failed.")
		return
	}
	respondJSON(w, http.StatusOK, players)
}

func (s *Server) handleCohortMaps(w http.ResponseWriter, r *http.Request) {
	c, ok := cohortParam(w, r)
	if !ok {
		return
	}
	maps, err := s.stats.MapAggregates(r.Context(), c)
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("map aggregates failed")
		respondError(w, http.StatusInternalServerError, "Database query failed.")
		return
	}
	respondJSON(w, http.StatusOK, maps)
}

func (s *Server) handleGames(w http.ResponseWriter, r *http.Request) {
	limit := defaultGamesLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxGamesLimit)
	}
	games, err := s.games.ListGames(r.Context(), limit)
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("list games failed")
		respondError(w, http.StatusInternalServerError, "Database query failed.")
		return
	}
	if games == nil {
		games = []model.GameSummary{}
	}
	respondJSON(w, http.StatusOK, games)
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.games.Ping(ctx); err != nil {
		logging.Ctx(r.Context()).Warn().Err(err).Msg("readiness check failed")
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
