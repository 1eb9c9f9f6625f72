package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/krishseta/game-recommender/internal/logging"
	"github.com/krishseta/game-recommender/internal/ranking"
	"github.com/krishseta/game-recommender/internal/snapshot"
	"github.com/krishseta/game-recommender/internal/validation"
)

// maxBodyBytes caps the size of a recommendation request body.
const maxBodyBytes = 1 << 20

// Recommender is the part of ranking.Engine the HTTP surface uses.
type Recommender interface {
	Recommend(ctx context.Context, req ranking.Request) (*ranking.Response, error)
	Genres() ([]string, error)
	Snapshot() (*snapshot.Snapshot, error)
}

// Handler serves the recommendation endpoints.
type Handler struct {
	engine  Recommender
	version string
	started time.Time
	timeout time.Duration
}

// NewHandler creates a handler. A zero timeout leaves request contexts
// without a deadline.
func NewHandler(engine Recommender, version string, timeout time.Duration) *Handler {
	return &Handler{
		engine:  engine,
		version: version,
		started: time.Now(),
		timeout: timeout,
	}
}

// Root lists the available endpoints.
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Game recommender API",
		"version": h.version,
		"endpoints": map[string]string{
			"/recommend": "POST - Get game recommendations",
			"/genres":    "GET - List available genres",
			"/health":    "GET - Health check",
			"/metrics":   "GET - Prometheus metrics",
		},
	})
}

// Health reports whether a snapshot is loaded. It answers 503 when none is.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:  "healthy",
		Version: h.version,
		Uptime:  time.Since(h.started).Round(time.Second).String(),
	}

	snap, err := h.engine.Snapshot()
	if err != nil {
		resp.Status = "unavailable"
		respondJSON(w, http.StatusServiceUnavailable, resp)
		return
	}

	resp.SnapshotID = snap.ID
	if !snap.BuiltAt.IsZero() {
		resp.BuiltAt = snap.BuiltAt.UTC().Format(time.RFC3339)
	}
	resp.Items = snap.Catalog.Len()
	resp.Provider = snap.Provider
	resp.Model = snap.Model
	resp.Dimension = snap.Dimension
	respondJSON(w, http.StatusOK, resp)
}

// Genres lists the distinct genres of the served catalog, sorted.
func (h *Handler) Genres(w http.ResponseWriter, r *http.Request) {
	genres, err := h.engine.Genres()
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	if genres == nil {
		genres = []string{}
	}
	respondJSON(w, http.StatusOK, GenresResponse{Genres: genres, Total: len(genres)})
}

// Recommend ranks games for a free-text query.
func (h *Handler) Recommend(w http.ResponseWriter, r *http.Request) {
	var req RecommendRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		message := "request body must be a JSON object"
		if errors.Is(err, io.EOF) {
			message = "request body is empty"
		}
		respondError(w, r, http.StatusBadRequest, CodeInvalidJSON, message, nil)
		return
	}

	if verr := validation.ValidateStruct(&req); verr != nil {
		apiErr := verr.ToAPIError()
		respondError(w, r, http.StatusBadRequest, apiErr.Code, apiErr.Message, apiErr.Details)
		return
	}

	ctx := r.Context()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	resp, err := h.engine.Recommend(ctx, req.toRankingRequest())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	logging.Ctx(ctx).Debug().
		Int("results", resp.TotalResults).
		Int("candidates", resp.Candidates).
		Bool("cache_hit", resp.CacheHit).
		Dur("duration", resp.Duration).
		Msg("recommendation served")

	respondJSON(w, http.StatusOK, newRecommendResponse(resp))
}

// NotFound answers unknown routes with the standard error body.
func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	respondError(w, r, http.StatusNotFound, CodeNotFound, "no route for "+r.Method+" "+r.URL.Path, nil)
}
