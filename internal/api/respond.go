package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/goccy/go-json"

	"github.com/krishseta/game-recommender/internal/embedder"
	"github.com/krishseta/game-recommender/internal/logging"
	"github.com/krishseta/game-recommender/internal/ranking"
	"github.com/krishseta/game-recommender/internal/snapshot"
	"github.com/krishseta/game-recommender/internal/validation"
)

// Error codes returned in ErrorDetail.Code.
const (
	CodeEmptyQuery           = "EMPTY_QUERY"
	CodeValidation           = validation.CodeValidation
	CodeInvalidJSON          = "INVALID_JSON"
	CodeIndexUnavailable     = "INDEX_UNAVAILABLE"
	CodeEmbeddingUnavailable = "EMBEDDING_UNAVAILABLE"
	CodeTimeout              = "TIMEOUT"
	CodeRateLimited          = "RATE_LIMITED"
	CodeNotFound             = "NOT_FOUND"
	CodeInternal             = "INTERNAL_ERROR"
)

func respondJSON(w http.ResponseWriter, status int, body interface{}) {
	data, err := json.Marshal(body)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Error().Err(err).Msg("Failed to write JSON response")
	}
}

func respondError(w http.ResponseWriter, r *http.Request, status int, code, message string, details map[string]interface{}) {
	respondJSON(w, status, ErrorBody{Error: ErrorDetail{
		Code:      code,
		Message:   message,
		Details:   details,
		RequestID: logging.RequestIDFromContext(r.Context()),
	}})
}

// respondServiceError maps an error returned by the ranking engine onto an
// HTTP status and error code.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message := classifyError(err)
	event := logging.Ctx(r.Context()).Warn()
	if status >= http.StatusInternalServerError {
		event = logging.Ctx(r.Context()).Error()
	}
	event.Str("code", code).Str("error", sanitizeLogValue(err.Error())).Msg("API error")
	respondError(w, r, status, code, message, nil)
}

func classifyError(err error) (int, string, string) {
	switch {
	case errors.Is(err, ranking.ErrEmptyQuery):
		return http.StatusBadRequest, CodeEmptyQuery, "query cannot be empty"
	case errors.Is(err, ranking.ErrInvalidRequest):
		return http.StatusBadRequest, CodeValidation, strings.TrimPrefix(err.Error(), ranking.ErrInvalidRequest.Error()+": ")
	case errors.Is(err, snapshot.ErrIndexUnavailable):
		return http.StatusServiceUnavailable, CodeIndexUnavailable, "no prepared snapshot is loaded"
	case errors.Is(err, embedder.ErrCircuitOpen), errors.Is(err, embedder.ErrProviderFailed):
		return http.StatusServiceUnavailable, CodeEmbeddingUnavailable, "embedding provider unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, CodeTimeout, "request timed out"
	default:
		return http.StatusInternalServerError, CodeInternal, "failed to generate recommendations"
	}
}

// sanitizeLogValue escapes control characters so request-derived text
// cannot forge log lines.
func sanitizeLogValue(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r < 0x20 || r == 0x7F {
			fmt.Fprintf(&b, "\\x%02x", r)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
