package mcp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/krishseta/game-recommender/internal/logging"
	"github.com/krishseta/game-recommender/internal/preparer"
	"github.com/krishseta/game-recommender/internal/ranking"
	"github.com/krishseta/game-recommender/internal/snapshot"
	"github.com/krishseta/game-recommender/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams     = -32602 // Invalid method parameters
	ErrorCodeInternalError     = -32603 // Internal JSON-RPC error
	ErrorCodeSourceNotFound    = -32001 // Catalog file missing or unreadable
	ErrorCodePrepareInProgress = -32002 // Another preparation is already running
	ErrorCodeNotPrepared       = -32003 // No snapshot is being served
	ErrorCodeEmptyQuery        = -32004 // Query parameter is empty
)

type gameResult struct {
	Rank          int      `json:"rank"`
	AppID         int64    `json:"appid"`
	Name          string   `json:"name"`
	PrimaryGenre  string   `json:"primary_genre"`
	Genres        []string `json:"genres"`
	Price         float64  `json:"price"`
	Platforms     []string `json:"platforms"`
	ReleaseDate   string   `json:"release_date,omitempty"`
	Summary       string   `json:"summary,omitempty"`
	SemanticScore float64  `json:"semantic_score"`
	QualityScore  float64  `json:"quality_score"`
	FinalScore    float64  `json:"final_score"`
}

// handleRecommendGames handles the recommend_games tool invocation
func (s *Server) handleRecommendGames(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	query, _ := args["query"].(string)
	if strings.TrimSpace(query) == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}

	req := ranking.Request{Query: query}

	if raw, present := args["alpha"]; present && raw != nil {
		alpha, ok := raw.(float64)
		if !ok {
			return nil, invalidParam("alpha", "must be a number")
		}
		req.Alpha = &alpha
	}

	if args["top_n"] != nil {
		topN := getIntDefault(args, "top_n", 0)
		if topN < 1 {
			return nil, invalidParam("top_n", "must be a positive integer")
		}
		req.TopN = topN
	}

	if raw, present := args["filters"]; present && raw != nil {
		m, ok := raw.(map[string]interface{})
		if !ok {
			return nil, invalidParam("filters", "must be an object")
		}
		filters, err := parseFilters(m)
		if err != nil {
			return nil, err
		}
		req.Filters = filters
	}

	resp, err := s.deps.Engine.Recommend(ctx, req)
	if err != nil {
		return nil, toMCPError(err)
	}

	games := make([]gameResult, 0, len(resp.Games))
	for _, sg := range resp.Games {
		games = append(games, newGameResult(sg))
	}
	response := map[string]interface{}{
		"games":         games,
		"total_results": resp.TotalResults,
		"snapshot_id":   resp.SnapshotID,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleListGenres handles the list_genres tool invocation
func (s *Server) handleListGenres(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	genres, err := s.deps.Engine.Genres()
	if err != nil {
		return nil, toMCPError(err)
	}
	if genres == nil {
		genres = []string{}
	}
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"genres": genres,
		"total":  len(genres),
	})), nil
}

// handleGetStatus handles the get_status tool invocation
func (s *Server) handleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	health, err := s.deps.Storage.Health(ctx)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to get status", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"serving": false,
		"database": map[string]interface{}{
			"accessible":     health.DatabaseAccessible,
			"schema_version": health.SchemaVersion,
			"snapshot_count": health.SnapshotCount,
			"latest_id":      health.LatestSnapshotID,
		},
	}

	snap, err := s.deps.Engine.Snapshot()
	if errors.Is(err, snapshot.ErrIndexUnavailable) {
		response["message"] = "No snapshot loaded. Use prepare_catalog or `gamerec prepare` to build one."
		return mcp.NewToolResultText(formatJSON(response)), nil
	}
	if err != nil {
		return nil, toMCPError(err)
	}

	response["serving"] = true
	response["snapshot"] = map[string]interface{}{
		"id":         snap.ID,
		"built_at":   snap.BuiltAt.UTC().Format(time.RFC3339),
		"items":      snap.Catalog.Len(),
		"provider":   snap.Provider,
		"model":      snap.Model,
		"dimension":  snap.Dimension,
		"min_votes":  snap.Quality.MinVotes,
		"mean_ratio": snap.Quality.MeanRatio,
		"is_latest":  snap.ID == health.LatestSnapshotID,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handlePrepareCatalog handles the prepare_catalog tool invocation
func (s *Server) handlePrepareCatalog(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	path := getStringDefault(args, "csv_path", "")
	if path == "" {
		return nil, invalidParam("csv_path", "missing or empty")
	}
	if err := validateSourcePath(path); err != nil {
		return nil, newMCPError(ErrorCodeSourceNotFound, "invalid csv_path", map[string]interface{}{
			"param":  "csv_path",
			"reason": err.Error(),
		})
	}

	config := preparer.DefaultConfig()
	if s.deps.Prepare != nil {
		c := *s.deps.Prepare
		config = &c
	}
	if keep := getIntDefault(args, "keep", -1); keep >= 0 {
		config.Keep = keep
	}

	stats, err := s.deps.Preparer.Prepare(ctx, path, config)
	if errors.Is(err, preparer.ErrPrepareInProgress) {
		return nil, newMCPError(ErrorCodePrepareInProgress, "preparation already in progress", nil)
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "preparation failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	snap, err := snapshot.Load(ctx, s.deps.Storage, stats.SnapshotID, s.deps.Build)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to load prepared snapshot", map[string]interface{}{
			"error": err.Error(),
		})
	}
	s.deps.Holder.Swap(snap)
	if s.deps.OnSwap != nil {
		s.deps.OnSwap(snap)
	}
	logging.Info().Str("snapshot_id", snap.ID).Int("items", snap.Catalog.Len()).Msg("serving newly prepared snapshot")

	response := map[string]interface{}{
		"prepared":    true,
		"snapshot_id": stats.SnapshotID,
		"rows":        stats.Rows,
		"loaded":      stats.Loaded,
		"dropped":     stats.Dropped,
		"embedded":    stats.Embedded,
		"reused":      stats.Reused,
		"pruned":      stats.Pruned,
		"duration_ms": stats.Duration.Milliseconds(),
	}
	if n := len(stats.ErrorMessages); n > 0 {
		if n > 5 {
			response["errors"] = stats.ErrorMessages[:5]
			response["error_count"] = n
		} else {
			response["errors"] = stats.ErrorMessages
		}
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// Helper functions

func newGameResult(sg types.ScoredGame) gameResult {
	g := sg.Game
	var platforms []string
	if g.Platforms.Windows {
		platforms = append(platforms, "windows")
	}
	if g.Platforms.Mac {
		platforms = append(platforms, "mac")
	}
	if g.Platforms.Linux {
		platforms = append(platforms, "linux")
	}
	summary := g.ShortDescription
	if summary == "" {
		summary = truncateRunes(g.Description, 280)
	}
	return gameResult{
		Rank:          sg.Rank,
		AppID:         g.ID,
		Name:          g.Name,
		PrimaryGenre:  g.PrimaryGenre(),
		Genres:        g.Genres,
		Price:         g.Price,
		Platforms:     platforms,
		ReleaseDate:   g.ReleaseDateString(),
		Summary:       summary,
		SemanticScore: sg.SemanticScore,
		QualityScore:  sg.QualityScore,
		FinalScore:    sg.FinalScore,
	}
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// parseFilters converts the filters argument into types.Filters, rejecting
// values of the wrong JSON type.
func parseFilters(m map[string]interface{}) (*types.Filters, error) {
	f := &types.Filters{}
	for _, field := range []struct {
		key string
		dst **float64
	}{
		{"max_price", &f.MaxPrice},
		{"min_price", &f.MinPrice},
		{"min_quality", &f.MinQuality},
	} {
		raw, ok := m[field.key]
		if !ok || raw == nil {
			continue
		}
		v, ok := raw.(float64)
		if !ok {
			return nil, invalidParam("filters."+field.key, "must be a number")
		}
		*field.dst = &v
	}

	for _, field := range []struct {
		key string
		dst **bool
	}{
		{"windows", &f.Windows},
		{"mac", &f.Mac},
		{"linux", &f.Linux},
	} {
		raw, ok := m[field.key]
		if !ok || raw == nil {
			continue
		}
		v, ok := raw.(bool)
		if !ok {
			return nil, invalidParam("filters."+field.key, "must be a boolean")
		}
		*field.dst = &v
	}

	if raw, ok := m["genres"]; ok && raw != nil {
		list, ok := raw.([]interface{})
		if !ok {
			return nil, invalidParam("filters.genres", "must be an array of strings")
		}
		for _, item := range list {
			genre, ok := item.(string)
			if !ok || strings.TrimSpace(genre) == "" {
				return nil, invalidParam("filters.genres", "must be an array of non-empty strings")
			}
			f.Genres = append(f.Genres, genre)
		}
	}
	return f, nil
}

func toMCPError(err error) error {
	switch {
	case errors.Is(err, ranking.ErrEmptyQuery):
		return newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", nil)
	case errors.Is(err, ranking.ErrInvalidRequest):
		return newMCPError(ErrorCodeInvalidParams, err.Error(), nil)
	case errors.Is(err, snapshot.ErrIndexUnavailable):
		return newMCPError(ErrorCodeNotPrepared, "no snapshot is loaded", nil)
	default:
		return newMCPError(ErrorCodeInternalError, "recommendation failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

func invalidParam(param, reason string) error {
	return newMCPError(ErrorCodeInvalidParams, "invalid "+param, map[string]interface{}{
		"param":  param,
		"reason": reason,
	})
}

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// validateSourcePath checks that path is an absolute, readable regular file.
func validateSourcePath(path string) error {
	if !filepath.IsAbs(path) {
		return ErrPathNotAbsolute
	}
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return ErrPathNotFound
	}
	if err != nil {
		return ErrPathNotReadable
	}
	if info.IsDir() {
		return ErrNotRegularFile
	}
	f, err := os.Open(path)
	if err != nil {
		return ErrPathNotReadable
	}
	_ = f.Close()
	return nil
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}

// Validation errors for csv_path
var (
	ErrPathNotAbsolute = errors.New("path must be absolute")
	ErrPathNotFound    = errors.New("path does not exist")
	ErrPathNotReadable = errors.New("path is not readable")
	ErrNotRegularFile  = errors.New("path is not a regular file")
)
