package api

import (
	"github.com/krishseta/game-recommender/internal/ranking"
	"github.com/krishseta/game-recommender/pkg/types"
)

// RecommendRequest is the body of POST /recommend.
type RecommendRequest struct {
	Query   string      `json:"query"`
	Filters *FiltersDTO `json:"filters,omitempty"`
	Alpha   *float64    `json:"alpha,omitempty" validate:"omitnil,gte=0,lte=1"`
	TopN    *int        `json:"top_n,omitempty" validate:"omitnil,gte=1"`
}

// FiltersDTO is the wire form of types.Filters. MinRating is accepted as an
// older spelling of MinQuality.
type FiltersDTO struct {
	MaxPrice   *float64 `json:"max_price,omitempty" validate:"omitnil,gte=0"`
	MinPrice   *float64 `json:"min_price,omitempty" validate:"omitnil,gte=0"`
	Genres     []string `json:"genres,omitempty" validate:"omitempty,dive,notblank"`
	Windows    *bool    `json:"windows,omitempty"`
	Mac        *bool    `json:"mac,omitempty"`
	Linux      *bool    `json:"linux,omitempty"`
	MinQuality *float64 `json:"min_quality,omitempty" validate:"omitnil,gte=0,lte=1"`
	MinRating  *float64 `json:"min_rating,omitempty" validate:"omitnil,gte=0,lte=1"`
}

func (f *FiltersDTO) toFilters() *types.Filters {
	if f == nil {
		return nil
	}
	minQuality := f.MinQuality
	if minQuality == nil {
		minQuality = f.MinRating
	}
	return &types.Filters{
		MaxPrice:   f.MaxPrice,
		MinPrice:   f.MinPrice,
		Genres:     f.Genres,
		Windows:    f.Windows,
		Mac:        f.Mac,
		Linux:      f.Linux,
		MinQuality: minQuality,
	}
}

func (r *RecommendRequest) toRankingRequest() ranking.Request {
	req := ranking.Request{
		Query:   r.Query,
		Filters: r.Filters.toFilters(),
		Alpha:   r.Alpha,
	}
	if r.TopN != nil {
		req.TopN = *r.TopN
	}
	return req
}

// GameDTO is one recommended game on the wire.
type GameDTO struct {
	AppID            int64    `json:"appid"`
	Name             string   `json:"name"`
	PrimaryGenre     string   `json:"primary_genre"`
	Genres           []string `json:"genres"`
	Price            float64  `json:"price"`
	Windows          bool     `json:"windows"`
	Mac              bool     `json:"mac"`
	Linux            bool     `json:"linux"`
	Positive         int64    `json:"positive"`
	Negative         int64    `json:"negative"`
	WeightedRating   float64  `json:"weighted_rating"`
	ReleaseDate      string   `json:"release_date"`
	HeaderImage      string   `json:"header_image"`
	Description      string   `json:"description"`
	ShortDescription string   `json:"short_description"`
	Rank             int      `json:"rank"`
	SemanticScore    float64  `json:"semantic_score"`
	QualityScore     float64  `json:"quality_score"`
	FinalScore       float64  `json:"final_score"`
}

// RecommendResponse is the body returned by POST /recommend.
type RecommendResponse struct {
	Games        []GameDTO `json:"games"`
	TotalResults int       `json:"total_results"`
}

func newGameDTO(sg types.ScoredGame) GameDTO {
	g := sg.Game
	genres := g.Genres
	if genres == nil {
		genres = []string{}
	}
	description := g.Description
	if description == "" {
		description = g.ShortDescription
	}
	return GameDTO{
		AppID:            g.ID,
		Name:             g.Name,
		PrimaryGenre:     g.PrimaryGenre(),
		Genres:           genres,
		Price:            g.Price,
		Windows:          g.Platforms.Windows,
		Mac:              g.Platforms.Mac,
		Linux:            g.Platforms.Linux,
		Positive:         g.Positive,
		Negative:         g.Negative,
		WeightedRating:   g.Quality,
		ReleaseDate:      g.ReleaseDateString(),
		HeaderImage:      g.ImageRef,
		Description:      description,
		ShortDescription: g.ShortDescription,
		Rank:             sg.Rank,
		SemanticScore:    sg.SemanticScore,
		QualityScore:     sg.QualityScore,
		FinalScore:       sg.FinalScore,
	}
}

func newRecommendResponse(resp *ranking.Response) RecommendResponse {
	games := make([]GameDTO, 0, len(resp.Games))
	for _, sg := range resp.Games {
		games = append(games, newGameDTO(sg))
	}
	return RecommendResponse{Games: games, TotalResults: resp.TotalResults}
}

// GenresResponse is the body of GET /genres.
type GenresResponse struct {
	Genres []string `json:"genres"`
	Total  int      `json:"total"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status     string `json:"status"`
	SnapshotID string `json:"snapshot_id,omitempty"`
	BuiltAt    string `json:"built_at,omitempty"`
	Items      int    `json:"items"`
	Provider   string `json:"provider,omitempty"`
	Model      string `json:"model,omitempty"`
	Dimension  int    `json:"dimension,omitempty"`
	Version    string `json:"version"`
	Uptime     string `json:"uptime"`
}

// ErrorBody is the body of every error response.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes one failed request.
type ErrorDetail struct {
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
}
