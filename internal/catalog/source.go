package catalog

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/krishseta/game-recommender/internal/logging"
	"github.com/krishseta/game-recommender/pkg/types"
)

// Source column names.
const (
	ColID               = "appid"
	ColName             = "name"
	ColDescription      = "detailed_description"
	ColShortDescription = "short_description"
	ColTags             = "tags"
	ColGenres           = "genres"
	ColReleaseDate      = "release_date"
	ColPrice            = "price"
	ColWindows          = "windows"
	ColMac              = "mac"
	ColLinux            = "linux"
	ColPositive         = "positive"
	ColNegative         = "negative"
	ColImage            = "header_image"
)

var requiredColumns = []string{ColID, ColName, ColDescription}

// ErrMissingColumn is returned when the header lacks a required column.
var ErrMissingColumn = errors.New("missing required column")

// LoadStats counts what happened to each source row.
type LoadStats struct {
	Rows          int `json:"rows"`
	Loaded        int `json:"loaded"`
	MissingFields int `json:"missing_fields"` // no name or description
	Malformed     int `json:"malformed"`      // unparseable numbers or invalid values
	Duplicates    int `json:"duplicates"`     // repeated appid, first row wins
}

// Dropped returns the number of rows excluded from the catalog.
func (s LoadStats) Dropped() int {
	return s.MissingFields + s.Malformed + s.Duplicates
}

// LoadFile reads a catalog CSV from path.
func LoadFile(ctx context.Context, path string) ([]*types.Game, LoadStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, LoadStats{}, fmt.Errorf("open catalog: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()
	return Load(ctx, f)
}

// Load reads catalog rows. Rows without a name or description, rows with
// malformed numeric fields and repeated identifiers are skipped and counted;
// only I/O and header problems fail the load.
func Load(ctx context.Context, r io.Reader) ([]*types.Game, LoadStats, error) {
	var stats LoadStats

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err != nil {
		return nil, stats, fmt.Errorf("read header: %w", err)
	}
	cols := indexColumns(header)
	for _, name := range requiredColumns {
		if _, ok := cols[name]; !ok {
			return nil, stats, fmt.Errorf("%w: %s", ErrMissingColumn, name)
		}
	}

	var games []*types.Game
	seen := make(map[int64]struct{})

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, stats, fmt.Errorf("read row %d: %w", stats.Rows+1, err)
		}
		stats.Rows++

		if stats.Rows%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, stats, err
			}
		}

		row := rowView{cols: cols, record: record}
		if strings.TrimSpace(row.get(ColName)) == "" || strings.TrimSpace(row.get(ColDescription)) == "" {
			stats.MissingFields++
			continue
		}

		g, err := row.game()
		if err != nil {
			stats.Malformed++
			logging.Debug().Err(err).Int("row", stats.Rows).Msg("skipping malformed catalog row")
			continue
		}

		if _, dup := seen[g.ID]; dup {
			stats.Duplicates++
			continue
		}
		seen[g.ID] = struct{}{}
		games = append(games, g)
	}

	stats.Loaded = len(games)
	return games, stats, nil
}

func indexColumns(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if _, exists := cols[name]; !exists {
			cols[name] = i
		}
	}
	return cols
}

type rowView struct {
	cols   map[string]int
	record []string
}

func (r rowView) get(col string) string {
	i, ok := r.cols[col]
	if !ok || i >= len(r.record) {
		return ""
	}
	return r.record[i]
}

func (r rowView) game() (*types.Game, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(r.get(ColID)), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("appid: %w", err)
	}
	price, err := parsePrice(r.get(ColPrice))
	if err != nil {
		return nil, fmt.Errorf("price: %w", err)
	}
	positive, err := parseCount(r.get(ColPositive))
	if err != nil {
		return nil, fmt.Errorf("positive: %w", err)
	}
	negative, err := parseCount(r.get(ColNegative))
	if err != nil {
		return nil, fmt.Errorf("negative: %w", err)
	}

	var platforms types.Platforms
	for _, p := range []struct {
		col string
		dst *bool
	}{
		{ColWindows, &platforms.Windows},
		{ColMac, &platforms.Mac},
		{ColLinux, &platforms.Linux},
	} {
		v, err := parseBool(r.get(p.col))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p.col, err)
		}
		*p.dst = v
	}

	g := &types.Game{
		ID:               id,
		Name:             strings.TrimSpace(r.get(ColName)),
		Description:      strings.TrimSpace(r.get(ColDescription)),
		ShortDescription: strings.TrimSpace(r.get(ColShortDescription)),
		Genres:           ParseGenres(r.get(ColGenres)),
		Tags:             ParseTags(r.get(ColTags)),
		ImageRef:         strings.TrimSpace(r.get(ColImage)),
		Price:            price,
		Platforms:        platforms,
		ReleaseDate:      parseReleaseDate(r.get(ColReleaseDate)),
		Positive:         positive,
		Negative:         negative,
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}
