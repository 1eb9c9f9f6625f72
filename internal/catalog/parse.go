package catalog

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	// A quoted key followed by a colon: 'Survival': 123 or "Shoot 'Em Up": 4
	tagKeyRE = regexp.MustCompile(`(?:'((?:[^'\\]|\\.)*)'|"((?:[^"\\]|\\.)*)")\s*:`)
	// Any quoted string: ['Action', "Beat 'em up"]
	quotedRE = regexp.MustCompile(`'((?:[^'\\]|\\.)*)'|"((?:[^"\\]|\\.)*)"`)

	releaseDateLayouts = []string{
		time.DateOnly,
		time.DateTime,
		time.RFC3339,
		"Jan 2, 2006",
		"2 Jan, 2006",
		"January 2, 2006",
		"Jan 2006",
		"2006",
	}
)

// ParseTags extracts tag names from a stringified mapping such as
// "{'Survival': 1234, 'Crafting': 987}". Names keep source order; duplicates
// are dropped.
func ParseTags(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "{}" {
		return nil
	}
	matches := tagKeyRE.FindAllStringSubmatch(raw, -1)
	if len(matches) == 0 {
		return splitPlain(raw)
	}
	return collect(matches)
}

// ParseGenres extracts genre names from a stringified list such as
// "['Action', 'Indie']". Unquoted comma-separated input is accepted too.
func ParseGenres(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "[]" {
		return nil
	}
	matches := quotedRE.FindAllStringSubmatch(raw, -1)
	if len(matches) == 0 {
		return splitPlain(raw)
	}
	return collect(matches)
}

func collect(matches [][]string) []string {
	out := make([]string, 0, len(matches))
	seen := make(map[string]struct{}, len(matches))
	for _, m := range matches {
		v := m[1]
		if v == "" {
			v = m[2]
		}
		v = strings.TrimSpace(unescape(v))
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func splitPlain(raw string) []string {
	raw = strings.Trim(raw, "[]{}")
	var out []string
	seen := make(map[string]struct{})
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if i := strings.Index(part, ":"); i >= 0 {
			part = strings.TrimSpace(part[:i])
		}
		if part == "" {
			continue
		}
		if _, dup := seen[part]; dup {
			continue
		}
		seen[part] = struct{}{}
		out = append(out, part)
	}
	return out
}

func unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	escaped := false
	for _, r := range s {
		if escaped {
			b.WriteRune(r)
			escaped = false
			continue
		}
		if r == '\\' {
			escaped = true
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// parseBool accepts true/false, 1/0, yes/no and t/f in any case. Empty is
// false.
func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "false", "0", "no", "f", "n":
		return false, nil
	case "true", "1", "yes", "t", "y":
		return true, nil
	default:
		return strconv.ParseBool(raw)
	}
}

var errNotFinite = errors.New("value is not a finite number")

// parseCount accepts integers and integral floats ("1234.0"). Empty is 0.
// Fractional, non-finite and out-of-range values are rejected.
func parseCount(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("count %q: %w", raw, errNotFinite)
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("count %q is not a whole number", raw)
	}
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, fmt.Errorf("count %q out of range", raw)
	}
	return int64(f), nil
}

// parsePrice accepts plain decimals and a leading currency symbol. Empty is
// free.
func parsePrice(raw string) (float64, error) {
	raw = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(raw), "$"))
	if raw == "" || strings.EqualFold(raw, "free") {
		return 0, nil
	}
	p, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(p) || math.IsInf(p, 0) {
		return 0, fmt.Errorf("price %q: %w", raw, errNotFinite)
	}
	return p, nil
}

// parseReleaseDate tries the layouts seen in store exports. Unparseable
// input yields the zero time.
func parseReleaseDate(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}
	for _, layout := range releaseDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
