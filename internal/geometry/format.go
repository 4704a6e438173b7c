package geometry

import (
	"fmt"
	"strconv"
	"strings"
)

// FormatRects renders rectangles as the single-line literal printed by the
// workarea entry point, e.g. "[(0, 27, 1600, 873)]".
func FormatRects(rects []Rect) string {
	parts := make([]string, 0, len(rects))
	for _, r := range rects {
		parts = append(parts, r.String())
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// ParseRects parses the literal produced by FormatRects. Whitespace between
// tokens is ignored.
func ParseRects(s string) ([]Rect, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "[") || !strings.HasSuffix(s, "]") {
		return nil, fmt.Errorf("expected a bracketed list, got %q", s)
	}
	body := strings.TrimSpace(s[1 : len(s)-1])
	if body == "" {
		return []Rect{}, nil
	}

	var rects []Rect
	for body != "" {
		if body[0] != '(' {
			return nil, fmt.Errorf("expected '(' at %q", body)
		}
		end := strings.IndexByte(body, ')')
		if end < 0 {
			return nil, fmt.Errorf("unterminated tuple in %q", s)
		}
		fields := strings.Split(body[1:end], ",")
		if len(fields) != 4 {
			return nil, fmt.Errorf("expected 4 values in tuple, got %d", len(fields))
		}
		var vals [4]int
		for i, f := range fields {
			v, err := strconv.Atoi(strings.TrimSpace(f))
			if err != nil {
				return nil, fmt.Errorf("invalid tuple value %q: %w", f, err)
			}
			vals[i] = v
		}
		rects = append(rects, Rect{X: vals[0], Y: vals[1], Width: vals[2], Height: vals[3]})

		body = strings.TrimSpace(body[end+1:])
		if body == "" {
			break
		}
		if body[0] != ',' {
			return nil, fmt.Errorf("expected ',' between tuples at %q", body)
		}
		body = strings.TrimSpace(body[1:])
		if body == "" {
			return nil, fmt.Errorf("trailing comma in %q", s)
		}
	}
	return rects, nil
}
