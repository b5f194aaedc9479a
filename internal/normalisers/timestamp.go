package normalisers

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// timeLayouts are tried in order for string timestamps.
// Layouts without a zone are read as UTC.
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// epochMillisCutoff separates epoch seconds from epoch milliseconds
const epochMillisCutoff = 1e12

// ParseTimestamp converts a raw timestamp into UTC.
// Nil and empty strings mean "no timestamp" and yield nil, nil.
func ParseTimestamp(raw any) (*time.Time, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return nil, fmt.Errorf("number %q: %w", v.String(), err)
		}
		return fromEpoch(f)
	case float64:
		return fromEpoch(v)
	case float32:
		return fromEpoch(float64(v))
	case int:
		return fromEpoch(float64(v))
	case int64:
		return fromEpoch(float64(v))
	case string:
		return parseString(v)
	case time.Time:
		t := v.UTC()
		return &t, nil
	default:
		return nil, fmt.Errorf("unsupported type %T", raw)
	}
}

func parseString(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}

	// Numeric strings are epoch values
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return fromEpoch(f)
	}

	return nil, fmt.Errorf("unrecognised format %q", s)
}

func fromEpoch(f float64) (*time.Time, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return nil, fmt.Errorf("epoch value %v out of range", f)
	}
	if f >= epochMillisCutoff {
		f /= 1000
	}
	sec, frac := math.Modf(f)
	t := time.Unix(int64(sec), int64(math.Round(frac*1e9))).UTC()
	return &t, nil
}
