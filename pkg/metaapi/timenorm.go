package metaapi

import (
	"strings"
	"time"
)

// maxNormalizeDepth bounds the structural walk. Real payloads are trees a
// handful of levels deep; this exists purely as a defensive backstop
// against a cyclic or pathologically deep payload, not as a feature any
// legitimate gateway payload should ever need.
const maxNormalizeDepth = 64

// normalizeTimes walks a JSON value already decoded into Go's generic
// representation (map[string]interface{}, []interface{}, and scalars) and
// converts every ISO-8601 string held under a key ending in "time" or
// "Time" — except the brokerTime/BrokerTime pair, which stay strings for
// display in the broker's local time zone — into a time.Time.
//
// The walk visits each container exactly once: arrays are never
// revisited through a generic object branch after being handled as
// arrays, so the same element is never double-normalized.
//
// normalizeTimes is idempotent: a value already holding time.Time is left
// alone, so normalizing twice yields the same result.
func normalizeTimes(v interface{}) interface{} {
	return normalizeAt(v, 0)
}

func normalizeAt(v interface{}, depth int) interface{} {
	if depth > maxNormalizeDepth {
		return v
	}
	switch val := v.(type) {
	case map[string]interface{}:
		for key, field := range val {
			if isTimeField(key) {
				if s, ok := field.(string); ok {
					if t, ok := parseISO8601(s); ok {
						val[key] = t
						continue
					}
				}
			}
			val[key] = normalizeAt(field, depth+1)
		}
		return val
	case []interface{}:
		for i, elem := range val {
			val[i] = normalizeAt(elem, depth+1)
		}
		return val
	default:
		return v
	}
}

// isTimeField reports whether a field name should be instant-normalized.
// brokerTime/BrokerTime are excluded: they're the broker-local display
// duplicate and must remain a "YYYY-MM-DD HH:mm:ss.SSS" string.
func isTimeField(name string) bool {
	if name == "brokerTime" || name == "BrokerTime" {
		return false
	}
	return strings.HasSuffix(name, "time") || strings.HasSuffix(name, "Time")
}

// isoLayouts are tried in order; the gateway emits millisecond-precision
// UTC timestamps, but we tolerate the couple of other shapes ISO-8601
// allows so a slightly different upstream build doesn't silently leave a
// field as a string.
var isoLayouts = []string{
	"2006-01-02T15:04:05.000Z",
	time.RFC3339Nano,
	time.RFC3339,
}

func parseISO8601(s string) (time.Time, bool) {
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
