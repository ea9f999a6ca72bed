package metaapi

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeTimesConvertsTimeSuffixedFields(t *testing.T) {
	input := map[string]interface{}{
		"time":       "2026-01-15T10:30:00.000Z",
		"brokerTime": "2026-01-15 13:30:00.000",
		"nested": map[string]interface{}{
			"updateTime": "2026-01-15T10:31:00.000Z",
		},
		"deals": []interface{}{
			map[string]interface{}{"time": "2026-01-15T10:32:00.000Z"},
		},
	}

	out := normalizeTimes(input).(map[string]interface{})

	wantTime := time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC)
	assert.Equal(t, wantTime, out["time"])
	assert.Equal(t, "2026-01-15 13:30:00.000", out["brokerTime"], "brokerTime must remain a display string")

	nested := out["nested"].(map[string]interface{})
	assert.Equal(t, time.Date(2026, 1, 15, 10, 31, 0, 0, time.UTC), nested["updateTime"])

	deals := out["deals"].([]interface{})
	deal := deals[0].(map[string]interface{})
	assert.Equal(t, time.Date(2026, 1, 15, 10, 32, 0, 0, time.UTC), deal["time"])
}

func TestNormalizeTimesIsIdempotent(t *testing.T) {
	input := map[string]interface{}{
		"time": "2026-01-15T10:30:00.000Z",
		"list": []interface{}{
			map[string]interface{}{"orderTime": "2026-01-15T10:31:00.000Z"},
		},
	}

	once := normalizeTimes(input)
	twice := normalizeTimes(once)

	require.True(t, cmp.Equal(once, twice), cmp.Diff(once, twice))
}

func TestNormalizeTimesLeavesNonTimeStringsAlone(t *testing.T) {
	input := map[string]interface{}{
		"symbol": "EURUSD",
		"time":   "not-a-real-timestamp",
	}
	out := normalizeTimes(input).(map[string]interface{})
	assert.Equal(t, "EURUSD", out["symbol"])
	assert.Equal(t, "not-a-real-timestamp", out["time"], "unparseable time-suffixed field should pass through untouched")
}
