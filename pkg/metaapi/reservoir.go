package metaapi

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Statistics is the summary computed by Reservoir.Statistics.
type Statistics struct {
	Count   int64
	Sum     float64
	Min     float64
	Max     float64
	Average float64
}

// subWindow is one slot of a Reservoir's ring buffer. id is the absolute
// sub-window index since the epoch (at.UnixNano() / subSpan); a slot
// whose id doesn't match the index implied by "now" holds stale data from
// a previous lap around the ring and is reset in place the next time it's
// touched, rather than proactively swept.
type subWindow struct {
	id    int64
	count int64
	sum   decimal.Decimal
	min   decimal.Decimal
	max   decimal.Decimal
}

// Reservoir is a rolling-window statistic over N sub-windows spanning a
// total window W. Sums are accumulated as decimal.Decimal rather than
// float64 so that a week-long, 168-sub-window uptime accumulation (see
// HealthMonitor) doesn't drift from repeated floating point addition.
type Reservoir struct {
	mu        sync.Mutex
	n         int
	subSpan   time.Duration
	totalSpan time.Duration
	windows   []subWindow
}

// NewReservoir builds a Reservoir with n sub-windows over a total span w.
// A non-positive n is treated as 1. Every sub-window spans w/n
// (truncated), so when n does not divide w evenly the remainder is
// dropped and the effective total window is n*(w/n).
func NewReservoir(n int, w time.Duration) *Reservoir {
	if n <= 0 {
		n = 1
	}
	return &Reservoir{
		n:         n,
		subSpan:   w / time.Duration(n),
		totalSpan: w,
		windows:   make([]subWindow, n),
	}
}

func (r *Reservoir) bucketID(at time.Time) int64 {
	if r.subSpan <= 0 {
		return at.UnixNano()
	}
	return at.UnixNano() / int64(r.subSpan)
}

// Push records value as having occurred at "at" (defaulting to time.Now
// when the zero time is passed).
func (r *Reservoir) Push(value float64, at time.Time) {
	if at.IsZero() {
		at = time.Now()
	}
	id := r.bucketID(at)
	pos := int(((id % int64(r.n)) + int64(r.n)) % int64(r.n))

	r.mu.Lock()
	defer r.mu.Unlock()

	w := &r.windows[pos]
	dv := decimal.NewFromFloat(value)
	if w.id != id {
		*w = subWindow{id: id, count: 1, sum: dv, min: dv, max: dv}
		return
	}
	w.count++
	w.sum = w.sum.Add(dv)
	if dv.LessThan(w.min) {
		w.min = dv
	}
	if dv.GreaterThan(w.max) {
		w.max = dv
	}
}

// Statistics sums every still-live sub-window (age <= W) as
// of now and returns the aggregate.
func (r *Reservoir) Statistics() Statistics {
	now := time.Now()
	currentID := r.bucketID(now)

	r.mu.Lock()
	defer r.mu.Unlock()

	var (
		count   int64
		sum     = decimal.Zero
		min     decimal.Decimal
		max     decimal.Decimal
		haveAny bool
	)
	for i := range r.windows {
		w := &r.windows[i]
		if w.count == 0 {
			continue
		}
		if age := currentID - w.id; age < 0 || age >= int64(r.n) {
			// Outside the window and not yet overwritten; treat as
			// evicted without mutating state from a read path.
			continue
		}
		count += w.count
		sum = sum.Add(w.sum)
		if !haveAny || w.min.LessThan(min) {
			min = w.min
		}
		if !haveAny || w.max.GreaterThan(max) {
			max = w.max
		}
		haveAny = true
	}

	stats := Statistics{Count: count, Sum: sum.InexactFloat64()}
	if haveAny {
		stats.Min = min.InexactFloat64()
		stats.Max = max.InexactFloat64()
	}
	if count > 0 {
		stats.Average = sum.Div(decimal.NewFromInt(count)).InexactFloat64()
	}
	return stats
}
