package metaapi

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// GapTimeout is how long PacketOrderer waits for a missing sequence
// number to arrive before declaring the gap unrecoverable.
const GapTimeout = 10 * time.Second

// gapRetryDelay is how long a gap-recovery notification that was dropped
// by the resubscribe rate limiter waits before the next attempt.
const gapRetryDelay = time.Second

// defaultTickInterval is how often the background tick checks for expired
// wait-deadlines.
const defaultTickInterval = time.Second

// GapRecoveryFunc is invoked, once per account, when a reordering gap
// could not be filled before GapTimeout. The host is expected to issue a
// fresh subscribe for accountID; PacketOrderer has already cleared the
// account's local state by the time this is called.
type GapRecoveryFunc func(accountID string)

type accountOrderState struct {
	expectedSeq  *int64
	waitBuffer   map[int64]Packet
	waitDeadline time.Time
}

// deadlineEntry is a heap element tracking one account's armed
// wait-deadline. Entries are never mutated in place — rearming or
// clearing a deadline simply leaves the old heap entry to be discarded as
// stale when it's eventually popped — a min-heap over deadlines avoids
// per-account scanning as account count grows.
type deadlineEntry struct {
	accountID string
	deadline  time.Time
}

type deadlineHeap []deadlineEntry

func (h deadlineHeap) Len() int            { return len(h) }
func (h deadlineHeap) Less(i, j int) bool  { return h[i].deadline.Before(h[j].deadline) }
func (h deadlineHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *deadlineHeap) Push(x interface{}) { *h = append(*h, x.(deadlineEntry)) }
func (h *deadlineHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// PacketOrderer reorders a per-account stream of sequence-numbered
// synchronization packets. Packets without a sequence
// number pass straight through; packets for a never-seen account adopt
// their sequence number as the new baseline; packets that arrive out of
// order are buffered until the gap fills or GapTimeout elapses.
type PacketOrderer struct {
	mu       sync.Mutex
	accounts map[string]*accountOrderState
	pending  deadlineHeap

	onGap        GapRecoveryFunc
	resubscribes *rate.Limiter
	tickInterval time.Duration
	logger       zerolog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewPacketOrderer builds a PacketOrderer. onGap may be nil if the host
// doesn't need gap notifications (state is still reset either way).
func NewPacketOrderer(onGap GapRecoveryFunc, logger zerolog.Logger) *PacketOrderer {
	return &PacketOrderer{
		accounts: make(map[string]*accountOrderState),
		onGap:    onGap,
		// Bounds how many resubscribes fire per second if many accounts'
		// gaps time out simultaneously, so a server-side blip doesn't
		// turn into a request storm against the transport.
		resubscribes: rate.NewLimiter(rate.Limit(5), 5),
		tickInterval: defaultTickInterval,
		logger:       logger,
	}
}

// Start arms the background gap-timeout tick.
func (o *PacketOrderer) Start() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	o.cancel = cancel
	o.done = make(chan struct{})
	go o.tickLoop(ctx, o.done)
}

// Stop disarms the tick and clears all per-account state.
func (o *PacketOrderer) Stop() {
	o.mu.Lock()
	cancel := o.cancel
	done := o.done
	o.cancel = nil
	o.done = nil
	o.accounts = make(map[string]*accountOrderState)
	o.pending = nil
	o.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

func (o *PacketOrderer) tickLoop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(o.tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.tick()
		}
	}
}

// RestoreOrder applies the account's reordering state to p and returns
// zero or more packets, in ascending sequence order, ready for dispatch.
func (o *PacketOrderer) RestoreOrder(p Packet) []Packet {
	seq, ok := p.SequenceNumber()
	if !ok {
		return []Packet{p}
	}
	accountID := p.AccountID()

	o.mu.Lock()
	defer o.mu.Unlock()

	st, exists := o.accounts[accountID]
	if !exists {
		st = &accountOrderState{waitBuffer: make(map[int64]Packet)}
		o.accounts[accountID] = st
	}

	switch {
	case st.expectedSeq == nil:
		next := seq + 1
		st.expectedSeq = &next
		return []Packet{p}

	case seq == *st.expectedSeq:
		out := []Packet{p}
		*st.expectedSeq++
		for {
			buffered, ok := st.waitBuffer[*st.expectedSeq]
			if !ok {
				break
			}
			out = append(out, buffered)
			delete(st.waitBuffer, *st.expectedSeq)
			*st.expectedSeq++
		}
		if len(st.waitBuffer) == 0 {
			st.waitDeadline = time.Time{}
		}
		return out

	case seq > *st.expectedSeq:
		if _, buffered := st.waitBuffer[seq]; !buffered {
			st.waitBuffer[seq] = p
		}
		if st.waitDeadline.IsZero() {
			st.waitDeadline = time.Now().Add(GapTimeout)
			heap.Push(&o.pending, deadlineEntry{accountID: accountID, deadline: st.waitDeadline})
		}
		return nil

	default: // seq < expectedSeq: duplicate, dropped
		o.logger.Debug().Str("accountId", accountID).Int64("sequenceNumber", seq).
			Msg("dropping duplicate synchronization packet")
		return nil
	}
}

// tick checks the deadline heap for accounts whose gap has gone
// unrecoverably stale and reports them via onGap, resetting their state
// once the report goes out (or is intentionally dropped because no onGap
// is registered). A report the resubscribe rate limiter drops is rearmed
// for a later retry instead of being reset. Stale heap entries (from a
// gap that already closed or rearmed) are discarded without action.
func (o *PacketOrderer) tick() {
	now := time.Now()
	var expired []string

	o.mu.Lock()
	for o.pending.Len() > 0 && !o.pending[0].deadline.After(now) {
		entry := heap.Pop(&o.pending).(deadlineEntry)
		st, ok := o.accounts[entry.accountID]
		if !ok || st.waitDeadline.IsZero() || !st.waitDeadline.Equal(entry.deadline) || len(st.waitBuffer) == 0 {
			continue
		}
		expired = append(expired, entry.accountID)
	}
	o.mu.Unlock()

	for _, accountID := range expired {
		o.logger.Warn().Str("accountId", accountID).Dur("gapTimeout", GapTimeout).
			Msg("synchronization packet gap exceeded timeout, requesting fresh subscribe")
		if o.onGap == nil {
			o.resetGapState(accountID)
			continue
		}
		if !o.resubscribes.Allow() {
			o.logger.Warn().Str("accountId", accountID).Dur("retryIn", gapRetryDelay).
				Msg("resubscribe rate limited, rearming gap deadline for retry")
			o.rearmGapDeadline(accountID, now.Add(gapRetryDelay))
			continue
		}
		o.resetGapState(accountID)
		o.invokeGapRecovery(accountID)
	}
}

// resetGapState drops an account's buffered out-of-order packets and
// expected-sequence tracking after a gap has been reported or silently
// discarded (no onGap registered).
func (o *PacketOrderer) resetGapState(accountID string) {
	o.mu.Lock()
	delete(o.accounts, accountID)
	o.mu.Unlock()
}

// rearmGapDeadline reschedules accountID's gap check at deadline instead
// of reporting it now, used when the resubscribe rate limiter drops an
// expired gap so it still gets a follow-up attempt rather than silently
// vanishing. A no-op if the account's state was removed concurrently.
func (o *PacketOrderer) rearmGapDeadline(accountID string, deadline time.Time) {
	o.mu.Lock()
	defer o.mu.Unlock()
	st, ok := o.accounts[accountID]
	if !ok {
		return
	}
	st.waitDeadline = deadline
	heap.Push(&o.pending, deadlineEntry{accountID: accountID, deadline: deadline})
}

func (o *PacketOrderer) invokeGapRecovery(accountID string) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error().Str("accountId", accountID).Interface("panic", r).
				Time("at", time.Now()).Msg("gap recovery callback panicked")
		}
	}()
	o.onGap(accountID)
}
