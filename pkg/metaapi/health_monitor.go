package metaapi

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/marceluphd/metaapi-go-sdk/internal/metrics"
)

// QuoteSession is a [from, to] time-of-day window, inclusive of both ends,
// during which a symbol streams prices. From/To are "HH:mm:ss.SSS"
// strings, compared lexicographically — which is correct for zero-padded
// 24-hour clock strings.
type QuoteSession struct {
	From string
	To   string
}

// SymbolSpecification is the subset of a symbol's specification relevant
// to quote-health evaluation.
type SymbolSpecification struct {
	QuoteSessions map[time.Weekday][]QuoteSession
}

// TerminalState is the read-only external collaborator HealthMonitor
// consumes. This core never mutates it.
type TerminalState interface {
	Connected() bool
	ConnectedToBroker() bool
	Synchronized() bool
	SubscribedSymbols() []string
	Specification(symbol string) (SymbolSpecification, bool)
}

// HealthStatus is the composed health snapshot of one account's connection.
type HealthStatus struct {
	Connected             bool
	ConnectedToBroker     bool
	QuoteStreamingHealthy bool
	Synchronized          bool
	Healthy               bool
	Message               string
}

const defaultMinQuoteInterval = 60 * time.Second
const healthTickInterval = time.Second

// uptimeWindowCount/uptimeWindowSpan configure the Reservoir backing
// Uptime: 168 hourly sub-windows over 7 days.
const uptimeWindowCount = 168
const uptimeWindowSpan = 7 * 24 * time.Hour

// HealthMonitor derives connection/quote-streaming/synchronization health
// and a rolling uptime percentage for one account. It
// implements the Listener capability set purely to capture price updates;
// the connected/connectedToBroker/synchronized booleans are read live from
// TerminalState rather than tracked via events, since TerminalState is
// already the source of truth for them.
type HealthMonitor struct {
	accountID        string
	terminal         TerminalState
	minQuoteInterval time.Duration
	reservoir        *Reservoir
	logger           zerolog.Logger
	metrics          *metrics.Metrics

	mu            sync.Mutex
	lastPriceAt   time.Time
	brokerOffset  time.Duration
	haveOffset    bool
	quotesHealthy bool

	cancel context.CancelFunc
	done   chan struct{}
}

// NewHealthMonitor builds a HealthMonitor for one account against its
// TerminalState collaborator.
func NewHealthMonitor(accountID string, terminal TerminalState, logger zerolog.Logger) *HealthMonitor {
	return &HealthMonitor{
		accountID:        accountID,
		terminal:         terminal,
		minQuoteInterval: defaultMinQuoteInterval,
		reservoir:        NewReservoir(uptimeWindowCount, uptimeWindowSpan),
		logger:           logger,
		quotesHealthy:    true,
	}
}

// WithMetrics attaches a Metrics sink that Healthy/Uptime are mirrored
// into on every uptime tick. Optional; a HealthMonitor with no sink
// simply skips the export.
func (h *HealthMonitor) WithMetrics(m *metrics.Metrics) *HealthMonitor {
	h.metrics = m
	return h
}

// Listener returns the capability record HealthMonitor should be
// registered with for accountID on the SyncDispatcher's ListenerSet.
func (h *HealthMonitor) Listener() *Listener {
	return &Listener{
		OnSymbolPriceUpdated: h.onSymbolPriceUpdated,
	}
}

// onSymbolPriceUpdated captures the (clientNow, brokerTimestamp) pair used
// to extrapolate the broker's local clock between quotes.
func (h *HealthMonitor) onSymbolPriceUpdated(price map[string]interface{}) {
	now := time.Now()

	brokerInstant, ok := priceInstant(price)
	if !ok {
		h.mu.Lock()
		h.lastPriceAt = now
		h.mu.Unlock()
		return
	}

	h.mu.Lock()
	h.lastPriceAt = now
	h.brokerOffset = now.Sub(brokerInstant)
	h.haveOffset = true
	h.mu.Unlock()
}

// priceInstant extracts the instant a price update's "time" field carries,
// tolerating both an already-normalized time.Time (the expected case,
// post TimeNormalizer) and a raw ISO-8601 string.
func priceInstant(price map[string]interface{}) (time.Time, bool) {
	raw, ok := price["time"]
	if !ok {
		return time.Time{}, false
	}
	switch v := raw.(type) {
	case time.Time:
		return v, true
	case string:
		return parseISO8601(v)
	default:
		return time.Time{}, false
	}
}

// Start arms the quote-health and uptime ticks, each firing once a second.
func (h *HealthMonitor) Start() {
	h.mu.Lock()
	if h.cancel != nil {
		h.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	h.done = make(chan struct{})
	done := h.done
	h.mu.Unlock()

	go h.tickLoop(ctx, done)
}

// Stop disarms both ticks.
func (h *HealthMonitor) Stop() {
	h.mu.Lock()
	cancel := h.cancel
	done := h.done
	h.cancel = nil
	h.done = nil
	h.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

func (h *HealthMonitor) tickLoop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(healthTickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.safeTick(h.quoteHealthTick, "quote-health")
			h.safeTick(h.uptimeTick, "uptime")
		}
	}
}

// safeTick isolates a tick callback's panic, logging it with a wall-clock
// timestamp and account id instead of letting it take down the process.
func (h *HealthMonitor) safeTick(fn func(), name string) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error().Str("accountId", h.accountID).Str("tick", name).
				Interface("panic", r).Time("at", time.Now()).Msg("health tick panicked")
		}
	}()
	fn()
}

func (h *HealthMonitor) quoteHealthTick() {
	subscribed := h.terminal.SubscribedSymbols()
	if len(subscribed) == 0 {
		h.setQuotesHealthy(true)
		return
	}

	h.mu.Lock()
	haveOffset := h.haveOffset
	offset := h.brokerOffset
	lastPriceAt := h.lastPriceAt
	h.mu.Unlock()

	now := time.Now()
	recent := !lastPriceAt.IsZero() && now.Sub(lastPriceAt) <= h.minQuoteInterval

	if !haveOffset {
		// No quote with a parseable time yet: we can't evaluate quote
		// sessions at all, so fall back on recency alone — unhealthy
		// until the first quote arrives (lastPriceAt is then zero).
		h.setQuotesHealthy(recent)
		return
	}

	brokerNow := now.Add(-offset)
	serverTime := brokerNow.Format("15:04:05.000")

	inSession := false
	for _, symbol := range subscribed {
		spec, ok := h.terminal.Specification(symbol)
		if !ok {
			continue
		}
		for _, session := range spec.QuoteSessions[brokerNow.Weekday()] {
			if session.From <= serverTime && serverTime <= session.To {
				inSession = true
				break
			}
		}
		if inSession {
			break
		}
	}

	h.setQuotesHealthy(!inSession || recent)
}

func (h *HealthMonitor) setQuotesHealthy(healthy bool) {
	h.mu.Lock()
	h.quotesHealthy = healthy
	h.mu.Unlock()
}

func (h *HealthMonitor) quotesHealthySnapshot() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.quotesHealthy
}

func (h *HealthMonitor) uptimeTick() {
	status := h.HealthStatus()
	value := 0.0
	if status.Healthy {
		value = 100
	}
	h.reservoir.Push(value, time.Now())

	if h.metrics != nil {
		h.metrics.SetHealthy(h.accountID, status.Healthy)
		h.metrics.SetUptime(h.accountID, h.reservoir.Statistics().Average)
	}
}

// HealthStatus composes the current health snapshot: Healthy is the
// conjunction of all four booleans below.
func (h *HealthMonitor) HealthStatus() HealthStatus {
	connected := h.terminal.Connected()
	connectedToBroker := h.terminal.ConnectedToBroker()
	synchronized := h.terminal.Synchronized()
	quotesHealthy := h.quotesHealthySnapshot()
	healthy := connected && connectedToBroker && quotesHealthy && synchronized

	var reasons []string
	if !connected {
		reasons = append(reasons, "connection to API server is not established or lost")
	}
	if !connectedToBroker {
		reasons = append(reasons, "connection to broker is not established or lost")
	}
	if !synchronized {
		reasons = append(reasons, "local terminal state is not synchronized to broker")
	}
	if !quotesHealthy {
		reasons = append(reasons, "quotes are not streamed from the broker properly")
	}

	var message string
	if !healthy {
		message = "Connection is not healthy because " + strings.Join(reasons, " and ") + "."
	}

	return HealthStatus{
		Connected:             connected,
		ConnectedToBroker:     connectedToBroker,
		QuoteStreamingHealthy: quotesHealthy,
		Synchronized:          synchronized,
		Healthy:               healthy,
		Message:               message,
	}
}

// Uptime returns the rolling 7-day uptime percentage, always in [0,100].
func (h *HealthMonitor) Uptime() float64 {
	return h.reservoir.Statistics().Average
}
