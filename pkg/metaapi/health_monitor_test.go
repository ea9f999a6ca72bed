package metaapi

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTerminal struct {
	connected         bool
	connectedToBroker bool
	synchronized      bool
	symbols           []string
	specs             map[string]SymbolSpecification
}

func (f *fakeTerminal) Connected() bool            { return f.connected }
func (f *fakeTerminal) ConnectedToBroker() bool     { return f.connectedToBroker }
func (f *fakeTerminal) Synchronized() bool          { return f.synchronized }
func (f *fakeTerminal) SubscribedSymbols() []string { return f.symbols }
func (f *fakeTerminal) Specification(symbol string) (SymbolSpecification, bool) {
	s, ok := f.specs[symbol]
	return s, ok
}

func TestHealthStatusHealthyRequiresAllFour(t *testing.T) {
	term := &fakeTerminal{connected: true, connectedToBroker: true, synchronized: true}
	hm := NewHealthMonitor("acct1", term, zerolog.Nop())

	status := hm.HealthStatus()
	assert.True(t, status.QuoteStreamingHealthy, "no subscribed symbols means quote streaming is vacuously healthy")
	assert.True(t, status.Healthy)
	assert.Empty(t, status.Message)
}

func TestHealthStatusMessageListsEveryUnhealthyReason(t *testing.T) {
	term := &fakeTerminal{connected: false, connectedToBroker: false, synchronized: false}
	hm := NewHealthMonitor("acct1", term, zerolog.Nop())
	hm.setQuotesHealthy(false)

	status := hm.HealthStatus()
	require.False(t, status.Healthy)
	assert.Equal(t, "Connection is not healthy because "+
		"connection to API server is not established or lost and "+
		"connection to broker is not established or lost and "+
		"local terminal state is not synchronized to broker and "+
		"quotes are not streamed from the broker properly.", status.Message)
}

func TestHealthMonitorUptimeStaysWithinBounds(t *testing.T) {
	term := &fakeTerminal{connected: true, connectedToBroker: true, synchronized: true}
	hm := NewHealthMonitor("acct1", term, zerolog.Nop())

	hm.reservoir.Push(100, time.Now())
	hm.reservoir.Push(0, time.Now())

	uptime := hm.Uptime()
	assert.GreaterOrEqual(t, uptime, 0.0)
	assert.LessOrEqual(t, uptime, 100.0)
}

func TestOnSymbolPriceUpdatedCapturesBrokerOffset(t *testing.T) {
	term := &fakeTerminal{connected: true, connectedToBroker: true, synchronized: true}
	hm := NewHealthMonitor("acct1", term, zerolog.Nop())

	brokerTime := time.Now().Add(-3 * time.Second)
	hm.onSymbolPriceUpdated(map[string]interface{}{"time": brokerTime})

	hm.mu.Lock()
	haveOffset := hm.haveOffset
	hm.mu.Unlock()
	require.True(t, haveOffset)
}

func TestQuoteHealthTickUnhealthyWithoutAnyQuote(t *testing.T) {
	term := &fakeTerminal{
		connected: true, connectedToBroker: true, synchronized: true,
		symbols: []string{"EURUSD"},
		specs: map[string]SymbolSpecification{
			"EURUSD": {QuoteSessions: map[time.Weekday][]QuoteSession{
				time.Now().Weekday(): {{From: "00:00:00.000", To: "23:59:59.999"}},
			}},
		},
	}
	hm := NewHealthMonitor("acct1", term, zerolog.Nop())
	hm.quoteHealthTick()

	assert.False(t, hm.quotesHealthySnapshot(), "a subscribed symbol that has never produced a quote is unhealthy")
}
