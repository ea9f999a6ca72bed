package metaapi

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorFromWireClassifiesKnownKinds(t *testing.T) {
	cases := []struct {
		wireName string
		want     ErrorKind
	}{
		{"ValidationError", KindValidation},
		{"NotFoundError", KindNotFound},
		{"NotSynchronizedError", KindNotSynchronized},
		{"TimeoutError", KindTimeout},
		{"NotConnectedError", KindNotConnected},
		{"TradeError", KindTrade},
		{"UnauthorizedError", KindUnauthorized},
		{"NotAuthenticatedError", KindNotConnected},
		{"SomeUnknownGatewayError", KindInternal},
	}
	for _, c := range cases {
		got := errorFromWire(wireError{Error: c.wireName, Message: "x"})
		assert.Equal(t, c.want, got.Kind, c.wireName)
	}
}

func TestUnauthorizedIsFatal(t *testing.T) {
	assert.True(t, KindUnauthorized.Fatal())
	assert.False(t, KindTimeout.Fatal())
}

func TestTradingErrorIsMatchesSentinels(t *testing.T) {
	err := &TradingError{Kind: KindTimeout, Message: "request timed out"}
	assert.True(t, errors.Is(err, Timeout))
	assert.False(t, errors.Is(err, Unauthorized))
}

func TestErrorFromWireFallsBackToLegacyTradeAliases(t *testing.T) {
	got := errorFromWire(wireError{
		Error:       "TradeError",
		Description: "TRADE_RETCODE_ERROR",
		LegacyError: 10004,
	})
	require.Equal(t, KindTrade, got.Kind)
	assert.Equal(t, "TRADE_RETCODE_ERROR", got.StringCode)
	assert.Equal(t, 10004, got.NumericCode)
}

func TestWireNameRoundTrips(t *testing.T) {
	for name, kind := range wireNameToKind {
		if name == "NotAuthenticatedError" {
			continue
		}
		assert.Equal(t, name, kind.WireName())
	}
}
