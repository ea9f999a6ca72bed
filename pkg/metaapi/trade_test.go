package metaapi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTradeResponseResolvesOnSuccessCode(t *testing.T) {
	resp := map[string]interface{}{
		"stringCode": "TRADE_RETCODE_DONE",
		"orderId":    "123",
		"positionId": "456",
	}
	result, err := parseTradeResponse(resp)
	require.NoError(t, err)
	assert.Equal(t, "123", result.OrderID)
	assert.Equal(t, "456", result.PositionID)
}

func TestParseTradeResponseRejectsOnErrorCode(t *testing.T) {
	resp := map[string]interface{}{
		"stringCode":  "TRADE_RETCODE_ERROR",
		"numericCode": float64(10004),
		"message":     "Invalid request",
	}
	_, err := parseTradeResponse(resp)
	require.Error(t, err)

	var te *TradingError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, KindTrade, te.Kind)
	assert.Equal(t, "TRADE_RETCODE_ERROR", te.StringCode)
	assert.Equal(t, 10004, te.NumericCode)
}

func TestParseTradeResponseFallsBackToLegacyFields(t *testing.T) {
	resp := map[string]interface{}{
		"description": "TRADE_RETCODE_ERROR",
		"error":       float64(10013),
	}
	_, err := parseTradeResponse(resp)
	require.Error(t, err)

	var te *TradingError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "TRADE_RETCODE_ERROR", te.StringCode)
	assert.Equal(t, 10013, te.NumericCode)
}

func TestParseTradeResponseWithoutStringCodeSucceeds(t *testing.T) {
	_, err := parseTradeResponse(map[string]interface{}{})
	assert.NoError(t, err)
}
