package metaapi

import "context"

// TradeResult is the decoded "response" payload of a successful trade RPC.
type TradeResult struct {
	NumericCode int
	StringCode  string
	Message     string
	OrderID     string
	PositionID  string
}

// tradeSuccessCodes enumerates the stringCodes a trade response can carry
// without being an error.
var tradeSuccessCodes = map[string]bool{
	"ERR_NO_ERROR":               true,
	"TRADE_RETCODE_PLACED":       true,
	"TRADE_RETCODE_DONE":         true,
	"TRADE_RETCODE_DONE_PARTIAL": true,
	"TRADE_RETCODE_NO_CHANGES":   true,
}

// Trade submits a trade request and resolves with the decoded result, or
// a Trade error if the gateway's response.stringCode isn't one of the
// success codes.
func (c *Client) Trade(ctx context.Context, accountID string, trade map[string]interface{}) (TradeResult, error) {
	payload, err := c.RPC(ctx, accountID, "trade", map[string]interface{}{"trade": trade}, 0, "")
	if err != nil {
		return TradeResult{}, err
	}
	resp, _ := payload["response"].(map[string]interface{})
	return parseTradeResponse(resp)
}

func parseTradeResponse(resp map[string]interface{}) (TradeResult, error) {
	result := TradeResult{
		StringCode: stringOrAlias(resp, "stringCode", "description"),
		Message:    stringField(resp, "message"),
		OrderID:    stringField(resp, "orderId"),
		PositionID: stringField(resp, "positionId"),
	}
	if n, ok := intOrAlias(resp, "numericCode", "error"); ok {
		result.NumericCode = n
	}

	if result.StringCode != "" && !tradeSuccessCodes[result.StringCode] {
		return result, &TradingError{
			Kind:        KindTrade,
			Message:     result.Message,
			NumericCode: result.NumericCode,
			StringCode:  result.StringCode,
		}
	}
	return result, nil
}

func stringField(m map[string]interface{}, key string) string {
	s, _ := m[key].(string)
	return s
}

func stringOrAlias(m map[string]interface{}, key, alias string) string {
	if s := stringField(m, key); s != "" {
		return s
	}
	return stringField(m, alias)
}

func intOrAlias(m map[string]interface{}, key, alias string) (int, bool) {
	if v, ok := numericField(m, key); ok {
		return v, true
	}
	return numericField(m, alias)
}

func numericField(m map[string]interface{}, key string) (int, bool) {
	switch v := m[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	default:
		return 0, false
	}
}
