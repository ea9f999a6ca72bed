package metaapi

import (
	"context"
	"time"
)

// The methods below are thin RPC wrappers over the request types the
// gateway accepts. Each stamps its own "type" and passes caller-supplied
// fields straight through as the request's type-specific payload.

func (c *Client) GetAccountInformation(ctx context.Context, accountID string) (map[string]interface{}, error) {
	payload, err := c.RPC(ctx, accountID, "getAccountInformation", nil, 0, "")
	if err != nil {
		return nil, err
	}
	info, _ := payload["accountInformation"].(map[string]interface{})
	return info, nil
}

func (c *Client) GetPositions(ctx context.Context, accountID string) ([]map[string]interface{}, error) {
	payload, err := c.RPC(ctx, accountID, "getPositions", nil, 0, "")
	if err != nil {
		return nil, err
	}
	return objectSlice(sliceField(payload, "positions")), nil
}

func (c *Client) GetPosition(ctx context.Context, accountID, positionID string) (map[string]interface{}, error) {
	payload, err := c.RPC(ctx, accountID, "getPosition", map[string]interface{}{"positionId": positionID}, 0, "")
	if err != nil {
		return nil, err
	}
	pos, _ := payload["position"].(map[string]interface{})
	return pos, nil
}

func (c *Client) GetOrders(ctx context.Context, accountID string) ([]map[string]interface{}, error) {
	payload, err := c.RPC(ctx, accountID, "getOrders", nil, 0, "")
	if err != nil {
		return nil, err
	}
	return objectSlice(sliceField(payload, "orders")), nil
}

func (c *Client) GetOrder(ctx context.Context, accountID, orderID string) (map[string]interface{}, error) {
	payload, err := c.RPC(ctx, accountID, "getOrder", map[string]interface{}{"orderId": orderID}, 0, "")
	if err != nil {
		return nil, err
	}
	order, _ := payload["order"].(map[string]interface{})
	return order, nil
}

func (c *Client) GetHistoryOrdersByTicket(ctx context.Context, accountID, ticket string) (map[string]interface{}, error) {
	return c.RPC(ctx, accountID, "getHistoryOrdersByTicket", map[string]interface{}{"ticket": ticket}, 0, "")
}

func (c *Client) GetHistoryOrdersByPosition(ctx context.Context, accountID, positionID string) (map[string]interface{}, error) {
	return c.RPC(ctx, accountID, "getHistoryOrdersByPosition", map[string]interface{}{"positionId": positionID}, 0, "")
}

func (c *Client) GetHistoryOrdersByTimeRange(ctx context.Context, accountID string, startTime, endTime time.Time, offset, limit int) (map[string]interface{}, error) {
	extra := map[string]interface{}{
		"startTime": startTime.UTC().Format(time.RFC3339Nano),
		"endTime":   endTime.UTC().Format(time.RFC3339Nano),
		"offset":    offset,
		"limit":     limit,
	}
	return c.RPC(ctx, accountID, "getHistoryOrdersByTimeRange", extra, 0, "")
}

func (c *Client) GetDealsByTicket(ctx context.Context, accountID, ticket string) (map[string]interface{}, error) {
	return c.RPC(ctx, accountID, "getDealsByTicket", map[string]interface{}{"ticket": ticket}, 0, "")
}

func (c *Client) GetDealsByPosition(ctx context.Context, accountID, positionID string) (map[string]interface{}, error) {
	return c.RPC(ctx, accountID, "getDealsByPosition", map[string]interface{}{"positionId": positionID}, 0, "")
}

func (c *Client) GetDealsByTimeRange(ctx context.Context, accountID string, startTime, endTime time.Time, offset, limit int) (map[string]interface{}, error) {
	extra := map[string]interface{}{
		"startTime": startTime.UTC().Format(time.RFC3339Nano),
		"endTime":   endTime.UTC().Format(time.RFC3339Nano),
		"offset":    offset,
		"limit":     limit,
	}
	return c.RPC(ctx, accountID, "getDealsByTimeRange", extra, 0, "")
}

func (c *Client) RemoveHistory(ctx context.Context, accountID, app string) error {
	_, err := c.RPC(ctx, accountID, "removeHistory", map[string]interface{}{"app": app}, 0, "")
	return err
}

func (c *Client) RemoveApplication(ctx context.Context, accountID string) error {
	_, err := c.RPC(ctx, accountID, "removeApplication", nil, 0, "")
	return err
}

func (c *Client) Reconnect(ctx context.Context, accountID string) error {
	_, err := c.RPC(ctx, accountID, "reconnect", nil, 0, "")
	return err
}

// Synchronize starts synchronization for accountID. requestID should be
// caller-supplied and stable across client restarts so server-side
// correlation survives a reconnect.
func (c *Client) Synchronize(ctx context.Context, accountID, requestID string, extra map[string]interface{}) (map[string]interface{}, error) {
	return c.RPC(ctx, accountID, "synchronize", extra, 0, requestID)
}

func (c *Client) SubscribeToMarketData(ctx context.Context, accountID, symbol string) error {
	_, err := c.RPC(ctx, accountID, "subscribeToMarketData", map[string]interface{}{"symbol": symbol}, 0, "")
	return err
}

func (c *Client) GetSymbolSpecification(ctx context.Context, accountID, symbol string) (map[string]interface{}, error) {
	payload, err := c.RPC(ctx, accountID, "getSymbolSpecification", map[string]interface{}{"symbol": symbol}, 0, "")
	if err != nil {
		return nil, err
	}
	spec, _ := payload["specification"].(map[string]interface{})
	return spec, nil
}

func (c *Client) GetSymbolPrice(ctx context.Context, accountID, symbol string) (map[string]interface{}, error) {
	payload, err := c.RPC(ctx, accountID, "getSymbolPrice", map[string]interface{}{"symbol": symbol}, 0, "")
	if err != nil {
		return nil, err
	}
	price, _ := payload["price"].(map[string]interface{})
	return price, nil
}

func sliceField(payload map[string]interface{}, key string) []interface{} {
	v, ok := payload[key]
	if !ok || v == nil {
		return nil
	}
	s, _ := v.([]interface{})
	return s
}
