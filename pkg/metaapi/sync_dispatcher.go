package metaapi

import (
	"time"

	"github.com/rs/zerolog"
)

// SyncDispatcher classifies reordered synchronization packets and fans
// them out to the per-account Listener set. Dispatch of a
// single packet is sequential across listeners and across the per-type
// sub-events a packet carries (the "update" packet's internal ordering);
// dispatch of successive packets for one account is sequential because
// the caller (RpcClient's read loop, via PacketOrderer) only ever invokes
// Dispatch for one packet at a time per account.
type SyncDispatcher struct {
	listeners *ListenerSet
	logger    zerolog.Logger
}

// NewSyncDispatcher builds a SyncDispatcher over the given ListenerSet.
func NewSyncDispatcher(listeners *ListenerSet, logger zerolog.Logger) *SyncDispatcher {
	return &SyncDispatcher{listeners: listeners, logger: logger}
}

// Dispatch routes one already-reordered Packet to its account's listeners.
func (d *SyncDispatcher) Dispatch(p Packet) {
	accountID := p.AccountID()
	listeners := d.listeners.Snapshot(accountID)
	if len(listeners) == 0 {
		return
	}

	switch p.Type() {
	case "authenticated":
		d.each(listeners, accountID, "onConnected", func(l *Listener) {
			if l.OnConnected != nil {
				l.OnConnected()
			}
		})
	case "disconnected":
		d.each(listeners, accountID, "onDisconnected", func(l *Listener) {
			if l.OnDisconnected != nil {
				l.OnDisconnected()
			}
		})
	case "synchronizationStarted":
		d.each(listeners, accountID, "onSynchronizationStarted", func(l *Listener) {
			if l.OnSynchronizationStarted != nil {
				l.OnSynchronizationStarted()
			}
		})
	case "accountInformation":
		if info, ok := p.object("accountInformation"); ok {
			d.dispatchAccountInformation(listeners, accountID, info)
		}
	case "deals":
		for _, raw := range p.slice("deals") {
			if deal, ok := raw.(map[string]interface{}); ok {
				d.dispatchDealAdded(listeners, accountID, deal)
			}
		}
	case "orders":
		orders := objectSlice(p.slice("orders"))
		d.each(listeners, accountID, "onOrdersReplaced", func(l *Listener) {
			if l.OnOrdersReplaced != nil {
				l.OnOrdersReplaced(orders)
			}
		})
	case "historyOrders":
		for _, raw := range p.slice("historyOrders") {
			if order, ok := raw.(map[string]interface{}); ok {
				d.dispatchHistoryOrderAdded(listeners, accountID, order)
			}
		}
	case "positions":
		positions := objectSlice(p.slice("positions"))
		d.each(listeners, accountID, "onPositionsReplaced", func(l *Listener) {
			if l.OnPositionsReplaced != nil {
				l.OnPositionsReplaced(positions)
			}
		})
	case "update":
		d.dispatchUpdate(listeners, accountID, p)
	case "dealSynchronizationFinished":
		syncID := p.stringAt("synchronizationId")
		d.each(listeners, accountID, "onDealSynchronizationFinished", func(l *Listener) {
			if l.OnDealSynchronizationFinished != nil {
				l.OnDealSynchronizationFinished(syncID)
			}
		})
	case "orderSynchronizationFinished":
		syncID := p.stringAt("synchronizationId")
		d.each(listeners, accountID, "onOrderSynchronizationFinished", func(l *Listener) {
			if l.OnOrderSynchronizationFinished != nil {
				l.OnOrderSynchronizationFinished(syncID)
			}
		})
	case "status":
		connected := p.boolAt("connected")
		d.each(listeners, accountID, "onBrokerConnectionStatusChanged", func(l *Listener) {
			if l.OnBrokerConnectionStatusChanged != nil {
				l.OnBrokerConnectionStatusChanged(connected)
			}
		})
	case "specifications":
		for _, raw := range p.slice("specifications") {
			if spec, ok := raw.(map[string]interface{}); ok {
				d.each(listeners, accountID, "onSymbolSpecificationUpdated", func(l *Listener) {
					if l.OnSymbolSpecificationUpdated != nil {
						l.OnSymbolSpecificationUpdated(spec)
					}
				})
			}
		}
	case "prices":
		for _, raw := range p.slice("prices") {
			if price, ok := raw.(map[string]interface{}); ok {
				d.each(listeners, accountID, "onSymbolPriceUpdated", func(l *Listener) {
					if l.OnSymbolPriceUpdated != nil {
						l.OnSymbolPriceUpdated(price)
					}
				})
			}
		}
	default:
		d.logger.Debug().Str("accountId", accountID).Str("type", p.Type()).Msg("unhandled synchronization packet type")
	}
}

func (d *SyncDispatcher) dispatchAccountInformation(listeners []*Listener, accountID string, info map[string]interface{}) {
	d.each(listeners, accountID, "onAccountInformationUpdated", func(l *Listener) {
		if l.OnAccountInformationUpdated != nil {
			l.OnAccountInformationUpdated(info)
		}
	})
}

func (d *SyncDispatcher) dispatchDealAdded(listeners []*Listener, accountID string, deal map[string]interface{}) {
	d.each(listeners, accountID, "onDealAdded", func(l *Listener) {
		if l.OnDealAdded != nil {
			l.OnDealAdded(deal)
		}
	})
}

func (d *SyncDispatcher) dispatchHistoryOrderAdded(listeners []*Listener, accountID string, order map[string]interface{}) {
	d.each(listeners, accountID, "onHistoryOrderAdded", func(l *Listener) {
		if l.OnHistoryOrderAdded != nil {
			l.OnHistoryOrderAdded(order)
		}
	})
}

// dispatchUpdate implements the "update" packet's fixed internal ordering:
// account information, then positions updated/removed, then orders
// updated/completed, then history orders, then deals.
func (d *SyncDispatcher) dispatchUpdate(listeners []*Listener, accountID string, p Packet) {
	if info, ok := p.object("accountInformation"); ok {
		d.dispatchAccountInformation(listeners, accountID, info)
	}
	for _, raw := range p.slice("updatedPositions") {
		if position, ok := raw.(map[string]interface{}); ok {
			d.each(listeners, accountID, "onPositionUpdated", func(l *Listener) {
				if l.OnPositionUpdated != nil {
					l.OnPositionUpdated(position)
				}
			})
		}
	}
	for _, positionID := range p.stringsAt("removedPositionIds") {
		id := positionID
		d.each(listeners, accountID, "onPositionRemoved", func(l *Listener) {
			if l.OnPositionRemoved != nil {
				l.OnPositionRemoved(id)
			}
		})
	}
	for _, raw := range p.slice("updatedOrders") {
		if order, ok := raw.(map[string]interface{}); ok {
			d.each(listeners, accountID, "onOrderUpdated", func(l *Listener) {
				if l.OnOrderUpdated != nil {
					l.OnOrderUpdated(order)
				}
			})
		}
	}
	for _, orderID := range p.stringsAt("completedOrderIds") {
		id := orderID
		d.each(listeners, accountID, "onOrderCompleted", func(l *Listener) {
			if l.OnOrderCompleted != nil {
				l.OnOrderCompleted(id)
			}
		})
	}
	for _, raw := range p.slice("historyOrders") {
		if order, ok := raw.(map[string]interface{}); ok {
			d.dispatchHistoryOrderAdded(listeners, accountID, order)
		}
	}
	for _, raw := range p.slice("deals") {
		if deal, ok := raw.(map[string]interface{}); ok {
			d.dispatchDealAdded(listeners, accountID, deal)
		}
	}
}

// each invokes fn for every listener in order, isolating panics: one
// misbehaving listener is logged and must not stall the stream or affect
// the others.
func (d *SyncDispatcher) each(listeners []*Listener, accountID, event string, fn func(*Listener)) {
	for _, l := range listeners {
		d.invoke(l, accountID, event, fn)
	}
}

func (d *SyncDispatcher) invoke(l *Listener, accountID, event string, fn func(*Listener)) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error().
				Str("accountId", accountID).
				Str("event", event).
				Interface("panic", r).
				Time("at", time.Now()).
				Msg("synchronization listener panicked")
		}
	}()
	fn(l)
}

func objectSlice(raw []interface{}) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(raw))
	for _, v := range raw {
		if m, ok := v.(map[string]interface{}); ok {
			out = append(out, m)
		}
	}
	return out
}
