package metaapi

import "sync"

// Listener is a capability record: a consumer opts into the
// synchronization events it cares about by setting the corresponding
// field, leaving the rest nil, instead of implementing a large interface
// in full just to handle one event type.
type Listener struct {
	OnConnected                     func()
	OnDisconnected                  func()
	OnSynchronizationStarted        func()
	OnAccountInformationUpdated     func(info map[string]interface{})
	OnDealAdded                     func(deal map[string]interface{})
	OnOrdersReplaced                func(orders []map[string]interface{})
	OnHistoryOrderAdded             func(order map[string]interface{})
	OnPositionsReplaced             func(positions []map[string]interface{})
	OnPositionUpdated               func(position map[string]interface{})
	OnPositionRemoved               func(positionID string)
	OnOrderUpdated                  func(order map[string]interface{})
	OnOrderCompleted                func(orderID string)
	OnHistoryOrderUpdated           func(order map[string]interface{})
	OnDealSynchronizationFinished   func(synchronizationID string)
	OnOrderSynchronizationFinished  func(synchronizationID string)
	OnBrokerConnectionStatusChanged func(connected bool)
	OnSymbolSpecificationUpdated    func(specification map[string]interface{})
	OnSymbolPriceUpdated            func(price map[string]interface{})
}

// ListenerSet is a mapping from accountId to an ordered collection of
// Listeners. Mutation never happens in place against a slice a dispatch
// loop might be iterating: Snapshot hands the dispatcher its own copy, so
// Add/Remove racing a Dispatch can't produce a use-after-free or
// shifted-index bug.
type ListenerSet struct {
	mu        sync.RWMutex
	byAccount map[string][]*Listener
}

// NewListenerSet builds an empty ListenerSet.
func NewListenerSet() *ListenerSet {
	return &ListenerSet{byAccount: make(map[string][]*Listener)}
}

// Add registers l for accountID, preserving insertion order.
func (s *ListenerSet) Add(accountID string, l *Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byAccount[accountID] = append(s.byAccount[accountID], l)
}

// Remove unregisters l from accountID, if present.
func (s *ListenerSet) Remove(accountID string, l *Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing := s.byAccount[accountID]
	for i, candidate := range existing {
		if candidate == l {
			s.byAccount[accountID] = append(existing[:i:i], existing[i+1:]...)
			return
		}
	}
}

// RemoveAll clears every listener for every account, used on close.
func (s *ListenerSet) RemoveAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byAccount = make(map[string][]*Listener)
}

// Snapshot returns a stable copy of accountID's listeners, safe to range
// over while Add/Remove run concurrently.
func (s *ListenerSet) Snapshot(accountID string) []*Listener {
	s.mu.RLock()
	defer s.mu.RUnlock()
	existing := s.byAccount[accountID]
	if len(existing) == 0 {
		return nil
	}
	out := make([]*Listener, len(existing))
	copy(out, existing)
	return out
}
