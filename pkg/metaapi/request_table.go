package metaapi

import "time"

// pendingRequest tracks one in-flight RPC, minus the deadline (enforced
// by the caller's timer in RPC) and the requestId (used as the map key
// rather than stored redundantly).
type pendingRequest struct {
	accountID string
	reqType   string
	issuedAt  time.Time
	resolve   chan rpcResult
}

type rpcResult struct {
	payload map[string]interface{}
	err     error
}

// requestTable is the shared mutable request-correlation map.
// insertion/lookup/removal are each atomic thanks to Client's own
// mutex guarding all access; requestTable itself is a thin typed wrapper
// so call sites read as intent rather than raw map operations.
type requestTable map[string]*pendingRequest

func newRequestTable() requestTable { return make(requestTable) }
