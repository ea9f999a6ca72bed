package metaapi

// Packet is a decoded synchronization event, already time-normalized.
// Synchronization payloads are large and evolve independently of this
// client, so rather than a generated struct per packet type, a packet is
// kept as its decoded JSON map and read through small typed accessors, in
// the same spirit as normalizeTimes' generic structural walk.
type Packet map[string]interface{}

// Type returns the packet's "type" discriminator.
func (p Packet) Type() string {
	s, _ := p["type"].(string)
	return s
}

// AccountID returns the packet's "accountId" partition key.
func (p Packet) AccountID() string {
	s, _ := p["accountId"].(string)
	return s
}

// SequenceNumber returns the packet's ordinal and whether it had one.
// Non-synchronization packets, and a handful of synchronization packet
// types that aren't part of the per-account ordering stream, lack one.
func (p Packet) SequenceNumber() (int64, bool) {
	raw, ok := p["sequenceNumber"]
	if !ok || raw == nil {
		return 0, false
	}
	switch n := raw.(type) {
	case float64:
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	default:
		return 0, false
	}
}

func (p Packet) get(key string) (interface{}, bool) {
	v, ok := p[key]
	return v, ok
}

func (p Packet) slice(key string) []interface{} {
	v, ok := p[key]
	if !ok || v == nil {
		return nil
	}
	s, _ := v.([]interface{})
	return s
}

func (p Packet) object(key string) (map[string]interface{}, bool) {
	v, ok := p[key]
	if !ok || v == nil {
		return nil, false
	}
	m, ok := v.(map[string]interface{})
	return m, ok
}

func (p Packet) stringsAt(key string) []string {
	raw := p.slice(key)
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func (p Packet) boolAt(key string) bool {
	b, _ := p[key].(bool)
	return b
}

func (p Packet) stringAt(key string) string {
	s, _ := p[key].(string)
	return s
}

// requestEnvelope is the outbound shape of every RPC.
type requestEnvelope struct {
	RequestID   string      `json:"requestId"`
	AccountID   string      `json:"accountId,omitempty"`
	Application string      `json:"application,omitempty"`
	Type        string      `json:"type"`
	Extra       interface{} `json:"-"`
}

// MarshalJSON merges the fixed envelope fields with the caller's
// type-specific request fields into one flat JSON object, matching the
// wire shape "{requestId, accountId, application, type, ...typeSpecific}".
func (r requestEnvelope) MarshalJSON() ([]byte, error) {
	return mergeJSON(map[string]interface{}{
		"requestId":   r.RequestID,
		"accountId":   r.AccountID,
		"application": r.Application,
		"type":        r.Type,
	}, r.Extra)
}

// responseEnvelope is the shape of an inbound "response" event: a
// requestId plus a payload keyed by request type.
type responseEnvelope struct {
	RequestID string                 `json:"requestId"`
	Payload   map[string]interface{} `json:"-"`
}

// processingErrorEnvelope is the shape of an inbound "processingError"
// event.
type processingErrorEnvelope struct {
	RequestID string `json:"requestId"`
	wireError
}
