package metaapi

import "encoding/json"

// mergeJSON flattens extra (any request-specific struct or map) and fixed
// (the envelope fields, which win over same-named keys in extra) into a
// single JSON object. An empty-string fixed field other than requestId
// and type is left out, so extra's value for that key, if any, is kept.
func mergeJSON(fixed map[string]interface{}, extra interface{}) ([]byte, error) {
	merged := map[string]interface{}{}
	if extra != nil {
		b, err := json.Marshal(extra)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(b, &merged); err != nil {
			return nil, err
		}
	}
	for k, v := range fixed {
		if s, ok := v.(string); ok && s == "" && k != "requestId" && k != "type" {
			continue
		}
		merged[k] = v
	}
	return json.Marshal(merged)
}

// decodeEvent unmarshals a raw event payload into the generic map
// representation TimeNormalizer, Packet and the dispatcher all operate on.
func decodeEvent(raw []byte) (map[string]interface{}, error) {
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}
