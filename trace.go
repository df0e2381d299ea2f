package intercept

import (
	"encoding/json"
)

// Trace captures provenance information for a key lookup across the chain
// links that would be consulted to resolve it.
type Trace struct {
	Key   string       `json:"key"`
	Steps []Provenance `json:"steps"`
}

// Provenance details how one chain link responds to a traced key.
type Provenance struct {
	Kind    string `json:"kind"` // "object" or "layer"
	Layer   string `json:"layer,omitempty"`
	Claimed bool   `json:"claimed"`
	Found   bool   `json:"found"`
	Value   any    `json:"value,omitempty"`
}

// TraceKey walks target's chain and records, per link, whether an
// interception layer claims the key or an ordinary object carries it as an
// own property. Layer values are reported through the layer's get trap, so a
// failing resolver fails the trace the same way it fails the access.
func TraceKey(target *Object, key Key) (Trace, error) {
	trace := Trace{Key: keyString(key)}
	if target == nil || !comparableKey(key) {
		return trace, nil
	}

	seen := map[*Object]struct{}{}
	for link := target; link != nil; link = nextLink(link) {
		if _, dup := seen[link]; dup {
			break
		}
		seen[link] = struct{}{}

		if link.handler != nil {
			step := Provenance{Kind: "layer"}
			if layer, ok := link.handler.(*Layer); ok {
				step.Layer = layer.ID()
			}
			claimed, err := link.handler.Has(link.inner, key)
			if err != nil {
				return trace, err
			}
			step.Claimed = claimed
			if claimed {
				value, found, err := link.handler.Get(link.inner, key, target)
				if err != nil {
					return trace, err
				}
				step.Found = found
				if found {
					step.Value = value
				}
			}
			trace.Steps = append(trace.Steps, step)
			continue
		}

		value, found := link.GetOwn(key)
		step := Provenance{Kind: "object", Found: found}
		if found {
			step.Value = value
		}
		trace.Steps = append(trace.Steps, step)
	}
	return trace, nil
}

// ToJSON serialises the trace into JSON for logging or transport helpers.
func (t Trace) ToJSON() ([]byte, error) {
	type alias Trace
	return json.Marshal(alias(t))
}

// TraceFromJSON deserialises a JSON payload that was previously generated
// via ToJSON.
func TraceFromJSON(payload []byte) (Trace, error) {
	type alias Trace
	var trace alias
	if err := json.Unmarshal(payload, &trace); err != nil {
		return Trace{}, err
	}
	return Trace(trace), nil
}
