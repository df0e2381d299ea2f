package intercept

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// KeyDescriptor describes one key the layer currently claims: where it comes
// from and the inferred value type.
type KeyDescriptor struct {
	Key  string `json:"key"`
	Kind string `json:"kind"` // "literal", "resolver", or "generator"
	Type string `json:"type,omitempty"`
}

// SurfaceDocument is a point-in-time description of an installed layer's
// resolution surface. Generator-backed layers may produce a different
// document on every call.
type SurfaceDocument struct {
	LayerID    string          `json:"layer_id"`
	SourceKind string          `json:"source_kind"`
	Wildcard   bool            `json:"wildcard"`
	Fallback   bool            `json:"fallback"`
	Keys       []KeyDescriptor `json:"keys"`
	Fields     []KeyDescriptor `json:"fields,omitempty"`
}

// Describe reports the layer's current resolution surface: the relevant-key
// set with per-key provenance, plus flattened dotted paths for nested literal
// mappings.
func (l *Layer) Describe() SurfaceDocument {
	if l == nil {
		return SurfaceDocument{Keys: []KeyDescriptor{}}
	}

	doc := SurfaceDocument{
		LayerID:    l.ID(),
		SourceKind: l.SourceKind(),
		Wildcard:   l.source.kind == sourceWildcard,
		Fallback:   l.cfg.fallback,
		Keys:       []KeyDescriptor{},
	}

	keys, snapshot := l.relevantKeys()
	for _, key := range keys {
		descriptor := KeyDescriptor{Key: keyString(key)}
		value, literal := l.source.literal(key)
		switch {
		case literal && l.cfg.evaluate && callable(value):
			descriptor.Kind = "resolver"
		case literal:
			descriptor.Kind = "literal"
			descriptor.Type = typeName(value)
			doc.Fields = append(doc.Fields, deriveFieldDescriptors(value, descriptor.Key)...)
		default:
			descriptor.Kind = "generator"
			descriptor.Type = typeName(snapshot[key])
		}
		doc.Keys = append(doc.Keys, descriptor)
	}
	return doc
}

func callable(value any) bool {
	if value == nil {
		return false
	}
	return reflect.TypeOf(value).Kind() == reflect.Func
}

func deriveFieldDescriptors(value any, prefix string) []KeyDescriptor {
	if value == nil {
		return nil
	}

	switch typed := value.(type) {
	case map[string]any:
		if len(typed) == 0 {
			return []KeyDescriptor{{
				Key:  prefix,
				Kind: "literal",
				Type: "map[string]any",
			}}
		}
		keys := make([]string, 0, len(typed))
		for key := range typed {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		var fields []KeyDescriptor
		for _, key := range keys {
			nextPrefix := joinPath(prefix, key)
			fields = append(fields, deriveFieldDescriptors(typed[key], nextPrefix)...)
		}
		return fields
	case []any:
		elementType := "any"
		if len(typed) > 0 {
			elementType = typeName(typed[0])
		}
		return []KeyDescriptor{{
			Key:  prefix,
			Kind: "literal",
			Type: "[]" + elementType,
		}}
	default:
		if prefix == "" {
			return nil
		}
		return []KeyDescriptor{{
			Key:  prefix,
			Kind: "literal",
			Type: typeName(typed),
		}}
	}
}

func typeName(value any) string {
	if value == nil {
		return "nil"
	}
	return fmt.Sprintf("%T", value)
}

func joinPath(prefix, segment string) string {
	if prefix == "" {
		return segment
	}
	return strings.Join([]string{prefix, segment}, ".")
}
