package intercept

import (
	"reflect"
	"sort"
)

// Entry is one key/value pair supplied to Install.
type Entry struct {
	Key   Key
	Value any
}

// Resolver answers a property lookup. ok false is the "no answer" sentinel:
// the layer treats the key as unhandled and resolution continues down the
// chain. Errors propagate unwrapped to the access call site.
type Resolver func(proto *Object, key Key, receiver *Object) (any, bool, error)

// Generator produces a fresh set of entries. It is re-invoked on every trap
// call, never snapshotted across calls, so a source backed by live data stays
// current after installation.
type Generator func() []Entry

// PairSource is an alternative generator shape for types that expose their
// pairs through a method.
type PairSource interface {
	Entries() []Entry
}

// sourceKind tags the classified shape of an Install source. Classification
// happens once at install time.
type sourceKind int

const (
	sourceUnrecognized sourceKind = iota
	sourcePairs
	sourceWildcard
	sourceGenerator
	sourceMapping
)

func (k sourceKind) String() string {
	switch k {
	case sourcePairs:
		return "pairs"
	case sourceWildcard:
		return "wildcard"
	case sourceGenerator:
		return "generator"
	case sourceMapping:
		return "mapping"
	default:
		return "unrecognized"
	}
}

// Marker keys storing the wildcard handler and generator source inside the
// normalized mapping. Symbols cannot collide with user keys and are skipped
// by relevant-key computation, enumeration, and the Source view.
var (
	wildcardKey  = NewSymbol("intercept.wildcard")
	generatorKey = NewSymbol("intercept.generator")
)

// sourceMap is the normalized internal representation of an Install source:
// literal entries in insertion order plus the two marker slots.
type sourceMap struct {
	kind    sourceKind
	entries map[Key]any
	order   []Key
}

func newSourceMap(kind sourceKind) sourceMap {
	return sourceMap{kind: kind, entries: map[Key]any{}}
}

func (s *sourceMap) put(key Key, value any) {
	if key == nil || !comparableKey(key) {
		return
	}
	if _, exists := s.entries[key]; !exists {
		s.order = append(s.order, key)
	}
	s.entries[key] = value
}

func (s *sourceMap) literal(key Key) (any, bool) {
	value, ok := s.entries[key]
	return value, ok
}

func (s *sourceMap) wildcard() Resolver {
	if r, ok := s.entries[wildcardKey].(Resolver); ok {
		return r
	}
	return nil
}

func (s *sourceMap) setWildcard(r Resolver) {
	if r == nil {
		delete(s.entries, wildcardKey)
		return
	}
	s.entries[wildcardKey] = r
}

func (s *sourceMap) generator() Generator {
	if g, ok := s.entries[generatorKey].(Generator); ok {
		return g
	}
	return nil
}

func (s *sourceMap) setGenerator(g Generator) {
	if g == nil {
		delete(s.entries, generatorKey)
		return
	}
	s.entries[generatorKey] = g
}

// view returns a copy of the literal entries, marker slots excluded.
func (s *sourceMap) view() map[Key]any {
	out := make(map[Key]any, len(s.order))
	for _, key := range s.order {
		out[key] = s.entries[key]
	}
	return out
}

// classifySource normalizes the polymorphic Install source. Shapes are
// checked in a fixed order and the result keeps the winning variant tag;
// anything unrecognized degenerates to an empty source rather than erroring.
func classifySource(input any) sourceMap {
	if input == nil {
		return newSourceMap(sourceUnrecognized)
	}
	switch typed := input.(type) {
	case []Entry:
		src := newSourceMap(sourcePairs)
		for _, entry := range typed {
			src.put(entry.Key, entry.Value)
		}
		return src
	case [][2]any:
		src := newSourceMap(sourcePairs)
		for _, pair := range typed {
			src.put(pair[0], pair[1])
		}
		return src
	case Resolver:
		src := newSourceMap(sourceWildcard)
		src.setWildcard(typed)
		return src
	case func(*Object, Key, *Object) (any, bool, error):
		src := newSourceMap(sourceWildcard)
		src.setWildcard(Resolver(typed))
		return src
	case Generator:
		src := newSourceMap(sourceGenerator)
		src.setGenerator(typed)
		return src
	case func() []Entry:
		src := newSourceMap(sourceGenerator)
		src.setGenerator(Generator(typed))
		return src
	case PairSource:
		src := newSourceMap(sourceGenerator)
		src.setGenerator(typed.Entries)
		return src
	case map[Key]any:
		src := newSourceMap(sourceMapping)
		for _, key := range sortedKeys(typed) {
			src.put(key, typed[key])
		}
		return src
	case map[string]any:
		src := newSourceMap(sourceMapping)
		keys := make([]string, 0, len(typed))
		for key := range typed {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			src.put(key, typed[key])
		}
		return src
	default:
		return newSourceMap(sourceUnrecognized)
	}
}

// sortedKeys orders mixed keys deterministically: strings sorted first, then
// everything else by rendered form.
func sortedKeys(entries map[Key]any) []Key {
	keys := make([]Key, 0, len(entries))
	for key := range entries {
		keys = append(keys, key)
	}
	sort.SliceStable(keys, func(i, j int) bool {
		si, iIsString := keys[i].(string)
		sj, jIsString := keys[j].(string)
		if iIsString && jIsString {
			return si < sj
		}
		if iIsString != jIsString {
			return iIsString
		}
		return keyString(keys[i]) < keyString(keys[j])
	})
	return keys
}

func comparableKey(key Key) bool {
	t := reflect.TypeOf(key)
	return t != nil && t.Comparable()
}
