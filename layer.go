package intercept

import (
	"context"
	"time"

	"github.com/goliatone/go-intercept/pkg/activity"
	"github.com/google/uuid"
)

// Layer is an installed interception layer: a synthetic prototype inserted
// into a target's chain whose traps resolve reads against a normalized
// key/value source before the original ancestry is consulted.
//
// A layer holds no mutable scratch state across trap calls; the relevant-key
// set is recomputed on every access so generator-backed sources stay live.
type Layer struct {
	id     uuid.UUID
	target *Object
	source sourceMap
	cfg    layerConfig

	proto  *Object // synthetic prototype the traps sit in front of
	proxy  *Object // trap-wrapped proto installed on the target
	parent *Object // target's prototype before installation
}

// Install inserts an interception layer between target and its current
// prototype. The source is classified once into one of the supported shapes:
//
//   - []Entry or [][2]any: literal pairs, later duplicates win
//   - Resolver: wildcard handler for every otherwise-unmapped key
//   - Generator, func() []Entry, or PairSource: live entries, re-read on
//     every access
//   - map[Key]any or map[string]any: literal mapping
//
// Anything else registers nothing and the layer degenerates to pure fallback.
// Install never fails; a nil target yields an inert handle.
func Install(target *Object, source any, opts ...Option) *Layer {
	l := &Layer{
		id:     uuid.New(),
		target: target,
		source: classifySource(source),
		cfg:    applyLayerOptions(opts),
	}
	if target == nil {
		l.composeWildcard()
		return l
	}

	parent := target.Prototype()
	l.parent = parent
	if l.cfg.copyParent || parent == nil {
		l.proto = NewObject(parent)
	} else {
		l.proto = parent
	}
	l.composeWildcard()
	l.proxy = NewProxy(l.proto, l)
	target.SetPrototype(l.proxy)
	l.emitInstalled()
	return l
}

// composeWildcard finalizes the wildcard slot for this installation. With
// fallback enabled, a declining user wildcard defers to ordinary inherited
// lookup; with no user wildcard the slot is exactly that default lookup. The
// default resolver is built per installation, never shared.
func (l *Layer) composeWildcard() {
	if !l.cfg.fallback {
		return
	}
	fallback := l.defaultLookup()
	user := l.source.wildcard()
	if user == nil {
		l.source.setWildcard(fallback)
		return
	}
	l.source.setWildcard(func(proto *Object, key Key, receiver *Object) (any, bool, error) {
		value, ok, err := user(proto, key, receiver)
		if err != nil || ok {
			return value, ok, err
		}
		return fallback(proto, key, receiver)
	})
}

// defaultLookup resolves keys through the synthetic prototype's own chain,
// which is the target's original ancestry.
func (l *Layer) defaultLookup() Resolver {
	return func(proto *Object, key Key, receiver *Object) (any, bool, error) {
		start := proto
		if start == nil {
			start = l.proto
		}
		if start == nil {
			return nil, false, nil
		}
		return lookupFrom(start, key, receiver)
	}
}

// relevantKeys computes the keys this layer currently claims together with a
// fresh generator snapshot. Literal keys come first in insertion order with
// excluded keys removed; generator keys follow, deduplicated but not
// exclusion-filtered (matching the reference behavior, asymmetry and all).
func (l *Layer) relevantKeys() ([]Key, map[Key]any) {
	keys := make([]Key, 0, len(l.source.order))
	included := make(map[Key]struct{}, len(l.source.order))
	for _, key := range l.source.order {
		if l.isExcluded(key) {
			continue
		}
		if _, dup := included[key]; dup {
			continue
		}
		included[key] = struct{}{}
		keys = append(keys, key)
	}

	gen := l.source.generator()
	if gen == nil {
		return keys, nil
	}
	entries := gen()
	snapshot := make(map[Key]any, len(entries))
	for _, entry := range entries {
		if entry.Key == nil || !comparableKey(entry.Key) {
			continue
		}
		if _, in := included[entry.Key]; !in {
			included[entry.Key] = struct{}{}
			keys = append(keys, entry.Key)
		}
		snapshot[entry.Key] = entry.Value
	}
	return keys, snapshot
}

func (l *Layer) isExcluded(key Key) bool {
	_, excluded := l.cfg.excluded[key]
	return excluded
}

// Get implements the get trap.
func (l *Layer) Get(proto *Object, key Key, receiver *Object) (value any, ok bool, err error) {
	start := time.Now()
	claimed := false
	defer func() {
		l.cfg.resolutionLogger().LogResolution(ResolutionLogEvent{
			Layer:    l.id.String(),
			Key:      keyString(key),
			Claimed:  claimed,
			Duration: time.Since(start),
			Err:      err,
		})
	}()

	if l.isExcluded(key) {
		return nil, false, nil
	}

	keys, snapshot := l.relevantKeys()
	if containsKey(keys, key) {
		claimed = true
		value, ok = l.source.literal(key)
		if !ok {
			value = snapshot[key]
		}
		if !l.cfg.evaluate {
			return value, true, nil
		}
		result, answered, callErr, called := callValue(value, proto, key, receiver)
		if !called {
			return value, true, nil
		}
		if callErr != nil {
			return nil, true, callErr
		}
		if !answered {
			return nil, true, nil
		}
		return result, true, nil
	}

	if wildcard := l.source.wildcard(); wildcard != nil {
		return wildcard(proto, key, receiver)
	}
	return nil, false, nil
}

// Has implements the existence trap: true for claimed keys, otherwise no
// opinion so the native chain check continues.
func (l *Layer) Has(proto *Object, key Key) (bool, error) {
	keys, _ := l.relevantKeys()
	return containsKey(keys, key), nil
}

// OwnKeys implements the enumeration trap: exactly the relevant-key set,
// never inherited keys and never the internal marker keys.
func (l *Layer) OwnKeys(proto *Object) []Key {
	keys, _ := l.relevantKeys()
	return keys
}

// Remove unsplices the layer from its target, restoring the prototype the
// target had before installation. It only acts while the layer is still the
// nearest link; layers stacked on top of it must be removed first. Reports
// whether the chain changed.
func (l *Layer) Remove() bool {
	if l == nil || l.target == nil || l.proxy == nil {
		return false
	}
	if l.target.Prototype() != l.proxy {
		return false
	}
	l.target.SetPrototype(l.parent)
	l.proxy = nil
	l.emitRemoved()
	return true
}

// ID returns the layer's installation identifier.
func (l *Layer) ID() string {
	if l == nil {
		return ""
	}
	return l.id.String()
}

// Target returns the object whose chain the layer was installed on.
func (l *Layer) Target() *Object {
	if l == nil {
		return nil
	}
	return l.target
}

// Proxy returns the trap-wrapped synthetic prototype installed on the
// target, for diagnostics and chaining.
func (l *Layer) Proxy() *Object {
	if l == nil {
		return nil
	}
	return l.proxy
}

// Prototype returns the synthetic prototype object behind the proxy.
func (l *Layer) Prototype() *Object {
	if l == nil {
		return nil
	}
	return l.proto
}

// Source returns a copy of the normalized literal entries. Wildcard and
// generator slots are internal and never appear in the view.
func (l *Layer) Source() map[Key]any {
	if l == nil {
		return nil
	}
	return l.source.view()
}

// SourceKind reports the classified shape of the installed source.
func (l *Layer) SourceKind() string {
	if l == nil {
		return sourceUnrecognized.String()
	}
	return l.source.kind.String()
}

// Options returns the resolved configuration.
func (l *Layer) Options() Config {
	if l == nil {
		return Config{}
	}
	return l.cfg.config()
}

func (l *Layer) emitInstalled() {
	l.emit(activity.BuildLayerInstalledEvent)
}

func (l *Layer) emitRemoved() {
	l.emit(activity.BuildLayerRemovedEvent)
}

func (l *Layer) emit(build func(activity.LayerEventInput) activity.Event) {
	if !l.cfg.hooks.Enabled() {
		return
	}
	keys, _ := l.relevantKeys()
	names := make([]string, 0, len(keys))
	for _, key := range keys {
		names = append(names, keyString(key))
	}
	event := build(activity.LayerEventInput{
		LayerID:    l.id.String(),
		Definition: l.cfg.definition,
		Keys:       names,
	})
	// Install and Remove stay infallible; hook failures are the hooks' concern.
	_ = l.cfg.hooks.Notify(context.Background(), event)
}

func containsKey(keys []Key, key Key) bool {
	for _, candidate := range keys {
		if candidate == key {
			return true
		}
	}
	return false
}
