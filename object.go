package intercept

import (
	"fmt"
	"sort"
)

// Key identifies a property on an Object. Supported key kinds are string and
// *Symbol; other comparable values work but have no special treatment.
type Key any

// Symbol is an identity-keyed property key. Two symbols are only equal when
// they are the same allocation, so a symbol key can never collide with a
// string key or with another symbol carrying the same description.
type Symbol struct {
	description string
}

// NewSymbol creates a fresh symbol. The description is diagnostic only.
func NewSymbol(description string) *Symbol {
	return &Symbol{description: description}
}

// Description returns the diagnostic text the symbol was created with.
func (s *Symbol) Description() string {
	if s == nil {
		return ""
	}
	return s.description
}

func (s *Symbol) String() string {
	if s == nil {
		return "Symbol(<nil>)"
	}
	return "Symbol(" + s.description + ")"
}

// Handler is the trap set installed on a synthetic prototype. A false ok (or
// false has) means the handler offers no opinion and the native chain walk
// continues past it.
type Handler interface {
	Get(proto *Object, key Key, receiver *Object) (value any, ok bool, err error)
	Has(proto *Object, key Key) (bool, error)
	OwnKeys(proto *Object) []Key
}

// Object is a dynamic property bag with a prototype pointer. Property reads
// and existence checks walk the prototype chain; writes only ever touch the
// object's own properties. Objects are not safe for concurrent mutation.
type Object struct {
	props map[Key]any
	order []Key

	proto *Object

	// handler/inner are set on proxy objects produced by NewProxy. A proxy
	// has no own properties; its traps answer first and its inner object
	// continues the chain.
	handler Handler
	inner   *Object
}

// NewObject constructs an empty object delegating to proto.
func NewObject(proto *Object) *Object {
	return &Object{props: map[Key]any{}, proto: proto}
}

// ObjectOf constructs an object with the given own properties and no
// prototype. Keys are inserted in sorted order so enumeration is
// deterministic.
func ObjectOf(props map[string]any) *Object {
	o := NewObject(nil)
	keys := make([]string, 0, len(props))
	for key := range props {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		o.Set(key, props[key])
	}
	return o
}

// NewProxy wraps target with a trap handler. The proxy has no own properties:
// reads consult the handler first and fall through to target when the handler
// declines.
func NewProxy(target *Object, handler Handler) *Object {
	if handler == nil {
		return target
	}
	return &Object{handler: handler, inner: target}
}

// Set writes an own property. On a proxy the write lands on the underlying
// object; write interception is out of scope.
func (o *Object) Set(key Key, value any) {
	if o == nil || key == nil || !comparableKey(key) {
		return
	}
	if o.inner != nil {
		o.inner.Set(key, value)
		return
	}
	if o.props == nil {
		o.props = map[Key]any{}
	}
	if _, exists := o.props[key]; !exists {
		o.order = append(o.order, key)
	}
	o.props[key] = value
}

// Delete removes an own property. Inherited properties are unaffected.
func (o *Object) Delete(key Key) {
	if o == nil || !comparableKey(key) {
		return
	}
	if o.inner != nil {
		o.inner.Delete(key)
		return
	}
	if _, exists := o.props[key]; !exists {
		return
	}
	delete(o.props, key)
	for i, k := range o.order {
		if k == key {
			o.order = append(o.order[:i], o.order[i+1:]...)
			break
		}
	}
}

// GetOwn reads an own property without consulting traps or the chain.
func (o *Object) GetOwn(key Key) (any, bool) {
	if o == nil || !comparableKey(key) {
		return nil, false
	}
	if o.inner != nil {
		return o.inner.GetOwn(key)
	}
	value, ok := o.props[key]
	return value, ok
}

// Get resolves key against the object and its prototype chain. found is false
// when no own property, trap, or ancestor supplies an answer; a stored nil is
// a real value and reports found true.
func (o *Object) Get(key Key) (value any, found bool, err error) {
	if o == nil || !comparableKey(key) {
		return nil, false, nil
	}
	return lookupFrom(o, key, o)
}

// Has reports whether key resolves anywhere on the object or its chain.
func (o *Object) Has(key Key) (bool, error) {
	if o == nil || !comparableKey(key) {
		return false, nil
	}
	seen := map[*Object]struct{}{}
	for link := o; link != nil; link = nextLink(link) {
		if _, dup := seen[link]; dup {
			return false, nil
		}
		seen[link] = struct{}{}
		if link.handler != nil {
			ok, err := link.handler.Has(link.inner, key)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
			continue
		}
		if _, ok := link.props[key]; ok {
			return true, nil
		}
	}
	return false, nil
}

// OwnKeys enumerates the object's own keys in insertion order. On a proxy the
// ownKeys trap decides the answer.
func (o *Object) OwnKeys() []Key {
	if o == nil {
		return nil
	}
	if o.handler != nil {
		return o.handler.OwnKeys(o.inner)
	}
	return append([]Key(nil), o.order...)
}

// AllKeys enumerates the object and its full chain, deduplicated, nearest
// layer first. Proxy links contribute their trap's ownKeys.
func (o *Object) AllKeys() []Key {
	if o == nil {
		return nil
	}
	var keys []Key
	included := map[Key]struct{}{}
	seen := map[*Object]struct{}{}
	for link := o; link != nil; {
		if _, dup := seen[link]; dup {
			break
		}
		seen[link] = struct{}{}
		var own []Key
		next := link.proto
		if link.handler != nil {
			own = link.handler.OwnKeys(link.inner)
			next = link.inner.Prototype()
		} else {
			own = link.order
		}
		for _, key := range own {
			if _, dup := included[key]; dup {
				continue
			}
			included[key] = struct{}{}
			keys = append(keys, key)
		}
		link = next
	}
	return keys
}

// Prototype returns the object's delegation parent. A proxy reports its
// underlying object's prototype.
func (o *Object) Prototype() *Object {
	if o == nil {
		return nil
	}
	if o.inner != nil {
		return o.inner.Prototype()
	}
	return o.proto
}

// SetPrototype swaps the delegation parent. Own properties are untouched.
func (o *Object) SetPrototype(proto *Object) {
	if o == nil {
		return
	}
	if o.inner != nil {
		o.inner.SetPrototype(proto)
		return
	}
	o.proto = proto
}

// IsPrototypeOf reports whether o appears anywhere in target's prototype
// chain, looking through proxy wrappers. It is the instanceof equivalent for
// this object model.
func (o *Object) IsPrototypeOf(target *Object) bool {
	if o == nil || target == nil {
		return false
	}
	seen := map[*Object]struct{}{}
	for link := nextLink(target); link != nil; link = nextLink(link) {
		if _, dup := seen[link]; dup {
			return false
		}
		seen[link] = struct{}{}
		if link == o {
			return true
		}
	}
	return false
}

// lookupFrom walks the chain beginning at start on behalf of receiver.
func lookupFrom(start *Object, key Key, receiver *Object) (any, bool, error) {
	seen := map[*Object]struct{}{}
	for link := start; link != nil; link = nextLink(link) {
		if _, dup := seen[link]; dup {
			return nil, false, nil
		}
		seen[link] = struct{}{}
		if link.handler != nil {
			value, ok, err := link.handler.Get(link.inner, key, receiver)
			if err != nil {
				return nil, false, err
			}
			if ok {
				return value, true, nil
			}
			continue
		}
		if value, ok := link.props[key]; ok {
			return value, true, nil
		}
	}
	return nil, false, nil
}

// nextLink advances a chain walk: a proxy continues into its underlying
// object, an ordinary object into its prototype.
func nextLink(link *Object) *Object {
	if link == nil {
		return nil
	}
	if link.inner != nil {
		return link.inner
	}
	return link.proto
}

// keyString renders a key for logs, traces, and expression environments.
func keyString(key Key) string {
	switch typed := key.(type) {
	case string:
		return typed
	case *Symbol:
		return typed.String()
	default:
		return fmt.Sprint(typed)
	}
}
