package intercept

import (
	"errors"
	"reflect"
	"testing"

	"github.com/goliatone/go-intercept/pkg/activity"
)

func TestInstallLiteralPairs(t *testing.T) {
	drink := ObjectOf(map[string]any{"name": "Cocacola"})
	layer := Install(drink, []Entry{
		{Key: "type", Value: "drink"},
		{Key: "hasCalories", Value: func() bool { return true }},
	})

	value, found, err := drink.Get("type")
	if err != nil || !found || value != "drink" {
		t.Fatalf("expected mapped literal, got %v found=%v err=%v", value, found, err)
	}
	value, found, err = drink.Get("hasCalories")
	if err != nil || !found || value != true {
		t.Fatalf("expected evaluated function result, got %v found=%v err=%v", value, found, err)
	}
	value, found, err = drink.Get("name")
	if err != nil || !found || value != "Cocacola" {
		t.Fatalf("expected own property untouched, got %v found=%v err=%v", value, found, err)
	}
	if _, found, _ = drink.Get("missing"); found {
		t.Fatal("expected unmapped key to stay unresolved")
	}

	if layer.SourceKind() != "pairs" {
		t.Fatalf("expected pairs source, got %q", layer.SourceKind())
	}
	if got := layer.OwnKeys(nil); !reflect.DeepEqual(got, []Key{"type", "hasCalories"}) {
		t.Fatalf("expected source keys in insertion order, got %v", got)
	}
}

func TestInstallPairsLaterDuplicateWins(t *testing.T) {
	target := NewObject(nil)
	Install(target, [][2]any{
		{"type", "food"},
		{"type", "drink"},
	})

	value, _, err := target.Get("type")
	if err != nil || value != "drink" {
		t.Fatalf("expected later duplicate to win, got %v err=%v", value, err)
	}
}

func TestInstallMappingSource(t *testing.T) {
	target := NewObject(nil)
	layer := Install(target, map[string]any{"b": 2, "a": 1})

	if layer.SourceKind() != "mapping" {
		t.Fatalf("expected mapping source, got %q", layer.SourceKind())
	}
	if got := layer.OwnKeys(nil); !reflect.DeepEqual(got, []Key{"a", "b"}) {
		t.Fatalf("expected sorted mapping keys, got %v", got)
	}
}

func TestFunctionEvaluationDisabled(t *testing.T) {
	target := NewObject(nil)
	callable := func() bool { return true }
	Install(target, []Entry{{Key: "hasCalories", Value: callable}},
		WithFunctionEvaluation(false))

	value, found, err := target.Get("hasCalories")
	if err != nil || !found {
		t.Fatalf("expected mapped key found, err=%v", err)
	}
	if reflect.ValueOf(value).Kind() != reflect.Func {
		t.Fatalf("expected raw callable returned, got %T", value)
	}
}

func TestResolverEntryReceivesContext(t *testing.T) {
	target := ObjectOf(map[string]any{"base": 10})
	var gotKey Key
	Install(target, []Entry{{
		Key: "double",
		Value: Resolver(func(_ *Object, key Key, receiver *Object) (any, bool, error) {
			gotKey = key
			base, _, _ := receiver.Get("base")
			return base.(int) * 2, true, nil
		}),
	}})

	value, found, err := target.Get("double")
	if err != nil || !found || value != 20 {
		t.Fatalf("expected resolver answer, got %v found=%v err=%v", value, found, err)
	}
	if gotKey != Key("double") {
		t.Fatalf("expected key passed to resolver, got %v", gotKey)
	}
}

func TestResolverErrorPropagates(t *testing.T) {
	boom := errors.New("boom")
	target := NewObject(nil)
	Install(target, []Entry{{
		Key: "bad",
		Value: Resolver(func(*Object, Key, *Object) (any, bool, error) {
			return nil, false, boom
		}),
	}})

	_, _, err := target.Get("bad")
	if !errors.Is(err, boom) {
		t.Fatalf("expected resolver error surfaced, got %v", err)
	}
}

func TestClaimedResolverDecliningYieldsNil(t *testing.T) {
	base := ObjectOf(map[string]any{"flag": "inherited"})
	target := NewObject(base)
	Install(target, []Entry{{
		Key: "flag",
		Value: Resolver(func(*Object, Key, *Object) (any, bool, error) {
			return nil, false, nil
		}),
	}})

	// The key stays claimed: a declining mapped resolver does not reopen the
	// chain for that key.
	value, found, err := target.Get("flag")
	if err != nil || !found || value != nil {
		t.Fatalf("expected claimed nil answer, got %v found=%v err=%v", value, found, err)
	}
}

func TestWildcardSource(t *testing.T) {
	target := ObjectOf(map[string]any{"own": "kept"})
	layer := Install(target, Resolver(func(_ *Object, key Key, _ *Object) (any, bool, error) {
		if key == "answer" {
			return 42, true, nil
		}
		return nil, false, nil
	}))

	if layer.SourceKind() != "wildcard" {
		t.Fatalf("expected wildcard source, got %q", layer.SourceKind())
	}
	value, found, err := target.Get("answer")
	if err != nil || !found || value != 42 {
		t.Fatalf("expected wildcard answer, got %v found=%v err=%v", value, found, err)
	}
	value, found, err = target.Get("own")
	if err != nil || !found || value != "kept" {
		t.Fatalf("expected fallback to own chain, got %v found=%v err=%v", value, found, err)
	}
	if got := layer.OwnKeys(nil); len(got) != 0 {
		t.Fatalf("expected wildcard layer to claim no keys, got %v", got)
	}
}

func TestWildcardWithoutFallback(t *testing.T) {
	base := ObjectOf(map[string]any{"limit": 100})
	target := NewObject(base)
	Install(target, Resolver(func(*Object, Key, *Object) (any, bool, error) {
		return nil, false, nil
	}), WithFallback(false))

	// The declining wildcard offers no opinion, so the native walk still
	// reaches the original ancestry behind the synthetic prototype.
	value, found, err := target.Get("limit")
	if err != nil || !found || value != 100 {
		t.Fatalf("expected native chain to answer, got %v found=%v err=%v", value, found, err)
	}
}

func TestGeneratorSourceStaysLive(t *testing.T) {
	env := map[string]string{"PORT": "3000"}
	target := NewObject(nil)
	layer := Install(target, func() []Entry {
		entries := make([]Entry, 0, len(env))
		for key, value := range env {
			entries = append(entries, Entry{Key: key, Value: value})
		}
		return entries
	})

	if layer.SourceKind() != "generator" {
		t.Fatalf("expected generator source, got %q", layer.SourceKind())
	}
	value, found, err := target.Get("PORT")
	if err != nil || !found || value != "3000" {
		t.Fatalf("expected generated value, got %v found=%v err=%v", value, found, err)
	}

	env["PORT"] = "4000"
	value, _, _ = target.Get("PORT")
	if value != "4000" {
		t.Fatalf("expected fresh generator read, got %v", value)
	}

	env["HOST"] = "localhost"
	has, err := target.Has("HOST")
	if err != nil || !has {
		t.Fatalf("expected new generated key visible, got %v err=%v", has, err)
	}
}

type pairProvider struct {
	entries []Entry
}

func (p pairProvider) Entries() []Entry { return p.entries }

func TestPairSourceInterface(t *testing.T) {
	target := NewObject(nil)
	layer := Install(target, pairProvider{entries: []Entry{{Key: "kind", Value: "provider"}}})

	if layer.SourceKind() != "generator" {
		t.Fatalf("expected generator source, got %q", layer.SourceKind())
	}
	value, found, err := target.Get("kind")
	if err != nil || !found || value != "provider" {
		t.Fatalf("expected provider entry, got %v found=%v err=%v", value, found, err)
	}
}

func TestUnrecognizedSourceDegeneratesToFallback(t *testing.T) {
	base := ObjectOf(map[string]any{"limit": 100})
	target := NewObject(base)
	layer := Install(target, 12345)

	if layer.SourceKind() != "unrecognized" {
		t.Fatalf("expected unrecognized source, got %q", layer.SourceKind())
	}
	value, found, err := target.Get("limit")
	if err != nil || !found || value != 100 {
		t.Fatalf("expected pure fallback behavior, got %v found=%v err=%v", value, found, err)
	}
	if got := layer.OwnKeys(nil); len(got) != 0 {
		t.Fatalf("expected no claimed keys, got %v", got)
	}
}

func TestExcludedKeysFallThrough(t *testing.T) {
	base := ObjectOf(map[string]any{"secret": "original"})
	target := NewObject(base)
	layer := Install(target, map[string]any{
		"secret": "shadowed",
		"open":   "layered",
	}, WithExcludedKeys("secret"))

	value, found, err := target.Get("secret")
	if err != nil || !found || value != "original" {
		t.Fatalf("expected excluded key to reach original chain, got %v found=%v err=%v", value, found, err)
	}
	value, _, _ = target.Get("open")
	if value != "layered" {
		t.Fatalf("expected non-excluded key mapped, got %v", value)
	}

	if containsKey(layer.OwnKeys(nil), "secret") {
		t.Fatal("expected excluded key absent from enumeration")
	}
	has, err := layer.Has(nil, "secret")
	if err != nil || has {
		t.Fatalf("expected layer to disclaim excluded key, got %v err=%v", has, err)
	}
}

func TestExcludedKeySkipsWildcard(t *testing.T) {
	target := NewObject(nil)
	Install(target, Resolver(func(*Object, Key, *Object) (any, bool, error) {
		return "wildcarded", true, nil
	}), WithExcludedKeys("secret"))

	_, found, err := target.Get("secret")
	if err != nil || found {
		t.Fatalf("expected excluded key to bypass wildcard entirely, got found=%v err=%v", found, err)
	}
	value, _, _ := target.Get("anything")
	if value != "wildcarded" {
		t.Fatalf("expected wildcard for other keys, got %v", value)
	}
}

func TestHasAndOwnKeysMatchClaimedSet(t *testing.T) {
	target := NewObject(nil)
	layer := Install(target, map[string]any{"a": 1, "b": 2}, WithExcludedKeys("b"))

	has, err := target.Has("a")
	if err != nil || !has {
		t.Fatalf("expected claimed key visible through Has, got %v err=%v", has, err)
	}
	has, _ = target.Has("b")
	if has {
		t.Fatal("expected excluded key invisible through Has")
	}
	if got := layer.OwnKeys(nil); !reflect.DeepEqual(got, []Key{"a"}) {
		t.Fatalf("expected enumeration to match claimed set, got %v", got)
	}
}

func TestChainingTwoLayers(t *testing.T) {
	target := NewObject(nil)
	Install(target, map[string]any{"channel": "email", "limit": 100})
	Install(target, map[string]any{"channel": "push"})

	value, _, err := target.Get("channel")
	if err != nil || value != "push" {
		t.Fatalf("expected most recent layer to win, got %v err=%v", value, err)
	}
	value, found, err := target.Get("limit")
	if err != nil || !found || value != 100 {
		t.Fatalf("expected earlier layer to answer unshadowed key, got %v found=%v err=%v", value, found, err)
	}
}

func TestIsPrototypeOfSurvivesInstall(t *testing.T) {
	base := ObjectOf(map[string]any{"type": "drink"})
	target := NewObject(base)
	layer := Install(target, map[string]any{"extra": true})

	if !base.IsPrototypeOf(target) {
		t.Fatal("expected original ancestry to survive installation")
	}
	if !layer.Proxy().IsPrototypeOf(target) {
		t.Fatal("expected the layer proxy in the chain")
	}
}

func TestParentCopyDisabledSharesPrototype(t *testing.T) {
	shared := ObjectOf(map[string]any{"limit": 100})
	a := NewObject(shared)
	b := NewObject(shared)

	layer := Install(a, map[string]any{"channel": "push"}, WithParentCopy(false))
	if layer.Prototype() != shared {
		t.Fatal("expected installation point to be the shared prototype")
	}
	if !shared.IsPrototypeOf(b) {
		t.Fatal("expected b to still delegate to shared prototype")
	}
	// b is untouched: the proxy was only installed on a.
	if _, found, _ := b.Get("channel"); found {
		t.Fatal("expected layer to be invisible from b")
	}
	value, _, _ := a.Get("channel")
	if value != "push" {
		t.Fatalf("expected layer visible from a, got %v", value)
	}
}

func TestInstallNilTargetIsInert(t *testing.T) {
	layer := Install(nil, map[string]any{"a": 1})
	if layer == nil {
		t.Fatal("expected inert handle, got nil")
	}
	if layer.Target() != nil || layer.Proxy() != nil {
		t.Fatal("expected no target wiring on nil install")
	}
	if got := layer.OwnKeys(nil); !reflect.DeepEqual(got, []Key{"a"}) {
		t.Fatalf("expected source still classified, got %v", got)
	}
}

func TestLayerAccessors(t *testing.T) {
	target := NewObject(nil)
	layer := Install(target, map[string]any{"a": 1},
		WithFallback(false), WithFunctionEvaluation(false), WithExcludedKeys("x"))

	if layer.ID() == "" {
		t.Fatal("expected non-empty layer ID")
	}
	if layer.Target() != target {
		t.Fatal("expected target accessor")
	}
	cfg := layer.Options()
	if cfg.Fallback || cfg.EvaluateFunctions || !cfg.CopyParent {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if !reflect.DeepEqual(cfg.ExcludedKeys, []Key{"x"}) {
		t.Fatalf("unexpected excluded keys: %v", cfg.ExcludedKeys)
	}
	source := layer.Source()
	if len(source) != 1 || source["a"] != 1 {
		t.Fatalf("unexpected source view: %#v", source)
	}
}

func TestResolutionLoggerObservesTraps(t *testing.T) {
	var events []ResolutionLogEvent
	target := NewObject(nil)
	Install(target, map[string]any{"a": 1},
		WithResolutionLogger(ResolutionLoggerFunc(func(event ResolutionLogEvent) {
			events = append(events, event)
		})))

	if _, _, err := target.Get("a"); err != nil {
		t.Fatalf("get: %v", err)
	}
	if _, _, err := target.Get("missing"); err != nil {
		t.Fatalf("get: %v", err)
	}

	if len(events) < 2 {
		t.Fatalf("expected logged resolutions, got %d", len(events))
	}
	if !events[0].Claimed || events[0].Key != "a" {
		t.Fatalf("expected claimed event for a, got %+v", events[0])
	}
}

func TestInstallEmitsActivityEvent(t *testing.T) {
	capture := &activity.CaptureHook{}
	target := NewObject(nil)
	layer := Install(target, map[string]any{"a": 1},
		WithActivityHooks(activity.Hooks{capture}))

	if len(capture.Events) != 1 {
		t.Fatalf("expected one installed event, got %d", len(capture.Events))
	}
	event := capture.Events[0]
	if event.Verb != "layer.installed" || event.ObjectID != layer.ID() {
		t.Fatalf("unexpected event: %+v", event)
	}
	keys, ok := event.Metadata["keys"].([]string)
	if !ok || len(keys) != 1 || keys[0] != "a" {
		t.Fatalf("expected keys metadata, got %v", event.Metadata["keys"])
	}
}

func TestRemoveRestoresOriginalChain(t *testing.T) {
	capture := &activity.CaptureHook{}
	base := ObjectOf(map[string]any{"channel": "email"})
	target := NewObject(base)
	layer := Install(target, map[string]any{"channel": "push"},
		WithActivityHooks(activity.Hooks{capture}))

	if !layer.Remove() {
		t.Fatal("expected removal to act on the nearest layer")
	}
	if target.Prototype() != base {
		t.Fatal("expected original prototype restored")
	}
	value, _, err := target.Get("channel")
	if err != nil || value != "email" {
		t.Fatalf("expected inherited value after removal, got %v err=%v", value, err)
	}
	if layer.Remove() {
		t.Fatal("expected second removal to be a no-op")
	}

	if len(capture.Events) != 2 {
		t.Fatalf("expected installed and removed events, got %d", len(capture.Events))
	}
	if capture.Events[1].Verb != "layer.removed" {
		t.Fatalf("unexpected event verb: %q", capture.Events[1].Verb)
	}
}

func TestRemoveDeclinesWhenShadowed(t *testing.T) {
	target := NewObject(nil)
	lower := Install(target, map[string]any{"a": 1})
	upper := Install(target, map[string]any{"a": 2})

	if lower.Remove() {
		t.Fatal("expected buried layer removal to decline")
	}
	if !upper.Remove() || !lower.Remove() {
		t.Fatal("expected top-down removal to succeed")
	}
	if _, found, _ := target.Get("a"); found {
		t.Fatal("expected key unresolved after removing both layers")
	}
}
