package intercept

import (
	"strings"
	"testing"

	"github.com/goliatone/go-intercept/pkg/activity"
)

func TestDefinitionFromJSON(t *testing.T) {
	payload := []byte(`{
		"name": "service-defaults",
		"engine": "expr",
		"entries": {"type": "drink"},
		"expressions": {"region": "key + \"-us-east\""},
		"exclude": ["secret"],
		"fallback": false
	}`)

	def, err := DefinitionFromJSON(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if def.Name != "service-defaults" || def.Engine != EngineExpr {
		t.Fatalf("unexpected header: %+v", def)
	}
	if def.Entries["type"] != "drink" {
		t.Fatalf("unexpected entries: %#v", def.Entries)
	}
	if def.Expressions["region"] != `key + "-us-east"` {
		t.Fatalf("unexpected expressions: %#v", def.Expressions)
	}
	if len(def.Exclude) != 1 || def.Exclude[0] != "secret" {
		t.Fatalf("unexpected exclude: %#v", def.Exclude)
	}
	if def.Fallback == nil || *def.Fallback {
		t.Fatalf("unexpected fallback: %v", def.Fallback)
	}

	if _, err := DefinitionFromJSON([]byte("{")); err == nil {
		t.Fatal("expected malformed payload to error")
	}
}

func TestDefinitionInstallLiteralsAndExpressions(t *testing.T) {
	target := NewObject(nil)
	def := Definition{
		Entries: map[string]any{"type": "drink"},
		Expressions: map[string]string{
			"greeting": `"hello, " + key`,
		},
	}

	layer, err := def.Install(target)
	if err != nil {
		t.Fatalf("install: %v", err)
	}
	if layer.SourceKind() != "pairs" {
		t.Fatalf("expected pairs source, got %q", layer.SourceKind())
	}

	value, _, err := target.Get("type")
	if err != nil || value != "drink" {
		t.Fatalf("expected literal entry, got %v err=%v", value, err)
	}
	value, _, err = target.Get("greeting")
	if err != nil || value != "hello, greeting" {
		t.Fatalf("expected expression entry, got %v err=%v", value, err)
	}
}

func TestDefinitionInstallTranslatesOptions(t *testing.T) {
	f := false
	base := ObjectOf(map[string]any{"secret": "original"})
	target := NewObject(base)
	def := Definition{
		Entries:           map[string]any{"secret": "shadowed"},
		Exclude:           []string{"secret"},
		EvaluateFunctions: &f,
	}

	layer, err := def.Install(target)
	if err != nil {
		t.Fatalf("install: %v", err)
	}

	value, _, err := target.Get("secret")
	if err != nil || value != "original" {
		t.Fatalf("expected exclusion honored, got %v err=%v", value, err)
	}
	cfg := layer.Options()
	if cfg.EvaluateFunctions {
		t.Fatal("expected function evaluation disabled")
	}
	if len(cfg.ExcludedKeys) != 1 || cfg.ExcludedKeys[0] != Key("secret") {
		t.Fatalf("unexpected excluded keys: %v", cfg.ExcludedKeys)
	}
}

func TestDefinitionInstallExplicitOptionsWin(t *testing.T) {
	tr := true
	def := Definition{
		Entries:  map[string]any{"a": 1},
		Fallback: &tr,
	}

	layer, err := def.Install(NewObject(nil), WithFallback(false))
	if err != nil {
		t.Fatalf("install: %v", err)
	}
	if layer.Options().Fallback {
		t.Fatal("expected explicit option to override definition field")
	}
}

func TestDefinitionInstallCELEngine(t *testing.T) {
	target := NewObject(nil)
	def := Definition{
		Engine: EngineCEL,
		Expressions: map[string]string{
			"label": `"env-" + key`,
		},
	}

	if _, err := def.Install(target); err != nil {
		t.Fatalf("install: %v", err)
	}
	value, _, err := target.Get("label")
	if err != nil || value != "env-label" {
		t.Fatalf("expected CEL expression entry, got %v err=%v", value, err)
	}
}

func TestDefinitionInstallUnknownEngine(t *testing.T) {
	def := Definition{Engine: "lua", Expressions: map[string]string{"k": "1"}}
	_, err := def.Install(NewObject(nil))
	if err == nil || !strings.Contains(err.Error(), "unknown expression engine") {
		t.Fatalf("expected unknown engine error, got %v", err)
	}
}

func TestDefinitionInstallThreadsCacheAndRegistry(t *testing.T) {
	cache := newMapProgramCache()
	registry := NewFunctionRegistry()
	if err := registry.Register("tag", func(args ...any) (any, error) {
		return "v-" + args[0].(string), nil
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	target := NewObject(nil)
	def := Definition{Expressions: map[string]string{"label": `call("tag", key)`}}
	if _, err := def.Install(target, WithProgramCache(cache), WithFunctionRegistry(registry)); err != nil {
		t.Fatalf("install: %v", err)
	}

	for i := 0; i < 3; i++ {
		value, _, err := target.Get("label")
		if err != nil || value != "v-label" {
			t.Fatalf("expected registry helper result, got %v err=%v", value, err)
		}
	}
	if cache.misses != 1 {
		t.Fatalf("expected a single compile miss, got %d", cache.misses)
	}
	if cache.hits < 2 {
		t.Fatalf("expected compiled program reused, got %d hits", cache.hits)
	}
}

func TestDefinitionInstallThreadsLoggerAndEventName(t *testing.T) {
	var events []ResolutionLogEvent
	logger := ResolutionLoggerFunc(func(event ResolutionLogEvent) {
		events = append(events, event)
	})
	capture := &activity.CaptureHook{}

	target := NewObject(nil)
	def := Definition{
		Name:        "service-defaults",
		Expressions: map[string]string{"region": `key + "-us-east"`},
	}
	if _, err := def.Install(target,
		WithResolutionLogger(logger),
		WithActivityHooks(activity.Hooks{capture})); err != nil {
		t.Fatalf("install: %v", err)
	}
	if len(capture.Events) != 1 || capture.Events[0].Definition != "service-defaults" {
		t.Fatalf("expected definition name on install event, got %+v", capture.Events)
	}

	value, _, err := target.Get("region")
	if err != nil || value != "region-us-east" {
		t.Fatalf("expected expression result, got %v err=%v", value, err)
	}
	var engineEvent *ResolutionLogEvent
	for i := range events {
		if events[i].Engine == "expr" {
			engineEvent = &events[i]
		}
	}
	if engineEvent == nil {
		t.Fatal("expected an engine resolution to be logged")
	}
	if engineEvent.Expr != `key + "-us-east"` || engineEvent.Key != "region" || engineEvent.Err != nil {
		t.Fatalf("unexpected engine log event: %+v", *engineEvent)
	}
}
