//go:build js_eval

package intercept

import (
	"errors"
	"testing"
)

func TestJSResolverEnvironment(t *testing.T) {
	receiver := ObjectOf(map[string]any{"base": 10})
	resolver := JSResolver(`key + "-suffix"`)

	value, ok, err := resolver(nil, "region", receiver)
	if err != nil || !ok {
		t.Fatalf("resolve: ok=%v err=%v", ok, err)
	}
	if value != "region-suffix" {
		t.Fatalf("expected key binding, got %v", value)
	}

	resolver = JSResolver(`base * 2`)
	value, ok, err = resolver(nil, "double", receiver)
	if err != nil || !ok {
		t.Fatalf("resolve: ok=%v err=%v", ok, err)
	}
	if value != int64(20) {
		t.Fatalf("expected receiver props bound, got %v (%T)", value, value)
	}
}

func TestJSResolverNullDeclines(t *testing.T) {
	resolver := JSResolver(`null`)
	value, ok, err := resolver(nil, "anything", nil)
	if err != nil || ok || value != nil {
		t.Fatalf("expected null to decline, got %v ok=%v err=%v", value, ok, err)
	}
}

func TestJSResolverEmptyExpression(t *testing.T) {
	resolver := JSResolver("")
	_, _, err := resolver(nil, "k", nil)
	if err == nil || !errors.Is(err, errEmptyExpression) {
		t.Fatalf("expected empty expression error, got %v", err)
	}
}

func TestJSResolverFailureWrapsResolutionError(t *testing.T) {
	resolver := JSResolver(`missingFn()`)
	_, _, err := resolver(nil, "broken", nil)

	var resErr *ResolutionError
	if !errors.As(err, &resErr) {
		t.Fatalf("expected ResolutionError, got %T: %v", err, err)
	}
	if resErr.Engine != "js" || resErr.Key != "broken" {
		t.Fatalf("unexpected error metadata: %+v", resErr)
	}
}

func TestJSResolverProgramCache(t *testing.T) {
	cache := newMapProgramCache()
	resolver := JSResolver(`key`, JSWithProgramCache(cache))

	for i := 0; i < 3; i++ {
		if _, _, err := resolver(nil, "cached", nil); err != nil {
			t.Fatalf("resolve %d: %v", i, err)
		}
	}
	if cache.misses != 1 || cache.hits != 2 {
		t.Fatalf("expected one compile and two cache hits, got misses=%d hits=%d", cache.misses, cache.hits)
	}
}

func TestJSResolverFunctionRegistry(t *testing.T) {
	registry := NewFunctionRegistry()
	if err := registry.Register("tag", func(args ...any) (any, error) {
		return "tag:" + args[0].(string), nil
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	resolver := JSResolver(`call("tag", key)`, JSWithFunctionRegistry(registry))
	value, ok, err := resolver(nil, "env", nil)
	if err != nil || !ok || value != "tag:env" {
		t.Fatalf("expected call helper result, got %v ok=%v err=%v", value, ok, err)
	}
}

func TestJSResolverLogsResolutions(t *testing.T) {
	var events []ResolutionLogEvent
	logger := ResolutionLoggerFunc(func(event ResolutionLogEvent) {
		events = append(events, event)
	})

	resolver := JSResolver(`key + "!"`, JSWithResolutionLogger(logger))
	value, ok, err := resolver(nil, "ping", nil)
	if err != nil || !ok || value != "ping!" {
		t.Fatalf("resolve: %v ok=%v err=%v", value, ok, err)
	}
	if len(events) != 1 || events[0].Engine != "js" || events[0].Key != "ping" {
		t.Fatalf("unexpected log events: %+v", events)
	}
}
