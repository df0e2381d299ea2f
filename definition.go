package intercept

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/goliatone/go-intercept/internal/hydrate"
)

// Supported expression engines for definition-declared resolvers.
const (
	EngineExpr = "expr"
	EngineCEL  = "cel"
	EngineJS   = "js"
)

// Definition is a declarative, serialisable description of an interception
// layer: literal entries, expression-backed resolver entries, and the layer
// options. Definitions typically arrive as JSON from configuration stores.
type Definition struct {
	Name              string            `json:"name,omitempty"`
	Engine            string            `json:"engine,omitempty"`
	Entries           map[string]any    `json:"entries,omitempty"`
	Expressions       map[string]string `json:"expressions,omitempty"`
	Exclude           []string          `json:"exclude,omitempty"`
	Fallback          *bool             `json:"fallback,omitempty"`
	EvaluateFunctions *bool             `json:"evaluate_functions,omitempty"`
	CopyParent        *bool             `json:"copy_parent,omitempty"`
}

// DefinitionFromJSON decodes a JSON payload into a Definition.
func DefinitionFromJSON(payload []byte) (Definition, error) {
	var raw map[string]any
	if err := json.Unmarshal(payload, &raw); err != nil {
		return Definition{}, fmt.Errorf("intercept: unmarshal definition: %w", err)
	}
	name, _ := raw["name"].(string)
	decoder := hydrate.NewDecoder[Definition]()
	return decoder.Decode(hydrate.Context{Name: name}, raw)
}

// Install materialises the definition onto target: literal entries install
// as-is, expression entries compile through the configured engine, and the
// definition's option fields translate to install options. Explicit opts win
// over the definition's own settings.
func (d Definition) Install(target *Object, opts ...Option) (*Layer, error) {
	installOpts := d.options()
	installOpts = append(installOpts, opts...)
	if d.Name != "" {
		installOpts = append(installOpts, withDefinitionName(d.Name))
	}
	cfg := applyLayerOptions(installOpts)

	resolve, err := d.engineFactory(cfg)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(d.Entries)+len(d.Expressions))
	for _, key := range sortedStringKeys(d.Entries) {
		entries = append(entries, Entry{Key: key, Value: d.Entries[key]})
	}
	for _, key := range sortedStringKeys(d.Expressions) {
		expression := d.Expressions[key]
		resolver := resolve(expression)
		if resolver == nil {
			return nil, wrapEngineError(d.engine(), fmt.Errorf("engine unavailable for key %q", key))
		}
		entries = append(entries, Entry{Key: key, Value: resolver})
	}

	return Install(target, entries, installOpts...), nil
}

func (d Definition) engine() string {
	if d.Engine == "" {
		return EngineExpr
	}
	return d.Engine
}

// engineFactory builds the resolver constructor for the definition's engine,
// threading the layer's program cache, function registry, and logger into
// every resolver it produces.
func (d Definition) engineFactory(cfg layerConfig) (func(string) Resolver, error) {
	switch d.engine() {
	case EngineExpr:
		var engineOpts []ExprResolverOption
		if cfg.cache != nil {
			engineOpts = append(engineOpts, ExprWithProgramCache(cfg.cache))
		}
		if cfg.registry != nil {
			engineOpts = append(engineOpts, ExprWithFunctionRegistry(cfg.registry))
		}
		if cfg.logger != nil {
			engineOpts = append(engineOpts, ExprWithResolutionLogger(cfg.logger))
		}
		return func(expression string) Resolver {
			return ExprResolver(expression, engineOpts...)
		}, nil
	case EngineCEL:
		var engineOpts []CELResolverOption
		if cfg.cache != nil {
			engineOpts = append(engineOpts, CELWithProgramCache(cfg.cache))
		}
		if cfg.registry != nil {
			engineOpts = append(engineOpts, CELWithFunctionRegistry(cfg.registry))
		}
		if cfg.logger != nil {
			engineOpts = append(engineOpts, CELWithResolutionLogger(cfg.logger))
		}
		return func(expression string) Resolver {
			return CELResolver(expression, engineOpts...)
		}, nil
	case EngineJS:
		if !jsResolverAvailable() {
			return nil, wrapEngineError(EngineJS, fmt.Errorf("engine not compiled in; build with the js_eval tag"))
		}
		var engineOpts []JSResolverOption
		if cfg.cache != nil {
			engineOpts = append(engineOpts, JSWithProgramCache(cfg.cache))
		}
		if cfg.registry != nil {
			engineOpts = append(engineOpts, JSWithFunctionRegistry(cfg.registry))
		}
		if cfg.logger != nil {
			engineOpts = append(engineOpts, JSWithResolutionLogger(cfg.logger))
		}
		return func(expression string) Resolver {
			return JSResolver(expression, engineOpts...)
		}, nil
	default:
		return nil, fmt.Errorf("intercept: unknown expression engine %q", d.Engine)
	}
}

func (d Definition) options() []Option {
	var options []Option
	if len(d.Exclude) > 0 {
		keys := make([]Key, 0, len(d.Exclude))
		for _, key := range d.Exclude {
			keys = append(keys, key)
		}
		options = append(options, WithExcludedKeys(keys...))
	}
	if d.Fallback != nil {
		options = append(options, WithFallback(*d.Fallback))
	}
	if d.EvaluateFunctions != nil {
		options = append(options, WithFunctionEvaluation(*d.EvaluateFunctions))
	}
	if d.CopyParent != nil {
		options = append(options, WithParentCopy(*d.CopyParent))
	}
	return options
}

func sortedStringKeys[V any](entries map[string]V) []string {
	keys := make([]string, 0, len(entries))
	for key := range entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
