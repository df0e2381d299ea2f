package intercept

import "github.com/goliatone/go-intercept/pkg/activity"

// Config is the resolved, read-only view of a layer's options.
type Config struct {
	Fallback          bool
	EvaluateFunctions bool
	CopyParent        bool
	ExcludedKeys      []Key
}

// Option configures an Install call.
type Option func(*layerConfig)

type layerConfig struct {
	fallback   bool
	evaluate   bool
	copyParent bool
	excluded   map[Key]struct{}
	order      []Key
	logger     ResolutionLogger
	cache      ProgramCache
	registry   *FunctionRegistry
	hooks      activity.Hooks
	definition string
}

func applyLayerOptions(opts []Option) layerConfig {
	cfg := layerConfig{
		fallback:   true,
		evaluate:   true,
		copyParent: true,
		excluded:   map[Key]struct{}{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// WithFallback toggles deferral to ordinary inherited lookup when neither the
// source nor the wildcard answers. Enabled by default.
func WithFallback(enabled bool) Option {
	return func(cfg *layerConfig) {
		cfg.fallback = enabled
	}
}

// WithFunctionEvaluation toggles invoking mapped callables at access time.
// When disabled, reading a key mapped to a func returns the func itself.
// Enabled by default.
func WithFunctionEvaluation(enabled bool) Option {
	return func(cfg *layerConfig) {
		cfg.evaluate = enabled
	}
}

// WithParentCopy toggles inserting a fresh object between the target and its
// current prototype. When disabled the existing prototype object is reused as
// the installation point, which shares mutation across every target that
// delegates to it. Enabled by default.
func WithParentCopy(enabled bool) Option {
	return func(cfg *layerConfig) {
		cfg.copyParent = enabled
	}
}

// WithExcludedKeys lists keys the layer must never claim. An excluded key
// falls through to the original chain even when the source maps it.
func WithExcludedKeys(keys ...Key) Option {
	return func(cfg *layerConfig) {
		for _, key := range keys {
			if key == nil || !comparableKey(key) {
				continue
			}
			if _, exists := cfg.excluded[key]; exists {
				continue
			}
			cfg.excluded[key] = struct{}{}
			cfg.order = append(cfg.order, key)
		}
	}
}

// WithResolutionLogger attaches a logger invoked for every get-trap
// resolution on the layer.
func WithResolutionLogger(logger ResolutionLogger) Option {
	return func(cfg *layerConfig) {
		if logger == nil {
			cfg.logger = noopResolutionLogger{}
			return
		}
		cfg.logger = logger
	}
}

// WithProgramCache supplies a compiled-program cache to the expression
// resolvers built for the layer. Resolvers installed as plain values are
// unaffected; Definition.Install threads the cache into every resolver it
// constructs.
func WithProgramCache(cache ProgramCache) Option {
	return func(cfg *layerConfig) {
		cfg.cache = cache
	}
}

// WithFunctionRegistry supplies helper functions to the expression resolvers
// built for the layer. The registry is cloned at option construction.
func WithFunctionRegistry(registry *FunctionRegistry) Option {
	cloned := registry.Clone()
	return func(cfg *layerConfig) {
		if cloned == nil {
			return
		}
		cfg.registry = cloned
	}
}

// withDefinitionName records the declarative definition a layer was built
// from, carried into its lifecycle activity events.
func withDefinitionName(name string) Option {
	return func(cfg *layerConfig) {
		cfg.definition = name
	}
}

// WithActivityHooks attaches activity hooks notified when the layer is
// installed. Hooks are cloned and nil entries dropped.
func WithActivityHooks(hooks activity.Hooks) Option {
	normalized := cloneActivityHooks(hooks)
	return func(cfg *layerConfig) {
		cfg.hooks = normalized
	}
}

func cloneActivityHooks(hooks activity.Hooks) activity.Hooks {
	if len(hooks) == 0 {
		return nil
	}
	normalized := make([]activity.ActivityHook, 0, len(hooks))
	for _, hook := range hooks {
		if hook == nil {
			continue
		}
		normalized = append(normalized, hook)
	}
	if len(normalized) == 0 {
		return nil
	}
	return activity.Hooks(normalized)
}

func (cfg *layerConfig) resolutionLogger() ResolutionLogger {
	if cfg.logger != nil {
		return cfg.logger
	}
	return noopResolutionLogger{}
}

func (cfg *layerConfig) config() Config {
	return Config{
		Fallback:          cfg.fallback,
		EvaluateFunctions: cfg.evaluate,
		CopyParent:        cfg.copyParent,
		ExcludedKeys:      append([]Key(nil), cfg.order...),
	}
}
