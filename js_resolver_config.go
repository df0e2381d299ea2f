package intercept

type jsResolverConfig struct {
	cache    ProgramCache
	registry *FunctionRegistry
	logger   ResolutionLogger
}

// JSResolverOption configures the JS resolver.
type JSResolverOption func(*jsResolverConfig)

// JSWithProgramCache applies a ProgramCache to the JS resolver.
func JSWithProgramCache(cache ProgramCache) JSResolverOption {
	return func(cfg *jsResolverConfig) {
		cfg.cache = cache
	}
}

// JSWithFunctionRegistry applies a FunctionRegistry to the JS resolver.
func JSWithFunctionRegistry(registry *FunctionRegistry) JSResolverOption {
	return func(cfg *jsResolverConfig) {
		if registry == nil {
			return
		}
		cfg.registry = registry.Clone()
	}
}

// JSWithResolutionLogger attaches a logger invoked after every evaluation.
func JSWithResolutionLogger(logger ResolutionLogger) JSResolverOption {
	return func(cfg *jsResolverConfig) {
		cfg.logger = logger
	}
}

func applyJSResolverOptions(opts []JSResolverOption) jsResolverConfig {
	cfg := jsResolverConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}
