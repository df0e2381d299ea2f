package intercept

import (
	"time"

	exprlang "github.com/expr-lang/expr"
	exprvm "github.com/expr-lang/expr/vm"
)

// ExprResolverOption configures an expr-backed resolver.
type ExprResolverOption func(*exprResolver)

// ExprWithProgramCache wires a ProgramCache into the expr resolver.
func ExprWithProgramCache(cache ProgramCache) ExprResolverOption {
	return func(e *exprResolver) {
		e.cache = cache
	}
}

// ExprWithFunctionRegistry wires a FunctionRegistry into the expr resolver.
func ExprWithFunctionRegistry(registry *FunctionRegistry) ExprResolverOption {
	return func(e *exprResolver) {
		if registry == nil {
			return
		}
		e.registry = registry.Clone()
	}
}

// ExprWithResolutionLogger attaches a logger invoked after every evaluation.
func ExprWithResolutionLogger(logger ResolutionLogger) ExprResolverOption {
	return func(e *exprResolver) {
		e.logger = logger
	}
}

// exprResolver evaluates property expressions using github.com/expr-lang/expr.
type exprResolver struct {
	expression string
	cache      ProgramCache
	registry   *FunctionRegistry
	logger     ResolutionLogger
}

// ExprResolver builds a Resolver that evaluates expression at every access.
// The environment exposes the receiver's own properties (string keys), the
// accessed key as "key", "now", and any registered helper functions. A nil
// result is the declined sentinel, so an expr wildcard composes with
// fallback. Compile and evaluation failures surface as *ResolutionError.
func ExprResolver(expression string, opts ...ExprResolverOption) Resolver {
	e := &exprResolver{expression: expression}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e.resolve
}

func (e *exprResolver) resolve(proto *Object, key Key, receiver *Object) (value any, ok bool, err error) {
	defer logEngineResolution(e.logger, "expr", e.expression, key, time.Now(), &err)
	if e.expression == "" {
		return nil, false, wrapEngineError("expr", errEmptyExpression)
	}
	env := e.environment(key, receiver)
	if e.cache == nil {
		result, err := exprlang.Eval(e.expression, env)
		if err != nil {
			return nil, false, wrapResolutionError("expr", e.expression, keyString(key), err)
		}
		return result, result != nil, nil
	}
	program, err := e.loadOrCompile(key)
	if err != nil {
		return nil, false, err
	}
	result, err := exprlang.Run(program, env)
	if err != nil {
		return nil, false, wrapResolutionError("expr", e.expression, keyString(key), err)
	}
	return result, result != nil, nil
}

func (e *exprResolver) loadOrCompile(key Key) (*exprvm.Program, error) {
	if e.cache != nil {
		if cached, ok := e.cache.Get(e.expression); ok {
			if program, ok := cached.(*exprvm.Program); ok {
				return program, nil
			}
		}
	}
	options := []exprlang.Option{
		exprlang.Env(map[string]any{}),
		exprlang.AllowUndefinedVariables(),
	}
	for _, name := range e.registryNames() {
		fn := e.registryFunction(name)
		options = append(options, exprlang.Function(name, fn))
	}
	program, err := exprlang.Compile(e.expression, options...)
	if err != nil {
		return nil, wrapResolutionError("expr", e.expression, keyString(key), err)
	}
	if e.cache != nil {
		e.cache.Set(e.expression, program)
	}
	return program, nil
}

func (e *exprResolver) environment(key Key, receiver *Object) map[string]any {
	env := map[string]any{}
	mergeReceiverProps(env, receiver)
	// Injected names win over receiver properties.
	env["key"] = keyString(key)
	env["now"] = time.Now()
	if e.registry != nil {
		env["call"] = func(name string, arguments ...any) (any, error) {
			return e.registry.Call(name, arguments...)
		}
		for _, name := range e.registry.Names() {
			fn := name
			env[fn] = func(arguments ...any) (any, error) {
				return e.registry.Call(fn, arguments...)
			}
		}
	}
	return env
}

func (e *exprResolver) registryNames() []string {
	if e == nil || e.registry == nil {
		return nil
	}
	return e.registry.Names()
}

func (e *exprResolver) registryFunction(name string) func(...any) (any, error) {
	if e == nil || e.registry == nil {
		return nil
	}
	return func(arguments ...any) (any, error) {
		return e.registry.Call(name, arguments...)
	}
}

// mergeReceiverProps copies the receiver's own string-keyed properties into
// an expression environment. Own properties only: reading inherited keys here
// would re-enter the traps that triggered the evaluation.
func mergeReceiverProps(env map[string]any, receiver *Object) {
	if receiver == nil {
		return
	}
	for _, key := range receiver.OwnKeys() {
		name, ok := key.(string)
		if !ok {
			continue
		}
		if value, found := receiver.GetOwn(key); found {
			env[name] = value
		}
	}
}
