package intercept

import (
	"time"

	celgo "github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
)

// CELResolverOption configures a CEL-backed resolver.
type CELResolverOption func(*celResolver)

// CELWithProgramCache wires a ProgramCache into the CEL resolver.
func CELWithProgramCache(cache ProgramCache) CELResolverOption {
	return func(e *celResolver) {
		e.cache = cache
	}
}

// CELWithFunctionRegistry wires a FunctionRegistry into the CEL resolver.
func CELWithFunctionRegistry(registry *FunctionRegistry) CELResolverOption {
	return func(e *celResolver) {
		if registry == nil {
			return
		}
		e.registry = registry.Clone()
	}
}

// CELWithResolutionLogger attaches a logger invoked after every evaluation.
func CELWithResolutionLogger(logger ResolutionLogger) CELResolverOption {
	return func(e *celResolver) {
		e.logger = logger
	}
}

type celProgram struct {
	env     *celgo.Env
	program celgo.Program
}

// celResolver evaluates property expressions using cel-go.
type celResolver struct {
	expression string
	cache      ProgramCache
	registry   *FunctionRegistry
	logger     ResolutionLogger
}

// CELResolver builds a Resolver that evaluates expression with cel-go. The
// activation carries the receiver's own properties, "key", and "now"; a nil
// result is the declined sentinel. Failures surface as *ResolutionError.
func CELResolver(expression string, opts ...CELResolverOption) Resolver {
	e := &celResolver{expression: expression}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e.resolve
}

func (e *celResolver) resolve(proto *Object, key Key, receiver *Object) (value any, ok bool, err error) {
	defer logEngineResolution(e.logger, "cel", e.expression, key, time.Now(), &err)
	if e.expression == "" {
		return nil, false, wrapEngineError("cel", errEmptyExpression)
	}
	props := map[string]any{}
	mergeReceiverProps(props, receiver)
	program, err := e.loadOrCompile(key, props)
	if err != nil {
		return nil, false, err
	}
	out, _, err := program.program.Eval(e.activation(key, props))
	if err != nil {
		return nil, false, wrapResolutionError("cel", e.expression, keyString(key), err)
	}
	result := out.Value()
	return result, result != nil, nil
}

func (e *celResolver) loadOrCompile(key Key, props map[string]any) (*celProgram, error) {
	if e.cache != nil {
		if cached, ok := e.cache.Get(e.expression); ok {
			if program, ok := cached.(*celProgram); ok {
				return program, nil
			}
		}
	}

	env, err := e.buildEnv(props)
	if err != nil {
		return nil, wrapResolutionError("cel", e.expression, keyString(key), err)
	}
	ast, issues := env.Parse(e.expression)
	if issues != nil && issues.Err() != nil {
		return nil, wrapResolutionError("cel", e.expression, keyString(key), issues.Err())
	}
	checked, issues := env.Check(ast)
	if issues != nil && issues.Err() != nil {
		return nil, wrapResolutionError("cel", e.expression, keyString(key), issues.Err())
	}
	prg, err := env.Program(checked)
	if err != nil {
		return nil, wrapResolutionError("cel", e.expression, keyString(key), err)
	}

	bundle := &celProgram{
		env:     env,
		program: prg,
	}
	if e.cache != nil {
		e.cache.Set(e.expression, bundle)
	}
	return bundle, nil
}

func (e *celResolver) buildEnv(props map[string]any) (*celgo.Env, error) {
	opts := []celgo.EnvOption{
		celgo.Variable("key", celgo.StringType),
		celgo.Variable("now", celgo.TimestampType),
	}
	if e.registry != nil {
		binding := e.callBinding()
		opts = append(opts, celgo.Function("call", celgo.Overload(
			"call_dyn",
			[]*celgo.Type{celgo.StringType, celgo.DynType},
			celgo.DynType,
			celgo.FunctionBinding(func(values ...ref.Val) ref.Val {
				return binding(values)
			}),
		)))
	}
	for name := range props {
		if reservedEnvName(name) {
			continue
		}
		opts = append(opts, celgo.Variable(name, celgo.DynType))
	}
	return celgo.NewEnv(opts...)
}

func (e *celResolver) activation(key Key, props map[string]any) map[string]any {
	activation := map[string]any{
		"key": keyString(key),
		"now": time.Now(),
	}
	for name, value := range props {
		if reservedEnvName(name) {
			continue
		}
		activation[name] = value
	}
	if e.registry != nil {
		activation["call"] = func(name string, arguments ...any) (any, error) {
			return e.registry.Call(name, arguments...)
		}
	}
	return activation
}

// reservedEnvName guards the names the resolvers inject themselves.
func reservedEnvName(name string) bool {
	switch name {
	case "key", "now", "call":
		return true
	default:
		return false
	}
}

func (e *celResolver) callBinding() func([]ref.Val) ref.Val {
	return func(values []ref.Val) ref.Val {
		if e.registry == nil {
			return types.NewErr("intercept: function registry not configured")
		}
		if len(values) == 0 {
			return types.NewErr("intercept: call requires function name")
		}
		name, ok := values[0].Value().(string)
		if !ok {
			return types.NewErr("intercept: call name must be string")
		}
		args := make([]any, 0, len(values)-1)
		for _, val := range values[1:] {
			args = append(args, val.Value())
		}
		result, err := e.registry.Call(name, args...)
		if err != nil {
			return types.NewErr("%s", err.Error())
		}
		if result == nil {
			return types.NullValue
		}
		return types.DefaultTypeAdapter.NativeToValue(result)
	}
}
