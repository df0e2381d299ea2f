//go:build js_eval

package intercept

import (
	"fmt"
	"time"

	"github.com/dop251/goja"
)

// jsResolver evaluates property expressions using goja.
type jsResolver struct {
	expression string
	cache      ProgramCache
	registry   *FunctionRegistry
	logger     ResolutionLogger
}

// JSResolver builds a Resolver backed by goja. Available behind the js_eval
// build tag; the stub variant returns nil otherwise.
func JSResolver(expression string, opts ...JSResolverOption) Resolver {
	cfg := applyJSResolverOptions(opts)
	e := &jsResolver{
		expression: expression,
		cache:      cfg.cache,
		registry:   cfg.registry,
		logger:     cfg.logger,
	}
	return e.resolve
}

func (e *jsResolver) resolve(proto *Object, key Key, receiver *Object) (value any, ok bool, err error) {
	defer logEngineResolution(e.logger, "js", e.expression, key, time.Now(), &err)
	if e.expression == "" {
		return nil, false, wrapEngineError("js", errEmptyExpression)
	}
	var program *goja.Program
	if e.cache != nil {
		loaded, err := e.loadOrCompile(key)
		if err != nil {
			return nil, false, err
		}
		program = loaded
	}
	result, err := e.run(key, receiver, program)
	if err != nil {
		return nil, false, wrapResolutionError("js", e.expression, keyString(key), err)
	}
	return result, result != nil, nil
}

func (e *jsResolver) loadOrCompile(key Key) (*goja.Program, error) {
	if e.cache != nil {
		if cached, ok := e.cache.Get(e.expression); ok {
			if program, ok := cached.(*goja.Program); ok {
				return program, nil
			}
		}
	}
	program, err := goja.Compile("", e.wrapExpression(), false)
	if err != nil {
		return nil, wrapResolutionError("js", e.expression, keyString(key), err)
	}
	if e.cache != nil {
		e.cache.Set(e.expression, program)
	}
	return program, nil
}

func (e *jsResolver) run(key Key, receiver *Object, program *goja.Program) (any, error) {
	vm := goja.New()
	e.injectContext(vm, key, receiver)
	if program != nil {
		value, err := vm.RunProgram(program)
		if err != nil {
			return nil, err
		}
		return value.Export(), nil
	}
	value, err := vm.RunString(e.wrapExpression())
	if err != nil {
		return nil, err
	}
	return value.Export(), nil
}

func (e *jsResolver) injectContext(vm *goja.Runtime, key Key, receiver *Object) {
	vm.Set("key", keyString(key))
	vm.Set("now", time.Now())
	props := map[string]any{}
	mergeReceiverProps(props, receiver)
	for name, value := range props {
		if reservedEnvName(name) {
			continue
		}
		vm.Set(name, value)
	}
	if e.registry != nil {
		vm.Set("call", func(name string, arguments ...any) (any, error) {
			return e.registry.Call(name, arguments...)
		})
	}
}

func (e *jsResolver) wrapExpression() string {
	return fmt.Sprintf("(function(){ return (%s); })()", e.expression)
}

func jsResolverAvailable() bool {
	return true
}
