package intercept

import "reflect"

// callValue invokes a mapped callable at access time. Funcs may accept any
// prefix of (proto, key, receiver) and return up to (value, ok, error) in
// that order; a bare value return and a value/error pair are also accepted.
// called is false when the value is not a func or its shape cannot be
// satisfied, in which case the caller treats it as a literal.
func callValue(value any, proto *Object, key Key, receiver *Object) (result any, ok bool, err error, called bool) {
	if r, isResolver := value.(Resolver); isResolver {
		result, ok, err = r(proto, key, receiver)
		return result, ok, err, true
	}

	fn := reflect.ValueOf(value)
	if !fn.IsValid() || fn.Kind() != reflect.Func || fn.IsNil() {
		return nil, false, nil, false
	}
	t := fn.Type()
	if t.IsVariadic() || t.NumIn() > 3 || t.NumOut() > 3 {
		return nil, false, nil, false
	}

	candidates := []reflect.Value{
		reflect.ValueOf(proto),
		reflect.ValueOf(&key).Elem(),
		reflect.ValueOf(receiver),
	}
	args := make([]reflect.Value, t.NumIn())
	for i := 0; i < t.NumIn(); i++ {
		param := t.In(i)
		candidate := candidates[i]
		switch {
		case candidate.IsValid() && candidate.Type().AssignableTo(param):
			args[i] = candidate
		case candidate.IsValid() && candidate.Kind() == reflect.Interface &&
			!candidate.IsNil() && candidate.Elem().Type().AssignableTo(param):
			args[i] = candidate.Elem()
		case param.Kind() == reflect.Interface:
			args[i] = reflect.Zero(param)
		default:
			return nil, false, nil, false
		}
	}

	outs := fn.Call(args)
	return interpretResults(outs)
}

var errType = reflect.TypeOf((*error)(nil)).Elem()

// interpretResults maps a call's return values onto resolver semantics. A
// trailing error return propagates; a trailing bool is the "has answer" flag;
// a zero-return func resolves to nil.
func interpretResults(outs []reflect.Value) (any, bool, error, bool) {
	switch len(outs) {
	case 0:
		return nil, true, nil, true
	case 1:
		if outs[0].Type() == errType {
			return nil, true, asError(outs[0]), true
		}
		return outs[0].Interface(), true, nil, true
	case 2:
		if outs[1].Type() == errType {
			return outs[0].Interface(), true, asError(outs[1]), true
		}
		if outs[1].Kind() == reflect.Bool {
			return outs[0].Interface(), outs[1].Bool(), nil, true
		}
		return nil, false, nil, false
	default:
		if outs[1].Kind() != reflect.Bool || outs[2].Type() != errType {
			return nil, false, nil, false
		}
		return outs[0].Interface(), outs[1].Bool(), asError(outs[2]), true
	}
}

func asError(v reflect.Value) error {
	if v.IsNil() {
		return nil
	}
	return v.Interface().(error)
}
