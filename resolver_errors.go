package intercept

import (
	"errors"
	"fmt"
	"strings"
)

// errEmptyExpression guards the expression-backed resolver constructors.
var errEmptyExpression = errors.New("expression must not be empty")

// ResolutionError captures resolver-engine metadata alongside the originating
// error. Failures raised by user-supplied resolvers are never wrapped; only
// the expression engines shipped with this package produce ResolutionErrors.
type ResolutionError struct {
	Engine string
	Expr   string
	Key    string
	Err    error
}

func (e *ResolutionError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("intercept: %s resolver %s key=%s: %v", e.Engine, describeExpression(e.Expr), e.Key, e.Err)
}

func (e *ResolutionError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func describeExpression(expr string) string {
	if expr == "" {
		return "expr=<empty>"
	}
	return fmt.Sprintf("expr=%q", expr)
}

func wrapEngineError(engine string, err error) error {
	if err == nil {
		return nil
	}

	var resErr *ResolutionError
	if errors.As(err, &resErr) {
		return err
	}

	if strings.HasPrefix(err.Error(), "intercept:") {
		return err
	}
	return fmt.Errorf("intercept: %s resolver: %w", engine, err)
}

func wrapResolutionError(engine, expr, key string, err error) error {
	if err == nil {
		return nil
	}

	var resErr *ResolutionError
	if errors.As(err, &resErr) {
		if resErr.Engine == "" {
			resErr.Engine = engine
		}
		if resErr.Expr == "" {
			resErr.Expr = expr
		}
		if resErr.Key == "" {
			resErr.Key = key
		}
		return resErr
	}

	return &ResolutionError{
		Engine: engine,
		Expr:   expr,
		Key:    key,
		Err:    err,
	}
}
