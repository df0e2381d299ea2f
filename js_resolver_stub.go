//go:build !js_eval

package intercept

// JSResolver is unavailable without the js_eval build tag.
func JSResolver(expression string, opts ...JSResolverOption) Resolver {
	_ = applyJSResolverOptions(opts)
	return nil
}

func jsResolverAvailable() bool {
	return false
}
