package intercept

// ProgramCache stores compiled expression programs keyed by expression
// strings. Expression-backed resolvers consult it before compiling.
type ProgramCache interface {
	Get(key string) (any, bool)
	Set(key string, value any)
}
