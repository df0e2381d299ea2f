package intercept

import "time"

// ResolutionLogEvent describes a single resolution attempt. Layer traps fill
// Layer and Claimed; expression engines fill Engine and Expr. Key, Duration,
// and Err are reported by both.
type ResolutionLogEvent struct {
	Layer    string
	Engine   string
	Expr     string
	Key      string
	Claimed  bool
	Duration time.Duration
	Err      error
}

// ResolutionLogger records layer resolutions.
type ResolutionLogger interface {
	LogResolution(ResolutionLogEvent)
}

// ResolutionLoggerFunc adapts a function to ResolutionLogger.
type ResolutionLoggerFunc func(ResolutionLogEvent)

// LogResolution implements ResolutionLogger.
func (f ResolutionLoggerFunc) LogResolution(event ResolutionLogEvent) {
	if f != nil {
		f(event)
	}
}

type noopResolutionLogger struct{}

func (noopResolutionLogger) LogResolution(ResolutionLogEvent) {}

// logEngineResolution reports one expression-engine evaluation. Deferred from
// the engine resolve paths with the call-time clock and the named error.
func logEngineResolution(logger ResolutionLogger, engine, expr string, key Key, start time.Time, err *error) {
	if logger == nil {
		return
	}
	logger.LogResolution(ResolutionLogEvent{
		Engine:   engine,
		Expr:     expr,
		Key:      keyString(key),
		Duration: time.Since(start),
		Err:      *err,
	})
}
