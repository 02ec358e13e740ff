package regress

import "fmt"

// Mode selects the execution strategy for ComputeThroughSQL.
type Mode string

const (
	// ModeAuto tries the pushdown path and falls back to fitting
	// locally on SQL-aggregated children.
	ModeAuto Mode = ""
	// ModeSQL demands a pure-SQL computation, which no model supports.
	ModeSQL Mode = "sql"
	// ModeMixed is the explicit pushdown-then-local-fallback strategy.
	ModeMixed Mode = "mixed"
	// ModeMagic runs the full pushdown path and requires the whole
	// metric subtree to be SQL-computable.
	ModeMagic Mode = "magic"
)

func validMode(m Mode) bool {
	switch m {
	case ModeAuto, ModeSQL, ModeMixed, ModeMagic:
		return true
	}
	return false
}

// ConfigError reports a model configuration that can never be computed.
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string { return "regress: " + e.Msg }

func configErrorf(format string, args ...any) *ConfigError {
	return &ConfigError{Msg: fmt.Sprintf(format, args...)}
}

// ModeFallbackError signals that the attempted mode failed in a way
// another mode may handle. Mixed mode consumes it to trigger its local
// fallback; in magic mode it surfaces to the caller with the suggestion.
type ModeFallbackError struct {
	Suggest Mode
	Cause   error
}

func (e *ModeFallbackError) Error() string {
	return fmt.Sprintf("regress: computation failed, try mode %q: %v", e.Suggest, e.Cause)
}

func (e *ModeFallbackError) Unwrap() error { return e.Cause }
