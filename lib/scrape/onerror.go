package scrape

import (
	"context"
	"fmt"
	"log/slog"

	"pagewatch/lib/render"
)

// LogLevel controls how a failed extraction is logged.
type LogLevel string

const (
	LogNone    LogLevel = "none"
	LogInfo    LogLevel = "info"
	LogWarning LogLevel = "warning"
	LogError   LogLevel = "error"
)

// Strategy picks the value a field assumes after a failed extraction.
type Strategy string

const (
	// UseNone leaves the field without a value.
	UseNone Strategy = "none"
	// UseLast keeps the last value the field resolved to.
	UseLast Strategy = "last"
	// UseDefault renders the policy's default template.
	UseDefault Strategy = "default"
)

// OnErrorConfig is the configured form of a field error policy.
type OnErrorConfig struct {
	Log     string `json:"log"`
	Value   string `json:"value"`
	Default string `json:"default"`
}

// OnError is a compiled field error policy.
type OnError struct {
	Log      LogLevel
	Strategy Strategy
	Default  *render.Renderer
}

func newOnError(name string, cfg OnErrorConfig) (OnError, error) {
	out := OnError{Log: LogError, Strategy: UseNone}

	switch LogLevel(cfg.Log) {
	case "", LogError:
	case LogNone, LogInfo, LogWarning:
		out.Log = LogLevel(cfg.Log)
	default:
		return OnError{}, fmt.Errorf("selector %q: unknown on_error log level %q", name, cfg.Log)
	}

	switch Strategy(cfg.Value) {
	case "", UseNone:
	case UseLast, UseDefault:
		out.Strategy = Strategy(cfg.Value)
	default:
		return OnError{}, fmt.Errorf("selector %q: unknown on_error value %q", name, cfg.Value)
	}

	if out.Strategy == UseDefault && cfg.Default == "" {
		return OnError{}, fmt.Errorf("selector %q: on_error value \"default\" requires a default template", name)
	}
	if out.Strategy != UseDefault && cfg.Default != "" {
		return OnError{}, fmt.Errorf("selector %q: on_error default template requires value \"default\"", name)
	}
	if cfg.Default != "" {
		tmpl, err := render.New(name+".on_error.default", cfg.Default)
		if err != nil {
			return OnError{}, err
		}
		out.Default = tmpl
	}
	return out, nil
}

// Result is a resolved field value. Available is false when policy left
// the field without a value.
type Result struct {
	Value     string
	Available bool
}

// Resolve maps a failed extraction onto the field's next value. It is a
// pure function of the policy, the previous result and the ambient
// variable map; logging happens separately in LogFailure.
func (p OnError) Resolve(previous Result, vars map[string]any) (Result, error) {
	switch p.Strategy {
	case UseLast:
		if previous.Available {
			return previous, nil
		}
		return Result{}, nil
	case UseDefault:
		value, err := p.Default.Render(vars)
		if err != nil {
			return Result{}, fmt.Errorf("render on_error default: %w", err)
		}
		return Result{Value: value, Available: true}, nil
	}
	return Result{}, nil
}

// LogFailure reports a failed extraction at the policy's level.
func (p OnError) LogFailure(ctx context.Context, name string, err error) {
	switch p.Log {
	case LogNone:
	case LogInfo:
		slog.InfoContext(ctx, "selector failed", "selector", name, "err", err)
	case LogWarning:
		slog.WarnContext(ctx, "selector failed", "selector", name, "err", err)
	default:
		slog.ErrorContext(ctx, "selector failed", "selector", name, "err", err)
	}
}
