package traverse

import (
	"log/slog"
	"time"

	"github.com/traverse-web/traverse/pkg/bugreport"
)

// =============================================================================
// Configuration Types
// =============================================================================

// Config is the main application configuration.
// This is the user-friendly entry point for configuring a Traverse app.
type Config struct {
	// Static configures static file serving.
	Static StaticConfig

	// API configures the batch endpoint and raw JSON routes.
	API APIConfig

	// Reporting configures where 500-class failures are sent.
	Reporting ReportingConfig

	// Production masks internal error messages and disables the dev
	// endpoints (live reload). Leave false during development.
	Production bool

	// Logger is the structured logger for the application.
	// If nil, slog.Default() is used.
	Logger *slog.Logger

	// DecodeUser derives the session user from a resolution's request.
	// Called once per resolution, before any controller runs. Nil means
	// every request is anonymous.
	DecodeUser func(c *Ctx) (any, error)

	// Authorize enforces route Auth requirements. Nil uses the default:
	// any signed-in user passes AuthAny, role requirements are refused.
	Authorize func(c *Ctx, user any, requirement string) error

	// OnError is invoked for failures that have no registered error
	// route, right before the bare fallback response.
	OnError func(c *Ctx, failure *Error)
}

// StaticConfig configures static file serving.
type StaticConfig struct {
	// Dir is the directory containing static files (e.g. "public").
	// Empty disables static serving.
	Dir string

	// Prefix is the URL path prefix static files are served under.
	// Default: "/static/".
	Prefix string

	// MaxAge is the Cache-Control max-age for static assets. Rendered
	// documents are always no-store; this applies to files only.
	// Default: 1 hour.
	MaxAge time.Duration
}

// APIConfig configures the batch endpoint and JSON handling.
type APIConfig struct {
	// MaxBodyBytes limits request body size for the batch endpoint and
	// JSON routes. Default: 1 MiB.
	MaxBodyBytes int64
}

// ReportingConfig configures failure reporting.
type ReportingConfig struct {
	// Reporter receives 500-class failures. Nil uses a logging
	// reporter.
	Reporter bugreport.Reporter

	// Cooldown is how long repeats of the same failure are suppressed.
	// Default: bugreport.DefaultCooldownWindow.
	Cooldown time.Duration
}

// =============================================================================
// Defaults
// =============================================================================

// DefaultStaticConfig returns the static serving defaults.
func DefaultStaticConfig() StaticConfig {
	return StaticConfig{
		Prefix: "/static/",
		MaxAge: time.Hour,
	}
}

// DefaultAPIConfig returns the API defaults.
func DefaultAPIConfig() APIConfig {
	return APIConfig{
		MaxBodyBytes: 1 << 20,
	}
}

// DefaultConfig returns a development-mode configuration.
func DefaultConfig() Config {
	return Config{
		Static: DefaultStaticConfig(),
		API:    DefaultAPIConfig(),
	}
}

func (c *Config) applyDefaults() {
	if c.Static.Prefix == "" {
		c.Static.Prefix = DefaultStaticConfig().Prefix
	}
	if c.Static.MaxAge == 0 {
		c.Static.MaxAge = DefaultStaticConfig().MaxAge
	}
	if c.API.MaxBodyBytes == 0 {
		c.API.MaxBodyBytes = DefaultAPIConfig().MaxBodyBytes
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Reporting.Reporter == nil {
		c.Reporting.Reporter = &bugreport.LogReporter{Logger: c.Logger}
	}
	if c.Reporting.Cooldown == 0 {
		c.Reporting.Cooldown = bugreport.DefaultCooldownWindow
	}
}
