// Package middleware provides observability middleware for the
// resolution pipeline: Prometheus metrics and OpenTelemetry tracing.
//
// Both wrap individual resolutions, so they observe the final outcome
// of a request including error-route handling:
//
//	app.Use(
//	    middleware.Prometheus(middleware.WithNamespace("myapp")),
//	    middleware.OpenTelemetry(),
//	)
package middleware
