package middleware

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/traverse-web/traverse/pkg/router"
)

const defaultTracerName = "traverse"

// OTelConfig configures the OpenTelemetry middleware.
type OTelConfig struct {
	// TracerName is the name of the tracer (default: "traverse").
	TracerName string

	// Filter decides which resolutions to trace. Nil traces all.
	Filter func(c *router.Ctx) bool

	// AttributeExtractor adds custom attributes per resolution.
	AttributeExtractor func(c *router.Ctx) []attribute.KeyValue
}

// OTelOption configures the OpenTelemetry middleware.
type OTelOption func(*OTelConfig)

// WithTracerName sets the tracer name.
func WithTracerName(name string) OTelOption {
	return func(c *OTelConfig) { c.TracerName = name }
}

// WithFilter sets a filter for which resolutions to trace.
func WithFilter(filter func(c *router.Ctx) bool) OTelOption {
	return func(c *OTelConfig) { c.Filter = filter }
}

// WithAttributeExtractor sets a custom attribute extractor.
func WithAttributeExtractor(extractor func(c *router.Ctx) []attribute.KeyValue) OTelOption {
	return func(c *OTelConfig) { c.AttributeExtractor = extractor }
}

// OpenTelemetry creates middleware that opens a span per resolution.
//
// The span records the method, path, negotiated format, matched route,
// and final status; failures set the span status to Error. The tracer
// comes from the global tracer provider; configure that in main().
func OpenTelemetry(opts ...OTelOption) router.Middleware {
	config := OTelConfig{TracerName: defaultTracerName}
	for _, opt := range opts {
		opt(&config)
	}
	tracer := otel.Tracer(config.TracerName)

	return router.MiddlewareFunc(func(c *router.Ctx, next func() error) error {
		if config.Filter != nil && !config.Filter(c) {
			return next()
		}

		_, span := tracer.Start(c.StdContext(), "resolve "+c.Request.Path,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("traverse.method", c.Request.Method),
				attribute.String("traverse.path", c.Request.Path),
				attribute.String("traverse.accept", string(c.Request.Accept)),
				attribute.String("traverse.request_id", c.Request.ID),
			),
		)
		defer span.End()

		err := next()

		span.SetAttributes(
			attribute.String("traverse.route", routeLabel(c)),
			attribute.Int("traverse.status", c.Response.StatusCode),
		)
		if config.AttributeExtractor != nil {
			span.SetAttributes(config.AttributeExtractor(c)...)
		}
		if c.Err != nil {
			span.RecordError(c.Err)
			span.SetStatus(codes.Error, c.Err.Message)
		} else {
			span.SetStatus(codes.Ok, "")
		}
		return err
	})
}
