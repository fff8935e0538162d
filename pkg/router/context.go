package router

import (
	"context"
	"log/slog"
	"net/http"
)

// Request is the environment-neutral view of one resolution's input: an
// HTTP request on the server, a navigation event on the client. It is
// owned exclusively by the resolution that created it and is never
// shared across concurrent resolutions.
type Request struct {
	// ID uniquely identifies this resolution. It travels in the SSR
	// hand-off payload so the hydrating client reuses it.
	ID string

	// Method is the HTTP method ("GET" for navigations).
	Method string

	// Path is the concrete URL path being resolved.
	Path string

	// Data is the merged data bag: query string, parsed body, and the
	// matched route's path parameters.
	Data map[string]any

	// Header holds the incoming headers. Empty on the client.
	Header http.Header

	// Cookies holds the incoming cookies. Empty on the client.
	Cookies []*http.Cookie

	// Accept is the negotiated response format.
	Accept Accept

	// User is the decoded session user, or nil. Populated once, before
	// controller execution, by the session-decoding collaborator.
	User any
}

// Param returns a data-bag value as a string, or "" when absent.
func (r *Request) Param(name string) string {
	if v, ok := r.Data[name]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// Response accumulates one resolution's output. Provided is the single
// gate for "a controller already produced final output": several routes
// may be tried in sequence and each may legitimately decline.
type Response struct {
	StatusCode int
	Header     http.Header
	Data       any
	Provided   bool
}

// NewResponse returns an empty 200 response.
func NewResponse() *Response {
	return &Response{StatusCode: http.StatusOK, Header: make(http.Header)}
}

// Provide records final output and closes the response.
func (r *Response) Provide(data any) {
	r.Data = data
	r.Provided = true
}

// SetStatus sets the status code unless output was already provided.
func (r *Response) SetStatus(code int) {
	if !r.Provided {
		r.StatusCode = code
	}
}

// Ctx bundles the request, the response, and the cross-cutting
// capabilities a controller may use. One Ctx is built per resolution and
// discarded with it.
type Ctx struct {
	Request  *Request
	Response *Response

	// Route is the route currently being executed. It changes as the
	// scan tries candidates and when the error chain re-enters.
	Route *Route

	// Err is the failure being handled when an error-route controller
	// runs; nil during normal resolution.
	Err *Error

	// Page is the page value rendered by this resolution, if any. Set
	// by the engine so the server can build the SSR hand-off payload.
	Page PageValue

	// Domains exposes application services to controllers by name. The
	// routing core treats them as opaque.
	Domains map[string]any

	// Logger is the per-resolution structured logger.
	Logger *slog.Logger

	std context.Context
}

// NewCtx builds the per-resolution context triple.
func NewCtx(std context.Context, req *Request, domains map[string]any, logger *slog.Logger) *Ctx {
	if std == nil {
		std = context.Background()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Ctx{
		Request:  req,
		Response: NewResponse(),
		Domains:  domains,
		Logger:   logger.With("request_id", req.ID),
		std:      std,
	}
}

// User returns the decoded session user, or nil.
func (c *Ctx) User() any {
	return c.Request.User
}

// Domain returns a named application service, or nil.
func (c *Ctx) Domain(name string) any {
	return c.Domains[name]
}

// StdContext returns the standard context for blocking calls made on
// behalf of this resolution.
func (c *Ctx) StdContext() context.Context {
	return c.std
}
