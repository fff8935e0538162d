package router

import (
	"context"
	"sync/atomic"
)

// Accept is the response format a route can satisfy, or a caller can
// consume. Content negotiation compares the two.
type Accept string

const (
	// AcceptHTML marks routes that render markup (pages, error pages).
	AcceptHTML Accept = "html"

	// AcceptJSON marks routes that produce structured data.
	AcceptJSON Accept = "json"

	// AcceptAny marks routes that serve whatever the caller asks for.
	AcceptAny Accept = "*"

	// AcceptText marks callers that negotiated neither markup nor
	// structured data. No route declares it; error output degrades to
	// plain text for such callers.
	AcceptText Accept = "text"
)

// Satisfies reports whether a route declaring this accept value can
// answer a caller that negotiated want.
func (a Accept) Satisfies(want Accept) bool {
	if a == AcceptAny || a == "" || want == AcceptAny || want == "" {
		return true
	}
	return a == want
}

// AuthAny is the Options.Auth value requiring any signed-in user. The
// empty string means no requirement; any other value names a role.
const AuthAny = "*"

// Options configure a route at registration time. The zero value is a
// plain, always-eligible route.
type Options struct {
	// Priority orders the scan: higher priorities are tried first.
	// Equal priorities preserve registration order, except that
	// HTML-accepting routes sort before other accept values.
	Priority int

	// Accept is the response format this route satisfies.
	Accept Accept

	// ID is the stable build-time identifier of the route's controller
	// code (its chunk). Required for page routes; keys lazy loading and
	// the static output cache.
	ID string

	// Auth is the authorization requirement ("" none, AuthAny any
	// signed-in user, otherwise a required role).
	Auth string

	// Static marks page routes whose rendered HTML is deterministic per
	// ID and may be cached for the life of the process.
	Static bool

	// Layout names the layout key this route wants, overriding the
	// nearest-ancestor convention. Ignored when NoLayout is set.
	Layout string

	// NoLayout opts the route out of layout wrapping entirely.
	NoLayout bool
}

// ControllerLoader produces a route's controller on first use. Loaders
// come from the build system's chunk table; they must tolerate being
// invoked more than once and return equivalent controllers each time,
// since concurrent first resolutions may race to perform the load.
type ControllerLoader func(ctx context.Context) (Controller, error)

// Route is a registered, matchable endpoint.
//
// A Route is immutable after registration with one exception: a route
// created unresolved (controller absent, Loader set) is upgraded in
// place the first time it is needed. The upgrade stores the loaded
// controller back into the same slot; the store is atomic and
// last-write-wins, which is safe because racing loads of the same chunk
// yield equivalent controllers.
type Route struct {
	// Method is the HTTP method, or "*" for any.
	Method string

	// Path is the original pattern the route was registered with.
	// Empty for routes reconstructed from a hand-off payload.
	Path string

	// Matcher is the compiled pattern.
	Matcher *Matcher

	// Loader upgrades an unresolved route. Nil when the route was
	// registered with its controller in hand.
	Loader ControllerLoader

	// Options are the registration options, with layout resolved at
	// seal time.
	Options Options

	// IsPage marks page-type routes (registered via Registry.Page).
	IsPage bool

	ctrl   atomic.Value // Controller
	layout any
}

// Controller returns the route's controller, or nil while unresolved.
func (r *Route) Controller() Controller {
	c, _ := r.ctrl.Load().(Controller)
	return c
}

// Resolved reports whether the route's controller is loaded.
func (r *Route) Resolved() bool {
	return r.Controller() != nil
}

// Upgrade stores the loaded controller into the route slot. It is a
// no-op for nil controllers. Concurrent upgrades with equivalent values
// are tolerated; the route is never observable partially constructed.
func (r *Route) Upgrade(c Controller) {
	if c != nil {
		r.ctrl.Store(c)
	}
}

// Layout returns the layout value resolved at seal time, or nil when
// the route opted out.
func (r *Route) Layout() any {
	return r.layout
}

// ErrorRoute is a controller registered against an HTTP status code. It
// shares the resolved/unresolved duality of Route.
type ErrorRoute struct {
	Code    int
	Loader  ControllerLoader
	Options Options

	ctrl   atomic.Value // Controller
	layout any
}

// Controller returns the error route's controller, or nil while
// unresolved.
func (r *ErrorRoute) Controller() Controller {
	c, _ := r.ctrl.Load().(Controller)
	return c
}

// Resolved reports whether the error route's controller is loaded.
func (r *ErrorRoute) Resolved() bool {
	return r.Controller() != nil
}

// Upgrade stores the loaded controller into the error route slot.
func (r *ErrorRoute) Upgrade(c Controller) {
	if c != nil {
		r.ctrl.Store(c)
	}
}

// Layout returns the resolved layout value, or nil.
func (r *ErrorRoute) Layout() any {
	return r.layout
}
