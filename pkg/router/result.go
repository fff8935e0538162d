package router

// ResultKind discriminates the controller result union.
type ResultKind int

const (
	// KindDeferred means the controller declined to handle the request.
	// The scan continues with the next matching route.
	KindDeferred ResultKind = iota

	// KindPage means the controller produced a page value that goes
	// through the page lifecycle (fetchers, then render).
	KindPage

	// KindRaw means the controller produced a plain value, serialized
	// directly in the caller's negotiated format.
	KindRaw
)

// PageValue is the minimal view of a page the route model needs. The
// concrete type lives in the page package; the resolution engine asserts
// to it when driving the page lifecycle.
type PageValue interface {
	// ChunkID is the build-time id of the controller that produced the
	// page. It keys lazy loading and the static output cache.
	ChunkID() string
}

// Result is the tagged union a controller returns: Page, Raw, or
// Deferred. The engine's branch over it is exhaustive; there is no
// duck typing of "page-like" values.
type Result struct {
	Kind ResultKind
	Page PageValue
	Raw  any
}

// Deferred is the explicit "not handled, keep scanning" result. It is
// not an error.
func Deferred() Result {
	return Result{Kind: KindDeferred}
}

// PageResult wraps a page value.
func PageResult(p PageValue) Result {
	return Result{Kind: KindPage, Page: p}
}

// Raw wraps a plain response value.
func Raw(v any) Result {
	return Result{Kind: KindRaw, Raw: v}
}

// Controller is the contract a route's handler satisfies. It receives
// the per-resolution Ctx and returns a Result, or an error that is
// funneled through the error resolution chain.
type Controller func(c *Ctx) (Result, error)
