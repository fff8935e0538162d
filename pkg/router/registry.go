package router

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
)

// DefaultLayoutKey is the key of the framework-internal layout used when
// no registered layout is an ancestor of a route's id.
const DefaultLayoutKey = "default"

// Registry is the per-engine ordered collection of routes, the
// code → error-route table, and the layout table.
//
// A Registry goes through two phases. During boot, registration calls
// append to it. Seal sorts the scan order, resolves layouts, and freezes
// the registry; after that it is read-only and safe for unsynchronized
// concurrent reads — with the single exception of in-place controller
// upgrades, which are atomic per route slot.
type Registry struct {
	mu      sync.Mutex
	routes  []*Route
	direct  map[string]*Route
	errors  map[int]*ErrorRoute
	layouts map[string]any
	sealed  bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		direct:  make(map[string]*Route),
		errors:  make(map[int]*ErrorRoute),
		layouts: make(map[string]any),
	}
}

// Page registers a page route: GET, HTML-accepting unless overridden,
// requiring a non-empty chunk id.
func (g *Registry) Page(path string, opts *Options, ctrl Controller) (*Route, error) {
	o := normalizeOptions(opts)
	if o.Accept == "" {
		o.Accept = AcceptHTML
	}
	if o.ID == "" {
		return nil, fmt.Errorf("%w: %s", ErrPageWithoutID, path)
	}
	return g.add(http.MethodGet, path, o, ctrl, nil, true)
}

// Register registers a non-page endpoint. Method "*" matches any.
func (g *Registry) Register(method, path string, opts *Options, ctrl Controller) (*Route, error) {
	o := normalizeOptions(opts)
	if o.Accept == "" {
		o.Accept = AcceptJSON
	}
	return g.add(method, path, o, ctrl, nil, false)
}

// AddUnresolved registers a page route placeholder from a hand-off route
// table entry. The controller is loaded on first use; the loaded value
// replaces the placeholder's empty slot so later resolutions hit the
// resolved form.
func (g *Registry) AddUnresolved(chunkID, regexSource string, params []string, loader ControllerLoader) (*Route, error) {
	if chunkID == "" {
		return nil, ErrPageWithoutID
	}
	m, err := FromRegex(regexSource, params)
	if err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.sealed {
		return nil, ErrRegistrySealed
	}
	r := &Route{
		Method:  http.MethodGet,
		Matcher: m,
		Loader:  loader,
		Options: Options{Accept: AcceptHTML, ID: chunkID},
		IsPage:  true,
	}
	g.routes = append(g.routes, r)
	return r, nil
}

// Error registers an error route for an HTTP status code.
func (g *Registry) Error(code int, opts *Options, ctrl Controller) (*ErrorRoute, error) {
	return g.addError(code, normalizeOptions(opts), ctrl, nil)
}

// AddUnresolvedError registers an error route placeholder from a
// hand-off entry.
func (g *Registry) AddUnresolvedError(code int, chunkID string, loader ControllerLoader) (*ErrorRoute, error) {
	return g.addError(code, Options{Accept: AcceptHTML, ID: chunkID}, nil, loader)
}

// Layout registers a layout value under a dot/underscore-delimited key.
// Routes are bound to their nearest ancestor layout at seal time.
func (g *Registry) Layout(key string, layout any) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.layouts[key] = layout
}

func (g *Registry) add(method, path string, o Options, ctrl Controller, loader ControllerLoader, isPage bool) (*Route, error) {
	m, err := Compile(path)
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.sealed {
		return nil, ErrRegistrySealed
	}

	r := &Route{
		Method:  method,
		Path:    path,
		Matcher: m,
		Loader:  loader,
		Options: o,
		IsPage:  isPage,
	}
	r.Upgrade(ctrl)
	g.routes = append(g.routes, r)

	// Literal paths feed the direct-controller fast table.
	if !strings.ContainsAny(path, ":*") {
		g.direct[method+" "+path] = r
	}
	return r, nil
}

func (g *Registry) addError(code int, o Options, ctrl Controller, loader ControllerLoader) (*ErrorRoute, error) {
	if o.Accept == "" {
		o.Accept = AcceptHTML
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.sealed {
		return nil, ErrRegistrySealed
	}
	r := &ErrorRoute{Code: code, Loader: loader, Options: o}
	r.Upgrade(ctrl)
	g.errors[code] = r
	return r, nil
}

// Seal sorts the registry and resolves layouts, then freezes it. Calling
// Seal twice is a no-op. The sort is stable: primary key is descending
// priority; on ties, HTML-accepting routes come before any other accept
// value; otherwise registration order is preserved.
func (g *Registry) Seal() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.sealed {
		return
	}

	sort.SliceStable(g.routes, func(i, j int) bool {
		a, b := g.routes[i], g.routes[j]
		if a.Options.Priority != b.Options.Priority {
			return a.Options.Priority > b.Options.Priority
		}
		return a.Options.Accept == AcceptHTML && b.Options.Accept != AcceptHTML
	})

	for _, r := range g.routes {
		r.layout = g.resolveLayout(r.Options)
	}
	for _, e := range g.errors {
		e.layout = g.resolveLayout(e.Options)
	}
	g.sealed = true
}

// resolveLayout walks a route's id as a dot/underscore-delimited path
// and returns the nearest registered layout: an exact key match first,
// then each ancestor prefix, then the framework default.
func (g *Registry) resolveLayout(o Options) any {
	if o.NoLayout {
		return nil
	}

	key := o.Layout
	if key == "" {
		key = o.ID
	}
	if key != "" {
		segs := splitLayoutKey(key)
		for i := len(segs); i > 0; i-- {
			if l, ok := g.layouts[strings.Join(segs[:i], "_")]; ok {
				return l
			}
		}
	}
	return g.layouts[DefaultLayoutKey]
}

func splitLayoutKey(key string) []string {
	return strings.FieldsFunc(key, func(r rune) bool {
		return r == '.' || r == '_'
	})
}

// Sealed reports whether the registry is frozen for serving.
func (g *Registry) Sealed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sealed
}

// Routes returns the scan-ordered route list. Callers must not mutate
// it; the engine iterates it on every resolution.
func (g *Registry) Routes() []*Route {
	return g.routes
}

// Direct returns the route registered against the exact literal path,
// trying the concrete method before the any-method entry. This is the
// fast path for static endpoint tables.
func (g *Registry) Direct(method, path string) *Route {
	if r, ok := g.direct[method+" "+path]; ok {
		return r
	}
	if r, ok := g.direct["* "+path]; ok {
		return r
	}
	return nil
}

// ErrorRoute returns the error route for an HTTP status code, or nil.
func (g *Registry) ErrorRoute(code int) *ErrorRoute {
	return g.errors[code]
}

// ErrorRoutes returns the code → error-route table. Callers must not
// mutate it.
func (g *Registry) ErrorRoutes() map[int]*ErrorRoute {
	return g.errors
}

func normalizeOptions(opts *Options) Options {
	if opts == nil {
		return Options{}
	}
	return *opts
}
