// Package page implements the page lifecycle shared by both execution
// environments.
//
// A page-type controller does not fetch data itself. It returns a Page
// bound to a data provider; the owning resolution engine declares the
// page's fetchers, resolves the ones not already satisfied (locally on
// the server, batched over the network on the client), and hands the
// page with its merged data to the rendering collaborator.
package page

import (
	"sync"

	"github.com/traverse-web/traverse/pkg/router"
)

// Status is a client-side page lifecycle state. On the server a page
// lives for a single resolution and the states are not observable.
type Status int

const (
	// StatusLoading: the page's chunk or data is still being fetched.
	StatusLoading Status = iota

	// StatusFetched: data is resolved, the page is ready to render.
	StatusFetched

	// StatusCurrent: the page is the one on screen. Exactly one page
	// holds this status at a time.
	StatusCurrent

	// StatusDiscarded: replaced by a newer current page; eligible for
	// collection after its exit animation.
	StatusDiscarded
)

// String returns the lifecycle state name.
func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusFetched:
		return "fetched"
	case StatusCurrent:
		return "current"
	case StatusDiscarded:
		return "discarded"
	}
	return "unknown"
}

// Fetcher is a named, deferred data request declared by a page's data
// provider. It is resolved by the engine, not by the page.
type Fetcher struct {
	Method string         `json:"method"`
	Path   string         `json:"path"`
	Data   map[string]any `json:"data,omitempty"`
}

// Get declares a GET fetcher.
func Get(path string) *Fetcher {
	return &Fetcher{Method: "GET", Path: path}
}

// Post declares a POST fetcher carrying data.
func Post(path string, data map[string]any) *Fetcher {
	return &Fetcher{Method: "POST", Path: path, Data: data}
}

// Provider maps fetcher ids to fetchers for one resolution. It runs
// once per page instance; the returned mapping is frozen before data
// resolution starts.
type Provider func(c *router.Ctx) (map[string]*Fetcher, error)

// Option configures a Page at construction.
type Option func(*Page)

// WithTitle sets the document title.
func WithTitle(title string) Option {
	return func(p *Page) { p.title = title }
}

// WithBodyID sets the body element id the renderer targets.
func WithBodyID(id string) Option {
	return func(p *Page) { p.bodyID = id }
}

// Page is the value a page-type controller returns: a renderer
// reference, a data provider, and the data resolved for it. It is
// mutated by the owning engine as fetchers resolve and becomes
// garbage-eligible when navigation moves away from it.
type Page struct {
	mu sync.Mutex

	renderer any
	provider Provider

	chunkID  string
	layout   any
	fetchers map[string]*Fetcher
	data     map[string]any
	declared bool
	fetched  bool

	title  string
	bodyID string
	status Status
}

// New creates a page bound to an opaque renderer and a data provider.
// The provider may be nil for pages without data requirements.
func New(renderer any, provider Provider, opts ...Option) *Page {
	p := &Page{
		renderer: renderer,
		provider: provider,
		data:     make(map[string]any),
		status:   StatusLoading,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Bind attaches the matched route's identity: its chunk id and its
// resolved layout. The engine calls this before data resolution. For
// error pages the identity comes from the error route instead.
func (p *Page) Bind(chunkID string, layout any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.chunkID = chunkID
	p.layout = layout
}

// ChunkID returns the bound chunk id, or "" before Bind.
func (p *Page) ChunkID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.chunkID
}

// Renderer returns the opaque renderer reference.
func (p *Page) Renderer() any { return p.renderer }

// Layout returns the resolved layout value, or nil.
func (p *Page) Layout() any {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.layout
}

// Title returns the document title.
func (p *Page) Title() string { return p.title }

// BodyID returns the body element id.
func (p *Page) BodyID() string { return p.bodyID }

// Hydrate seeds the page's data from an SSR hand-off payload. Hydrated
// ids are treated as already satisfied by the first fetch pass.
func (p *Page) Hydrate(data map[string]any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, v := range data {
		p.data[id] = v
	}
}

// Declare runs the data provider and freezes the fetcher mapping. It is
// idempotent per page instance.
func (p *Page) Declare(c *router.Ctx) error {
	p.mu.Lock()
	if p.declared {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	var fetchers map[string]*Fetcher
	if p.provider != nil {
		var err error
		fetchers, err = p.provider(c)
		if err != nil {
			return err
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.declared {
		p.fetchers = fetchers
		p.declared = true
	}
	return nil
}

// Pending returns the fetchers that must be resolved now. On the first
// pass, ids already satisfied by hydrated data are skipped, so a
// hydrated page performs zero additional calls on first paint. Once a
// fetch pass has completed, every later pass (an explicit reload)
// returns the full mapping regardless of what was hydrated.
func (p *Page) Pending() map[string]*Fetcher {
	p.mu.Lock()
	defer p.mu.Unlock()

	pending := make(map[string]*Fetcher, len(p.fetchers))
	for id, f := range p.fetchers {
		if !p.fetched {
			if _, ok := p.data[id]; ok {
				continue
			}
		}
		pending[id] = f
	}
	return pending
}

// MergeData merges resolved fetcher results by id and marks the fetch
// pass complete.
func (p *Page) MergeData(results map[string]any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, v := range results {
		p.data[id] = v
	}
	p.fetched = true
}

// Data returns a copy of the page's resolved data.
func (p *Page) Data() map[string]any {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]any, len(p.data))
	for id, v := range p.data {
		out[id] = v
	}
	return out
}

// Status returns the lifecycle state.
func (p *Page) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// SetStatus transitions the lifecycle state. The owning engine is
// responsible for keeping at most one page in StatusCurrent.
func (p *Page) SetStatus(s Status) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status = s
}
