// Package engine implements the resolution pipeline shared by the
// server and the client. One Engine is built per process against a
// sealed registry; what differs between environments is the injected
// Env: how controllers are loaded, how fetchers are resolved, and how
// pages are rendered.
package engine

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"

	"github.com/traverse-web/traverse/pkg/bugreport"
	"github.com/traverse-web/traverse/pkg/handoff"
	"github.com/traverse-web/traverse/pkg/page"
	"github.com/traverse-web/traverse/pkg/router"
)

// Env is the set of environment capabilities a resolution needs. The
// server backs it with the chunk table, in-process fetcher resolution,
// and the HTML renderer; the client backs it with dynamic imports, the
// batch endpoint, and DOM patching.
type Env interface {
	// LoadController fetches the controller for a chunk id. Concurrent
	// calls for the same id must coalesce.
	LoadController(c *router.Ctx, chunkID string) (router.Controller, error)

	// ResolveFetchers resolves a page's pending fetchers and returns
	// their results keyed by fetcher id.
	ResolveFetchers(c *router.Ctx, pending map[string]*page.Fetcher) (map[string]any, error)

	// Render produces the page's output for this environment: an HTML
	// document on the server, a DOM patch (and empty string) on the
	// client.
	Render(c *router.Ctx, p *page.Page) (string, error)
}

// Authorizer checks a decoded user against a route's Auth requirement.
// The requirement is never empty when this is called.
type Authorizer func(c *router.Ctx, user any, requirement string) error

// Config assembles an Engine.
type Config struct {
	Registry *router.Registry
	Env      Env
	Logger   *slog.Logger

	// Production controls whether 500-class messages are masked before
	// they reach callers.
	Production bool

	// Embed enables appending the hand-off payload to rendered HTML.
	// On by default on the server, always off on the client.
	Embed bool

	// Domains are the application services exposed to controllers.
	Domains map[string]any

	// Middleware runs around every resolution, outermost first.
	Middleware []router.Middleware

	// DecodeUser derives the session user from the request, or nil.
	// Called once per resolution, before any controller runs.
	DecodeUser func(c *router.Ctx) (any, error)

	// Authorize enforces route Auth requirements. When nil, a default
	// is used: any signed-in user passes AuthAny, roles are rejected.
	Authorize Authorizer

	// Reporter receives 500-class failures. Nil disables reporting.
	Reporter bugreport.Reporter

	// OnError is invoked when a failure has no matching error route,
	// right before the bare fallback output.
	OnError func(c *router.Ctx, failure *router.Error)
}

// Engine drives resolutions against a sealed registry.
type Engine struct {
	cfg     Config
	reg     *router.Registry
	env     Env
	logger  *slog.Logger
	static  *StaticCache
	domains []string
}

// New builds an engine and seals the registry if the caller has not.
func New(cfg Config) *Engine {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if !cfg.Registry.Sealed() {
		cfg.Registry.Seal()
	}
	names := make([]string, 0, len(cfg.Domains))
	for name := range cfg.Domains {
		names = append(names, name)
	}
	sort.Strings(names)
	return &Engine{
		cfg:     cfg,
		reg:     cfg.Registry,
		env:     cfg.Env,
		logger:  cfg.Logger,
		static:  NewStaticCache(),
		domains: names,
	}
}

// Registry returns the sealed registry the engine resolves against.
func (e *Engine) Registry() *router.Registry { return e.reg }

// NewCtx builds a resolution context bound to this engine's domains
// and logger.
func (e *Engine) NewCtx(req *router.Request) *router.Ctx {
	return router.NewCtx(nil, req, e.cfg.Domains, e.logger)
}

// Resolve runs the full pipeline for one request: session decode,
// middleware, the ordered route scan, and the error chain. When it
// returns, c.Response holds the final output; the returned error is
// non-nil only when even the fallback could not be produced.
func (e *Engine) Resolve(c *router.Ctx) error {
	e.DecodeUser(c)
	return router.ComposeMiddleware(c, e.cfg.Middleware, func() error {
		if err := e.scan(c); err != nil {
			return e.fail(c, err)
		}
		return nil
	})
}

// DecodeUser populates the request's user once. Resolve calls it; the
// batch transport calls it directly for the parent request so child
// resolutions inherit the decoded identity.
func (e *Engine) DecodeUser(c *router.Ctx) {
	if c.Request.User != nil || e.cfg.DecodeUser == nil {
		return
	}
	user, err := e.cfg.DecodeUser(c)
	if err != nil {
		// A broken session is an anonymous request, not a failure.
		c.Logger.Warn("session decode failed", "error", err)
		return
	}
	c.Request.User = user
}

// scan tries routes in registry order until one provides output.
func (e *Engine) scan(c *router.Ctx) error {
	req := c.Request

	var direct *router.Route
	if r := e.reg.Direct(req.Method, req.Path); r != nil && r.Options.Accept.Satisfies(req.Accept) {
		direct = r
		provided, err := e.try(c, r, nil)
		if err != nil {
			return err
		}
		if provided {
			return nil
		}
	}

	for _, r := range e.reg.Routes() {
		if r == direct {
			continue
		}
		if r.Method != "*" && r.Method != req.Method {
			continue
		}
		if !r.Options.Accept.Satisfies(req.Accept) {
			continue
		}
		params, ok := r.Matcher.Match(req.Path)
		if !ok {
			continue
		}
		provided, err := e.try(c, r, params)
		if err != nil {
			return err
		}
		if provided {
			return nil
		}
	}

	return router.NotFound()
}

// try executes one candidate route. It reports whether the route
// provided final output; a false with nil error means the controller
// deferred and the scan continues.
func (e *Engine) try(c *router.Ctx, r *router.Route, params map[string]string) (bool, error) {
	prior := make(map[string]any, len(params))
	for k, v := range params {
		if old, ok := c.Request.Data[k]; ok {
			prior[k] = old
		}
		c.Request.Data[k] = v
	}
	c.Route = r

	if r.Options.Auth != "" {
		if err := e.authorize(c, r.Options.Auth); err != nil {
			return false, err
		}
	}

	// Static pages are served from the process-lifetime cache without
	// touching the controller again.
	if r.IsPage && r.Options.Static && c.Request.Accept == router.AcceptHTML {
		if entry, ok := e.static.Get(r.Options.ID); ok {
			if err := e.serveDocument(c, r.Options.ID, entry.Data, entry.HTML); err != nil {
				return false, err
			}
			return true, nil
		}
	}

	ctrl, err := e.controllerFor(c, r)
	if err != nil {
		return false, err
	}

	res, err := e.execute(c, ctrl)
	if err != nil {
		return false, err
	}

	switch res.Kind {
	case router.KindDeferred:
		// A deferring controller may still have written output
		// directly; Provided is the authority.
		if !c.Response.Provided {
			// The deferred route's captures must not leak into later
			// candidates or the hand-off request data.
			for k := range params {
				if old, ok := prior[k]; ok {
					c.Request.Data[k] = old
				} else {
					delete(c.Request.Data, k)
				}
			}
		}
		return c.Response.Provided, nil
	case router.KindRaw:
		e.provideRaw(c, res.Raw)
		return true, nil
	case router.KindPage:
		p, ok := res.Page.(*page.Page)
		if !ok {
			return false, router.Internal(fmt.Errorf("engine: route %q returned unsupported page value %T", r.Options.ID, res.Page))
		}
		p.Bind(r.Options.ID, r.Layout())
		if err := e.renderPage(c, p, r.Options.Static, r.Options.ID); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, router.Internal(fmt.Errorf("engine: unknown result kind %d", res.Kind))
}

func (e *Engine) authorize(c *router.Ctx, requirement string) error {
	user := c.Request.User
	if e.cfg.Authorize != nil {
		return e.cfg.Authorize(c, user, requirement)
	}
	if user == nil {
		return router.Unauthorized()
	}
	if requirement != router.AuthAny {
		return router.Forbidden()
	}
	return nil
}

// controllerFor returns the route's controller, loading and upgrading
// the route in place when it is still unresolved.
func (e *Engine) controllerFor(c *router.Ctx, r *router.Route) (router.Controller, error) {
	if ctrl := r.Controller(); ctrl != nil {
		return ctrl, nil
	}
	ctrl, err := e.load(c, r.Options.ID, r.Loader)
	if err != nil {
		return nil, err
	}
	r.Upgrade(ctrl)
	return ctrl, nil
}

func (e *Engine) load(c *router.Ctx, chunkID string, loader router.ControllerLoader) (router.Controller, error) {
	if chunkID != "" && e.env != nil {
		ctrl, err := e.env.LoadController(c, chunkID)
		if err == nil {
			return ctrl, nil
		}
		if loader == nil {
			return nil, router.Internal(err)
		}
	}
	if loader == nil {
		return nil, router.Internal(router.ErrNoLoader)
	}
	ctrl, err := loader(c.StdContext())
	if err != nil {
		return nil, router.Internal(err)
	}
	if ctrl == nil {
		return nil, router.Internal(fmt.Errorf("engine: loader for %q returned no controller", chunkID))
	}
	return ctrl, nil
}

// execute runs a controller with panic containment. A panicking
// controller fails its own resolution only.
func (e *Engine) execute(c *router.Ctx, ctrl router.Controller) (res router.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			c.Logger.Error("controller panic",
				"path", c.Request.Path,
				"panic", r,
				"stack", string(debug.Stack()))
			res = router.Result{}
			err = router.Internal(fmt.Errorf("controller panic: %v", r))
		}
	}()
	return ctrl(c)
}

// renderPage drives the page lifecycle: declare fetchers, resolve the
// pending ones through the environment, merge, render, and on the
// server append the hand-off payload and populate the static cache.
func (e *Engine) renderPage(c *router.Ctx, p *page.Page, static bool, chunkID string) error {
	if err := p.Declare(c); err != nil {
		return err
	}

	pending := p.Pending()
	if len(pending) > 0 {
		results, err := e.env.ResolveFetchers(c, pending)
		if err != nil {
			return err
		}
		p.MergeData(results)
	} else {
		p.MergeData(nil)
	}
	p.SetStatus(page.StatusFetched)
	c.Page = p

	html, err := e.env.Render(c, p)
	if err != nil {
		return err
	}

	// The cache stores the document without the hand-off payload: the
	// payload's context block names the caller and may never be shared.
	if static && chunkID != "" && c.Request.Accept == router.AcceptHTML {
		e.static.Put(chunkID, CachedPage{HTML: html, Data: p.Data()})
	}

	return e.serveDocument(c, p.ChunkID(), p.Data(), html)
}

// serveDocument closes the response with a rendered document, appending
// the hand-off payload when embedding is on. The route table and page
// data may come from the static cache; the context block is rebuilt for
// every request because it carries the request id and user.
func (e *Engine) serveDocument(c *router.Ctx, chunkID string, data map[string]any, html string) error {
	if e.cfg.Embed {
		payload := handoff.Build(e.reg, c.Request, chunkID, data, e.domains)
		blocks, err := payload.HTML()
		if err != nil {
			return router.Internal(err)
		}
		html += blocks
	}
	c.Response.Header.Set("Content-Type", "text/html; charset=utf-8")
	c.Response.Provide(html)
	return nil
}

// provideRaw closes the response with a raw controller value, typed by
// the negotiated format. Serialization happens at the transport edge.
func (e *Engine) provideRaw(c *router.Ctx, v any) {
	switch c.Request.Accept {
	case router.AcceptHTML:
		c.Response.Header.Set("Content-Type", "text/html; charset=utf-8")
	case router.AcceptJSON:
		c.Response.Header.Set("Content-Type", "application/json; charset=utf-8")
	default:
		c.Response.Header.Set("Content-Type", "text/plain; charset=utf-8")
	}
	c.Response.Provide(v)
}
