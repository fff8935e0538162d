package traverse

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/traverse-web/traverse/internal/dev"
	"github.com/traverse-web/traverse/pkg/bugreport"
	"github.com/traverse-web/traverse/pkg/chunk"
	"github.com/traverse-web/traverse/pkg/engine"
	"github.com/traverse-web/traverse/pkg/page"
	"github.com/traverse-web/traverse/pkg/router"
)

// =============================================================================
// App Type
// =============================================================================

// App is the server-side application entry point. It wraps the route
// registry, the resolution engine, the batch endpoint, and static file
// serving into a single http.Handler.
//
// Create an App with traverse.New():
//
//	app := traverse.New(traverse.Config{
//	    Static: traverse.StaticConfig{Dir: "public"},
//	})
//	app.Page("/posts/:id", &traverse.Options{ID: "posts_show"}, ShowPost)
//	http.ListenAndServe(":8080", app)
type App struct {
	config Config
	logger *slog.Logger

	registry *router.Registry
	chunks   *chunk.Table
	env      *engine.LocalEnv
	engine   *engine.Engine

	domains    map[string]any
	middleware []router.Middleware
	render     engine.RenderFunc

	mux    *chi.Mux
	reload *dev.ReloadHub

	bootOnce sync.Once
}

// New creates an application with the given configuration. Routes,
// layouts, domains, and middleware are registered afterwards; the
// first request (or an explicit Boot) seals the registry.
func New(cfg Config) *App {
	cfg.applyDefaults()

	a := &App{
		config:   cfg,
		logger:   cfg.Logger,
		registry: router.NewRegistry(),
		chunks:   chunk.NewTable(),
		domains:  make(map[string]any),
		mux:      chi.NewRouter(),
	}
	a.render = a.defaultRender
	if !cfg.Production {
		a.reload = dev.NewReloadHub(cfg.Logger)
	}
	return a
}

// =============================================================================
// Registration
// =============================================================================

// Page registers a page route. The controller is also bound to its
// chunk id, so hydrating clients and the batch path can load it.
func (a *App) Page(path string, opts *Options, ctrl Controller) error {
	r, err := a.registry.Page(path, opts, ctrl)
	if err != nil {
		return err
	}
	a.chunks.RegisterResolved(r.Options.ID, ctrl)
	return nil
}

// Register registers a non-page endpoint. Method "*" matches any.
func (a *App) Register(method, path string, opts *Options, ctrl Controller) error {
	r, err := a.registry.Register(method, path, opts, ctrl)
	if err != nil {
		return err
	}
	if r.Options.ID != "" {
		a.chunks.RegisterResolved(r.Options.ID, ctrl)
	}
	return nil
}

// Error registers an error route for an HTTP status code.
func (a *App) Error(code int, opts *Options, ctrl Controller) error {
	r, err := a.registry.Error(code, opts, ctrl)
	if err != nil {
		return err
	}
	if r.Options.ID != "" {
		a.chunks.RegisterResolved(r.Options.ID, ctrl)
	}
	return nil
}

// Layout registers a layout value. Routes bind to their nearest
// ancestor layout by id at boot.
func (a *App) Layout(key string, layout any) {
	a.registry.Layout(key, layout)
}

// Domain exposes an application service to controllers by name.
func (a *App) Domain(name string, service any) {
	a.domains[name] = service
}

// Use appends resolution middleware, outermost first.
func (a *App) Use(mw ...router.Middleware) {
	a.middleware = append(a.middleware, mw...)
}

// SetRenderer replaces the page renderer. The default renders a bare
// document shell; real applications plug their template engine here.
func (a *App) SetRenderer(render engine.RenderFunc) {
	a.render = render
}

// =============================================================================
// Boot
// =============================================================================

// Boot seals the registry, builds the engine, and mounts the HTTP
// surface. Registration after Boot fails. Boot is idempotent; serving
// triggers it implicitly.
func (a *App) Boot() *App {
	a.bootOnce.Do(a.boot)
	return a
}

func (a *App) boot() {
	a.env = engine.NewLocalEnv(a.chunks, func(c *router.Ctx, p *page.Page) (string, error) {
		return a.render(c, p)
	})
	a.engine = engine.New(engine.Config{
		Registry:   a.registry,
		Env:        a.env,
		Logger:     a.logger,
		Production: a.config.Production,
		Embed:      true,
		Domains:    a.domains,
		Middleware: a.middleware,
		DecodeUser: a.config.DecodeUser,
		Authorize:  a.config.Authorize,
		Reporter:   bugreport.NewCooldown(a.config.Reporting.Reporter, a.config.Reporting.Cooldown),
		OnError:    a.config.OnError,
	})
	a.env.Attach(a.engine)

	a.mux.Post(engine.BatchPath, a.handleBatch)
	a.mux.Method(http.MethodGet, "/metrics", promhttp.Handler())
	if a.reload != nil {
		a.mux.Get(dev.ReloadPath, a.reload.Handler())
	}
	if a.config.Static.Dir != "" {
		a.mux.Handle(a.config.Static.Prefix+"*", a.staticHandler())
	}
	a.mux.NotFound(a.handleResolve)
	a.mux.MethodNotAllowed(a.handleResolve)
}

// Engine returns the resolution engine. Nil before boot.
func (a *App) Engine() *engine.Engine { return a.engine }

// Registry returns the route registry.
func (a *App) Registry() *router.Registry { return a.registry }

// Chunks returns the chunk table.
func (a *App) Chunks() *chunk.Table { return a.chunks }

// Reload returns the dev live-reload hub, or nil in production.
func (a *App) Reload() *dev.ReloadHub { return a.reload }

// Config returns the application configuration.
func (a *App) Config() Config { return a.config }

// =============================================================================
// http.Handler Implementation
// =============================================================================

// ServeHTTP implements http.Handler.
func (a *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.Boot()
	a.mux.ServeHTTP(w, r)
}

// Run boots the app and serves on addr until the listener fails.
func (a *App) Run(addr string) error {
	a.Boot()
	a.logger.Info("listening", "addr", addr)
	return http.ListenAndServe(addr, a)
}

// handleResolve funnels everything that is not a reserved endpoint
// into the resolution engine.
func (a *App) handleResolve(w http.ResponseWriter, r *http.Request) {
	req, err := a.buildRequest(r)
	if err != nil {
		a.flushError(w, r, err)
		return
	}
	c := router.NewCtx(r.Context(), req, a.domains, a.logger)
	if err := a.engine.Resolve(c); err != nil {
		a.flushError(w, r, err)
		return
	}
	a.flush(w, c)
}

// buildRequest converts an HTTP request into the environment-neutral
// form: query parameters and a JSON body merge into one data bag, the
// Accept header is negotiated once.
func (a *App) buildRequest(r *http.Request) (*router.Request, error) {
	data := make(map[string]any)
	for key, vals := range r.URL.Query() {
		if len(vals) > 0 {
			data[key] = vals[0]
		}
	}

	if r.Body != nil && r.Method != http.MethodGet && r.Method != http.MethodHead {
		ct := r.Header.Get("Content-Type")
		if strings.HasPrefix(ct, "application/json") {
			body, err := io.ReadAll(io.LimitReader(r.Body, a.config.API.MaxBodyBytes+1))
			if err != nil {
				return nil, router.Internal(err)
			}
			if int64(len(body)) > a.config.API.MaxBodyBytes {
				return nil, router.BadRequest("request body too large")
			}
			if len(body) > 0 {
				var parsed map[string]any
				if err := json.Unmarshal(body, &parsed); err != nil {
					return nil, router.BadRequestf("invalid JSON body: %v", err)
				}
				for k, v := range parsed {
					data[k] = v
				}
			}
		}
	}

	return &router.Request{
		ID:      newRequestID(),
		Method:  r.Method,
		Path:    r.URL.Path,
		Data:    data,
		Header:  r.Header,
		Cookies: r.Cookies(),
		Accept:  engine.Negotiate(r.Header),
	}, nil
}

// handleBatch serves the client's batched fetcher calls.
func (a *App) handleBatch(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, a.config.API.MaxBodyBytes+1))
	if err != nil {
		a.flushError(w, r, router.Internal(err))
		return
	}
	if int64(len(body)) > a.config.API.MaxBodyBytes {
		a.flushError(w, r, router.BadRequest("batch body too large"))
		return
	}
	br, err := engine.DecodeBatch(body)
	if err != nil {
		a.flushError(w, r, err)
		return
	}

	parent := router.NewCtx(r.Context(), &router.Request{
		ID:      newRequestID(),
		Method:  r.Method,
		Path:    r.URL.Path,
		Data:    map[string]any{},
		Header:  r.Header,
		Cookies: r.Cookies(),
		Accept:  router.AcceptJSON,
	}, a.domains, a.logger)
	a.engine.DecodeUser(parent)

	results := a.engine.ResolveBatch(parent, br)

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(results); err != nil {
		a.logger.Error("batch encode failed", "error", err)
	}
}

// =============================================================================
// Response Flushing
// =============================================================================

// flush writes a finished resolution to the wire. Resolved documents
// and data are personalised per request, so everything the engine
// produces is no-store; only static assets get cache headers.
func (a *App) flush(w http.ResponseWriter, c *router.Ctx) {
	for key, vals := range c.Response.Header {
		for _, v := range vals {
			w.Header().Add(key, v)
		}
	}
	w.Header().Set("Cache-Control", "no-store")

	status := c.Response.StatusCode
	if status <= 0 {
		status = http.StatusInternalServerError
	}

	switch body := c.Response.Data.(type) {
	case nil:
		w.WriteHeader(status)
	case string:
		w.WriteHeader(status)
		io.WriteString(w, body)
	case []byte:
		w.WriteHeader(status)
		w.Write(body)
	default:
		if w.Header().Get("Content-Type") == "" {
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
		}
		w.WriteHeader(status)
		if err := json.NewEncoder(w).Encode(body); err != nil {
			a.logger.Error("response encode failed", "error", err)
		}
	}
}

// flushError handles failures raised before or outside the engine.
func (a *App) flushError(w http.ResponseWriter, r *http.Request, err error) {
	failure := router.AsError(err)
	w.Header().Set("Cache-Control", "no-store")
	if engine.Negotiate(r.Header) == router.AcceptJSON {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(failure.Code)
		json.NewEncoder(w).Encode(&engine.ErrorBody{Code: failure.Code, Message: failure.Message})
		return
	}
	http.Error(w, failure.Message, failure.Code)
}

// =============================================================================
// Default Renderer
// =============================================================================

// Renderer is implemented by page renderer values that know how to
// produce their own document.
type Renderer interface {
	RenderPage(c *Ctx, p *page.Page) (string, error)
}

// defaultRender produces a document shell: title, body mount point,
// nothing else. The hand-off payload the engine appends carries the
// page's data; a client bundle takes it from there.
func (a *App) defaultRender(c *router.Ctx, p *page.Page) (string, error) {
	if r, ok := p.Renderer().(Renderer); ok {
		return r.RenderPage(c, p)
	}

	title := p.Title()
	if title == "" {
		title = "Traverse"
	}
	bodyID := p.BodyID()
	if bodyID == "" {
		bodyID = "app"
	}

	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n<title>")
	b.WriteString(htmlEscape(title))
	b.WriteString("</title>\n</head>\n<body>\n<div id=\"")
	b.WriteString(htmlEscape(bodyID))
	b.WriteString("\"></div>\n</body>\n</html>\n")
	return b.String(), nil
}

func htmlEscape(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")
	return r.Replace(s)
}

func newRequestID() string {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "req-unknown"
	}
	return hex.EncodeToString(buf[:])
}
