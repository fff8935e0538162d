package engine

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/traverse-web/traverse/pkg/chunk"
	"github.com/traverse-web/traverse/pkg/handoff"
	"github.com/traverse-web/traverse/pkg/page"
	"github.com/traverse-web/traverse/pkg/router"
)

func newRequest(method, path string, accept router.Accept) *router.Request {
	return &router.Request{
		ID:     "t1",
		Method: method,
		Path:   path,
		Data:   map[string]any{},
		Header: make(http.Header),
		Accept: accept,
	}
}

// testRender paints the page's data so assertions can see what was
// resolved.
func testRender(c *router.Ctx, p *page.Page) (string, error) {
	return fmt.Sprintf("<html>%s:%v</html>", p.ChunkID(), p.Data()), nil
}

func newTestEngine(t *testing.T, build func(g *router.Registry, chunks *chunk.Table), cfg Config) *Engine {
	t.Helper()
	g := router.NewRegistry()
	chunks := chunk.NewTable()
	build(g, chunks)

	env := NewLocalEnv(chunks, testRender)
	cfg.Registry = g
	cfg.Env = env
	e := New(cfg)
	env.Attach(e)
	return e
}

func TestScanPriorityAndFallthrough(t *testing.T) {
	var order []string
	e := newTestEngine(t, func(g *router.Registry, _ *chunk.Table) {
		g.Register("GET", "/things/:id", &router.Options{Priority: 10}, func(c *router.Ctx) (router.Result, error) {
			order = append(order, "high")
			return router.Deferred(), nil
		})
		g.Register("GET", "/things/:id", nil, func(c *router.Ctx) (router.Result, error) {
			order = append(order, "low")
			return router.Raw(map[string]any{"id": c.Request.Param("id")}), nil
		})
	}, Config{})

	c := e.NewCtx(newRequest("GET", "/things/7", router.AcceptJSON))
	if err := e.Resolve(c); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if len(order) != 2 || order[0] != "high" || order[1] != "low" {
		t.Fatalf("execution order = %v, want [high low]", order)
	}
	if !c.Response.Provided {
		t.Fatal("response should be provided")
	}
	data, ok := c.Response.Data.(map[string]any)
	if !ok || data["id"] != "7" {
		t.Errorf("response data = %v", c.Response.Data)
	}
}

func TestScanSkipsIncompatibleAccept(t *testing.T) {
	e := newTestEngine(t, func(g *router.Registry, _ *chunk.Table) {
		g.Page("/home", &router.Options{ID: "home"}, func(c *router.Ctx) (router.Result, error) {
			t.Error("page route must not run for a JSON caller")
			return router.Deferred(), nil
		})
		g.Register("GET", "/home", nil, func(c *router.Ctx) (router.Result, error) {
			return router.Raw("data"), nil
		})
	}, Config{})

	c := e.NewCtx(newRequest("GET", "/home", router.AcceptJSON))
	if err := e.Resolve(c); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if c.Response.Data != "data" {
		t.Errorf("response = %v, want data route output", c.Response.Data)
	}
}

func TestExhaustedScanIs404(t *testing.T) {
	e := newTestEngine(t, func(g *router.Registry, _ *chunk.Table) {
		g.Register("GET", "/exists", nil, func(c *router.Ctx) (router.Result, error) {
			return router.Raw(1), nil
		})
	}, Config{})

	c := e.NewCtx(newRequest("GET", "/missing", router.AcceptJSON))
	if err := e.Resolve(c); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if c.Response.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", c.Response.StatusCode)
	}
	body, ok := c.Response.Data.(*ErrorBody)
	if !ok || body.Code != http.StatusNotFound {
		t.Errorf("JSON caller should get structured error, got %#v", c.Response.Data)
	}
}

func TestAuthRequirementRejectsAnonymous(t *testing.T) {
	e := newTestEngine(t, func(g *router.Registry, _ *chunk.Table) {
		g.Register("GET", "/private", &router.Options{Auth: router.AuthAny}, func(c *router.Ctx) (router.Result, error) {
			t.Error("controller must not run without a user")
			return router.Raw(1), nil
		})
	}, Config{})

	c := e.NewCtx(newRequest("GET", "/private", router.AcceptJSON))
	if err := e.Resolve(c); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if c.Response.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", c.Response.StatusCode)
	}
}

func TestAuthRequirementAdmitsUser(t *testing.T) {
	e := newTestEngine(t, func(g *router.Registry, _ *chunk.Table) {
		g.Register("GET", "/private", &router.Options{Auth: router.AuthAny}, func(c *router.Ctx) (router.Result, error) {
			return router.Raw(c.User()), nil
		})
	}, Config{
		DecodeUser: func(c *router.Ctx) (any, error) { return "alice", nil },
	})

	c := e.NewCtx(newRequest("GET", "/private", router.AcceptJSON))
	if err := e.Resolve(c); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if c.Response.Data != "alice" {
		t.Errorf("response = %v, want decoded user", c.Response.Data)
	}
}

func TestUnresolvedRouteUpgradesOnce(t *testing.T) {
	var loads atomic.Int32
	var target *router.Route
	e := newTestEngine(t, func(g *router.Registry, chunks *chunk.Table) {
		chunks.Register("lazy", func(ctx context.Context) (router.Controller, error) {
			loads.Add(1)
			return func(c *router.Ctx) (router.Result, error) {
				return router.Raw("loaded"), nil
			}, nil
		})
		target, _ = g.AddUnresolved("lazy", "^/lazy$", nil, chunks.Loader("lazy"))
	}, Config{})

	for i := 0; i < 3; i++ {
		c := e.NewCtx(newRequest("GET", "/lazy", router.AcceptHTML))
		if err := e.Resolve(c); err != nil {
			t.Fatalf("Resolve %d: %v", i, err)
		}
		if c.Response.Data != "loaded" {
			t.Fatalf("resolve %d response = %v", i, c.Response.Data)
		}
	}

	if got := loads.Load(); got != 1 {
		t.Errorf("chunk loaded %d times, want 1", got)
	}
	if !target.Resolved() {
		t.Error("route should be upgraded in place")
	}
}

func TestPageLifecycleResolvesFetchersLocally(t *testing.T) {
	var apiCalls atomic.Int32
	e := newTestEngine(t, func(g *router.Registry, _ *chunk.Table) {
		g.Page("/posts/:id", &router.Options{ID: "posts_show"}, func(c *router.Ctx) (router.Result, error) {
			p := page.New("renderer", func(c *router.Ctx) (map[string]*page.Fetcher, error) {
				return map[string]*page.Fetcher{
					"post": page.Get("/api/posts/" + c.Request.Param("id")),
				}, nil
			}, page.WithTitle("Post"))
			return router.PageResult(p), nil
		})
		g.Register("GET", "/api/posts/:id", nil, func(c *router.Ctx) (router.Result, error) {
			apiCalls.Add(1)
			return router.Raw(map[string]any{"id": c.Request.Param("id"), "title": "hello"}), nil
		})
	}, Config{Embed: true})

	c := e.NewCtx(newRequest("GET", "/posts/42", router.AcceptHTML))
	if err := e.Resolve(c); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if apiCalls.Load() != 1 {
		t.Errorf("fetcher resolved %d times, want 1", apiCalls.Load())
	}
	html, ok := c.Response.Data.(string)
	if !ok {
		t.Fatalf("response data = %T, want string", c.Response.Data)
	}
	if !strings.Contains(html, "posts_show") || !strings.Contains(html, "hello") {
		t.Errorf("rendered html = %q", html)
	}
	if !strings.Contains(html, handoff.RoutesElementID) || !strings.Contains(html, handoff.ContextElementID) {
		t.Error("hand-off payload blocks should be embedded")
	}
	if ct := c.Response.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("content type = %q", ct)
	}
	if c.Page == nil || c.Page.ChunkID() != "posts_show" {
		t.Error("ctx should expose the rendered page")
	}
}

func TestFetcherFailureTransfersToErrorChain(t *testing.T) {
	e := newTestEngine(t, func(g *router.Registry, _ *chunk.Table) {
		g.Page("/posts/:id", &router.Options{ID: "posts_show"}, func(c *router.Ctx) (router.Result, error) {
			p := page.New(nil, func(c *router.Ctx) (map[string]*page.Fetcher, error) {
				return map[string]*page.Fetcher{"post": page.Get("/api/missing")}, nil
			})
			return router.PageResult(p), nil
		})
		g.Error(http.StatusNotFound, nil, func(c *router.Ctx) (router.Result, error) {
			return router.Raw("<h1>not found</h1>"), nil
		})
	}, Config{})

	c := e.NewCtx(newRequest("GET", "/posts/1", router.AcceptHTML))
	if err := e.Resolve(c); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if c.Response.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", c.Response.StatusCode)
	}
	if c.Response.Data != "<h1>not found</h1>" {
		t.Errorf("response = %v, want error route output", c.Response.Data)
	}
	if c.Err == nil || c.Err.Code != http.StatusNotFound {
		t.Errorf("c.Err = %v", c.Err)
	}
}

func TestStaticPageServedFromCache(t *testing.T) {
	var renders atomic.Int32
	e := newTestEngine(t, func(g *router.Registry, _ *chunk.Table) {
		g.Page("/about", &router.Options{ID: "about", Static: true}, func(c *router.Ctx) (router.Result, error) {
			renders.Add(1)
			return router.PageResult(page.New(nil, nil)), nil
		})
	}, Config{})

	for i := 0; i < 3; i++ {
		c := e.NewCtx(newRequest("GET", "/about", router.AcceptHTML))
		if err := e.Resolve(c); err != nil {
			t.Fatalf("Resolve %d: %v", i, err)
		}
		if _, ok := c.Response.Data.(string); !ok {
			t.Fatalf("resolve %d produced no document", i)
		}
	}

	if got := renders.Load(); got != 1 {
		t.Errorf("static page controller ran %d times, want 1", got)
	}
}

func TestStaticCacheDoesNotReplayCallerIdentity(t *testing.T) {
	var renders atomic.Int32
	e := newTestEngine(t, func(g *router.Registry, _ *chunk.Table) {
		g.Page("/about", &router.Options{ID: "about", Static: true}, func(c *router.Ctx) (router.Result, error) {
			renders.Add(1)
			return router.PageResult(page.New(nil, nil)), nil
		})
	}, Config{
		Embed: true,
		DecodeUser: func(c *router.Ctx) (any, error) {
			if u := c.Request.Header.Get("X-User"); u != "" {
				return map[string]any{"id": u}, nil
			}
			return nil, nil
		},
	})

	resolve := func(id, user string) string {
		req := newRequest("GET", "/about", router.AcceptHTML)
		req.ID = id
		req.Header.Set("X-User", user)
		c := e.NewCtx(req)
		if err := e.Resolve(c); err != nil {
			t.Fatalf("Resolve(%s): %v", id, err)
		}
		html, ok := c.Response.Data.(string)
		if !ok {
			t.Fatalf("Resolve(%s) produced no document", id)
		}
		return html
	}

	first := resolve("req-alice", "alice")
	second := resolve("req-bob", "bob")

	if renders.Load() != 1 {
		t.Fatalf("controller ran %d times, want cached second serve", renders.Load())
	}
	if !strings.Contains(first, "req-alice") || !strings.Contains(first, "alice") {
		t.Errorf("first document missing its own context: %q", first)
	}
	if strings.Contains(second, "alice") || strings.Contains(second, "req-alice") {
		t.Error("cached document replayed the first caller's identity")
	}
	if !strings.Contains(second, "req-bob") || !strings.Contains(second, "bob") {
		t.Errorf("second document missing its own context: %q", second)
	}
}

func TestDeferredRouteParamsDoNotLeak(t *testing.T) {
	e := newTestEngine(t, func(g *router.Registry, _ *chunk.Table) {
		g.Register("GET", "/things/:id", &router.Options{Priority: 10}, func(c *router.Ctx) (router.Result, error) {
			return router.Deferred(), nil
		})
		g.Register("GET", "/things/*", nil, func(c *router.Ctx) (router.Result, error) {
			_, leaked := c.Request.Data["id"]
			return router.Raw(leaked), nil
		})
	}, Config{})

	c := e.NewCtx(newRequest("GET", "/things/7", router.AcceptJSON))
	if err := e.Resolve(c); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if c.Response.Data != false {
		t.Error("deferred route's captures leaked into the next candidate")
	}
}

func TestDeferredRouteRestoresShadowedData(t *testing.T) {
	e := newTestEngine(t, func(g *router.Registry, _ *chunk.Table) {
		g.Register("GET", "/things/:id", &router.Options{Priority: 10}, func(c *router.Ctx) (router.Result, error) {
			return router.Deferred(), nil
		})
		g.Register("GET", "/things/*", nil, func(c *router.Ctx) (router.Result, error) {
			return router.Raw(c.Request.Data["id"]), nil
		})
	}, Config{})

	req := newRequest("GET", "/things/7", router.AcceptJSON)
	req.Data["id"] = "from-query"
	c := e.NewCtx(req)
	if err := e.Resolve(c); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if c.Response.Data != "from-query" {
		t.Errorf("data = %v, want the query value restored", c.Response.Data)
	}
}

func TestPanicBecomesInternalError(t *testing.T) {
	reported := 0
	e := newTestEngine(t, func(g *router.Registry, _ *chunk.Table) {
		g.Register("GET", "/boom", nil, func(c *router.Ctx) (router.Result, error) {
			panic("kaboom")
		})
	}, Config{
		Production: true,
		Reporter: reporterFunc(func(origin string, err error) {
			reported++
		}),
	})

	c := e.NewCtx(newRequest("GET", "/boom", router.AcceptJSON))
	if err := e.Resolve(c); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if c.Response.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", c.Response.StatusCode)
	}
	body, ok := c.Response.Data.(*ErrorBody)
	if !ok {
		t.Fatalf("response = %#v, want structured error", c.Response.Data)
	}
	if body.Message != "internal error" {
		t.Errorf("production message = %q, want masked", body.Message)
	}
	if reported != 1 {
		t.Errorf("reporter called %d times, want 1", reported)
	}
}

type reporterFunc func(origin string, err error)

func (f reporterFunc) Report(origin string, err error) { f(origin, err) }

func TestErrorPageIgnoredForJSONCallers(t *testing.T) {
	e := newTestEngine(t, func(g *router.Registry, _ *chunk.Table) {
		g.Error(http.StatusNotFound, &router.Options{ID: "err404"}, func(c *router.Ctx) (router.Result, error) {
			return router.PageResult(page.New(nil, nil)), nil
		})
	}, Config{})

	c := e.NewCtx(newRequest("GET", "/nope", router.AcceptJSON))
	if err := e.Resolve(c); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	body, ok := c.Response.Data.(*ErrorBody)
	if !ok || body.Code != http.StatusNotFound {
		t.Errorf("JSON caller should get the plain error shape, got %#v", c.Response.Data)
	}
}

func TestResolveBatchPartialSuccess(t *testing.T) {
	e := newTestEngine(t, func(g *router.Registry, _ *chunk.Table) {
		g.Register("GET", "/api/ok", nil, func(c *router.Ctx) (router.Result, error) {
			return router.Raw(map[string]any{"n": 1}), nil
		})
		g.Register("POST", "/api/echo", nil, func(c *router.Ctx) (router.Result, error) {
			return router.Raw(c.Request.Data["msg"]), nil
		})
	}, Config{})

	parent := e.NewCtx(newRequest("POST", BatchPath, router.AcceptJSON))
	br, err := DecodeBatch([]byte(`{
		"fetchers": {
			"a": {"method": "GET", "path": "/api/ok"},
			"b": {"method": "POST", "path": "/api/echo", "data": {"msg": "hi"}},
			"c": {"method": "GET", "path": "/api/missing"}
		}
	}`))
	if err != nil {
		t.Fatalf("DecodeBatch: %v", err)
	}

	out := e.ResolveBatch(parent, br)
	if len(out) != 3 {
		t.Fatalf("results = %v, want 3 entries", out)
	}
	if m, ok := out["a"].(map[string]any); !ok || m["n"] != 1 {
		t.Errorf("a = %#v", out["a"])
	}
	if out["b"] != "hi" {
		t.Errorf("b = %#v, want echoed data", out["b"])
	}
	f, ok := out["c"].(*BatchFailure)
	if !ok || !f.Failed || f.Code != http.StatusNotFound {
		t.Errorf("c = %#v, want a 404 failure entry", out["c"])
	}
}

func TestDecodeBatchRejectsGarbage(t *testing.T) {
	if _, err := DecodeBatch([]byte("not json")); router.CodeOf(err) != http.StatusBadRequest {
		t.Errorf("garbage body should be a 400, got %v", err)
	}
	if _, err := DecodeBatch([]byte(`{"fetchers":{}}`)); router.CodeOf(err) != http.StatusBadRequest {
		t.Errorf("empty batch should be a 400, got %v", err)
	}
}

func TestNegotiate(t *testing.T) {
	cases := []struct {
		accept string
		want   router.Accept
	}{
		{"text/html,application/xhtml+xml", router.AcceptHTML},
		{"application/json", router.AcceptJSON},
		{"application/vnd.api+json", router.AcceptJSON},
		{"*/*", router.AcceptHTML},
		{"", router.AcceptHTML},
		{"text/plain", router.AcceptText},
	}
	for _, tc := range cases {
		h := make(http.Header)
		if tc.accept != "" {
			h.Set("Accept", tc.accept)
		}
		if got := Negotiate(h); got != tc.want {
			t.Errorf("Negotiate(%q) = %q, want %q", tc.accept, got, tc.want)
		}
	}
}
