package handoff

import (
	"net/http"
	"strings"
	"testing"

	"github.com/traverse-web/traverse/pkg/router"
)

func buildTestPayload(t *testing.T) *Payload {
	t.Helper()

	g := router.NewRegistry()
	ctrl := func(c *router.Ctx) (router.Result, error) { return router.Raw(nil), nil }

	if _, err := g.Page("/posts/:id", &router.Options{ID: "posts_show"}, ctrl); err != nil {
		t.Fatalf("Page: %v", err)
	}
	if _, err := g.Register("GET", "/api/posts/:id", nil, ctrl); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := g.Error(http.StatusNotFound, &router.Options{ID: "err404"}, ctrl); err != nil {
		t.Fatalf("Error: %v", err)
	}
	g.Seal()

	req := &router.Request{
		ID:   "req-1",
		Data: map[string]any{"id": "42"},
		User: map[string]any{"name": "alice"},
	}
	data := map[string]any{"post": map[string]any{"title": "hello"}}
	return Build(g, req, "posts_show", data, []string{"posts", "users"})
}

func TestBuildIncludesPageAndErrorRoutesOnly(t *testing.T) {
	p := buildTestPayload(t)

	if len(p.Routes) != 2 {
		t.Fatalf("route table has %d entries, want 2 (page + error): %+v", len(p.Routes), p.Routes)
	}

	var pageEntry, errEntry *RouteEntry
	for i := range p.Routes {
		if p.Routes[i].Code != 0 {
			errEntry = &p.Routes[i]
		} else {
			pageEntry = &p.Routes[i]
		}
	}
	if pageEntry == nil || errEntry == nil {
		t.Fatal("expected one page entry and one error entry")
	}
	if pageEntry.Chunk != "posts_show" || len(pageEntry.Keys) != 1 || pageEntry.Keys[0] != "id" {
		t.Errorf("page entry = %+v", pageEntry)
	}
	if pageEntry.Regex == "" {
		t.Error("page entry must carry the matcher source")
	}
	if errEntry.Code != 404 || errEntry.Chunk != "err404" {
		t.Errorf("error entry = %+v", errEntry)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	p := buildTestPayload(t)

	data, err := p.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	back, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if back.Context.Request.ID != "req-1" {
		t.Errorf("request id = %q", back.Context.Request.ID)
	}
	if back.Context.Page.ChunkID != "posts_show" {
		t.Errorf("page chunk = %q", back.Context.Page.ChunkID)
	}
	if back.Context.Request.Data["id"] != "42" {
		t.Errorf("request data = %v", back.Context.Request.Data)
	}
	if len(back.Routes) != len(p.Routes) {
		t.Errorf("routes = %d, want %d", len(back.Routes), len(p.Routes))
	}
}

func TestHTMLEscapesScriptTerminator(t *testing.T) {
	p := buildTestPayload(t)
	p.Context.Page.Data = map[string]any{"html": "</script><script>alert(1)</script>"}

	html, err := p.HTML()
	if err != nil {
		t.Fatalf("HTML: %v", err)
	}
	if !strings.Contains(html, RoutesElementID) || !strings.Contains(html, ContextElementID) {
		t.Error("both payload blocks should be present")
	}

	// The only literal close tags are the two that end the blocks;
	// everything inside the JSON must be escaped.
	if got := strings.Count(html, "</script>"); got != 2 {
		t.Errorf("found %d </script> occurrences, want exactly 2", got)
	}
	if !strings.Contains(html, `\u003c/script`) {
		t.Error("embedded close tag should be unicode-escaped in the JSON blocks")
	}
}
