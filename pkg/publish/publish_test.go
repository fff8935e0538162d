package publish

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/traverse-web/traverse/pkg/chunk"
	"github.com/traverse-web/traverse/pkg/engine"
	"github.com/traverse-web/traverse/pkg/page"
	"github.com/traverse-web/traverse/pkg/router"
)

func TestKey(t *testing.T) {
	cases := map[string]string{
		"/":           "index.html",
		"/about":      "about/index.html",
		"/docs/setup": "docs/setup/index.html",
	}
	for path, want := range cases {
		if got := Key(path); got != want {
			t.Errorf("Key(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestExportWritesStaticRoutes(t *testing.T) {
	g := router.NewRegistry()
	pageCtrl := func(c *router.Ctx) (router.Result, error) {
		return router.PageResult(page.New(nil, nil)), nil
	}
	g.Page("/", &router.Options{ID: "home", Static: true}, pageCtrl)
	g.Page("/about", &router.Options{ID: "about", Static: true}, pageCtrl)
	// Not static: must not be exported.
	g.Page("/live", &router.Options{ID: "live"}, pageCtrl)
	// Parameterized: skipped with a warning.
	g.Page("/posts/:id", &router.Options{ID: "posts_show", Static: true}, pageCtrl)

	env := engine.NewLocalEnv(chunk.NewTable(), func(c *router.Ctx, p *page.Page) (string, error) {
		return "<html>" + c.Request.Path + "</html>", nil
	})
	e := engine.New(engine.Config{Registry: g, Env: env})
	env.Attach(e)

	dir := t.TempDir()
	x := NewExporter(e, &DirStore{Root: dir}, nil)

	count, err := x.Export(context.Background())
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if count != 2 {
		t.Fatalf("exported %d documents, want 2", count)
	}

	home, err := os.ReadFile(filepath.Join(dir, "index.html"))
	if err != nil {
		t.Fatalf("read home: %v", err)
	}
	if !strings.Contains(string(home), "/") {
		t.Errorf("home = %q", home)
	}
	if _, err := os.Stat(filepath.Join(dir, "about", "index.html")); err != nil {
		t.Errorf("about not exported: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "live", "index.html")); err == nil {
		t.Error("non-static route must not be exported")
	}
}
