// Package publish exports static page routes as rendered HTML files.
//
// Routes registered with Options.Static have deterministic output, so
// their documents can be rendered once at deploy time and pushed to a
// file tree or an object store fronting a CDN.
package publish

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/traverse-web/traverse/pkg/engine"
	"github.com/traverse-web/traverse/pkg/router"
)

// Store receives exported documents.
type Store interface {
	Put(ctx context.Context, key, contentType string, body []byte) error
}

// Exporter renders every exportable route through an engine and writes
// the documents to a store.
type Exporter struct {
	engine *engine.Engine
	store  Store
	logger *slog.Logger
}

// NewExporter builds an exporter over a booted engine.
func NewExporter(e *engine.Engine, store Store, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{engine: e, store: store, logger: logger}
}

// Export renders and writes every static page route with a literal
// path. Parameterized patterns have no enumerable paths and are
// skipped with a warning. The first failure aborts the export.
func (x *Exporter) Export(ctx context.Context) (int, error) {
	count := 0
	for _, r := range x.engine.Registry().Routes() {
		if !r.IsPage || !r.Options.Static {
			continue
		}
		if r.Path == "" || strings.ContainsAny(r.Path, ":*") {
			x.logger.Warn("skipping non-literal static route", "id", r.Options.ID, "path", r.Path)
			continue
		}
		if err := x.exportOne(ctx, r); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

func (x *Exporter) exportOne(ctx context.Context, r *router.Route) error {
	req := &router.Request{
		ID:     "export:" + r.Options.ID,
		Method: http.MethodGet,
		Path:   r.Path,
		Data:   map[string]any{},
		Header: make(http.Header),
		Accept: router.AcceptHTML,
	}
	c := router.NewCtx(ctx, req, nil, x.logger)

	if err := x.engine.Resolve(c); err != nil {
		return fmt.Errorf("publish: resolve %s: %w", r.Path, err)
	}
	if c.Err != nil {
		return fmt.Errorf("publish: resolve %s: %w", r.Path, c.Err)
	}
	html, ok := c.Response.Data.(string)
	if !ok {
		return fmt.Errorf("publish: route %s produced no document", r.Path)
	}

	key := Key(r.Path)
	if err := x.store.Put(ctx, key, "text/html; charset=utf-8", []byte(html)); err != nil {
		return fmt.Errorf("publish: put %s: %w", key, err)
	}
	x.logger.Info("exported", "path", r.Path, "key", key)
	return nil
}

// Key maps a route path to its exported object key: "/" becomes
// index.html, "/about" becomes about/index.html.
func Key(path string) string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return "index.html"
	}
	return trimmed + "/index.html"
}
