package engine

import (
	"fmt"

	"github.com/traverse-web/traverse/pkg/chunk"
	"github.com/traverse-web/traverse/pkg/page"
	"github.com/traverse-web/traverse/pkg/router"
)

// RenderFunc produces a document for a resolved page.
type RenderFunc func(c *router.Ctx, p *page.Page) (string, error)

// LocalEnv is the server-side environment: controllers come from the
// chunk table, fetchers resolve as in-process child resolutions, and
// pages render to HTML through the injected renderer.
type LocalEnv struct {
	chunks *chunk.Table
	render RenderFunc
	engine *Engine
}

// NewLocalEnv builds the server environment. Attach must be called
// with the owning engine before the first resolution.
func NewLocalEnv(chunks *chunk.Table, render RenderFunc) *LocalEnv {
	return &LocalEnv{chunks: chunks, render: render}
}

// Attach binds the environment to its engine. The cycle is inherent:
// the engine resolves through the environment, and local fetcher
// resolution re-enters the engine.
func (l *LocalEnv) Attach(e *Engine) { l.engine = e }

// LoadController loads a chunk's controller from the table.
func (l *LocalEnv) LoadController(c *router.Ctx, chunkID string) (router.Controller, error) {
	return l.chunks.Load(c.StdContext(), chunkID)
}

// ResolveFetchers resolves a page's fetchers as child resolutions. Any
// failure aborts the page: a server render cannot partially paint, so
// the failure transfers to the error chain.
func (l *LocalEnv) ResolveFetchers(c *router.Ctx, pending map[string]*page.Fetcher) (map[string]any, error) {
	results := make(map[string]any, len(pending))
	for id, f := range pending {
		v, err := l.engine.resolveChild(c, id, f.Method, f.Path, f.Data)
		if err != nil {
			return nil, fmt.Errorf("fetcher %q: %w", id, err)
		}
		results[id] = v
	}
	return results, nil
}

// Render produces the page's HTML document.
func (l *LocalEnv) Render(c *router.Ctx, p *page.Page) (string, error) {
	if l.render == nil {
		return "", router.Internal(fmt.Errorf("engine: no renderer configured"))
	}
	return l.render(c, p)
}
