// Package client implements the browser-side half of the shared route
// model: booting from the server's hand-off payload, hydrating the
// current page without refetching, and resolving later navigations
// in-page with lazily loaded controllers and batched data calls.
package client

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/traverse-web/traverse/pkg/chunk"
	"github.com/traverse-web/traverse/pkg/engine"
	"github.com/traverse-web/traverse/pkg/handoff"
	"github.com/traverse-web/traverse/pkg/page"
	"github.com/traverse-web/traverse/pkg/router"
)

// DefaultDiscardGrace is how long a replaced page keeps its data alive
// for exit transitions before it is marked discarded.
const DefaultDiscardGrace = 300 * time.Millisecond

// Config assembles a client.
type Config struct {
	// Payload is the decoded hand-off payload read from the document.
	Payload *handoff.Payload

	// Chunks maps chunk ids to dynamic-import loaders. The current
	// page's chunk must load synchronously: it ships in the boot
	// bundle.
	Chunks *chunk.Table

	// API carries batched fetcher calls to the server.
	API APIClient

	// Render applies a resolved page to the document.
	Render engine.RenderFunc

	// Layouts are the client-side layout values, keyed like server
	// registrations.
	Layouts map[string]any

	// Domains are the client-side application services.
	Domains map[string]any

	Logger *slog.Logger

	// DiscardGrace overrides DefaultDiscardGrace. Zero uses the
	// default; negative discards replaced pages immediately.
	DiscardGrace time.Duration

	// OnError is invoked for failures with no error route.
	OnError func(c *router.Ctx, failure *router.Error)
}

// Client owns the in-page navigation lifecycle. Navigations are
// serial; at most one page is current at a time.
type Client struct {
	engine *engine.Engine
	env    *RemoteEnv
	logger *slog.Logger
	grace  time.Duration

	seq atomic.Int64

	mu      sync.Mutex
	current *page.Page
}

// Boot reconstructs the registry from the payload's route table,
// hydrates the server-rendered page with its data verbatim, and
// returns a client ready to navigate. A fully hydrated page performs
// zero fetch calls here.
func Boot(cfg Config) (*Client, error) {
	if cfg.Payload == nil {
		return nil, fmt.Errorf("client: boot requires a payload")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	grace := cfg.DiscardGrace
	if grace == 0 {
		grace = DefaultDiscardGrace
	}

	g := router.NewRegistry()
	for _, entry := range cfg.Payload.Routes {
		loader := cfg.Chunks.Loader(entry.Chunk)
		var err error
		if entry.Code != 0 {
			_, err = g.AddUnresolvedError(entry.Code, entry.Chunk, loader)
		} else {
			_, err = g.AddUnresolved(entry.Chunk, entry.Regex, entry.Keys, loader)
		}
		if err != nil {
			return nil, fmt.Errorf("client: route table entry %q: %w", entry.Chunk, err)
		}
	}
	for key, layout := range cfg.Layouts {
		g.Layout(key, layout)
	}

	env := NewRemoteEnv(cfg.Chunks, cfg.API, cfg.Render)
	e := engine.New(engine.Config{
		Registry: g,
		Env:      env,
		Logger:   logger,
		Domains:  cfg.Domains,
		OnError:  cfg.OnError,
	})

	cl := &Client{engine: e, env: env, logger: logger, grace: grace}
	if err := cl.hydrate(cfg.Payload); err != nil {
		return nil, err
	}
	return cl, nil
}

// Engine exposes the client's resolution engine, mainly for tests and
// devtools.
func (cl *Client) Engine() *engine.Engine { return cl.engine }

// Current returns the page on screen.
func (cl *Client) Current() *page.Page {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	return cl.current
}

// hydrate brings the server-rendered page to life: the chunk named by
// the context block is executed directly, no route matching, and the
// page is seeded with the hand-off data so the first paint fetches
// nothing it already has.
func (cl *Client) hydrate(payload *handoff.Payload) error {
	st := payload.Context
	data := st.Request.Data
	if data == nil {
		data = map[string]any{}
	}
	req := &router.Request{
		ID:     st.Request.ID,
		Method: http.MethodGet,
		Data:   data,
		Header: make(http.Header),
		Accept: router.AcceptHTML,
		User:   st.User,
	}
	c := cl.engine.NewCtx(req)

	ctrl, err := cl.env.LoadController(c, st.Page.ChunkID)
	if err != nil {
		return fmt.Errorf("client: hydrate: %w", err)
	}

	var route *router.Route
	for _, r := range cl.engine.Registry().Routes() {
		if r.Options.ID == st.Page.ChunkID {
			route = r
			break
		}
	}
	if route != nil {
		route.Upgrade(ctrl)
		c.Route = route
	}

	res, err := ctrl(c)
	if err != nil {
		return fmt.Errorf("client: hydrate: %w", err)
	}
	p, ok := res.Page.(*page.Page)
	if res.Kind != router.KindPage || !ok {
		return fmt.Errorf("client: hydrate: chunk %q did not produce a page", st.Page.ChunkID)
	}

	var layout any
	if route != nil {
		layout = route.Layout()
	}
	p.Bind(st.Page.ChunkID, layout)
	p.Hydrate(st.Page.Data)

	if err := p.Declare(c); err != nil {
		return fmt.Errorf("client: hydrate: %w", err)
	}
	if pending := p.Pending(); len(pending) > 0 {
		// The payload did not cover every declared fetcher; fill the
		// gaps through the batch endpoint.
		results, err := cl.env.ResolveFetchers(c, pending)
		if err != nil {
			return fmt.Errorf("client: hydrate: %w", err)
		}
		p.MergeData(results)
	} else {
		p.MergeData(nil)
	}
	p.SetStatus(page.StatusFetched)
	c.Page = p

	if _, err := cl.env.Render(c, p); err != nil {
		return fmt.Errorf("client: hydrate: %w", err)
	}

	p.SetStatus(page.StatusCurrent)
	cl.mu.Lock()
	cl.current = p
	cl.mu.Unlock()
	return nil
}

// Navigate resolves a path in-page. Navigations are serial; when a
// newer navigation starts while this one is queued or resolving, this
// one's outcome is dropped instead of flashing a stale page.
func (cl *Client) Navigate(path string) error {
	token := cl.seq.Add(1)

	cl.mu.Lock()
	defer cl.mu.Unlock()
	if cl.seq.Load() != token {
		return nil
	}

	req := &router.Request{
		ID:     fmt.Sprintf("nav-%d", token),
		Method: http.MethodGet,
		Path:   path,
		Data:   map[string]any{},
		Header: make(http.Header),
		Accept: router.AcceptHTML,
	}
	c := cl.engine.NewCtx(req)

	if err := cl.engine.Resolve(c); err != nil {
		return err
	}
	if cl.seq.Load() != token {
		return nil
	}

	cl.commit(c)
	return nil
}

// Reload refetches the current page's data and re-renders it in place.
// A page that has completed its first fetch pass refetches every
// declared fetcher, including ids originally satisfied by the SSR
// hand-off; the page stays current throughout.
func (cl *Client) Reload() error {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	p := cl.current
	if p == nil {
		return nil
	}

	req := &router.Request{
		ID:     "reload-" + p.ChunkID(),
		Method: http.MethodGet,
		Data:   map[string]any{},
		Header: make(http.Header),
		Accept: router.AcceptHTML,
	}
	c := cl.engine.NewCtx(req)
	c.Page = p

	if pending := p.Pending(); len(pending) > 0 {
		results, err := cl.env.ResolveFetchers(c, pending)
		if err != nil {
			return err
		}
		p.MergeData(results)
	}
	if _, err := cl.env.Render(c, p); err != nil {
		return err
	}
	return nil
}

// commit swaps the current page. The replaced page stays alive for the
// discard grace so exit transitions can still read its data.
func (cl *Client) commit(c *router.Ctx) {
	next, _ := c.Page.(*page.Page)
	if next == nil {
		return
	}
	prev := cl.current
	next.SetStatus(page.StatusCurrent)
	cl.current = next

	if prev == nil || prev == next {
		return
	}
	if cl.grace <= 0 {
		prev.SetStatus(page.StatusDiscarded)
		return
	}
	time.AfterFunc(cl.grace, func() {
		prev.SetStatus(page.StatusDiscarded)
	})
}
