package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/traverse-web/traverse/pkg/chunk"
	"github.com/traverse-web/traverse/pkg/engine"
	"github.com/traverse-web/traverse/pkg/page"
	"github.com/traverse-web/traverse/pkg/router"
)

// APIClient carries a batch request to the server and returns the raw
// response body.
type APIClient interface {
	Batch(ctx context.Context, body []byte) ([]byte, error)
}

// HTTPAPIClient posts batches to the server's batch endpoint.
type HTTPAPIClient struct {
	// BaseURL is the server origin, without a trailing slash.
	BaseURL string

	// Client is the HTTP client; http.DefaultClient when nil.
	Client *http.Client
}

// Batch posts the body to the batch endpoint. Transport failures map to
// the code-0 network error; a non-200 response is an internal failure,
// since per-fetcher errors travel inside a 200 body.
func (h *HTTPAPIClient) Batch(ctx context.Context, body []byte) ([]byte, error) {
	hc := h.Client
	if hc == nil {
		hc = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.BaseURL+engine.BatchPath, bytes.NewReader(body))
	if err != nil {
		return nil, router.Internal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		return nil, router.NetworkError(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, router.NetworkError(err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, router.Internal(fmt.Errorf("client: batch endpoint returned %d", resp.StatusCode))
	}
	return data, nil
}

// RemoteEnv is the client-side environment: controllers come from the
// chunk table's dynamic-import loaders, fetchers resolve through one
// batched call to the server, and rendering patches the document.
type RemoteEnv struct {
	chunks *chunk.Table
	api    APIClient
	render engine.RenderFunc
}

// NewRemoteEnv builds the client environment.
func NewRemoteEnv(chunks *chunk.Table, api APIClient, render engine.RenderFunc) *RemoteEnv {
	return &RemoteEnv{chunks: chunks, api: api, render: render}
}

// LoadController loads a chunk's controller, coalescing concurrent
// loads through the table.
func (r *RemoteEnv) LoadController(c *router.Ctx, chunkID string) (router.Controller, error) {
	return r.chunks.Load(c.StdContext(), chunkID)
}

// ResolveFetchers sends every pending fetcher in one batch. Failed
// entries abort the page: its data is incomplete, so the first failure
// transfers to the error chain with its original code.
func (r *RemoteEnv) ResolveFetchers(c *router.Ctx, pending map[string]*page.Fetcher) (map[string]any, error) {
	br := engine.BatchRequest{Fetchers: make(map[string]engine.BatchFetcher, len(pending))}
	for id, f := range pending {
		br.Fetchers[id] = engine.BatchFetcher{Method: f.Method, Path: f.Path, Data: f.Data}
	}
	body, err := json.Marshal(&br)
	if err != nil {
		return nil, router.Internal(err)
	}

	raw, err := r.api.Batch(c.StdContext(), body)
	if err != nil {
		return nil, err
	}

	var results map[string]any
	if err := json.Unmarshal(raw, &results); err != nil {
		return nil, router.Internal(fmt.Errorf("client: batch response: %w", err))
	}

	for id, v := range results {
		if failure, ok := asBatchFailure(v); ok {
			return nil, &router.Error{Code: failure.Code, Message: fmt.Sprintf("fetcher %q: %s", id, failure.Message)}
		}
	}
	return results, nil
}

// Render patches the document through the injected renderer.
func (r *RemoteEnv) Render(c *router.Ctx, p *page.Page) (string, error) {
	if r.render == nil {
		return "", nil
	}
	return r.render(c, p)
}

// asBatchFailure recognizes the failure shape inside a decoded batch
// result entry.
func asBatchFailure(v any) (*engine.BatchFailure, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	failed, ok := m["failed"].(bool)
	if !ok || !failed {
		return nil, false
	}
	f := &engine.BatchFailure{Failed: true}
	if code, ok := m["code"].(float64); ok {
		f.Code = int(code)
	}
	if msg, ok := m["message"].(string); ok {
		f.Message = msg
	}
	return f, true
}
