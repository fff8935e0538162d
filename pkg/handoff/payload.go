// Package handoff implements the wire contract between a server render
// and the client boot.
//
// The server serializes two blocks into the rendered document: a route
// table (enough for the client to reconstruct the registry without
// re-running registration logic) and a context block carrying the
// request, the rendered page's chunk id and data, the user, and the
// application domain names. The client reads both exactly once at
// startup; the page named by the context block is hydrated with its
// data verbatim, so no route matching and no data fetching is repeated.
package handoff

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/traverse-web/traverse/pkg/router"
)

// Element ids of the embedded payload blocks.
const (
	RoutesElementID  = "__traverse_routes__"
	ContextElementID = "__traverse_context__"
)

// RouteEntry describes one registered route. Page routes carry the
// serialized matcher and its parameter names; error routes carry the
// status code instead. Both carry the chunk id keying the lazy loader.
type RouteEntry struct {
	Regex string   `json:"regex,omitempty"`
	Code  int      `json:"code,omitempty"`
	Keys  []string `json:"keys,omitempty"`
	Chunk string   `json:"chunk"`
}

// RequestState is the request slice of the context block.
type RequestState struct {
	ID   string         `json:"id"`
	Data map[string]any `json:"data"`
}

// PageState is the rendered-page slice of the context block.
type PageState struct {
	ChunkID string         `json:"chunkId"`
	Data    map[string]any `json:"data"`
}

// Context is the serialized per-render context.
type Context struct {
	Request RequestState `json:"request"`
	Page    PageState    `json:"page"`
	User    any          `json:"user,omitempty"`
	Domains []string     `json:"domains,omitempty"`
}

// Payload is the full hand-off: route table plus context block.
type Payload struct {
	Routes  []RouteEntry `json:"routes"`
	Context Context      `json:"context"`
}

// Build assembles the payload for one server render. Only page routes
// and error routes enter the route table: those are the ones the client
// resolves itself. Plain data endpoints stay server-side and are
// reached through fetchers.
//
// The context block is bound to the calling request: it carries the
// request id and user, so it must be rebuilt per render even when the
// chunk id and page data are shared (a cached static document).
func Build(reg *router.Registry, req *router.Request, chunkID string, data map[string]any, domains []string) *Payload {
	var entries []RouteEntry
	for _, r := range reg.Routes() {
		if !r.IsPage {
			continue
		}
		entries = append(entries, RouteEntry{
			Regex: r.Matcher.Source(),
			Keys:  r.Matcher.Params(),
			Chunk: r.Options.ID,
		})
	}
	for code, e := range reg.ErrorRoutes() {
		entries = append(entries, RouteEntry{Code: code, Chunk: e.Options.ID})
	}

	return &Payload{
		Routes: entries,
		Context: Context{
			Request: RequestState{ID: req.ID, Data: req.Data},
			Page:    PageState{ChunkID: chunkID, Data: data},
			User:    req.User,
			Domains: domains,
		},
	}
}

// Encode serializes the payload as JSON.
func (p *Payload) Encode() ([]byte, error) {
	return json.Marshal(p)
}

// Decode parses a payload produced by Encode.
func Decode(data []byte) (*Payload, error) {
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("handoff: decode payload: %w", err)
	}
	return &p, nil
}

// HTML renders the payload as the two embedded data blocks appended to
// a server-rendered document.
func (p *Payload) HTML() (string, error) {
	routes, err := json.Marshal(p.Routes)
	if err != nil {
		return "", fmt.Errorf("handoff: encode route table: %w", err)
	}
	ctx, err := json.Marshal(p.Context)
	if err != nil {
		return "", fmt.Errorf("handoff: encode context: %w", err)
	}

	var b strings.Builder
	writeBlock(&b, RoutesElementID, routes)
	writeBlock(&b, ContextElementID, ctx)
	return b.String(), nil
}

func writeBlock(b *strings.Builder, id string, data []byte) {
	b.WriteString(`<script id="`)
	b.WriteString(id)
	b.WriteString(`" type="application/json">`)
	// json.Marshal escapes < > & as < etc., so the JSON can never
	// terminate the script element early.
	b.Write(data)
	b.WriteString("</script>\n")
}
