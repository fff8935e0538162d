package engine

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/traverse-web/traverse/pkg/router"
)

// BatchPath is the single server endpoint client fetchers are batched
// through.
const BatchPath = "/api"

// BatchFetcher is one named sub-request in a batch.
type BatchFetcher struct {
	Method string         `json:"method"`
	Path   string         `json:"path"`
	Data   map[string]any `json:"data,omitempty"`
}

// BatchRequest is the batch endpoint's input shape.
type BatchRequest struct {
	Fetchers map[string]BatchFetcher `json:"fetchers"`
}

// BatchFailure is the result shape of a sub-request that failed. Its
// Failed marker distinguishes it from successful results that happen
// to carry code and message fields.
type BatchFailure struct {
	Failed  bool   `json:"failed"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// DecodeBatch parses a batch request body.
func DecodeBatch(body []byte) (*BatchRequest, error) {
	var br BatchRequest
	if err := json.Unmarshal(body, &br); err != nil {
		return nil, router.BadRequestf("invalid batch request: %v", err)
	}
	if len(br.Fetchers) == 0 {
		return nil, router.BadRequest("batch request names no fetchers")
	}
	return &br, nil
}

// ResolveBatch resolves every fetcher of a batch as an in-process
// child resolution and returns the results keyed by fetcher id.
// Failures are partial: a failed fetcher yields a BatchFailure in its
// slot and does not affect its siblings.
func (e *Engine) ResolveBatch(parent *router.Ctx, br *BatchRequest) map[string]any {
	out := make(map[string]any, len(br.Fetchers))
	for id, f := range br.Fetchers {
		v, err := e.resolveChild(parent, id, f.Method, f.Path, f.Data)
		if err != nil {
			failure := router.AsError(err)
			if failure.Code >= http.StatusInternalServerError {
				e.report(parent, failure)
				if e.cfg.Production {
					failure = &router.Error{Code: failure.Code, Message: "internal error"}
				}
			}
			out[id] = &BatchFailure{Failed: true, Code: failure.Code, Message: failure.Message}
			continue
		}
		out[id] = v
	}
	return out
}

// resolveChild runs one sub-request through the route scan. The child
// inherits the parent's identity (headers, cookies, decoded user) but
// owns its request, response, and data bag; it always negotiates JSON.
// Middleware and the error chain belong to the parent resolution and
// are not re-entered.
func (e *Engine) resolveChild(parent *router.Ctx, id, method, path string, data map[string]any) (any, error) {
	if method == "" {
		method = http.MethodGet
	}
	if path == "" {
		return nil, router.BadRequestf("fetcher %q has no path", id)
	}
	bag := make(map[string]any, len(data))
	for k, v := range data {
		bag[k] = v
	}

	req := &router.Request{
		ID:      fmt.Sprintf("%s:%s", parent.Request.ID, id),
		Method:  method,
		Path:    path,
		Data:    bag,
		Header:  parent.Request.Header,
		Cookies: parent.Request.Cookies,
		Accept:  router.AcceptJSON,
		User:    parent.Request.User,
	}
	c := router.NewCtx(parent.StdContext(), req, e.cfg.Domains, e.logger)

	if err := e.scan(c); err != nil {
		return nil, err
	}
	return c.Response.Data, nil
}
