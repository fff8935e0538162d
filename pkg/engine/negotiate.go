package engine

import (
	"net/http"
	"strings"

	"github.com/traverse-web/traverse/pkg/router"
)

// Negotiate maps an incoming Accept header to the response format the
// resolution will produce. Markup wins whenever the caller accepts it;
// a wildcard or absent header is treated as a browser.
func Negotiate(h http.Header) router.Accept {
	accept := h.Get("Accept")
	switch {
	case accept == "", strings.Contains(accept, "text/html"),
		strings.Contains(accept, "application/xhtml"),
		strings.Contains(accept, "*/*"):
		return router.AcceptHTML
	case strings.Contains(accept, "application/json"),
		strings.Contains(accept, "+json"):
		return router.AcceptJSON
	}
	return router.AcceptText
}
