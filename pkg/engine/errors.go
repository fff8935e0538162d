package engine

import (
	"net/http"

	"github.com/traverse-web/traverse/pkg/page"
	"github.com/traverse-web/traverse/pkg/router"
)

// ErrorBody is the structured error shape JSON-accepting callers
// receive.
type ErrorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// fail runs the error chain for a failed resolution: normalize, report
// and mask 500s, try the registered error route for the code, and fall
// back to a bare response in the negotiated format. It returns nil in
// every case; the failure is expressed through c.Response.
func (e *Engine) fail(c *router.Ctx, err error) error {
	failure := router.AsError(err)

	if failure.Code >= http.StatusInternalServerError {
		e.report(c, failure)
		if e.cfg.Production {
			failure = &router.Error{
				Code:    failure.Code,
				Message: "internal error",
				Err:     failure.Err,
			}
		}
	}

	c.Err = failure
	if failure.Code > 0 {
		c.Response.SetStatus(failure.Code)
	}

	er := e.reg.ErrorRoute(failure.Code)
	if er == nil {
		e.fallback(c, failure)
		return nil
	}
	if !e.tryErrorRoute(c, er, failure) {
		e.fallback(c, failure)
	}
	return nil
}

// tryErrorRoute executes the error controller through the normal
// controller protocol. It reports whether output was produced; any
// secondary failure is logged and degrades to the fallback rather than
// re-entering the chain.
func (e *Engine) tryErrorRoute(c *router.Ctx, er *router.ErrorRoute, failure *router.Error) bool {
	ctrl := er.Controller()
	if ctrl == nil {
		loaded, err := e.load(c, er.Options.ID, er.Loader)
		if err != nil {
			c.Logger.Error("error route load failed", "code", er.Code, "error", err)
			return false
		}
		er.Upgrade(loaded)
		ctrl = loaded
	}

	res, err := e.execute(c, ctrl)
	if err != nil {
		c.Logger.Error("error route failed", "code", er.Code, "error", err)
		return false
	}

	switch res.Kind {
	case router.KindDeferred:
		return c.Response.Provided
	case router.KindRaw:
		e.provideRaw(c, res.Raw)
		return true
	case router.KindPage:
		// Error pages are markup; structured callers get the plain
		// error shape regardless of what the controller built.
		if c.Request.Accept != router.AcceptHTML {
			return false
		}
		p, ok := res.Page.(*page.Page)
		if !ok {
			return false
		}
		p.Bind(er.Options.ID, er.Layout())
		if err := e.renderPage(c, p, false, ""); err != nil {
			c.Logger.Error("error page render failed", "code", er.Code, "error", err)
			return false
		}
		return true
	}
	return false
}

// fallback closes the response without an error route: structured for
// JSON callers, plain text for everyone else.
func (e *Engine) fallback(c *router.Ctx, failure *router.Error) {
	if e.cfg.OnError != nil {
		e.cfg.OnError(c, failure)
	}
	if c.Response.Provided {
		return
	}
	if c.Request.Accept == router.AcceptJSON {
		c.Response.Header.Set("Content-Type", "application/json; charset=utf-8")
		c.Response.Provide(&ErrorBody{Code: failure.Code, Message: failure.Message, Details: failure.Details})
		return
	}
	c.Response.Header.Set("Content-Type", "text/plain; charset=utf-8")
	c.Response.Provide(failure.Message)
}

func (e *Engine) report(c *router.Ctx, failure *router.Error) {
	origin := c.Request.Path
	if c.Route != nil && c.Route.Options.ID != "" {
		origin = c.Route.Options.ID
	}
	c.Logger.Error("resolution failed", "origin", origin, "code", failure.Code, "error", failure)
	if e.cfg.Reporter != nil {
		e.cfg.Reporter.Report(origin, failure)
	}
}
