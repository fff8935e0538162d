package router

// Middleware wraps one resolution. It runs after the Ctx is built and
// around the scan/execute phase, so it observes the final outcome
// including error-route handling.
type Middleware interface {
	Handle(c *Ctx, next func() error) error
}

// MiddlewareFunc adapts a function to the Middleware interface.
type MiddlewareFunc func(c *Ctx, next func() error) error

// Handle implements Middleware.
func (f MiddlewareFunc) Handle(c *Ctx, next func() error) error {
	return f(c, next)
}

// ComposeMiddleware builds a handler chain from middleware and a final
// handler. Middleware executes in order, first to last.
func ComposeMiddleware(c *Ctx, mw []Middleware, handler func() error) error {
	chain := handler
	for i := len(mw) - 1; i >= 0; i-- {
		m := mw[i]
		next := chain
		chain = func() error {
			return m.Handle(c, next)
		}
	}
	return chain()
}
