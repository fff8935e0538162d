// Package traverse provides the public API for the Traverse routing
// framework: one route model shared by server-side rendering and
// client-side navigation.
//
// This is the recommended import for applications:
//
//	import "github.com/traverse-web/traverse"
//
// Usage:
//
//	app := traverse.New(traverse.DefaultConfig())
//	app.Page("/posts/:id", &traverse.Options{ID: "posts_show"}, ShowPost)
//	app.Register("GET", "/api/posts/:id", nil, GetPost)
//	app.Run(":8080")
package traverse

import (
	"github.com/traverse-web/traverse/pkg/page"
	"github.com/traverse-web/traverse/pkg/router"
)

// =============================================================================
// Route model (pkg/router exposed at the root)
// =============================================================================

// Ctx is the per-resolution context controllers receive.
type Ctx = router.Ctx

// Options configure a route at registration time.
type Options = router.Options

// Controller is the unit of route execution.
type Controller = router.Controller

// Result is a controller's tagged outcome.
type Result = router.Result

// Error is an HTTP-coded failure.
type Error = router.Error

// Accept is a negotiated response format.
type Accept = router.Accept

// Route format and auth constants.
const (
	AcceptHTML = router.AcceptHTML
	AcceptJSON = router.AcceptJSON
	AcceptAny  = router.AcceptAny
	AuthAny    = router.AuthAny
)

// Deferred reports that the controller declined the request and the
// scan should continue.
var Deferred = router.Deferred

// Raw wraps a raw response value.
var Raw = router.Raw

// PageResult wraps a page for the page lifecycle.
var PageResult = router.PageResult

// Error constructors.
var (
	NotFound     = router.NotFound
	Unauthorized = router.Unauthorized
	Forbidden    = router.Forbidden
	BadRequest   = router.BadRequest
	BadRequestf  = router.BadRequestf
	Internal     = router.Internal
)

// =============================================================================
// Pages (pkg/page exposed at the root)
// =============================================================================

// Page is a page-type controller's return value.
type Page = page.Page

// Fetcher is a named, deferred data request.
type Fetcher = page.Fetcher

// NewPage creates a page bound to a renderer and a data provider.
var NewPage = page.New

// Fetcher constructors.
var (
	Get  = page.Get
	Post = page.Post
)

// Page options.
var (
	WithTitle  = page.WithTitle
	WithBodyID = page.WithBodyID
)
