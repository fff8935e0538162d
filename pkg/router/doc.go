// Package router implements the shared route model for Traverse.
//
// The same route definitions are matched on the server (producing HTML or
// JSON for an incoming HTTP request) and on the client (producing DOM
// updates for a navigation event). This package holds everything both
// environments share:
//
//   - Pattern compilation and matching (Matcher)
//   - The Route and ErrorRoute data shapes, including the lazy
//     unresolved → resolved controller upgrade
//   - The per-resolution Registry: ordered routes, the code → error-route
//     table, and nearest-ancestor layout resolution
//   - The Request/Response/Ctx triple built once per resolution
//   - The controller execution protocol (Controller, Result)
//   - The failure taxonomy (Error, code mapping)
//
// # Route Ordering
//
// After registration the registry is sorted once: higher Priority first,
// and on equal priority HTML-accepting routes before any other accept
// value, otherwise registration order. This lets a low-priority catch-all
// page coexist with explicit API routes:
//
//	reg.Register("GET", "/api/users/:id", nil, usersGET)
//	reg.Page("/*", &router.Options{ID: "app", Priority: -10}, appPage)
//
// # Patterns
//
// Path patterns use named parameters and an optional trailing wildcard:
//
//	/posts/:id        → params["id"]
//	/docs/*path       → params["path"] (rest of the path)
//	/files/*          → params["0"]    (unnamed capture, numeric name)
//
// Matching is case-sensitive and side-effect free; a pattern may be
// matched any number of times against any number of paths.
package router
