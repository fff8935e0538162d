// Command traverse runs the example application: a small blog wired
// through the shared route model, useful as a starting point and for
// exercising the framework end to end.
package main

import (
	"log/slog"
	"os"

	"github.com/traverse-web/traverse"
)

var posts = map[string]map[string]any{
	"1": {"id": "1", "title": "Hello, world", "body": "First post."},
	"2": {"id": "2", "title": "Routing both ways", "body": "One route table, two engines."},
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	app := traverse.New(traverse.Config{
		Logger:     logger,
		Production: os.Getenv("ENV") == "production",
		Static:     traverse.StaticConfig{Dir: "public"},
	})

	app.Layout("default", "site-layout")

	app.Page("/", &traverse.Options{ID: "home", Static: true}, func(c *traverse.Ctx) (traverse.Result, error) {
		p := traverse.NewPage("home", nil, traverse.WithTitle("Home"))
		return traverse.PageResult(p), nil
	})

	app.Page("/posts/:id", &traverse.Options{ID: "posts_show"}, func(c *traverse.Ctx) (traverse.Result, error) {
		p := traverse.NewPage("posts-show", func(c *traverse.Ctx) (map[string]*traverse.Fetcher, error) {
			return map[string]*traverse.Fetcher{
				"post": traverse.Get("/api/posts/" + c.Request.Param("id")),
			}, nil
		}, traverse.WithTitle("Post"))
		return traverse.PageResult(p), nil
	})

	app.Register("GET", "/api/posts/:id", nil, func(c *traverse.Ctx) (traverse.Result, error) {
		post, ok := posts[c.Request.Param("id")]
		if !ok {
			return traverse.Result{}, traverse.NotFound("no such post")
		}
		return traverse.Raw(post), nil
	})

	app.Error(404, &traverse.Options{ID: "err404"}, func(c *traverse.Ctx) (traverse.Result, error) {
		p := traverse.NewPage("not-found", nil, traverse.WithTitle("Not found"))
		return traverse.PageResult(p), nil
	})

	traverse.Execute(app)
}
