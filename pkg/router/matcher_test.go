package router

import "testing"

func TestCompileNamedParams(t *testing.T) {
	m, err := Compile("/posts/:id")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	values, ok := m.Match("/posts/42")
	if !ok {
		t.Fatal("expected match for /posts/42")
	}
	if values["id"] != "42" {
		t.Errorf("values[id] = %q, want %q", values["id"], "42")
	}

	if _, ok := m.Match("/posts/42/comments"); ok {
		t.Error("should not match longer path")
	}
	if _, ok := m.Match("/posts"); ok {
		t.Error("should not match shorter path")
	}
}

func TestCompileMultipleParams(t *testing.T) {
	m, err := Compile("/users/:user/posts/:post")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	values, ok := m.Match("/users/alice/posts/7")
	if !ok {
		t.Fatal("expected match")
	}
	if values["user"] != "alice" || values["post"] != "7" {
		t.Errorf("values = %v", values)
	}

	params := m.Params()
	if len(params) != 2 || params[0] != "user" || params[1] != "post" {
		t.Errorf("Params() = %v, want [user post]", params)
	}
}

func TestCompileNamedWildcard(t *testing.T) {
	m, err := Compile("/docs/*path")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	values, ok := m.Match("/docs/guide/routing")
	if !ok {
		t.Fatal("expected match")
	}
	if values["path"] != "guide/routing" {
		t.Errorf("values[path] = %q, want %q", values["path"], "guide/routing")
	}
}

func TestCompileAnonymousWildcard(t *testing.T) {
	m, err := Compile("/files/*")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	values, ok := m.Match("/files/a/b.txt")
	if !ok {
		t.Fatal("expected match")
	}
	if values["0"] != "a/b.txt" {
		t.Errorf("values[0] = %q, want %q", values["0"], "a/b.txt")
	}
}

func TestCompileRoot(t *testing.T) {
	m, err := Compile("/")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if _, ok := m.Match("/"); !ok {
		t.Error("root pattern should match /")
	}
	if _, ok := m.Match("/other"); ok {
		t.Error("root pattern should not match /other")
	}
}

func TestMatchIsCaseSensitive(t *testing.T) {
	m := MustCompile("/About")
	if _, ok := m.Match("/about"); ok {
		t.Error("matching must be case-sensitive")
	}
	if _, ok := m.Match("/About"); !ok {
		t.Error("expected exact-case match")
	}
}

func TestMatchIsRepeatable(t *testing.T) {
	m := MustCompile("/posts/:id")
	for i := 0; i < 3; i++ {
		values, ok := m.Match("/posts/9")
		if !ok || values["id"] != "9" {
			t.Fatalf("iteration %d: ok=%v values=%v", i, ok, values)
		}
	}
}

func TestCompileRejectsBadPatterns(t *testing.T) {
	for _, pattern := range []string{"", "no-slash", "/a/*rest/b", "/a/:"} {
		if _, err := Compile(pattern); err == nil {
			t.Errorf("Compile(%q) should fail", pattern)
		}
	}
}

func TestFromRegexRoundTrip(t *testing.T) {
	orig := MustCompile("/posts/:id")

	rebuilt, err := FromRegex(orig.Source(), orig.Params())
	if err != nil {
		t.Fatalf("FromRegex: %v", err)
	}

	values, ok := rebuilt.Match("/posts/42")
	if !ok || values["id"] != "42" {
		t.Errorf("rebuilt matcher: ok=%v values=%v", ok, values)
	}
}
