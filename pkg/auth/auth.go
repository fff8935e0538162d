// Package auth provides a signed-cookie session identity for the
// resolution pipeline: a codec that round-trips a user through an
// HMAC-signed cookie, a DecodeUser hook reading it, and an Authorizer
// enforcing role requirements.
//
// The engine treats identity as a collaborator; this package is one
// implementation of that collaborator, not a requirement. Anything
// that can produce a user value from a request plugs in the same way.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/traverse-web/traverse/pkg/router"
)

// CookieName is the session cookie written by Login.
const CookieName = "traverse_session"

// ErrBadSignature is returned when a session cookie fails verification.
var ErrBadSignature = errors.New("auth: session signature mismatch")

// User is the identity carried through a session.
type User struct {
	ID    string   `json:"id"`
	Name  string   `json:"name,omitempty"`
	Roles []string `json:"roles,omitempty"`
}

// HasRole reports whether the user carries a role.
func (u *User) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Codec signs and verifies session cookies.
type Codec struct {
	secret []byte
	maxAge time.Duration
}

// NewCodec creates a codec over a signing secret. MaxAge bounds the
// cookie lifetime; zero means session-scoped.
func NewCodec(secret []byte, maxAge time.Duration) *Codec {
	return &Codec{secret: secret, maxAge: maxAge}
}

type envelope struct {
	User    *User `json:"user"`
	Expires int64 `json:"expires,omitempty"`
}

// Encode produces the signed cookie value: base64(payload).base64(mac).
func (c *Codec) Encode(u *User) (string, error) {
	env := envelope{User: u}
	if c.maxAge > 0 {
		env.Expires = time.Now().Add(c.maxAge).Unix()
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return "", err
	}
	body := base64.RawURLEncoding.EncodeToString(payload)
	return body + "." + c.sign(body), nil
}

// Decode verifies a cookie value and returns the user, or nil for an
// expired session.
func (c *Codec) Decode(value string) (*User, error) {
	body, mac, ok := strings.Cut(value, ".")
	if !ok {
		return nil, ErrBadSignature
	}
	if !hmac.Equal([]byte(c.sign(body)), []byte(mac)) {
		return nil, ErrBadSignature
	}
	payload, err := base64.RawURLEncoding.DecodeString(body)
	if err != nil {
		return nil, ErrBadSignature
	}
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, ErrBadSignature
	}
	if env.Expires != 0 && time.Now().Unix() > env.Expires {
		return nil, nil
	}
	return env.User, nil
}

func (c *Codec) sign(body string) string {
	h := hmac.New(sha256.New, c.secret)
	h.Write([]byte(body))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}

// Cookie builds the Set-Cookie value for a signed session.
func (c *Codec) Cookie(u *User) (*http.Cookie, error) {
	value, err := c.Encode(u)
	if err != nil {
		return nil, err
	}
	cookie := &http.Cookie{
		Name:     CookieName,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	if c.maxAge > 0 {
		cookie.MaxAge = int(c.maxAge.Seconds())
	}
	return cookie, nil
}

// DecodeUser returns the engine hook reading the session cookie. A
// missing cookie is an anonymous request; a tampered one is an error,
// which the engine logs and treats as anonymous.
func (c *Codec) DecodeUser(ctx *router.Ctx) (any, error) {
	for _, cookie := range ctx.Request.Cookies {
		if cookie.Name != CookieName {
			continue
		}
		u, err := c.Decode(cookie.Value)
		if err != nil {
			return nil, err
		}
		if u == nil {
			return nil, nil
		}
		return u, nil
	}
	return nil, nil
}

// Authorize is an engine Authorizer understanding *User values: any
// signed-in user passes AuthAny, otherwise the requirement names a
// role the user must carry.
func Authorize(c *router.Ctx, user any, requirement string) error {
	u, ok := user.(*User)
	if !ok || u == nil {
		return router.Unauthorized()
	}
	if requirement == router.AuthAny {
		return nil
	}
	if !u.HasRole(requirement) {
		return router.Forbidden()
	}
	return nil
}
