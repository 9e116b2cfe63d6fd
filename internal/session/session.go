// Package session resolves who a request or websocket handshake belongs
// to. Tokens are HS256 JWTs shared with the HTTP login flow; the subject is
// the user id and the "name" claim the display name.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	errEmptySecret     = errors.New("session secret is empty")
)

// Identity is resolved once per request or connection and never re-derived.
type Identity struct {
	UserID      string
	DisplayName string
}

type Claims struct {
	Name string `json:"name"`
	jwt.RegisteredClaims
}

type Tokens struct {
	secret []byte
	cookie string
	now    func() time.Time
}

func NewTokens(secret []byte, cookieName string) *Tokens {
	return &Tokens{
		secret: secret,
		cookie: cookieName,
		now:    time.Now,
	}
}

func (t *Tokens) Issue(id Identity, ttl time.Duration) (string, error) {
	if len(t.secret) == 0 {
		return "", errEmptySecret
	}
	now := t.now()
	claims := Claims{
		Name: id.DisplayName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secret)
}

func (t *Tokens) Parse(raw string) (Identity, error) {
	if len(t.secret) == 0 {
		return Identity{}, fmt.Errorf("%w: %v", ErrUnauthenticated, errEmptySecret)
	}
	tok, err := jwt.ParseWithClaims(raw, &Claims{}, func(*jwt.Token) (any, error) {
		return t.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(t.now))
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	claims, ok := tok.Claims.(*Claims)
	if !ok || !tok.Valid || claims.Subject == "" {
		return Identity{}, ErrUnauthenticated
	}

	name := claims.Name
	if name == "" {
		name = claims.Subject
	}
	return Identity{UserID: claims.Subject, DisplayName: name}, nil
}

// Resolve reads the token from the Authorization header, the session cookie
// or the "token" query parameter, in that order.
func (t *Tokens) Resolve(r *http.Request) (Identity, error) {
	raw := tokenFromRequest(r, t.cookie)
	if raw == "" {
		return Identity{}, ErrUnauthenticated
	}
	return t.Parse(raw)
}

func tokenFromRequest(r *http.Request, cookieName string) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	if c, err := r.Cookie(cookieName); err == nil && c.Value != "" {
		return c.Value
	}
	return r.URL.Query().Get("token")
}

type ctxKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok
}
