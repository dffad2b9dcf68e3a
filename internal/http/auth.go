package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	d "github.com/fjod/helmet-storefront/domain"
	"github.com/fjod/helmet-storefront/internal/backend"
	"github.com/golang-jwt/jwt/v5"
)

const tokenCookie = "token"

var ErrMissingToken = errors.New("missing bearer token")

// Claims are issued by the shop's identity service. sid identifies the browser session; tokens
// without one fall back to the subject.
type Claims struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

type Session struct {
	Key   string
	User  d.User
	Token string
}

type sessionKey struct{}

func withSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

func sessionFromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(Session)
	return s, ok
}

type Authenticator struct {
	secret    []byte
	loginPath string
	parser    *jwt.Parser
}

func NewAuthenticator(secret, loginPath string) *Authenticator {
	return &Authenticator{
		secret:    []byte(secret),
		loginPath: loginPath,
		parser:    jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})),
	}
}

func (a *Authenticator) Parse(raw string) (Session, error) {
	if raw == "" {
		return Session{}, ErrMissingToken
	}
	var claims Claims
	_, err := a.parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	})
	if err != nil {
		return Session{}, fmt.Errorf("invalid token: %w", err)
	}
	if claims.Subject == "" {
		return Session{}, fmt.Errorf("invalid token: no subject")
	}

	key := claims.SessionID
	if key == "" {
		key = claims.Subject
	}
	return Session{
		Key: key,
		User: d.User{
			ID:    claims.Subject,
			Name:  claims.Name,
			Email: claims.Email,
			Phone: claims.Phone,
		},
		Token: raw,
	}, nil
}

func tokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	if c, err := r.Cookie(tokenCookie); err == nil {
		return c.Value
	}
	return ""
}

// Middleware rejects unauthenticated requests. Browser navigations are sent to the login page with
// a return path; API calls get a 401 carrying the same path.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, err := a.Parse(tokenFromRequest(r))
		if err != nil {
			a.unauthenticated(w, r)
			return
		}
		ctx := withSession(r.Context(), s)
		ctx = backend.WithToken(ctx, s.Token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *Authenticator) LoginURL(returnTo string) string {
	return a.loginPath + "?returnTo=" + url.QueryEscape(returnTo)
}

func (a *Authenticator) unauthenticated(w http.ResponseWriter, r *http.Request) {
	returnTo := r.URL.RequestURI()
	if wantsHTML(r) {
		http.Redirect(w, r, a.LoginURL(returnTo), http.StatusFound)
		return
	}
	respondJSON(w, http.StatusUnauthorized, ErrorResponse{
		Error:    "authentication required",
		Code:     "unauthorized",
		ReturnTo: returnTo,
	})
}

func wantsHTML(r *http.Request) bool {
	return r.Method == http.MethodGet && strings.Contains(r.Header.Get("Accept"), "text/html")
}
