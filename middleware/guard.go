package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	learnauth "github.com/learnhub-dev/learnauth"
)

// Cookie names used for browser credential delivery.
const (
	AccessCookieName  = "access_token"
	RefreshCookieName = "refresh_token"
)

type principalContextKey struct{}

// PrincipalFromContext returns the principal injected by [Authenticate].
func PrincipalFromContext(ctx context.Context) (*learnauth.Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(*learnauth.Principal)
	return p, ok
}

// CookieOptions controls how rotated credentials are re-set.
type CookieOptions struct {
	Path     string
	Domain   string
	Secure   bool
	SameSite http.SameSite
}

// Authenticate resolves a principal for every request. The access
// token is read from the Authorization header first, then from the
// access cookie; the refresh token only ever comes from its cookie.
// When resolution rotates the pair, the replacement cookies are set on
// the response before the wrapped handler runs.
func Authenticate(engine *learnauth.Engine, opts CookieOptions) func(http.Handler) http.Handler {
	if opts.Path == "" {
		opts.Path = "/"
	}
	if opts.SameSite == 0 {
		opts.SameSite = http.SameSiteLaxMode
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := requestContext(r)

			access := bearerToken(r.Header.Get("Authorization"))
			if access == "" {
				access = cookieValue(r, AccessCookieName)
			}
			refreshToken := cookieValue(r, RefreshCookieName)

			res, err := engine.Resolve(ctx, access, refreshToken)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			if res.Rotated && res.Pair != nil {
				SetSessionCookies(w, res.Pair, opts)
			}

			ctx = context.WithValue(ctx, principalContextKey{}, &res.Principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole rejects requests whose principal does not satisfy the
// required role. Must run inside [Authenticate].
func RequireRole(engine *learnauth.Engine, required learnauth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := PrincipalFromContext(r.Context())
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			if err := engine.Authorize(principal, required); err != nil {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// SetSessionCookies writes a credential pair as HttpOnly cookies.
func SetSessionCookies(w http.ResponseWriter, pair *learnauth.SessionPair, opts CookieOptions) {
	if pair == nil {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     AccessCookieName,
		Value:    pair.AccessToken,
		Path:     opts.Path,
		Domain:   opts.Domain,
		Secure:   opts.Secure,
		HttpOnly: true,
		SameSite: opts.SameSite,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookieName,
		Value:    pair.RefreshToken,
		Path:     opts.Path,
		Domain:   opts.Domain,
		Secure:   opts.Secure,
		HttpOnly: true,
		SameSite: opts.SameSite,
	})
}

// ClearSessionCookies expires both credential cookies.
func ClearSessionCookies(w http.ResponseWriter, opts CookieOptions) {
	if opts.Path == "" {
		opts.Path = "/"
	}
	for _, name := range []string{AccessCookieName, RefreshCookieName} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     opts.Path,
			Domain:   opts.Domain,
			MaxAge:   -1,
			HttpOnly: true,
		})
	}
}

func requestContext(r *http.Request) context.Context {
	ctx := r.Context()
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		ctx = learnauth.WithClientIP(ctx, host)
	}
	if ua := r.UserAgent(); ua != "" {
		ctx = learnauth.WithUserAgent(ctx, ua)
	}
	return ctx
}

func bearerToken(value string) string {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return ""
	}
	return value[len(bearer):]
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}
