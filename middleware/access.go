package middleware

import (
	"context"
	"net"
	"net/http"

	convauth "github.com/mzfr7/convauth"
)

type identityContextKey struct{}

// IdentityFromContext returns the identity injected by [AuthAccess] or
// [AuthRefresh].
func IdentityFromContext(ctx context.Context) (*convauth.Identity, bool) {
	identity, ok := ctx.Value(identityContextKey{}).(*convauth.Identity)
	return identity, ok
}

// AuthAccess returns middleware that verifies the access token cookie and
// injects the sealed identity into the request context. Pure CPU: no Redis
// round-trip, so it belongs on every authenticated route.
func AuthAccess(engine *convauth.Engine, cookies *CookieWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil || cookies == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			tok, ok := cookies.Access(r)
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			identity, err := engine.VerifyAccess(tok)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), identityContextKey{}, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WithRequestContext attaches the client IP to the request context for
// rate limiting and audit attribution. Place it outermost.
func WithRequestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := r.RemoteAddr
		if host, _, err := net.SplitHostPort(ip); err == nil {
			ip = host
		}
		next.ServeHTTP(w, r.WithContext(convauth.WithClientIP(r.Context(), ip)))
	})
}
