package middleware

import (
	"context"
	"errors"
	"net/http"

	convauth "github.com/mzfr7/convauth"
)

type bundleContextKey struct{}

// BundleFromContext returns the renewed credential bundle injected by
// [AuthRefresh].
func BundleFromContext(ctx context.Context) (*convauth.TokenBundle, bool) {
	bundle, ok := ctx.Value(bundleContextKey{}).(*convauth.TokenBundle)
	return bundle, ok
}

// AuthRefresh returns middleware that runs the refresh protocol from the
// refresh and session key cookies. On success, renewed cookies are written
// before the wrapped handler runs, and both the identity and the bundle
// are injected into the request context.
//
// Status mapping:
//
//	401  missing/invalid credentials, session not found
//	403  session mismatch, reuse, device rejection (cookies cleared)
//	429  refresh throttled (cookies kept)
//	503  session store unreachable (cookies kept)
func AuthRefresh(engine *convauth.Engine, cookies *CookieWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil || cookies == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			refreshTok, okRefresh := cookies.Refresh(r)
			currentKey, okCurrent := cookies.Current(r)
			if !okRefresh || !okCurrent {
				cookies.Clear(w)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			bundle, err := engine.Refresh(r.Context(), currentKey, refreshTok, r.Header.Get(DeviceIDHeader))
			if err != nil {
				status, clear := refreshStatus(err)
				if clear {
					cookies.Clear(w)
				}
				http.Error(w, http.StatusText(status), status)
				return
			}

			cookies.Write(w, bundle)

			ctx := context.WithValue(r.Context(), bundleContextKey{}, bundle)
			ctx = context.WithValue(ctx, identityContextKey{}, &bundle.Identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func refreshStatus(err error) (status int, clearCookies bool) {
	switch {
	case errors.Is(err, convauth.ErrRefreshRateLimited):
		return http.StatusTooManyRequests, false
	case errors.Is(err, convauth.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, false
	case errors.Is(err, convauth.ErrMustReauthenticate),
		errors.Is(err, convauth.ErrSessionMismatch):
		return http.StatusForbidden, true
	default:
		return http.StatusUnauthorized, true
	}
}
