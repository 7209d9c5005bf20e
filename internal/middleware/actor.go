package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/rpattn/entitysync/internal/syncctx"
)

const (
	UserHeader    = "X-Sync-User"
	CompanyHeader = "X-Sync-Company"
)

// ActorMiddleware attaches the acting identity from the request headers to the
// request context. Requests without a user get fallback.
func ActorMiddleware(fallback syncctx.Actor) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor := fallback
			if login := strings.TrimSpace(r.Header.Get(UserHeader)); login != "" {
				actor.Login = login
			}
			if raw := strings.TrimSpace(r.Header.Get(CompanyHeader)); raw != "" {
				if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
					actor.CompanyID = id
				}
			}
			ctx := syncctx.WithActor(r.Context(), actor)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
