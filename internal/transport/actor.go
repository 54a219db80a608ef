package transport

import (
	"context"
	"net/http"
)

type actorKey struct{}

// ActorIDFromContext returns the actor ID from context, if present.
func ActorIDFromContext(ctx context.Context) (string, bool) {
	actorID, ok := ctx.Value(actorKey{}).(string)
	return actorID, ok
}

// ActorMiddleware extracts X-Actor-Id and stores it in context. The
// actor is recorded as the author of any version a request creates.
func ActorMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actorID := r.Header.Get("X-Actor-Id")
		if actorID != "" {
			ctx := context.WithValue(r.Context(), actorKey{}, actorID)
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}
		next.ServeHTTP(w, r)
	})
}
