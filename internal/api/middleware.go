package api

import (
	"net/http"

	"github.com/serroba/diffsyncd/internal/adapter"
)

const headerUserID = "X-User-Id"

// authMiddleware extracts the user ID from the X-User-Id header and
// attaches it to the request context. Requests without one are
// rejected outright: every route behind this middleware needs an
// acting user.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get(headerUserID)
		if userID == "" {
			http.Error(w, "missing X-User-Id header", http.StatusUnauthorized)

			return
		}

		ctx := adapter.WithUserID(r.Context(), userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
