package handlers

import (
	"net/http"

	"github.com/clearstate-inc/recon-engine/pkg/database"
)

// QuerierMiddleware places the connection pool in the request context so
// repositories resolve it the same way inside and outside a transaction.
func QuerierMiddleware(q database.Querier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := database.WithQuerier(r.Context(), q)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
