package middlewares

import (
	"encoding/json"
	"net/http"
	"runtime/debug"

	"github.com/gorilla/mux"

	"github.com/jake-scott/hon-client/internal/pkg/logging"
)

// NewRecoveryMw turns a panicking handler into a 500 JSON error
func NewRecoveryMw() mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logging.Logger(r.Context()).Errorf("caught panic: %v : %s", err, debug.Stack())

					rw.Header().Set("Content-Type", "application/json")
					rw.WriteHeader(http.StatusInternalServerError)
					json.NewEncoder(rw).Encode(map[string]string{"error": http.StatusText(http.StatusInternalServerError)})
				}
			}()

			next.ServeHTTP(rw, r)
		})
	}
}
