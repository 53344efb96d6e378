package middlewares

import (
	"net/http"
	"regexp"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/jake-scott/hon-client/internal/pkg/logging"
)

var correlationIDRegexp = regexp.MustCompile(`^[\w-]{3,64}$`)

// CorrelationMw gives every request a transaction ID, taken from the
// correlation header when the client sent a usable one
type CorrelationMw struct {
	headerName string
	next       http.Handler
}

func NewCorrelationMw(headerName string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return &CorrelationMw{headerName: headerName, next: next}
	}
}

func (mw *CorrelationMw) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	id := r.Header.Get(mw.headerName)
	if !correlationIDRegexp.MatchString(id) {
		if id != "" {
			logging.Logger(r.Context()).Debugf("replacing bad correlation id %q", id)
		}
		id = uuid.New().String()
	}

	rw.Header().Set(mw.headerName, id)
	mw.next.ServeHTTP(rw, r.WithContext(logging.WithTxnID(r.Context(), id)))
}
