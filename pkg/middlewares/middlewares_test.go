package middlewares

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"

	"github.com/jake-scott/hon-client/internal/pkg/logging"
)

const header = "X-Correlation-Id"

func newRouter(h http.HandlerFunc) *mux.Router {
	r := mux.NewRouter()
	r.Use(NewCorrelationMw(header), NewLoggingMw(true), NewRecoveryMw())
	r.HandleFunc("/", h)
	return r
}

func TestCorrelationID(t *testing.T) {
	var seen string
	r := newRouter(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = logging.TxnID(r.Context())
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(header, "abc-123")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if seen != "abc-123" || rec.Header().Get(header) != "abc-123" {
		t.Errorf("txn id %q, header %q", seen, rec.Header().Get(header))
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(header, "bad id!")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if seen == "bad id!" || len(seen) != 36 || rec.Header().Get(header) != seen {
		t.Errorf("bad id not replaced: %q", seen)
	}
}

func TestRecovery(t *testing.T) {
	r := newRouter(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d", rec.Code)
	}
	if rec.Header().Get("Content-Type") != "application/json" {
		t.Errorf("content type = %q", rec.Header().Get("Content-Type"))
	}
}

func TestCors(t *testing.T) {
	r := mux.NewRouter()
	r.Use(NewCorsMw([]string{"http://example.com"}, false))
	r.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {}).Methods(http.MethodGet)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "http://example.com")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Header().Get("Access-Control-Allow-Origin") != "http://example.com" {
		t.Errorf("headers = %v", rec.Header())
	}
}
