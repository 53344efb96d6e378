package middlewares

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/jake-scott/hon-client/internal/pkg/logging"
)

type responseWriterEx struct {
	http.ResponseWriter

	statusCode int
	size       int
	logData    bool
	ctx        context.Context
}

func (rw *responseWriterEx) WriteHeader(statusCode int) {
	rw.statusCode = statusCode
	rw.ResponseWriter.WriteHeader(statusCode)
}

func (rw *responseWriterEx) Write(b []byte) (int, error) {
	size, err := rw.ResponseWriter.Write(b)
	rw.size += size

	if err == nil && rw.logData {
		logging.Logger(rw.ctx).Debugf("response: %s", b[:size])
	}
	return size, err
}

// logs request bodies as they are consumed
type loggingReader struct {
	io.ReadCloser
	ctx context.Context
}

func (lr loggingReader) Read(b []byte) (int, error) {
	size, err := lr.ReadCloser.Read(b)
	if size > 0 {
		logging.Logger(lr.ctx).Debugf("request: %s", b[:size])
	}
	return size, err
}

// LoggingMw writes one audit entry per request.  With logData set, bodies
// are logged at debug level.
type LoggingMw struct {
	logData bool
	next    http.Handler
}

func NewLoggingMw(logData bool) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return &LoggingMw{next: next, logData: logData}
	}
}

func (mw *LoggingMw) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	ctx := r.Context()

	if mw.logData && r.Body != nil {
		r.Body = loggingReader{ReadCloser: r.Body, ctx: ctx}
	}

	rwex := &responseWriterEx{ResponseWriter: rw, statusCode: http.StatusOK, logData: mw.logData, ctx: ctx}
	mw.next.ServeHTTP(rwex, r)

	fields := logrus.Fields{
		"entrytype": "audit",
		"status":    rwex.statusCode,
		"method":    r.Method,
		"remote":    r.RemoteAddr,
		"duration":  time.Since(startTime),
		"path":      r.URL.String(),
		"size":      rwex.size,
	}
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			fields["route"] = tpl
		}
	}

	logging.Logger(ctx).WithFields(fields).Info(http.StatusText(rwex.statusCode))
}
