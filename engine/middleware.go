package engine

import (
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// Middleware wraps an http.Handler with extra behaviour.
type Middleware func(next http.Handler) http.Handler

// chain applies middlewares in reverse so the first one listed is outermost.
func chain(h http.Handler, mws ...Middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// requestLogging records every HTTP request at debug level. Streaming
// handlers hold the connection open, so duration is logged only once the
// handler unwinds.
func requestLogging(log *logrus.Entry) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			started := time.Now()
			next.ServeHTTP(w, r)
			log.WithFields(logrus.Fields{
				"method":   r.Method,
				"path":     r.URL.Path,
				"remote":   r.RemoteAddr,
				"duration": time.Since(started).String(),
			}).Debug("request served")
		})
	}
}
