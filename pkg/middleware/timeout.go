package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// Timeout gives each request a deadline. If the handler has not started
// its response by then, the client gets a 504 and anything the handler
// writes afterwards is discarded. A panic in the handler is re-raised on
// the serving goroutine so net/http still logs it.
func Timeout(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()

			gw := &guardedWriter{ResponseWriter: w, header: make(http.Header)}
			done := make(chan struct{})
			panicked := make(chan any, 1)
			go func() {
				defer func() {
					if p := recover(); p != nil {
						panicked <- p
					}
					close(done)
				}()
				next.ServeHTTP(gw, r.WithContext(ctx))
			}()

			select {
			case <-done:
				select {
				case p := <-panicked:
					panic(p)
				default:
				}
			case <-ctx.Done():
				if gw.expire() {
					slog.Warn("request deadline exceeded",
						"method", r.Method,
						"path", r.URL.Path,
						"timeout", d,
						"request_id", GetRequestID(r),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusGatewayTimeout)
					json.NewEncoder(w).Encode(map[string]string{"error": "request exceeded " + d.String()})
				}
			}
		})
	}
}

// guardedWriter stops forwarding once the deadline response is chosen.
// The handler writes headers into its own map, which is copied to the real
// writer under mu when the response starts, so the deadline path never
// shares a header map with a running handler.
type guardedWriter struct {
	http.ResponseWriter
	header  http.Header
	mu      sync.Mutex
	started bool
	expired bool
}

// expire marks the writer dead and reports whether the handler had not yet
// begun its own response.
func (g *guardedWriter) expire() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.expired = true
	return !g.started
}

func (g *guardedWriter) Header() http.Header {
	return g.header
}

// start copies the handler's headers out. Callers hold mu.
func (g *guardedWriter) start() {
	dst := g.ResponseWriter.Header()
	for k, v := range g.header {
		dst[k] = append([]string(nil), v...)
	}
	g.started = true
}

func (g *guardedWriter) WriteHeader(code int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.expired || g.started {
		return
	}
	g.start()
	g.ResponseWriter.WriteHeader(code)
}

func (g *guardedWriter) Write(b []byte) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.expired {
		return 0, http.ErrHandlerTimeout
	}
	if !g.started {
		g.start()
	}
	return g.ResponseWriter.Write(b)
}
