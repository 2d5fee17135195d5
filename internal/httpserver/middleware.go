package httpserver

import (
	"bufio"
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	requestIDHeader = "X-Request-ID"
	maxRequestIDLen = 64
)

type scopeKey struct{}

// requestScope travels in the request context so handlers log with the
// request's id attached.
type requestScope struct {
	id     string
	logger *slog.Logger
}

// requestIDFrom reuses a short printable client id, otherwise mints one.
func requestIDFrom(r *http.Request) string {
	id := strings.TrimSpace(r.Header.Get(requestIDHeader))
	if id == "" || len(id) > maxRequestIDLen || strings.ContainsFunc(id, func(c rune) bool { return c <= ' ' || c > '~' }) {
		return uuid.NewString()
	}
	return id
}

// responseMeter records the status and body size a handler produced.
type responseMeter struct {
	http.ResponseWriter
	code    int
	written int64
}

func (m *responseMeter) WriteHeader(code int) {
	if m.code == 0 {
		m.code = code
	}
	m.ResponseWriter.WriteHeader(code)
}

func (m *responseMeter) Write(p []byte) (int, error) {
	if m.code == 0 {
		m.code = http.StatusOK
	}
	n, err := m.ResponseWriter.Write(p)
	m.written += int64(n)
	return n, err
}

func (m *responseMeter) Unwrap() http.ResponseWriter { return m.ResponseWriter }

func (m *responseMeter) Flush() {
	_ = http.NewResponseController(m.ResponseWriter).Flush()
}

// Hijack is asserted directly by the websocket upgrader.
func (m *responseMeter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	conn, brw, err := http.NewResponseController(m.ResponseWriter).Hijack()
	if err == nil && m.code == 0 {
		m.code = http.StatusSwitchingProtocols
	}
	return conn, brw, err
}

func (m *responseMeter) status() int {
	if m.code == 0 {
		return http.StatusOK
	}
	return m.code
}

func (s *Server) traceRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.requestIDs.Add(1)

		scope := requestScope{id: requestIDFrom(r)}
		scope.logger = s.logger.With(slog.Group("req",
			slog.String("id", scope.id),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("remote", r.RemoteAddr),
		))
		w.Header().Set(requestIDHeader, scope.id)

		meter := &responseMeter{ResponseWriter: w}
		ctx := context.WithValue(r.Context(), scopeKey{}, scope)
		start := time.Now()
		defer func() { scope.done(ctx, meter, time.Since(start)) }()

		next.ServeHTTP(meter, r.WithContext(ctx))
	})
}

func (sc requestScope) done(ctx context.Context, m *responseMeter, elapsed time.Duration) {
	level := slog.LevelInfo
	if m.status() >= http.StatusInternalServerError {
		level = slog.LevelWarn
	}
	sc.logger.LogAttrs(ctx, level, "served",
		slog.Int("status", m.status()),
		slog.Int64("bytes", m.written),
		slog.Duration("took", elapsed),
	)
}

// requestLogger returns the logger scoped to r, or the server logger outside
// the request middleware.
func (s *Server) requestLogger(r *http.Request) *slog.Logger {
	if sc, ok := r.Context().Value(scopeKey{}).(requestScope); ok && sc.logger != nil {
		return sc.logger
	}
	return s.logger
}
