package middleware

import (
	"bufio"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"
)

var errNoHijack = errors.New("response writer does not support hijacking")

// accessWriter remembers what a handler sent so the access log can report it.
// A hijacked connection is recorded as a protocol switch since the socket
// session owns the stream afterwards.
type accessWriter struct {
	http.ResponseWriter
	code     int
	written  int64
	upgraded bool
}

func (w *accessWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *accessWriter) Write(p []byte) (int, error) {
	n, err := w.ResponseWriter.Write(p)
	w.written += int64(n)
	return n, err
}

func (w *accessWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errNoHijack
	}
	conn, rw, err := hj.Hijack()
	if err == nil {
		w.upgraded = true
		w.code = http.StatusSwitchingProtocols
	}
	return conn, rw, err
}

func (w *accessWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func accessLevel(code int) slog.Level {
	switch {
	case code >= 500:
		return slog.LevelError
	case code >= 400:
		return slog.LevelWarn
	}
	return slog.LevelInfo
}

// RequestLogger writes one access line per request. Socket upgrades are logged
// when the upgrade handler returns, with upgraded=true.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			began := time.Now()
			aw := &accessWriter{ResponseWriter: w, code: http.StatusOK}

			next.ServeHTTP(aw, r)

			logger.LogAttrs(r.Context(), accessLevel(aw.code), "http access",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", aw.code),
				slog.Int64("bytes", aw.written),
				slog.Bool("upgraded", aw.upgraded),
				slog.Duration("took", time.Since(began)),
				slog.String("remote", RealIP(r)),
			)
		})
	}
}
