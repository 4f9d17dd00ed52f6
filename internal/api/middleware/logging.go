// logging.go — журнал HTTP-запросов через slog.
// Строка запроса не логируется: в ней может быть гостевой токен.
package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/HansKurvers/Ouderschaps-api-sub002/internal/service"
)

// responseRecorder запоминает статус и размер ответа.
// Используется и журналом, и метриками; повторная обёртка не создаётся.
type responseRecorder struct {
	http.ResponseWriter
	status  int
	written int64
	// actor — субъект, определённый аутентификацией ниже по цепочке
	actor string
}

// recordResponse оборачивает w, если он ещё не обёрнут выше по цепочке.
func recordResponse(w http.ResponseWriter) *responseRecorder {
	if rec, ok := w.(*responseRecorder); ok {
		return rec
	}
	return &responseRecorder{ResponseWriter: w, status: http.StatusOK}
}

func (rw *responseRecorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseRecorder) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.written += int64(n)
	return n, err
}

// Unwrap нужен http.ResponseController.
func (rw *responseRecorder) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// noteActor сообщает журналу запросов, кто выполняет запрос.
func noteActor(w http.ResponseWriter, p *service.Principal) {
	if rec, ok := w.(*responseRecorder); ok && p != nil {
		rec.actor = p.Actor().String()
	}
}

// RequestLogger логирует каждый запрос: INFO для 1xx-3xx, WARN для 4xx, ERROR для 5xx.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := recordResponse(w)

			next.ServeHTTP(rec, r)

			level := slog.LevelInfo
			switch {
			case rec.status >= 500:
				level = slog.LevelError
			case rec.status >= 400:
				level = slog.LevelWarn
			}

			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("route", routePattern(r)),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.status),
				slog.Duration("duration", time.Since(start)),
				slog.Int64("bytes", rec.written),
				slog.String("remote_addr", ClientIP(r)),
			}
			if rec.actor != "" {
				attrs = append(attrs, slog.String("actor", rec.actor))
			}
			logger.LogAttrs(r.Context(), level, "HTTP запрос", attrs...)
		})
	}
}
