// logging.go — журнал HTTP-запросов реестра через slog.
// Запись содержит шаблон маршрута, тенант и документ из URL
// и субъекта, прошедшего JWT-аутентификацию ниже по цепочке.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/goartstore/document-registry/internal/domain/model"
)

// responseWriter — обёртка для перехвата статус-кода и размера ответа.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    int64
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.written += int64(n)
	return n, err
}

// Unwrap позволяет http.ResponseController получить доступ к оригинальному ResponseWriter.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// requestInfo заполняется middleware, которые выполняются после RequestLogger.
type requestInfo struct {
	actor model.Actor
}

type requestInfoKey struct{}

// noteActor сообщает журналу запроса субъекта из claims.
func noteActor(ctx context.Context, claims *AuthClaims) {
	info, ok := ctx.Value(requestInfoKey{}).(*requestInfo)
	if !ok || claims == nil {
		return
	}
	info.actor = claims.Actor()
}

// urlParams — параметры маршрута, попадающие в журнал.
var urlParams = []struct{ param, attr string }{
	{"tenantId", "tenant_id"},
	{"documentId", "document_id"},
	{"groupId", "group_id"},
}

// RequestLogger возвращает middleware, логирующий каждый HTTP-запрос.
// Уровень: INFO (1xx-3xx), WARN (4xx), ERROR (5xx).
// Успешные health-пробы и скрейпы метрик пишутся на DEBUG.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			info := &requestInfo{}
			ctx := context.WithValue(r.Context(), requestInfoKey{}, info)
			wrapped := newResponseWriter(w)

			next.ServeHTTP(wrapped, r.WithContext(ctx))

			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("route", routePattern(r)),
				slog.String("path", r.URL.Path),
				slog.Int("status", wrapped.statusCode),
				slog.Duration("duration", time.Since(start)),
				slog.Int64("bytes", wrapped.written),
				slog.String("remote_addr", r.RemoteAddr),
			}
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				for _, p := range urlParams {
					if v := rctx.URLParam(p.param); v != "" {
						attrs = append(attrs, slog.String(p.attr, v))
					}
				}
			}
			if info.actor.ID != "" {
				attrs = append(attrs,
					slog.String("actor", info.actor.ID),
					slog.String("role", info.actor.Role),
				)
			}

			logger.LogAttrs(ctx, requestLevel(r.URL.Path, wrapped.statusCode), "HTTP запрос", attrs...)
		})
	}
}

func requestLevel(path string, status int) slog.Level {
	switch {
	case status >= 500:
		return slog.LevelError
	case status >= 400:
		return slog.LevelWarn
	case strings.HasPrefix(path, "/health/") || path == "/metrics":
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}
