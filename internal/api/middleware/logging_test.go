package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
)

// newLoggedRouter собирает chi-роутер с RequestLogger, пишущим JSON в buf.
// withClaims подставляет субъекта так же, как это делает JWT middleware.
func newLoggedRouter(buf *bytes.Buffer, claims *AuthClaims) chi.Router {
	logger := slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	r := chi.NewRouter()
	r.Use(RequestLogger(logger))
	if claims != nil {
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				next.ServeHTTP(w, req.WithContext(WithClaims(req.Context(), claims)))
			})
		})
	}
	r.Get("/api/v1/tenants/{tenantId}/documents/{documentId}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Delete("/api/v1/tenants/{tenantId}/documents/{documentId}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return r
}

func decodeLogLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var line map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
		t.Fatalf("ошибка разбора записи журнала %q: %v", buf.String(), err)
	}
	return line
}

func TestRequestLogger_RegistryAttributes(t *testing.T) {
	var buf bytes.Buffer
	router := newLoggedRouter(&buf, &AuthClaims{Subject: "u-42", Role: "doctor"})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tenants/T1/documents/doc-7", nil)
	router.ServeHTTP(httptest.NewRecorder(), req)

	line := decodeLogLine(t, &buf)
	want := map[string]any{
		"level":       "INFO",
		"route":       "/api/v1/tenants/{tenantId}/documents/{documentId}",
		"path":        "/api/v1/tenants/T1/documents/doc-7",
		"tenant_id":   "T1",
		"document_id": "doc-7",
		"actor":       "u-42",
		"role":        "doctor",
		"status":      float64(200),
		"bytes":       float64(2),
	}
	for k, v := range want {
		if line[k] != v {
			t.Errorf("%s: ожидалось %v, получено %v", k, v, line[k])
		}
	}
}

func TestRequestLogger_Levels(t *testing.T) {
	tests := []struct {
		method, path string
		wantLevel    string
	}{
		{http.MethodDelete, "/api/v1/tenants/T1/documents/doc-7", "ERROR"},
		{http.MethodGet, "/api/v1/tenants/T1/unknown", "WARN"},
		{http.MethodGet, "/health/live", "DEBUG"},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			var buf bytes.Buffer
			router := newLoggedRouter(&buf, nil)
			router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(tt.method, tt.path, nil))

			line := decodeLogLine(t, &buf)
			if line["level"] != tt.wantLevel {
				t.Errorf("level: ожидалось %s, получено %v", tt.wantLevel, line["level"])
			}
			if _, ok := line["actor"]; ok {
				t.Error("без аутентификации actor не должен попадать в журнал")
			}
		})
	}
}

// TestWithClaims_OutsideLogger проверяет, что claims работают без RequestLogger.
func TestWithClaims_OutsideLogger(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	ctx := WithClaims(req.Context(), &AuthClaims{Subject: "u-1", Role: "nurse"})
	if got := ActorFromContext(ctx); got.ID != "u-1" || got.Role != "nurse" {
		t.Errorf("ActorFromContext: получено %+v", got)
	}
}
