package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/goartstore/document-registry/internal/api/middleware"
	"github.com/bigkaa/goartstore/document-registry/internal/domain/model"
	"github.com/bigkaa/goartstore/document-registry/internal/service"
	"github.com/bigkaa/goartstore/document-registry/internal/storage/contentstore"
	"github.com/bigkaa/goartstore/document-registry/internal/storage/index"
	"github.com/bigkaa/goartstore/document-registry/internal/storage/tenantfile"
	"github.com/bigkaa/goartstore/document-registry/internal/storage/wal"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

var (
	doctorClaims  = &middleware.AuthClaims{Subject: "u-doctor", Role: "doctor"}
	adminClaims   = &middleware.AuthClaims{Subject: "u-admin", Role: "admin", Scopes: []string{middleware.ScopeRegistryAdmin}}
	billingClaims = &middleware.AuthClaims{Subject: "u-billing", Role: "billing"}
)

// testAPI — роутер с реальным фасадом на временных директориях.
type testAPI struct {
	router  chi.Router
	dataDir string
	walDir  string
}

func setupAPI(t *testing.T) *testAPI {
	t.Helper()
	root := t.TempDir()
	logger := testLogger()
	ctx := context.Background()

	file, err := tenantfile.Open(filepath.Join(root, "tenants.json"))
	if err != nil {
		t.Fatalf("ошибка открытия конфигурации тенантов: %v", err)
	}
	if err := file.Upsert(ctx, &model.Tenant{ID: "T1", RegistryEnabled: true}); err != nil {
		t.Fatalf("ошибка Upsert: %v", err)
	}
	if err := file.Upsert(ctx, &model.Tenant{ID: "T2", RegistryEnabled: false}); err != nil {
		t.Fatalf("ошибка Upsert: %v", err)
	}
	tenants := service.NewTenantService(file, 16, time.Minute, logger)

	dataDir := filepath.Join(root, "data")
	content, err := contentstore.New(dataDir, tenants, 5*time.Second, logger)
	if err != nil {
		t.Fatalf("ошибка создания хранилища: %v", err)
	}
	walDir := filepath.Join(root, "wal")
	walEngine, err := wal.New(walDir, logger)
	if err != nil {
		t.Fatalf("ошибка создания WAL: %v", err)
	}

	idx := index.New(logger)
	registry := service.NewRegistry(idx, content, walEngine, service.RegistryOptions{
		DefaultLanguage: "de-AT",
		MaxDocumentSize: 1 << 20,
	}, logger)
	facade := service.NewFacade(tenants, registry, logger)
	reconciler := service.NewReconcileService(tenants, content, idx, walEngine, 0, logger)

	api := NewAPIHandler(
		NewDocumentsHandler(facade, 1<<20),
		NewGroupsHandler(facade),
		NewMaintenanceHandler(reconciler),
		NewHealthHandler(NewDirChecker("filesystem", dataDir, true), NewDirChecker("wal", walDir, false)),
	)
	router := chi.NewRouter()
	HandlerFromMux(api, router)

	return &testAPI{router: router, dataDir: dataDir, walDir: walDir}
}

// do выполняет запрос от имени claims (nil — без аутентификации).
func (a *testAPI) do(t *testing.T, req *http.Request, claims *middleware.AuthClaims) *httptest.ResponseRecorder {
	t.Helper()
	if claims != nil {
		req = req.WithContext(middleware.WithClaims(req.Context(), claims))
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

// multipartRequest строит multipart запрос с частями file и metadata.
func multipartRequest(t *testing.T, method, url, content, contentType string, meta any) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="file"; filename="befund.pdf"`)
	if contentType != "" {
		header.Set("Content-Type", contentType)
	}
	part, err := mw.CreatePart(header)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = io.WriteString(part, content)

	if meta != nil {
		raw, _ := json.Marshal(meta)
		if err := mw.WriteField("metadata", string(raw)); err != nil {
			t.Fatal(err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func testMetadata() model.DocumentMetadata {
	return model.DocumentMetadata{
		Patient:    model.PatientRef{ID: "P-100"},
		Title:      "Befund Röntgen Thorax",
		ClassCode:  "REPORTS",
		TypeCodes:  []string{"18748-4"},
		FormatCode: "urn:ihe:rad:PDF",
	}
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("ошибка декодирования ответа: %v (тело: %s)", err, rec.Body.String())
	}
	return v
}

// errorCode возвращает error.code из тела ошибки.
func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	body := decode[struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}](t, rec)
	return body.Error.Code
}

func (a *testAPI) register(t *testing.T, content string) *model.DocumentEntry {
	t.Helper()
	req := multipartRequest(t, http.MethodPost, "/api/v1/tenants/T1/documents", content, "application/pdf", testMetadata())
	rec := a.do(t, req, doctorClaims)
	if rec.Code != http.StatusCreated {
		t.Fatalf("регистрация: статус %d, тело %s", rec.Code, rec.Body.String())
	}
	return decode[*model.DocumentEntry](t, rec)
}

func TestRegisterAndRetrieve(t *testing.T) {
	api := setupAPI(t)
	entry := api.register(t, "%PDF-1.7 befund")

	if entry.MimeType != "application/pdf" {
		t.Errorf("mime_type из заголовка части: получено %q", entry.MimeType)
	}
	if entry.AvailabilityStatus != model.StatusApproved || entry.CreatedBy != "u-doctor" {
		t.Errorf("неверная запись: %+v", entry)
	}

	rec := api.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/tenants/T1/documents/"+entry.ID, nil), doctorClaims)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET документа: статус %d", rec.Code)
	}
	if got := decode[*model.DocumentEntry](t, rec); got.ID != entry.ID {
		t.Errorf("получена чужая запись %s", got.ID)
	}

	rec = api.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/tenants/T1/documents/"+entry.ID+"/content", nil), doctorClaims)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET содержимого: статус %d", rec.Code)
	}
	if rec.Body.String() != "%PDF-1.7 befund" {
		t.Errorf("содержимое: получено %q", rec.Body.String())
	}
	etag := rec.Header().Get("ETag")
	if etag != `"`+entry.Hash+`"` {
		t.Errorf("ETag: получено %q", etag)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tenants/T1/documents/"+entry.ID+"/content", nil)
	req.Header.Set("If-None-Match", etag)
	if rec := api.do(t, req, doctorClaims); rec.Code != http.StatusNotModified {
		t.Errorf("If-None-Match: ожидался 304, получено %d", rec.Code)
	}
}

func TestRegister_Validation(t *testing.T) {
	api := setupAPI(t)

	tests := []struct {
		name string
		req  func() *http.Request
	}{
		{"без метаданных", func() *http.Request {
			return multipartRequest(t, http.MethodPost, "/api/v1/tenants/T1/documents", "x", "application/pdf", nil)
		}},
		{"невалидный JSON", func() *http.Request {
			var buf bytes.Buffer
			mw := multipart.NewWriter(&buf)
			fw, _ := mw.CreateFormFile("file", "a.pdf")
			_, _ = fw.Write([]byte("x"))
			_ = mw.WriteField("metadata", "{")
			_ = mw.Close()
			req := httptest.NewRequest(http.MethodPost, "/api/v1/tenants/T1/documents", &buf)
			req.Header.Set("Content-Type", mw.FormDataContentType())
			return req
		}},
		{"без файла", func() *http.Request {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/tenants/T1/documents", strings.NewReader("{}"))
			req.Header.Set("Content-Type", "application/json")
			return req
		}},
		{"слишком большой", func() *http.Request {
			big := strings.Repeat("a", 3<<20)
			return multipartRequest(t, http.MethodPost, "/api/v1/tenants/T1/documents", big, "application/pdf", testMetadata())
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := api.do(t, tt.req(), doctorClaims)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("ожидался 400, получено %d: %s", rec.Code, rec.Body.String())
			}
			if code := errorCode(t, rec); code != "VALIDATION_ERROR" {
				t.Errorf("код ошибки: %s", code)
			}
		})
	}
}

func TestTenantAndRoleErrors(t *testing.T) {
	api := setupAPI(t)
	entry := api.register(t, "doc")

	tests := []struct {
		name     string
		req      *http.Request
		claims   *middleware.AuthClaims
		wantCode int
		wantErr  string
	}{
		{"неизвестный тенант", httptest.NewRequest(http.MethodGet, "/api/v1/tenants/T9/documents", nil), doctorClaims, http.StatusNotFound, "TENANT_NOT_FOUND"},
		{"реестр отключён", httptest.NewRequest(http.MethodGet, "/api/v1/tenants/T2/documents", nil), doctorClaims, http.StatusConflict, "REGISTRY_DISABLED"},
		{"роль без права удаления", httptest.NewRequest(http.MethodDelete, "/api/v1/tenants/T1/documents/"+entry.ID, nil), billingClaims, http.StatusForbidden, "FORBIDDEN"},
		{"неизвестный документ", httptest.NewRequest(http.MethodGet, "/api/v1/tenants/T1/documents/00000000-0000-4000-8000-000000000000", nil), doctorClaims, http.StatusNotFound, "NOT_FOUND"},
		{"Approved без force", httptest.NewRequest(http.MethodDelete, "/api/v1/tenants/T1/documents/"+entry.ID, nil), adminClaims, http.StatusNoContent, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := api.do(t, tt.req, tt.claims)
			if rec.Code != tt.wantCode {
				t.Fatalf("ожидался %d, получено %d: %s", tt.wantCode, rec.Code, rec.Body.String())
			}
			if tt.wantErr != "" {
				if code := errorCode(t, rec); code != tt.wantErr {
					t.Errorf("код ошибки: ожидался %s, получено %s", tt.wantErr, code)
				}
			}
		})
	}
}

func TestVersionChainOverHTTP(t *testing.T) {
	api := setupAPI(t)
	v1 := api.register(t, "version one")

	update := multipartRequest(t, http.MethodPut, "/api/v1/tenants/T1/documents/"+v1.ID,
		"version two", "application/octet-stream", map[string]any{"title": "Befund korrigiert"})
	rec := api.do(t, update, doctorClaims)
	if rec.Code != http.StatusCreated {
		t.Fatalf("PUT: статус %d, тело %s", rec.Code, rec.Body.String())
	}
	v2 := decode[*model.DocumentEntry](t, rec)
	if v2.ID == v1.ID || v2.Title != "Befund korrigiert" || v2.MimeType != "application/pdf" {
		t.Errorf("неверная новая версия: %+v", v2)
	}

	// Поиск по умолчанию исключает Deprecated.
	rec = api.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/tenants/T1/documents?patientId=P-100", nil), doctorClaims)
	list := decode[documentListResponse](t, rec)
	if list.Total != 1 || len(list.Items) != 1 || list.Items[0].ID != v2.ID {
		t.Fatalf("поиск: ожидалась одна актуальная версия, получено %+v", list)
	}

	rec = api.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/tenants/T1/documents?includeDeprecated=true&limit=1", nil), doctorClaims)
	list = decode[documentListResponse](t, rec)
	if list.Total != 2 || len(list.Items) != 1 || !list.HasMore || list.Limit != 1 {
		t.Errorf("пагинация: получено total=%d items=%d has_more=%v", list.Total, len(list.Items), list.HasMore)
	}

	rec = api.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/tenants/T1/documents/"+v2.ID+"/associations", nil), doctorClaims)
	assocs := decode[associationListResponse](t, rec)
	if len(assocs.Items) != 1 || assocs.Items[0].Type != model.AssociationReplaces || assocs.Items[0].TargetID != v1.ID {
		t.Errorf("связи: получено %+v", assocs.Items)
	}

	// Замена Deprecated версии → 410.
	again := multipartRequest(t, http.MethodPut, "/api/v1/tenants/T1/documents/"+v1.ID, "x", "", nil)
	if rec := api.do(t, again, doctorClaims); rec.Code != http.StatusGone {
		t.Errorf("замена Deprecated: ожидался 410, получено %d", rec.Code)
	}
}

func TestDeprecateAndDelete(t *testing.T) {
	api := setupAPI(t)
	entry := api.register(t, "to deprecate")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/tenants/T1/documents/"+entry.ID+"/deprecate",
		strings.NewReader(`{"reason":"falscher Patient"}`))
	rec := api.do(t, req, doctorClaims)
	if rec.Code != http.StatusOK {
		t.Fatalf("deprecate: статус %d, тело %s", rec.Code, rec.Body.String())
	}
	got := decode[*model.DocumentEntry](t, rec)
	if !got.IsDeprecated() || got.DeprecationReason != "falscher Patient" || got.DeprecatedBy != "u-doctor" {
		t.Errorf("неверный отзыв: %+v", got)
	}

	rec = api.do(t, httptest.NewRequest(http.MethodDelete, "/api/v1/tenants/T1/documents/"+entry.ID, nil), adminClaims)
	if rec.Code != http.StatusConflict || errorCode(t, rec) != "DEPRECATED_REQUIRES_FORCE" {
		t.Fatalf("удаление Deprecated без force: статус %d", rec.Code)
	}

	rec = api.do(t, httptest.NewRequest(http.MethodDelete, "/api/v1/tenants/T1/documents/"+entry.ID+"?force=true", nil), adminClaims)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("удаление с force: статус %d", rec.Code)
	}

	rec = api.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/tenants/T1/documents/"+entry.ID, nil), doctorClaims)
	if rec.Code != http.StatusNotFound {
		t.Errorf("после удаления: ожидался 404, получено %d", rec.Code)
	}
}

func TestQuery_InvalidParams(t *testing.T) {
	api := setupAPI(t)
	for _, query := range []string{"limit=0", "limit=1001", "limit=abc", "offset=-1", "createdFrom=gestern", "includeDeprecated=vielleicht"} {
		t.Run(query, func(t *testing.T) {
			rec := api.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/tenants/T1/documents?"+query, nil), doctorClaims)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("ожидался 400, получено %d", rec.Code)
			}
		})
	}
}

func TestGroupsOverHTTP(t *testing.T) {
	api := setupAPI(t)
	a := api.register(t, "a")
	b := api.register(t, "b")

	body, _ := json.Marshal(service.GroupRequest{Kind: model.GroupFolder, Title: "Radiologie", MemberIDs: []string{a.ID, b.ID}})
	rec := api.do(t, httptest.NewRequest(http.MethodPost, "/api/v1/tenants/T1/groups", bytes.NewReader(body)), doctorClaims)
	if rec.Code != http.StatusCreated {
		t.Fatalf("создание группы: статус %d, тело %s", rec.Code, rec.Body.String())
	}
	group := decode[*model.Group](t, rec)

	rec = api.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/tenants/T1/groups/"+group.ID, nil), doctorClaims)
	if rec.Code != http.StatusOK {
		t.Fatalf("чтение группы: статус %d", rec.Code)
	}
	if got := decode[*model.Group](t, rec); len(got.MemberIDs) != 2 {
		t.Errorf("ожидалось 2 участника, получено %v", got.MemberIDs)
	}

	bad, _ := json.Marshal(service.GroupRequest{Kind: "Mappe", MemberIDs: []string{a.ID}})
	rec = api.do(t, httptest.NewRequest(http.MethodPost, "/api/v1/tenants/T1/groups", bytes.NewReader(bad)), doctorClaims)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("недопустимый вид группы: ожидался 400, получено %d", rec.Code)
	}
}

func TestReconcileEndpoint(t *testing.T) {
	api := setupAPI(t)
	api.register(t, "clean")

	rec := api.do(t, httptest.NewRequest(http.MethodPost, "/api/v1/maintenance/reconcile", nil), doctorClaims)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("без scope: ожидался 403, получено %d", rec.Code)
	}

	rec = api.do(t, httptest.NewRequest(http.MethodPost, "/api/v1/maintenance/reconcile?tenantId=T1", nil), adminClaims)
	if rec.Code != http.StatusOK {
		t.Fatalf("reconcile: статус %d, тело %s", rec.Code, rec.Body.String())
	}
	report := decode[service.ReconcileReport](t, rec)
	if report.BlobsChecked != 1 || len(report.Issues) != 0 {
		t.Errorf("ожидалась чистая сверка одного blob, получено %+v", report)
	}
}

// busyReconciler всегда сообщает о выполняющейся сверке.
type busyReconciler struct{}

func (busyReconciler) RunOnce(context.Context, string) (*service.ReconcileReport, error) {
	return nil, service.ErrReconcileInProgress
}

func TestReconcile_InProgress(t *testing.T) {
	h := NewMaintenanceHandler(busyReconciler{})
	rec := httptest.NewRecorder()
	h.Reconcile(rec, httptest.NewRequest(http.MethodPost, "/api/v1/maintenance/reconcile", nil), ReconcileParams{})
	if rec.Code != http.StatusConflict {
		t.Errorf("ожидался 409, получено %d", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	api := setupAPI(t)

	rec := api.do(t, httptest.NewRequest(http.MethodGet, "/health/live", nil), nil)
	if rec.Code != http.StatusOK {
		t.Errorf("live: статус %d", rec.Code)
	}

	rec = api.do(t, httptest.NewRequest(http.MethodGet, "/health/ready", nil), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("ready: статус %d, тело %s", rec.Code, rec.Body.String())
	}
	resp := decode[healthResponse](t, rec)
	if resp.Status != statusOK || resp.Checks["filesystem"].Status != statusOK || resp.Checks["wal"].Status != statusOK {
		t.Errorf("ready: получено %+v", resp)
	}

	rec = api.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/openapi.yaml", nil), nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "openapi: 3.0.3") {
		t.Errorf("openapi.yaml: статус %d", rec.Code)
	}
}

// failChecker — проверка с фиксированным статусом.
type failChecker struct{ status string }

func (c failChecker) Name() string { return "database" }
func (c failChecker) CheckReady() (string, string) { return c.status, "недоступен" }

func TestHealthReady_Statuses(t *testing.T) {
	tests := []struct {
		status   string
		wantCode int
	}{
		{statusOK, http.StatusOK},
		{statusDegraded, http.StatusOK},
		{statusFail, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			h := NewHealthHandler(failChecker{status: tt.status})
			rec := httptest.NewRecorder()
			h.HealthReady(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
			if rec.Code != tt.wantCode {
				t.Errorf("ожидался %d, получено %d", tt.wantCode, rec.Code)
			}
			if got := decode[healthResponse](t, rec); got.Status != tt.status {
				t.Errorf("статус: ожидался %s, получено %s", tt.status, got.Status)
			}
		})
	}
}

func TestDirChecker_Unwritable(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "absent", "dir")
	if status, _ := NewDirChecker("wal", missing, false).CheckReady(); status != statusDegraded {
		t.Errorf("некритичная проверка: ожидался degraded, получено %s", status)
	}
	if status, _ := NewDirChecker("filesystem", missing, true).CheckReady(); status != statusFail {
		t.Errorf("критичная проверка: ожидался fail, получено %s", status)
	}
}
