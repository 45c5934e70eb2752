package service

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bigkaa/goartstore/document-registry/internal/domain/model"
	"github.com/bigkaa/goartstore/document-registry/internal/storage/contentstore"
	"github.com/bigkaa/goartstore/document-registry/internal/storage/index"
	"github.com/bigkaa/goartstore/document-registry/internal/storage/tenantfile"
	"github.com/bigkaa/goartstore/document-registry/internal/storage/wal"
)

// testEnv — окружение сервисного слоя на временных директориях.
type testEnv struct {
	dataDir  string
	tenants  *TenantService
	content  *contentstore.Store
	wal      *wal.WAL
	index    *index.Index
	registry *Registry
	facade   *Facade
	logger   *slog.Logger
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// setupTestEnv создаёт окружение с тенантами T1 (включён) и T2 (отключён).
// docs == nil — используется index.Index.
func setupTestEnv(t *testing.T, docs DocumentStore, opts RegistryOptions) *testEnv {
	t.Helper()

	root := t.TempDir()
	logger := testLogger()

	file, err := tenantfile.Open(filepath.Join(root, "tenants.json"))
	if err != nil {
		t.Fatalf("ошибка открытия конфигурации тенантов: %v", err)
	}
	ctx := context.Background()
	if err := file.Upsert(ctx, &model.Tenant{ID: "T1", RegistryEnabled: true, RepositoryUniqueID: "1.2.40.0.34.1"}); err != nil {
		t.Fatalf("ошибка Upsert: %v", err)
	}
	if err := file.Upsert(ctx, &model.Tenant{ID: "T2", RegistryEnabled: false}); err != nil {
		t.Fatalf("ошибка Upsert: %v", err)
	}

	tenants := NewTenantService(file, 16, time.Minute, logger)

	dataDir := filepath.Join(root, "data")
	content, err := contentstore.New(dataDir, tenants, 5*time.Second, logger)
	if err != nil {
		t.Fatalf("ошибка создания хранилища содержимого: %v", err)
	}
	walEngine, err := wal.New(filepath.Join(root, "wal"), logger)
	if err != nil {
		t.Fatalf("ошибка создания WAL: %v", err)
	}

	idx := index.New(logger)
	if docs == nil {
		docs = idx
	}
	if opts.DefaultLanguage == "" {
		opts.DefaultLanguage = "de-AT"
	}

	registry := NewRegistry(docs, content, walEngine, opts, logger)
	return &testEnv{
		dataDir:  dataDir,
		tenants:  tenants,
		content:  content,
		wal:      walEngine,
		index:    idx,
		registry: registry,
		facade:   NewFacade(tenants, registry, logger),
		logger:   logger,
	}
}

// testMetadata возвращает минимально валидные метаданные.
func testMetadata() model.DocumentMetadata {
	return model.DocumentMetadata{
		Patient:    model.PatientRef{ID: "P-100"},
		Title:      "Befund Röntgen Thorax",
		ClassCode:  "REPORTS",
		TypeCodes:  []string{"18748-4"},
		FormatCode: "urn:ihe:rad:PDF",
		MimeType:   "application/pdf",
	}
}

var doctor = model.Actor{ID: "u-doctor", Role: "doctor"}
var admin = model.Actor{ID: "u-admin", Role: "admin"}

// register регистрирует документ через фасад от имени врача.
func (e *testEnv) register(t *testing.T, data string) *model.DocumentEntry {
	t.Helper()
	entry, err := e.facade.Register(context.Background(), "T1", bytes.NewBufferString(data), testMetadata(), doctor)
	if err != nil {
		t.Fatalf("ошибка регистрации: %v", err)
	}
	return entry
}

// tenantLayout возвращает раскладку директорий тенанта.
func (e *testEnv) tenantLayout(t *testing.T, tenantID string) contentstore.Layout {
	t.Helper()
	layout, err := e.content.Layout(context.Background(), tenantID)
	if err != nil {
		t.Fatalf("ошибка получения раскладки: %v", err)
	}
	return layout
}

// countFiles возвращает количество файлов в директории (0, если её нет).
func countFiles(t *testing.T, dir string) int {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0
		}
		t.Fatalf("ошибка чтения %s: %v", dir, err)
	}
	n := 0
	for _, e := range entries {
		if !e.IsDir() {
			n++
		}
	}
	return n
}

// failingStore — DocumentStore, отказывающий на шаге метаданных, пока задан err.
type failingStore struct {
	*index.Index
	err error
}

func (f *failingStore) CreateDocument(ctx context.Context, entry *model.DocumentEntry) error {
	if f.err != nil {
		return f.err
	}
	return f.Index.CreateDocument(ctx, entry)
}

func (f *failingStore) ReplaceDocument(ctx context.Context, r model.Replacement) error {
	if f.err != nil {
		return f.err
	}
	return f.Index.ReplaceDocument(ctx, r)
}

// memPatients — справочник пациентов в памяти.
type memPatients map[model.PatientKind][]string

func (m memPatients) Exists(_ context.Context, _ string, kind model.PatientKind, patientID string) (bool, error) {
	for _, id := range m[kind] {
		if id == patientID {
			return true, nil
		}
	}
	return false, nil
}
