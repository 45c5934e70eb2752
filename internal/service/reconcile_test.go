package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bigkaa/goartstore/document-registry/internal/storage/wal"
)

// issuesByType группирует проблемы отчёта по типу.
func issuesByType(report *ReconcileReport) map[string][]ReconcileIssue {
	m := make(map[string][]ReconcileIssue)
	for _, issue := range report.Issues {
		m[issue.Type] = append(m[issue.Type], issue)
	}
	return m
}

func TestReconcile_CleanTree(t *testing.T) {
	env := setupTestEnv(t, nil, RegistryOptions{})
	env.register(t, "a")
	env.register(t, "b")

	rs := NewReconcileService(env.tenants, env.content, env.index, env.wal, 0, env.logger)
	report, err := rs.RunOnce(context.Background(), "")
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if report.Tenants != 1 || report.BlobsChecked != 2 {
		t.Errorf("ожидался 1 тенант и 2 blob, получено %d/%d", report.Tenants, report.BlobsChecked)
	}
	if len(report.Issues) != 0 {
		t.Errorf("ожидалось 0 проблем, получено %+v", report.Issues)
	}
}

func TestReconcile_DetectsIssues(t *testing.T) {
	env := setupTestEnv(t, nil, RegistryOptions{})
	ctx := context.Background()

	corrupted := env.register(t, "corrupted")
	missing := env.register(t, "missing")
	unreferenced := env.register(t, "unreferenced")

	layout := env.tenantLayout(t, "T1")

	files, _ := filepath.Glob(filepath.Join(layout.Documents, corrupted.BlobID+"*"))
	os.WriteFile(files[0], []byte("CORRUPTED"), 0o640)

	files, _ = filepath.Glob(filepath.Join(layout.Documents, missing.BlobID+"*"))
	os.Remove(files[0])

	env.index.DeleteDocument(ctx, "T1", unreferenced.ID)

	stray := filepath.Join(layout.Documents, "4b1d8f3e-0000-4000-8000-000000000001.pdf")
	os.WriteFile(stray, []byte("stray"), 0o640)
	os.WriteFile(filepath.Join(layout.Metadata, "broken.json"), []byte("{"), 0o640)

	orphan, _ := env.wal.StartTransaction(wal.OpReplace, "T1", "doc-o")
	env.wal.RecordBlob(orphan.TransactionID, "blob-o")
	env.wal.MarkOrphaned(orphan.TransactionID, "сбой транзакции")

	rs := NewReconcileService(env.tenants, env.content, env.index, env.wal, 0, env.logger)
	report, err := rs.RunOnce(ctx, "T1")
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	byType := issuesByType(report)
	expect := map[string]string{
		IssueChecksumMismatch: corrupted.BlobID,
		IssueOrphanedAttr:     missing.BlobID,
		IssueUnreferencedBlob: unreferenced.BlobID,
		IssueOrphanedFile:     "4b1d8f3e-0000-4000-8000-000000000001",
		IssueInvalidAttr:      "broken",
		IssueWALOrphan:        "blob-o",
	}
	for typ, blobID := range expect {
		issues := byType[typ]
		if len(issues) != 1 || issues[0].BlobID != blobID {
			t.Errorf("%s: ожидался blob %s, получено %+v", typ, blobID, issues)
		}
	}

	// Сверка ничего не исправляет
	if _, err := os.Stat(stray); err != nil {
		t.Error("сверка не должна удалять файлы")
	}
}

func TestReconcile_TenantFilter(t *testing.T) {
	env := setupTestEnv(t, nil, RegistryOptions{})
	env.register(t, "a")

	rs := NewReconcileService(env.tenants, env.content, env.index, env.wal, 0, env.logger)
	report, err := rs.RunOnce(context.Background(), "T9")
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if report.Tenants != 0 || report.BlobsChecked != 0 {
		t.Errorf("фильтр тенанта не применён: %+v", report)
	}
}

func TestReconcile_SingleFlight(t *testing.T) {
	env := setupTestEnv(t, nil, RegistryOptions{})
	rs := NewReconcileService(env.tenants, env.content, env.index, env.wal, 0, env.logger)

	rs.mu.Lock()
	rs.inProcess = true
	rs.mu.Unlock()

	if !rs.IsInProgress() {
		t.Fatal("IsInProgress: ожидалось true")
	}
	if _, err := rs.RunOnce(context.Background(), ""); !errors.Is(err, ErrReconcileInProgress) {
		t.Errorf("ожидалась ErrReconcileInProgress, получено %v", err)
	}

	rs.mu.Lock()
	rs.inProcess = false
	rs.mu.Unlock()
	if _, err := rs.RunOnce(context.Background(), ""); err != nil {
		t.Errorf("RunOnce после завершения: %v", err)
	}
}

func TestReconcile_StartWithoutInterval(t *testing.T) {
	env := setupTestEnv(t, nil, RegistryOptions{})
	rs := NewReconcileService(env.tenants, env.content, env.index, env.wal, 0, env.logger)

	rs.Start(context.Background())
	rs.Stop()

	periodic := NewReconcileService(env.tenants, env.content, env.index, env.wal, 30*time.Millisecond, env.logger)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	periodic.Start(ctx)
	time.Sleep(80 * time.Millisecond)
	periodic.Stop()
}
