package wal

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestWAL(t *testing.T) *WAL {
	t.Helper()
	w, err := New(t.TempDir(), testLogger())
	if err != nil {
		t.Fatalf("ошибка создания WAL: %v", err)
	}
	return w
}

func TestNew_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "wal", "nested")
	w, err := New(dir, testLogger())
	if err != nil {
		t.Fatalf("ошибка создания WAL: %v", err)
	}
	if w.Dir() != dir {
		t.Errorf("Dir: ожидалось %q, получено %q", dir, w.Dir())
	}
	if _, err := os.Stat(filepath.Join(dir, ".wal_write_test")); !os.IsNotExist(err) {
		t.Error("тестовый файл должен быть удалён")
	}
}

func TestStartTransaction(t *testing.T) {
	w := newTestWAL(t)

	entry, err := w.StartTransaction(OpRegister, "T1", "doc-1")
	if err != nil {
		t.Fatalf("ошибка StartTransaction: %v", err)
	}
	if entry.Status != StatusPending {
		t.Errorf("Status: ожидалось pending, получено %s", entry.Status)
	}
	if entry.CompletedAt != nil {
		t.Error("CompletedAt должен быть nil для pending")
	}

	got, err := w.GetTransaction(entry.TransactionID)
	if err != nil {
		t.Fatalf("ошибка GetTransaction: %v", err)
	}
	if got.TenantID != "T1" || got.DocumentID != "doc-1" || got.Operation != OpRegister {
		t.Errorf("неверный маркер: %+v", got)
	}
}

func TestRecordBlobAndCommit(t *testing.T) {
	w := newTestWAL(t)
	entry, _ := w.StartTransaction(OpReplace, "T1", "doc-2")

	if err := w.RecordBlob(entry.TransactionID, "blob-1"); err != nil {
		t.Fatalf("ошибка RecordBlob: %v", err)
	}
	if err := w.Commit(entry.TransactionID); err != nil {
		t.Fatalf("ошибка Commit: %v", err)
	}

	got, _ := w.GetTransaction(entry.TransactionID)
	if got.Status != StatusCommitted || got.BlobID != "blob-1" || got.CompletedAt == nil {
		t.Errorf("неверный маркер после Commit: %+v", got)
	}

	// Повторный Commit запрещён
	if err := w.Commit(entry.TransactionID); err == nil {
		t.Error("ожидалась ошибка повторного Commit")
	}
	if err := w.RecordBlob(entry.TransactionID, "blob-2"); err == nil {
		t.Error("RecordBlob на завершённой транзакции должен вернуть ошибку")
	}
}

func TestRollback(t *testing.T) {
	w := newTestWAL(t)
	entry, _ := w.StartTransaction(OpRegister, "T1", "doc-3")

	if err := w.Rollback(entry.TransactionID, "валидация"); err != nil {
		t.Fatalf("ошибка Rollback: %v", err)
	}
	got, _ := w.GetTransaction(entry.TransactionID)
	if got.Status != StatusRolledBack || got.Error != "валидация" {
		t.Errorf("неверный маркер после Rollback: %+v", got)
	}
}

func TestMarkOrphaned(t *testing.T) {
	w := newTestWAL(t)
	entry, _ := w.StartTransaction(OpReplace, "T1", "doc-4")
	w.RecordBlob(entry.TransactionID, "blob-4")

	got, err := w.MarkOrphaned(entry.TransactionID, "ошибка БД")
	if err != nil {
		t.Fatalf("ошибка MarkOrphaned: %v", err)
	}
	if got.Status != StatusOrphaned || got.BlobID != "blob-4" || got.Error != "ошибка БД" {
		t.Errorf("неверный маркер: %+v", got)
	}

	orphaned, err := w.ListOrphaned()
	if err != nil {
		t.Fatalf("ошибка ListOrphaned: %v", err)
	}
	if len(orphaned) != 1 || orphaned[0].TransactionID != entry.TransactionID {
		t.Errorf("ожидался 1 осиротевший маркер, получено %d", len(orphaned))
	}
}

func TestRecoverPending(t *testing.T) {
	w := newTestWAL(t)

	p1, _ := w.StartTransaction(OpRegister, "T1", "a")
	p2, _ := w.StartTransaction(OpReplace, "T1", "b")
	done, _ := w.StartTransaction(OpDelete, "T1", "c")
	w.Commit(done.TransactionID)

	pending, err := w.RecoverPending()
	if err != nil {
		t.Fatalf("ошибка RecoverPending: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("ожидалось 2 pending, получено %d", len(pending))
	}
	ids := map[string]bool{pending[0].TransactionID: true, pending[1].TransactionID: true}
	if !ids[p1.TransactionID] || !ids[p2.TransactionID] {
		t.Error("RecoverPending вернул не те маркеры")
	}
}

func TestRecoverPending_SkipsBrokenFiles(t *testing.T) {
	w := newTestWAL(t)
	os.WriteFile(filepath.Join(w.Dir(), "broken.wal.json"), []byte("{"), 0o640)
	w.StartTransaction(OpRegister, "T1", "a")

	pending, err := w.RecoverPending()
	if err != nil {
		t.Fatalf("ошибка RecoverPending: %v", err)
	}
	if len(pending) != 1 {
		t.Errorf("ожидался 1 pending, получено %d", len(pending))
	}
}

// TestCleanCommitted проверяет, что осиротевшие маркеры не удаляются.
func TestCleanCommitted(t *testing.T) {
	w := newTestWAL(t)

	committed, _ := w.StartTransaction(OpRegister, "T1", "a")
	w.Commit(committed.TransactionID)
	rolled, _ := w.StartTransaction(OpRegister, "T1", "b")
	w.Rollback(rolled.TransactionID, "")
	orphan, _ := w.StartTransaction(OpReplace, "T1", "c")
	w.MarkOrphaned(orphan.TransactionID, "сбой")
	pending, _ := w.StartTransaction(OpDeprecate, "T1", "d")

	cleaned, err := w.CleanCommitted()
	if err != nil {
		t.Fatalf("ошибка CleanCommitted: %v", err)
	}
	if cleaned != 2 {
		t.Errorf("ожидалось 2 удаления, получено %d", cleaned)
	}

	for _, id := range []string{orphan.TransactionID, pending.TransactionID} {
		if _, err := w.GetTransaction(id); err != nil {
			t.Errorf("маркер %s должен сохраниться: %v", id, err)
		}
	}
	if _, err := w.GetTransaction(committed.TransactionID); err == nil {
		t.Error("committed маркер должен быть удалён")
	}
}

func TestEntry_IsFinished(t *testing.T) {
	tests := []struct {
		status TransactionStatus
		want   bool
	}{
		{StatusPending, false},
		{StatusCommitted, true},
		{StatusRolledBack, true},
		{StatusOrphaned, false},
	}
	for _, tt := range tests {
		e := &Entry{Status: tt.status}
		if got := e.IsFinished(); got != tt.want {
			t.Errorf("IsFinished(%s) = %v, ожидалось %v", tt.status, got, tt.want)
		}
	}
}
