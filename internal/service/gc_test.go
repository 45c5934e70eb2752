package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bigkaa/goartstore/document-registry/internal/storage/wal"
)

func TestGCRunOnce_CleansTempAndWAL(t *testing.T) {
	env := setupTestEnv(t, nil, RegistryOptions{})
	env.register(t, "committed")

	layout := env.tenantLayout(t, "T1")
	oldFile := filepath.Join(layout.Temp, "upload-old.tmp")
	freshFile := filepath.Join(layout.Temp, "upload-fresh.tmp")
	for _, p := range []string{oldFile, freshFile} {
		if err := os.WriteFile(p, []byte("partial"), 0o640); err != nil {
			t.Fatalf("ошибка записи: %v", err)
		}
	}
	past := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(oldFile, past, past); err != nil {
		t.Fatalf("ошибка Chtimes: %v", err)
	}

	// Осиротевший маркер GC не трогает
	orphan, _ := env.wal.StartTransaction(wal.OpRegister, "T1", "doc-x")
	env.wal.MarkOrphaned(orphan.TransactionID, "сбой")

	gc := NewGCService(env.tenants, env.content, env.wal, 24*time.Hour, time.Hour, env.logger)
	result := gc.RunOnce(context.Background())

	if result.TempDeleted != 1 {
		t.Errorf("TempDeleted: хотели 1, получили %d", result.TempDeleted)
	}
	if result.WALDeleted != 1 {
		t.Errorf("WALDeleted: хотели 1, получили %d", result.WALDeleted)
	}
	if result.Errors != 0 {
		t.Errorf("Errors: хотели 0, получили %d", result.Errors)
	}
	if _, err := os.Stat(freshFile); err != nil {
		t.Error("свежий временный файл не должен удаляться")
	}
	orphans, _ := env.wal.ListOrphaned()
	if len(orphans) != 1 {
		t.Errorf("осиротевший маркер должен сохраниться, получено %d", len(orphans))
	}
	if countFiles(t, layout.Documents) != 1 {
		t.Error("GC не должен трогать documents/")
	}
}

func TestGCService_StartStop(t *testing.T) {
	env := setupTestEnv(t, nil, RegistryOptions{})
	gc := NewGCService(env.tenants, env.content, env.wal, time.Hour, 50*time.Millisecond, env.logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gc.Start(ctx)
	time.Sleep(120 * time.Millisecond)
	gc.Stop()

	// Повторный Stop без Start не паникует
	NewGCService(env.tenants, env.content, env.wal, time.Hour, time.Hour, env.logger).Stop()
}
