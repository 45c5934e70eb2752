// reconcile.go — сверка хранилища содержимого с реестром.
//
// Для каждого тенанта обнаруживает:
//   - orphaned_file: файл в documents/ без sidecar
//   - orphaned_attr: sidecar без файла в documents/
//   - invalid_attr: нечитаемый sidecar
//   - checksum_mismatch: пересчитанный SHA-256 не совпадает с sidecar
//   - size_mismatch: размер файла не совпадает с sidecar
//   - unreferenced_blob: blob, на который не ссылается ни одна запись
//
// а также осиротевшие WAL-маркеры (wal_orphan).
// Сверка только сообщает о проблемах и ничего не исправляет.
package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/goartstore/document-registry/internal/storage/attr"
	"github.com/bigkaa/goartstore/document-registry/internal/storage/contentstore"
	"github.com/bigkaa/goartstore/document-registry/internal/storage/wal"
)

// Prometheus метрики сверки
var (
	reconcileRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dr_reconcile_runs_total",
		Help: "Общее количество запусков сверки",
	})

	reconcileIssuesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dr_reconcile_issues_total",
		Help: "Общее количество проблем, обнаруженных сверкой",
	}, []string{"type"})

	reconcileDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dr_reconcile_duration_seconds",
		Help:    "Длительность выполнения сверки в секундах",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
	})
)

// ErrReconcileInProgress — сверка уже выполняется.
var ErrReconcileInProgress = errors.New("сверка уже выполняется")

// Типы проблем сверки.
const (
	IssueOrphanedFile     = "orphaned_file"
	IssueOrphanedAttr     = "orphaned_attr"
	IssueInvalidAttr      = "invalid_attr"
	IssueChecksumMismatch = "checksum_mismatch"
	IssueSizeMismatch     = "size_mismatch"
	IssueUnreferencedBlob = "unreferenced_blob"
	IssueWALOrphan        = "wal_orphan"
)

// ReconcileIssue — одна обнаруженная проблема.
type ReconcileIssue struct {
	Type     string `json:"type"`
	TenantID string `json:"tenant_id"`
	BlobID   string `json:"blob_id,omitempty"`
	Path     string `json:"path,omitempty"`
	TxID     string `json:"tx_id,omitempty"`
	Detail   string `json:"detail,omitempty"`
}

// ReconcileReport — результат сверки.
type ReconcileReport struct {
	ID           string           `json:"id"`
	StartedAt    time.Time        `json:"started_at"`
	CompletedAt  time.Time        `json:"completed_at"`
	Tenants      int              `json:"tenants"`
	BlobsChecked int              `json:"blobs_checked"`
	Issues       []ReconcileIssue `json:"issues"`
	Errors       []string         `json:"errors,omitempty"`
}

// ReconcileService — сервис сверки хранилища.
type ReconcileService struct {
	tenants  TenantLister
	content  *contentstore.Store
	docs     DocumentStore
	wal      *wal.WAL
	interval time.Duration
	logger   *slog.Logger

	mu        sync.Mutex
	inProcess bool
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewReconcileService создаёт сервис сверки.
func NewReconcileService(
	tenants TenantLister,
	content *contentstore.Store,
	docs DocumentStore,
	walEngine *wal.WAL,
	interval time.Duration,
	logger *slog.Logger,
) *ReconcileService {
	return &ReconcileService{
		tenants:  tenants,
		content:  content,
		docs:     docs,
		wal:      walEngine,
		interval: interval,
		logger:   logger.With(slog.String("component", "reconcile")),
	}
}

// Start запускает периодическую сверку. Интервал 0 — сверка только по запросу.
func (rs *ReconcileService) Start(ctx context.Context) {
	if rs.interval <= 0 {
		rs.logger.Info("Периодическая сверка отключена")
		return
	}
	rsCtx, cancel := context.WithCancel(ctx)
	rs.cancel = cancel
	rs.done = make(chan struct{})

	go rs.run(rsCtx)

	rs.logger.Info("Сверка запущена", slog.String("interval", rs.interval.String()))
}

// Stop останавливает периодическую сверку.
func (rs *ReconcileService) Stop() {
	if rs.cancel == nil {
		return
	}
	rs.cancel()
	<-rs.done
	rs.logger.Info("Сверка остановлена")
}

// IsInProgress возвращает true, если сверка выполняется.
func (rs *ReconcileService) IsInProgress() bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.inProcess
}

func (rs *ReconcileService) run(ctx context.Context) {
	defer close(rs.done)

	ticker := time.NewTicker(rs.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := rs.RunOnce(ctx, ""); err != nil && !errors.Is(err, ErrReconcileInProgress) {
				rs.logger.Error("Ошибка сверки", slog.String("error", err.Error()))
			}
		}
	}
}

// RunOnce выполняет сверку всех тенантов или одного (tenantID != "").
// Параллельный запуск возвращает ErrReconcileInProgress.
func (rs *ReconcileService) RunOnce(ctx context.Context, tenantID string) (*ReconcileReport, error) {
	rs.mu.Lock()
	if rs.inProcess {
		rs.mu.Unlock()
		return nil, ErrReconcileInProgress
	}
	rs.inProcess = true
	rs.mu.Unlock()

	defer func() {
		rs.mu.Lock()
		rs.inProcess = false
		rs.mu.Unlock()
	}()

	start := time.Now()
	report := &ReconcileReport{
		ID:        uuid.New().String(),
		StartedAt: start.UTC(),
		Issues:    []ReconcileIssue{},
	}

	tenants, err := rs.tenants.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, t := range tenants {
		if !t.RegistryEnabled || (tenantID != "" && t.ID != tenantID) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		report.Tenants++
		if err := rs.checkTenant(ctx, t.ID, report); err != nil {
			report.Errors = append(report.Errors, t.ID+": "+err.Error())
			rs.logger.Error("Ошибка сверки тенанта",
				slog.String("tenant_id", t.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	orphans, err := rs.wal.ListOrphaned()
	if err != nil {
		report.Errors = append(report.Errors, "wal: "+err.Error())
	}
	for _, e := range orphans {
		if tenantID != "" && e.TenantID != tenantID {
			continue
		}
		report.Issues = append(report.Issues, ReconcileIssue{
			Type: IssueWALOrphan, TenantID: e.TenantID, BlobID: e.BlobID, TxID: e.TransactionID, Detail: e.Error,
		})
	}

	report.CompletedAt = time.Now().UTC()
	duration := time.Since(start)

	reconcileRunsTotal.Inc()
	reconcileDurationSeconds.Observe(duration.Seconds())
	for _, issue := range report.Issues {
		reconcileIssuesTotal.WithLabelValues(issue.Type).Inc()
	}

	rs.logger.Info("Сверка завершена",
		slog.String("id", report.ID),
		slog.Int("tenants", report.Tenants),
		slog.Int("blobs_checked", report.BlobsChecked),
		slog.Int("issues", len(report.Issues)),
		slog.Duration("duration", duration),
	)
	return report, nil
}

// checkTenant сверяет дерево одного тенанта.
func (rs *ReconcileService) checkTenant(ctx context.Context, tenantID string, report *ReconcileReport) error {
	layout, err := rs.content.Layout(ctx, tenantID)
	if err != nil {
		return err
	}
	referenced, err := rs.docs.BlobIDs(ctx, tenantID)
	if err != nil {
		return err
	}

	records, skipped, err := attr.ScanDir(layout.Metadata)
	if err != nil {
		return err
	}
	for _, path := range skipped {
		report.Issues = append(report.Issues, ReconcileIssue{
			Type: IssueInvalidAttr, TenantID: tenantID, BlobID: attr.BlobIDFromPath(path), Path: path,
		})
	}

	known := skippedByID(skipped)
	for _, rec := range records {
		known[rec.FileID] = struct{}{}
		report.BlobsChecked++

		res, err := contentstore.VerifyRecord(ctx, layout, rec)
		if err != nil {
			return err
		}
		issue := ReconcileIssue{TenantID: tenantID, BlobID: rec.FileID, Path: layout.DocumentPath(rec.FileName)}
		switch {
		case res.Missing:
			issue.Type = IssueOrphanedAttr
			report.Issues = append(report.Issues, issue)
		case !res.HashOK():
			issue.Type = IssueChecksumMismatch
			issue.Detail = "ожидался " + rec.Hash + ", вычислен " + res.ActualHash
			report.Issues = append(report.Issues, issue)
		case !res.SizeOK():
			issue.Type = IssueSizeMismatch
			report.Issues = append(report.Issues, issue)
		}

		if _, ok := referenced[rec.FileID]; !ok {
			report.Issues = append(report.Issues, ReconcileIssue{
				Type: IssueUnreferencedBlob, TenantID: tenantID, BlobID: rec.FileID,
			})
		}
	}

	entries, err := os.ReadDir(layout.Documents)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		blobID := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		if _, ok := known[blobID]; ok {
			continue
		}
		report.Issues = append(report.Issues, ReconcileIssue{
			Type: IssueOrphanedFile, TenantID: tenantID, BlobID: blobID, Path: filepath.Join(layout.Documents, e.Name()),
		})
	}
	return nil
}

func skippedByID(paths []string) map[string]struct{} {
	ids := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		ids[attr.BlobIDFromPath(p)] = struct{}{}
	}
	return ids
}
