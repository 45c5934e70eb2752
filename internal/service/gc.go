// gc.go — фоновая очистка служебных файлов.
//
// GC выполняет две задачи:
//  1. Удаляет из temp/ каждого тенанта файлы старше DR_TEMP_MAX_AGE
//  2. Удаляет завершённые (committed, rolled_back) WAL-маркеры
//
// documents/ и metadata/ не затрагиваются; осиротевшие WAL-маркеры сохраняются.
// Запускается как горутина с периодическим тикером (DR_GC_INTERVAL).
package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/goartstore/document-registry/internal/domain/model"
	"github.com/bigkaa/goartstore/document-registry/internal/storage/contentstore"
	"github.com/bigkaa/goartstore/document-registry/internal/storage/wal"
)

// Prometheus метрики GC
var (
	gcRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dr_gc_runs_total",
		Help: "Общее количество запусков GC",
	})

	// gcFilesDeletedTotal — удалённые файлы по виду (temp, wal).
	gcFilesDeletedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dr_gc_files_deleted_total",
		Help: "Общее количество файлов, удалённых GC",
	}, []string{"kind"})

	gcDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dr_gc_duration_seconds",
		Help:    "Длительность выполнения GC в секундах",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
	})
)

// TenantLister — источник списка тенантов для фоновых сервисов.
type TenantLister interface {
	List(ctx context.Context) ([]*model.Tenant, error)
}

// GCResult — результат одного запуска GC.
type GCResult struct {
	TempDeleted int           `json:"temp_deleted"`
	WALDeleted  int           `json:"wal_deleted"`
	Errors      int           `json:"errors"`
	Duration    time.Duration `json:"duration"`
}

// GCService — сервис фоновой очистки.
type GCService struct {
	tenants  TenantLister
	content  *contentstore.Store
	wal      *wal.WAL
	maxAge   time.Duration
	interval time.Duration
	logger   *slog.Logger

	mu     sync.Mutex // защита от параллельного запуска RunOnce
	cancel context.CancelFunc
	done   chan struct{}
}

// NewGCService создаёт сервис GC.
func NewGCService(
	tenants TenantLister,
	content *contentstore.Store,
	walEngine *wal.WAL,
	maxAge time.Duration,
	interval time.Duration,
	logger *slog.Logger,
) *GCService {
	return &GCService{
		tenants:  tenants,
		content:  content,
		wal:      walEngine,
		maxAge:   maxAge,
		interval: interval,
		logger:   logger.With(slog.String("component", "gc")),
	}
}

// Start запускает фоновую горутину GC с периодическим тикером.
func (gc *GCService) Start(ctx context.Context) {
	gcCtx, cancel := context.WithCancel(ctx)
	gc.cancel = cancel
	gc.done = make(chan struct{})

	go gc.run(gcCtx)

	gc.logger.Info("GC запущен",
		slog.String("interval", gc.interval.String()),
		slog.String("temp_max_age", gc.maxAge.String()),
	)
}

// Stop останавливает фоновый процесс GC и дожидается его завершения.
func (gc *GCService) Stop() {
	if gc.cancel == nil {
		return
	}
	gc.cancel()
	<-gc.done
	gc.logger.Info("GC остановлен")
}

func (gc *GCService) run(ctx context.Context) {
	defer close(gc.done)

	// Первый запуск — сразу после старта
	gc.RunOnce(ctx)

	ticker := time.NewTicker(gc.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			gc.RunOnce(ctx)
		}
	}
}

// RunOnce выполняет один цикл GC. Потокобезопасен.
func (gc *GCService) RunOnce(ctx context.Context) *GCResult {
	gc.mu.Lock()
	defer gc.mu.Unlock()

	start := time.Now()
	result := &GCResult{}

	tenants, err := gc.tenants.List(ctx)
	if err != nil {
		gc.logger.Error("GC: ошибка получения списка тенантов", slog.String("error", err.Error()))
		result.Errors++
	}
	for _, t := range tenants {
		if !t.RegistryEnabled {
			continue
		}
		n, err := gc.content.CleanTemp(ctx, t.ID, gc.maxAge)
		result.TempDeleted += n
		if err != nil {
			gc.logger.Error("GC: ошибка очистки temp/",
				slog.String("tenant_id", t.ID),
				slog.String("error", err.Error()),
			)
			result.Errors++
		}
	}

	n, err := gc.wal.CleanCommitted()
	result.WALDeleted = n
	if err != nil {
		gc.logger.Error("GC: ошибка очистки WAL", slog.String("error", err.Error()))
		result.Errors++
	}

	result.Duration = time.Since(start)

	gcRunsTotal.Inc()
	gcFilesDeletedTotal.WithLabelValues("temp").Add(float64(result.TempDeleted))
	gcFilesDeletedTotal.WithLabelValues("wal").Add(float64(result.WALDeleted))
	gcDurationSeconds.Observe(result.Duration.Seconds())

	gc.logger.Info("GC завершён",
		slog.Int("temp_deleted", result.TempDeleted),
		slog.Int("wal_deleted", result.WALDeleted),
		slog.Int("errors", result.Errors),
		slog.Duration("duration", result.Duration),
	)
	return result
}
