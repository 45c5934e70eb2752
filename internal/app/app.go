// Пакет app — сборка компонентов реестра, общая для сервера и registryctl.
// config → backend → тенанты → хранилище содержимого → WAL → реестр → фасад.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/bigkaa/goartstore/document-registry/internal/config"
	"github.com/bigkaa/goartstore/document-registry/internal/database"
	"github.com/bigkaa/goartstore/document-registry/internal/repository"
	"github.com/bigkaa/goartstore/document-registry/internal/service"
	"github.com/bigkaa/goartstore/document-registry/internal/storage/contentstore"
	"github.com/bigkaa/goartstore/document-registry/internal/storage/index"
	"github.com/bigkaa/goartstore/document-registry/internal/storage/tenantfile"
	"github.com/bigkaa/goartstore/document-registry/internal/storage/wal"
)

// App — собранные компоненты реестра.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	// Pool — пул PostgreSQL; nil для memory backend
	Pool *pgxpool.Pool

	Tenants   *service.TenantService
	Content   *contentstore.Store
	WAL       *wal.WAL
	Documents service.DocumentStore
	Registry  *service.Registry
	Facade    *service.Facade
	GC        *service.GCService
	Reconcile *service.ReconcileService

	sqlDB *sql.DB
}

// New собирает реестр по конфигурации.
// Для PostgreSQL выполняется подключение и применение миграций.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}

	var (
		tenantStore service.TenantStore
		patients    service.PatientDirectory
	)

	switch cfg.RegistryBackend {
	case config.BackendPostgres:
		pool, err := database.Connect(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		a.Pool = pool
		if err := database.Migrate(cfg, logger); err != nil {
			a.Close()
			return nil, err
		}
		tenantStore = repository.NewTenantRepository(pool)
		patients = repository.NewPatientDirectory(pool)
		a.Documents = repository.NewRegistryStore(pool)

	case config.BackendMemory:
		file, err := tenantfile.Open(cfg.TenantsFile)
		if err != nil {
			return nil, err
		}
		tenantStore = file
		a.Documents = index.New(logger)
		logger.Warn("Реестр работает в памяти, записи не сохраняются между запусками",
			slog.String("tenants_file", cfg.TenantsFile),
		)

	default:
		return nil, fmt.Errorf("неизвестный бэкенд реестра: %s", cfg.RegistryBackend)
	}

	a.Tenants = service.NewTenantService(tenantStore, cfg.TenantCacheSize, cfg.TenantCacheTTL, logger)

	content, err := contentstore.New(cfg.DataDir, a.Tenants, cfg.StoreTimeout, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Content = content

	walEngine, err := wal.New(cfg.WALDir, logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("ошибка инициализации WAL: %w", err)
	}
	a.WAL = walEngine

	if err := a.recoverWAL(); err != nil {
		a.Close()
		return nil, err
	}

	a.Registry = service.NewRegistry(a.Documents, a.Content, a.WAL, service.RegistryOptions{
		DefaultLanguage: cfg.DefaultLanguage,
		MaxDocumentSize: cfg.MaxDocumentSize,
		Patients:        patients,
	}, logger)
	a.Facade = service.NewFacade(a.Tenants, a.Registry, logger)

	a.GC = service.NewGCService(a.Tenants, a.Content, a.WAL, cfg.TempMaxAge, cfg.GCInterval, logger)
	a.Reconcile = service.NewReconcileService(a.Tenants, a.Content, a.Documents, a.WAL, cfg.ReconcileInterval, logger)

	return a, nil
}

// recoverWAL обрабатывает маркеры, оставшиеся pending после аварийной остановки.
// Маркер без blob откатывается. Маркер с blob переводится в orphaned:
// blob остаётся на диске до решения оператора.
func (a *App) recoverWAL() error {
	pending, err := a.WAL.RecoverPending()
	if err != nil {
		return fmt.Errorf("ошибка восстановления WAL: %w", err)
	}

	for _, entry := range pending {
		if entry.BlobID == "" {
			if err := a.WAL.Rollback(entry.TransactionID, "незавершённая транзакция при старте"); err != nil {
				a.Logger.Error("Ошибка отката WAL-транзакции",
					slog.String("tx_id", entry.TransactionID),
					slog.String("error", err.Error()),
				)
			}
			continue
		}
		if _, err := a.WAL.MarkOrphaned(entry.TransactionID, "незавершённая транзакция при старте"); err != nil {
			a.Logger.Error("Ошибка пометки WAL-транзакции",
				slog.String("tx_id", entry.TransactionID),
				slog.String("error", err.Error()),
			)
			continue
		}
		a.Logger.Error("Blob незавершённой транзакции помечен как осиротевший",
			slog.String("tx_id", entry.TransactionID),
			slog.String("tenant_id", entry.TenantID),
			slog.String("blob_id", entry.BlobID),
		)
	}
	return nil
}

// SQLDB возвращает *sql.DB поверх пула для проверок topologymetrics.
// nil для memory backend.
func (a *App) SQLDB() *sql.DB {
	if a.Pool == nil {
		return nil
	}
	if a.sqlDB == nil {
		a.sqlDB = stdlib.OpenDBFromPool(a.Pool)
	}
	return a.sqlDB
}

// StartBackground запускает GC и периодическую сверку.
func (a *App) StartBackground(ctx context.Context) {
	a.GC.Start(ctx)
	a.Reconcile.Start(ctx)
}

// StopBackground останавливает фоновые процессы.
func (a *App) StopBackground() {
	a.GC.Stop()
	a.Reconcile.Stop()
}

// Close освобождает подключения к базе данных.
func (a *App) Close() {
	if a.sqlDB != nil {
		_ = a.sqlDB.Close()
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
}
