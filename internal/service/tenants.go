// tenants.go — конфигурация тенантов с LRU-кэшем.
// Обёртка над hashicorp/golang-lru/v2/expirable поверх таблицы tenants
// или JSON-файла (memory backend).
package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/goartstore/document-registry/internal/domain/model"
)

// Prometheus-метрики кэша тенантов.
var (
	tenantCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dr_tenant_cache_hits_total",
		Help: "Общее количество попаданий в кэш конфигурации тенантов.",
	})
	tenantCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dr_tenant_cache_misses_total",
		Help: "Общее количество промахов кэша конфигурации тенантов.",
	})
)

// TenantStore — хранилище конфигурации тенантов.
// Реализуется repository.TenantRepository и tenantfile.Store.
type TenantStore interface {
	Get(ctx context.Context, tenantID string) (*model.Tenant, error)
	List(ctx context.Context) ([]*model.Tenant, error)
	Upsert(ctx context.Context, t *model.Tenant) error
	SetStoragePath(ctx context.Context, tenantID, storagePath string) error
}

// TenantService — конфигурация тенантов с кэшированием.
// Отсутствующие тенанты не кэшируются.
type TenantService struct {
	store  TenantStore
	cache  *expirable.LRU[string, *model.Tenant]
	logger *slog.Logger
}

// NewTenantService создаёт сервис конфигурации тенантов.
func NewTenantService(store TenantStore, cacheSize int, ttl time.Duration, logger *slog.Logger) *TenantService {
	return &TenantService{
		store:  store,
		cache:  expirable.NewLRU[string, *model.Tenant](cacheSize, nil, ttl),
		logger: logger.With(slog.String("component", "tenants")),
	}
}

// Get возвращает копию конфигурации тенанта.
func (s *TenantService) Get(ctx context.Context, tenantID string) (*model.Tenant, error) {
	if t, ok := s.cache.Get(tenantID); ok {
		tenantCacheHitsTotal.Inc()
		return t.Clone(), nil
	}
	tenantCacheMissesTotal.Inc()

	t, err := s.store.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	s.cache.Add(tenantID, t.Clone())
	return t, nil
}

// List возвращает все тенанты (без кэша).
func (s *TenantService) List(ctx context.Context) ([]*model.Tenant, error) {
	return s.store.List(ctx)
}

// Upsert сохраняет конфигурацию и сбрасывает кэш тенанта.
func (s *TenantService) Upsert(ctx context.Context, t *model.Tenant) error {
	defer s.cache.Remove(t.ID)
	if err := s.store.Upsert(ctx, t); err != nil {
		return err
	}
	s.logger.Info("Конфигурация тенанта сохранена",
		slog.String("tenant_id", t.ID),
		slog.Bool("enabled", t.RegistryEnabled),
	)
	return nil
}

// SetStoragePath сохраняет путь хранения тенанта и сбрасывает кэш.
func (s *TenantService) SetStoragePath(ctx context.Context, tenantID, storagePath string) error {
	defer s.cache.Remove(tenantID)
	if err := s.store.SetStoragePath(ctx, tenantID, storagePath); err != nil {
		return err
	}
	s.logger.Info("Путь хранения тенанта сохранён",
		slog.String("tenant_id", tenantID),
		slog.String("storage_path", storagePath),
	)
	return nil
}
