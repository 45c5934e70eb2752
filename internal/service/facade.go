// facade.go — единственная точка входа для внешних вызывающих сторон.
// Каждая операция: тенант → шлюз авторизации → реестр.
// Отказ авторизации возвращается до любых записей.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/goartstore/document-registry/internal/domain/authz"
	"github.com/bigkaa/goartstore/document-registry/internal/domain/model"
)

// registryOperationsTotal — операции фасада по результату.
var registryOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "dr_registry_operations_total",
	Help: "Количество операций реестра документов",
}, []string{"operation", "result"})

// TenantProvider — источник конфигурации тенантов для фасада.
type TenantProvider interface {
	Get(ctx context.Context, tenantID string) (*model.Tenant, error)
}

// Facade — фасад реестра документов.
type Facade struct {
	tenants  TenantProvider
	registry *Registry
	logger   *slog.Logger
}

// NewFacade создаёт фасад реестра.
func NewFacade(tenants TenantProvider, registry *Registry, logger *slog.Logger) *Facade {
	return &Facade{
		tenants:  tenants,
		registry: registry,
		logger:   logger.With(slog.String("component", "facade")),
	}
}

// authorize разрешает тенант и проверяет право роли на операцию.
func (f *Facade) authorize(ctx context.Context, tenantID string, op model.Operation, actor model.Actor) (*model.Tenant, error) {
	tenant, err := f.tenants.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if !tenant.RegistryEnabled {
		return nil, fmt.Errorf("%w: %s", model.ErrRegistryDisabled, tenantID)
	}
	if err := authz.Check(tenant, op, actor.Role); err != nil {
		f.logger.Warn("Операция запрещена",
			slog.String("tenant_id", tenantID),
			slog.String("operation", string(op)),
			slog.String("actor", actor.ID),
			slog.String("role", actor.Role),
		)
		return nil, err
	}
	return tenant, nil
}

// Register регистрирует новый документ.
func (f *Facade) Register(
	ctx context.Context,
	tenantID string,
	content io.Reader,
	meta model.DocumentMetadata,
	actor model.Actor,
) (entry *model.DocumentEntry, err error) {
	defer func() { observe(model.OpCreate, err) }()

	tenant, err := f.authorize(ctx, tenantID, model.OpCreate, actor)
	if err != nil {
		return nil, err
	}
	return f.registry.Create(ctx, tenant, content, meta, actor)
}

// Query ищет записи тенанта.
func (f *Facade) Query(
	ctx context.Context,
	tenantID string,
	q model.DocumentQuery,
	actor model.Actor,
) (entries []*model.DocumentEntry, total int, err error) {
	defer func() { observe(model.OpQuery, err) }()

	if _, err = f.authorize(ctx, tenantID, model.OpQuery, actor); err != nil {
		return nil, 0, err
	}
	return f.registry.Query(ctx, tenantID, q)
}

// Retrieve возвращает запись и проверенное содержимое.
func (f *Facade) Retrieve(
	ctx context.Context,
	tenantID, key string,
	actor model.Actor,
) (entry *model.DocumentEntry, data []byte, err error) {
	defer func() { observe(model.OpRetrieve, err) }()

	if _, err = f.authorize(ctx, tenantID, model.OpRetrieve, actor); err != nil {
		return nil, nil, err
	}
	return f.registry.Retrieve(ctx, tenantID, key)
}

// Update создаёт новую версию документа.
func (f *Facade) Update(
	ctx context.Context,
	tenantID, key string,
	content io.Reader,
	overrides *model.DocumentMetadata,
	actor model.Actor,
) (entry *model.DocumentEntry, err error) {
	defer func() { observe(model.OpUpdate, err) }()

	tenant, err := f.authorize(ctx, tenantID, model.OpUpdate, actor)
	if err != nil {
		return nil, err
	}
	return f.registry.Replace(ctx, tenant, key, content, overrides, actor)
}

// Deprecate отзывает документ.
func (f *Facade) Deprecate(
	ctx context.Context,
	tenantID, key string,
	actor model.Actor,
	reason string,
) (entry *model.DocumentEntry, err error) {
	defer func() { observe(model.OpDeprecate, err) }()

	tenant, err := f.authorize(ctx, tenantID, model.OpDeprecate, actor)
	if err != nil {
		return nil, err
	}
	return f.registry.Deprecate(ctx, tenant, key, actor, reason)
}

// Delete безвозвратно удаляет документ.
func (f *Facade) Delete(
	ctx context.Context,
	tenantID, key string,
	actor model.Actor,
	force bool,
) (err error) {
	defer func() { observe(model.OpDelete, err) }()

	tenant, err := f.authorize(ctx, tenantID, model.OpDelete, actor)
	if err != nil {
		return err
	}
	return f.registry.Delete(ctx, tenant, key, actor, force)
}

// ListAssociations возвращает связи документа.
func (f *Facade) ListAssociations(
	ctx context.Context,
	tenantID, key string,
	actor model.Actor,
) (assocs []*model.Association, err error) {
	defer func() { observe(model.OpQuery, err) }()

	if _, err = f.authorize(ctx, tenantID, model.OpQuery, actor); err != nil {
		return nil, err
	}
	return f.registry.ListAssociations(ctx, tenantID, key)
}

// CreateGroup создаёт SubmissionSet или Folder.
func (f *Facade) CreateGroup(
	ctx context.Context,
	tenantID string,
	req GroupRequest,
	actor model.Actor,
) (group *model.Group, err error) {
	defer func() { observe(model.OpCreate, err) }()

	if _, err = f.authorize(ctx, tenantID, model.OpCreate, actor); err != nil {
		return nil, err
	}
	return f.registry.CreateGroup(ctx, tenantID, req, actor)
}

// GetGroup возвращает группу с участниками.
func (f *Facade) GetGroup(
	ctx context.Context,
	tenantID, groupID string,
	actor model.Actor,
) (group *model.Group, err error) {
	defer func() { observe(model.OpQuery, err) }()

	if _, err = f.authorize(ctx, tenantID, model.OpQuery, actor); err != nil {
		return nil, err
	}
	return f.registry.GetGroup(ctx, tenantID, groupID)
}

// observe учитывает операцию в метрике dr_registry_operations_total.
func observe(op model.Operation, err error) {
	registryOperationsTotal.WithLabelValues(string(op), ResultLabel(err)).Inc()
}

// ResultLabel возвращает метку результата операции для метрик.
func ResultLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, model.ErrTenantNotFound):
		return "tenant_not_found"
	case errors.Is(err, model.ErrRegistryDisabled):
		return "registry_disabled"
	case errors.Is(err, model.ErrForbidden):
		return "forbidden"
	case errors.Is(err, model.ErrNotFound):
		return "not_found"
	case errors.Is(err, model.ErrDeprecatedRequiresForce):
		return "requires_force"
	case errors.Is(err, model.ErrDeprecated):
		return "deprecated"
	case errors.Is(err, model.ErrIntegrityViolation):
		return "integrity_violation"
	case errors.Is(err, model.ErrValidation):
		return "validation_error"
	case errors.Is(err, model.ErrConflict):
		return "conflict"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "error"
	}
}
