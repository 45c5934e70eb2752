package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/goartstore/document-registry/internal/domain/model"
)

// TenantRepository — конфигурация реестра тенантов (таблица tenants).
type TenantRepository interface {
	Get(ctx context.Context, tenantID string) (*model.Tenant, error)
	List(ctx context.Context) ([]*model.Tenant, error)
	// Upsert создаёт или заменяет конфигурацию тенанта.
	Upsert(ctx context.Context, t *model.Tenant) error
	// SetStoragePath сохраняет путь хранения тенанта.
	SetStoragePath(ctx context.Context, tenantID, storagePath string) error
}

type tenantRepo struct {
	db DBTX
}

// NewTenantRepository создаёт репозиторий конфигурации тенантов.
func NewTenantRepository(db DBTX) TenantRepository {
	return &tenantRepo{db: db}
}

const tenantColumns = `id, name, registry_enabled, storage_path, repository_unique_id, permissions, updated_at`

func scanTenant(row pgx.Row) (*model.Tenant, error) {
	t := &model.Tenant{}
	var perms []byte
	if err := row.Scan(
		&t.ID, &t.Name, &t.RegistryEnabled, &t.StoragePath, &t.RepositoryUniqueID, &perms, &t.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if len(perms) > 0 {
		if err := json.Unmarshal(perms, &t.Permissions); err != nil {
			return nil, fmt.Errorf("некорректные permissions тенанта %s: %w", t.ID, err)
		}
	}
	return t, nil
}

func (r *tenantRepo) Get(ctx context.Context, tenantID string) (*model.Tenant, error) {
	t, err := scanTenant(r.db.QueryRow(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, tenantID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", model.ErrTenantNotFound, tenantID)
		}
		return nil, fmt.Errorf("ошибка получения тенанта: %w", err)
	}
	return t, nil
}

func (r *tenantRepo) List(ctx context.Context) ([]*model.Tenant, error) {
	rows, err := r.db.Query(ctx, `SELECT `+tenantColumns+` FROM tenants ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка тенантов: %w", err)
	}
	defer rows.Close()

	result := []*model.Tenant{}
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования тенанта: %w", err)
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

func (r *tenantRepo) Upsert(ctx context.Context, t *model.Tenant) error {
	var perms []byte
	if t.Permissions != nil {
		var err error
		if perms, err = json.Marshal(t.Permissions); err != nil {
			return fmt.Errorf("ошибка сериализации permissions: %w", err)
		}
	}

	query := `
		INSERT INTO tenants (id, name, registry_enabled, storage_path, repository_unique_id, permissions)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			registry_enabled = EXCLUDED.registry_enabled,
			storage_path = EXCLUDED.storage_path,
			repository_unique_id = EXCLUDED.repository_unique_id,
			permissions = EXCLUDED.permissions,
			updated_at = NOW()
		RETURNING updated_at`

	err := r.db.QueryRow(ctx, query,
		t.ID, t.Name, t.RegistryEnabled, t.StoragePath, t.RepositoryUniqueID, perms,
	).Scan(&t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("ошибка сохранения тенанта: %w", err)
	}
	return nil
}

func (r *tenantRepo) SetStoragePath(ctx context.Context, tenantID, storagePath string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE tenants SET storage_path = $2, updated_at = NOW() WHERE id = $1`,
		tenantID, storagePath,
	)
	if err != nil {
		return fmt.Errorf("ошибка сохранения пути хранения: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", model.ErrTenantNotFound, tenantID)
	}
	return nil
}
