package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/goartstore/document-registry/internal/domain/model"
)

// GroupRepository — интерфейс для таблицы registry_groups.
type GroupRepository interface {
	Create(ctx context.Context, g *model.Group) error
	GetByID(ctx context.Context, tenantID, id string) (*model.Group, error)
}

type groupRepo struct {
	db DBTX
}

// NewGroupRepository создаёт репозиторий групп (SubmissionSet / Folder).
func NewGroupRepository(db DBTX) GroupRepository {
	return &groupRepo{db: db}
}

func (r *groupRepo) Create(ctx context.Context, g *model.Group) error {
	query := `
		INSERT INTO registry_groups (id, tenant_id, kind, title, source_tag, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.db.Exec(ctx, query,
		g.ID, g.TenantID, string(g.Kind), g.Title, g.SourceTag, g.CreatedBy, g.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: группа %s", model.ErrConflict, g.ID)
		}
		return fmt.Errorf("ошибка создания группы: %w", err)
	}
	return nil
}

func (r *groupRepo) GetByID(ctx context.Context, tenantID, id string) (*model.Group, error) {
	if !isUUID(id) {
		return nil, fmt.Errorf("%w: группа %s", model.ErrNotFound, id)
	}

	query := `
		SELECT id, tenant_id, kind, title, source_tag, created_by, created_at
		FROM registry_groups
		WHERE tenant_id = $1 AND id = $2`

	g := &model.Group{}
	var kind string
	err := r.db.QueryRow(ctx, query, tenantID, id).Scan(
		&g.ID, &g.TenantID, &kind, &g.Title, &g.SourceTag, &g.CreatedBy, &g.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: группа %s", model.ErrNotFound, id)
		}
		return nil, fmt.Errorf("ошибка получения группы: %w", err)
	}
	g.Kind = model.GroupKind(kind)
	return g, nil
}
