package repository

import (
	"context"
	"fmt"

	"github.com/bigkaa/goartstore/document-registry/internal/domain/model"
)

// AssociationRepository — интерфейс для таблицы associations.
type AssociationRepository interface {
	// Create вставляет связь.
	Create(ctx context.Context, a *model.Association) error
	// ListByObject возвращает связи, где объект — источник или цель.
	ListByObject(ctx context.Context, tenantID, objectID string) ([]*model.Association, error)
	// DeleteByObject удаляет все связи объекта. Возвращает число удалённых.
	DeleteByObject(ctx context.Context, tenantID, objectID string) (int, error)
	// ListMembers возвращает связи HasMember группы.
	ListMembers(ctx context.Context, tenantID, groupID string) ([]*model.Association, error)
}

const associationColumns = `id, tenant_id, type, source_id, source_type, target_id, target_type, created_by, created_at`

type associationRepo struct {
	db DBTX
}

// NewAssociationRepository создаёт репозиторий связей.
func NewAssociationRepository(db DBTX) AssociationRepository {
	return &associationRepo{db: db}
}

func (r *associationRepo) Create(ctx context.Context, a *model.Association) error {
	query := `
		INSERT INTO associations (id, tenant_id, type, source_id, source_type,
			target_id, target_type, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.db.Exec(ctx, query,
		a.ID, a.TenantID, string(a.Type), a.SourceID, string(a.SourceType),
		a.TargetID, string(a.TargetType), a.CreatedBy, a.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: связь %s %s → %s", model.ErrConflict, a.Type, a.SourceID, a.TargetID)
		}
		return fmt.Errorf("ошибка создания связи: %w", err)
	}
	return nil
}

func (r *associationRepo) ListByObject(ctx context.Context, tenantID, objectID string) ([]*model.Association, error) {
	if !isUUID(objectID) {
		return []*model.Association{}, nil
	}
	query := `SELECT ` + associationColumns + `
		FROM associations
		WHERE tenant_id = $1 AND (source_id = $2 OR target_id = $2)
		ORDER BY created_at, id`
	return r.list(ctx, query, tenantID, objectID)
}

func (r *associationRepo) ListMembers(ctx context.Context, tenantID, groupID string) ([]*model.Association, error) {
	if !isUUID(groupID) {
		return []*model.Association{}, nil
	}
	query := `SELECT ` + associationColumns + `
		FROM associations
		WHERE tenant_id = $1 AND source_id = $2 AND type = 'HasMember'
		ORDER BY created_at, target_id`
	return r.list(ctx, query, tenantID, groupID)
}

func (r *associationRepo) list(ctx context.Context, query string, args ...any) ([]*model.Association, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения связей: %w", err)
	}
	defer rows.Close()

	result := []*model.Association{}
	for rows.Next() {
		a := &model.Association{}
		var typ, srcType, tgtType string
		if err := rows.Scan(
			&a.ID, &a.TenantID, &typ, &a.SourceID, &srcType,
			&a.TargetID, &tgtType, &a.CreatedBy, &a.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("ошибка сканирования связи: %w", err)
		}
		a.Type = model.AssociationType(typ)
		a.SourceType = model.ObjectType(srcType)
		a.TargetType = model.ObjectType(tgtType)
		result = append(result, a)
	}
	return result, rows.Err()
}

func (r *associationRepo) DeleteByObject(ctx context.Context, tenantID, objectID string) (int, error) {
	if !isUUID(objectID) {
		return 0, nil
	}
	tag, err := r.db.Exec(ctx,
		`DELETE FROM associations WHERE tenant_id = $1 AND (source_id = $2 OR target_id = $2)`,
		tenantID, objectID,
	)
	if err != nil {
		return 0, fmt.Errorf("ошибка удаления связей: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
