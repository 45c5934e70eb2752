package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/goartstore/document-registry/internal/domain/lifecycle"
	"github.com/bigkaa/goartstore/document-registry/internal/domain/model"
)

// DocumentRepository — интерфейс CRUD для таблицы document_entries.
type DocumentRepository interface {
	// Create вставляет новую запись.
	Create(ctx context.Context, d *model.DocumentEntry) error
	// GetByID возвращает запись по внутреннему ID.
	GetByID(ctx context.Context, tenantID, id string) (*model.DocumentEntry, error)
	// GetByUniqueID возвращает запись по внешнему идентификатору.
	GetByUniqueID(ctx context.Context, tenantID, uniqueID string) (*model.DocumentEntry, error)
	// GetByEntryUUID возвращает запись по устаревшему псевдониму.
	GetByEntryUUID(ctx context.Context, tenantID, entryUUID string) (*model.DocumentEntry, error)
	// GetForUpdate читает запись с блокировкой строки (только внутри транзакции).
	GetForUpdate(ctx context.Context, tenantID, id string) (*model.DocumentEntry, error)
	// List возвращает страницу записей по фильтрам.
	List(ctx context.Context, tenantID string, q model.DocumentQuery) ([]*model.DocumentEntry, error)
	// Count возвращает количество записей по фильтрам.
	Count(ctx context.Context, tenantID string, q model.DocumentQuery) (int, error)
	// Deprecate переводит Approved-запись в Deprecated.
	Deprecate(ctx context.Context, tenantID, id string, dep model.Deprecation) (*model.DocumentEntry, error)
	// Delete удаляет запись. Возвращает false, если записи не было.
	Delete(ctx context.Context, tenantID, id string) (bool, error)
	// SetPatientKind проставляет тип пациента записи без тега.
	SetPatientKind(ctx context.Context, tenantID, id string, kind model.PatientKind) error
	// BlobIDs возвращает множество blob, на которые ссылаются записи тенанта.
	BlobIDs(ctx context.Context, tenantID string) (map[string]struct{}, error)
}

// documentColumns — порядок колонок для SELECT и scanDocument.
const documentColumns = `id, tenant_id, unique_id, entry_uuid, repository_unique_id,
	blob_id, size, mime_type, hash, patient_kind, patient_id,
	title, comments, class_code, type_codes, format_code,
	confidentiality_codes, authors, creation_time, service_start_time, service_stop_time,
	language_code, source_tag, availability_status, deprecated_at, deprecated_by,
	deprecation_reason, major_version, minor_version, created_by, created_at, updated_at`

// documentRepo — реализация DocumentRepository.
type documentRepo struct {
	db DBTX
}

// NewDocumentRepository создаёт репозиторий записей реестра.
func NewDocumentRepository(db DBTX) DocumentRepository {
	return &documentRepo{db: db}
}

// scanDocument читает одну запись в порядке documentColumns.
func scanDocument(row pgx.Row) (*model.DocumentEntry, error) {
	d := &model.DocumentEntry{}
	var entryUUID, patientKind *string
	var status string
	err := row.Scan(
		&d.ID, &d.TenantID, &d.UniqueID, &entryUUID, &d.RepositoryUniqueID,
		&d.BlobID, &d.Size, &d.MimeType, &d.Hash, &patientKind, &d.Patient.ID,
		&d.Title, &d.Comments, &d.ClassCode, &d.TypeCodes, &d.FormatCode,
		&d.ConfidentialityCodes, &d.Authors, &d.CreationTime, &d.ServiceStartTime, &d.ServiceStopTime,
		&d.LanguageCode, &d.SourceTag, &status, &d.DeprecatedAt, &d.DeprecatedBy,
		&d.DeprecationReason, &d.MajorVersion, &d.MinorVersion, &d.CreatedBy, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	d.EntryUUID = derefString(entryUUID)
	d.Patient.Kind = model.PatientKind(derefString(patientKind))
	if d.AvailabilityStatus, err = lifecycle.ParseStatus(status); err != nil {
		return nil, fmt.Errorf("запись %s: %w", d.ID, err)
	}
	return d, nil
}

func (r *documentRepo) Create(ctx context.Context, d *model.DocumentEntry) error {
	query := `
		INSERT INTO document_entries (id, tenant_id, unique_id, entry_uuid, repository_unique_id,
			blob_id, size, mime_type, hash, patient_kind, patient_id,
			title, comments, class_code, type_codes, format_code,
			confidentiality_codes, authors, creation_time, service_start_time, service_stop_time,
			language_code, source_tag, availability_status, major_version, minor_version,
			created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
			$17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29)`

	_, err := r.db.Exec(ctx, query,
		d.ID, d.TenantID, d.UniqueID, nullString(d.EntryUUID), d.RepositoryUniqueID,
		d.BlobID, d.Size, d.MimeType, d.Hash, nullString(string(d.Patient.Kind)), d.Patient.ID,
		d.Title, d.Comments, d.ClassCode, nonNil(d.TypeCodes), d.FormatCode,
		nonNil(d.ConfidentialityCodes), nonNil(d.Authors), d.CreationTime, d.ServiceStartTime, d.ServiceStopTime,
		d.LanguageCode, d.SourceTag, string(d.AvailabilityStatus), d.MajorVersion, d.MinorVersion,
		d.CreatedBy, d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: документ с unique_id %s или entry_uuid %q уже зарегистрирован",
				model.ErrConflict, d.UniqueID, d.EntryUUID)
		}
		return fmt.Errorf("ошибка создания записи реестра: %w", err)
	}
	return nil
}

func (r *documentRepo) GetByID(ctx context.Context, tenantID, id string) (*model.DocumentEntry, error) {
	if !isUUID(id) {
		return nil, fmt.Errorf("%w: документ %s", model.ErrNotFound, id)
	}
	return r.getOne(ctx, `WHERE tenant_id = $1 AND id = $2`, tenantID, id)
}

func (r *documentRepo) GetByUniqueID(ctx context.Context, tenantID, uniqueID string) (*model.DocumentEntry, error) {
	return r.getOne(ctx, `WHERE tenant_id = $1 AND unique_id = $2`, tenantID, uniqueID)
}

func (r *documentRepo) GetByEntryUUID(ctx context.Context, tenantID, entryUUID string) (*model.DocumentEntry, error) {
	return r.getOne(ctx, `WHERE tenant_id = $1 AND entry_uuid = $2`, tenantID, entryUUID)
}

func (r *documentRepo) GetForUpdate(ctx context.Context, tenantID, id string) (*model.DocumentEntry, error) {
	if !isUUID(id) {
		return nil, fmt.Errorf("%w: документ %s", model.ErrNotFound, id)
	}
	return r.getOne(ctx, `WHERE tenant_id = $1 AND id = $2 FOR UPDATE`, tenantID, id)
}

func (r *documentRepo) getOne(ctx context.Context, where string, tenantID, key string) (*model.DocumentEntry, error) {
	query := `SELECT ` + documentColumns + ` FROM document_entries ` + where

	d, err := scanDocument(r.db.QueryRow(ctx, query, tenantID, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: документ %s", model.ErrNotFound, key)
		}
		return nil, fmt.Errorf("ошибка получения записи реестра: %w", err)
	}
	return d, nil
}

// buildDocumentWhere строит WHERE-условие и аргументы для фильтрации записей.
// Первый аргумент ($1) — всегда tenant_id.
func buildDocumentWhere(tenantID string, q model.DocumentQuery) (string, []any) {
	conditions := []string{"tenant_id = $1"}
	args := []any{tenantID}
	argNum := 2

	add := func(cond string, val any) {
		conditions = append(conditions, fmt.Sprintf(cond, argNum))
		args = append(args, val)
		argNum++
	}

	if !q.IncludeDeprecated {
		conditions = append(conditions, "availability_status = 'Approved'")
	}
	if q.PatientID != "" {
		add("patient_id = $%d", q.PatientID)
	}
	if q.ClassCode != "" {
		add("class_code = $%d", q.ClassCode)
	}
	if q.TypeCode != "" {
		add("$%d = ANY(type_codes)", q.TypeCode)
	}
	if q.FormatCode != "" {
		add("format_code = $%d", q.FormatCode)
	}
	if q.SourceTag != "" {
		add("source_tag = $%d", q.SourceTag)
	}
	if q.TitleContains != "" {
		add("strpos(lower(title), lower($%d)) > 0", q.TitleContains)
	}
	if q.CreatedFrom != nil {
		add("creation_time >= $%d", *q.CreatedFrom)
	}
	if q.CreatedTo != nil {
		add("creation_time <= $%d", *q.CreatedTo)
	}

	return "WHERE " + strings.Join(conditions, " AND "), args
}

func (r *documentRepo) List(ctx context.Context, tenantID string, q model.DocumentQuery) ([]*model.DocumentEntry, error) {
	q.Normalize()
	where, args := buildDocumentWhere(tenantID, q)
	argNum := len(args) + 1

	query := fmt.Sprintf(`
		SELECT %s
		FROM document_entries
		%s
		ORDER BY creation_time DESC, created_at DESC, id
		LIMIT $%d OFFSET $%d`, documentColumns, where, argNum, argNum+1)

	args = append(args, q.Limit, q.Offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка поиска записей реестра: %w", err)
	}
	defer rows.Close()

	result := []*model.DocumentEntry{}
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования записи реестра: %w", err)
		}
		result = append(result, d)
	}
	return result, rows.Err()
}

func (r *documentRepo) Count(ctx context.Context, tenantID string, q model.DocumentQuery) (int, error) {
	where, args := buildDocumentWhere(tenantID, q)
	query := fmt.Sprintf(`SELECT COUNT(*) FROM document_entries %s`, where)

	var count int
	if err := r.db.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("ошибка подсчёта записей реестра: %w", err)
	}
	return count, nil
}

func (r *documentRepo) Deprecate(ctx context.Context, tenantID, id string, dep model.Deprecation) (*model.DocumentEntry, error) {
	if !isUUID(id) {
		return nil, fmt.Errorf("%w: документ %s", model.ErrNotFound, id)
	}

	query := `
		UPDATE document_entries
		SET availability_status = 'Deprecated', deprecated_at = $3, deprecated_by = $4,
			deprecation_reason = $5, updated_at = $3
		WHERE tenant_id = $1 AND id = $2 AND availability_status = 'Approved'
		RETURNING ` + documentColumns

	d, err := scanDocument(r.db.QueryRow(ctx, query, tenantID, id, dep.At, dep.By, dep.Reason))
	if err == nil {
		return d, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("ошибка отзыва записи реестра: %w", err)
	}

	// Ни одной строки: записи нет либо переход из текущего статуса недопустим
	cur, getErr := r.GetByID(ctx, tenantID, id)
	if getErr != nil {
		return nil, getErr
	}
	if err := lifecycle.Transition(cur.AvailabilityStatus, model.StatusDeprecated); err != nil {
		return nil, fmt.Errorf("документ %s: %w", id, err)
	}
	return nil, fmt.Errorf("%w: документ %s изменён конкурентно", model.ErrConflict, id)
}

func (r *documentRepo) Delete(ctx context.Context, tenantID, id string) (bool, error) {
	if !isUUID(id) {
		return false, nil
	}
	tag, err := r.db.Exec(ctx, `DELETE FROM document_entries WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	if err != nil {
		return false, fmt.Errorf("ошибка удаления записи реестра: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *documentRepo) SetPatientKind(ctx context.Context, tenantID, id string, kind model.PatientKind) error {
	if !isUUID(id) {
		return fmt.Errorf("%w: документ %s", model.ErrNotFound, id)
	}
	query := `
		UPDATE document_entries
		SET patient_kind = $3
		WHERE tenant_id = $1 AND id = $2 AND patient_kind IS NULL`

	tag, err := r.db.Exec(ctx, query, tenantID, id, string(kind))
	if err != nil {
		return fmt.Errorf("ошибка обновления типа пациента: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Тег уже проставлен или записи нет
		if _, err := r.GetByID(ctx, tenantID, id); err != nil {
			return err
		}
	}
	return nil
}

func (r *documentRepo) BlobIDs(ctx context.Context, tenantID string) (map[string]struct{}, error) {
	rows, err := r.db.Query(ctx, `SELECT blob_id FROM document_entries WHERE tenant_id = $1`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения blob_id: %w", err)
	}
	defer rows.Close()

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("ошибка сканирования blob_id: %w", err)
		}
		ids[id] = struct{}{}
	}
	return ids, rows.Err()
}

// nonNil заменяет nil-срез пустым (колонки TEXT[] NOT NULL).
func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
