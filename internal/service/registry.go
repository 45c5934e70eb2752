// Пакет service — бизнес-логика реестра клинических документов.
// registry.go — жизненный цикл DocumentEntry: регистрация, замена версией,
// отзыв, удаление, поиск. Содержимое хранится в contentstore, каждая
// пишущая операция сопровождается WAL-маркером.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/goartstore/document-registry/internal/domain/lifecycle"
	"github.com/bigkaa/goartstore/document-registry/internal/domain/model"
	"github.com/bigkaa/goartstore/document-registry/internal/storage/contentstore"
	"github.com/bigkaa/goartstore/document-registry/internal/storage/wal"
)

// orphanedBlobsTotal — blob, оставшиеся без записи реестра после сбоя.
var orphanedBlobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "dr_orphaned_blobs_total",
	Help: "Количество blob, осиротевших после сбоя на шаге метаданных",
}, []string{"operation"})

// DocumentStore — хранилище записей реестра, связей и групп.
// Реализуется index.Index (memory) и repository.RegistryStore (PostgreSQL).
type DocumentStore interface {
	CreateDocument(ctx context.Context, entry *model.DocumentEntry) error
	GetDocument(ctx context.Context, tenantID, id string) (*model.DocumentEntry, error)
	GetDocumentByUniqueID(ctx context.Context, tenantID, uniqueID string) (*model.DocumentEntry, error)
	GetDocumentByEntryUUID(ctx context.Context, tenantID, entryUUID string) (*model.DocumentEntry, error)
	QueryDocuments(ctx context.Context, tenantID string, q model.DocumentQuery) ([]*model.DocumentEntry, int, error)
	DeprecateDocument(ctx context.Context, tenantID, id string, dep model.Deprecation) (*model.DocumentEntry, error)
	// ReplaceDocument атомарно применяет все три эффекта замены.
	ReplaceDocument(ctx context.Context, r model.Replacement) error
	// DeleteDocument удаляет запись вместе со связями.
	DeleteDocument(ctx context.Context, tenantID, id string) (bool, error)
	SetPatientKind(ctx context.Context, tenantID, id string, kind model.PatientKind) error
	ListAssociations(ctx context.Context, tenantID, objectID string) ([]*model.Association, error)
	CreateGroup(ctx context.Context, group *model.Group, members []*model.Association) error
	GetGroup(ctx context.Context, tenantID, id string) (*model.Group, error)
	BlobIDs(ctx context.Context, tenantID string) (map[string]struct{}, error)
}

// RegistryOptions — параметры реестра.
type RegistryOptions struct {
	// DefaultLanguage — languageCode для документов без языка
	DefaultLanguage string
	// MaxDocumentSize — предел размера содержимого в байтах (0 — без предела)
	MaxDocumentSize int64
	// Patients — справочник пациентов (nil — без проверки)
	Patients PatientDirectory
}

// Registry — реестр документов тенантов.
type Registry struct {
	docs     DocumentStore
	content  *contentstore.Store
	wal      *wal.WAL
	patients PatientDirectory
	locks    *keyedMutex
	opts     RegistryOptions
	logger   *slog.Logger
	now      func() time.Time
}

// NewRegistry создаёт реестр документов.
func NewRegistry(
	docs DocumentStore,
	content *contentstore.Store,
	walEngine *wal.WAL,
	opts RegistryOptions,
	logger *slog.Logger,
) *Registry {
	return &Registry{
		docs:     docs,
		content:  content,
		wal:      walEngine,
		patients: opts.Patients,
		locks:    newKeyedMutex(),
		opts:     opts,
		logger:   logger.With(slog.String("component", "registry")),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Create регистрирует новый документ версии 1.0.
//
// Поток:
//  1. Валидация метаданных, пациента и свободы идентификаторов (без побочных эффектов)
//  2. WAL StartTransaction
//  3. Сохранение содержимого
//  4. Создание записи реестра
//  5. WAL Commit
//
// Сбой на шаге 4 оставляет blob на диске: маркер переводится в orphaned.
func (r *Registry) Create(
	ctx context.Context,
	tenant *model.Tenant,
	content io.Reader,
	meta model.DocumentMetadata,
	actor model.Actor,
) (*model.DocumentEntry, error) {
	if err := meta.Validate(); err != nil {
		return nil, err
	}
	patient, err := resolvePatient(ctx, r.patients, tenant.ID, meta.Patient)
	if err != nil {
		return nil, err
	}
	meta.Patient = patient
	if err := r.checkIdentifiersFree(ctx, tenant.ID, meta); err != nil {
		return nil, err
	}

	entryID := uuid.New().String()
	tx, err := r.wal.StartTransaction(wal.OpRegister, tenant.ID, entryID)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания WAL-транзакции: %w", err)
	}

	stored, err := r.content.Store(ctx, tenant.ID, r.limit(content), contentstore.BlobDescriptor{
		MimeType:     meta.MimeType,
		OriginalName: meta.OriginalName,
		UploadedBy:   actor.ID,
	})
	if err != nil {
		r.rollback(tx, err)
		return nil, err
	}
	r.recordBlob(tx, stored.BlobID)

	entry := r.newEntry(tenant, entryID, meta, stored, actor)
	entry.MajorVersion, entry.MinorVersion = 1, 0

	if err := r.docs.CreateDocument(ctx, entry); err != nil {
		r.orphaned(tx, tenant.ID, stored.BlobID, entryID, err)
		return nil, err
	}
	r.commit(tx)

	r.logger.Info("Документ зарегистрирован",
		slog.String("tenant_id", tenant.ID),
		slog.String("document_id", entry.ID),
		slog.String("unique_id", entry.UniqueID),
		slog.String("blob_id", entry.BlobID),
		slog.Int64("size", entry.Size),
		slog.String("created_by", actor.ID),
	)
	return entry, nil
}

// Query возвращает страницу записей тенанта и общее количество подходящих.
func (r *Registry) Query(ctx context.Context, tenantID string, q model.DocumentQuery) ([]*model.DocumentEntry, int, error) {
	if q.CreatedFrom != nil && q.CreatedTo != nil && q.CreatedTo.Before(*q.CreatedFrom) {
		return nil, 0, &model.ValidationError{
			Fields:  []string{"createdFrom", "createdTo"},
			Message: "конец диапазона раньше начала",
		}
	}
	q.Normalize()
	return r.docs.QueryDocuments(ctx, tenantID, q)
}

// Resolve ищет запись по внутреннему ID, внешнему идентификатору
// или устаревшему псевдониму entryUUID — строго в этом порядке.
func (r *Registry) Resolve(ctx context.Context, tenantID, key string) (*model.DocumentEntry, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, fmt.Errorf("%w: пустой идентификатор документа", model.ErrNotFound)
	}

	lookups := []func(context.Context, string, string) (*model.DocumentEntry, error){
		r.docs.GetDocument,
		r.docs.GetDocumentByUniqueID,
		r.docs.GetDocumentByEntryUUID,
	}
	for _, lookup := range lookups {
		entry, err := lookup(ctx, tenantID, key)
		if err == nil {
			return entry, nil
		}
		if !errors.Is(err, model.ErrNotFound) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: документ %s", model.ErrNotFound, key)
}

// Retrieve возвращает Approved-запись и проверенное содержимое.
// Хеш содержимого пересчитывается при каждом чтении.
func (r *Registry) Retrieve(ctx context.Context, tenantID, key string) (*model.DocumentEntry, []byte, error) {
	entry, err := r.Resolve(ctx, tenantID, key)
	if err != nil {
		return nil, nil, err
	}
	if err := lifecycle.Require(entry, model.OpRetrieve); err != nil {
		return nil, nil, err
	}

	rec, data, err := r.content.Retrieve(ctx, tenantID, entry.BlobID)
	if err != nil {
		return nil, nil, err
	}
	// Sidecar и запись реестра должны описывать одно и то же содержимое
	if rec.Hash != entry.Hash {
		r.logger.Error("Хеш sidecar не совпадает с записью реестра",
			slog.String("tenant_id", tenantID),
			slog.String("document_id", entry.ID),
			slog.String("blob_id", entry.BlobID),
		)
		return nil, nil, &model.IntegrityError{BlobID: entry.BlobID, Expected: entry.Hash, Actual: rec.Hash}
	}

	r.backfillPatientKind(ctx, entry)
	return entry, data, nil
}

// backfillPatientKind проставляет тег пациента записи без тега.
// Ошибки не прерывают чтение.
func (r *Registry) backfillPatientKind(ctx context.Context, entry *model.DocumentEntry) {
	if entry.Patient.IsTagged() {
		return
	}
	ref, err := resolvePatient(ctx, r.patients, entry.TenantID, entry.Patient)
	if err != nil {
		r.logger.Warn("Не удалось определить тип пациента",
			slog.String("document_id", entry.ID),
			slog.String("patient_id", entry.Patient.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	if err := r.docs.SetPatientKind(ctx, entry.TenantID, entry.ID, ref.Kind); err != nil {
		r.logger.Warn("Не удалось сохранить тип пациента",
			slog.String("document_id", entry.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	entry.Patient.Kind = ref.Kind
	r.logger.Debug("Тип пациента проставлен",
		slog.String("document_id", entry.ID),
		slog.String("patient_kind", string(ref.Kind)),
	)
}

// Replace создаёт новую версию документа.
//
// Поток (под блокировкой tenant + id старой записи):
//  1. Перечитывание старой записи, проверка статуса
//  2. Слияние метаданных и валидация
//  3. WAL StartTransaction
//  4. Сохранение нового содержимого с previousVersion
//  5. Атомарно: новая запись (major+1.0), связь Replaces, отзыв старой записи
//  6. WAL Commit, отзыв старого blob
//
// Сбой на шаге 5 оставляет новый blob осиротевшим; старая запись не меняется.
func (r *Registry) Replace(
	ctx context.Context,
	tenant *model.Tenant,
	key string,
	content io.Reader,
	overrides *model.DocumentMetadata,
	actor model.Actor,
) (*model.DocumentEntry, error) {
	found, err := r.Resolve(ctx, tenant.ID, key)
	if err != nil {
		return nil, err
	}

	unlock := r.locks.Lock(documentLockKey(tenant.ID, found.ID))
	defer unlock()

	old, err := r.docs.GetDocument(ctx, tenant.ID, found.ID)
	if err != nil {
		return nil, err
	}
	if err := lifecycle.Require(old, model.OpUpdate); err != nil {
		return nil, err
	}

	meta := overrides.MergeInto(old)
	if err := meta.Validate(); err != nil {
		return nil, err
	}
	if meta.Patient, err = resolvePatient(ctx, r.patients, tenant.ID, meta.Patient); err != nil {
		return nil, err
	}
	if err := r.checkIdentifiersFree(ctx, tenant.ID, meta); err != nil {
		return nil, err
	}

	entryID := uuid.New().String()
	tx, err := r.wal.StartTransaction(wal.OpReplace, tenant.ID, entryID)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания WAL-транзакции: %w", err)
	}

	stored, err := r.content.Update(ctx, tenant.ID, old.BlobID, r.limit(content), contentstore.BlobDescriptor{
		MimeType:     meta.MimeType,
		OriginalName: meta.OriginalName,
		UploadedBy:   actor.ID,
	})
	if err != nil {
		r.rollback(tx, err)
		return nil, err
	}
	r.recordBlob(tx, stored.BlobID)

	entry := r.newEntry(tenant, entryID, meta, stored, actor)
	entry.MajorVersion, entry.MinorVersion = old.MajorVersion+1, 0

	replacement := model.Replacement{
		TenantID: tenant.ID,
		OldID:    old.ID,
		New:      entry,
		Association: &model.Association{
			ID:         uuid.New().String(),
			TenantID:   tenant.ID,
			Type:       model.AssociationReplaces,
			SourceID:   entry.ID,
			SourceType: model.ObjectDocumentEntry,
			TargetID:   old.ID,
			TargetType: model.ObjectDocumentEntry,
			CreatedBy:  actor.ID,
			CreatedAt:  entry.CreatedAt,
		},
		Deprecation: model.Deprecation{By: actor.ID, Reason: model.ReplacedReason, At: entry.CreatedAt},
	}
	if err := r.docs.ReplaceDocument(ctx, replacement); err != nil {
		r.orphaned(tx, tenant.ID, stored.BlobID, entryID, err)
		return nil, err
	}
	r.commit(tx)

	if err := r.content.Deprecate(ctx, tenant.ID, old.BlobID); err != nil {
		r.logger.Warn("Не удалось отозвать заменённый blob",
			slog.String("tenant_id", tenant.ID),
			slog.String("blob_id", old.BlobID),
			slog.String("error", err.Error()),
		)
	}

	r.logger.Info("Документ заменён новой версией",
		slog.String("tenant_id", tenant.ID),
		slog.String("old_document_id", old.ID),
		slog.String("document_id", entry.ID),
		slog.String("version", entry.Version()),
		slog.String("blob_id", entry.BlobID),
		slog.String("created_by", actor.ID),
	)
	return entry, nil
}

// Deprecate отзывает документ: сначала запись реестра, затем blob.
// Для уже отозванной записи повторяется только отзыв blob (идемпотентен),
// после чего возвращается model.ErrDeprecated.
func (r *Registry) Deprecate(
	ctx context.Context,
	tenant *model.Tenant,
	key string,
	actor model.Actor,
	reason string,
) (*model.DocumentEntry, error) {
	found, err := r.Resolve(ctx, tenant.ID, key)
	if err != nil {
		return nil, err
	}

	unlock := r.locks.Lock(documentLockKey(tenant.ID, found.ID))
	defer unlock()

	dep := model.Deprecation{By: actor.ID, Reason: strings.TrimSpace(reason), At: r.now()}
	entry, err := r.docs.DeprecateDocument(ctx, tenant.ID, found.ID, dep)
	if err != nil {
		if errors.Is(err, model.ErrDeprecated) {
			if derr := r.content.Deprecate(ctx, tenant.ID, found.BlobID); derr != nil {
				r.logger.Warn("Не удалось повторно отозвать blob",
					slog.String("tenant_id", tenant.ID),
					slog.String("document_id", found.ID),
					slog.String("blob_id", found.BlobID),
					slog.String("error", derr.Error()),
				)
			}
		}
		return nil, err
	}

	if err := r.content.Deprecate(ctx, tenant.ID, entry.BlobID); err != nil {
		r.logger.Error("Запись отозвана, blob — нет",
			slog.String("tenant_id", tenant.ID),
			slog.String("document_id", entry.ID),
			slog.String("blob_id", entry.BlobID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("отзыв blob %s не завершён: %w", entry.BlobID, err)
	}

	r.logger.Info("Документ отозван",
		slog.String("tenant_id", tenant.ID),
		slog.String("document_id", entry.ID),
		slog.String("deprecated_by", actor.ID),
		slog.String("reason", dep.Reason),
	)
	return entry, nil
}

// Delete безвозвратно удаляет blob, запись и все её связи.
// Отсутствующая запись — успешный no-op.
// Deprecated-запись удаляется только с force.
func (r *Registry) Delete(
	ctx context.Context,
	tenant *model.Tenant,
	key string,
	actor model.Actor,
	force bool,
) error {
	found, err := r.Resolve(ctx, tenant.ID, key)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil
		}
		return err
	}

	unlock := r.locks.Lock(documentLockKey(tenant.ID, found.ID))
	defer unlock()

	entry, err := r.docs.GetDocument(ctx, tenant.ID, found.ID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil
		}
		return err
	}
	if entry.IsDeprecated() && !force {
		return fmt.Errorf("%w: документ %s", model.ErrDeprecatedRequiresForce, entry.ID)
	}

	tx, err := r.wal.StartTransaction(wal.OpDelete, tenant.ID, entry.ID)
	if err != nil {
		return fmt.Errorf("ошибка создания WAL-транзакции: %w", err)
	}
	r.recordBlob(tx, entry.BlobID)

	if err := r.content.Delete(ctx, tenant.ID, entry.BlobID, force); err != nil {
		r.rollback(tx, err)
		return err
	}
	if _, err := r.docs.DeleteDocument(ctx, tenant.ID, entry.ID); err != nil {
		// Содержимое удалено, запись осталась: маркер сохраняется для сверки
		if _, mErr := r.wal.MarkOrphaned(tx.TransactionID, err.Error()); mErr != nil {
			r.logger.Error("Ошибка записи WAL", slog.String("tx_id", tx.TransactionID), slog.String("error", mErr.Error()))
		}
		r.logger.Error("Blob удалён, запись реестра — нет",
			slog.String("tenant_id", tenant.ID),
			slog.String("document_id", entry.ID),
			slog.String("blob_id", entry.BlobID),
			slog.String("tx_id", tx.TransactionID),
			slog.String("error", err.Error()),
		)
		return err
	}
	r.commit(tx)

	r.logger.Info("Документ удалён",
		slog.String("tenant_id", tenant.ID),
		slog.String("document_id", entry.ID),
		slog.String("blob_id", entry.BlobID),
		slog.String("deleted_by", actor.ID),
		slog.Bool("force", force),
	)
	return nil
}

// ListAssociations возвращает связи документа (как источника и как цели).
func (r *Registry) ListAssociations(ctx context.Context, tenantID, key string) ([]*model.Association, error) {
	entry, err := r.Resolve(ctx, tenantID, key)
	if err != nil {
		return nil, err
	}
	return r.docs.ListAssociations(ctx, tenantID, entry.ID)
}

// GroupRequest — параметры создания SubmissionSet или Folder.
type GroupRequest struct {
	Kind      model.GroupKind `json:"kind"`
	Title     string          `json:"title,omitempty"`
	SourceTag string          `json:"source_tag,omitempty"`
	MemberIDs []string        `json:"member_ids"`
}

// CreateGroup создаёт группу со связями HasMember на Approved-документы.
func (r *Registry) CreateGroup(ctx context.Context, tenantID string, req GroupRequest, actor model.Actor) (*model.Group, error) {
	if !req.Kind.IsValid() {
		return nil, &model.ValidationError{
			Fields:  []string{"kind"},
			Message: "недопустимый вид группы " + string(req.Kind),
		}
	}

	now := r.now()
	group := &model.Group{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		Kind:      req.Kind,
		Title:     req.Title,
		SourceTag: req.SourceTag,
		CreatedBy: actor.ID,
		CreatedAt: now,
	}

	var members []*model.Association
	var memberIDs []string
	for _, key := range req.MemberIDs {
		entry, err := r.Resolve(ctx, tenantID, key)
		if err != nil {
			return nil, err
		}
		if entry.IsDeprecated() {
			return nil, fmt.Errorf("%w: документ %s нельзя добавить в группу", model.ErrDeprecated, entry.ID)
		}
		if slices.Contains(memberIDs, entry.ID) {
			continue
		}
		memberIDs = append(memberIDs, entry.ID)
		members = append(members, &model.Association{
			ID:         uuid.New().String(),
			TenantID:   tenantID,
			Type:       model.AssociationHasMember,
			SourceID:   group.ID,
			SourceType: req.Kind.ObjectType(),
			TargetID:   entry.ID,
			TargetType: model.ObjectDocumentEntry,
			CreatedBy:  actor.ID,
			CreatedAt:  now,
		})
	}

	if err := r.docs.CreateGroup(ctx, group, members); err != nil {
		return nil, err
	}
	group.MemberIDs = memberIDs
	if group.MemberIDs == nil {
		group.MemberIDs = []string{}
	}

	r.logger.Info("Группа создана",
		slog.String("tenant_id", tenantID),
		slog.String("group_id", group.ID),
		slog.String("kind", string(group.Kind)),
		slog.Int("members", len(memberIDs)),
	)
	return group, nil
}

// GetGroup возвращает группу с текущим составом.
func (r *Registry) GetGroup(ctx context.Context, tenantID, groupID string) (*model.Group, error) {
	return r.docs.GetGroup(ctx, tenantID, groupID)
}

// checkIdentifiersFree отклоняет занятые uniqueId и entryUUID до записи
// содержимого. Конфликт на уровне хранилища остаётся для гонок.
func (r *Registry) checkIdentifiersFree(ctx context.Context, tenantID string, meta model.DocumentMetadata) error {
	checks := []struct {
		field, value string
		lookup       func(context.Context, string, string) (*model.DocumentEntry, error)
	}{
		{"uniqueId", strings.TrimSpace(meta.UniqueID), r.docs.GetDocumentByUniqueID},
		{"entryUUID", strings.TrimSpace(meta.EntryUUID), r.docs.GetDocumentByEntryUUID},
	}
	for _, c := range checks {
		if c.value == "" {
			continue
		}
		existing, err := c.lookup(ctx, tenantID, c.value)
		if errors.Is(err, model.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		return fmt.Errorf("%w: %s %s уже занят записью %s", model.ErrConflict, c.field, c.value, existing.ID)
	}
	return nil
}

// newEntry формирует запись реестра из метаданных и результата сохранения.
func (r *Registry) newEntry(
	tenant *model.Tenant,
	id string,
	meta model.DocumentMetadata,
	stored *contentstore.StoreResult,
	actor model.Actor,
) *model.DocumentEntry {
	now := r.now()

	uniqueID := strings.TrimSpace(meta.UniqueID)
	if uniqueID == "" {
		uniqueID = "urn:uuid:" + uuid.New().String()
	}
	creation := now
	if meta.CreationTime != nil {
		creation = meta.CreationTime.UTC()
	}
	language := meta.LanguageCode
	if language == "" {
		language = r.opts.DefaultLanguage
	}

	return &model.DocumentEntry{
		ID:                   id,
		UniqueID:             uniqueID,
		EntryUUID:            strings.TrimSpace(meta.EntryUUID),
		TenantID:             tenant.ID,
		RepositoryUniqueID:   tenant.RepositoryUniqueID,
		BlobID:               stored.BlobID,
		Size:                 stored.Size,
		MimeType:             stored.MimeType,
		Hash:                 stored.Hash,
		Patient:              meta.Patient,
		Title:                meta.Title,
		Comments:             meta.Comments,
		ClassCode:            meta.ClassCode,
		TypeCodes:            slices.Clone(meta.TypeCodes),
		FormatCode:           meta.FormatCode,
		ConfidentialityCodes: slices.Clone(meta.ConfidentialityCodes),
		Authors:              slices.Clone(meta.Authors),
		CreationTime:         creation,
		ServiceStartTime:     meta.ServiceStartTime,
		ServiceStopTime:      meta.ServiceStopTime,
		LanguageCode:         language,
		SourceTag:            meta.SourceTag,
		AvailabilityStatus:   model.StatusApproved,
		CreatedBy:            actor.ID,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
}

// limit ограничивает размер читаемого содержимого.
func (r *Registry) limit(content io.Reader) io.Reader {
	if r.opts.MaxDocumentSize <= 0 {
		return content
	}
	return &sizeLimitReader{r: content, remaining: r.opts.MaxDocumentSize}
}

// --- WAL ---

func (r *Registry) recordBlob(tx *wal.Entry, blobID string) {
	if err := r.wal.RecordBlob(tx.TransactionID, blobID); err != nil {
		r.logger.Error("Ошибка записи blob в WAL",
			slog.String("tx_id", tx.TransactionID),
			slog.String("blob_id", blobID),
			slog.String("error", err.Error()),
		)
	}
}

func (r *Registry) rollback(tx *wal.Entry, cause error) {
	if err := r.wal.Rollback(tx.TransactionID, cause.Error()); err != nil {
		r.logger.Error("Ошибка отката WAL",
			slog.String("tx_id", tx.TransactionID),
			slog.String("error", err.Error()),
		)
	}
}

func (r *Registry) commit(tx *wal.Entry) {
	if err := r.wal.Commit(tx.TransactionID); err != nil {
		// Данные уже записаны, коммит WAL — best effort
		r.logger.Error("Ошибка коммита WAL (данные сохранены)",
			slog.String("tx_id", tx.TransactionID),
			slog.String("error", err.Error()),
		)
	}
}

// orphaned фиксирует blob, для которого не удалось создать запись реестра.
// Blob не удаляется: его находит сверка и оператор.
func (r *Registry) orphaned(tx *wal.Entry, tenantID, blobID, documentID string, cause error) {
	if _, err := r.wal.MarkOrphaned(tx.TransactionID, cause.Error()); err != nil {
		r.logger.Error("Ошибка записи WAL",
			slog.String("tx_id", tx.TransactionID),
			slog.String("error", err.Error()),
		)
	}
	orphanedBlobsTotal.WithLabelValues(string(tx.Operation)).Inc()

	r.logger.Error("Blob осиротел: запись реестра не создана",
		slog.String("tenant_id", tenantID),
		slog.String("blob_id", blobID),
		slog.String("document_id", documentID),
		slog.String("tx_id", tx.TransactionID),
		slog.String("operation", string(tx.Operation)),
		slog.Time("timestamp", r.now()),
		slog.String("error", cause.Error()),
	)
}

// sizeLimitReader возвращает ошибку валидации при превышении предела.
type sizeLimitReader struct {
	r         io.Reader
	remaining int64
}

func (l *sizeLimitReader) Read(p []byte) (int, error) {
	if l.remaining < 0 {
		return 0, &model.ValidationError{Fields: []string{"file"}, Message: "превышен максимальный размер документа"}
	}
	// Читаем на байт больше предела, чтобы отличить «ровно предел» от превышения
	if int64(len(p)) > l.remaining+1 {
		p = p[:l.remaining+1]
	}
	n, err := l.r.Read(p)
	l.remaining -= int64(n)
	if l.remaining < 0 {
		return 0, &model.ValidationError{Fields: []string{"file"}, Message: "превышен максимальный размер документа"}
	}
	return n, err
}
