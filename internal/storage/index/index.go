// Пакет index — потокобезопасное in-memory хранилище записей реестра.
//
// Используется при DR_REGISTRY_BACKEND=memory и в тестах сервисного слоя.
// Все составные операции (замена, каскадное удаление) выполняются под
// одной эксклюзивной блокировкой и наблюдаемо атомарны для читателей.
//
// Не персистентный: при рестарте содержимое теряется.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/bigkaa/goartstore/document-registry/internal/domain/lifecycle"
	"github.com/bigkaa/goartstore/document-registry/internal/domain/model"
)

// Index — in-memory хранилище DocumentEntry, связей и групп.
// Использует sync.RWMutex для конкурентного чтения и
// эксклюзивной записи.
type Index struct {
	mu           sync.RWMutex
	documents    map[string]*model.DocumentEntry // id → запись
	associations map[string]*model.Association   // id → связь
	groups       map[string]*model.Group         // id → группа
	logger       *slog.Logger
}

// New создаёт пустое хранилище.
func New(logger *slog.Logger) *Index {
	return &Index{
		documents:    make(map[string]*model.DocumentEntry),
		associations: make(map[string]*model.Association),
		groups:       make(map[string]*model.Group),
		logger:       logger.With(slog.String("component", "index")),
	}
}

// CreateDocument добавляет запись.
// Дубликат ID, UniqueID или EntryUUID в тенанте → ErrConflict.
func (idx *Index) CreateDocument(_ context.Context, entry *model.DocumentEntry) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if err := idx.checkUniqueLocked(entry); err != nil {
		return err
	}
	idx.documents[entry.ID] = entry.Clone()
	return nil
}

// checkUniqueLocked проверяет уникальность идентификаторов записи.
func (idx *Index) checkUniqueLocked(entry *model.DocumentEntry) error {
	if _, ok := idx.documents[entry.ID]; ok {
		return fmt.Errorf("%w: запись %s", model.ErrConflict, entry.ID)
	}
	for _, d := range idx.documents {
		if d.TenantID != entry.TenantID {
			continue
		}
		if d.UniqueID == entry.UniqueID {
			return fmt.Errorf("%w: unique_id %s", model.ErrConflict, entry.UniqueID)
		}
		if entry.EntryUUID != "" && d.EntryUUID == entry.EntryUUID {
			return fmt.Errorf("%w: entry_uuid %s", model.ErrConflict, entry.EntryUUID)
		}
	}
	return nil
}

// GetDocument возвращает запись по внутреннему ID.
func (idx *Index) GetDocument(_ context.Context, tenantID, id string) (*model.DocumentEntry, error) {
	return idx.find(tenantID, func(d *model.DocumentEntry) bool { return d.ID == id }, id)
}

// GetDocumentByUniqueID возвращает запись по внешнему идентификатору.
func (idx *Index) GetDocumentByUniqueID(_ context.Context, tenantID, uniqueID string) (*model.DocumentEntry, error) {
	return idx.find(tenantID, func(d *model.DocumentEntry) bool { return d.UniqueID == uniqueID }, uniqueID)
}

// GetDocumentByEntryUUID возвращает запись по устаревшему псевдониму.
func (idx *Index) GetDocumentByEntryUUID(_ context.Context, tenantID, entryUUID string) (*model.DocumentEntry, error) {
	return idx.find(tenantID, func(d *model.DocumentEntry) bool {
		return d.EntryUUID != "" && d.EntryUUID == entryUUID
	}, entryUUID)
}

func (idx *Index) find(tenantID string, match func(*model.DocumentEntry) bool, key string) (*model.DocumentEntry, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	for _, d := range idx.documents {
		if d.TenantID == tenantID && match(d) {
			return d.Clone(), nil
		}
	}
	return nil, fmt.Errorf("%w: документ %s", model.ErrNotFound, key)
}

// QueryDocuments возвращает страницу записей тенанта по фильтрам
// и общее количество подходящих записей.
// Сортировка: creation_time по убыванию.
func (idx *Index) QueryDocuments(_ context.Context, tenantID string, q model.DocumentQuery) ([]*model.DocumentEntry, int, error) {
	q.Normalize()

	idx.mu.RLock()
	var filtered []*model.DocumentEntry
	for _, d := range idx.documents {
		if d.TenantID == tenantID && d.Matches(q) {
			filtered = append(filtered, d.Clone())
		}
	}
	idx.mu.RUnlock()

	model.SortByCreationDesc(filtered)

	total := len(filtered)
	if q.Offset >= total {
		return []*model.DocumentEntry{}, total, nil
	}
	end := total
	if q.Offset+q.Limit < total {
		end = q.Offset + q.Limit
	}
	return filtered[q.Offset:end], total, nil
}

// DeprecateDocument переводит Approved-запись в Deprecated.
// Запись уже в Deprecated → ErrDeprecated.
func (idx *Index) DeprecateDocument(_ context.Context, tenantID, id string, dep model.Deprecation) (*model.DocumentEntry, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	d, err := idx.approvedLocked(tenantID, id)
	if err != nil {
		return nil, err
	}
	dep.Apply(d)
	return d.Clone(), nil
}

// approvedLocked возвращает запись тенанта, которую можно перевести в Deprecated.
func (idx *Index) approvedLocked(tenantID, id string) (*model.DocumentEntry, error) {
	d, ok := idx.documents[id]
	if !ok || d.TenantID != tenantID {
		return nil, fmt.Errorf("%w: документ %s", model.ErrNotFound, id)
	}
	if err := lifecycle.Transition(d.AvailabilityStatus, model.StatusDeprecated); err != nil {
		return nil, fmt.Errorf("документ %s: %w", id, err)
	}
	return d, nil
}

// ReplaceDocument атомарно создаёт новую запись, связь Replaces
// и отзывает старую запись. Старая запись должна быть Approved.
func (idx *Index) ReplaceDocument(_ context.Context, r model.Replacement) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	old, err := idx.approvedLocked(r.TenantID, r.OldID)
	if err != nil {
		return err
	}
	if err := idx.checkUniqueLocked(r.New); err != nil {
		return err
	}

	idx.documents[r.New.ID] = r.New.Clone()
	a := *r.Association
	idx.associations[a.ID] = &a
	r.Deprecation.Apply(old)
	return nil
}

// DeleteDocument удаляет запись и все связи, где она источник или цель.
// Возвращает false, если записи не было.
func (idx *Index) DeleteDocument(_ context.Context, tenantID, id string) (bool, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	d, ok := idx.documents[id]
	if !ok || d.TenantID != tenantID {
		return false, nil
	}
	delete(idx.documents, id)

	removed := 0
	for aid, a := range idx.associations {
		if a.TenantID == tenantID && a.Touches(id) {
			delete(idx.associations, aid)
			removed++
		}
	}

	idx.logger.Debug("Запись удалена",
		slog.String("tenant_id", tenantID),
		slog.String("document_id", id),
		slog.Int("associations", removed),
	)
	return true, nil
}

// SetPatientKind проставляет тип пациента записи без тега.
func (idx *Index) SetPatientKind(_ context.Context, tenantID, id string, kind model.PatientKind) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	d, ok := idx.documents[id]
	if !ok || d.TenantID != tenantID {
		return fmt.Errorf("%w: документ %s", model.ErrNotFound, id)
	}
	if !d.Patient.IsTagged() {
		d.Patient.Kind = kind
	}
	return nil
}

// ListAssociations возвращает связи, где объект — источник или цель.
func (idx *Index) ListAssociations(_ context.Context, tenantID, objectID string) ([]*model.Association, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	result := []*model.Association{}
	for _, a := range idx.associations {
		if a.TenantID == tenantID && a.Touches(objectID) {
			c := *a
			result = append(result, &c)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// CreateGroup сохраняет группу и её связи HasMember.
func (idx *Index) CreateGroup(_ context.Context, group *model.Group, members []*model.Association) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if _, ok := idx.groups[group.ID]; ok {
		return fmt.Errorf("%w: группа %s", model.ErrConflict, group.ID)
	}

	g := *group
	g.MemberIDs = nil
	idx.groups[g.ID] = &g
	for _, a := range members {
		c := *a
		idx.associations[c.ID] = &c
	}
	return nil
}

// GetGroup возвращает группу с текущим составом участников.
func (idx *Index) GetGroup(_ context.Context, tenantID, id string) (*model.Group, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	g, ok := idx.groups[id]
	if !ok || g.TenantID != tenantID {
		return nil, fmt.Errorf("%w: группа %s", model.ErrNotFound, id)
	}

	c := *g
	var members []*model.Association
	for _, a := range idx.associations {
		if a.Type == model.AssociationHasMember && a.SourceID == id {
			members = append(members, a)
		}
	}
	sort.Slice(members, func(i, j int) bool {
		return members[i].CreatedAt.Before(members[j].CreatedAt) ||
			(members[i].CreatedAt.Equal(members[j].CreatedAt) && members[i].TargetID < members[j].TargetID)
	})
	c.MemberIDs = make([]string, 0, len(members))
	for _, a := range members {
		c.MemberIDs = append(c.MemberIDs, a.TargetID)
	}
	return &c, nil
}

// BlobIDs возвращает множество blob, на которые ссылаются записи тенанта.
func (idx *Index) BlobIDs(_ context.Context, tenantID string) (map[string]struct{}, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	ids := make(map[string]struct{})
	for _, d := range idx.documents {
		if d.TenantID == tenantID {
			ids[d.BlobID] = struct{}{}
		}
	}
	return ids, nil
}

// Count возвращает общее количество записей.
func (idx *Index) Count() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.documents)
}
