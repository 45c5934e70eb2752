package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bigkaa/goartstore/document-registry/internal/domain/lifecycle"
	"github.com/bigkaa/goartstore/document-registry/internal/domain/model"
)

// RegistryStore — хранилище записей реестра в PostgreSQL.
// Составные операции (замена, каскадное удаление, создание группы)
// выполняются в одной транзакции.
type RegistryStore struct {
	pool *pgxpool.Pool
	tx   *TxRunner
	docs DocumentRepository
	assc AssociationRepository
	grps GroupRepository
}

// NewRegistryStore создаёт хранилище реестра поверх пула подключений.
func NewRegistryStore(pool *pgxpool.Pool) *RegistryStore {
	return &RegistryStore{
		pool: pool,
		tx:   NewTxRunner(pool),
		docs: NewDocumentRepository(pool),
		assc: NewAssociationRepository(pool),
		grps: NewGroupRepository(pool),
	}
}

func (s *RegistryStore) CreateDocument(ctx context.Context, entry *model.DocumentEntry) error {
	return s.docs.Create(ctx, entry)
}

func (s *RegistryStore) GetDocument(ctx context.Context, tenantID, id string) (*model.DocumentEntry, error) {
	return s.docs.GetByID(ctx, tenantID, id)
}

func (s *RegistryStore) GetDocumentByUniqueID(ctx context.Context, tenantID, uniqueID string) (*model.DocumentEntry, error) {
	return s.docs.GetByUniqueID(ctx, tenantID, uniqueID)
}

func (s *RegistryStore) GetDocumentByEntryUUID(ctx context.Context, tenantID, entryUUID string) (*model.DocumentEntry, error) {
	return s.docs.GetByEntryUUID(ctx, tenantID, entryUUID)
}

// QueryDocuments возвращает страницу записей и общее количество подходящих.
func (s *RegistryStore) QueryDocuments(ctx context.Context, tenantID string, q model.DocumentQuery) ([]*model.DocumentEntry, int, error) {
	q.Normalize()
	entries, err := s.docs.List(ctx, tenantID, q)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.docs.Count(ctx, tenantID, q)
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

func (s *RegistryStore) DeprecateDocument(ctx context.Context, tenantID, id string, dep model.Deprecation) (*model.DocumentEntry, error) {
	return s.docs.Deprecate(ctx, tenantID, id, dep)
}

// ReplaceDocument атомарно создаёт новую запись, связь Replaces
// и отзывает старую. Старая строка блокируется SELECT ... FOR UPDATE,
// поэтому из двух конкурентных замен успешна только одна.
func (s *RegistryStore) ReplaceDocument(ctx context.Context, r model.Replacement) error {
	return s.tx.RunInTx(ctx, func(tx pgx.Tx) error {
		docs := NewDocumentRepository(tx)

		old, err := docs.GetForUpdate(ctx, r.TenantID, r.OldID)
		if err != nil {
			return err
		}
		if err := lifecycle.Transition(old.AvailabilityStatus, model.StatusDeprecated); err != nil {
			return fmt.Errorf("документ %s: %w", r.OldID, err)
		}

		if err := docs.Create(ctx, r.New); err != nil {
			return err
		}
		if err := NewAssociationRepository(tx).Create(ctx, r.Association); err != nil {
			return err
		}
		if _, err := docs.Deprecate(ctx, r.TenantID, r.OldID, r.Deprecation); err != nil {
			return err
		}
		return nil
	})
}

// DeleteDocument удаляет запись и все её связи.
func (s *RegistryStore) DeleteDocument(ctx context.Context, tenantID, id string) (bool, error) {
	var deleted bool
	err := s.tx.RunInTx(ctx, func(tx pgx.Tx) error {
		if _, err := NewAssociationRepository(tx).DeleteByObject(ctx, tenantID, id); err != nil {
			return err
		}
		var err error
		deleted, err = NewDocumentRepository(tx).Delete(ctx, tenantID, id)
		return err
	})
	return deleted, err
}

func (s *RegistryStore) SetPatientKind(ctx context.Context, tenantID, id string, kind model.PatientKind) error {
	return s.docs.SetPatientKind(ctx, tenantID, id, kind)
}

func (s *RegistryStore) ListAssociations(ctx context.Context, tenantID, objectID string) ([]*model.Association, error) {
	return s.assc.ListByObject(ctx, tenantID, objectID)
}

// CreateGroup сохраняет группу и её связи HasMember в одной транзакции.
func (s *RegistryStore) CreateGroup(ctx context.Context, group *model.Group, members []*model.Association) error {
	return s.tx.RunInTx(ctx, func(tx pgx.Tx) error {
		if err := NewGroupRepository(tx).Create(ctx, group); err != nil {
			return err
		}
		assc := NewAssociationRepository(tx)
		for _, a := range members {
			if err := assc.Create(ctx, a); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetGroup возвращает группу с текущим составом участников.
func (s *RegistryStore) GetGroup(ctx context.Context, tenantID, id string) (*model.Group, error) {
	g, err := s.grps.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	members, err := s.assc.ListMembers(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	g.MemberIDs = make([]string, 0, len(members))
	for _, a := range members {
		g.MemberIDs = append(g.MemberIDs, a.TargetID)
	}
	return g, nil
}

func (s *RegistryStore) BlobIDs(ctx context.Context, tenantID string) (map[string]struct{}, error) {
	return s.docs.BlobIDs(ctx, tenantID)
}
