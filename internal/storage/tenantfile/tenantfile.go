// Пакет tenantfile — конфигурация тенантов в JSON-файле.
// Используется при DR_REGISTRY_BACKEND=memory вместо таблицы tenants.
//
// Формат файла:
//
//	{"tenants": [{"id": "T1", "enabled": true, "storage_path": "...",
//	  "repository_unique_id": "1.2.40.0.34.99", "permissions": {"delete": ["admin"]}}]}
package tenantfile

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/bigkaa/goartstore/document-registry/internal/domain/model"
)

// fileData — структура файла конфигурации.
type fileData struct {
	Tenants []*model.Tenant `json:"tenants"`
}

// Store — хранилище конфигурации тенантов в файле.
// Файл перечитывается только при создании; изменения пишутся сразу.
type Store struct {
	path    string
	mu      sync.RWMutex
	tenants map[string]*model.Tenant
}

// Open загружает конфигурацию из path. Отсутствующий файл — пустая конфигурация.
func Open(path string) (*Store, error) {
	s := &Store{
		path:    path,
		tenants: make(map[string]*model.Tenant),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("ошибка чтения %s: %w", path, err)
	}

	var fd fileData
	if err := json.Unmarshal(data, &fd); err != nil {
		return nil, fmt.Errorf("ошибка десериализации %s: %w", path, err)
	}
	for _, t := range fd.Tenants {
		if t.ID == "" {
			return nil, fmt.Errorf("тенант без id в %s", path)
		}
		s.tenants[t.ID] = t
	}
	return s, nil
}

// Get возвращает конфигурацию тенанта или model.ErrTenantNotFound.
func (s *Store) Get(_ context.Context, tenantID string) (*model.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tenants[tenantID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", model.ErrTenantNotFound, tenantID)
	}
	return t.Clone(), nil
}

// List возвращает все тенанты, отсортированные по ID.
func (s *Store) List(_ context.Context) ([]*model.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*model.Tenant, 0, len(s.tenants))
	for _, t := range s.tenants {
		result = append(result, t.Clone())
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// Upsert создаёт или заменяет конфигурацию тенанта.
func (s *Store) Upsert(_ context.Context, tenant *model.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := tenant.Clone()
	c.UpdatedAt = time.Now().UTC()
	prev := s.tenants[c.ID]
	s.tenants[c.ID] = c

	if err := s.saveLocked(); err != nil {
		if prev != nil {
			s.tenants[c.ID] = prev
		} else {
			delete(s.tenants, c.ID)
		}
		return err
	}
	return nil
}

// SetStoragePath сохраняет путь хранения тенанта.
func (s *Store) SetStoragePath(_ context.Context, tenantID, storagePath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tenants[tenantID]
	if !ok {
		return fmt.Errorf("%w: %s", model.ErrTenantNotFound, tenantID)
	}
	prev := t.StoragePath
	t.StoragePath = storagePath
	t.UpdatedAt = time.Now().UTC()

	if err := s.saveLocked(); err != nil {
		t.StoragePath = prev
		return err
	}
	return nil
}

// saveLocked атомарно записывает файл (temp → fsync → rename).
func (s *Store) saveLocked() error {
	fd := fileData{Tenants: make([]*model.Tenant, 0, len(s.tenants))}
	for _, t := range s.tenants {
		fd.Tenants = append(fd.Tenants, t)
	}
	sort.Slice(fd.Tenants, func(i, j int) bool { return fd.Tenants[i].ID < fd.Tenants[j].ID })

	data, err := json.MarshalIndent(fd, "", "  ")
	if err != nil {
		return fmt.Errorf("ошибка сериализации конфигурации тенантов: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o750); err != nil {
		return fmt.Errorf("не удалось создать директорию %s: %w", filepath.Dir(s.path), err)
	}

	tmpPath := s.path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("ошибка создания temp файла тенантов: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("ошибка записи temp файла тенантов: %w", err)
	}

	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("ошибка fsync temp файла тенантов: %w", err)
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("ошибка закрытия temp файла тенантов: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("ошибка rename файла тенантов: %w", err)
	}

	return nil
}
