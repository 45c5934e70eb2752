package model

import (
	"slices"
	"time"
)

// Operation — операция реестра, проверяемая шлюзом авторизации.
type Operation string

const (
	OpCreate    Operation = "create"
	OpUpdate    Operation = "update"
	OpDeprecate Operation = "deprecate"
	OpDelete    Operation = "delete"
	OpRetrieve  Operation = "retrieve"
	OpQuery     Operation = "query"
)

// Operations — все операции реестра.
var Operations = []Operation{OpCreate, OpUpdate, OpDeprecate, OpDelete, OpRetrieve, OpQuery}

// IsValid проверяет, что операция известна.
func (o Operation) IsValid() bool {
	return slices.Contains(Operations, o)
}

// Tenant — конфигурация реестра тенанта (локации).
type Tenant struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	// RegistryEnabled — реестр документов включён для тенанта
	RegistryEnabled bool `json:"enabled"`
	// StoragePath — корень хранилища тенанта; пустой до первой инициализации
	StoragePath        string `json:"storage_path,omitempty"`
	RepositoryUniqueID string `json:"repository_unique_id,omitempty"`
	// Permissions — роли, допущенные к операции; nil — используются значения по умолчанию
	Permissions map[Operation][]string `json:"permissions,omitempty"`
	UpdatedAt   time.Time              `json:"updated_at"`
}

// Clone возвращает глубокую копию конфигурации.
func (t *Tenant) Clone() *Tenant {
	c := *t
	if t.Permissions != nil {
		c.Permissions = make(map[Operation][]string, len(t.Permissions))
		for op, roles := range t.Permissions {
			c.Permissions[op] = slices.Clone(roles)
		}
	}
	return &c
}
