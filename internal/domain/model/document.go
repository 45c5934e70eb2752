// Пакет model — доменные модели реестра клинических документов.
// DocumentEntry — одна неизменяемая версия логического документа.
package model

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// AvailabilityStatus — статус доступности записи реестра.
type AvailabilityStatus string

const (
	// StatusApproved — актуальная версия, доступна для чтения.
	StatusApproved AvailabilityStatus = "Approved"
	// StatusDeprecated — заменённая или отозванная версия (терминальный статус).
	StatusDeprecated AvailabilityStatus = "Deprecated"
)

// DocumentEntry — метаданные одной версии клинического документа.
// Ссылка на содержимое (BlobID, Size, Hash) не меняется после создания;
// «обновление» документа всегда создаёт новую запись.
type DocumentEntry struct {
	// ID — внутренний идентификатор реестра (UUID v4)
	ID string `json:"id"`
	// UniqueID — глобально уникальный внешний идентификатор (urn:uuid:...)
	UniqueID string `json:"unique_id"`
	// EntryUUID — устаревший псевдоним идентификатора (обратная совместимость)
	EntryUUID string `json:"entry_uuid,omitempty"`
	// TenantID — идентификатор тенанта (локации)
	TenantID string `json:"tenant_id"`
	// RepositoryUniqueID — идентификатор репозитория тенанта
	RepositoryUniqueID string `json:"repository_unique_id,omitempty"`

	BlobID   string `json:"blob_id"`
	Size     int64  `json:"size"`
	MimeType string `json:"mime_type"`
	Hash     string `json:"hash"`

	Patient              PatientRef `json:"patient"`
	Title                string     `json:"title,omitempty"`
	Comments             string     `json:"comments,omitempty"`
	ClassCode            string     `json:"class_code"`
	TypeCodes            []string   `json:"type_codes"`
	FormatCode           string     `json:"format_code"`
	ConfidentialityCodes []string   `json:"confidentiality_codes,omitempty"`
	Authors              []string   `json:"authors,omitempty"`
	CreationTime         time.Time  `json:"creation_time"`
	ServiceStartTime     *time.Time `json:"service_start_time,omitempty"`
	ServiceStopTime      *time.Time `json:"service_stop_time,omitempty"`
	LanguageCode         string     `json:"language_code,omitempty"`
	SourceTag            string     `json:"source_tag,omitempty"`

	AvailabilityStatus AvailabilityStatus `json:"availability_status"`
	DeprecatedAt       *time.Time         `json:"deprecated_at,omitempty"`
	DeprecatedBy       string             `json:"deprecated_by,omitempty"`
	DeprecationReason  string             `json:"deprecation_reason,omitempty"`

	MajorVersion int `json:"major_version"`
	MinorVersion int `json:"minor_version"`

	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsDeprecated возвращает true, если запись в статусе Deprecated.
func (d *DocumentEntry) IsDeprecated() bool {
	return d.AvailabilityStatus == StatusDeprecated
}

// Version возвращает версию в формате "major.minor".
func (d *DocumentEntry) Version() string {
	return fmt.Sprintf("%d.%d", d.MajorVersion, d.MinorVersion)
}

// Clone возвращает глубокую копию записи.
func (d *DocumentEntry) Clone() *DocumentEntry {
	c := *d
	c.TypeCodes = slices.Clone(d.TypeCodes)
	c.ConfidentialityCodes = slices.Clone(d.ConfidentialityCodes)
	c.Authors = slices.Clone(d.Authors)
	if d.ServiceStartTime != nil {
		t := *d.ServiceStartTime
		c.ServiceStartTime = &t
	}
	if d.ServiceStopTime != nil {
		t := *d.ServiceStopTime
		c.ServiceStopTime = &t
	}
	if d.DeprecatedAt != nil {
		t := *d.DeprecatedAt
		c.DeprecatedAt = &t
	}
	return &c
}

// Matches проверяет соответствие записи фильтрам запроса.
// Используется in-memory хранилищем; PostgreSQL строит эквивалентный WHERE.
func (d *DocumentEntry) Matches(q DocumentQuery) bool {
	if !q.IncludeDeprecated && d.IsDeprecated() {
		return false
	}
	if q.PatientID != "" && d.Patient.ID != q.PatientID {
		return false
	}
	if q.ClassCode != "" && d.ClassCode != q.ClassCode {
		return false
	}
	if q.TypeCode != "" && !slices.Contains(d.TypeCodes, q.TypeCode) {
		return false
	}
	if q.FormatCode != "" && d.FormatCode != q.FormatCode {
		return false
	}
	if q.SourceTag != "" && d.SourceTag != q.SourceTag {
		return false
	}
	if q.TitleContains != "" &&
		!strings.Contains(strings.ToLower(d.Title), strings.ToLower(q.TitleContains)) {
		return false
	}
	if q.CreatedFrom != nil && d.CreationTime.Before(*q.CreatedFrom) {
		return false
	}
	if q.CreatedTo != nil && d.CreationTime.After(*q.CreatedTo) {
		return false
	}
	return true
}

// DocumentQuery — фильтры поиска записей реестра.
// По умолчанию записи Deprecated исключаются.
type DocumentQuery struct {
	PatientID         string
	ClassCode         string
	TypeCode          string
	FormatCode        string
	SourceTag         string
	TitleContains     string
	CreatedFrom       *time.Time
	CreatedTo         *time.Time
	IncludeDeprecated bool
	Limit             int
	Offset            int
}

// Пределы пагинации.
const (
	DefaultQueryLimit = 50
	MaxQueryLimit     = 1000
)

// Normalize приводит limit/offset к допустимым значениям.
func (q *DocumentQuery) Normalize() {
	if q.Limit <= 0 {
		q.Limit = DefaultQueryLimit
	}
	if q.Limit > MaxQueryLimit {
		q.Limit = MaxQueryLimit
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
}

// SortByCreationDesc сортирует записи по creation_time (новые первыми).
// При равенстве — по created_at, затем по ID для стабильного порядка.
func SortByCreationDesc(entries []*DocumentEntry) {
	slices.SortStableFunc(entries, func(a, b *DocumentEntry) int {
		if c := b.CreationTime.Compare(a.CreationTime); c != 0 {
			return c
		}
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}
