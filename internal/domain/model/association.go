package model

import "time"

// AssociationType — тип направленной связи между объектами реестра.
type AssociationType string

const (
	// AssociationReplaces — новая версия (source) заменяет старую (target).
	AssociationReplaces AssociationType = "Replaces"
	// AssociationHasMember — группа (source) содержит документ (target).
	AssociationHasMember AssociationType = "HasMember"
)

// ObjectType — тип объекта реестра на концах связи.
type ObjectType string

const (
	ObjectDocumentEntry ObjectType = "DocumentEntry"
	ObjectSubmissionSet ObjectType = "SubmissionSet"
	ObjectFolder        ObjectType = "Folder"
)

// Association — типизированная направленная связь.
type Association struct {
	ID         string          `json:"id"`
	TenantID   string          `json:"tenant_id"`
	Type       AssociationType `json:"type"`
	SourceID   string          `json:"source_id"`
	SourceType ObjectType      `json:"source_type"`
	TargetID   string          `json:"target_id"`
	TargetType ObjectType      `json:"target_type"`
	CreatedBy  string          `json:"created_by"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Touches возвращает true, если объект id — источник или цель связи.
func (a *Association) Touches(id string) bool {
	return a.SourceID == id || a.TargetID == id
}

// GroupKind — вид группировки документов.
type GroupKind string

const (
	GroupSubmissionSet GroupKind = "SubmissionSet"
	GroupFolder        GroupKind = "Folder"
)

// IsValid проверяет вид группы.
func (k GroupKind) IsValid() bool {
	return k == GroupSubmissionSet || k == GroupFolder
}

// ObjectType возвращает тип объекта реестра для вида группы.
func (k GroupKind) ObjectType() ObjectType {
	if k == GroupFolder {
		return ObjectFolder
	}
	return ObjectSubmissionSet
}

// Group — SubmissionSet или Folder. Членство хранится ассоциациями HasMember.
type Group struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Kind      GroupKind `json:"kind"`
	Title     string    `json:"title,omitempty"`
	SourceTag string    `json:"source_tag,omitempty"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	// MemberIDs заполняется при чтении группы
	MemberIDs []string `json:"member_ids"`
}
