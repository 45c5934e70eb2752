package model

import (
	"slices"
	"strings"
	"time"
)

// DocumentMetadata — метаданные, передаваемые вызывающей стороной
// при регистрации или замене документа.
// При замене (Replace) используется как набор переопределений:
// непустые поля заменяют значения предыдущей версии.
type DocumentMetadata struct {
	UniqueID             string     `json:"unique_id,omitempty"`
	EntryUUID            string     `json:"entry_uuid,omitempty"`
	Patient              PatientRef `json:"patient"`
	Title                string     `json:"title,omitempty"`
	Comments             string     `json:"comments,omitempty"`
	ClassCode            string     `json:"class_code,omitempty"`
	TypeCodes            []string   `json:"type_codes,omitempty"`
	FormatCode           string     `json:"format_code,omitempty"`
	ConfidentialityCodes []string   `json:"confidentiality_codes,omitempty"`
	Authors              []string   `json:"authors,omitempty"`
	CreationTime         *time.Time `json:"creation_time,omitempty"`
	ServiceStartTime     *time.Time `json:"service_start_time,omitempty"`
	ServiceStopTime      *time.Time `json:"service_stop_time,omitempty"`
	LanguageCode         string     `json:"language_code,omitempty"`
	SourceTag            string     `json:"source_tag,omitempty"`
	MimeType             string     `json:"mime_type,omitempty"`
	OriginalName         string     `json:"original_name,omitempty"`
}

// Validate проверяет обязательные поля: classCode, хотя бы один typeCode,
// formatCode, ссылку на пациента и MIME-тип.
// Возвращает *ValidationError со списком отсутствующих полей.
func (m *DocumentMetadata) Validate() error {
	var missing []string
	if strings.TrimSpace(m.ClassCode) == "" {
		missing = append(missing, "class_code")
	}
	if !slices.ContainsFunc(m.TypeCodes, func(s string) bool { return strings.TrimSpace(s) != "" }) {
		missing = append(missing, "type_codes")
	}
	if strings.TrimSpace(m.FormatCode) == "" {
		missing = append(missing, "format_code")
	}
	if strings.TrimSpace(m.Patient.ID) == "" {
		missing = append(missing, "patient.patient_id")
	}
	if m.Patient.Kind != "" && !m.Patient.Kind.IsValid() {
		return &ValidationError{
			Fields:  []string{"patient.patient_kind"},
			Message: "недопустимый тип пациента " + string(m.Patient.Kind),
		}
	}
	if strings.TrimSpace(m.MimeType) == "" {
		missing = append(missing, "mime_type")
	}
	if m.ServiceStartTime != nil && m.ServiceStopTime != nil &&
		m.ServiceStopTime.Before(*m.ServiceStartTime) {
		return &ValidationError{
			Fields:  []string{"service_stop_time"},
			Message: "service_stop_time раньше service_start_time",
		}
	}
	if len(missing) > 0 {
		return &ValidationError{Fields: missing, Message: "отсутствуют обязательные метаданные"}
	}
	return nil
}

// MergeInto возвращает метаданные предыдущей версии entry
// с применёнными непустыми переопределениями из m.
// Внешний идентификатор не наследуется: новая версия получает свой UniqueID.
func (m *DocumentMetadata) MergeInto(entry *DocumentEntry) DocumentMetadata {
	merged := DocumentMetadata{
		Patient:              entry.Patient,
		Title:                entry.Title,
		Comments:             entry.Comments,
		ClassCode:            entry.ClassCode,
		TypeCodes:            slices.Clone(entry.TypeCodes),
		FormatCode:           entry.FormatCode,
		ConfidentialityCodes: slices.Clone(entry.ConfidentialityCodes),
		Authors:              slices.Clone(entry.Authors),
		ServiceStartTime:     entry.ServiceStartTime,
		ServiceStopTime:      entry.ServiceStopTime,
		LanguageCode:         entry.LanguageCode,
		SourceTag:            entry.SourceTag,
		MimeType:             entry.MimeType,
	}
	if m == nil {
		return merged
	}

	merged.UniqueID = m.UniqueID
	merged.EntryUUID = m.EntryUUID
	merged.OriginalName = m.OriginalName
	merged.CreationTime = m.CreationTime
	if m.Patient.ID != "" {
		merged.Patient = m.Patient
	}
	if m.Title != "" {
		merged.Title = m.Title
	}
	if m.Comments != "" {
		merged.Comments = m.Comments
	}
	if m.ClassCode != "" {
		merged.ClassCode = m.ClassCode
	}
	if len(m.TypeCodes) > 0 {
		merged.TypeCodes = slices.Clone(m.TypeCodes)
	}
	if m.FormatCode != "" {
		merged.FormatCode = m.FormatCode
	}
	if len(m.ConfidentialityCodes) > 0 {
		merged.ConfidentialityCodes = slices.Clone(m.ConfidentialityCodes)
	}
	if len(m.Authors) > 0 {
		merged.Authors = slices.Clone(m.Authors)
	}
	if m.ServiceStartTime != nil {
		merged.ServiceStartTime = m.ServiceStartTime
	}
	if m.ServiceStopTime != nil {
		merged.ServiceStopTime = m.ServiceStopTime
	}
	if m.LanguageCode != "" {
		merged.LanguageCode = m.LanguageCode
	}
	if m.SourceTag != "" {
		merged.SourceTag = m.SourceTag
	}
	if m.MimeType != "" {
		merged.MimeType = m.MimeType
	}
	return merged
}

// Actor — субъект, выполняющий операцию (из JWT: sub + role).
type Actor struct {
	ID   string `json:"id"`
	Role string `json:"role"`
}
