package model

// PatientKind — тип сущности пациента, на которую ссылается документ.
type PatientKind string

const (
	// PatientBasic — пациент из основной картотеки.
	PatientBasic PatientKind = "Basic"
	// PatientExtended — пациент из расширенной картотеки.
	PatientExtended PatientKind = "Extended"
)

// PatientKinds — порядок проверки типов для записей без тега.
var PatientKinds = []PatientKind{PatientBasic, PatientExtended}

// IsValid проверяет, что тип пациента известен.
func (k PatientKind) IsValid() bool {
	return k == PatientBasic || k == PatientExtended
}

// PatientRef — ссылка на пациента (tagged union).
// Kind может отсутствовать у записей, созданных до введения тега.
type PatientRef struct {
	Kind PatientKind `json:"patient_kind,omitempty"`
	ID   string      `json:"patient_id"`
}

// IsTagged возвращает true, если тип пациента указан.
func (p PatientRef) IsTagged() bool {
	return p.Kind != ""
}
