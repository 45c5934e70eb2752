package service

import (
	"context"
	"fmt"

	"github.com/bigkaa/goartstore/document-registry/internal/domain/model"
)

// PatientDirectory — справочник пациентов.
// Реализуется repository.PatientDirectory.
type PatientDirectory interface {
	Exists(ctx context.Context, tenantID string, kind model.PatientKind, patientID string) (bool, error)
}

// resolvePatient определяет тип пациента ссылки.
// Ссылка с тегом проверяется только в справочнике своего типа.
// Ссылка без тега ищется по порядку model.PatientKinds.
// Без справочника (memory backend) тег не проверяется, отсутствующий — Basic.
func resolvePatient(ctx context.Context, dir PatientDirectory, tenantID string, ref model.PatientRef) (model.PatientRef, error) {
	if dir == nil {
		if !ref.IsTagged() {
			ref.Kind = model.PatientBasic
		}
		return ref, nil
	}

	kinds := model.PatientKinds
	if ref.IsTagged() {
		kinds = []model.PatientKind{ref.Kind}
	}

	for _, kind := range kinds {
		ok, err := dir.Exists(ctx, tenantID, kind, ref.ID)
		if err != nil {
			return ref, err
		}
		if ok {
			ref.Kind = kind
			return ref, nil
		}
	}

	return ref, &model.ValidationError{
		Fields:  []string{"patient.patient_id"},
		Message: fmt.Sprintf("пациент %s не найден в тенанте %s", ref.ID, tenantID),
	}
}
