package repository

import (
	"context"
	"fmt"

	"github.com/bigkaa/goartstore/document-registry/internal/domain/model"
)

// PatientDirectory — справочник пациентов (таблица patient_directory).
// Заполняется внешней системой; реестр только читает.
type PatientDirectory struct {
	db DBTX
}

// NewPatientDirectory создаёт справочник пациентов.
func NewPatientDirectory(db DBTX) *PatientDirectory {
	return &PatientDirectory{db: db}
}

// Exists проверяет наличие пациента указанного типа.
func (p *PatientDirectory) Exists(ctx context.Context, tenantID string, kind model.PatientKind, patientID string) (bool, error) {
	var exists bool
	err := p.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM patient_directory WHERE tenant_id = $1 AND kind = $2 AND patient_id = $3)`,
		tenantID, string(kind), patientID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("ошибка поиска пациента: %w", err)
	}
	return exists, nil
}

// Add регистрирует пациента. Повторная регистрация — no-op.
func (p *PatientDirectory) Add(ctx context.Context, tenantID string, kind model.PatientKind, patientID string) error {
	_, err := p.db.Exec(ctx,
		`INSERT INTO patient_directory (tenant_id, kind, patient_id) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`,
		tenantID, string(kind), patientID,
	)
	if err != nil {
		return fmt.Errorf("ошибка регистрации пациента: %w", err)
	}
	return nil
}
