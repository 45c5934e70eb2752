// Пакет lifecycle — конечный автомат статуса доступности DocumentEntry.
//
// Единственный переход: Approved → Deprecated. Deprecated — терминальный
// статус: содержимое больше не отдаётся, запись можно только найти
// расширенным запросом или удалить (с force).
package lifecycle

import (
	"fmt"

	"github.com/bigkaa/goartstore/document-registry/internal/domain/model"
)

// validTransitions — матрица допустимых переходов.
var validTransitions = map[model.AvailabilityStatus]map[model.AvailabilityStatus]bool{
	model.StatusApproved:   {model.StatusDeprecated: true},
	model.StatusDeprecated: {},
}

// allowedOperations — операции, допустимые для записи в каждом статусе.
var allowedOperations = map[model.AvailabilityStatus]map[model.Operation]bool{
	model.StatusApproved: {
		model.OpRetrieve:  true,
		model.OpQuery:     true,
		model.OpUpdate:    true,
		model.OpDeprecate: true,
		model.OpDelete:    true,
	},
	model.StatusDeprecated: {
		model.OpQuery:  true,
		model.OpDelete: true,
	},
}

// CanPerform проверяет, допустима ли операция над записью в статусе status.
func CanPerform(status model.AvailabilityStatus, op model.Operation) bool {
	ops, ok := allowedOperations[status]
	if !ok {
		return false
	}
	return ops[op]
}

// canTransition проверяет допустимость перехода from → to.
func canTransition(from, to model.AvailabilityStatus) bool {
	return validTransitions[from][to]
}

// Transition проверяет переход и возвращает *TransitionError при отказе.
// Повторный переход в Deprecated оборачивает model.ErrDeprecated.
func Transition(from, to model.AvailabilityStatus) error {
	if !IsValidStatus(from) || !IsValidStatus(to) {
		return &TransitionError{
			Code:    "INVALID_STATUS",
			Message: fmt.Sprintf("недопустимый статус: %q → %q", from, to),
		}
	}
	if canTransition(from, to) {
		return nil
	}
	te := &TransitionError{
		Code:    "INVALID_TRANSITION",
		Message: fmt.Sprintf("переход %s → %s недопустим", from, to),
	}
	if from == model.StatusDeprecated {
		te.cause = model.ErrDeprecated
	}
	return te
}

// Require возвращает model.ErrDeprecated, если операция недопустима
// для записи в текущем статусе.
func Require(entry *model.DocumentEntry, op model.Operation) error {
	if CanPerform(entry.AvailabilityStatus, op) {
		return nil
	}
	return fmt.Errorf("%w: запись %s (версия %s), операция %s",
		model.ErrDeprecated, entry.ID, entry.Version(), op)
}

// TransitionError — ошибка перехода между статусами.
type TransitionError struct {
	Code    string // Машиночитаемый код (INVALID_TRANSITION, INVALID_STATUS)
	Message string
	cause   error
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *TransitionError) Unwrap() error { return e.cause }

// IsValidStatus проверяет, является ли статус допустимым.
func IsValidStatus(s model.AvailabilityStatus) bool {
	switch s {
	case model.StatusApproved, model.StatusDeprecated:
		return true
	default:
		return false
	}
}

// ParseStatus преобразует строку в AvailabilityStatus.
func ParseStatus(s string) (model.AvailabilityStatus, error) {
	st := model.AvailabilityStatus(s)
	if !IsValidStatus(st) {
		return "", fmt.Errorf("недопустимый статус: %q, допустимые: Approved, Deprecated", s)
	}
	return st, nil
}
