package model

import (
	"errors"
	"fmt"
	"strings"
)

// Ошибки реестра. Каждая ошибка различима вызывающей стороной через errors.Is.
var (
	// ErrTenantNotFound — тенант не найден.
	ErrTenantNotFound = errors.New("тенант не найден")
	// ErrRegistryDisabled — реестр документов отключён для тенанта.
	ErrRegistryDisabled = errors.New("реестр документов отключён для тенанта")
	// ErrForbidden — операция запрещена для роли.
	ErrForbidden = errors.New("операция запрещена")
	// ErrNotFound — документ или содержимое не найдено.
	ErrNotFound = errors.New("объект не найден")
	// ErrDeprecated — объект в терминальном статусе Deprecated.
	ErrDeprecated = errors.New("объект помечен как Deprecated")
	// ErrIntegrityViolation — хеш содержимого не совпадает с записанным.
	ErrIntegrityViolation = errors.New("нарушение целостности содержимого")
	// ErrDeprecatedRequiresForce — удаление Deprecated-объекта без force.
	ErrDeprecatedRequiresForce = errors.New("удаление Deprecated-объекта требует force")
	// ErrValidation — отсутствуют или некорректны метаданные.
	ErrValidation = errors.New("ошибка валидации")
	// ErrConflict — объект с таким внешним идентификатором уже существует.
	ErrConflict = errors.New("конфликт — объект уже существует")
)

// ForbiddenError — отказ шлюза авторизации.
type ForbiddenError struct {
	TenantID  string
	Operation Operation
	Role      string
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("операция %q запрещена для роли %q в тенанте %s", e.Operation, e.Role, e.TenantID)
}

func (e *ForbiddenError) Unwrap() error { return ErrForbidden }

// ValidationError — некорректные или неполные метаданные.
type ValidationError struct {
	Fields  []string
	Message string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	return e.Message + ": " + strings.Join(e.Fields, ", ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// IntegrityError — несовпадение SHA-256 при чтении содержимого.
type IntegrityError struct {
	BlobID   string
	Expected string
	Actual   string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("нарушение целостности blob %s: ожидался хеш %s, вычислен %s", e.BlobID, e.Expected, e.Actual)
}

func (e *IntegrityError) Unwrap() error { return ErrIntegrityViolation }
