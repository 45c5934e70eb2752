// Пакет errors — ответы с ошибками в едином формате
// {"error": {"code": "...", "message": "..."}}.
// Все HTTP-ответы с ошибками должны использовать WriteError или Domain.
package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/bigkaa/goartstore/document-registry/internal/domain/model"
)

// Коды ошибок, определённые в OpenAPI контракте.
const (
	CodeTenantNotFound          = "TENANT_NOT_FOUND"
	CodeRegistryDisabled        = "REGISTRY_DISABLED"
	CodeForbidden               = "FORBIDDEN"
	CodeNotFound                = "NOT_FOUND"
	CodeDeprecated              = "DEPRECATED"
	CodeIntegrityViolation      = "INTEGRITY_VIOLATION"
	CodeDeprecatedRequiresForce = "DEPRECATED_REQUIRES_FORCE"
	CodeValidationError         = "VALIDATION_ERROR"
	CodeConflict                = "CONFLICT"
	CodeUnauthorized            = "UNAUTHORIZED"
	CodeTimeout                 = "TIMEOUT"
	CodeInternalError           = "INTERNAL_ERROR"
)

// errorBody — структура тела ответа ошибки.
type errorBody struct {
	Error errorDetail `json:"error"`
}

// errorDetail — детали ошибки.
type errorDetail struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Fields  []string `json:"fields,omitempty"`
}

// WriteError записывает ответ ошибки в стандартном формате.
func WriteError(w http.ResponseWriter, statusCode int, code, message string) {
	writeBody(w, statusCode, errorDetail{Code: code, Message: message})
}

func writeBody(w http.ResponseWriter, statusCode int, detail errorDetail) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorBody{Error: detail})
}

// --- Конструкторы для типичных ошибок ---

// ValidationError — 400 некорректные входные данные.
func ValidationError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeValidationError, message)
}

// NotFound — 404 ресурс не найден.
func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, CodeNotFound, message)
}

// Unauthorized — 401 требуется аутентификация.
func Unauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, CodeUnauthorized, message)
}

// Forbidden — 403 недостаточно прав.
func Forbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, CodeForbidden, message)
}

// Conflict — 409 конфликт.
func Conflict(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, CodeConflict, message)
}

// InternalError — 500 внутренняя ошибка.
func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, CodeInternalError, message)
}

// Status возвращает HTTP-статус и код для доменной ошибки.
// Неизвестные ошибки — 500 INTERNAL_ERROR.
func Status(err error) (int, string) {
	switch {
	case stderrors.Is(err, model.ErrTenantNotFound):
		return http.StatusNotFound, CodeTenantNotFound
	case stderrors.Is(err, model.ErrRegistryDisabled):
		return http.StatusConflict, CodeRegistryDisabled
	case stderrors.Is(err, model.ErrForbidden):
		return http.StatusForbidden, CodeForbidden
	case stderrors.Is(err, model.ErrNotFound):
		return http.StatusNotFound, CodeNotFound
	case stderrors.Is(err, model.ErrDeprecatedRequiresForce):
		return http.StatusConflict, CodeDeprecatedRequiresForce
	case stderrors.Is(err, model.ErrDeprecated):
		return http.StatusGone, CodeDeprecated
	case stderrors.Is(err, model.ErrIntegrityViolation):
		return http.StatusInternalServerError, CodeIntegrityViolation
	case stderrors.Is(err, model.ErrValidation):
		return http.StatusBadRequest, CodeValidationError
	case stderrors.Is(err, model.ErrConflict):
		return http.StatusConflict, CodeConflict
	case stderrors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, CodeTimeout
	default:
		return http.StatusInternalServerError, CodeInternalError
	}
}

// Domain записывает ответ для ошибки реестра.
// Текст внутренних ошибок не раскрывается.
func Domain(w http.ResponseWriter, err error) {
	status, code := Status(err)
	detail := errorDetail{Code: code, Message: err.Error()}
	if code == CodeInternalError {
		detail.Message = "Внутренняя ошибка сервера"
	}
	var vErr *model.ValidationError
	if stderrors.As(err, &vErr) {
		detail.Fields = vErr.Fields
	}
	writeBody(w, status, detail)
}
