// Пакет authz — шлюз авторизации реестра документов.
// Решение Allow(tenant, operation, role) — чистая функция без побочных эффектов:
// роли берутся из конфигурации тенанта, при её отсутствии — из
// версионированной таблицы по умолчанию.
package authz

import (
	"slices"
	"strings"

	"github.com/bigkaa/goartstore/document-registry/internal/domain/model"
)

// Роли практики.
const (
	RoleAdmin        = "admin"
	RoleDoctor       = "doctor"
	RoleTherapist    = "therapist"
	RoleAssistant    = "assistant"
	RoleReceptionist = "receptionist"
	RoleBilling      = "billing"
)

// DefaultPermissionsVersion — версия таблицы ролей по умолчанию.
// Увеличивается при любом изменении defaultPermissions.
const DefaultPermissionsVersion = "2026.1"

// defaultPermissions — роли по умолчанию для каждой операции.
// Чтение шире, deprecate/delete — уже.
var defaultPermissions = map[model.Operation][]string{
	model.OpCreate:    {RoleAdmin, RoleDoctor, RoleTherapist, RoleAssistant},
	model.OpUpdate:    {RoleAdmin, RoleDoctor, RoleTherapist},
	model.OpDeprecate: {RoleAdmin, RoleDoctor},
	model.OpDelete:    {RoleAdmin},
	model.OpRetrieve:  {RoleAdmin, RoleDoctor, RoleTherapist, RoleAssistant, RoleReceptionist, RoleBilling},
	model.OpQuery:     {RoleAdmin, RoleDoctor, RoleTherapist, RoleAssistant, RoleReceptionist, RoleBilling},
}

// DefaultPermissions возвращает копию таблицы ролей по умолчанию.
func DefaultPermissions() map[model.Operation][]string {
	result := make(map[model.Operation][]string, len(defaultPermissions))
	for op, roles := range defaultPermissions {
		result[op] = slices.Clone(roles)
	}
	return result
}

// Allow возвращает true, если роль допущена к операции в тенанте.
// Отказ без условий: тенант не сконфигурирован (nil) или реестр отключён.
func Allow(tenant *model.Tenant, op model.Operation, role string) bool {
	if tenant == nil || !tenant.RegistryEnabled {
		return false
	}
	role = strings.TrimSpace(role)
	if role == "" {
		return false
	}
	for _, allowed := range RolesFor(tenant, op) {
		if strings.EqualFold(allowed, role) {
			return true
		}
	}
	return false
}

// RolesFor возвращает список ролей для операции: из конфигурации тенанта,
// если операция в ней указана, иначе из таблицы по умолчанию.
func RolesFor(tenant *model.Tenant, op model.Operation) []string {
	if tenant != nil && tenant.Permissions != nil {
		if roles, ok := tenant.Permissions[op]; ok {
			return roles
		}
	}
	return defaultPermissions[op]
}

// Check — обёртка над Allow, возвращающая *model.ForbiddenError при отказе.
func Check(tenant *model.Tenant, op model.Operation, role string) error {
	if Allow(tenant, op, role) {
		return nil
	}
	tenantID := ""
	if tenant != nil {
		tenantID = tenant.ID
	}
	return &model.ForbiddenError{TenantID: tenantID, Operation: op, Role: role}
}

// ParsePermissions разбирает строку вида "create=admin,doctor;delete=admin".
// Используется CLI и загрузкой конфигурации тенантов.
func ParsePermissions(s string) (map[model.Operation][]string, error) {
	result := make(map[model.Operation][]string)
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		opStr, rolesStr, ok := strings.Cut(part, "=")
		if !ok {
			return nil, &model.ValidationError{
				Fields:  []string{"permissions"},
				Message: "ожидался формат op=role1,role2 в " + part,
			}
		}
		op := model.Operation(strings.TrimSpace(opStr))
		if !op.IsValid() {
			return nil, &model.ValidationError{
				Fields:  []string{"permissions"},
				Message: "неизвестная операция " + string(op),
			}
		}
		var roles []string
		for _, r := range strings.Split(rolesStr, ",") {
			if r = strings.TrimSpace(r); r != "" {
				roles = append(roles, r)
			}
		}
		result[op] = roles
	}
	return result, nil
}
