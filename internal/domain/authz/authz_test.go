package authz

import (
	"errors"
	"slices"
	"testing"

	"github.com/bigkaa/goartstore/document-registry/internal/domain/model"
)

func enabledTenant() *model.Tenant {
	return &model.Tenant{ID: "T1", RegistryEnabled: true}
}

// TestDefaultPermissions_ExactContents фиксирует таблицу по умолчанию:
// любое изменение должно сопровождаться сменой DefaultPermissionsVersion.
func TestDefaultPermissions_ExactContents(t *testing.T) {
	if DefaultPermissionsVersion != "2026.1" {
		t.Fatalf("версия таблицы изменилась: %s — обновите тест", DefaultPermissionsVersion)
	}

	want := map[model.Operation][]string{
		model.OpCreate:    {"admin", "doctor", "therapist", "assistant"},
		model.OpUpdate:    {"admin", "doctor", "therapist"},
		model.OpDeprecate: {"admin", "doctor"},
		model.OpDelete:    {"admin"},
		model.OpRetrieve:  {"admin", "doctor", "therapist", "assistant", "receptionist", "billing"},
		model.OpQuery:     {"admin", "doctor", "therapist", "assistant", "receptionist", "billing"},
	}

	got := DefaultPermissions()
	if len(got) != len(want) {
		t.Fatalf("ожидалось %d операций, получено %d", len(want), len(got))
	}
	for op, roles := range want {
		if !slices.Equal(got[op], roles) {
			t.Errorf("%s: ожидалось %v, получено %v", op, roles, got[op])
		}
	}

	// Изменение копии не влияет на таблицу
	got[model.OpDelete] = append(got[model.OpDelete], "billing")
	if slices.Contains(DefaultPermissions()[model.OpDelete], "billing") {
		t.Error("DefaultPermissions должен возвращать копию")
	}
}

func TestAllow_Defaults(t *testing.T) {
	tenant := enabledTenant()

	tests := []struct {
		name string
		op   model.Operation
		role string
		want bool
	}{
		{"doctor создаёт", model.OpCreate, RoleDoctor, true},
		{"billing не создаёт", model.OpCreate, RoleBilling, false},
		{"billing не удаляет", model.OpDelete, RoleBilling, false},
		{"admin удаляет", model.OpDelete, RoleAdmin, true},
		{"billing читает", model.OpRetrieve, RoleBilling, true},
		{"receptionist ищет", model.OpQuery, RoleReceptionist, true},
		{"assistant не отзывает", model.OpDeprecate, RoleAssistant, false},
		{"регистр роли не важен", model.OpCreate, "Doctor", true},
		{"пустая роль", model.OpQuery, "", false},
		{"неизвестная роль", model.OpQuery, "intruder", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Allow(tenant, tt.op, tt.role); got != tt.want {
				t.Errorf("Allow(%s, %q) = %v, ожидалось %v", tt.op, tt.role, got, tt.want)
			}
		})
	}
}

func TestAllow_TenantOverrides(t *testing.T) {
	tenant := enabledTenant()
	tenant.Permissions = map[model.Operation][]string{
		model.OpDelete: {RoleBilling},
		model.OpCreate: {},
	}

	if !Allow(tenant, model.OpDelete, RoleBilling) {
		t.Error("billing должен иметь delete по конфигурации тенанта")
	}
	if Allow(tenant, model.OpDelete, RoleAdmin) {
		t.Error("admin не в списке тенанта для delete")
	}
	if Allow(tenant, model.OpCreate, RoleDoctor) {
		t.Error("пустой список тенанта для create запрещает всем")
	}
	// Операция не указана в конфигурации — таблица по умолчанию
	if !Allow(tenant, model.OpRetrieve, RoleDoctor) {
		t.Error("retrieve должен браться из таблицы по умолчанию")
	}
}

func TestAllow_DeniesWithoutConfig(t *testing.T) {
	if Allow(nil, model.OpQuery, RoleAdmin) {
		t.Error("тенант без конфигурации — отказ")
	}

	disabled := &model.Tenant{ID: "T2", RegistryEnabled: false}
	for _, op := range model.Operations {
		if Allow(disabled, op, RoleAdmin) {
			t.Errorf("реестр отключён — %s должен быть запрещён", op)
		}
	}
}

func TestCheck_ReturnsForbiddenError(t *testing.T) {
	err := Check(enabledTenant(), model.OpDelete, RoleBilling)
	if !errors.Is(err, model.ErrForbidden) {
		t.Fatalf("ожидалась ErrForbidden, получено %v", err)
	}
	var fe *model.ForbiddenError
	if !errors.As(err, &fe) {
		t.Fatalf("ожидался *ForbiddenError, получено %T", err)
	}
	if fe.Operation != model.OpDelete || fe.Role != RoleBilling || fe.TenantID != "T1" {
		t.Errorf("неверные поля ошибки: %+v", fe)
	}

	if err := Check(enabledTenant(), model.OpDelete, RoleAdmin); err != nil {
		t.Errorf("admin delete: неожиданная ошибка %v", err)
	}
}

func TestParsePermissions(t *testing.T) {
	perms, err := ParsePermissions("create=admin, doctor; delete=admin;")
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if !slices.Equal(perms[model.OpCreate], []string{"admin", "doctor"}) {
		t.Errorf("create: получено %v", perms[model.OpCreate])
	}
	if !slices.Equal(perms[model.OpDelete], []string{"admin"}) {
		t.Errorf("delete: получено %v", perms[model.OpDelete])
	}

	if _, err := ParsePermissions("publish=admin"); !errors.Is(err, model.ErrValidation) {
		t.Errorf("неизвестная операция: ожидалась ошибка валидации, получено %v", err)
	}
	if _, err := ParsePermissions("create"); err == nil {
		t.Error("ожидалась ошибка для строки без '='")
	}
}
