package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/bigkaa/goartstore/document-registry/internal/domain/authz"
	"github.com/bigkaa/goartstore/document-registry/internal/domain/model"
)

// TestFacade_ForbiddenHasNoWrites проверяет каждую пару операция/роль,
// отсутствующую в таблице по умолчанию: отказ и ни одного нового файла.
func TestFacade_ForbiddenHasNoWrites(t *testing.T) {
	env := setupTestEnv(t, nil, RegistryOptions{})
	ctx := context.Background()
	target := env.register(t, "Laborbefund")
	layout := env.tenantLayout(t, "T1")

	roles := []string{authz.RoleAdmin, authz.RoleDoctor, authz.RoleTherapist, authz.RoleAssistant,
		authz.RoleReceptionist, authz.RoleBilling, "unknown"}

	calls := map[model.Operation]func(actor model.Actor) error{
		model.OpCreate: func(a model.Actor) error {
			_, err := env.facade.Register(ctx, "T1", strings.NewReader("neu"), testMetadata(), a)
			return err
		},
		model.OpUpdate: func(a model.Actor) error {
			_, err := env.facade.Update(ctx, "T1", target.ID, strings.NewReader("v2"), nil, a)
			return err
		},
		model.OpDeprecate: func(a model.Actor) error {
			_, err := env.facade.Deprecate(ctx, "T1", target.ID, a, "")
			return err
		},
		model.OpDelete: func(a model.Actor) error {
			return env.facade.Delete(ctx, "T1", target.ID, a, true)
		},
	}

	for op, call := range calls {
		for _, role := range roles {
			if authz.Allow(&model.Tenant{RegistryEnabled: true}, op, role) {
				continue
			}
			t.Run(fmt.Sprintf("%s/%s", op, role), func(t *testing.T) {
				docsBefore := countFiles(t, layout.Documents)
				metaBefore := countFiles(t, layout.Metadata)

				err := call(model.Actor{ID: "u-" + role, Role: role})

				var fErr *model.ForbiddenError
				if !errors.As(err, &fErr) {
					t.Fatalf("ожидалась ForbiddenError, получено %v", err)
				}
				if fErr.Operation != op || fErr.Role != role {
					t.Errorf("ForbiddenError: %+v", fErr)
				}
				if countFiles(t, layout.Documents) != docsBefore || countFiles(t, layout.Metadata) != metaBefore {
					t.Error("отказ не должен создавать или удалять файлы")
				}
			})
		}
	}

	got, err := env.index.GetDocument(ctx, "T1", target.ID)
	if err != nil || got.IsDeprecated() {
		t.Errorf("целевая запись не должна измениться: %v", err)
	}
}

// TestFacade_BillingCannotDelete — роль billing не удаляет ни Approved, ни Deprecated.
func TestFacade_BillingCannotDelete(t *testing.T) {
	env := setupTestEnv(t, nil, RegistryOptions{})
	ctx := context.Background()
	billing := model.Actor{ID: "u-billing", Role: authz.RoleBilling}

	approved := env.register(t, "Rechnung")
	if err := env.facade.Delete(ctx, "T1", approved.ID, billing, false); !errors.Is(err, model.ErrForbidden) {
		t.Fatalf("ожидалась ErrForbidden, получено %v", err)
	}
	if _, _, err := env.facade.Retrieve(ctx, "T1", approved.ID, billing); err != nil {
		t.Errorf("запись должна остаться доступной: %v", err)
	}

	deprecated := env.register(t, "Storno")
	env.facade.Deprecate(ctx, "T1", deprecated.ID, doctor, "")
	if err := env.facade.Delete(ctx, "T1", deprecated.ID, billing, true); !errors.Is(err, model.ErrForbidden) {
		t.Fatalf("ожидалась ErrForbidden, получено %v", err)
	}
	if _, _, err := env.facade.Retrieve(ctx, "T1", deprecated.ID, billing); !errors.Is(err, model.ErrDeprecated) {
		t.Errorf("ожидалась ErrDeprecated, получено %v", err)
	}
}

func TestFacade_TenantGate(t *testing.T) {
	env := setupTestEnv(t, nil, RegistryOptions{})
	ctx := context.Background()

	if _, _, err := env.facade.Query(ctx, "T2", model.DocumentQuery{}, admin); !errors.Is(err, model.ErrRegistryDisabled) {
		t.Errorf("ожидалась ErrRegistryDisabled, получено %v", err)
	}
	if _, _, err := env.facade.Query(ctx, "T9", model.DocumentQuery{}, admin); !errors.Is(err, model.ErrTenantNotFound) {
		t.Errorf("ожидалась ErrTenantNotFound, получено %v", err)
	}
}

// TestFacade_TenantPermissions проверяет переопределение ролей в конфигурации тенанта.
func TestFacade_TenantPermissions(t *testing.T) {
	env := setupTestEnv(t, nil, RegistryOptions{})
	ctx := context.Background()

	tenant, _ := env.tenants.Get(ctx, "T1")
	tenant.Permissions = map[model.Operation][]string{model.OpDelete: {authz.RoleBilling}}
	if err := env.tenants.Upsert(ctx, tenant); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	entry := env.register(t, "x")
	if err := env.facade.Delete(ctx, "T1", entry.ID, admin, false); !errors.Is(err, model.ErrForbidden) {
		t.Errorf("admin не в списке тенанта: ожидалась ErrForbidden, получено %v", err)
	}
	if err := env.facade.Delete(ctx, "T1", entry.ID, model.Actor{ID: "b", Role: authz.RoleBilling}, false); err != nil {
		t.Errorf("billing в списке тенанта: %v", err)
	}
}

func TestResultLabel(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "success"},
		{model.ErrTenantNotFound, "tenant_not_found"},
		{fmt.Errorf("%w: T2", model.ErrRegistryDisabled), "registry_disabled"},
		{&model.ForbiddenError{Operation: model.OpDelete, Role: "billing"}, "forbidden"},
		{model.ErrNotFound, "not_found"},
		{model.ErrDeprecatedRequiresForce, "requires_force"},
		{model.ErrDeprecated, "deprecated"},
		{&model.IntegrityError{BlobID: "b"}, "integrity_violation"},
		{&model.ValidationError{Fields: []string{"class_code"}}, "validation_error"},
		{model.ErrConflict, "conflict"},
		{context.DeadlineExceeded, "timeout"},
		{errors.New("диск"), "error"},
	}
	for _, tt := range tests {
		if got := ResultLabel(tt.err); got != tt.want {
			t.Errorf("ResultLabel(%v) = %q, ожидалось %q", tt.err, got, tt.want)
		}
	}
}
