package main

import (
	"slices"
	"testing"

	"github.com/bigkaa/goartstore/document-registry/internal/domain/model"
)

func TestParsePermissions(t *testing.T) {
	perms, err := parsePermissions([]string{"delete=admin, doctor", "update="})
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if !slices.Equal(perms[model.OpDelete], []string{"admin", "doctor"}) {
		t.Errorf("delete: получено %v", perms[model.OpDelete])
	}
	if roles, ok := perms[model.OpUpdate]; !ok || len(roles) != 0 {
		t.Errorf("update: ожидался пустой список, получено %v", roles)
	}

	empty, err := parsePermissions(nil)
	if err != nil || empty != nil {
		t.Errorf("без значений: получено %v, %v", empty, err)
	}
}

func TestParsePermissions_Invalid(t *testing.T) {
	for _, v := range []string{"delete", "archive=admin"} {
		if _, err := parsePermissions([]string{v}); err == nil {
			t.Errorf("ожидалась ошибка для %q", v)
		}
	}
}

func TestRootCmd_Subcommands(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"migrate", "tenant", "reconcile", "gc", "orphans", "verify"} {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("команда %s не найдена", name)
		}
	}
}
