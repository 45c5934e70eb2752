package main

import (
	"fmt"
	"strings"

	"github.com/bigkaa/goartstore/document-registry/internal/domain/model"
)

// parsePermissions разбирает значения вида "delete=admin,doctor".
// Пустой список ролей запрещает операцию всем ролям.
func parsePermissions(values []string) (map[model.Operation][]string, error) {
	if len(values) == 0 {
		return nil, nil
	}
	perms := make(map[model.Operation][]string, len(values))
	for _, v := range values {
		op, roles, ok := strings.Cut(v, "=")
		if !ok {
			return nil, fmt.Errorf("некорректное право %q: ожидается op=role,role", v)
		}
		operation := model.Operation(strings.TrimSpace(op))
		if !operation.IsValid() {
			return nil, fmt.Errorf("неизвестная операция %q", op)
		}
		list := []string{}
		for _, role := range strings.Split(roles, ",") {
			if role = strings.TrimSpace(role); role != "" {
				list = append(list, role)
			}
		}
		perms[operation] = list
	}
	return perms, nil
}
