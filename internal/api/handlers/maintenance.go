// maintenance.go — обработчик POST /api/v1/maintenance/reconcile.
// Делегирует сверку в ReconcileService.
package handlers

import (
	"context"
	stderrors "errors"
	"net/http"

	apierrors "github.com/bigkaa/goartstore/document-registry/internal/api/errors"
	"github.com/bigkaa/goartstore/document-registry/internal/service"
)

// ReconcileRunner — запуск сверки. Позволяет тестировать handler без ReconcileService.
type ReconcileRunner interface {
	RunOnce(ctx context.Context, tenantID string) (*service.ReconcileReport, error)
}

// MaintenanceHandler — обработчик endpoints обслуживания.
type MaintenanceHandler struct {
	reconciler ReconcileRunner
}

// NewMaintenanceHandler создаёт обработчик maintenance endpoints.
func NewMaintenanceHandler(reconciler ReconcileRunner) *MaintenanceHandler {
	return &MaintenanceHandler{reconciler: reconciler}
}

// Reconcile выполняет синхронную сверку и возвращает отчёт.
// Пустой tenantId — все тенанты. Параллельный запуск → 409.
func (h *MaintenanceHandler) Reconcile(w http.ResponseWriter, r *http.Request, params ReconcileParams) {
	report, err := h.reconciler.RunOnce(r.Context(), deref(params.TenantId))
	if err != nil {
		if stderrors.Is(err, service.ErrReconcileInProgress) {
			apierrors.Conflict(w, "Сверка уже выполняется")
			return
		}
		apierrors.Domain(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
