// groups.go — HTTP handlers SubmissionSet и Folder.
package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/bigkaa/goartstore/document-registry/internal/api/errors"
	"github.com/bigkaa/goartstore/document-registry/internal/api/middleware"
	"github.com/bigkaa/goartstore/document-registry/internal/service"
)

// GroupsHandler — обработчик endpoints групп.
type GroupsHandler struct {
	facade *service.Facade
}

// NewGroupsHandler создаёт обработчик endpoints групп.
func NewGroupsHandler(facade *service.Facade) *GroupsHandler {
	return &GroupsHandler{facade: facade}
}

// CreateGroup обрабатывает POST /api/v1/tenants/{tenantId}/groups.
func (h *GroupsHandler) CreateGroup(w http.ResponseWriter, r *http.Request, tenantID string) {
	var req service.GroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.ValidationError(w, fmt.Sprintf("Некорректный JSON: %s", err.Error()))
		return
	}

	group, err := h.facade.CreateGroup(r.Context(), tenantID, req, middleware.ActorFromContext(r.Context()))
	if err != nil {
		errors.Domain(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, group)
}

// GetGroup обрабатывает GET /api/v1/tenants/{tenantId}/groups/{groupId}.
func (h *GroupsHandler) GetGroup(w http.ResponseWriter, r *http.Request, tenantID, groupID string) {
	group, err := h.facade.GetGroup(r.Context(), tenantID, groupID, middleware.ActorFromContext(r.Context()))
	if err != nil {
		errors.Domain(w, err)
		return
	}
	writeJSON(w, http.StatusOK, group)
}
