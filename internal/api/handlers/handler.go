// handler.go — APIHandler реализует ServerInterface,
// делегируя вызовы в отдельные handler'ы по доменам.
package handlers

import (
	"net/http"

	"github.com/bigkaa/goartstore/document-registry/internal/api/openapi"
)

// ServerInterface — операции HTTP API. Маршруты и привязка
// параметров задаются в HandlerFromMux по openapi.yaml.
type ServerInterface interface {
	HealthLive(w http.ResponseWriter, r *http.Request)
	HealthReady(w http.ResponseWriter, r *http.Request)
	GetMetrics(w http.ResponseWriter, r *http.Request)
	GetOpenAPI(w http.ResponseWriter, r *http.Request)

	RegisterDocument(w http.ResponseWriter, r *http.Request, tenantID string)
	QueryDocuments(w http.ResponseWriter, r *http.Request, tenantID string, params QueryDocumentsParams)
	GetDocument(w http.ResponseWriter, r *http.Request, tenantID, documentID string)
	GetDocumentContent(w http.ResponseWriter, r *http.Request, tenantID, documentID string)
	UpdateDocument(w http.ResponseWriter, r *http.Request, tenantID, documentID string)
	DeprecateDocument(w http.ResponseWriter, r *http.Request, tenantID, documentID string)
	DeleteDocument(w http.ResponseWriter, r *http.Request, tenantID, documentID string, params DeleteDocumentParams)
	ListAssociations(w http.ResponseWriter, r *http.Request, tenantID, documentID string)

	CreateGroup(w http.ResponseWriter, r *http.Request, tenantID string)
	GetGroup(w http.ResponseWriter, r *http.Request, tenantID, groupID string)

	Reconcile(w http.ResponseWriter, r *http.Request, params ReconcileParams)
}

// APIHandler — единая реализация ServerInterface.
type APIHandler struct {
	documents   *DocumentsHandler
	groups      *GroupsHandler
	maintenance *MaintenanceHandler
	health      *HealthHandler
}

// NewAPIHandler создаёт единый handler для всех endpoints.
func NewAPIHandler(
	documents *DocumentsHandler,
	groups *GroupsHandler,
	maintenance *MaintenanceHandler,
	health *HealthHandler,
) *APIHandler {
	return &APIHandler{
		documents:   documents,
		groups:      groups,
		maintenance: maintenance,
		health:      health,
	}
}

// --- Documents ---

func (h *APIHandler) RegisterDocument(w http.ResponseWriter, r *http.Request, tenantID string) {
	h.documents.RegisterDocument(w, r, tenantID)
}

func (h *APIHandler) QueryDocuments(w http.ResponseWriter, r *http.Request, tenantID string, params QueryDocumentsParams) {
	h.documents.QueryDocuments(w, r, tenantID, params)
}

func (h *APIHandler) GetDocument(w http.ResponseWriter, r *http.Request, tenantID, documentID string) {
	h.documents.GetDocument(w, r, tenantID, documentID)
}

func (h *APIHandler) GetDocumentContent(w http.ResponseWriter, r *http.Request, tenantID, documentID string) {
	h.documents.GetDocumentContent(w, r, tenantID, documentID)
}

func (h *APIHandler) UpdateDocument(w http.ResponseWriter, r *http.Request, tenantID, documentID string) {
	h.documents.UpdateDocument(w, r, tenantID, documentID)
}

func (h *APIHandler) DeprecateDocument(w http.ResponseWriter, r *http.Request, tenantID, documentID string) {
	h.documents.DeprecateDocument(w, r, tenantID, documentID)
}

func (h *APIHandler) DeleteDocument(w http.ResponseWriter, r *http.Request, tenantID, documentID string, params DeleteDocumentParams) {
	h.documents.DeleteDocument(w, r, tenantID, documentID, params)
}

func (h *APIHandler) ListAssociations(w http.ResponseWriter, r *http.Request, tenantID, documentID string) {
	h.documents.ListAssociations(w, r, tenantID, documentID)
}

// --- Groups ---

func (h *APIHandler) CreateGroup(w http.ResponseWriter, r *http.Request, tenantID string) {
	h.groups.CreateGroup(w, r, tenantID)
}

func (h *APIHandler) GetGroup(w http.ResponseWriter, r *http.Request, tenantID, groupID string) {
	h.groups.GetGroup(w, r, tenantID, groupID)
}

// --- Maintenance ---

func (h *APIHandler) Reconcile(w http.ResponseWriter, r *http.Request, params ReconcileParams) {
	h.maintenance.Reconcile(w, r, params)
}

// --- Health, metrics, contract ---

func (h *APIHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	h.health.HealthLive(w, r)
}

func (h *APIHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	h.health.HealthReady(w, r)
}

func (h *APIHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.health.GetMetrics(w, r)
}

func (h *APIHandler) GetOpenAPI(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(openapi.Spec())
}

// Проверка соответствия интерфейсу на этапе компиляции.
var _ ServerInterface = (*APIHandler)(nil)
