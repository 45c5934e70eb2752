// documents.go — HTTP handlers документов реестра.
// Регистрация, поиск, чтение, замена, отзыв, удаление, связи.
package handlers

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/bigkaa/goartstore/document-registry/internal/api/errors"
	"github.com/bigkaa/goartstore/document-registry/internal/api/middleware"
	"github.com/bigkaa/goartstore/document-registry/internal/domain/model"
	"github.com/bigkaa/goartstore/document-registry/internal/service"
)

// multipartMemory — буфер multipart в памяти, остальное во временных файлах.
const multipartMemory = 32 << 20

// multipartOverhead — запас на заголовки и часть metadata сверх размера документа.
const multipartOverhead = 1 << 20

// DocumentsHandler — обработчик endpoints документов.
type DocumentsHandler struct {
	facade *service.Facade
	// maxDocumentSize — предел тела запроса; 0 — без ограничения
	maxDocumentSize int64
}

// NewDocumentsHandler создаёт обработчик endpoints документов.
func NewDocumentsHandler(facade *service.Facade, maxDocumentSize int64) *DocumentsHandler {
	return &DocumentsHandler{facade: facade, maxDocumentSize: maxDocumentSize}
}

// documentListResponse — страница результатов поиска.
type documentListResponse struct {
	Items   []*model.DocumentEntry `json:"items"`
	Total   int                    `json:"total"`
	Limit   int                    `json:"limit"`
	Offset  int                    `json:"offset"`
	HasMore bool                   `json:"has_more"`
}

// associationListResponse — связи документа.
type associationListResponse struct {
	Items []*model.Association `json:"items"`
}

// deprecateRequest — тело POST .../deprecate.
type deprecateRequest struct {
	Reason string `json:"reason"`
}

// upload — разобранный multipart запрос.
type upload struct {
	file     multipart.File
	header   *multipart.FileHeader
	metadata *model.DocumentMetadata
}

// readUpload разбирает multipart: часть file (обязательна) и metadata (JSON).
func (h *DocumentsHandler) readUpload(w http.ResponseWriter, r *http.Request) (*upload, bool) {
	if h.maxDocumentSize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxDocumentSize+multipartOverhead)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			errors.ValidationError(w, fmt.Sprintf("Размер документа превышает %d байт", h.maxDocumentSize))
			return nil, false
		}
		errors.ValidationError(w, fmt.Sprintf("Ошибка парсинга multipart: %s", err.Error()))
		return nil, false
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		errors.ValidationError(w, "Поле 'file' обязательно")
		return nil, false
	}

	u := &upload{file: file, header: header}
	if raw := strings.TrimSpace(r.FormValue("metadata")); raw != "" {
		var meta model.DocumentMetadata
		if err := json.Unmarshal([]byte(raw), &meta); err != nil {
			file.Close()
			errors.ValidationError(w, fmt.Sprintf("Некорректный JSON в поле 'metadata': %s", err.Error()))
			return nil, false
		}
		u.metadata = &meta
	}
	return u, true
}

// RegisterDocument обрабатывает POST /api/v1/tenants/{tenantId}/documents.
func (h *DocumentsHandler) RegisterDocument(w http.ResponseWriter, r *http.Request, tenantID string) {
	u, ok := h.readUpload(w, r)
	if !ok {
		return
	}
	defer u.file.Close()

	var meta model.DocumentMetadata
	if u.metadata != nil {
		meta = *u.metadata
	}
	if meta.MimeType == "" {
		meta.MimeType = u.header.Header.Get("Content-Type")
	}
	if meta.OriginalName == "" {
		meta.OriginalName = u.header.Filename
	}

	entry, err := h.facade.Register(r.Context(), tenantID, u.file, meta, middleware.ActorFromContext(r.Context()))
	if err != nil {
		errors.Domain(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

// UpdateDocument обрабатывает PUT .../documents/{documentId}.
// metadata содержит только переопределения; остальное наследуется.
func (h *DocumentsHandler) UpdateDocument(w http.ResponseWriter, r *http.Request, tenantID, documentID string) {
	u, ok := h.readUpload(w, r)
	if !ok {
		return
	}
	defer u.file.Close()

	overrides := u.metadata
	if overrides == nil {
		overrides = &model.DocumentMetadata{}
	}
	if ct := u.header.Header.Get("Content-Type"); overrides.MimeType == "" && ct != "" && ct != "application/octet-stream" {
		overrides.MimeType = ct
	}
	if overrides.OriginalName == "" {
		overrides.OriginalName = u.header.Filename
	}

	entry, err := h.facade.Update(r.Context(), tenantID, documentID, u.file, overrides, middleware.ActorFromContext(r.Context()))
	if err != nil {
		errors.Domain(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

// QueryDocuments обрабатывает GET /api/v1/tenants/{tenantId}/documents.
func (h *DocumentsHandler) QueryDocuments(w http.ResponseWriter, r *http.Request, tenantID string, params QueryDocumentsParams) {
	q := model.DocumentQuery{
		Limit:       model.DefaultQueryLimit,
		CreatedFrom: params.CreatedFrom,
		CreatedTo:   params.CreatedTo,
	}
	if params.Limit != nil {
		if *params.Limit < 1 || *params.Limit > model.MaxQueryLimit {
			errors.ValidationError(w, fmt.Sprintf("Параметр limit должен быть от 1 до %d", model.MaxQueryLimit))
			return
		}
		q.Limit = *params.Limit
	}
	if params.Offset != nil {
		if *params.Offset < 0 {
			errors.ValidationError(w, "Параметр offset не может быть отрицательным")
			return
		}
		q.Offset = *params.Offset
	}
	if params.IncludeDeprecated != nil {
		q.IncludeDeprecated = *params.IncludeDeprecated
	}
	q.PatientID = deref(params.PatientId)
	q.ClassCode = deref(params.ClassCode)
	q.TypeCode = deref(params.TypeCode)
	q.FormatCode = deref(params.FormatCode)
	q.SourceTag = deref(params.Source)
	q.TitleContains = deref(params.Title)

	entries, total, err := h.facade.Query(r.Context(), tenantID, q, middleware.ActorFromContext(r.Context()))
	if err != nil {
		errors.Domain(w, err)
		return
	}
	if entries == nil {
		entries = []*model.DocumentEntry{}
	}

	writeJSON(w, http.StatusOK, documentListResponse{
		Items:   entries,
		Total:   total,
		Limit:   q.Limit,
		Offset:  q.Offset,
		HasMore: q.Offset+len(entries) < total,
	})
}

// GetDocument обрабатывает GET .../documents/{documentId}.
// Запись возвращается только после проверки целостности содержимого.
func (h *DocumentsHandler) GetDocument(w http.ResponseWriter, r *http.Request, tenantID, documentID string) {
	entry, _, err := h.facade.Retrieve(r.Context(), tenantID, documentID, middleware.ActorFromContext(r.Context()))
	if err != nil {
		errors.Domain(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// GetDocumentContent обрабатывает GET .../documents/{documentId}/content.
// ETag — хэш содержимого; поддерживаются If-None-Match и Range.
func (h *DocumentsHandler) GetDocumentContent(w http.ResponseWriter, r *http.Request, tenantID, documentID string) {
	entry, data, err := h.facade.Retrieve(r.Context(), tenantID, documentID, middleware.ActorFromContext(r.Context()))
	if err != nil {
		errors.Domain(w, err)
		return
	}

	w.Header().Set("Content-Type", entry.MimeType)
	w.Header().Set("ETag", `"`+entry.Hash+`"`)
	w.Header().Set("X-Document-Version", entry.Version())
	http.ServeContent(w, r, "", entry.CreatedAt, bytes.NewReader(data))
}

// DeprecateDocument обрабатывает POST .../documents/{documentId}/deprecate.
func (h *DocumentsHandler) DeprecateDocument(w http.ResponseWriter, r *http.Request, tenantID, documentID string) {
	var req deprecateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !stderrors.Is(err, io.EOF) {
		errors.ValidationError(w, fmt.Sprintf("Некорректный JSON: %s", err.Error()))
		return
	}

	entry, err := h.facade.Deprecate(r.Context(), tenantID, documentID, middleware.ActorFromContext(r.Context()), req.Reason)
	if err != nil {
		errors.Domain(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// DeleteDocument обрабатывает DELETE .../documents/{documentId}?force=bool.
func (h *DocumentsHandler) DeleteDocument(w http.ResponseWriter, r *http.Request, tenantID, documentID string, params DeleteDocumentParams) {
	force := params.Force != nil && *params.Force
	if err := h.facade.Delete(r.Context(), tenantID, documentID, middleware.ActorFromContext(r.Context()), force); err != nil {
		errors.Domain(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListAssociations обрабатывает GET .../documents/{documentId}/associations.
func (h *DocumentsHandler) ListAssociations(w http.ResponseWriter, r *http.Request, tenantID, documentID string) {
	assocs, err := h.facade.ListAssociations(r.Context(), tenantID, documentID, middleware.ActorFromContext(r.Context()))
	if err != nil {
		errors.Domain(w, err)
		return
	}
	if assocs == nil {
		assocs = []*model.Association{}
	}
	writeJSON(w, http.StatusOK, associationListResponse{Items: assocs})
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
