// routes.go — маршруты chi и привязка параметров по openapi.yaml.
package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"

	"github.com/bigkaa/goartstore/document-registry/internal/api/errors"
	"github.com/bigkaa/goartstore/document-registry/internal/api/middleware"
)

// QueryDocumentsParams — параметры GET .../documents.
type QueryDocumentsParams struct {
	PatientId         *string
	ClassCode         *string
	TypeCode          *string
	FormatCode        *string
	Source            *string
	Title             *string
	CreatedFrom       *time.Time
	CreatedTo         *time.Time
	IncludeDeprecated *bool
	Limit             *int
	Offset            *int
}

// DeleteDocumentParams — параметры DELETE .../documents/{documentId}.
type DeleteDocumentParams struct {
	Force *bool
}

// ReconcileParams — параметры POST /api/v1/maintenance/reconcile.
type ReconcileParams struct {
	TenantId *string
}

// HandlerFromMux монтирует все операции ServerInterface на роутер.
func HandlerFromMux(si ServerInterface, r chi.Router) {
	r.Get("/health/live", si.HealthLive)
	r.Get("/health/ready", si.HealthReady)
	r.Get("/metrics", si.GetMetrics)
	r.Get("/api/v1/openapi.yaml", si.GetOpenAPI)

	r.Route("/api/v1/tenants/{tenantId}", func(r chi.Router) {
		r.Post("/documents", func(w http.ResponseWriter, r *http.Request) {
			tenantID, ok := pathParam(w, r, "tenantId")
			if !ok {
				return
			}
			si.RegisterDocument(w, r, tenantID)
		})

		r.Get("/documents", func(w http.ResponseWriter, r *http.Request) {
			tenantID, ok := pathParam(w, r, "tenantId")
			if !ok {
				return
			}
			var params QueryDocumentsParams
			query := r.URL.Query()
			for _, p := range []struct {
				name string
				dest any
			}{
				{"patientId", &params.PatientId},
				{"classCode", &params.ClassCode},
				{"typeCode", &params.TypeCode},
				{"formatCode", &params.FormatCode},
				{"source", &params.Source},
				{"title", &params.Title},
				{"createdFrom", &params.CreatedFrom},
				{"createdTo", &params.CreatedTo},
				{"includeDeprecated", &params.IncludeDeprecated},
				{"limit", &params.Limit},
				{"offset", &params.Offset},
			} {
				if err := runtime.BindQueryParameter("form", true, false, p.name, query, p.dest); err != nil {
					errors.ValidationError(w, fmt.Sprintf("Некорректный параметр %s: %s", p.name, err.Error()))
					return
				}
			}
			si.QueryDocuments(w, r, tenantID, params)
		})

		r.Get("/documents/{documentId}", documentRoute(si.GetDocument))
		r.Put("/documents/{documentId}", documentRoute(si.UpdateDocument))
		r.Delete("/documents/{documentId}", func(w http.ResponseWriter, r *http.Request) {
			tenantID, documentID, ok := documentParams(w, r)
			if !ok {
				return
			}
			var params DeleteDocumentParams
			if err := runtime.BindQueryParameter("form", true, false, "force", r.URL.Query(), &params.Force); err != nil {
				errors.ValidationError(w, fmt.Sprintf("Некорректный параметр force: %s", err.Error()))
				return
			}
			si.DeleteDocument(w, r, tenantID, documentID, params)
		})
		r.Get("/documents/{documentId}/content", documentRoute(si.GetDocumentContent))
		r.Post("/documents/{documentId}/deprecate", documentRoute(si.DeprecateDocument))
		r.Get("/documents/{documentId}/associations", documentRoute(si.ListAssociations))

		r.Post("/groups", func(w http.ResponseWriter, r *http.Request) {
			tenantID, ok := pathParam(w, r, "tenantId")
			if !ok {
				return
			}
			si.CreateGroup(w, r, tenantID)
		})
		r.Get("/groups/{groupId}", func(w http.ResponseWriter, r *http.Request) {
			tenantID, ok := pathParam(w, r, "tenantId")
			if !ok {
				return
			}
			groupID, ok := pathParam(w, r, "groupId")
			if !ok {
				return
			}
			si.GetGroup(w, r, tenantID, groupID)
		})
	})

	r.With(middleware.RequireScope(middleware.ScopeRegistryAdmin)).
		Post("/api/v1/maintenance/reconcile", func(w http.ResponseWriter, r *http.Request) {
			var params ReconcileParams
			if err := runtime.BindQueryParameter("form", true, false, "tenantId", r.URL.Query(), &params.TenantId); err != nil {
				errors.ValidationError(w, fmt.Sprintf("Некорректный параметр tenantId: %s", err.Error()))
				return
			}
			si.Reconcile(w, r, params)
		})
}

// pathParam извлекает обязательный path-параметр.
func pathParam(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	var value string
	err := runtime.BindStyledParameterWithOptions("simple", name, chi.URLParam(r, name), &value,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		errors.ValidationError(w, fmt.Sprintf("Некорректный параметр %s: %s", name, err.Error()))
		return "", false
	}
	return value, true
}

// documentParams извлекает tenantId и documentId.
func documentParams(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	tenantID, ok := pathParam(w, r, "tenantId")
	if !ok {
		return "", "", false
	}
	documentID, ok := pathParam(w, r, "documentId")
	if !ok {
		return "", "", false
	}
	return tenantID, documentID, true
}

// documentRoute адаптирует операцию над документом к http.HandlerFunc.
func documentRoute(op func(http.ResponseWriter, *http.Request, string, string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, documentID, ok := documentParams(w, r)
		if !ok {
			return
		}
		op(w, r, tenantID, documentID)
	}
}
