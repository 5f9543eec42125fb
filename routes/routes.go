package routes

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"p9e.in/qareports/handlers"
	"p9e.in/qareports/middleware"
)

// Options controls the routes that depend on deployment.
type Options struct {
	// UploadDir is served under /uploads/ when photos are stored locally.
	UploadDir string
}

// RegisterRoutes sets up all application routes
func RegisterRoutes(h *handlers.Handler, opts Options) http.Handler {
	r := mux.NewRouter()
	r.Use(middleware.Recovery, middleware.CORS, middleware.Identity, middleware.RequestLogger)

	// preflight for every path; CORS answers it before this handler runs
	r.Methods("OPTIONS").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	// =====================================================
	// Public Routes
	// =====================================================
	r.HandleFunc("/health", handlers.Health).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")
	if opts.UploadDir != "" {
		r.PathPrefix("/uploads/").Handler(
			http.StripPrefix("/uploads/", http.FileServer(http.Dir(opts.UploadDir))),
		)
	}

	// =====================================================
	// API Routes (caller identity from X-User-ID)
	// =====================================================
	api := r.PathPrefix("/api/v1").Subrouter()

	registerSchoolRoutes(api, h)
	registerReportRoutes(api, h)
	registerPhotoRoutes(api, h)

	api.HandleFunc("/checklists/{type}", h.Checklist).Methods("GET")
	api.HandleFunc("/suggestions/notes", h.SuggestNote).Methods("POST")

	return r
}

func registerSchoolRoutes(api *mux.Router, h *handlers.Handler) {
	// fixed paths before /schools/{id}
	api.HandleFunc("/schools/due", h.SchoolsDue).Methods("GET")

	registerCRUDRoutes(api, "/schools", crudHandlers{
		getAll: h.ListSchools,
		create: h.CreateSchool,
		getOne: h.GetSchool,
		update: h.UpdateSchool,
		delete: h.DeleteSchool,
	})
	api.HandleFunc("/schools/{id}/checklist/{type}", h.SchoolChecklist).Methods("GET")
	api.HandleFunc("/schools/{id}/verify-location", h.VerifyLocation).Methods("POST")
}

func registerReportRoutes(api *mux.Router, h *handlers.Handler) {
	// Offline drafts from the field client
	api.HandleFunc("/reports/drafts", h.SaveDraft).Methods("POST")
	api.HandleFunc("/reports/drafts/{id}", h.SaveDraft).Methods("PUT")

	registerCRUDRoutes(api, "/reports", crudHandlers{
		getAll: h.ListReports,
		create: h.CreateReport,
		getOne: h.GetReport,
		update: h.UpdateReport,
		delete: h.DeleteReport,
	})

	api.HandleFunc("/reports/{id}/follow-up", h.StartFollowUp).Methods("POST")
	api.HandleFunc("/reports/{id}/responses", h.GetResponses).Methods("GET")
	api.HandleFunc("/reports/{id}/responses", h.SaveResponses).Methods("POST")
	api.HandleFunc("/reports/{id}/progress", h.Progress).Methods("GET")
	api.HandleFunc("/reports/{id}/previous", h.LinkPrevious).Methods("PUT")
	api.HandleFunc("/reports/{id}/comparison", h.Comparison).Methods("GET")
	api.HandleFunc("/reports/{id}/workflow", h.Workflow).Methods("POST")
	api.HandleFunc("/reports/{id}/history", h.History).Methods("GET")
	api.HandleFunc("/reports/{id}/summary", h.GetSummary).Methods("GET")
	api.HandleFunc("/reports/{id}/summary", h.GenerateSummary).Methods("POST")
	api.HandleFunc("/reports/{id}/export/xlsx", h.ExportXLSX).Methods("GET")
}

func registerPhotoRoutes(api *mux.Router, h *handlers.Handler) {
	api.HandleFunc("/reports/{id}/photos", h.ListPhotos).Methods("GET")
	api.HandleFunc("/reports/{id}/photos", h.UploadPhoto).Methods("POST")
	api.HandleFunc("/photos/{id}", h.UpdatePhoto).Methods("PUT")
	api.HandleFunc("/photos/{id}", h.DeletePhoto).Methods("DELETE")
	api.HandleFunc("/photos/{id}/markup", h.AnnotatePhoto).Methods("PUT")
}

type crudHandlers struct {
	getAll func(http.ResponseWriter, *http.Request)
	create func(http.ResponseWriter, *http.Request)
	getOne func(http.ResponseWriter, *http.Request)
	update func(http.ResponseWriter, *http.Request)
	delete func(http.ResponseWriter, *http.Request)
}

// registerCRUDRoutes registers standard CRUD routes for a resource
func registerCRUDRoutes(router *mux.Router, path string, h crudHandlers) {
	router.HandleFunc(path, h.getAll).Methods("GET")
	router.HandleFunc(path, h.create).Methods("POST")
	router.HandleFunc(path+"/{id}", h.getOne).Methods("GET")
	router.HandleFunc(path+"/{id}", h.update).Methods("PUT")
	router.HandleFunc(path+"/{id}", h.delete).Methods("DELETE")
}
