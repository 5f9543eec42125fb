package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"p9e.in/qareports/models"
	"p9e.in/qareports/pkg/reports"
)

func (h *Handler) ListSchools(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	schools, err := h.Schools.List(r.Context(), q.Get("status"), q.Get("region"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, schools)
}

func (h *Handler) CreateSchool(w http.ResponseWriter, r *http.Request) {
	var in reports.SchoolInput
	if !h.decode(w, r, &in) {
		return
	}
	school, err := h.Schools.Create(r.Context(), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, school)
}

func (h *Handler) GetSchool(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	school, err := h.Schools.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, school)
}

func (h *Handler) UpdateSchool(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var in reports.SchoolInput
	if !h.decode(w, r, &in) {
		return
	}
	school, err := h.Schools.Update(r.Context(), id, in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, school)
}

func (h *Handler) DeleteSchool(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.Schools.Delete(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SchoolChecklist resolves the checklist an inspector fills in at this
// school, classroom sections included.
func (h *Handler) SchoolChecklist(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	def, err := h.Schools.Checklist(r.Context(), id, mux.Vars(r)["type"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, def)
}

type locationRequest struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

func (h *Handler) VerifyLocation(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var in locationRequest
	if !h.decode(w, r, &in) {
		return
	}
	if in.Latitude == nil || in.Longitude == nil {
		h.badRequest(w, "latitude", "latitude and longitude are required")
		return
	}
	v, err := h.Schools.VerifyLocation(r.Context(), id, *in.Latitude, *in.Longitude)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// SchoolsDue lists schools whose next visit falls within ?days= (default 30).
func (h *Handler) SchoolsDue(w http.ResponseWriter, r *http.Request) {
	visits, err := h.Reports.SchoolsDueForVisit(r.Context(), queryInt(r, "days", 30))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, visits)
}

type checklistResponse struct {
	ReportType models.ReportType `json:"reportType"`
	Label      string            `json:"label"`
	Version    string            `json:"version"`
	ItemCount  int               `json:"itemCount"`
	Sections   any               `json:"sections"`
	Summary    any               `json:"summary"`
}

// Checklist returns the static checklist of a report type.
func (h *Handler) Checklist(w http.ResponseWriter, r *http.Request) {
	t, err := models.ParseReportType(mux.Vars(r)["type"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	def, err := h.Registry.Resolve(t)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	summary, err := h.Registry.SectionsList(t)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, checklistResponse{
		ReportType: t,
		Label:      t.Label(),
		Version:    h.Registry.Version(),
		ItemCount:  def.ItemCount(),
		Sections:   def.Sections,
		Summary:    summary,
	})
}
