package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"p9e.in/qareports/middleware"
	"p9e.in/qareports/models"
	"p9e.in/qareports/pkg/ledger"
	"p9e.in/qareports/pkg/reports"
)

type listResponse struct {
	Reports  []models.Report `json:"reports"`
	Total    int64           `json:"total"`
	Page     int             `json:"page"`
	PageSize int             `json:"pageSize"`
}

// ListReports filters by ?school_id=, ?type=, ?status= and ?mine=true.
func (h *Handler) ListReports(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := reports.Filter{
		ReportType: models.ReportType(q.Get("type")),
		Status:     models.ReportStatus(q.Get("status")),
		Page:       queryInt(r, "page", 1),
		PageSize:   queryInt(r, "page_size", 20),
	}
	if raw := q.Get("school_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			h.badRequest(w, "school_id", "must be a uuid")
			return
		}
		f.SchoolID = &id
	}
	if mine, _ := strconv.ParseBool(q.Get("mine")); mine {
		f.UserID = middleware.GetUserID(r)
	}

	list, total, err := h.Reports.List(r.Context(), f)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Reports: list, Total: total, Page: max(f.Page, 1), PageSize: f.PageSize})
}

func (h *Handler) CreateReport(w http.ResponseWriter, r *http.Request) {
	var in reports.CreateInput
	if !h.decode(w, r, &in) {
		return
	}
	in.UserID = middleware.GetUserID(r)
	report, err := h.Reports.Create(r.Context(), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, report)
}

// GetReport returns the full view: checklist, responses with their change
// class, photos, pairs and progress.
func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	view, err := h.Reports.View(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) UpdateReport(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var in reports.UpdateInput
	if !h.decode(w, r, &in) {
		return
	}
	report, err := h.Reports.Update(r.Context(), id, in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// DeleteReport removes the report rows first and the stored photo files
// after the commit.
func (h *Handler) DeleteReport(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	refs, err := h.Reports.Delete(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.Photos.RemoveObjects(r.Context(), refs)
	h.log.WithFields(logrus.Fields{"report_id": id, "files": len(refs), "user_id": middleware.GetUserID(r)}).Info("🗑️ report deleted")
	w.WriteHeader(http.StatusNoContent)
}

// SaveDraft is the field client's upsert. PUT carries the server id in the
// path; POST matches on the client key.
func (h *Handler) SaveDraft(w http.ResponseWriter, r *http.Request) {
	var in reports.DraftInput
	if !h.decode(w, r, &in) {
		return
	}
	if r.Method == http.MethodPut {
		id, ok := h.pathID(w, r)
		if !ok {
			return
		}
		in.ID = &id
	}
	in.UserID = middleware.GetUserID(r)

	res, err := h.Reports.UpsertDraft(r.Context(), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, res)
}

func (h *Handler) StartFollowUp(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var in reports.FollowUpInput
	if !h.decode(w, r, &in) {
		return
	}
	in.UserID = middleware.GetUserID(r)
	report, err := h.Reports.StartFollowUp(r.Context(), id, in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, report)
}

func (h *Handler) GetResponses(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	grouped, err := h.Reports.Responses(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, grouped)
}

type bulkSaveRequest struct {
	Responses ledger.Payload `json:"responses"`
}

// SaveResponses replaces every response of the report with the payload.
func (h *Handler) SaveResponses(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var in bulkSaveRequest
	if !h.decode(w, r, &in) {
		return
	}
	saved, err := h.Reports.SaveResponses(r.Context(), id, in.Responses)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"saved": saved})
}

func (h *Handler) Progress(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	stats, err := h.Reports.ProgressStats(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type linkPreviousRequest struct {
	PreviousReportID uuid.UUID `json:"previousReportId"`
}

func (h *Handler) LinkPrevious(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var in linkPreviousRequest
	if !h.decode(w, r, &in) {
		return
	}
	if in.PreviousReportID == uuid.Nil {
		h.badRequest(w, "previous_report_id", "is required")
		return
	}
	copied, err := h.Reports.LinkPrevious(r.Context(), id, in.PreviousReportID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"copied": copied})
}

func (h *Handler) Comparison(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	res, err := h.Reports.Comparison(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type workflowRequest struct {
	Action  string `json:"action"`
	Comment string `json:"comment"`
}

// Workflow applies submit or approve.
func (h *Handler) Workflow(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var in workflowRequest
	if !h.decode(w, r, &in) {
		return
	}
	if in.Action != reports.ActionSubmit && in.Action != reports.ActionApprove {
		h.badRequest(w, "action", "must be one of: %s, %s", reports.ActionSubmit, reports.ActionApprove)
		return
	}
	report, err := h.Reports.Transition(r.Context(), id, in.Action, middleware.GetUserID(r), in.Comment)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	history, err := h.Reports.History(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

// ExportXLSX streams the report workbook as a download.
func (h *Handler) ExportXLSX(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	report, err := h.Reports.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	buf, err := h.Reports.ExportXLSX(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", "attachment; filename="+reports.ExportFilename(report, time.Now()))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	_, _ = w.Write(buf.Bytes())
}
