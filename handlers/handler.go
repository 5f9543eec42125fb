package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"p9e.in/qareports/config"
	"p9e.in/qareports/models"
	"p9e.in/qareports/pkg/ai"
	"p9e.in/qareports/pkg/checklist"
	"p9e.in/qareports/pkg/photos"
	"p9e.in/qareports/pkg/reports"
)

// maxJSONBody bounds decoded request bodies; bulk saves of the largest
// checklist stay well under it.
const maxJSONBody = 4 << 20

// Handler serves the REST API. Every dependency is injected so tests can
// run it against an in-memory database.
type Handler struct {
	Reports  *reports.Service
	Schools  *reports.SchoolService
	Photos   *photos.Service
	AI       *ai.Summarizer
	Registry *checklist.Registry

	log logrus.FieldLogger
}

func New(rs *reports.Service, ss *reports.SchoolService, ps *photos.Service, summarizer *ai.Summarizer) *Handler {
	return &Handler{
		Reports:  rs,
		Schools:  ss,
		Photos:   ps,
		AI:       summarizer,
		Registry: rs.Registry(),
		log:      config.ComponentLogger("handlers"),
	}
}

type errorBody struct {
	Error   string                   `json:"error"`
	Details []models.ValidationError `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors onto status codes. Anything unrecognised is
// logged and reported as a 500 without leaking the cause.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *models.ValidationError
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "validation failed", Details: []models.ValidationError{*ve}})
	case errors.Is(err, models.ErrReportNotFound),
		errors.Is(err, models.ErrSchoolNotFound),
		errors.Is(err, models.ErrPhotoNotFound),
		errors.Is(err, models.ErrSummaryNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
	case errors.Is(err, models.ErrInvalidTransition),
		errors.Is(err, models.ErrSchoolHasReports),
		errors.Is(err, models.ErrSummaryInProgress):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error()})
	case errors.Is(err, models.ErrAINotConfigured):
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: err.Error()})
	default:
		config.LogError(h.log, "handlers", r.Method+" "+r.URL.Path, "request failed", nil, err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal server error"})
	}
}

func (h *Handler) badRequest(w http.ResponseWriter, field, format string, args ...any) {
	writeJSON(w, http.StatusBadRequest, errorBody{
		Error:   "validation failed",
		Details: []models.ValidationError{*models.NewValidationError(field, format, args...)},
	})
}

// pathID parses the {id} route variable.
func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		h.badRequest(w, "id", "must be a uuid")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(dst); err != nil {
		h.badRequest(w, "body", "invalid json: %v", err)
		return false
	}
	return true
}

func queryInt(r *http.Request, key string, fallback int) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return fallback
	}
	return n
}

// Health is the liveness probe the field client pings.
func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
