package handlers

import (
	"net/http"

	"p9e.in/qareports/models"
)

func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	summary, err := h.AI.Summary(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// GenerateSummary asks the model for a new executive summary and replaces
// the stored one. It answers 503 when no model is configured.
func (h *Handler) GenerateSummary(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	summary, err := h.AI.Generate(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

type noteRequest struct {
	SectionKey string `json:"sectionKey"`
	ItemKey    string `json:"itemKey"`
	Rating     string `json:"rating"`
}

// SuggestNote works without a model: predefined and generic notes need none.
func (h *Handler) SuggestNote(w http.ResponseWriter, r *http.Request) {
	var in noteRequest
	if !h.decode(w, r, &in) {
		return
	}
	rating, err := models.ParseRating(in.Rating)
	if err != nil {
		h.badRequest(w, "rating", "%v", err)
		return
	}
	s, err := h.AI.SuggestNote(r.Context(), h.Registry, in.SectionKey, in.ItemKey, rating)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}
