package handlers

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"p9e.in/qareports/middleware"
	"p9e.in/qareports/pkg/photos"
)

// multipartMemory is what ParseMultipartForm keeps in memory; larger parts
// spill to temp files and the service enforces the real size limit.
const multipartMemory = 10 << 20

// ListPhotos returns the report's photos grouped by section key.
// ?section=&item= narrows to one item.
func (h *Handler) ListPhotos(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	if section, item := q.Get("section"), q.Get("item"); section != "" && item != "" {
		list, err := h.Photos.ForItem(r.Context(), id, section, item)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, h.Photos.Views(list))
		return
	}

	grouped, err := h.Photos.Grouped(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, grouped)
}

func formFloat(r *http.Request, key string) *float64 {
	raw := r.FormValue(key)
	if raw == "" {
		return nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil
	}
	return &f
}

// UploadPhoto accepts a multipart form with the image in "file". A repeated
// "clientKey" answers with the photo stored the first time.
func (h *Handler) UploadPhoto(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		h.badRequest(w, "file", "invalid multipart form: %v", err)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		h.badRequest(w, "file", "is required")
		return
	}
	defer file.Close()

	in := photos.UploadInput{
		SectionKey:  r.FormValue("sectionKey"),
		ItemKey:     r.FormValue("itemKey"),
		LocationTag: r.FormValue("locationTag"),
		Caption:     r.FormValue("caption"),
		Filename:    header.Filename,
		Latitude:    formFloat(r, "latitude"),
		Longitude:   formFloat(r, "longitude"),
	}
	if raw := r.FormValue("clientKey"); raw != "" {
		key, err := uuid.Parse(raw)
		if err != nil {
			h.badRequest(w, "clientKey", "must be a UUID")
			return
		}
		in.ClientKey = &key
	}
	photo, err := h.Photos.Upload(r.Context(), id, in, file)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.Photos.ViewOf(*photo))
}

// AnnotatePhoto replaces the image with the marked-up version in "file".
func (h *Handler) AnnotatePhoto(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		h.badRequest(w, "file", "invalid multipart form: %v", err)
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		h.badRequest(w, "file", "is required")
		return
	}
	defer file.Close()

	photo, err := h.Photos.Annotate(r.Context(), id, file)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.Photos.ViewOf(*photo))
}

// UpdatePhoto edits caption, location tag or sort order. Absent fields are
// left alone.
func (h *Handler) UpdatePhoto(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var in photos.MetaInput
	if !h.decode(w, r, &in) {
		return
	}
	photo, err := h.Photos.UpdateMeta(r.Context(), id, in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.Photos.ViewOf(*photo))
}

func (h *Handler) DeletePhoto(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.Photos.Delete(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.log.WithField("user_id", middleware.GetUserID(r)).Debug("photo removed via api")
	w.WriteHeader(http.StatusNoContent)
}
