package handlers

import (
	"errors"
	"net/http"

	"github.com/vkravcenko/attendance/internal/codec"
	"github.com/vkravcenko/attendance/internal/gallery"
)

// EnrollHandler registers new identities into the gallery.
type EnrollHandler struct {
	gallery *gallery.Gallery
}

// NewEnrollHandler creates an enrollment handler.
func NewEnrollHandler(gal *gallery.Gallery) *EnrollHandler {
	return &EnrollHandler{gallery: gal}
}

type enrollResponse struct {
	Identity string `json:"identity"`
	Source   string `json:"source"`
}

// Enroll handles POST /enroll: multipart form with an "image" file, a
// "name" value and an optional "overwrite" flag. Enrollment requires
// exactly one face in the image.
func (h *EnrollHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	imageData, err := readImageUpload(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing or invalid image upload: "+err.Error())
		return
	}

	name := r.FormValue("name")
	if name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	overwrite := r.FormValue("overwrite") == "true"

	entry, err := h.gallery.Register(r.Context(), name, imageData, overwrite)
	switch {
	case errors.Is(err, codec.ErrNoFace):
		writeError(w, http.StatusUnprocessableEntity, "no face detected in enrollment image")
		return
	case errors.Is(err, codec.ErrMultipleFaces):
		writeError(w, http.StatusUnprocessableEntity, "enrollment image must contain exactly one face")
		return
	case errors.Is(err, gallery.ErrInvalidIdentity):
		writeError(w, http.StatusBadRequest, "name must not contain path separators or dots")
		return
	case errors.Is(err, gallery.ErrDuplicateIdentity):
		writeError(w, http.StatusConflict, "identity already enrolled; pass overwrite=true to replace")
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, enrollResponse{
		Identity: entry.Identity,
		Source:   entry.Source,
	})
}
