package handlers

import (
	"context"
	"net/http"

	"github.com/vkravcenko/attendance/internal/session"
)

// AttendHandler runs identification rounds over uploaded frames.
type AttendHandler struct {
	controller *session.Controller
}

// NewAttendHandler creates an attendance handler.
func NewAttendHandler(controller *session.Controller) *AttendHandler {
	return &AttendHandler{controller: controller}
}

// Attend handles POST /attend: multipart form with an "image" file
// containing the captured frame and an optional "note" value stored with
// the record. The uploaded frame plays the role of the capture
// collaborator; cancellation happens client-side by not posting.
func (h *AttendHandler) Attend(w http.ResponseWriter, r *http.Request) {
	imageData, err := readImageUpload(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing or invalid image upload: "+err.Error())
		return
	}

	capture := func(context.Context) ([]byte, error) {
		return imageData, nil
	}

	result, err := h.controller.IdentifyAndMark(r.Context(), capture, r.FormValue("note"))
	if err != nil {
		// The result still describes how far the round got; return it
		// alongside the error so a durable-but-unprojected mark is not
		// reported as a total failure.
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":  err.Error(),
			"result": result,
		})
		return
	}

	writeJSON(w, http.StatusOK, result)
}
