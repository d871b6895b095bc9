package handlers

import (
	"net/http"

	"github.com/vkravcenko/attendance/internal/gallery"
)

// GalleryHandler exposes read-only views of the enrolled gallery.
type GalleryHandler struct {
	gallery *gallery.Gallery
}

// NewGalleryHandler creates a gallery handler.
func NewGalleryHandler(gal *gallery.Gallery) *GalleryHandler {
	return &GalleryHandler{gallery: gal}
}

type galleryEntry struct {
	Identity string `json:"identity"`
	Source   string `json:"source"`
	SHA256   string `json:"sha256"`
}

type galleryResponse struct {
	Count   int            `json:"count"`
	Entries []galleryEntry `json:"entries"`
}

// List handles GET /gallery. Embeddings themselves are never exposed over
// the API.
func (h *GalleryHandler) List(w http.ResponseWriter, _ *http.Request) {
	snapshot := h.gallery.Snapshot()

	entries := make([]galleryEntry, len(snapshot))
	for i, e := range snapshot {
		entries[i] = galleryEntry{Identity: e.Identity, Source: e.Source, SHA256: e.SHA256}
	}

	writeJSON(w, http.StatusOK, galleryResponse{Count: len(entries), Entries: entries})
}
