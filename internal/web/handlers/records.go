package handlers

import (
	"net/http"

	"github.com/vkravcenko/attendance/internal/ledger"
)

// RecordsHandler exposes the attendance ledger.
type RecordsHandler struct {
	ledger *ledger.Ledger
}

// NewRecordsHandler creates a records handler.
func NewRecordsHandler(led *ledger.Ledger) *RecordsHandler {
	return &RecordsHandler{ledger: led}
}

type recordsResponse struct {
	Count   int             `json:"count"`
	Records []ledger.Record `json:"records"`
}

// List handles GET /records.
func (h *RecordsHandler) List(w http.ResponseWriter, _ *http.Request) {
	records := h.ledger.Records()
	writeJSON(w, http.StatusOK, recordsResponse{Count: len(records), Records: records})
}

// Rebuild handles POST /records/rebuild: discards the projection and
// reconstructs state from the audit log.
func (h *RecordsHandler) Rebuild(w http.ResponseWriter, _ *http.Request) {
	n, err := h.ledger.Rebuild()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"records": n})
}
