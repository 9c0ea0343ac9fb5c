package api

import (
	"net/http"
	"regexp"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

var snapshotDateRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// handleTriggerSnapshot handles POST /api/snapshots. The run is synchronous;
// without force=true a second call on the same UTC date returns the existing
// snapshot.
func (s *Server) handleTriggerSnapshot(w http.ResponseWriter, r *http.Request) {
	force := r.URL.Query().Get("force") == "true"

	snapshot, err := s.snapshot.Run(r.Context(), force)
	if err != nil {
		s.logger.Error("daily snapshot failed", zap.Error(err))
		if snapshot != nil {
			respondJSON(w, http.StatusBadGateway, map[string]interface{}{
				"snapshot": snapshot,
				"error":    ErrorBody{Code: ErrCodeInternalError, Message: err.Error()},
			})
			return
		}
		status, code, message := mapServiceError(err)
		respondError(w, status, code, message)
		return
	}

	respondJSON(w, http.StatusOK, snapshot)
}

// handleGetSnapshot handles GET /api/snapshots/{date} with date YYYY-MM-DD.
func (s *Server) handleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	date := mux.Vars(r)["date"]
	if !snapshotDateRe.MatchString(date) {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "date must be YYYY-MM-DD")
		return
	}

	snapshot, err := s.snapshots.GetDailySnapshotByDate(r.Context(), date)
	if err != nil {
		respondError(w, http.StatusInternalServerError, ErrCodeInternalError, "snapshot lookup failed")
		return
	}
	if snapshot == nil {
		respondError(w, http.StatusNotFound, ErrCodeNotFound, "no snapshot for date "+date)
		return
	}

	items, err := s.snapshots.GetSnapshotItems(r.Context(), snapshot.ID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, ErrCodeInternalError, "snapshot items lookup failed")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"snapshot": snapshot, "items": items})
}
