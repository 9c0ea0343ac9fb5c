package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/wallet-scanner/internal/models"
	"github.com/wallet-scanner/internal/service"
)

// refreshResult is the JSON shape of one chain's refresh outcome.
type refreshResult struct {
	ChainID          string                `json:"chainId"`
	ActiveSnapshotID string                `json:"activeSnapshotId,omitempty"`
	Status           models.SnapshotStatus `json:"status"`
	Error            string                `json:"error,omitempty"`
}

func toRefreshResult(o service.RefreshOutcome) refreshResult {
	result := refreshResult{
		ChainID:          o.ChainID,
		ActiveSnapshotID: o.ActiveSnapshotID,
		Status:           o.Status,
	}
	if o.Err != nil {
		result.Error = o.Err.Error()
	}
	return result
}

// handleRefreshUniverse handles POST /api/universe/refresh. With a chainId
// in the body only that chain is refreshed; otherwise every active chain.
func (s *Server) handleRefreshUniverse(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ChainID string `json:"chainId"`
	}
	if r.ContentLength > 0 {
		if err := parseJSONBody(r, &req); err != nil {
			respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "invalid request body")
			return
		}
	}

	asOfDate := service.UniverseDate(time.Now())

	if req.ChainID != "" {
		chain, err := s.chains.GetChainByID(r.Context(), req.ChainID)
		if err != nil {
			respondError(w, http.StatusInternalServerError, ErrCodeInternalError, "chain lookup failed")
			return
		}
		if chain == nil {
			respondError(w, http.StatusNotFound, ErrCodeNotFound, "unknown chain "+req.ChainID)
			return
		}

		snapshot, err := s.refresher.RefreshChain(r.Context(), chain, asOfDate)
		if err != nil {
			s.logger.Warn("universe refresh failed", zap.String("chain", chain.ID), zap.Error(err))
			status, code, message := mapServiceError(err)
			respondError(w, status, code, message)
			return
		}
		respondJSON(w, http.StatusOK, snapshot)
		return
	}

	outcomes, err := s.refresher.RefreshAllChains(r.Context(), asOfDate)
	if err != nil {
		respondError(w, http.StatusInternalServerError, ErrCodeInternalError, "universe refresh failed")
		return
	}

	results := make([]refreshResult, 0, len(outcomes))
	for _, o := range outcomes {
		results = append(results, toRefreshResult(o))
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"results": results})
}

// handleGetUniverse handles GET /api/chains/{chainId}/universe: the latest
// scan-eligible snapshot with its ranked items.
func (s *Server) handleGetUniverse(w http.ResponseWriter, r *http.Request) {
	chainID := mux.Vars(r)["chainId"]

	chain, err := s.chains.GetChainByID(r.Context(), chainID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, ErrCodeInternalError, "chain lookup failed")
		return
	}
	if chain == nil {
		respondError(w, http.StatusNotFound, ErrCodeNotFound, "unknown chain "+chainID)
		return
	}

	snapshot, err := s.universes.GetLatestScanEligibleSnapshot(r.Context(), chain.ID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, ErrCodeInternalError, "universe lookup failed")
		return
	}
	if snapshot == nil {
		respondError(w, http.StatusNotFound, ErrCodeNotFound, "no scan-eligible universe for chain "+chainID)
		return
	}

	items, err := s.universes.GetSnapshotItems(r.Context(), snapshot.ID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, ErrCodeInternalError, "universe items lookup failed")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"snapshot": snapshot, "items": items})
}
