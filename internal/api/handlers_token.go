package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/wallet-scanner/internal/models"
)

const maxTokenDecimals = 36

// handleRegisterToken handles POST /api/tokens. Manual registration; the
// upsert keys on (chainId, contractOrMint) so re-registering refines
// metadata instead of duplicating the row.
func (s *Server) handleRegisterToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ChainID        string  `json:"chainId"`
		ContractOrMint string  `json:"contractOrMint"`
		Symbol         *string `json:"symbol"`
		Name           *string `json:"name"`
		Decimals       *int    `json:"decimals"`
	}
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "invalid request body")
		return
	}
	if req.ChainID == "" || req.ContractOrMint == "" {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "chainId and contractOrMint are required")
		return
	}
	if req.Decimals != nil && (*req.Decimals < 0 || *req.Decimals > maxTokenDecimals) {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput,
			fmt.Sprintf("decimals must be between 0 and %d", maxTokenDecimals))
		return
	}

	chain, err := s.chains.GetChainByID(r.Context(), req.ChainID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, ErrCodeInternalError, "chain lookup failed")
		return
	}
	if chain == nil {
		respondError(w, http.StatusNotFound, ErrCodeNotFound, "unknown chain "+req.ChainID)
		return
	}

	metadataSource := models.MetadataAuto
	if req.Symbol != nil || req.Name != nil || req.Decimals != nil {
		metadataSource = models.MetadataManualOverride
	}

	now := time.Now().UTC()
	token := &models.TrackedToken{
		ID:             uuid.NewString(),
		ChainID:        chain.ID,
		ContractOrMint: models.NormalizeAddress(chain.Family, req.ContractOrMint),
		Symbol:         req.Symbol,
		Name:           req.Name,
		Decimals:       req.Decimals,
		MetadataSource: metadataSource,
		TrackingSource: models.TrackingManual,
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.tokens.UpsertTrackedToken(r.Context(), token); err != nil {
		s.logger.Error("upsert tracked token failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, ErrCodeInternalError, "failed to register token")
		return
	}

	respondJSON(w, http.StatusCreated, token)
}

// handleListChains handles GET /api/chains.
func (s *Server) handleListChains(w http.ResponseWriter, r *http.Request) {
	chainList, err := s.chains.ListChains(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, ErrCodeInternalError, "failed to list chains")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"chains": chainList})
}

// handleListTokens handles GET /api/chains/{chainId}/tokens.
func (s *Server) handleListTokens(w http.ResponseWriter, r *http.Request) {
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

	onlyActive := r.URL.Query().Get("all") != "true"
	tokens, err := s.tokens.ListTrackedTokens(r.Context(), chain.ID, onlyActive)
	if err != nil {
		respondError(w, http.StatusInternalServerError, ErrCodeInternalError, "failed to list tokens")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"tokens": tokens})
}
