package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/wallet-scanner/internal/models"
	"github.com/wallet-scanner/internal/protocols"
)

// handleRegisterProtocol handles POST /api/protocols. A malformed mapping is
// rejected outright; a well-formed mapping whose reads fall outside the
// allow-list is persisted with validation status invalid so the rejection is
// auditable. Only valid contracts are picked up by the daily snapshot.
func (s *Server) handleRegisterProtocol(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ChainID         string            `json:"chainId"`
		Label           string            `json:"label"`
		ContractAddress string            `json:"contractAddress"`
		Symbol          string            `json:"symbol"`
		Mapping         models.AbiMapping `json:"abiMapping"`
	}
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "invalid request body")
		return
	}
	if req.ChainID == "" || req.Label == "" || req.ContractAddress == "" {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "chainId, label and contractAddress are required")
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

	if err := protocols.ValidateSchema(&req.Mapping); err != nil {
		status, code, message := mapServiceError(err)
		respondError(w, status, code, message)
		return
	}

	// Persist as pending, then record the support-check outcome, so every
	// submission leaves an auditable row even when it is rejected.
	contract := &models.ProtocolContract{
		ID:               uuid.NewString(),
		ChainID:          chain.ID,
		Label:            req.Label,
		ContractAddress:  models.NormalizeAddress(chain.Family, req.ContractAddress),
		Symbol:           req.Symbol,
		Mapping:          req.Mapping,
		ValidationStatus: models.ValidationPending,
		IsActive:         true,
		CreatedAt:        time.Now().UTC(),
	}
	if err := s.protocols.CreateContract(r.Context(), contract); err != nil {
		s.logger.Error("create protocol contract failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, ErrCodeInternalError, "failed to register protocol contract")
		return
	}

	validation := models.ValidationValid
	var validationErr error
	if err := protocols.AssertSupported(&req.Mapping); err != nil {
		validation = models.ValidationInvalid
		validationErr = err
	}
	if err := s.protocols.UpdateValidationStatus(r.Context(), contract.ID, validation); err != nil {
		s.logger.Error("update validation status failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, ErrCodeInternalError, "failed to record validation outcome")
		return
	}
	contract.ValidationStatus = validation

	if validationErr != nil {
		respondJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
			"contract": contract,
			"error":    ErrorBody{Code: ErrCodeInvalidInput, Message: validationErr.Error()},
		})
		return
	}

	respondJSON(w, http.StatusCreated, contract)
}

// handleGetProtocol handles GET /api/protocols/{id}.
func (s *Server) handleGetProtocol(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	contract, err := s.protocols.GetContractByID(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, ErrCodeInternalError, "protocol lookup failed")
		return
	}
	if contract == nil {
		respondError(w, http.StatusNotFound, ErrCodeNotFound, "protocol contract not found: "+id)
		return
	}
	respondJSON(w, http.StatusOK, contract)
}
