package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/wallet-scanner/internal/chains"
	"github.com/wallet-scanner/internal/models"
)

// handleRegisterWallet handles POST /api/wallets.
func (s *Server) handleRegisterWallet(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ChainID string `json:"chainId"`
		Address string `json:"address"`
		Label   string `json:"label"`
	}
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "invalid request body")
		return
	}
	if req.ChainID == "" || req.Address == "" {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "chainId and address are required")
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

	address := models.NormalizeAddress(chain.Family, req.Address)
	if err := validateAddress(chain.Family, address); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, err.Error())
		return
	}

	existing, err := s.wallets.GetWalletByChainAndAddress(r.Context(), chain.ID, address)
	if err != nil {
		respondError(w, http.StatusInternalServerError, ErrCodeInternalError, "wallet lookup failed")
		return
	}
	if existing != nil {
		respondError(w, http.StatusConflict, ErrCodeConflict, "wallet already registered: "+existing.ID)
		return
	}

	wallet := &models.Wallet{
		ID:        uuid.NewString(),
		ChainID:   chain.ID,
		Address:   address,
		Label:     req.Label,
		IsActive:  true,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.wallets.CreateWallet(r.Context(), wallet); err != nil {
		s.logger.Error("create wallet failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, ErrCodeInternalError, "failed to create wallet")
		return
	}

	respondJSON(w, http.StatusCreated, wallet)
}

// validateAddress performs a per-family syntactic check after normalization.
func validateAddress(family models.ChainFamily, address string) error {
	switch family {
	case models.FamilySolana:
		return chains.ValidateSolanaAddress(address)
	default:
		if !common.IsHexAddress(address) {
			return fmt.Errorf("%s is not a valid hex address", address)
		}
		return nil
	}
}

// handleListWallets handles GET /api/wallets.
func (s *Server) handleListWallets(w http.ResponseWriter, r *http.Request) {
	onlyActive := r.URL.Query().Get("all") != "true"
	wallets, err := s.wallets.ListWallets(r.Context(), onlyActive)
	if err != nil {
		respondError(w, http.StatusInternalServerError, ErrCodeInternalError, "failed to list wallets")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"wallets": wallets})
}

// handleGetWallet handles GET /api/wallets/{id}.
func (s *Server) handleGetWallet(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	wallet, err := s.wallets.GetWalletByID(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, ErrCodeInternalError, "wallet lookup failed")
		return
	}
	if wallet == nil {
		respondError(w, http.StatusNotFound, ErrCodeNotFound, "wallet not found: "+id)
		return
	}
	respondJSON(w, http.StatusOK, wallet)
}

// handleTriggerScan handles POST /api/wallets/{id}/scans. The scan runs
// synchronously; the finished run is returned with its final status.
func (s *Server) handleTriggerScan(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	run, err := s.scanner.RunScan(r.Context(), id)
	if err != nil {
		if run != nil {
			// The run exists but finished failed; return it alongside the error.
			respondJSON(w, http.StatusBadGateway, map[string]interface{}{
				"run":   run,
				"error": ErrorBody{Code: ErrCodeServiceUnavailable, Message: err.Error()},
			})
			return
		}
		status, code, message := mapServiceError(err)
		respondError(w, status, code, message)
		return
	}

	respondJSON(w, http.StatusCreated, run)
}

// handleGetScan handles GET /api/scans/{id}.
func (s *Server) handleGetScan(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	run, err := s.scans.GetScanRun(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, ErrCodeInternalError, "scan lookup failed")
		return
	}
	if run == nil {
		respondError(w, http.StatusNotFound, ErrCodeNotFound, "scan not found: "+id)
		return
	}

	items, err := s.scans.GetScanItems(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, ErrCodeInternalError, "scan items lookup failed")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"run": run, "items": items})
}

// handleBalanceHistory handles GET /api/wallets/{id}/history. The series
// comes from the ClickHouse history store; contract is required, the window
// defaults to the last 30 days.
func (s *Server) handleBalanceHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		respondError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "history store not configured")
		return
	}

	id := mux.Vars(r)["id"]
	contract := r.URL.Query().Get("contract")
	if contract == "" {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "contract query parameter is required")
		return
	}

	now := time.Now().UTC()
	from, err := parseTimeParam(r, "from", now.AddDate(0, 0, -30))
	if err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "from must be RFC3339")
		return
	}
	to, err := parseTimeParam(r, "to", now)
	if err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "to must be RFC3339")
		return
	}

	points, err := s.history.GetBalanceHistory(r.Context(), id, contract, from, to)
	if err != nil {
		s.logger.Error("balance history query failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, ErrCodeInternalError, "history query failed")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"points": points})
}

func parseTimeParam(r *http.Request, name string, fallback time.Time) (time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	return time.Parse(time.RFC3339, raw)
}
