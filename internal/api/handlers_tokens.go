package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	apperrors "github.com/token-ledger/internal/errors"
	"github.com/token-ledger/internal/models"
	"github.com/token-ledger/internal/storage"
	"github.com/token-ledger/internal/types"
)

const (
	defaultVolumeDays = 7
	maxVolumeDays     = 90
)

// addressVar reads and normalizes the {address} path variable
func addressVar(r *http.Request) (string, error) {
	raw := mux.Vars(r)["address"]
	if !types.IsValidAddress(raw) {
		return "", apperrors.NewInvalidAddressError(raw)
	}
	return types.NormalizeAddress(raw), nil
}

// parsePage reads limit and offset. Unparseable values fall back to defaults.
func parsePage(r *http.Request) storage.Page {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	return storage.Page{Limit: limit, Offset: offset}.Normalize()
}

// requireToken loads the token or writes the error response
func (s *Server) requireToken(w http.ResponseWriter, r *http.Request) (*models.Token, bool) {
	address, err := addressVar(r)
	if err != nil {
		respondCategorized(w, r, err)
		return nil, false
	}
	token, err := s.ledger.GetToken(r.Context(), address)
	if err != nil {
		respondCategorized(w, r, apperrors.NewDatabaseError("get token", err))
		return nil, false
	}
	if token == nil {
		respondCategorized(w, r, apperrors.NewNotFoundError("token", address))
		return nil, false
	}
	return token, true
}

// handleListTokens handles GET /api/tokens
func (s *Server) handleListTokens(w http.ResponseWriter, r *http.Request) {
	page := parsePage(r)
	tokens, err := s.ledger.ListTokens(r.Context(), page)
	if err != nil {
		respondCategorized(w, r, apperrors.NewDatabaseError("list tokens", err))
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"tokens": tokens,
		"limit":  page.Limit,
		"offset": page.Offset,
	})
}

// handleGetToken handles GET /api/tokens/{address}
func (s *Server) handleGetToken(w http.ResponseWriter, r *http.Request) {
	token, ok := s.requireToken(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, token)
}

// handleListTransfers handles GET /api/tokens/{address}/transfers
func (s *Server) handleListTransfers(w http.ResponseWriter, r *http.Request) {
	token, ok := s.requireToken(w, r)
	if !ok {
		return
	}
	page := parsePage(r)
	transfers, err := s.ledger.ListTransfers(r.Context(), token.Address, page)
	if err != nil {
		respondCategorized(w, r, apperrors.NewDatabaseError("list transfers", err))
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"token":     token.Address,
		"transfers": transfers,
		"limit":     page.Limit,
		"offset":    page.Offset,
	})
}

// handleListHolders handles GET /api/tokens/{address}/holders
func (s *Server) handleListHolders(w http.ResponseWriter, r *http.Request) {
	token, ok := s.requireToken(w, r)
	if !ok {
		return
	}
	page := parsePage(r)
	holders, err := s.ledger.ListHolders(r.Context(), token.Address, page)
	if err != nil {
		respondCategorized(w, r, apperrors.NewDatabaseError("list holders", err))
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"token":              token.Address,
		"currentHolderCount": token.CurrentHolderCount,
		"holders":            holders,
		"limit":              page.Limit,
		"offset":             page.Offset,
	})
}

// handleListPurchases handles GET /api/tokens/{address}/purchases
func (s *Server) handleListPurchases(w http.ResponseWriter, r *http.Request) {
	token, ok := s.requireToken(w, r)
	if !ok {
		return
	}
	page := parsePage(r)
	purchases, err := s.ledger.ListPurchases(r.Context(), token.Address, page)
	if err != nil {
		respondCategorized(w, r, apperrors.NewDatabaseError("list purchases", err))
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"token":     token.Address,
		"purchases": purchases,
		"limit":     page.Limit,
		"offset":    page.Offset,
	})
}

// handleGetVolume handles GET /api/tokens/{address}/volume?days=
func (s *Server) handleGetVolume(w http.ResponseWriter, r *http.Request) {
	if s.volume == nil {
		respondCategorized(w, r, apperrors.NewServiceUnavailableError("volume analytics"))
		return
	}
	token, ok := s.requireToken(w, r)
	if !ok {
		return
	}

	days := defaultVolumeDays
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxVolumeDays {
			respondCategorized(w, r, apperrors.NewInvalidParameterError("days", "must be between 1 and 90"))
			return
		}
		days = n
	}

	since := time.Now().UTC().Truncate(24*time.Hour).AddDate(0, 0, -(days - 1))
	points, err := s.volume.DailyVolume(r.Context(), token.Address, since)
	if err != nil {
		respondCategorized(w, r, apperrors.NewDatabaseError("daily volume", err))
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"token":  token.Address,
		"since":  since,
		"volume": points,
	})
}
