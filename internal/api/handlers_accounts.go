package api

import (
	"net/http"

	apperrors "github.com/token-ledger/internal/errors"
	"github.com/token-ledger/internal/models"
)

// handleAccountBalances handles GET /api/accounts/{address}/balances
func (s *Server) handleAccountBalances(w http.ResponseWriter, r *http.Request) {
	account, err := addressVar(r)
	if err != nil {
		respondCategorized(w, r, err)
		return
	}

	balances, err := s.ledger.ListAccountBalances(r.Context(), account)
	if err != nil {
		respondCategorized(w, r, apperrors.NewDatabaseError("list balances", err))
		return
	}
	if balances == nil {
		balances = []*models.AccountBalance{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"account":  account,
		"balances": balances,
	})
}

// handleListFundraising handles GET /api/fundraising
func (s *Server) handleListFundraising(w http.ResponseWriter, r *http.Request) {
	page := parsePage(r)
	events, err := s.ledger.ListFundraising(r.Context(), page)
	if err != nil {
		respondCategorized(w, r, apperrors.NewDatabaseError("list fundraising", err))
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
		"limit":  page.Limit,
		"offset": page.Offset,
	})
}
