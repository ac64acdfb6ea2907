package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/finledger/ledger-api/internal/domain/models"
	"github.com/finledger/ledger-api/internal/lib/validation"
	"github.com/finledger/ledger-api/internal/services/ledger"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
)

// Amounts are rendered with exactly two decimal places, as stored.
const amountPlaces = 2

type TransactionResponse struct {
	ID           int64     `json:"id"`
	User         int64     `json:"user"`
	Description  string    `json:"description"`
	Amount       string    `json:"amount"`
	Type         string    `json:"type"`
	DateAdded    time.Time `json:"date_added"`
	DateModified time.Time `json:"date_modified"`
}

type HistoryResponse struct {
	Income  string                `json:"income"`
	Expense string                `json:"expense"`
	Balance string                `json:"balance"`
	History []TransactionResponse `json:"history"`
}

func newTransactionResponse(tx models.Transaction) TransactionResponse {
	return TransactionResponse{
		ID:           tx.ID,
		User:         tx.UserID,
		Description:  tx.Description,
		Amount:       tx.Amount.StringFixed(amountPlaces),
		Type:         string(tx.Type),
		DateAdded:    tx.CreatedAt,
		DateModified: tx.UpdatedAt,
	}
}

// transactionPayload keeps amount raw so a malformed number becomes a field error.
type transactionPayload struct {
	Description *string         `json:"description"`
	Amount      json.RawMessage `json:"amount"`
}

func (p transactionPayload) request() (ledger.TransactionRequest, error) {
	req := ledger.TransactionRequest{Description: p.Description}

	if len(p.Amount) == 0 || string(p.Amount) == "null" {
		return req, nil
	}

	var amount decimal.Decimal
	if err := amount.UnmarshalJSON(p.Amount); err != nil {
		return req, validation.Errors{"amount": {"A valid number is required."}}
	}
	req.Amount = &amount

	return req, nil
}

func (s *APIServer) decodeTransaction(r *http.Request) (ledger.TransactionRequest, error) {
	var payload transactionPayload
	if err := decode(r, &payload); err != nil {
		return ledger.TransactionRequest{}, err
	}
	return payload.request()
}

func transactionID(r *http.Request) int64 {
	// The route pattern only admits digits; overflow parses to 0, which matches no row.
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	return id
}

func (s *APIServer) createTransactionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := s.decodeTransaction(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		tx, err := s.ledger.Create(r.Context(), userID(r), req)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		s.writeEnvelope(w, http.StatusCreated, "Transaction created successfully", newTransactionResponse(tx))
	}
}

func (s *APIServer) historyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sum, err := s.ledger.History(r.Context(), userID(r))
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		history := make([]TransactionResponse, 0, len(sum.History))
		for _, tx := range sum.History {
			history = append(history, newTransactionResponse(tx))
		}

		s.writeEnvelope(w, http.StatusOK, "Transactions retrieved successfully", HistoryResponse{
			Income:  sum.Income.StringFixed(amountPlaces),
			Expense: sum.Expense.StringFixed(amountPlaces),
			Balance: sum.Balance.StringFixed(amountPlaces),
			History: history,
		})
	}
}

func (s *APIServer) transactionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tx, err := s.ledger.Get(r.Context(), userID(r), transactionID(r))
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		s.writeEnvelope(w, http.StatusOK, "Transaction retrieved successfully", newTransactionResponse(tx))
	}
}

func (s *APIServer) updateTransactionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := s.decodeTransaction(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		tx, err := s.ledger.Update(r.Context(), userID(r), transactionID(r), req, r.Method == http.MethodPatch)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		s.writeEnvelope(w, http.StatusOK, "Transaction updated successfully", newTransactionResponse(tx))
	}
}

func (s *APIServer) deleteTransactionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.ledger.Delete(r.Context(), userID(r), transactionID(r)); err != nil {
			s.writeError(w, r, err)
			return
		}

		s.writeEnvelope(w, http.StatusOK, "Transaction deleted successfully", nil)
	}
}
