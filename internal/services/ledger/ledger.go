package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/finledger/ledger-api/internal/domain/models"
	"github.com/finledger/ledger-api/internal/lib/logger/sl"
	"github.com/finledger/ledger-api/internal/lib/validation"
	"github.com/finledger/ledger-api/internal/storage"
	"github.com/shopspring/decimal"
)

// ErrTransactionNotFound covers both missing rows and rows owned by another user.
var ErrTransactionNotFound = errors.New("transaction not found")

// Amount column is NUMERIC(10, 2).
const (
	maxDigits     = 10
	decimalPlaces = 2
)

type Storage interface {
	SaveTransaction(ctx context.Context, tx models.Transaction) (int64, error)
	Transaction(ctx context.Context, id, userID int64) (models.Transaction, error)
	Transactions(ctx context.Context, userID int64) ([]models.Transaction, error)
	UpdateTransaction(ctx context.Context, tx models.Transaction) error
	DeleteTransaction(ctx context.Context, id, userID int64) error
}

type Service struct {
	log      *slog.Logger
	storage  Storage
	validate *validation.Validator
}

func New(log *slog.Logger, storage Storage, validate *validation.Validator) *Service {
	return &Service{
		log:      log,
		storage:  storage,
		validate: validate,
	}
}

// TransactionRequest is the payload of create and update. The type is never
// taken from the client: it follows the sign of Amount.
type TransactionRequest struct {
	Description *string          `json:"description" validate:"omitempty,max=255"`
	Amount      *decimal.Decimal `json:"amount" validate:"-"`
}

// Summary is the owner's history with its totals. Expense is the signed sum of
// negative amounts, so Balance == Income + Expense.
type Summary struct {
	Income  decimal.Decimal
	Expense decimal.Decimal
	Balance decimal.Decimal
	History []models.Transaction
}

func Summarize(txs []models.Transaction) Summary {
	sum := Summary{
		Income:  decimal.Zero,
		Expense: decimal.Zero,
		History: txs,
	}

	for _, tx := range txs {
		switch {
		case tx.Amount.IsPositive():
			sum.Income = sum.Income.Add(tx.Amount)
		case tx.Amount.IsNegative():
			sum.Expense = sum.Expense.Add(tx.Amount)
		}
	}
	sum.Balance = sum.Income.Add(sum.Expense)

	return sum
}

func (s *Service) Create(ctx context.Context, userID int64, req TransactionRequest) (models.Transaction, error) {
	const op = "ledger.Create"

	log := s.log.With(slog.String("op", op), slog.Int64("uid", userID))

	if err := s.check(req, false).Err(); err != nil {
		return models.Transaction{}, err
	}

	now := time.Now().UTC()
	tx := models.Transaction{
		UserID:      userID,
		Description: *req.Description,
		Amount:      *req.Amount,
		Type:        models.TypeOf(*req.Amount),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	id, err := s.storage.SaveTransaction(ctx, tx)
	if err != nil {
		log.Error("failed to save transaction", sl.Err(err))
		return models.Transaction{}, fmt.Errorf("%s: %w", op, err)
	}
	tx.ID = id

	log.Info("transaction created", slog.Int64("id", id), slog.String("type", string(tx.Type)))

	return tx, nil
}

func (s *Service) History(ctx context.Context, userID int64) (Summary, error) {
	const op = "ledger.History"

	txs, err := s.storage.Transactions(ctx, userID)
	if err != nil {
		s.log.Error("failed to list transactions", slog.String("op", op), sl.Err(err))
		return Summary{}, fmt.Errorf("%s: %w", op, err)
	}

	return Summarize(txs), nil
}

func (s *Service) Get(ctx context.Context, userID, id int64) (models.Transaction, error) {
	const op = "ledger.Get"

	tx, err := s.storage.Transaction(ctx, id, userID)
	if err != nil {
		if errors.Is(err, storage.ErrTransactionNotFound) {
			return models.Transaction{}, ErrTransactionNotFound
		}
		s.log.Error("failed to get transaction", slog.String("op", op), sl.Err(err))
		return models.Transaction{}, fmt.Errorf("%s: %w", op, err)
	}

	return tx, nil
}

// Update changes description and/or amount. With partial unset both are required.
func (s *Service) Update(ctx context.Context, userID, id int64, req TransactionRequest, partial bool) (models.Transaction, error) {
	const op = "ledger.Update"

	log := s.log.With(slog.String("op", op), slog.Int64("uid", userID), slog.Int64("id", id))

	tx, err := s.Get(ctx, userID, id)
	if err != nil {
		return models.Transaction{}, err
	}

	if err := s.check(req, partial).Err(); err != nil {
		return models.Transaction{}, err
	}

	if req.Description != nil {
		tx.Description = *req.Description
	}
	if req.Amount != nil {
		tx.Amount = *req.Amount
	}
	tx.Type = models.TypeOf(tx.Amount)
	tx.UpdatedAt = time.Now().UTC()

	if err := s.storage.UpdateTransaction(ctx, tx); err != nil {
		if errors.Is(err, storage.ErrTransactionNotFound) {
			return models.Transaction{}, ErrTransactionNotFound
		}
		log.Error("failed to update transaction", sl.Err(err))
		return models.Transaction{}, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("transaction updated", slog.String("type", string(tx.Type)))

	return tx, nil
}

func (s *Service) Delete(ctx context.Context, userID, id int64) error {
	const op = "ledger.Delete"

	log := s.log.With(slog.String("op", op), slog.Int64("uid", userID), slog.Int64("id", id))

	if err := s.storage.DeleteTransaction(ctx, id, userID); err != nil {
		if errors.Is(err, storage.ErrTransactionNotFound) {
			return ErrTransactionNotFound
		}
		log.Error("failed to delete transaction", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("transaction deleted")

	return nil
}

func (s *Service) check(req TransactionRequest, partial bool) validation.Errors {
	errs := s.validate.Struct(req)

	if (req.Description == nil && !partial) || (req.Description != nil && *req.Description == "") {
		errs.Add("description", "This field is required.")
	}

	if req.Amount == nil {
		if !partial {
			errs.Add("amount", "This field is required.")
		}
		return errs
	}

	if msg := checkPrecision(*req.Amount); msg != "" {
		errs.Add("amount", msg)
	}

	return errs
}

// checkPrecision enforces at most maxDigits digits of which at most decimalPlaces
// are after the point, counting the digits as written by the client.
// It reports the first violated limit.
func checkPrecision(amount decimal.Decimal) string {
	digits := len(new(big.Int).Abs(amount.Coefficient()).String())
	exp := int(amount.Exponent())

	var total, places int
	switch {
	case exp >= 0:
		total = digits + exp
	case digits > -exp:
		total, places = digits, -exp
	default:
		total, places = -exp, -exp
	}

	switch {
	case total > maxDigits:
		return fmt.Sprintf("Ensure that there are no more than %d digits in total.", maxDigits)
	case places > decimalPlaces:
		return fmt.Sprintf("Ensure that there are no more than %d decimal places.", decimalPlaces)
	case total-places > maxDigits-decimalPlaces:
		return fmt.Sprintf("Ensure that there are no more than %d digits before the decimal point.", maxDigits-decimalPlaces)
	}

	return ""
}
