package ledger

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/finledger/ledger-api/internal/domain/models"
	"github.com/finledger/ledger-api/internal/lib/validation"
	"github.com/finledger/ledger-api/internal/storage/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService(t *testing.T) (*Service, int64, int64) {
	t.Helper()

	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Stop() })

	ctx := context.Background()
	alice, err := store.SaveUser(ctx, models.User{Username: "alice", Email: "alice@example.com", PasswordHash: []byte("x")})
	require.NoError(t, err)
	bob, err := store.SaveUser(ctx, models.User{Username: "bob", Email: "bob@example.com", PasswordHash: []byte("x")})
	require.NoError(t, err)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(log, store, validation.New()), alice, bob
}

func request(description, amount string) TransactionRequest {
	req := TransactionRequest{}
	if description != "" {
		req.Description = &description
	}
	if amount != "" {
		a := decimal.RequireFromString(amount)
		req.Amount = &a
	}
	return req
}

func TestCreateDerivesType(t *testing.T) {
	svc, alice, _ := newService(t)
	ctx := context.Background()

	salary, err := svc.Create(ctx, alice, request("salary", "1000.00"))
	require.NoError(t, err)
	assert.Equal(t, models.TypeIncome, salary.Type)
	assert.Equal(t, alice, salary.UserID)
	assert.NotZero(t, salary.ID)
	assert.False(t, salary.CreatedAt.IsZero())
	assert.Equal(t, salary.CreatedAt, salary.UpdatedAt)

	rent, err := svc.Create(ctx, alice, request("rent", "-500.00"))
	require.NoError(t, err)
	assert.Equal(t, models.TypeExpense, rent.Type)

	zero, err := svc.Create(ctx, alice, request("nothing", "0"))
	require.NoError(t, err)
	assert.Equal(t, models.TypeExpense, zero.Type)
}

func TestCreateValidation(t *testing.T) {
	svc, alice, _ := newService(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		req   TransactionRequest
		field string
		msg   string
	}{
		{"missing amount", request("salary", ""), "amount", "This field is required."},
		{"missing description", request("", "10"), "description", "This field is required."},
		{"too many places", request("coffee", "3.505"), "amount", "Ensure that there are no more than 2 decimal places."},
		{"too many digits", request("lottery", "12345678901"), "amount", "Ensure that there are no more than 10 digits in total."},
		{"too many whole digits", request("lottery", "123456789.0"), "amount", "Ensure that there are no more than 8 digits before the decimal point."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(ctx, alice, tt.req)

			var errs validation.Errors
			require.ErrorAs(t, err, &errs)
			assert.Equal(t, []string{tt.msg}, errs[tt.field])
		})
	}

	long := make([]byte, 256)
	for i := range long {
		long[i] = 'a'
	}
	_, err := svc.Create(ctx, alice, request(string(long), "1"))
	var errs validation.Errors
	require.ErrorAs(t, err, &errs)
	assert.Equal(t, []string{"Ensure this field has no more than 255 characters."}, errs["description"])

	sum, err := svc.History(ctx, alice)
	require.NoError(t, err)
	assert.Empty(t, sum.History, "invalid payloads must not be persisted")
}

func TestHistory(t *testing.T) {
	svc, alice, bob := newService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, alice, request("salary", "1000.00"))
	require.NoError(t, err)
	_, err = svc.Create(ctx, alice, request("rent", "-500.00"))
	require.NoError(t, err)
	_, err = svc.Create(ctx, bob, request("bonus", "99.99"))
	require.NoError(t, err)

	sum, err := svc.History(ctx, alice)
	require.NoError(t, err)

	assert.Equal(t, "1000.00", sum.Income.StringFixed(2))
	assert.Equal(t, "-500.00", sum.Expense.StringFixed(2))
	assert.Equal(t, "500.00", sum.Balance.StringFixed(2))
	require.Len(t, sum.History, 2)
	assert.Equal(t, "rent", sum.History[0].Description)
	assert.Equal(t, "salary", sum.History[1].Description)
}

func TestSummarize(t *testing.T) {
	amounts := []string{"10.10", "-0.10", "0", "2.20", "-7.35", "0.01"}
	txs := make([]models.Transaction, 0, len(amounts))
	for _, a := range amounts {
		txs = append(txs, models.Transaction{Amount: decimal.RequireFromString(a)})
	}

	sum := Summarize(txs)
	assert.True(t, decimal.RequireFromString("12.31").Equal(sum.Income))
	assert.True(t, decimal.RequireFromString("-7.45").Equal(sum.Expense))
	assert.True(t, sum.Income.Add(sum.Expense).Equal(sum.Balance))

	empty := Summarize(nil)
	assert.True(t, empty.Balance.IsZero())
}

func TestUpdateRederivesType(t *testing.T) {
	svc, alice, _ := newService(t)
	ctx := context.Background()

	tx, err := svc.Create(ctx, alice, request("salary", "1000.00"))
	require.NoError(t, err)

	updated, err := svc.Update(ctx, alice, tx.ID, request("", "-20.00"), true)
	require.NoError(t, err)
	assert.Equal(t, models.TypeExpense, updated.Type)
	assert.Equal(t, "salary", updated.Description)
	assert.True(t, tx.CreatedAt.Equal(updated.CreatedAt), "created_at must not change")

	got, err := svc.Get(ctx, alice, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TypeExpense, got.Type)
	assert.Equal(t, "-20.00", got.Amount.StringFixed(2))

	_, err = svc.Update(ctx, alice, tx.ID, request("only description", ""), false)
	var errs validation.Errors
	require.ErrorAs(t, err, &errs)
	assert.Contains(t, errs, "amount")
}

func TestForeignTransactionLooksMissing(t *testing.T) {
	svc, alice, bob := newService(t)
	ctx := context.Background()

	tx, err := svc.Create(ctx, alice, request("salary", "1000.00"))
	require.NoError(t, err)

	_, err = svc.Get(ctx, bob, tx.ID)
	assert.ErrorIs(t, err, ErrTransactionNotFound)
	_, err = svc.Update(ctx, bob, tx.ID, request("stolen", "1"), true)
	assert.ErrorIs(t, err, ErrTransactionNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, bob, tx.ID), ErrTransactionNotFound)

	_, err = svc.Get(ctx, alice, tx.ID+100)
	assert.ErrorIs(t, err, ErrTransactionNotFound)
}

func TestDelete(t *testing.T) {
	svc, alice, _ := newService(t)
	ctx := context.Background()

	tx, err := svc.Create(ctx, alice, request("salary", "1000.00"))
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, alice, tx.ID))

	_, err = svc.Get(ctx, alice, tx.ID)
	assert.ErrorIs(t, err, ErrTransactionNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, alice, tx.ID), ErrTransactionNotFound)
}
