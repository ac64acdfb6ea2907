package sqlite

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/finledger/ledger-api/internal/domain/models"
	"github.com/finledger/ledger-api/internal/storage"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type StorageTestSuite struct {
	suite.Suite
	storage *Storage
	ctx     context.Context
}

func (suite *StorageTestSuite) SetupTest() {
	s, err := New(":memory:")
	require.NoError(suite.T(), err, "failed to open test database")
	suite.storage = s
	suite.ctx = context.Background()
}

func (suite *StorageTestSuite) TearDownTest() {
	if suite.storage != nil {
		suite.storage.Stop()
	}
}

func (suite *StorageTestSuite) saveUser(username string) models.User {
	user := models.User{
		Username:     username,
		Email:        username + "@example.com",
		FirstName:    "First",
		LastName:     "Last",
		PasswordHash: []byte("hash"),
	}
	id, err := suite.storage.SaveUser(suite.ctx, user)
	require.NoError(suite.T(), err)
	user.ID = id
	return user
}

func (suite *StorageTestSuite) saveTransaction(userID int64, description, amount string, createdAt time.Time) models.Transaction {
	value := decimal.RequireFromString(amount)
	tx := models.Transaction{
		UserID:      userID,
		Description: description,
		Amount:      value,
		Type:        models.TypeOf(value),
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
	}
	id, err := suite.storage.SaveTransaction(suite.ctx, tx)
	require.NoError(suite.T(), err)
	tx.ID = id
	return tx
}

func (suite *StorageTestSuite) TestSaveAndGetUser() {
	saved := suite.saveUser("alice")

	byName, err := suite.storage.User(suite.ctx, "alice")
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), saved, byName)

	byID, err := suite.storage.UserByID(suite.ctx, saved.ID)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), saved, byID)
}

func (suite *StorageTestSuite) TestUserNotFound() {
	_, err := suite.storage.User(suite.ctx, "ghost")
	assert.ErrorIs(suite.T(), err, storage.ErrUserNotFound)

	_, err = suite.storage.UserByID(suite.ctx, 42)
	assert.ErrorIs(suite.T(), err, storage.ErrUserNotFound)
}

func (suite *StorageTestSuite) TestDuplicateUser() {
	alice := suite.saveUser("alice")

	_, err := suite.storage.SaveUser(suite.ctx, models.User{Username: "alice", Email: "other@example.com", PasswordHash: []byte("x")})
	assert.ErrorIs(suite.T(), err, storage.ErrUsernameExists)

	_, err = suite.storage.SaveUser(suite.ctx, models.User{Username: "bob", Email: alice.Email, PasswordHash: []byte("x")})
	assert.ErrorIs(suite.T(), err, storage.ErrEmailExists)
}

func (suite *StorageTestSuite) TestUpdateUser() {
	alice := suite.saveUser("alice")
	bob := suite.saveUser("bob")

	alice.FirstName = "Alice"
	require.NoError(suite.T(), suite.storage.UpdateUser(suite.ctx, alice))

	got, err := suite.storage.UserByID(suite.ctx, alice.ID)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), "Alice", got.FirstName)

	alice.Username = bob.Username
	assert.ErrorIs(suite.T(), suite.storage.UpdateUser(suite.ctx, alice), storage.ErrUsernameExists)

	assert.ErrorIs(suite.T(), suite.storage.UpdateUser(suite.ctx, models.User{ID: 999, Username: "x", Email: "x@example.com"}), storage.ErrUserNotFound)
}

func (suite *StorageTestSuite) TestUpdatePassword() {
	alice := suite.saveUser("alice")

	require.NoError(suite.T(), suite.storage.UpdatePassword(suite.ctx, alice.ID, []byte("new-hash")))

	got, err := suite.storage.UserByID(suite.ctx, alice.ID)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), []byte("new-hash"), got.PasswordHash)
}

func (suite *StorageTestSuite) TestTransactionsNewestFirst() {
	alice := suite.saveUser("alice")
	bob := suite.saveUser("bob")
	base := time.Now().UTC().Truncate(time.Second)

	suite.saveTransaction(alice.ID, "salary", "1000.00", base)
	suite.saveTransaction(alice.ID, "rent", "-500.00", base.Add(time.Minute))
	suite.saveTransaction(alice.ID, "coffee", "-3.50", base.Add(2*time.Minute))
	suite.saveTransaction(bob.ID, "bonus", "50.00", base.Add(3*time.Minute))

	txs, err := suite.storage.Transactions(suite.ctx, alice.ID)
	require.NoError(suite.T(), err)
	require.Len(suite.T(), txs, 3)

	assert.Equal(suite.T(), "coffee", txs[0].Description)
	assert.Equal(suite.T(), "rent", txs[1].Description)
	assert.Equal(suite.T(), "salary", txs[2].Description)
	assert.True(suite.T(), decimal.RequireFromString("-3.50").Equal(txs[0].Amount))
	assert.Equal(suite.T(), models.TypeExpense, txs[0].Type)
	assert.Equal(suite.T(), models.TypeIncome, txs[2].Type)
	assert.True(suite.T(), base.Equal(txs[2].CreatedAt), "created_at round trip")
}

func (suite *StorageTestSuite) TestEmptyTransactions() {
	alice := suite.saveUser("alice")

	txs, err := suite.storage.Transactions(suite.ctx, alice.ID)
	require.NoError(suite.T(), err)
	assert.NotNil(suite.T(), txs)
	assert.Empty(suite.T(), txs)
}

func (suite *StorageTestSuite) TestTransactionScopedByOwner() {
	alice := suite.saveUser("alice")
	bob := suite.saveUser("bob")
	tx := suite.saveTransaction(alice.ID, "salary", "1000.00", time.Now().UTC())

	got, err := suite.storage.Transaction(suite.ctx, tx.ID, alice.ID)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), "salary", got.Description)

	_, err = suite.storage.Transaction(suite.ctx, tx.ID, bob.ID)
	assert.ErrorIs(suite.T(), err, storage.ErrTransactionNotFound)

	foreign := tx
	foreign.UserID = bob.ID
	assert.ErrorIs(suite.T(), suite.storage.UpdateTransaction(suite.ctx, foreign), storage.ErrTransactionNotFound)
	assert.ErrorIs(suite.T(), suite.storage.DeleteTransaction(suite.ctx, tx.ID, bob.ID), storage.ErrTransactionNotFound)

	_, err = suite.storage.Transaction(suite.ctx, tx.ID, alice.ID)
	assert.NoError(suite.T(), err, "foreign delete must not remove the row")
}

func (suite *StorageTestSuite) TestUpdateAndDeleteTransaction() {
	alice := suite.saveUser("alice")
	tx := suite.saveTransaction(alice.ID, "salary", "1000.00", time.Now().UTC())

	tx.Amount = decimal.RequireFromString("-20.25")
	tx.Type = models.TypeExpense
	tx.Description = "refund"
	tx.UpdatedAt = tx.UpdatedAt.Add(time.Hour)
	require.NoError(suite.T(), suite.storage.UpdateTransaction(suite.ctx, tx))

	got, err := suite.storage.Transaction(suite.ctx, tx.ID, alice.ID)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), "refund", got.Description)
	assert.Equal(suite.T(), models.TypeExpense, got.Type)
	assert.Equal(suite.T(), "-20.25", got.Amount.StringFixed(2))

	require.NoError(suite.T(), suite.storage.DeleteTransaction(suite.ctx, tx.ID, alice.ID))

	_, err = suite.storage.Transaction(suite.ctx, tx.ID, alice.ID)
	assert.ErrorIs(suite.T(), err, storage.ErrTransactionNotFound)
}

func (suite *StorageTestSuite) TestRevokeToken() {
	alice := suite.saveUser("alice")
	token := models.RevokedToken{ID: "jti-1", UserID: alice.ID, ExpiresAt: time.Now().Add(time.Hour)}

	revoked, err := suite.storage.IsTokenRevoked(suite.ctx, token.ID)
	require.NoError(suite.T(), err)
	assert.False(suite.T(), revoked)

	require.NoError(suite.T(), suite.storage.RevokeToken(suite.ctx, token))

	revoked, err = suite.storage.IsTokenRevoked(suite.ctx, token.ID)
	require.NoError(suite.T(), err)
	assert.True(suite.T(), revoked)

	assert.ErrorIs(suite.T(), suite.storage.RevokeToken(suite.ctx, token), storage.ErrTokenRevoked)

	other, err := suite.storage.IsTokenRevoked(suite.ctx, "jti-2")
	require.NoError(suite.T(), err)
	assert.False(suite.T(), other)
}

func (suite *StorageTestSuite) TestConcurrentRevokeSameToken() {
	alice := suite.saveUser("alice")
	token := models.RevokedToken{ID: "jti-race", UserID: alice.ID, ExpiresAt: time.Now().Add(time.Hour)}

	const workers = 8
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = suite.storage.RevokeToken(suite.ctx, token)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(suite.T(), err, storage.ErrTokenRevoked)
	}
	assert.Equal(suite.T(), 1, succeeded)
}

func (suite *StorageTestSuite) TestCascadeDeleteWithUser() {
	alice := suite.saveUser("alice")
	suite.saveTransaction(alice.ID, "salary", "1000.00", time.Now().UTC())

	_, err := suite.storage.db.ExecContext(suite.ctx, "DELETE FROM users WHERE id = ?", alice.ID)
	require.NoError(suite.T(), err)

	var n int
	require.NoError(suite.T(), suite.storage.db.QueryRowContext(suite.ctx, "SELECT COUNT(*) FROM transactions").Scan(&n))
	assert.Equal(suite.T(), 0, n)
}

func TestStorageTestSuite(t *testing.T) {
	suite.Run(t, new(StorageTestSuite))
}
