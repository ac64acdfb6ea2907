package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/finledger/ledger-api/internal/domain/models"
	"github.com/finledger/ledger-api/internal/storage"
	"github.com/lib/pq"
)

type Storage struct {
	db *sql.DB
}

func New(dbUrl string) (*Storage, error) {
	db, err := sql.Open("postgres", dbUrl)
	if err != nil {
		return nil, fmt.Errorf("database connection error %s", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect database error %s", err)
	}

	return &Storage{db: db}, nil
}

func (s *Storage) Stop() error {
	return s.db.Close()
}

func (s *Storage) SaveUser(ctx context.Context, user models.User) (int64, error) {
	const op = "storage.postgres.SaveUser"

	var id int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO users (username, email, first_name, last_name, password_hash)
		VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		user.Username, user.Email, user.FirstName, user.LastName, string(user.PasswordHash),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, uniqueViolation(err))
	}

	return id, nil
}

func (s *Storage) User(ctx context.Context, username string) (models.User, error) {
	const op = "storage.postgres.User"

	row := s.db.QueryRowContext(ctx,
		"SELECT id, username, email, first_name, last_name, password_hash FROM users WHERE username = $1",
		username,
	)

	user, err := scanUser(row)
	if err != nil {
		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

func (s *Storage) UserByID(ctx context.Context, id int64) (models.User, error) {
	const op = "storage.postgres.UserByID"

	row := s.db.QueryRowContext(ctx,
		"SELECT id, username, email, first_name, last_name, password_hash FROM users WHERE id = $1",
		id,
	)

	user, err := scanUser(row)
	if err != nil {
		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

func (s *Storage) UpdateUser(ctx context.Context, user models.User) error {
	const op = "storage.postgres.UpdateUser"

	res, err := s.db.ExecContext(ctx,
		"UPDATE users SET username = $1, email = $2, first_name = $3, last_name = $4 WHERE id = $5",
		user.Username, user.Email, user.FirstName, user.LastName, user.ID,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, uniqueViolation(err))
	}

	return affected(op, res, storage.ErrUserNotFound)
}

func (s *Storage) UpdatePassword(ctx context.Context, userID int64, passHash []byte) error {
	const op = "storage.postgres.UpdatePassword"

	res, err := s.db.ExecContext(ctx, "UPDATE users SET password_hash = $1 WHERE id = $2", string(passHash), userID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return affected(op, res, storage.ErrUserNotFound)
}

func (s *Storage) SaveTransaction(ctx context.Context, tx models.Transaction) (int64, error) {
	const op = "storage.postgres.SaveTransaction"

	var id int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO transactions (user_id, description, amount, type, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		tx.UserID, tx.Description, tx.Amount, string(tx.Type), tx.CreatedAt, tx.UpdatedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return id, nil
}

// Transaction returns the transaction only if it belongs to userID.
func (s *Storage) Transaction(ctx context.Context, id, userID int64) (models.Transaction, error) {
	const op = "storage.postgres.Transaction"

	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, description, amount, type, created_at, updated_at
		FROM transactions WHERE id = $1 AND user_id = $2`,
		id, userID,
	)

	tx, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Transaction{}, fmt.Errorf("%s: %w", op, storage.ErrTransactionNotFound)
	}
	if err != nil {
		return models.Transaction{}, fmt.Errorf("%s: %w", op, err)
	}

	return tx, nil
}

// Transactions lists the user's transactions, newest first.
func (s *Storage) Transactions(ctx context.Context, userID int64) ([]models.Transaction, error) {
	const op = "storage.postgres.Transactions"

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, description, amount, type, created_at, updated_at
		FROM transactions WHERE user_id = $1 ORDER BY created_at DESC, id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	txs := make([]models.Transaction, 0)
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		txs = append(txs, tx)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return txs, nil
}

func (s *Storage) UpdateTransaction(ctx context.Context, tx models.Transaction) error {
	const op = "storage.postgres.UpdateTransaction"

	res, err := s.db.ExecContext(ctx,
		`UPDATE transactions SET description = $1, amount = $2, type = $3, updated_at = $4
		WHERE id = $5 AND user_id = $6`,
		tx.Description, tx.Amount, string(tx.Type), tx.UpdatedAt, tx.ID, tx.UserID,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return affected(op, res, storage.ErrTransactionNotFound)
}

func (s *Storage) DeleteTransaction(ctx context.Context, id, userID int64) error {
	const op = "storage.postgres.DeleteTransaction"

	res, err := s.db.ExecContext(ctx, "DELETE FROM transactions WHERE id = $1 AND user_id = $2", id, userID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return affected(op, res, storage.ErrTransactionNotFound)
}

// RevokeToken blacklists a refresh token. Revoking the same token twice yields storage.ErrTokenRevoked.
func (s *Storage) RevokeToken(ctx context.Context, token models.RevokedToken) error {
	const op = "storage.postgres.RevokeToken"

	res, err := s.db.ExecContext(ctx,
		"INSERT INTO token_blacklist (jti, user_id, expires_at) VALUES ($1, $2, $3) ON CONFLICT (jti) DO NOTHING",
		token.ID, token.UserID, token.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return affected(op, res, storage.ErrTokenRevoked)
}

func (s *Storage) IsTokenRevoked(ctx context.Context, jti string) (bool, error) {
	const op = "storage.postgres.IsTokenRevoked"

	var revoked bool
	err := s.db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM token_blacklist WHERE jti = $1)", jti).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return revoked, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (models.User, error) {
	var user models.User
	var hash string

	err := row.Scan(&user.ID, &user.Username, &user.Email, &user.FirstName, &user.LastName, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, storage.ErrUserNotFound
	}
	if err != nil {
		return models.User{}, err
	}

	user.PasswordHash = []byte(hash)
	return user, nil
}

func scanTransaction(row scanner) (models.Transaction, error) {
	var tx models.Transaction
	var txType string

	if err := row.Scan(&tx.ID, &tx.UserID, &tx.Description, &tx.Amount, &txType, &tx.CreatedAt, &tx.UpdatedAt); err != nil {
		return models.Transaction{}, err
	}

	tx.Type = models.TransactionType(txType)
	return tx, nil
}

func affected(op string, res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, notFound)
	}
	return nil
}

func uniqueViolation(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code.Name() != "unique_violation" {
		return err
	}

	switch pqErr.Constraint {
	case "users_username_key":
		return storage.ErrUsernameExists
	case "users_email_key":
		return storage.ErrEmailExists
	}
	return err
}
