// Package sqlite is the embedded storage used for local runs and tests.
// It migrates its own schema on open.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/finledger/ledger-api/internal/domain/models"
	"github.com/finledger/ledger-api/internal/storage"
	"github.com/finledger/ledger-api/migrations"
	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	sqlitedrv "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

type Storage struct {
	db *sql.DB
}

// New opens the database at path (":memory:" is allowed) and applies pending migrations.
func New(path string) (*Storage, error) {
	const op = "storage.sqlite.New"

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	// One connection: sqlite serializes writers anyway and ":memory:" is per connection.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := migrateUp(db); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Storage{db: db}, nil
}

func migrateUp(db *sql.DB) error {
	src, err := iofs.New(migrations.SQLite, "sqlite")
	if err != nil {
		return err
	}

	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return err
	}

	// m.Close would close db as well, so m is left for the GC.
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return err
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}

	return nil
}

func (s *Storage) Stop() error {
	return s.db.Close()
}

func (s *Storage) SaveUser(ctx context.Context, user models.User) (int64, error) {
	const op = "storage.sqlite.SaveUser"

	res, err := s.db.ExecContext(ctx,
		"INSERT INTO users (username, email, first_name, last_name, password_hash) VALUES (?, ?, ?, ?, ?)",
		user.Username, user.Email, user.FirstName, user.LastName, user.PasswordHash,
	)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, uniqueViolation(err))
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return id, nil
}

func (s *Storage) User(ctx context.Context, username string) (models.User, error) {
	const op = "storage.sqlite.User"

	row := s.db.QueryRowContext(ctx,
		"SELECT id, username, email, first_name, last_name, password_hash FROM users WHERE username = ?",
		username,
	)

	user, err := scanUser(row)
	if err != nil {
		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

func (s *Storage) UserByID(ctx context.Context, id int64) (models.User, error) {
	const op = "storage.sqlite.UserByID"

	row := s.db.QueryRowContext(ctx,
		"SELECT id, username, email, first_name, last_name, password_hash FROM users WHERE id = ?",
		id,
	)

	user, err := scanUser(row)
	if err != nil {
		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

func (s *Storage) UpdateUser(ctx context.Context, user models.User) error {
	const op = "storage.sqlite.UpdateUser"

	res, err := s.db.ExecContext(ctx,
		"UPDATE users SET username = ?, email = ?, first_name = ?, last_name = ? WHERE id = ?",
		user.Username, user.Email, user.FirstName, user.LastName, user.ID,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, uniqueViolation(err))
	}

	return affected(op, res, storage.ErrUserNotFound)
}

func (s *Storage) UpdatePassword(ctx context.Context, userID int64, passHash []byte) error {
	const op = "storage.sqlite.UpdatePassword"

	res, err := s.db.ExecContext(ctx, "UPDATE users SET password_hash = ? WHERE id = ?", passHash, userID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return affected(op, res, storage.ErrUserNotFound)
}

func (s *Storage) SaveTransaction(ctx context.Context, tx models.Transaction) (int64, error) {
	const op = "storage.sqlite.SaveTransaction"

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO transactions (user_id, description, amount, type, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		tx.UserID, tx.Description, tx.Amount.StringFixed(2), string(tx.Type), tx.CreatedAt, tx.UpdatedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return id, nil
}

func (s *Storage) Transaction(ctx context.Context, id, userID int64) (models.Transaction, error) {
	const op = "storage.sqlite.Transaction"

	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, description, amount, type, created_at, updated_at
		FROM transactions WHERE id = ? AND user_id = ?`,
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

func (s *Storage) Transactions(ctx context.Context, userID int64) ([]models.Transaction, error) {
	const op = "storage.sqlite.Transactions"

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, description, amount, type, created_at, updated_at
		FROM transactions WHERE user_id = ? ORDER BY created_at DESC, id DESC`,
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
	const op = "storage.sqlite.UpdateTransaction"

	res, err := s.db.ExecContext(ctx,
		"UPDATE transactions SET description = ?, amount = ?, type = ?, updated_at = ? WHERE id = ? AND user_id = ?",
		tx.Description, tx.Amount.StringFixed(2), string(tx.Type), tx.UpdatedAt, tx.ID, tx.UserID,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return affected(op, res, storage.ErrTransactionNotFound)
}

func (s *Storage) DeleteTransaction(ctx context.Context, id, userID int64) error {
	const op = "storage.sqlite.DeleteTransaction"

	res, err := s.db.ExecContext(ctx, "DELETE FROM transactions WHERE id = ? AND user_id = ?", id, userID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return affected(op, res, storage.ErrTransactionNotFound)
}

func (s *Storage) RevokeToken(ctx context.Context, token models.RevokedToken) error {
	const op = "storage.sqlite.RevokeToken"

	res, err := s.db.ExecContext(ctx,
		"INSERT INTO token_blacklist (jti, user_id, expires_at) VALUES (?, ?, ?) ON CONFLICT (jti) DO NOTHING",
		token.ID, token.UserID, token.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return affected(op, res, storage.ErrTokenRevoked)
}

func (s *Storage) IsTokenRevoked(ctx context.Context, jti string) (bool, error) {
	const op = "storage.sqlite.IsTokenRevoked"

	var revoked bool
	err := s.db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM token_blacklist WHERE jti = ?)", jti).Scan(&revoked)
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

	err := row.Scan(&user.ID, &user.Username, &user.Email, &user.FirstName, &user.LastName, &user.PasswordHash)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, storage.ErrUserNotFound
	}
	if err != nil {
		return models.User{}, err
	}

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
	var sqliteErr *sqlitedrv.Error
	if !errors.As(err, &sqliteErr) || sqliteErr.Code() != sqlite3.SQLITE_CONSTRAINT_UNIQUE {
		return err
	}

	msg := sqliteErr.Error()
	switch {
	case strings.Contains(msg, "users.username"):
		return storage.ErrUsernameExists
	case strings.Contains(msg, "users.email"):
		return storage.ErrEmailExists
	}
	return err
}
