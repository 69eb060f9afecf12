package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"subtrack/internal/domain/models"
	"subtrack/internal/storage"
)

type Storage struct {
	db *sql.DB
}

// New returns a new instance of the Storage. The schema is expected to be
// migrated already, see Migrate.
func New(storagePath string) (*Storage, error) {
	const op = "storage.sqlite.New"

	db, err := sql.Open("sqlite3", storagePath)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	// sqlite serializes writers anyway; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	return &Storage{db: db}, nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

const selectAccount = `SELECT id, email, name, pass_hash, currency, notify_email, notify_push,
       generation, refresh_digest, refresh_expires_at, version, created_at, updated_at
FROM accounts`

func (s *Storage) AccountByEmail(ctx context.Context, email string) (*models.Account, error) {
	const op = "storage.sqlite.AccountByEmail"

	return s.scanOne(op, s.db.QueryRowContext(ctx, selectAccount+" WHERE email = ?", email))
}

func (s *Storage) AccountByID(ctx context.Context, id int64) (*models.Account, error) {
	const op = "storage.sqlite.AccountByID"

	return s.scanOne(op, s.db.QueryRowContext(ctx, selectAccount+" WHERE id = ?", id))
}

func (s *Storage) AccountByRefreshDigest(ctx context.Context, digest string) (*models.Account, error) {
	const op = "storage.sqlite.AccountByRefreshDigest"

	if digest == "" {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrAccountNotFound)
	}

	return s.scanOne(op, s.db.QueryRowContext(ctx, selectAccount+" WHERE refresh_digest = ?", digest))
}

func (s *Storage) scanOne(op string, row *sql.Row) (*models.Account, error) {
	var (
		acc                 models.Account
		generation          int64
		digest              sql.NullString
		refreshExp          sql.NullInt64
		createdAt, updateAt int64
	)

	err := row.Scan(
		&acc.ID, &acc.Email, &acc.Name, &acc.PassHash,
		&acc.Preferences.Currency, &acc.Preferences.Notifications.Email, &acc.Preferences.Notifications.Push,
		&generation, &digest, &refreshExp, &acc.Version, &createdAt, &updateAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrAccountNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	acc.Generation = models.Generation(generation)
	acc.CreatedAt = time.Unix(0, createdAt).UTC()
	acc.UpdatedAt = time.Unix(0, updateAt).UTC()
	if digest.Valid && refreshExp.Valid {
		acc.SetRefresh(digest.String, time.Unix(0, refreshExp.Int64).UTC())
	}

	return &acc, nil
}

// SaveAccount inserts a new account (Version == 0) or updates the row only if
// its version still matches the loaded one.
func (s *Storage) SaveAccount(ctx context.Context, acc *models.Account) error {
	const op = "storage.sqlite.SaveAccount"

	now := time.Now().UTC()
	digest, refreshExp := refreshColumns(acc)
	prefs := acc.Preferences
	if prefs.Currency == "" {
		prefs.Currency = models.CurrencyUSD
	}

	if acc.Version == 0 {
		res, err := s.db.ExecContext(ctx,
			`INSERT INTO accounts (email, name, pass_hash, currency, notify_email, notify_push,
                      generation, refresh_digest, refresh_expires_at, version, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`,
			acc.Email, acc.Name, acc.PassHash,
			string(prefs.Currency), prefs.Notifications.Email, prefs.Notifications.Push,
			int64(acc.Generation), digest, refreshExp,
			now.UnixNano(), now.UnixNano(),
		)
		if err != nil {
			return fmt.Errorf("%s: %w", op, mapConstraint(err))
		}

		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}

		acc.ID = id
		acc.Version = 1
		acc.CreatedAt = now
		acc.UpdatedAt = now

		return nil
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE accounts
SET email = ?, name = ?, pass_hash = ?, currency = ?, notify_email = ?, notify_push = ?,
    generation = ?, refresh_digest = ?, refresh_expires_at = ?, version = version + 1, updated_at = ?
WHERE id = ? AND version = ?`,
		acc.Email, acc.Name, acc.PassHash,
		string(prefs.Currency), prefs.Notifications.Email, prefs.Notifications.Push,
		int64(acc.Generation), digest, refreshExp,
		now.UnixNano(), acc.ID, acc.Version,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, mapConstraint(err))
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrVersionConflict)
	}

	acc.Version++
	acc.UpdatedAt = now

	return nil
}

// DeleteStaleRefreshDigests drops refresh digests that expired before now.
func (s *Storage) DeleteStaleRefreshDigests(ctx context.Context, now time.Time) (int64, error) {
	const op = "storage.sqlite.DeleteStaleRefreshDigests"

	res, err := s.db.ExecContext(ctx,
		`UPDATE accounts
SET refresh_digest = NULL, refresh_expires_at = NULL, version = version + 1
WHERE refresh_expires_at IS NOT NULL AND refresh_expires_at <= ?`,
		now.UnixNano(),
	)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return res.RowsAffected()
}

func refreshColumns(acc *models.Account) (sql.NullString, sql.NullInt64) {
	if !acc.HasRefresh() {
		return sql.NullString{}, sql.NullInt64{}
	}
	return sql.NullString{String: acc.RefreshDigest, Valid: true},
		sql.NullInt64{Int64: acc.RefreshExpiresAt.UnixNano(), Valid: true}
}

func mapConstraint(err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
		return storage.ErrAccountExists
	}
	return err
}
