package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// PostgresDirectory reads bcrypt hashes from a users table:
//
//	CREATE TABLE users (
//	  id            TEXT PRIMARY KEY,
//	  username      TEXT NOT NULL UNIQUE,
//	  password_hash TEXT NOT NULL
//	);
//
// The id column is the subject placed in credentials.
type PostgresDirectory struct {
	db    *sql.DB
	dummy []byte
}

const selectUserByUsername = `SELECT id, password_hash FROM users WHERE username = $1`

func NewPostgresDirectory(db *sql.DB) (*PostgresDirectory, error) {
	if db == nil {
		return nil, errors.New("users: db is nil")
	}
	dummy, err := bcrypt.GenerateFromPassword([]byte("not-a-real-password"), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("users: dummy hash: %w", err)
	}
	return &PostgresDirectory{db: db, dummy: dummy}, nil
}

func (d *PostgresDirectory) Authenticate(ctx context.Context, username, password string) (string, error) {
	var id, hash string
	err := d.db.QueryRowContext(ctx, selectUserByUsername, username).Scan(&id, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		_ = bcrypt.CompareHashAndPassword(d.dummy, []byte(password))
		return "", ErrInvalidCredentials
	}
	if err != nil {
		return "", fmt.Errorf("users: lookup: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}
	return id, nil
}
