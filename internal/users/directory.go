// Package users verifies login credentials and maps a username to the subject
// identity carried in issued credentials. Account management is out of scope.
package users

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidCredentials = errors.New("users: invalid credentials")

// Directory verifies a username/password pair and returns the subject.
type Directory interface {
	Authenticate(ctx context.Context, username, password string) (subject string, err error)
}

// Account seeds a MemoryDirectory. Password is plaintext and hashed on load.
type Account struct {
	Username string
	Subject  string
	Password string
}

// DemoAccounts is the single local account used by dev setups and tests.
func DemoAccounts() []Account {
	return []Account{{Username: "alice", Subject: "user-alice", Password: "password123"}}
}

type memoryEntry struct {
	subject string
	hash    []byte
}

// MemoryDirectory keeps bcrypt hashes in process memory. It is read-only
// after construction.
type MemoryDirectory struct {
	entries map[string]memoryEntry
	// dummy is compared when the username is unknown so both paths cost the same.
	dummy []byte
}

func NewMemoryDirectory(cost int, accounts ...Account) (*MemoryDirectory, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	dummy, err := bcrypt.GenerateFromPassword([]byte("not-a-real-password"), cost)
	if err != nil {
		return nil, fmt.Errorf("users: dummy hash: %w", err)
	}
	d := &MemoryDirectory{entries: make(map[string]memoryEntry, len(accounts)), dummy: dummy}
	for _, a := range accounts {
		if a.Username == "" || a.Subject == "" {
			return nil, fmt.Errorf("users: account needs username and subject")
		}
		h, err := bcrypt.GenerateFromPassword([]byte(a.Password), cost)
		if err != nil {
			return nil, fmt.Errorf("users: hash %q: %w", a.Username, err)
		}
		d.entries[a.Username] = memoryEntry{subject: a.Subject, hash: h}
	}
	return d, nil
}

func (d *MemoryDirectory) Authenticate(_ context.Context, username, password string) (string, error) {
	e, ok := d.entries[username]

	if !ok {
		_ = bcrypt.CompareHashAndPassword(d.dummy, []byte(password))
		return "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(e.hash, []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}
	return e.subject, nil
}
