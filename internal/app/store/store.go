//go:generate go run go.uber.org/mock/mockgen -source=store.go -destination=../../mocks/mock_store.go -package=mocks

/*
Package store defines the persistence contract of the chat core and its adapters.

The chat core only depends on the Store interface. Two adapters ship with the server:
a PostgreSQL adapter built on pgx and an embedded adapter built on BadgerDB.
*/
package store

import (
	"context"
	"errors"

	"linechat/internal/app/message"
	"linechat/internal/app/user"
)

var (
	// ErrNotFound is returned when a lookup matches no account.
	ErrNotFound = errors.New("store: not found")

	// ErrUserExists is returned when an account with the same case-insensitive username already exists.
	ErrUserExists = errors.New("store: user already exists")
)

// DefaultHistoryLimit is the number of chat messages replayed to a joining session.
const DefaultHistoryLimit = 50

// Store is the durable account registry and chat log.
type Store interface {
	// LookupByCredentials returns the account whose username matches case-insensitively and whose
	// password matches under the configured policy, or ErrNotFound.
	LookupByCredentials(ctx context.Context, username, password string) (user.Account, error)

	// UsernameExists reports whether an account uses username, compared case-insensitively.
	UsernameExists(ctx context.Context, username string) (bool, error)

	// CreateAccount persists a new account or returns ErrUserExists.
	CreateAccount(ctx context.Context, account user.Account) error

	// LookupByEmail returns the account registered under email, or ErrNotFound.
	LookupByEmail(ctx context.Context, email string) (user.Account, error)

	// AppendMessage appends a public or private chat message to the log.
	AppendMessage(ctx context.Context, msg message.Message) error

	// FetchRecentHistory returns up to limit of the newest messages visible to username, oldest first:
	// every public message plus any private message where username is the sender or the target.
	FetchRecentHistory(ctx context.Context, username string, limit int) ([]message.Message, error)

	// ListAllUsernames returns every registered username in a stable order.
	ListAllUsernames(ctx context.Context) ([]string, error)

	// Close releases the underlying resources.
	Close() error
}
