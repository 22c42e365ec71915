package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/lo"

	"linechat/internal/app/db"
	"linechat/internal/app/message"
	"linechat/internal/app/user"
	"linechat/internal/pkg/auth"
)

const (
	selectByUsername = `SELECT username, password, email FROM users WHERE lower(username) = lower($1)`

	selectByEmail = `SELECT username, password, email FROM users WHERE lower(email) = lower($1) ORDER BY id LIMIT 1`

	existsUsername = `SELECT EXISTS (SELECT 1 FROM users WHERE lower(username) = lower($1))`

	insertUser = `INSERT INTO users (username, password, email) VALUES ($1, $2, $3)`

	insertMessage = `INSERT INTO messages (id, kind, sender, receiver, content, created_at) VALUES ($1, $2, $3, $4, $5, $6)`

	selectHistory = `
SELECT id, kind, sender, receiver, content, created_at
FROM messages
WHERE kind = 'PUBLIC' OR lower(receiver) = lower($1) OR lower(sender) = lower($1)
ORDER BY created_at DESC, id DESC
LIMIT $2`

	selectUsernames = `SELECT username FROM users ORDER BY lower(username), id`
)

// Postgres is the Store adapter backed by a pgx connection pool.
type Postgres struct {
	pool   *pgxpool.Pool
	policy auth.PasswordPolicy
}

// NewPostgres wraps an already migrated pool.
func NewPostgres(pool *pgxpool.Pool, policy auth.PasswordPolicy) *Postgres {
	return &Postgres{pool: pool, policy: policy}
}

func (p *Postgres) LookupByCredentials(ctx context.Context, username, password string) (user.Account, error) {
	account, err := p.scanAccount(ctx, selectByUsername, username)
	if err != nil {
		return user.Account{}, err
	}

	if !p.policy.Compare(account.Password, password) {
		return user.Account{}, ErrNotFound
	}
	return account, nil
}

func (p *Postgres) UsernameExists(ctx context.Context, username string) (bool, error) {
	var exists bool
	if err := p.pool.QueryRow(ctx, existsUsername, username).Scan(&exists); err != nil {
		return false, fmt.Errorf("check username: %w", err)
	}
	return exists, nil
}

func (p *Postgres) CreateAccount(ctx context.Context, account user.Account) error {
	stored, err := p.policy.Hash(account.Password)
	if err != nil {
		return err
	}

	if _, err := p.pool.Exec(ctx, insertUser, account.Username, stored, strings.TrimSpace(account.Email)); err != nil {
		if db.IsUniqueViolation(err) {
			return ErrUserExists
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (p *Postgres) LookupByEmail(ctx context.Context, email string) (user.Account, error) {
	return p.scanAccount(ctx, selectByEmail, strings.TrimSpace(email))
}

func (p *Postgres) AppendMessage(ctx context.Context, msg message.Message) error {
	if !msg.IsChat() {
		return fmt.Errorf("append message: kind %s is not persisted", msg.Kind)
	}

	_, err := p.pool.Exec(ctx, insertMessage, msg.ID, string(msg.Kind), msg.Sender, msg.StoredTarget(), msg.Body, msg.Timestamp)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (p *Postgres) FetchRecentHistory(ctx context.Context, username string, limit int) ([]message.Message, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	rows, err := p.pool.Query(ctx, selectHistory, username, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}

	newestFirst, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (message.Message, error) {
		var m storedMessage
		if err := row.Scan(&m.ID, &m.Kind, &m.Sender, &m.Receiver, &m.Content, &m.CreatedAt); err != nil {
			return message.Message{}, err
		}
		return m.toMessage(), nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan history: %w", err)
	}

	return lo.Reverse(newestFirst), nil
}

func (p *Postgres) ListAllUsernames(ctx context.Context) ([]string, error) {
	rows, err := p.pool.Query(ctx, selectUsernames)
	if err != nil {
		return nil, fmt.Errorf("query usernames: %w", err)
	}

	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan usernames: %w", err)
	}
	return names, nil
}

// Close closes the pool.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

func (p *Postgres) scanAccount(ctx context.Context, query, arg string) (user.Account, error) {
	var account user.Account

	err := p.pool.QueryRow(ctx, query, arg).Scan(&account.Username, &account.Password, &account.Email)
	if err != nil {
		if db.IsNoRows(err) {
			return user.Account{}, ErrNotFound
		}
		return user.Account{}, fmt.Errorf("query account: %w", err)
	}
	return account, nil
}
