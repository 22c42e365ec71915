package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/samber/lo"

	"linechat/internal/app/message"
	"linechat/internal/app/user"
	"linechat/internal/pkg/auth"
)

const (
	userPrefix    = "user:"
	emailPrefix   = "email:"
	messagePrefix = "msg:"

	// createAttempts bounds retries when concurrent registrations conflict.
	createAttempts = 3
)

// BadgerOptions configures the embedded store.
type BadgerOptions struct {
	// Path is the on-disk directory. Ignored when InMemory is set.
	Path string

	// InMemory keeps every table in memory; used by tests and throwaway servers.
	InMemory bool
}

// Badger is the embedded Store adapter backed by BadgerDB.
//
// Layout:
//
//	user:<lower username>   -> JSON user.Account
//	email:<lower email>     -> lower username of the first account registered with it
//	msg:<unix nanos>:<id>   -> JSON storedMessage
type Badger struct {
	db     *badger.DB
	policy auth.PasswordPolicy
}

// OpenBadger opens (or creates) the embedded store.
func OpenBadger(opts BadgerOptions, policy auth.PasswordPolicy) (*Badger, error) {
	bopts := badger.DefaultOptions(opts.Path).WithLoggingLevel(badger.WARNING)
	if opts.InMemory {
		bopts = badger.DefaultOptions("").
			WithInMemory(true).
			WithMemTableSize(8 << 20).
			WithLoggingLevel(badger.WARNING)
	}

	bdb, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}

	return &Badger{db: bdb, policy: policy}, nil
}

func userKey(username string) []byte {
	return []byte(userPrefix + strings.ToLower(username))
}

func emailKey(email string) []byte {
	return []byte(emailPrefix + strings.ToLower(strings.TrimSpace(email)))
}

func messageKey(m storedMessage) []byte {
	return fmt.Appendf(nil, "%s%020d:%s", messagePrefix, m.CreatedAt.UnixNano(), m.ID)
}

func (b *Badger) LookupByCredentials(ctx context.Context, username, password string) (user.Account, error) {
	account, err := b.getAccount(userKey(username))
	if err != nil {
		return user.Account{}, err
	}

	if !b.policy.Compare(account.Password, password) {
		return user.Account{}, ErrNotFound
	}
	return account, nil
}

func (b *Badger) UsernameExists(ctx context.Context, username string) (bool, error) {
	_, err := b.getAccount(userKey(username))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

func (b *Badger) CreateAccount(ctx context.Context, account user.Account) error {
	stored, err := b.policy.Hash(account.Password)
	if err != nil {
		return err
	}
	account.Password = stored
	account.Email = strings.TrimSpace(account.Email)

	data, err := json.Marshal(account)
	if err != nil {
		return fmt.Errorf("marshal account: %w", err)
	}

	for attempt := 0; attempt < createAttempts; attempt++ {
		err = b.db.Update(func(txn *badger.Txn) error {
			key := userKey(account.Username)
			if _, err := txn.Get(key); err == nil {
				return ErrUserExists
			} else if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}

			if err := txn.Set(key, data); err != nil {
				return err
			}

			ekey := emailKey(account.Email)
			if _, err := txn.Get(ekey); errors.Is(err, badger.ErrKeyNotFound) {
				return txn.Set(ekey, []byte(strings.ToLower(account.Username)))
			} else if err != nil {
				return err
			}
			return nil
		})

		if !errors.Is(err, badger.ErrConflict) {
			break
		}
	}

	if err != nil && !errors.Is(err, ErrUserExists) {
		return fmt.Errorf("create account: %w", err)
	}
	return err
}

func (b *Badger) LookupByEmail(ctx context.Context, email string) (user.Account, error) {
	var account user.Account

	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(emailKey(email))
		if err != nil {
			return err
		}

		owner, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}

		item, err = txn.Get([]byte(userPrefix + string(owner)))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &account)
		})
	})

	if errors.Is(err, badger.ErrKeyNotFound) {
		return user.Account{}, ErrNotFound
	}
	if err != nil {
		return user.Account{}, fmt.Errorf("lookup by email: %w", err)
	}
	return account, nil
}

func (b *Badger) AppendMessage(ctx context.Context, msg message.Message) error {
	if !msg.IsChat() {
		return fmt.Errorf("append message: kind %s is not persisted", msg.Kind)
	}

	stored := newStoredMessage(msg)
	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	if err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(messageKey(stored), data)
	}); err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

func (b *Badger) FetchRecentHistory(ctx context.Context, username string, limit int) ([]message.Message, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	newestFirst := make([]message.Message, 0, limit)

	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = []byte(messagePrefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		seek := append([]byte(messagePrefix), 0xFF)
		for it.Seek(seek); it.Valid() && len(newestFirst) < limit; it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}

			var stored storedMessage
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &stored)
			}); err != nil {
				return err
			}

			if stored.visibleTo(username) {
				newestFirst = append(newestFirst, stored.toMessage())
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetch history: %w", err)
	}

	return lo.Reverse(newestFirst), nil
}

func (b *Badger) ListAllUsernames(ctx context.Context) ([]string, error) {
	var names []string

	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(userPrefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var account user.Account
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &account)
			}); err != nil {
				return err
			}
			names = append(names, account.Username)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list usernames: %w", err)
	}
	return names, nil
}

// Close flushes and closes the database.
func (b *Badger) Close() error {
	return b.db.Close()
}

func (b *Badger) getAccount(key []byte) (user.Account, error) {
	var account user.Account

	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &account)
		})
	})

	if errors.Is(err, badger.ErrKeyNotFound) {
		return user.Account{}, ErrNotFound
	}
	if err != nil {
		return user.Account{}, fmt.Errorf("get account: %w", err)
	}
	return account, nil
}
