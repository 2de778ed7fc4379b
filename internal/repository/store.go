package repository

import (
	"context"

	"gorm.io/gorm"
)

// Store bundles the repositories that share one *gorm.DB, so a service can run
// several of them inside a single transaction.
type Store struct {
	db   *gorm.DB
	opts []Option

	Groups   IGroupRepository
	Members  IMemberRepository
	Bans     IBanRepository
	Messages IMessageRepository
	Profiles IProfileRepository
}

// Option adjusts a Store after its repositories are built. Options are
// re-applied to the Store handed to every transaction, so a decorated
// repository stays in place inside Transaction.
type Option func(*Store)

// NewStore creates a Store backed by db.
func NewStore(db *gorm.DB, opts ...Option) *Store {
	s := &Store{
		db:       db,
		opts:     opts,
		Groups:   NewGroupRepository(db),
		Members:  NewMemberRepository(db),
		Bans:     NewBanRepository(db),
		Messages: NewMessageRepository(db),
		Profiles: NewProfileRepository(db),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Transaction runs fn with a Store bound to a database transaction. The
// transaction commits when fn returns nil and rolls back otherwise.
func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewStore(tx, s.opts...))
	})
}

// DB exposes the underlying handle for health checks.
func (s *Store) DB() *gorm.DB {
	return s.db
}
