package repository

import (
	"context"

	"parcel-share/pkg/database"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// Store hands out repositories bound either to the pool or to one transaction.
type Store interface {
	Repo() *Repository
	WithinTx(ctx context.Context, fn func(repo *Repository) error) error
}

type pgStore struct {
	db   database.PgxIface
	repo *Repository
	log  *zap.Logger
}

func NewStore(db database.PgxIface, log *zap.Logger) Store {
	return &pgStore{
		db:   db,
		repo: NewRepository(db, log),
		log:  log,
	}
}

func (s *pgStore) Repo() *Repository {
	return s.repo
}

func (s *pgStore) WithinTx(ctx context.Context, fn func(repo *Repository) error) error {
	return database.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		return fn(NewRepository(tx, s.log))
	})
}
