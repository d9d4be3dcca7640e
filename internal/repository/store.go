package repository

import (
	"context"

	"stakevault/internal/db"

	"gorm.io/gorm"
)

// Store owns every table. All methods resolve the gorm handle through the
// context so that callers inside RunInTx share the enclosing transaction.
type Store struct {
	db *db.GormDB
}

func NewStore(gormDB *db.GormDB) *Store {
	return &Store{
		db: gormDB,
	}
}

func (s *Store) Migrate() error {
	return s.db.MigrateModels(Models()...)
}

// RunInTx runs fn inside a SERIALIZABLE transaction; nested calls join the
// outermost one.
func (s *Store) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	return s.db.RunInTx(ctx, fn)
}

func (s *Store) conn(ctx context.Context) *gorm.DB {
	return s.db.Conn(ctx)
}
