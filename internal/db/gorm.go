package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var ErrNotFound = errors.New("record not found")

const (
	txWallTimeout    = 30 * time.Second
	serializeRetries = 3
)

type txKey struct{}

type GormDB struct {
	db *gorm.DB
}

func NewGormDB(dsn string) (*GormDB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return &GormDB{}, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &GormDB{
		db: db,
	}, nil
}

func NewFromGorm(db *gorm.DB) *GormDB {
	return &GormDB{db: db}
}

func (f *GormDB) MigrateModels(models ...any) error {
	err := f.db.AutoMigrate(models...)
	if err != nil {
		return fmt.Errorf("failed to migrate table: %w", err)
	}

	return nil
}

// Conn resolves the handle bound to ctx: inside RunInTx it is the enclosing
// transaction, outside it is the root connection.
func (f *GormDB) Conn(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return tx.WithContext(ctx)
	}
	return f.db.WithContext(ctx)
}

// RunInTx runs fn inside a SERIALIZABLE transaction. Nested calls join the
// outermost transaction. Serialization failures are retried with jittered
// backoff before being surfaced.
func (f *GormDB) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return fn(ctx)
	}

	deadlineCtx, cancel := context.WithTimeout(ctx, txWallTimeout)
	defer cancel()

	var err error
	for attempt := 0; attempt <= serializeRetries; attempt++ {
		err = f.db.WithContext(deadlineCtx).Transaction(func(tx *gorm.DB) error {
			return fn(context.WithValue(deadlineCtx, txKey{}, tx))
		}, &sql.TxOptions{Isolation: sql.LevelSerializable})

		if err == nil || !isSerializationFailure(err) {
			return err
		}

		select {
		case <-deadlineCtx.Done():
			return deadlineCtx.Err()
		case <-time.After(time.Duration(rand.Intn(50*(attempt+1))+10) * time.Millisecond):
		}
	}

	return fmt.Errorf("transaction retries exhausted: %w", err)
}

// InTx reports whether ctx already carries a transaction.
func (f *GormDB) InTx(ctx context.Context) bool {
	_, ok := ctx.Value(txKey{}).(*gorm.DB)
	return ok
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// 40001 serialization_failure, 40P01 deadlock_detected
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

// IsUniqueViolation reports whether err is a unique-constraint conflict,
// the primary dedup mechanism for idempotent inserts.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return errors.Is(err, gorm.ErrDuplicatedKey)
}

func TranslateNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
