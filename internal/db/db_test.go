package db_test

import (
	"context"
	"fmt"

	"stakevault/internal/db"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var _ = Describe("GormDB", func() {
	var (
		mock   sqlmock.Sqlmock
		gormDB *db.GormDB
		ctx    context.Context
	)

	BeforeEach(func() {
		sqlDB, sqlMock, err := sqlmock.New()
		Expect(err).NotTo(HaveOccurred())
		mock = sqlMock

		dialector := gormpostgres.New(gormpostgres.Config{Conn: sqlDB})
		conn, err := gorm.Open(dialector, &gorm.Config{SkipDefaultTransaction: true})
		Expect(err).NotTo(HaveOccurred())

		gormDB = db.NewFromGorm(conn)
		ctx = context.Background()
	})

	AfterEach(func() {
		Expect(mock.ExpectationsWereMet()).To(Succeed())
	})

	Describe("RunInTx", func() {
		It("commits a successful function", func() {
			mock.ExpectBegin()
			mock.ExpectCommit()

			err := gormDB.RunInTx(ctx, func(txCtx context.Context) error {
				Expect(gormDB.InTx(txCtx)).To(BeTrue())
				return nil
			})
			Expect(err).NotTo(HaveOccurred())
		})

		It("rolls back on error", func() {
			mock.ExpectBegin()
			mock.ExpectRollback()

			sentinel := fmt.Errorf("boom")
			err := gormDB.RunInTx(ctx, func(txCtx context.Context) error {
				return sentinel
			})
			Expect(err).To(MatchError(sentinel))
		})

		It("joins the outermost transaction on nested calls", func() {
			mock.ExpectBegin()
			mock.ExpectCommit()

			var innerCalls int
			err := gormDB.RunInTx(ctx, func(outerCtx context.Context) error {
				return gormDB.RunInTx(outerCtx, func(innerCtx context.Context) error {
					innerCalls++
					Expect(gormDB.InTx(innerCtx)).To(BeTrue())
					return nil
				})
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(innerCalls).To(Equal(1))
		})

		It("retries serialization failures with backoff before giving up", func() {
			for i := 0; i < 4; i++ {
				mock.ExpectBegin()
				mock.ExpectRollback()
			}

			attempts := 0
			err := gormDB.RunInTx(ctx, func(txCtx context.Context) error {
				attempts++
				return &pgconn.PgError{Code: "40001"}
			})
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("retries exhausted"))
			Expect(attempts).To(Equal(4))
		})
	})
})

var _ = Describe("IsUniqueViolation", func() {
	It("recognizes postgres unique violations", func() {
		Expect(db.IsUniqueViolation(&pgconn.PgError{Code: "23505"})).To(BeTrue())
	})

	It("recognizes wrapped violations", func() {
		wrapped := fmt.Errorf("create user: %w", &pgconn.PgError{Code: "23505"})
		Expect(db.IsUniqueViolation(wrapped)).To(BeTrue())
	})

	It("ignores other errors", func() {
		Expect(db.IsUniqueViolation(fmt.Errorf("boom"))).To(BeFalse())
		Expect(db.IsUniqueViolation(&pgconn.PgError{Code: "40001"})).To(BeFalse())
	})
})
