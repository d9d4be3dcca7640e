package audit_test

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"stakevault/internal/audit"
	"stakevault/internal/repository"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"
)

type fakeAuditRepo struct {
	entries   []*repository.AuditLog
	insertErr error
}

func (f *fakeAuditRepo) InsertAuditLog(ctx context.Context, entry *repository.AuditLog) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.entries = append(f.entries, entry)
	return nil
}

var _ = Describe("Sanitize", func() {
	It("redacts sensitive fields at any depth", func() {
		snapshot := map[string]any{
			"email":        "alice@example.com",
			"passwordHash": "argon2id$...",
			"nested": map[string]any{
				"encryptedPrivateKey": "deadbeef",
				"label":               "hot wallet",
			},
		}

		raw, err := audit.Sanitize(snapshot)
		Expect(err).NotTo(HaveOccurred())

		var decoded map[string]any
		Expect(json.Unmarshal(raw, &decoded)).To(Succeed())
		Expect(decoded["passwordHash"]).To(Equal("[REDACTED]"))
		Expect(decoded["email"]).To(Equal("alice@example.com"))

		nested := decoded["nested"].(map[string]any)
		Expect(nested["encryptedPrivateKey"]).To(Equal("[REDACTED]"))
		Expect(nested["label"]).To(Equal("hot wallet"))
	})

	It("redacts struct snapshots through their json field names", func() {
		user := repository.User{
			Email:        "alice@example.com",
			PasswordHash: "argon2id$...",
		}

		raw, err := audit.Sanitize(user)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(raw)).NotTo(ContainSubstring("argon2id"))
		Expect(string(raw)).To(ContainSubstring("[REDACTED]"))
	})
})

var _ = Describe("Writer", func() {
	var (
		repo   *fakeAuditRepo
		writer *audit.Writer
		ctx    context.Context
	)

	BeforeEach(func() {
		repo = &fakeAuditRepo{}
		writer = audit.NewWriter(zap.NewNop().Sugar(), repo, func() time.Time {
			return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
		})
		ctx = context.Background()
	})

	It("records actor, action and snapshots", func() {
		writer.Record(ctx, audit.Actor{ID: "admin-1", Email: "admin@example.com"},
			"withdrawal.approve", "WithdrawalRequest", "w-1",
			map[string]string{"status": "PENDING_REVIEW"},
			map[string]string{"status": "APPROVED"})

		Expect(repo.entries).To(HaveLen(1))
		entry := repo.entries[0]
		Expect(entry.Action).To(Equal("withdrawal.approve"))
		Expect(entry.EntityID).To(Equal("w-1"))
		Expect(*entry.ActorID).To(Equal("admin-1"))
		Expect(string(entry.Before)).To(ContainSubstring("PENDING_REVIEW"))
		Expect(string(entry.After)).To(ContainSubstring("APPROVED"))
	})

	It("swallows storage failures", func() {
		repo.insertErr = errors.New("fake error")

		Expect(func() {
			writer.Record(ctx, audit.Actor{}, "x", "Y", "z", nil, nil)
		}).NotTo(Panic())
	})
})
