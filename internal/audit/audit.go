package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"stakevault/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// redactedFields never reach the audit table in the clear.
var redactedFields = map[string]bool{
	"passwordHash":        true,
	"password":            true,
	"encryptedSecret":     true,
	"encryptedPrivateKey": true,
	"refreshToken":        true,
	"accessToken":         true,
	"PasswordHash":        true,
	"EncryptedSecret":     true,
	"EncryptedPrivateKey": true,
	"RefreshTokenHash":    true,
}

type Repository interface {
	InsertAuditLog(ctx context.Context, entry *repository.AuditLog) error
}

// Writer records admin-mutating actions. Writes are best-effort: a failure
// is logged, never propagated into the financial transaction.
type Writer struct {
	logs *zap.SugaredLogger
	repo Repository
	now  func() time.Time
}

func NewWriter(logger *zap.SugaredLogger, repo Repository, now func() time.Time) *Writer {
	return &Writer{
		logs: logger,
		repo: repo,
		now:  now,
	}
}

type Actor struct {
	ID        string
	Email     string
	IPAddress string
	UserAgent string
}

func (w *Writer) Record(ctx context.Context, actor Actor, action, entity, entityID string, before, after any) {
	entry := &repository.AuditLog{
		ID:         uuid.NewString(),
		ActorEmail: actor.Email,
		Action:     action,
		Entity:     entity,
		EntityID:   entityID,
		IPAddress:  actor.IPAddress,
		UserAgent:  actor.UserAgent,
		CreatedAt:  w.now(),
	}
	if actor.ID != "" {
		entry.ActorID = &actor.ID
	}

	if before != nil {
		raw, err := Sanitize(before)
		if err != nil {
			w.logs.Errorw("failed to sanitize audit before snapshot", "error", err, "action", action)
		} else {
			entry.Before = raw
		}
	}
	if after != nil {
		raw, err := Sanitize(after)
		if err != nil {
			w.logs.Errorw("failed to sanitize audit after snapshot", "error", err, "action", action)
		} else {
			entry.After = raw
		}
	}

	if err := w.repo.InsertAuditLog(ctx, entry); err != nil {
		w.logs.Errorw("failed to write audit log", "error", err, "action", action, "entity", entity)
	}
}

// Sanitize marshals the snapshot, redacts sensitive fields and stringifies
// decimals so the stored JSON is stable.
func Sanitize(snapshot any) ([]byte, error) {
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}

	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}

	cleaned := scrub(decoded)

	out, err := json.Marshal(cleaned)
	if err != nil {
		return nil, fmt.Errorf("re-marshal snapshot: %w", err)
	}
	return out, nil
}

func scrub(value any) any {
	switch v := value.(type) {
	case map[string]any:
		for key, inner := range v {
			if redactedFields[key] {
				v[key] = "[REDACTED]"
				continue
			}
			v[key] = scrub(inner)
		}
		return v
	case []any:
		for i, inner := range v {
			v[i] = scrub(inner)
		}
		return v
	case json.Number:
		return v.String()
	default:
		return v
	}
}

// StringifyDecimal is a marshal helper for snapshots built by hand.
func StringifyDecimal(d decimal.Decimal) string {
	return d.String()
}
