package notify

import (
	"context"
	"encoding/json"
	"time"

	"stakevault/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Notification types.
const (
	TypeDepositConfirmed    = "DEPOSIT_CONFIRMED"
	TypeWithdrawalReviewed  = "WITHDRAWAL_REVIEWED"
	TypeWithdrawalCompleted = "WITHDRAWAL_COMPLETED"
	TypeWithdrawalFailed    = "WITHDRAWAL_FAILED"
	TypeUnstakeCompleted    = "UNSTAKE_COMPLETED"
)

type Repository interface {
	InsertNotification(ctx context.Context, notification *repository.Notification) error
	ListNotifications(ctx context.Context, userID string, limit int) ([]repository.Notification, error)
	MarkNotificationRead(ctx context.Context, userID, id string) error
}

// Service persists user notifications. Delivery transports are external;
// failures never roll back the financial transition that triggered them.
type Service struct {
	logs *zap.SugaredLogger
	repo Repository
	now  func() time.Time
}

func NewService(logger *zap.SugaredLogger, repo Repository, now func() time.Time) *Service {
	return &Service{
		logs: logger,
		repo: repo,
		now:  now,
	}
}

func (s *Service) Notify(ctx context.Context, userID, notifType, title, message string, data map[string]any) {
	notification := &repository.Notification{
		ID:        uuid.NewString(),
		UserID:    userID,
		Type:      notifType,
		Title:     title,
		Message:   message,
		CreatedAt: s.now(),
	}

	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			s.logs.Errorw("failed to marshal notification data", "error", err, "type", notifType)
		} else {
			notification.Data = raw
		}
	}

	if err := s.repo.InsertNotification(ctx, notification); err != nil {
		s.logs.Errorw("failed to persist notification", "error", err, "user_id", userID, "type", notifType)
	}
}

func (s *Service) List(ctx context.Context, userID string, limit int) ([]repository.Notification, error) {
	return s.repo.ListNotifications(ctx, userID, limit)
}

func (s *Service) MarkRead(ctx context.Context, userID, id string) error {
	return s.repo.MarkNotificationRead(ctx, userID, id)
}
