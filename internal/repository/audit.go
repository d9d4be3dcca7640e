package repository

import (
	"context"
	"fmt"
)

func (s *Store) InsertAuditLog(ctx context.Context, entry *AuditLog) error {
	if err := s.conn(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

func (s *Store) InsertNotification(ctx context.Context, notification *Notification) error {
	if err := s.conn(ctx).Create(notification).Error; err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (s *Store) ListNotifications(ctx context.Context, userID string, limit int) ([]Notification, error) {
	var notifications []Notification
	err := s.conn(ctx).Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&notifications).Error
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return notifications, nil
}

func (s *Store) MarkNotificationRead(ctx context.Context, userID, id string) error {
	err := s.conn(ctx).Model(&Notification{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("is_read", true).Error
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	return nil
}
