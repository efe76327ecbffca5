package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/iudanet/pmtool/internal/models"
	"github.com/iudanet/pmtool/internal/server/storage"
)

// RecordActivity appends entry to the activity log
func (s *Storage) RecordActivity(ctx context.Context, a *models.Activity) error {
	metadata, err := marshalMetadata(a.Metadata)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO activities (id, type, action, user_id, project_id, task_id, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = s.exec(ctx, query,
		a.ID,
		string(a.Type),
		a.Action,
		a.UserID,
		nullString(a.ProjectID),
		nullString(a.TaskID),
		metadata,
		a.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert activity: %w", err)
	}

	return nil
}

// ListProjectActivity returns latest entries of a project, newest first
func (s *Storage) ListProjectActivity(ctx context.Context, projectID string, limit int) ([]*models.Activity, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, type, action, user_id, project_id, task_id, metadata, created_at
		FROM activities
		WHERE project_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`

	rows, err := s.query(ctx, query, projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query activity: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	activities := make([]*models.Activity, 0)
	for rows.Next() {
		a := &models.Activity{}
		var (
			typ            string
			projID, taskID sql.NullString
			metadata       string
		)
		if err := rows.Scan(&a.ID, &typ, &a.Action, &a.UserID, &projID, &taskID, &metadata, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		a.Type = models.ActivityType(typ)
		a.ProjectID = stringPtr(projID)
		a.TaskID = stringPtr(taskID)
		a.Metadata = unmarshalMetadata(metadata)
		activities = append(activities, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return activities, nil
}

// CreateNotification stores a new notification
func (s *Storage) CreateNotification(ctx context.Context, n *models.Notification) error {
	metadata, err := marshalMetadata(n.Metadata)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO notifications (id, type, message, user_id, is_read, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err = s.exec(ctx, query,
		n.ID,
		string(n.Type),
		n.Message,
		n.UserID,
		n.IsRead,
		metadata,
		n.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}

	return nil
}

// ListNotifications returns notifications of a user, newest first
func (s *Storage) ListNotifications(ctx context.Context, userID string, unreadOnly bool) ([]*models.Notification, error) {
	query := `
		SELECT id, type, message, user_id, is_read, metadata, created_at
		FROM notifications
		WHERE user_id = ?
	`
	args := []any{userID}
	if unreadOnly {
		query += ` AND is_read = ?`
		args = append(args, false)
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	notifications := make([]*models.Notification, 0)
	for rows.Next() {
		n := &models.Notification{}
		var typ, metadata string
		if err := rows.Scan(&n.ID, &typ, &n.Message, &n.UserID, &n.IsRead, &metadata, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		n.Type = models.NotificationType(typ)
		n.Metadata = unmarshalMetadata(metadata)
		notifications = append(notifications, n)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return notifications, nil
}

// MarkNotificationRead marks notification of the user as read
func (s *Storage) MarkNotificationRead(ctx context.Context, notificationID, userID string) error {
	query := `UPDATE notifications SET is_read = ? WHERE id = ? AND user_id = ?`

	err := s.execAffected(ctx, storage.ErrNotificationNotFound, query, true, notificationID, userID)
	if err != nil && !errors.Is(err, storage.ErrNotificationNotFound) {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}

	return err
}

// MarkAllNotificationsRead marks all notifications of the user as read
func (s *Storage) MarkAllNotificationsRead(ctx context.Context, userID string) (int, error) {
	query := `UPDATE notifications SET is_read = ? WHERE user_id = ? AND is_read = ?`

	result, err := s.exec(ctx, query, true, userID, false)
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications read: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return int(rows), nil
}

// RevokeToken remembers jti until expiresAt
func (s *Storage) RevokeToken(ctx context.Context, jti string, expiresAt time.Time) error {
	query := `
		INSERT INTO revoked_tokens (jti, expires_at) VALUES (?, ?)
		ON CONFLICT (jti) DO NOTHING
	`

	if _, err := s.exec(ctx, query, jti, expiresAt.UTC()); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}

	return nil
}

// IsTokenRevoked reports whether jti was revoked
func (s *Storage) IsTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var found string
	err := s.queryRow(ctx, `SELECT jti FROM revoked_tokens WHERE jti = ?`, jti).Scan(&found)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check revoked token: %w", err)
	}

	return true, nil
}

// DeleteExpiredRevocations removes revocations of tokens that expired anyway
// Returns number of deleted records
func (s *Storage) DeleteExpiredRevocations(ctx context.Context, now time.Time) (int, error) {
	result, err := s.exec(ctx, `DELETE FROM revoked_tokens WHERE expires_at < ?`, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired revocations: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return int(rows), nil
}

func marshalMetadata(m map[string]string) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("failed to marshal metadata: %w", err)
	}
	return string(data), nil
}

func unmarshalMetadata(raw string) map[string]string {
	m := map[string]string{}
	if raw == "" {
		return m
	}
	// Битые метаданные не должны ломать выдачу журнала
	_ = json.Unmarshal([]byte(raw), &m)
	return m
}
