package storage

import (
	"context"
	"time"

	"github.com/iudanet/pmtool/internal/models"
)

// ActivityStorage defines interface for project activity log
type ActivityStorage interface {
	// RecordActivity appends entry to the activity log
	RecordActivity(ctx context.Context, activity *models.Activity) error

	// ListProjectActivity returns latest entries of a project, newest first
	ListProjectActivity(ctx context.Context, projectID string, limit int) ([]*models.Activity, error)
}

// NotificationStorage defines interface for user notifications
type NotificationStorage interface {
	// CreateNotification stores a new notification
	CreateNotification(ctx context.Context, n *models.Notification) error

	// ListNotifications returns notifications of a user, newest first
	ListNotifications(ctx context.Context, userID string, unreadOnly bool) ([]*models.Notification, error)

	// MarkNotificationRead marks notification of the user as read
	// Returns ErrNotificationNotFound if notification doesn't exist or belongs to another user
	MarkNotificationRead(ctx context.Context, notificationID, userID string) error

	// MarkAllNotificationsRead marks all notifications of the user as read
	// Returns number of updated notifications
	MarkAllNotificationsRead(ctx context.Context, userID string) (int, error)
}

// RevocationStorage defines interface for revoked access tokens (logout)
type RevocationStorage interface {
	// RevokeToken remembers jti until expiresAt
	RevokeToken(ctx context.Context, jti string, expiresAt time.Time) error

	// IsTokenRevoked reports whether jti was revoked
	IsTokenRevoked(ctx context.Context, jti string) (bool, error)
}
