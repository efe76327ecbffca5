package handlers

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/iudanet/pmtool/internal/models"
	"github.com/iudanet/pmtool/internal/server/storage"
)

// events пишет журнал действий и уведомления. Ошибки записи только
// логируются: основное действие уже выполнено.
type events struct {
	logger        *slog.Logger
	activities    storage.ActivityStorage
	notifications storage.NotificationStorage
}

func (e events) activity(ctx context.Context, typ models.ActivityType, action, userID string, projectID, taskID *string, meta map[string]string) {
	if e.activities == nil {
		return
	}

	a := &models.Activity{
		ID:        uuid.New().String(),
		Type:      typ,
		Action:    action,
		UserID:    userID,
		ProjectID: projectID,
		TaskID:    taskID,
		Metadata:  meta,
		CreatedAt: time.Now().UTC(),
	}
	if err := e.activities.RecordActivity(ctx, a); err != nil {
		e.logger.WarnContext(ctx, "failed to record activity",
			slog.String("type", string(typ)),
			slog.String("action", action),
			slog.Any("error", err))
	}
}

func (e events) notify(ctx context.Context, typ models.NotificationType, userID, message string, meta map[string]string) {
	if e.notifications == nil {
		return
	}

	n := &models.Notification{
		ID:        uuid.New().String(),
		Type:      typ,
		Message:   message,
		UserID:    userID,
		Metadata:  meta,
		CreatedAt: time.Now().UTC(),
	}
	if err := e.notifications.CreateNotification(ctx, n); err != nil {
		e.logger.WarnContext(ctx, "failed to create notification",
			slog.String("type", string(typ)),
			slog.String("user_id", userID),
			slog.Any("error", err))
	}
}
