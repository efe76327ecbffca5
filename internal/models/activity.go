package models

import "time"

// ActivityType сущность, с которой произошло событие
type ActivityType string

const (
	ActivityProject ActivityType = "PROJECT"
	ActivityTask    ActivityType = "TASK"
	ActivityMember  ActivityType = "MEMBER"
	ActivityComment ActivityType = "COMMENT"
)

// Действия, записываемые в журнал активности
const (
	ActionCreated = "created"
	ActionUpdated = "updated"
	ActionDeleted = "deleted"
	ActionAdded   = "added"
	ActionRemoved = "removed"
)

// Activity запись журнала активности проекта
type Activity struct {
	CreatedAt time.Time         `json:"createdAt"`
	Metadata  map[string]string `json:"metadata"`
	ProjectID *string           `json:"projectId"`
	TaskID    *string           `json:"taskId"`
	ID        string            `json:"id"`
	Type      ActivityType      `json:"type"`
	Action    string            `json:"action"`
	UserID    string            `json:"userId"` // кто совершил действие
}

// NotificationType тип уведомления
type NotificationType string

const (
	NotificationTaskAssigned NotificationType = "TASK_ASSIGNED"
	NotificationCommentAdded NotificationType = "COMMENT_ADDED"
	NotificationMemberAdded  NotificationType = "PROJECT_MEMBER_ADDED"
)

// Notification уведомление для пользователя
type Notification struct {
	CreatedAt time.Time         `json:"createdAt"`
	Metadata  map[string]string `json:"metadata"`
	ID        string            `json:"id"`
	Type      NotificationType  `json:"type"`
	Message   string            `json:"message"`
	UserID    string            `json:"userId"` // получатель
	IsRead    bool              `json:"isRead"`
}
