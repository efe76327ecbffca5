package models

import "time"

// TaskStatus статус задачи
type TaskStatus string

const (
	StatusTodo       TaskStatus = "TODO"
	StatusInProgress TaskStatus = "IN_PROGRESS"
	StatusInReview   TaskStatus = "IN_REVIEW"
	StatusDone       TaskStatus = "DONE"
)

// Valid проверяет, что статус из допустимого набора
func (s TaskStatus) Valid() bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusInReview, StatusDone:
		return true
	}
	return false
}

// TaskPriority приоритет задачи
type TaskPriority string

const (
	PriorityLow    TaskPriority = "LOW"
	PriorityMedium TaskPriority = "MEDIUM"
	PriorityHigh   TaskPriority = "HIGH"
	PriorityUrgent TaskPriority = "URGENT"
)

// Valid проверяет, что приоритет из допустимого набора
func (p TaskPriority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Task представляет задачу внутри проекта
type Task struct {
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
	Description *string      `json:"description"`
	AssigneeID  *string      `json:"assigneeId"` // nil если задача никому не назначена
	DueDate     *time.Time   `json:"dueDate"`
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	ProjectID   string       `json:"projectId"`
	CreatorID   string       `json:"creatorId"`
	Status      TaskStatus   `json:"status"`
	Priority    TaskPriority `json:"priority"`
	Position    int          `json:"position"` // порядок внутри колонки статуса
}

// TaskFilter параметры выборки задач. Пустые поля не фильтруют.
type TaskFilter struct {
	ProjectID  string
	Status     TaskStatus
	AssigneeID string
	Priority   TaskPriority
}

// Comment комментарий к задаче
type Comment struct {
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	TaskID    string    `json:"taskId"`
	AuthorID  string    `json:"authorId"`
}

// DefaultTagColor цвет тега по умолчанию
const DefaultTagColor = "#6366f1"

// Tag метка, которую можно навесить на задачу
type Tag struct {
	CreatedAt time.Time `json:"createdAt"`
	ID        string    `json:"id"`
	Name      string    `json:"name"` // уникально в системе
	Color     string    `json:"color"`
}
