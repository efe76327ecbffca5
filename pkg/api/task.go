package api

import "time"

// TaskCreateRequest запрос на создание задачи
type TaskCreateRequest struct {
	Description *string    `json:"description,omitempty"`
	AssigneeID  *string    `json:"assigneeId,omitempty"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	Title       string     `json:"title"`
	ProjectID   string     `json:"projectId"`
	Status      string     `json:"status,omitempty"`   // по умолчанию TODO
	Priority    string     `json:"priority,omitempty"` // по умолчанию MEDIUM
	Position    int        `json:"position,omitempty"`
}

// TaskUpdateRequest частичное обновление задачи. nil поля не меняются.
type TaskUpdateRequest struct {
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	Status      *string    `json:"status,omitempty"`
	Priority    *string    `json:"priority,omitempty"`
	AssigneeID  *string    `json:"assigneeId,omitempty"` // пустая строка снимает исполнителя
	DueDate     *time.Time `json:"dueDate,omitempty"`
	Position    *int       `json:"position,omitempty"`
}

// CommentCreateRequest новый комментарий к задаче
type CommentCreateRequest struct {
	Content string `json:"content"`
}

// TagCreateRequest новый тег
type TagCreateRequest struct {
	Color *string `json:"color,omitempty"`
	Name  string  `json:"name"`
}

// TaskTagRequest привязка тега к задаче
type TaskTagRequest struct {
	TagID string `json:"tagId"`
}

// ReadAllResponse результат пометки всех уведомлений прочитанными
type ReadAllResponse struct {
	Updated int `json:"updated"`
}
