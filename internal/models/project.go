package models

import "time"

const (
	// DefaultProjectColor цвет проекта по умолчанию
	DefaultProjectColor = "#3b82f6"
	// DefaultProjectIcon иконка проекта по умолчанию
	DefaultProjectIcon = "folder"
)

// Project представляет проект, в котором живут задачи
type Project struct {
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
	Description *string   `json:"description"`
	Color       *string   `json:"color"`
	Icon        *string   `json:"icon"`
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	OwnerID     string    `json:"ownerId"` // создатель проекта, всегда участник с ролью OWNER
}

// MemberRole роль участника в проекте
type MemberRole string

const (
	RoleOwner  MemberRole = "OWNER"
	RoleAdmin  MemberRole = "ADMIN"
	RoleMember MemberRole = "MEMBER"
	RoleViewer MemberRole = "VIEWER"
)

// Valid проверяет, что роль из допустимого набора
func (r MemberRole) Valid() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleMember, RoleViewer:
		return true
	}
	return false
}

// CanManage возвращает true для ролей, которым разрешено управлять проектом и участниками
func (r MemberRole) CanManage() bool {
	return r == RoleOwner || r == RoleAdmin
}

// CanWrite возвращает true для ролей, которым разрешено менять задачи
func (r MemberRole) CanWrite() bool {
	return r == RoleOwner || r == RoleAdmin || r == RoleMember
}

// ProjectMember представляет участие пользователя в проекте
type ProjectMember struct {
	JoinedAt  time.Time  `json:"joinedAt"`
	ID        string     `json:"id"`
	ProjectID string     `json:"projectId"`
	UserID    string     `json:"userId"`
	Role      MemberRole `json:"role"`
}
