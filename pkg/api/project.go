package api

// ProjectCreateRequest запрос на создание проекта
type ProjectCreateRequest struct {
	Description *string `json:"description,omitempty"`
	Color       *string `json:"color,omitempty"`
	Icon        *string `json:"icon,omitempty"`
	Name        string  `json:"name"`
}

// ProjectUpdateRequest частичное обновление проекта
type ProjectUpdateRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	Color       *string `json:"color,omitempty"`
	Icon        *string `json:"icon,omitempty"`
}

// MemberAddRequest добавление участника в проект
type MemberAddRequest struct {
	UserID string `json:"userId"`
	Role   string `json:"role,omitempty"` // по умолчанию MEMBER
}

// MemberUpdateRequest смена роли участника
type MemberUpdateRequest struct {
	Role string `json:"role"`
}
