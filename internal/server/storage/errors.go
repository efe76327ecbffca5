package storage

import "errors"

// Common storage errors
var (
	// ErrUserNotFound indicates that user was not found in storage
	ErrUserNotFound = errors.New("user not found")

	// ErrUserAlreadyExists indicates that user with this email already exists
	ErrUserAlreadyExists = errors.New("user already exists")

	// ErrProjectNotFound indicates that project was not found
	ErrProjectNotFound = errors.New("project not found")

	// ErrMemberNotFound indicates that user is not a member of the project
	ErrMemberNotFound = errors.New("member not found")

	// ErrMemberAlreadyExists indicates that user is already a member of the project
	ErrMemberAlreadyExists = errors.New("member already exists")

	// ErrTaskNotFound indicates that task was not found
	ErrTaskNotFound = errors.New("task not found")

	// ErrCommentNotFound indicates that comment was not found
	ErrCommentNotFound = errors.New("comment not found")

	// ErrTagNotFound indicates that tag was not found
	ErrTagNotFound = errors.New("tag not found")

	// ErrTagAlreadyExists indicates that tag with this name already exists
	ErrTagAlreadyExists = errors.New("tag already exists")

	// ErrTaskTagAlreadyExists indicates that tag is already attached to the task
	ErrTaskTagAlreadyExists = errors.New("tag already attached to task")

	// ErrTaskTagNotFound indicates that tag is not attached to the task
	ErrTaskTagNotFound = errors.New("tag not attached to task")

	// ErrNotificationNotFound indicates that notification was not found
	ErrNotificationNotFound = errors.New("notification not found")
)
