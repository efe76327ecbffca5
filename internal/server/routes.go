package server

import (
	"net/http"

	"github.com/iudanet/pmtool/internal/server/handlers"
)

type routes struct {
	auth          *handlers.AuthHandler
	projects      *handlers.ProjectHandler
	tasks         *handlers.TaskHandler
	tags          *handlers.TagHandler
	notifications *handlers.NotificationHandler
	health        *handlers.HealthHandler
	metrics       http.Handler
	protect       func(http.Handler) http.Handler
}

func (rt *routes) mux() *http.ServeMux {
	mux := http.NewServeMux()

	public := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, h)
	}
	protected := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, rt.protect(h))
	}
	// collection регистрирует и /items, и /items/
	collection := func(register func(string, http.HandlerFunc), method, path string, h http.HandlerFunc) {
		register(method+" "+path, h)
		register(method+" "+path+"/{$}", h)
	}

	public("GET /{$}", rt.health.Root)
	public("GET /health", rt.health.Health)
	mux.Handle("GET /metrics", rt.metrics)

	// Пользователи и аутентификация
	collection(public, http.MethodGet, "/users", rt.auth.ListUsers)
	collection(public, http.MethodPost, "/users", rt.auth.Register)
	public("POST /users/login", rt.auth.Login)
	protected("GET /users/me", rt.auth.Me)
	protected("PATCH /users/me", rt.auth.UpdateMe)
	protected("POST /users/logout", rt.auth.Logout)

	// Проекты и участники
	collection(public, http.MethodGet, "/projects", rt.projects.List)
	collection(protected, http.MethodPost, "/projects", rt.projects.Create)
	public("GET /projects/{id}", rt.projects.Get)
	protected("PATCH /projects/{id}", rt.projects.Update)
	protected("DELETE /projects/{id}", rt.projects.Delete)
	public("GET /projects/{id}/members", rt.projects.ListMembers)
	protected("POST /projects/{id}/members", rt.projects.AddMember)
	protected("PATCH /projects/{id}/members/{userId}", rt.projects.UpdateMember)
	protected("DELETE /projects/{id}/members/{userId}", rt.projects.RemoveMember)
	protected("GET /projects/{id}/activity", rt.projects.Activity)

	// Задачи, комментарии, теги задач
	collection(public, http.MethodGet, "/tasks", rt.tasks.List)
	collection(protected, http.MethodPost, "/tasks", rt.tasks.Create)
	public("GET /tasks/{id}", rt.tasks.Get)
	protected("PATCH /tasks/{id}", rt.tasks.Update)
	protected("DELETE /tasks/{id}", rt.tasks.Delete)
	public("GET /tasks/{id}/comments", rt.tasks.ListComments)
	protected("POST /tasks/{id}/comments", rt.tasks.CreateComment)
	protected("DELETE /comments/{id}", rt.tasks.DeleteComment)
	public("GET /tasks/{id}/tags", rt.tasks.ListTags)
	protected("POST /tasks/{id}/tags", rt.tasks.AttachTag)
	protected("DELETE /tasks/{id}/tags/{tagId}", rt.tasks.DetachTag)

	// Справочник тегов
	collection(public, http.MethodGet, "/tags", rt.tags.List)
	collection(protected, http.MethodPost, "/tags", rt.tags.Create)

	// Уведомления
	collection(protected, http.MethodGet, "/notifications", rt.notifications.List)
	protected("PATCH /notifications/{id}/read", rt.notifications.MarkRead)
	protected("POST /notifications/read-all", rt.notifications.MarkAllRead)

	return mux
}
