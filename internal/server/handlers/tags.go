package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/iudanet/pmtool/internal/models"
	"github.com/iudanet/pmtool/internal/server/storage"
	"github.com/iudanet/pmtool/internal/validation"
	"github.com/iudanet/pmtool/pkg/api"
)

// TagHandler обрабатывает справочник тегов
type TagHandler struct {
	responder
	tags storage.TagStorage
}

// NewTagHandler создает handler тегов
func NewTagHandler(logger *slog.Logger, tags storage.TagStorage) *TagHandler {
	return &TagHandler{
		responder: responder{logger: logger},
		tags:      tags,
	}
}

// List обрабатывает GET /tags/
func (h *TagHandler) List(w http.ResponseWriter, r *http.Request) {
	tags, err := h.tags.ListTags(r.Context())
	if err != nil {
		h.internalError(r.Context(), w, "failed to list tags", err)
		return
	}
	if tags == nil {
		tags = []*models.Tag{}
	}
	h.sendJSON(w, tags, http.StatusOK)
}

// Create обрабатывает POST /tags/
func (h *TagHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := h.currentIdentity(w, r); !ok {
		return
	}

	var req api.TagCreateRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	if err := validation.ValidateName("name", req.Name); err != nil {
		h.validationError(w, err)
		return
	}

	color := models.DefaultTagColor
	if req.Color != nil {
		if err := validation.ValidateColor(*req.Color); err != nil {
			h.validationError(w, err)
			return
		}
		color = *req.Color
	}

	tag := &models.Tag{
		ID:        uuid.New().String(),
		Name:      req.Name,
		Color:     color,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.tags.CreateTag(ctx, tag); err != nil {
		if errors.Is(err, storage.ErrTagAlreadyExists) {
			h.sendError(w, "Tag with this name already exists", http.StatusConflict)
			return
		}
		h.internalError(ctx, w, "failed to create tag", err)
		return
	}

	h.sendJSON(w, tag, http.StatusCreated)
}
