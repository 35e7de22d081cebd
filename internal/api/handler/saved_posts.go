package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/iconidentify/aliaff/internal/domain"
)

// SavedPostStore keeps composed posts for reuse.
type SavedPostStore interface {
	List(ctx context.Context) ([]domain.SavedPost, error)
	Add(ctx context.Context, post *domain.SavedPost) (bool, error)
	Delete(ctx context.Context, id string) error
	Clear(ctx context.Context) error
}

// SavedPostHandler handles saved post requests.
type SavedPostHandler struct {
	store  SavedPostStore
	logger *slog.Logger
}

// NewSavedPostHandler creates a new saved post handler.
func NewSavedPostHandler(store SavedPostStore, logger *slog.Logger) *SavedPostHandler {
	return &SavedPostHandler{
		store:  store,
		logger: logger,
	}
}

// List handles GET /api/v1/saved-posts.
func (h *SavedPostHandler) List(w http.ResponseWriter, r *http.Request) {
	posts, err := h.store.List(r.Context())
	if err != nil {
		h.logger.Error("failed to list saved posts", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list saved posts")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"posts": posts,
		"count": len(posts),
	})
}

// Add handles POST /api/v1/saved-posts. An existing id is not overwritten.
func (h *SavedPostHandler) Add(w http.ResponseWriter, r *http.Request) {
	var post domain.SavedPost
	if err := decodeJSON(w, r, &post); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	post.CreatedAt = post.CreatedAt.UTC()

	created, err := h.store.Add(r.Context(), &post)
	if err != nil {
		h.logger.Error("failed to save post", "id", post.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save post")
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, map[string]any{
		"post":    post,
		"created": created,
	})
}

// Delete handles DELETE /api/v1/saved-posts/{id}.
func (h *SavedPostHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing post id")
		return
	}

	if err := h.store.Delete(r.Context(), id); err != nil {
		status := statusForError(err)
		if status == http.StatusInternalServerError {
			h.logger.Error("failed to delete saved post", "id", id, "error", err)
		}
		writeError(w, status, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Clear handles DELETE /api/v1/saved-posts.
func (h *SavedPostHandler) Clear(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Clear(r.Context()); err != nil {
		h.logger.Error("failed to clear saved posts", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to clear saved posts")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
