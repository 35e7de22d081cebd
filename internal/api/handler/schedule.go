package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/iconidentify/aliaff/internal/domain"
	"github.com/iconidentify/aliaff/internal/scheduler"
)

// PostScheduler stores deferred posts.
type PostScheduler interface {
	Submit(req scheduler.SubmitRequest) (*domain.ScheduledPost, error)
	Posts() []domain.ScheduledPost
	Remove(id domain.PostID) error
	CheckNow() bool
}

// ScheduleHandler handles scheduled post requests.
type ScheduleHandler struct {
	scheduler PostScheduler
	logger    *slog.Logger
}

// NewScheduleHandler creates a new schedule handler.
func NewScheduleHandler(s PostScheduler, logger *slog.Logger) *ScheduleHandler {
	return &ScheduleHandler{
		scheduler: s,
		logger:    logger,
	}
}

// ScheduleRequest is the JSON request body for a deferred post.
type ScheduleRequest struct {
	Message       string              `json:"message"`
	Image         string              `json:"image,omitempty"`
	ScheduledTime string              `json:"scheduled_time"`
	Credentials   *domain.Credentials `json:"credentials,omitempty"`
}

// ScheduledPostResponse is a scheduled post without its credentials.
type ScheduledPostResponse struct {
	ID             string     `json:"id"`
	Message        string     `json:"message"`
	HasImage       bool       `json:"has_image"`
	ScheduledTime  time.Time  `json:"scheduled_time"`
	ChannelChoice  string     `json:"channel_choice"`
	HasCredentials bool       `json:"has_credentials"`
	Status         string     `json:"status"`
	CreatedAt      time.Time  `json:"created_at"`
	PublishedAt    *time.Time `json:"published_at,omitempty"`
	Error          string     `json:"error,omitempty"`
}

func toScheduledPostResponse(p domain.ScheduledPost) ScheduledPostResponse {
	return ScheduledPostResponse{
		ID:             p.ID.String(),
		Message:        p.Message,
		HasImage:       p.Image != "",
		ScheduledTime:  p.ScheduledTime,
		ChannelChoice:  string(p.ChannelChoice),
		HasCredentials: p.Credentials.HasToken(),
		Status:         string(p.Status),
		CreatedAt:      p.CreatedAt,
		PublishedAt:    p.PublishedAt,
		Error:          p.Error,
	}
}

// scheduleTimeLayouts are tried in order. Layouts without a zone are read
// in the server's local time, as a browser datetime input sends them.
var scheduleTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

func parseScheduledTime(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, domain.ErrScheduledTimeRequired
	}
	for _, layout := range scheduleTimeLayouts {
		if t, err := time.ParseInLocation(layout, v, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.New("scheduled_time must be RFC 3339")
}

// Submit handles POST /api/v1/scheduled-posts.
func (h *ScheduleHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req ScheduleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	at, err := parseScheduledTime(req.ScheduledTime)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	post, err := h.scheduler.Submit(scheduler.SubmitRequest{
		Message:       req.Message,
		Image:         req.Image,
		ScheduledTime: at,
		Credentials:   req.Credentials,
	})
	if err != nil {
		status := statusForError(err)
		if status == http.StatusInternalServerError {
			h.logger.Error("failed to schedule post", "error", err)
		}
		writeError(w, status, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, toScheduledPostResponse(*post))
}

// List handles GET /api/v1/scheduled-posts.
func (h *ScheduleHandler) List(w http.ResponseWriter, r *http.Request) {
	posts := h.scheduler.Posts()

	response := make([]ScheduledPostResponse, 0, len(posts))
	for _, p := range posts {
		response = append(response, toScheduledPostResponse(p))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"posts": response,
		"count": len(response),
	})
}

// Delete handles DELETE /api/v1/scheduled-posts/{id}.
func (h *ScheduleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing post id")
		return
	}

	if err := h.scheduler.Remove(domain.PostID(id)); err != nil {
		status := statusForError(err)
		if status == http.StatusInternalServerError {
			h.logger.Error("failed to remove scheduled post", "post_id", id, "error", err)
		}
		writeError(w, status, err.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Check handles POST /api/v1/scheduled-posts/check.
func (h *ScheduleHandler) Check(w http.ResponseWriter, r *http.Request) {
	if !h.scheduler.CheckNow() {
		writeError(w, http.StatusConflict, "scheduler is not running")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "check triggered"})
}
