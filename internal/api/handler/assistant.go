package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/iconidentify/aliaff/pkg/assistant"
)

// TextAssistant rewrites post text and never fails.
type TextAssistant interface {
	RefineTitle(ctx context.Context, title string) assistant.Result
	RefineHook(ctx context.Context, hook string) assistant.Result
	Hook(ctx context.Context, title, price string) assistant.Result
	Status() assistant.Status
	Pool() *assistant.KeyPool
}

// AssistantHandler handles text rewrite requests.
type AssistantHandler struct {
	assistant TextAssistant
	logger    *slog.Logger
}

// NewAssistantHandler creates a new assistant handler.
func NewAssistantHandler(a TextAssistant, logger *slog.Logger) *AssistantHandler {
	return &AssistantHandler{
		assistant: a,
		logger:    logger,
	}
}

// RefineRequest is the JSON request body for title refinement.
type RefineRequest struct {
	Title  string `json:"title"`
	IsHook bool   `json:"is_hook,omitempty"`
}

// HookRequest is the JSON request body for hook generation.
type HookRequest struct {
	Title string `json:"title"`
	Price string `json:"price,omitempty"`
}

// KeysRequest replaces the assistant key pool. Keys may be a list or a
// single comma separated string.
type KeysRequest struct {
	Keys    []string `json:"keys"`
	KeyList string   `json:"key_list,omitempty"`
}

// RefineTitle handles POST /api/v1/assistant/refine-title.
func (h *AssistantHandler) RefineTitle(w http.ResponseWriter, r *http.Request) {
	var req RefineRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}

	var res assistant.Result
	if req.IsHook {
		res = h.assistant.RefineHook(r.Context(), req.Title)
	} else {
		res = h.assistant.RefineTitle(r.Context(), req.Title)
	}
	writeJSON(w, http.StatusOK, res)
}

// Hook handles POST /api/v1/assistant/hook.
func (h *AssistantHandler) Hook(w http.ResponseWriter, r *http.Request) {
	var req HookRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}

	writeJSON(w, http.StatusOK, h.assistant.Hook(r.Context(), req.Title, req.Price))
}

// Status handles GET /api/v1/assistant/status.
func (h *AssistantHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.assistant.Status())
}

// SetKeys handles PUT /api/v1/assistant/keys.
func (h *AssistantHandler) SetKeys(w http.ResponseWriter, r *http.Request) {
	var req KeysRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	keys := req.Keys
	if req.KeyList != "" {
		keys = append(keys, strings.Split(req.KeyList, ",")...)
	}

	// validate before swapping so a bad request keeps the old pool
	if assistant.NewKeyPool(keys).Len() == 0 {
		writeError(w, http.StatusBadRequest, "no valid keys found")
		return
	}

	n := h.assistant.Pool().Replace(keys)
	h.logger.Info("assistant keys replaced", "count", n)
	writeJSON(w, http.StatusOK, h.assistant.Status())
}
