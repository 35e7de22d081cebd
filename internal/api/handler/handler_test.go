package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/go-cmp/cmp"

	"github.com/iconidentify/aliaff/internal/domain"
)

func withURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return v
}

func TestStatusForError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.ErrPostNotFound, http.StatusNotFound},
		{domain.ErrSavedPostNotFound, http.StatusNotFound},
		{fmt.Errorf("wrapped: %w", domain.ErrProductIDNotFound), http.StatusBadRequest},
		{domain.ErrMissingCookie, http.StatusBadRequest},
		{domain.ErrMissingBotToken, http.StatusBadRequest},
		{domain.ErrNoChannels, http.StatusBadRequest},
		{domain.ErrInvalidImage, http.StatusBadRequest},
		{domain.ErrScheduledTimeRequired, http.StatusBadRequest},
		{domain.ErrAssistantUnavailable, http.StatusServiceUnavailable},
		{domain.ErrQuotaExceeded, http.StatusTooManyRequests},
		{domain.NewDeliveryError("@chan", "send", errors.New("chat not found")), http.StatusBadGateway},
		{errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusForError(tt.err); got != tt.want {
			t.Errorf("statusForError(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestAffiliateHandler_Generate(t *testing.T) {
	coin := "https://s.click.aliexpress.com/e/_coin"
	bundle := "https://s.click.aliexpress.com/e/_bundle"
	svc := &mockAffiliater{result: &domain.AffiliateResult{
		ProductID: "1005006543210987",
		Aff:       domain.PromotionLinkSet{Coin: &coin, Ther3: &bundle},
		Preview: domain.ProductPreview{
			Title:       "Desk lamp",
			ImageURL:    "https://ae01.alicdn.com/kf/lamp.jpg",
			Price:       "US $4.20",
			FetchMethod: domain.FetchMethodScrape,
		},
	}}
	h := NewAffiliateHandler(svc, testLogger())

	w := httptest.NewRecorder()
	h.Generate(w, jsonRequest(http.MethodPost, "/api/v1/affiliate",
		`{"url":" https://a.aliexpress.com/_abc ","credentials":{"cookie":"xman_t=1"}}`))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
	}
	if svc.gotInput != "https://a.aliexpress.com/_abc" || svc.gotCookie != "xman_t=1" {
		t.Errorf("service got input %q cookie %q", svc.gotInput, svc.gotCookie)
	}

	var raw map[string]any
	json.Unmarshal(w.Body.Bytes(), &raw)
	links := raw["links"].(map[string]any)
	want := map[string]any{
		"coin":   coin,
		"point":  nil,
		"super":  nil,
		"limit":  nil,
		"ther3":  bundle,
		"bundle": bundle,
	}
	if diff := cmp.Diff(want, links); diff != "" {
		t.Errorf("links mismatch (-want +got):\n%s", diff)
	}
	if raw["title"] != "Desk lamp" || raw["image"] != "https://ae01.alicdn.com/kf/lamp.jpg" || raw["fetch_method"] != "scrape" {
		t.Errorf("preview fields = %v", raw)
	}
}

func TestAffiliateHandler_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		err  error
		want int
	}{
		{"bad json", `{`, nil, http.StatusBadRequest},
		{"missing url", `{"url":"  "}`, nil, http.StatusBadRequest},
		{"no product id", `{"url":"https://example.com"}`, domain.ErrProductIDNotFound, http.StatusBadRequest},
		{"no cookie", `{"url":"https://a.aliexpress.com/_abc"}`, domain.ErrMissingCookie, http.StatusBadRequest},
		{"unexpected", `{"url":"https://a.aliexpress.com/_abc"}`, errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewAffiliateHandler(&mockAffiliater{err: tt.err}, testLogger())
			w := httptest.NewRecorder()
			h.Generate(w, jsonRequest(http.MethodPost, "/api/v1/affiliate", tt.body))

			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
			if resp := decodeBody[map[string]string](t, w); resp["error"] == "" {
				t.Error("error message should not be empty")
			}
		})
	}
}

func TestPublishHandler_Publish(t *testing.T) {
	svc := &mockPublisher{channels: 2}
	h := NewPublishHandler(svc, testLogger())

	w := httptest.NewRecorder()
	h.Publish(w, jsonRequest(http.MethodPost, "/api/v1/publish", `{
		"title":"Desk lamp","price":"US $4.20","link":"https://s.click.aliexpress.com/e/_x",
		"settings":{"prefix":"🔥","sale_price":"Now","link_text":"Buy:"},
		"credentials":{"telegram_token":"123:abc","channel_id":"@deals","channel_choice":"both"}
	}`))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if resp := decodeBody[PublishResponse](t, w); resp.Channels != 2 {
		t.Errorf("channels = %d, want 2", resp.Channels)
	}

	got := svc.gotRequest
	if got.Title != "Desk lamp" || got.Credentials.ChannelChoice != domain.ChannelBoth {
		t.Errorf("request = %+v", got)
	}
	if got.Template == nil || got.Template.Prefix != "🔥" || got.Template.SalePrice != "Now" {
		t.Errorf("template = %+v", got.Template)
	}
}

func TestPublishHandler_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
		err  error
		want int
	}{
		{"missing link", `{"title":"x"}`, nil, http.StatusBadRequest},
		{"custom message only", `{"custom_message":"hello"}`, nil, http.StatusOK},
		{"missing token", `{"custom_message":"hello"}`, domain.ErrMissingBotToken, http.StatusBadRequest},
		{"delivery failed", `{"custom_message":"hello"}`, domain.NewDeliveryError("@x", "send", errors.New("Forbidden")), http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewPublishHandler(&mockPublisher{channels: 1, err: tt.err}, testLogger())
			w := httptest.NewRecorder()
			h.Publish(w, jsonRequest(http.MethodPost, "/api/v1/publish", tt.body))
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestPublishHandler_PublishCollection(t *testing.T) {
	svc := &mockPublisher{channels: 1}
	h := NewPublishHandler(svc, testLogger())

	w := httptest.NewRecorder()
	h.PublishCollection(w, jsonRequest(http.MethodPost, "/api/v1/publish-collection",
		`{"message":"Top 5 lamps","credentials":{"telegram_token":"t","channel_id_2":"@b","channel_choice":"2"}}`))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if svc.gotMessage != "Top 5 lamps" || svc.gotCreds.ChannelID2 != "@b" {
		t.Errorf("message %q creds %+v", svc.gotMessage, svc.gotCreds)
	}

	w = httptest.NewRecorder()
	h.PublishCollection(w, jsonRequest(http.MethodPost, "/api/v1/publish-collection", `{"message":" "}`))
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty message status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestScheduleHandler_SubmitAndList(t *testing.T) {
	sched := &mockScheduler{}
	h := NewScheduleHandler(sched, testLogger())

	w := httptest.NewRecorder()
	h.Submit(w, jsonRequest(http.MethodPost, "/api/v1/scheduled-posts", `{
		"message":"later","scheduled_time":"2030-01-02T03:04:05Z",
		"credentials":{"telegram_token":"secret-token","channel_id":"@a","channel_choice":"1"}
	}`))

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if strings.Contains(w.Body.String(), "secret-token") {
		t.Error("response leaks the bot token")
	}
	resp := decodeBody[ScheduledPostResponse](t, w)
	if !resp.ScheduledTime.Equal(time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)) {
		t.Errorf("scheduled_time = %v", resp.ScheduledTime)
	}
	if resp.ChannelChoice != "1" || !resp.HasCredentials || resp.Status != "pending" {
		t.Errorf("response = %+v", resp)
	}

	w = httptest.NewRecorder()
	h.List(w, httptest.NewRequest(http.MethodGet, "/api/v1/scheduled-posts", nil))
	if strings.Contains(w.Body.String(), "secret-token") {
		t.Error("list leaks the bot token")
	}
	list := decodeBody[struct {
		Posts []ScheduledPostResponse `json:"posts"`
		Count int                     `json:"count"`
	}](t, w)
	if list.Count != 1 || list.Posts[0].Message != "later" {
		t.Errorf("list = %+v", list)
	}
}

func TestScheduleHandler_SubmitValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{"missing time", `{"message":"x"}`, http.StatusBadRequest},
		{"garbage time", `{"message":"x","scheduled_time":"tomorrow"}`, http.StatusBadRequest},
		{"datetime-local", `{"message":"x","scheduled_time":"2030-01-02T03:04"}`, http.StatusCreated},
		{"bad json", `[`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewScheduleHandler(&mockScheduler{}, testLogger())
			w := httptest.NewRecorder()
			h.Submit(w, jsonRequest(http.MethodPost, "/api/v1/scheduled-posts", tt.body))
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d: %s", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestScheduleHandler_Delete(t *testing.T) {
	sched := &mockScheduler{posts: []domain.ScheduledPost{{ID: "p1", Status: domain.PostStatusFailed}}}
	h := NewScheduleHandler(sched, testLogger())

	w := httptest.NewRecorder()
	h.Delete(w, withURLParam(httptest.NewRequest(http.MethodDelete, "/api/v1/scheduled-posts/p1", nil), "id", "p1"))
	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNoContent)
	}

	w = httptest.NewRecorder()
	h.Delete(w, withURLParam(httptest.NewRequest(http.MethodDelete, "/api/v1/scheduled-posts/p1", nil), "id", "p1"))
	if w.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestScheduleHandler_Check(t *testing.T) {
	sched := &mockScheduler{}
	h := NewScheduleHandler(sched, testLogger())

	w := httptest.NewRecorder()
	h.Check(w, httptest.NewRequest(http.MethodPost, "/api/v1/scheduled-posts/check", nil))
	if w.Code != http.StatusConflict {
		t.Errorf("idle status = %d, want %d", w.Code, http.StatusConflict)
	}

	sched.running = true
	w = httptest.NewRecorder()
	h.Check(w, httptest.NewRequest(http.MethodPost, "/api/v1/scheduled-posts/check", nil))
	if w.Code != http.StatusAccepted || sched.checks != 1 {
		t.Errorf("status = %d checks = %d", w.Code, sched.checks)
	}
}

func TestAssistantHandler(t *testing.T) {
	a := newMockAssistant("AIzaSy-key-aaaaaaaa")
	h := NewAssistantHandler(a, testLogger())

	t.Run("refine title", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.RefineTitle(w, jsonRequest(http.MethodPost, "/api/v1/assistant/refine-title", `{"title":"desk lamp"}`))
		resp := decodeBody[map[string]string](t, w)
		if resp["text"] != "Refined desk lamp" || resp["method"] != "ai" {
			t.Errorf("response = %v", resp)
		}
	})

	t.Run("refine hook", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.RefineTitle(w, jsonRequest(http.MethodPost, "/api/v1/assistant/refine-title", `{"title":"look","is_hook":true}`))
		if a.gotHook != "look" {
			t.Errorf("hook refine not used, gotHook = %q", a.gotHook)
		}
	})

	t.Run("missing title", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.Hook(w, jsonRequest(http.MethodPost, "/api/v1/assistant/hook", `{}`))
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d", w.Code)
		}
	})

	t.Run("hook", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.Hook(w, jsonRequest(http.MethodPost, "/api/v1/assistant/hook", `{"title":"lamp","price":"$4"}`))
		if resp := decodeBody[map[string]string](t, w); resp["method"] != "fallback" {
			t.Errorf("response = %v", resp)
		}
	})

	t.Run("replace keys", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.SetKeys(w, jsonRequest(http.MethodPut, "/api/v1/assistant/keys",
			`{"keys":["AIzaSy-key-bbbbbbbb"],"key_list":"AIzaSy-key-cccccccc, short"}`))
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}
		if a.pool.Len() != 2 || a.pool.Current() != "AIzaSy-key-bbbbbbbb" {
			t.Errorf("pool len %d current %q", a.pool.Len(), a.pool.Current())
		}
	})

	t.Run("invalid keys keep pool", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.SetKeys(w, jsonRequest(http.MethodPut, "/api/v1/assistant/keys", `{"keys":["short"]}`))
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d", w.Code)
		}
		if a.pool.Len() != 2 {
			t.Errorf("pool replaced by invalid keys, len %d", a.pool.Len())
		}
	})

	t.Run("status", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.Status(w, httptest.NewRequest(http.MethodGet, "/api/v1/assistant/status", nil))
		resp := decodeBody[map[string]any](t, w)
		if resp["available"] != true || resp["keys"] != float64(2) {
			t.Errorf("status = %v", resp)
		}
	})
}

func TestSavedPostHandler(t *testing.T) {
	store := &mockSavedPostStore{}
	h := NewSavedPostHandler(store, testLogger())

	w := httptest.NewRecorder()
	h.Add(w, jsonRequest(http.MethodPost, "/api/v1/saved-posts", `{"id":"v1","title":"Lamp","hook":"Look"}`))
	if w.Code != http.StatusCreated {
		t.Fatalf("add status = %d", w.Code)
	}

	w = httptest.NewRecorder()
	h.Add(w, jsonRequest(http.MethodPost, "/api/v1/saved-posts", `{"id":"v1","title":"Again"}`))
	if w.Code != http.StatusOK {
		t.Errorf("duplicate add status = %d, want %d", w.Code, http.StatusOK)
	}
	if resp := decodeBody[map[string]any](t, w); resp["created"] != false {
		t.Errorf("duplicate created = %v", resp["created"])
	}

	w = httptest.NewRecorder()
	h.List(w, httptest.NewRequest(http.MethodGet, "/api/v1/saved-posts", nil))
	list := decodeBody[struct {
		Posts []domain.SavedPost `json:"posts"`
		Count int                `json:"count"`
	}](t, w)
	if list.Count != 1 || list.Posts[0].Title != "Lamp" {
		t.Errorf("list = %+v", list)
	}

	w = httptest.NewRecorder()
	h.Delete(w, withURLParam(httptest.NewRequest(http.MethodDelete, "/api/v1/saved-posts/nope", nil), "id", "nope"))
	if w.Code != http.StatusNotFound {
		t.Errorf("delete missing status = %d", w.Code)
	}

	w = httptest.NewRecorder()
	h.Clear(w, httptest.NewRequest(http.MethodDelete, "/api/v1/saved-posts", nil))
	if w.Code != http.StatusNoContent || len(store.posts) != 0 {
		t.Errorf("clear status = %d, remaining %d", w.Code, len(store.posts))
	}

	store.listErr = errors.New("db down")
	w = httptest.NewRecorder()
	h.List(w, httptest.NewRequest(http.MethodGet, "/api/v1/saved-posts", nil))
	if w.Code != http.StatusInternalServerError {
		t.Errorf("list error status = %d", w.Code)
	}
}
