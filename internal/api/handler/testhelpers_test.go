package handler

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/iconidentify/aliaff/internal/domain"
	"github.com/iconidentify/aliaff/internal/scheduler"
	"github.com/iconidentify/aliaff/internal/service"
	"github.com/iconidentify/aliaff/pkg/assistant"
)

// testLogger returns a silent logger for tests.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func strPtr(s string) *string { return &s }

// mockAffiliater is a test implementation of Affiliater.
type mockAffiliater struct {
	result    *domain.AffiliateResult
	err       error
	gotInput  string
	gotCookie string
}

func (m *mockAffiliater) Affiliate(ctx context.Context, input, cookie string) (*domain.AffiliateResult, error) {
	m.gotInput, m.gotCookie = input, cookie
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

// mockPublisher is a test implementation of Publisher.
type mockPublisher struct {
	channels   int
	err        error
	gotRequest service.PublishRequest
	gotMessage string
	gotCreds   *domain.Credentials
}

func (m *mockPublisher) Publish(ctx context.Context, req service.PublishRequest) (int, error) {
	m.gotRequest = req
	return m.channels, m.err
}

func (m *mockPublisher) PublishCollection(ctx context.Context, message, image string, creds *domain.Credentials) (int, error) {
	m.gotMessage, m.gotCreds = message, creds
	return m.channels, m.err
}

// mockScheduler is a test implementation of PostScheduler and SchedulerStatus.
type mockScheduler struct {
	mu        sync.Mutex
	posts     []domain.ScheduledPost
	submitErr error
	running   bool
	checks    int
	lastPoll  time.Time
	lastError string
}

func (m *mockScheduler) Submit(req scheduler.SubmitRequest) (*domain.ScheduledPost, error) {
	if m.submitErr != nil {
		return nil, m.submitErr
	}
	if req.ScheduledTime.IsZero() {
		return nil, domain.ErrScheduledTimeRequired
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	post := domain.NewScheduledPost(domain.PostID("post-1"), req.Message, req.Image, req.ScheduledTime.UTC(), req.Credentials)
	m.posts = append(m.posts, *post)
	return post, nil
}

func (m *mockScheduler) Posts() []domain.ScheduledPost {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.ScheduledPost(nil), m.posts...)
}

func (m *mockScheduler) Pending() []domain.ScheduledPost {
	var out []domain.ScheduledPost
	for _, p := range m.Posts() {
		if p.Status == domain.PostStatusPending {
			out = append(out, p)
		}
	}
	return out
}

func (m *mockScheduler) Remove(id domain.PostID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, p := range m.posts {
		if p.ID == id {
			m.posts = append(m.posts[:i], m.posts[i+1:]...)
			return nil
		}
	}
	return domain.ErrPostNotFound
}

func (m *mockScheduler) CheckNow() bool {
	if !m.running {
		return false
	}
	m.checks++
	return true
}

func (m *mockScheduler) State() scheduler.State {
	if m.running {
		return scheduler.StateRunning
	}
	return scheduler.StateIdle
}

func (m *mockScheduler) LastPoll() time.Time { return m.lastPoll }
func (m *mockScheduler) LastError() string   { return m.lastError }

// mockSavedPostStore is an in-memory SavedPostStore.
type mockSavedPostStore struct {
	posts   []domain.SavedPost
	listErr error
	pingErr error
}

func (m *mockSavedPostStore) List(ctx context.Context) ([]domain.SavedPost, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.posts, nil
}

func (m *mockSavedPostStore) Add(ctx context.Context, post *domain.SavedPost) (bool, error) {
	if post.ID == "" {
		post.ID = "generated"
	}
	for _, p := range m.posts {
		if p.ID == post.ID {
			return false, nil
		}
	}
	m.posts = append([]domain.SavedPost{*post}, m.posts...)
	return true, nil
}

func (m *mockSavedPostStore) Delete(ctx context.Context, id string) error {
	for i, p := range m.posts {
		if p.ID == id {
			m.posts = append(m.posts[:i], m.posts[i+1:]...)
			return nil
		}
	}
	return domain.ErrSavedPostNotFound
}

func (m *mockSavedPostStore) Clear(ctx context.Context) error {
	m.posts = nil
	return nil
}

func (m *mockSavedPostStore) Ping(ctx context.Context) error {
	return m.pingErr
}

// mockAssistant is a test implementation of TextAssistant.
type mockAssistant struct {
	pool     *assistant.KeyPool
	gotTitle string
	gotHook  string
}

func newMockAssistant(keys ...string) *mockAssistant {
	return &mockAssistant{pool: assistant.NewKeyPool(keys)}
}

func (m *mockAssistant) RefineTitle(ctx context.Context, title string) assistant.Result {
	m.gotTitle = title
	return assistant.Result{Text: "Refined " + title, Method: assistant.MethodAI}
}

func (m *mockAssistant) RefineHook(ctx context.Context, hook string) assistant.Result {
	m.gotHook = hook
	return assistant.Result{Text: hook + "!", Method: assistant.MethodAI}
}

func (m *mockAssistant) Hook(ctx context.Context, title, price string) assistant.Result {
	return assistant.Result{Text: "Look at this", Method: assistant.MethodFallback}
}

func (m *mockAssistant) Status() assistant.Status {
	return assistant.Status{Available: m.pool.Len() > 0, Keys: m.pool.Len(), Index: m.pool.Index()}
}

func (m *mockAssistant) Pool() *assistant.KeyPool { return m.pool }
