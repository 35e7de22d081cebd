// Package scheduler stores deferred publish requests and delivers them when due.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/iconidentify/aliaff/internal/config"
	"github.com/iconidentify/aliaff/internal/domain"
	"github.com/iconidentify/aliaff/pkg/crypto"
)

// State represents the current state of the polling loop.
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
)

type deliverer interface {
	Deliver(ctx context.Context, creds *domain.Credentials, choice domain.ChannelChoice, text, image string) (int, error)
}

// SubmitRequest is a publish request deferred to ScheduledTime.
type SubmitRequest struct {
	Message       string
	Image         string
	ScheduledTime time.Time
	Credentials   *domain.Credentials
}

// Scheduler owns the scheduled post list and the polling loop that drains it.
type Scheduler struct {
	pollInterval time.Duration
	enabled      bool
	store        snapshot
	publisher    deliverer
	fallback     *domain.Credentials
	logger       *slog.Logger
	idGen        func() string
	now          func() time.Time

	mu        sync.RWMutex
	posts     []*domain.ScheduledPost
	lastKnown *domain.Credentials
	state     State
	lastPoll  time.Time
	lastError string

	// pollMu keeps passes from overlapping.
	pollMu   sync.Mutex
	checkNow chan struct{}
}

// New creates a scheduler persisting to path and loads any existing snapshot.
// fallback holds the environment-level credentials used as a last resort.
// A configured snapshot key seals the file at rest.
func New(cfg config.SchedulerConfig, path string, pub deliverer, fallback *domain.Credentials, logger *slog.Logger) (*Scheduler, error) {
	store := snapshot{path: path}
	if cfg.SnapshotKey != "" {
		sealer, err := crypto.NewSealer(cfg.SnapshotKey)
		if err != nil {
			return nil, err
		}
		store.sealer = sealer
	}

	posts, err := store.load()
	if err != nil {
		return nil, err
	}

	s := &Scheduler{
		pollInterval: cfg.PollInterval,
		enabled:      cfg.Enabled,
		store:        store,
		publisher:    pub,
		fallback:     fallback,
		logger:       logger,
		idGen:        func() string { return ulid.Make().String() },
		now:          time.Now,
		posts:        posts,
		state:        StateIdle,
		checkNow:     make(chan struct{}, 1),
	}

	// seed the credential cache from the newest snapshot that has a token
	for i := len(posts) - 1; i >= 0; i-- {
		if posts[i].Credentials.HasToken() {
			s.lastKnown = posts[i].Credentials.Clone()
			break
		}
	}

	if len(posts) > 0 {
		logger.Info("loaded scheduled posts", "count", len(posts), "path", path)
	}
	return s, nil
}

// Submit stores a new pending post and persists the list.
func (s *Scheduler) Submit(req SubmitRequest) (*domain.ScheduledPost, error) {
	if req.ScheduledTime.IsZero() {
		return nil, domain.ErrScheduledTimeRequired
	}

	post := domain.NewScheduledPost(domain.PostID(s.idGen()), req.Message, req.Image, req.ScheduledTime.UTC(), req.Credentials)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.posts = append(s.posts, post)
	if err := s.store.save(s.posts); err != nil {
		s.posts = s.posts[:len(s.posts)-1]
		return nil, fmt.Errorf("persist scheduled posts: %w", err)
	}
	if req.Credentials.HasToken() {
		s.lastKnown = req.Credentials.Clone()
	}

	s.logger.Info("post scheduled",
		"post_id", post.ID,
		"scheduled_time", post.ScheduledTime,
		"channel_choice", post.ChannelChoice,
	)

	cp := *post
	return &cp, nil
}

// Remove deletes a post regardless of its status and persists the list.
func (s *Scheduler) Remove(id domain.PostID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := slices.IndexFunc(s.posts, func(p *domain.ScheduledPost) bool { return p.ID == id })
	if idx < 0 {
		return domain.ErrPostNotFound
	}

	removed := s.posts[idx]
	s.posts = slices.Delete(s.posts, idx, idx+1)
	if err := s.store.save(s.posts); err != nil {
		s.posts = slices.Insert(s.posts, idx, removed)
		return fmt.Errorf("persist scheduled posts: %w", err)
	}

	s.logger.Info("scheduled post removed", "post_id", id)
	return nil
}

// Get returns a copy of the post with id.
func (s *Scheduler) Get(id domain.PostID) (*domain.ScheduledPost, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.posts {
		if p.ID == id {
			cp := *p
			return &cp, nil
		}
	}
	return nil, domain.ErrPostNotFound
}

// Posts returns copies of every post in submission order.
func (s *Scheduler) Posts() []domain.ScheduledPost {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.ScheduledPost, 0, len(s.posts))
	for _, p := range s.posts {
		out = append(out, *p)
	}
	return out
}

// Pending returns copies of the posts still waiting for delivery.
func (s *Scheduler) Pending() []domain.ScheduledPost {
	var out []domain.ScheduledPost
	for _, p := range s.Posts() {
		if p.Status == domain.PostStatusPending {
			out = append(out, p)
		}
	}
	return out
}

// State returns the current loop state.
func (s *Scheduler) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// LastPoll returns the time the last pass started.
func (s *Scheduler) LastPoll() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastPoll
}

// LastError returns the last persistence error, if any.
func (s *Scheduler) LastError() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastError
}

// CheckNow triggers an immediate pass (non-blocking). It reports false when
// the loop is not running.
func (s *Scheduler) CheckNow() bool {
	if s.State() != StateRunning {
		return false
	}

	select {
	case s.checkNow <- struct{}{}:
		s.logger.Info("scheduler check-now triggered")
	default:
		// pass already pending
	}
	return true
}

// Start runs one pass immediately, then one per poll interval until ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	if !s.enabled {
		s.logger.Info("scheduler disabled")
		return
	}

	s.mu.Lock()
	s.state = StateRunning
	s.mu.Unlock()

	s.logger.Info("starting scheduler", "poll_interval", s.pollInterval.String())

	s.Poll(ctx)

	t := time.NewTicker(s.pollInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			s.state = StateIdle
			s.mu.Unlock()
			s.logger.Info("scheduler stopped")
			return
		case <-s.checkNow:
			s.Poll(ctx)
		case <-t.C:
			s.Poll(ctx)
		}
	}
}

// Poll delivers every pending post whose time has come. Each outcome is
// persisted before the next post is attempted. Passes never overlap.
func (s *Scheduler) Poll(ctx context.Context) {
	s.pollMu.Lock()
	defer s.pollMu.Unlock()

	now := s.now()

	s.mu.Lock()
	s.lastPoll = now
	var due []domain.ScheduledPost
	for _, p := range s.posts {
		if p.IsDue(now) {
			due = append(due, *p)
		}
	}
	s.mu.Unlock()

	for _, post := range due {
		if ctx.Err() != nil {
			return
		}
		s.publish(ctx, post)
	}
}

func (s *Scheduler) publish(ctx context.Context, post domain.ScheduledPost) {
	creds := s.resolveCredentials(post.Credentials)
	n, deliverErr := s.publisher.Deliver(ctx, creds, post.ChannelChoice, post.Message, post.Image)
	if deliverErr != nil && ctx.Err() != nil {
		// shutting down; the post stays pending for the next start
		s.logger.Warn("scheduled post delivery interrupted", "post_id", post.ID, "error", deliverErr)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := slices.IndexFunc(s.posts, func(p *domain.ScheduledPost) bool { return p.ID == post.ID })
	if idx < 0 {
		// removed while delivering
		return
	}
	stored := s.posts[idx]

	if deliverErr != nil {
		stored.MarkFailed(deliverErr.Error())
		s.logger.Error("scheduled post failed", "post_id", post.ID, "error", deliverErr)
	} else {
		stored.MarkPublished(s.now().UTC())
		s.logger.Info("scheduled post published", "post_id", post.ID, "channels", n)
	}

	if err := s.store.save(s.posts); err != nil {
		s.lastError = err.Error()
		s.logger.Error("failed to persist scheduled posts", "error", err)
		return
	}
	s.lastError = ""
}

// resolveCredentials picks the post's own snapshot, then the last known
// credentials, then the environment fallback.
func (s *Scheduler) resolveCredentials(snapshot *domain.Credentials) *domain.Credentials {
	if snapshot.HasToken() {
		return snapshot
	}

	s.mu.RLock()
	lastKnown := s.lastKnown.Clone()
	s.mu.RUnlock()

	if lastKnown.HasToken() {
		return lastKnown
	}
	if s.fallback.HasToken() {
		return s.fallback
	}
	return nil
}
