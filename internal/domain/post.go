package domain

import (
	"strings"
	"time"
)

// PostID is a unique identifier for a scheduled post.
type PostID string

// String returns the string representation of the PostID.
func (id PostID) String() string {
	return string(id)
}

// PostStatus represents the delivery state of a scheduled post.
type PostStatus string

const (
	PostStatusPending   PostStatus = "pending"
	PostStatusPublished PostStatus = "published"
	PostStatusFailed    PostStatus = "failed"
)

// IsTerminal returns true if no further transition is allowed.
func (s PostStatus) IsTerminal() bool {
	return s == PostStatusPublished || s == PostStatusFailed
}

// ChannelChoice selects which configured channel(s) a post goes to.
type ChannelChoice string

const (
	ChannelFirst  ChannelChoice = "1"
	ChannelSecond ChannelChoice = "2"
	ChannelBoth   ChannelChoice = "both"
)

// Valid returns true if the choice is one of the known values.
func (c ChannelChoice) Valid() bool {
	return c == ChannelFirst || c == ChannelSecond || c == ChannelBoth
}

// Credentials is the delivery and affiliate credential set a caller supplies.
type Credentials struct {
	TelegramToken string        `json:"telegram_token,omitempty"`
	ChannelID     string        `json:"channel_id,omitempty"`
	ChannelID2    string        `json:"channel_id_2,omitempty"`
	ChannelChoice ChannelChoice `json:"channel_choice,omitempty"`
	Cookie        string        `json:"cookie,omitempty"`
}

// HasToken reports whether the credentials can authenticate a delivery.
func (c *Credentials) HasToken() bool {
	return c != nil && strings.TrimSpace(c.TelegramToken) != ""
}

// Clone returns a copy safe to embed in a post.
func (c *Credentials) Clone() *Credentials {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}

// ScheduledPost is a publish request deferred to a target time.
type ScheduledPost struct {
	ID            PostID        `json:"id"`
	Message       string        `json:"message"`
	Image         string        `json:"image,omitempty"`
	ScheduledTime time.Time     `json:"scheduled_time"`
	ChannelChoice ChannelChoice `json:"channel_choice"`
	Credentials   *Credentials  `json:"credentials,omitempty"`
	Status        PostStatus    `json:"status"`
	CreatedAt     time.Time     `json:"created_at"`
	PublishedAt   *time.Time    `json:"published_at,omitempty"`
	Error         string        `json:"error,omitempty"`
}

// NewScheduledPost creates a pending post. The credentials are copied.
func NewScheduledPost(id PostID, message, image string, at time.Time, creds *Credentials) *ScheduledPost {
	choice := ChannelBoth
	if creds != nil && creds.ChannelChoice.Valid() {
		choice = creds.ChannelChoice
	}
	return &ScheduledPost{
		ID:            id,
		Message:       message,
		Image:         image,
		ScheduledTime: at,
		ChannelChoice: choice,
		Credentials:   creds.Clone(),
		Status:        PostStatusPending,
		CreatedAt:     time.Now().UTC(),
	}
}

// IsDue returns true if the post is pending and its time has come.
func (p *ScheduledPost) IsDue(now time.Time) bool {
	return p.Status == PostStatusPending && !p.ScheduledTime.After(now)
}

// MarkPublished moves a pending post to published.
// It returns false and leaves the post untouched if the post is not pending.
func (p *ScheduledPost) MarkPublished(at time.Time) bool {
	if p.Status != PostStatusPending {
		return false
	}
	p.Status = PostStatusPublished
	p.PublishedAt = &at
	p.Error = ""
	return true
}

// MarkFailed moves a pending post to failed with an error message.
// It returns false and leaves the post untouched if the post is not pending.
func (p *ScheduledPost) MarkFailed(err string) bool {
	if p.Status != PostStatusPending {
		return false
	}
	p.Status = PostStatusFailed
	p.Error = err
	return true
}

// SavedPost is a composed post kept for later reuse.
type SavedPost struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Price     string    `json:"price,omitempty"`
	Link      string    `json:"link,omitempty"`
	Coupon    string    `json:"coupon,omitempty"`
	Image     string    `json:"image,omitempty"`
	Message   string    `json:"message,omitempty"`
	Hook      string    `json:"hook,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
