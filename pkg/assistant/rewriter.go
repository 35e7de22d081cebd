package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/iconidentify/aliaff/internal/domain"
)

// Method reports how a result was produced.
type Method string

const (
	MethodAI       Method = "ai"
	MethodFallback Method = "fallback"
)

// Result is rewritten text and the way it was produced.
type Result struct {
	Text   string `json:"text"`
	Method Method `json:"method"`
}

// Status describes the key pool.
type Status struct {
	Available bool `json:"available"`
	Keys      int  `json:"keys"`
	Index     int  `json:"current_index"`
}

// Rewriter refines titles and writes intro hooks. It never fails: any model
// error falls back to local rules.
type Rewriter struct {
	pool   *KeyPool
	gen    Generator
	logger *slog.Logger
}

// NewRewriter creates a rewriter drawing keys from pool.
func NewRewriter(pool *KeyPool, gen Generator, logger *slog.Logger) *Rewriter {
	return &Rewriter{pool: pool, gen: gen, logger: logger}
}

// Pool returns the key pool.
func (r *Rewriter) Pool() *KeyPool {
	return r.pool
}

// Status reports whether a model can be called.
func (r *Rewriter) Status() Status {
	n := r.pool.Len()
	return Status{Available: n > 0, Keys: n, Index: r.pool.Index()}
}

// Run sends prompt with the current key. On a quota error it rotates to the
// next key and tries again, at most once per key in the pool.
func (r *Rewriter) Run(ctx context.Context, prompt string) (string, error) {
	attempts := r.pool.Len()
	if attempts == 0 {
		return "", domain.ErrAssistantUnavailable
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		text, err := r.gen.Generate(ctx, r.pool.Current(), prompt)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if !errors.Is(err, domain.ErrQuotaExceeded) {
			return "", err
		}
		r.logger.Warn("assistant quota exceeded, rotating key", "attempt", i+1, "keys", attempts)
		if !r.pool.Rotate() {
			break
		}
	}
	return "", fmt.Errorf("all assistant keys exhausted: %w", lastErr)
}

// RefineTitle shortens a listing title into an attractive headline in the
// same language.
func (r *Rewriter) RefineTitle(ctx context.Context, title string) Result {
	prompt := `You write deal posts for a Telegram shopping channel.
Rewrite the product title below so it is short, clear and attractive.

Rules:
1. Answer in the same language as the title.
2. Drop filler such as years, "Global Version", "Free Shipping" and store names.
3. Keep the product name and its single most important feature.
4. Use at most 10 words.
5. No emojis.
6. Reply with the title only.

Title: ` + title

	text, err := r.Run(ctx, prompt)
	if err != nil {
		r.logger.Info("title refine fell back", "error", err)
		return Result{Text: CleanupTitle(title), Method: MethodFallback}
	}
	if text = stripMarkup(text); text == "" {
		text = title
	}
	return Result{Text: text, Method: MethodAI}
}

// RefineHook lightly polishes an existing intro line, keeping its meaning.
func (r *Rewriter) RefineHook(ctx context.Context, hook string) Result {
	prompt := `Lightly polish the intro line below.

Rules:
- Keep the same meaning and tone.
- Fix spelling mistakes.
- Do not rewrite it completely.
- No emojis.
- Reply with the line only.

Line: ` + hook

	text, err := r.Run(ctx, prompt)
	if err != nil {
		r.logger.Info("hook refine fell back", "error", err)
		return Result{Text: CleanupTitle(hook), Method: MethodFallback}
	}
	if text = stripMarkup(text); text == "" {
		text = hook
	}
	return Result{Text: text, Method: MethodAI}
}

// Hook writes a one-line friendly intro for a product post.
func (r *Rewriter) Hook(ctx context.Context, title, price string) Result {
	var b strings.Builder
	b.WriteString(`Write a short, friendly intro line for a Telegram deal post.

Rules:
- One line of 5 to 10 words.
- Sound like a friend sharing a find.
- Do not mention the product name or the price.
- No emojis.
- Reply with the line only.

Product: `)
	b.WriteString(title)
	if price != "" {
		b.WriteString("\nPrice: " + price)
	}

	text, err := r.Run(ctx, b.String())
	if err != nil {
		r.logger.Info("hook generation fell back", "error", err)
		return Result{Text: randomHook(), Method: MethodFallback}
	}
	if text = stripMarkup(text); text == "" {
		return Result{Text: randomHook(), Method: MethodFallback}
	}
	return Result{Text: text, Method: MethodAI}
}
