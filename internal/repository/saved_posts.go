package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"                                // Postgres driver
	_ "github.com/tursodatabase/libsql-client-go/libsql" // Turso driver
	_ "modernc.org/sqlite"                               // Local SQLite driver

	"github.com/iconidentify/aliaff/internal/domain"
)

// DefaultSavedPostLimit caps the number of saved posts kept.
const DefaultSavedPostLimit = 50

// SavedPostRepository keeps composed posts in a SQL database.
// The newest posts are kept up to the configured limit.
type SavedPostRepository struct {
	db     *sql.DB
	driver string
	limit  int
	now    func() time.Time
}

// DriverFor picks the database/sql driver name for a DSN.
func DriverFor(dsn string) string {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return "postgres"
	case strings.Contains(dsn, "libsql://"), strings.Contains(dsn, "wss://"):
		return "libsql"
	default:
		return "sqlite"
	}
}

// NewSavedPostRepository opens dsn, applies the schema and returns the repository.
func NewSavedPostRepository(ctx context.Context, dsn string, limit int) (*SavedPostRepository, error) {
	if limit <= 0 {
		limit = DefaultSavedPostLimit
	}
	driver := DriverFor(dsn)

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == "sqlite" {
		// single writer avoids SQLITE_BUSY on concurrent adds
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}

	r := &SavedPostRepository{db: db, driver: driver, limit: limit, now: time.Now}
	if err := r.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

func (r *SavedPostRepository) migrate(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS saved_posts (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL DEFAULT '',
		price TEXT NOT NULL DEFAULT '',
		link TEXT NOT NULL DEFAULT '',
		coupon TEXT NOT NULL DEFAULT '',
		image TEXT NOT NULL DEFAULT '',
		message TEXT NOT NULL DEFAULT '',
		hook TEXT NOT NULL DEFAULT '',
		created_at BIGINT NOT NULL
	)`
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create saved_posts: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_saved_posts_created_at ON saved_posts(created_at)`); err != nil {
		return fmt.Errorf("create saved_posts index: %w", err)
	}
	return nil
}

// Ping checks the database is reachable.
func (r *SavedPostRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close releases the database handle.
func (r *SavedPostRepository) Close() error {
	return r.db.Close()
}

// List returns saved posts newest first.
func (r *SavedPostRepository) List(ctx context.Context) ([]domain.SavedPost, error) {
	rows, err := r.db.QueryContext(ctx, r.rebind(`
		SELECT id, title, price, link, coupon, image, message, hook, created_at
		FROM saved_posts ORDER BY created_at DESC, id DESC LIMIT ?`), r.limit)
	if err != nil {
		return nil, fmt.Errorf("list saved posts: %w", err)
	}
	defer rows.Close()

	posts := []domain.SavedPost{}
	for rows.Next() {
		var (
			p       domain.SavedPost
			created int64
		)
		if err := rows.Scan(&p.ID, &p.Title, &p.Price, &p.Link, &p.Coupon, &p.Image, &p.Message, &p.Hook, &created); err != nil {
			return nil, fmt.Errorf("scan saved post: %w", err)
		}
		p.CreatedAt = time.UnixMilli(created).UTC()
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

// Add stores post unless a post with the same id exists. It reports whether
// a row was created. An empty id is replaced with a random one.
func (r *SavedPostRepository) Add(ctx context.Context, post *domain.SavedPost) (bool, error) {
	if post.ID == "" {
		post.ID = uuid.NewString()
	}
	if post.CreatedAt.IsZero() {
		post.CreatedAt = r.now().UTC()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, r.rebind(`SELECT 1 FROM saved_posts WHERE id = ?`), post.ID).Scan(&exists)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("check saved post: %w", err)
	}

	_, err = tx.ExecContext(ctx, r.rebind(`
		INSERT INTO saved_posts (id, title, price, link, coupon, image, message, hook, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		post.ID, post.Title, post.Price, post.Link, post.Coupon, post.Image, post.Message, post.Hook,
		post.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return false, fmt.Errorf("insert saved post: %w", err)
	}

	_, err = tx.ExecContext(ctx, r.rebind(`
		DELETE FROM saved_posts WHERE id NOT IN (
			SELECT id FROM saved_posts ORDER BY created_at DESC, id DESC LIMIT ?
		)`), r.limit)
	if err != nil {
		return false, fmt.Errorf("trim saved posts: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return true, nil
}

// Delete removes the post with id.
func (r *SavedPostRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, r.rebind(`DELETE FROM saved_posts WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete saved post: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete saved post: %w", err)
	}
	if n == 0 {
		return domain.ErrSavedPostNotFound
	}
	return nil
}

// Clear removes every saved post.
func (r *SavedPostRepository) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM saved_posts`); err != nil {
		return fmt.Errorf("clear saved posts: %w", err)
	}
	return nil
}

// rebind rewrites ? placeholders to $N for postgres.
func (r *SavedPostRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, c := range query {
		if c == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}
