package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"post-drip-bot/internal/domain"
	"post-drip-bot/internal/infra/metrics"
)

// Postgres реализует репозитории на основе pgxpool.
type Postgres struct {
	pool *pgxpool.Pool
}

var _ domain.PostRepo = (*Postgres)(nil)
var _ domain.AuthorRepo = (*Postgres)(nil)
var _ domain.OptionRepo = (*Postgres)(nil)

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) connCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}

func (p *Postgres) connCtxWithParent(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		return p.connCtx()
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

// ListEligible возвращает записи с указанным статусом в порядке создания.
func (p *Postgres) ListEligible(ctx context.Context, status string) ([]domain.Post, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id, title, status, author_id, created_at, COALESCE(publish_at, 'epoch'::timestamptz)
FROM posts
WHERE status = $1
ORDER BY created_at ASC, id ASC
`, status)
	metrics.ObserveNetworkRequest("postgres", "posts_list_eligible", "posts", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var posts []domain.Post
	for rows.Next() {
		var post domain.Post
		if err := rows.Scan(&post.ID, &post.Title, &post.Status, &post.AuthorID, &post.CreatedAt, &post.PublishAt); err != nil {
			return nil, err
		}
		posts = append(posts, post)
	}
	return posts, rows.Err()
}

// ListScheduledTimes возвращает времена отложенных записей за календарный день.
// Границы дня передаются в поясе площадки: day — полночь нужной даты.
func (p *Postgres) ListScheduledTimes(ctx context.Context, day time.Time) ([]time.Time, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	from := day
	to := day.AddDate(0, 0, 1)

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT publish_at
FROM posts
WHERE status = $1 AND publish_at >= $2 AND publish_at < $3
ORDER BY publish_at ASC
`, domain.PostStatusScheduled, from, to)
	metrics.ObserveNetworkRequest("postgres", "posts_list_scheduled_times", "posts", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var times []time.Time
	for rows.Next() {
		var t time.Time
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		times = append(times, t)
	}
	return times, rows.Err()
}

// LatestScheduledDate возвращает самую дальнюю дату отложенной публикации.
func (p *Postgres) LatestScheduledDate(ctx context.Context) (time.Time, bool, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	var latest sql.NullTime
	err := p.pool.QueryRow(ctx, `
SELECT max(publish_at) FROM posts WHERE status = $1
`, domain.PostStatusScheduled).Scan(&latest)
	metrics.ObserveNetworkRequest("postgres", "posts_latest_scheduled", "posts", start, err)
	if err != nil {
		return time.Time{}, false, err
	}
	if !latest.Valid {
		return time.Time{}, false, nil
	}
	return latest.Time, true, nil
}

// SchedulePost переводит запись в статус отложенной публикации.
func (p *Postgres) SchedulePost(ctx context.Context, postID int64, publishAt time.Time, authorID int64) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `
UPDATE posts
SET status = $2, publish_at = $3, author_id = $4, updated_at = now()
WHERE id = $1
`, postID, domain.PostStatusScheduled, publishAt, authorID)
	metrics.ObserveNetworkRequest("postgres", "posts_schedule", "posts", start, err)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("запись %d не найдена", postID)
	}
	return nil
}

// GetPost возвращает запись по идентификатору.
func (p *Postgres) GetPost(ctx context.Context, postID int64) (domain.Post, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	var post domain.Post
	err := p.pool.QueryRow(ctx, `
SELECT id, title, status, author_id, created_at, COALESCE(publish_at, 'epoch'::timestamptz)
FROM posts WHERE id = $1
`, postID).Scan(&post.ID, &post.Title, &post.Status, &post.AuthorID, &post.CreatedAt, &post.PublishAt)
	metrics.ObserveNetworkRequest("postgres", "posts_get", "posts", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Post{}, fmt.Errorf("запись %d не найдена", postID)
	}
	return post, err
}

// ListEligibleAuthors реализует domain.AuthorRepo: пользователи с одной из ролей,
// кроме исключённых.
func (p *Postgres) ListEligibleAuthors(ctx context.Context, roles []string, excluded []int64) ([]domain.Author, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	if excluded == nil {
		excluded = []int64{}
	}

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id, name, role
FROM users
WHERE role = ANY($1) AND NOT (id = ANY($2))
ORDER BY id ASC
`, roles, excluded)
	metrics.ObserveNetworkRequest("postgres", "users_list_eligible", "users", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var authors []domain.Author
	for rows.Next() {
		var a domain.Author
		if err := rows.Scan(&a.ID, &a.Name, &a.Role); err != nil {
			return nil, err
		}
		authors = append(authors, a)
	}
	return authors, rows.Err()
}
