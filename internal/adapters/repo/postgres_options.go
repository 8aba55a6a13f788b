package repo

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"post-drip-bot/internal/infra/metrics"
)

// GetOption возвращает значение настройки по ключу.
// Второе значение — признак наличия ключа.
func (p *Postgres) GetOption(ctx context.Context, key string) (string, bool, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	var value string
	err := p.pool.QueryRow(ctx, `SELECT value FROM options WHERE key = $1`, key).Scan(&value)
	metrics.ObserveNetworkRequest("postgres", "options_get", "options", start, err)
	if err == pgx.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// SetOption сохраняет значение настройки (upsert).
func (p *Postgres) SetOption(ctx context.Context, key, value string) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO options (key, value, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()
`, key, value)
	metrics.ObserveNetworkRequest("postgres", "options_set", "options", start, err)
	return err
}

// CompareAndSwapOption записывает новое значение, только если текущее
// совпадает с ожидаемым. Возвращает false при расхождении.
func (p *Postgres) CompareAndSwapOption(ctx context.Context, key, old, value string) (bool, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `
UPDATE options SET value = $3, updated_at = now()
WHERE key = $1 AND value = $2
`, key, old, value)
	metrics.ObserveNetworkRequest("postgres", "options_cas", "options", start, err)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
