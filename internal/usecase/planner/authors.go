package planner

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"

	"post-drip-bot/internal/domain"
)

const (
	optionRotation       = "drip_author_rotation"
	rotationSaveAttempts = 3
)

// authorPicker выбирает автора для каждой записи в рамках одного запуска.
// Список подходящих пользователей снимается один раз в начале запуска.
type authorPicker struct {
	cfg       domain.SchedulingConfig
	authors   []domain.Author
	preserved map[int64]bool
	rng       *rand.Rand
	opts      domain.OptionRepo
}

func newAuthorPicker(ctx context.Context, cfg domain.SchedulingConfig, repo domain.AuthorRepo, opts domain.OptionRepo, rng *rand.Rand) (*authorPicker, error) {
	picker := &authorPicker{cfg: cfg, rng: rng, opts: opts, preserved: map[int64]bool{}}
	for _, id := range cfg.PreservedAuthorIDs {
		picker.preserved[id] = true
	}
	if !cfg.RandomizeAuthors {
		return picker, nil
	}

	excluded := make([]int64, 0, len(cfg.ExcludedAuthorIDs)+len(cfg.PreservedAuthorIDs))
	excluded = append(excluded, cfg.ExcludedAuthorIDs...)
	excluded = append(excluded, cfg.PreservedAuthorIDs...)
	authors, err := repo.ListEligibleAuthors(ctx, cfg.EligibleRoles, excluded)
	if err != nil {
		return picker, fmt.Errorf("выборка авторов: %w", err)
	}
	picker.authors = authors
	return picker, nil
}

// Resolve возвращает автора для записи. Любой сбой разрешается в пользу
// исходного автора: назначение авторов не должно срывать планирование.
func (p *authorPicker) Resolve(ctx context.Context, post domain.Post) (int64, error) {
	if !p.cfg.RandomizeAuthors || len(p.authors) == 0 {
		return post.AuthorID, nil
	}
	if p.preserved[post.AuthorID] {
		return post.AuthorID, nil
	}

	switch p.cfg.Strategy {
	case domain.AssignmentRoundRobin:
		return p.resolveRoundRobin(ctx, post)
	default:
		return p.resolveRandom(post), nil
	}
}

// resolveRandom выбирает равновероятно из всех кандидатов, кроме текущего
// автора записи. Без альтернатив остаётся исходный автор.
func (p *authorPicker) resolveRandom(post domain.Post) int64 {
	candidates := make([]domain.Author, 0, len(p.authors))
	for _, a := range p.authors {
		if a.ID != post.AuthorID {
			candidates = append(candidates, a)
		}
	}
	if len(candidates) == 0 {
		return post.AuthorID
	}
	return candidates[p.rng.Intn(len(candidates))].ID
}

// resolveRoundRobin читает сохранённый индекс ротации, берёт автора по нему и
// продвигает индекс на единицу по модулю длины списка. Индекс защитно
// ограничивается: список мог сократиться между запусками.
func (p *authorPicker) resolveRoundRobin(ctx context.Context, post domain.Post) (int64, error) {
	for attempt := 0; attempt < rotationSaveAttempts; attempt++ {
		raw, ok, err := p.opts.GetOption(ctx, optionRotation)
		if err != nil {
			return post.AuthorID, fmt.Errorf("чтение индекса ротации: %w", err)
		}

		idx := 0
		if ok {
			if parsed, err := strconv.Atoi(raw); err == nil {
				idx = parsed
			}
		}
		if idx < 0 || idx >= len(p.authors) {
			idx = 0
		}
		next := strconv.Itoa((idx + 1) % len(p.authors))

		if !ok {
			if err := p.opts.SetOption(ctx, optionRotation, next); err != nil {
				return post.AuthorID, fmt.Errorf("сохранение индекса ротации: %w", err)
			}
			return p.authors[idx].ID, nil
		}

		swapped, err := p.opts.CompareAndSwapOption(ctx, optionRotation, raw, next)
		if err != nil {
			return post.AuthorID, fmt.Errorf("сохранение индекса ротации: %w", err)
		}
		if swapped {
			return p.authors[idx].ID, nil
		}
		// Индекс успел измениться параллельным запуском — перечитываем.
	}
	return post.AuthorID, fmt.Errorf("индекс ротации: не удалось обновить за %d попыток", rotationSaveAttempts)
}
