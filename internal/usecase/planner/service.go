package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"post-drip-bot/internal/domain"
	"post-drip-bot/internal/infra/metrics"
)

const (
	optionLastRunAt      = "drip_last_run_at"
	optionLastRunSummary = "drip_last_run"

	// SafetyBufferMinutes — минимальный запас между «сейчас» и временем
	// публикации: слот ближе этой границы не сохраняется.
	SafetyBufferMinutes = 30

	// placementStrikes: после неудачи генератора день сменяется и попытка
	// повторяется с чистого листа; вторая неудача — ошибка уровня записи.
	placementStrikes = 2
)

// Service — оркестратор планирования. Все зависимости передаются при
// создании, чтобы в тестах подставлялись реализации в памяти.
type Service struct {
	posts   domain.PostRepo
	authors domain.AuthorRepo
	opts    domain.OptionRepo
	clock   domain.Clock
	rng     *rand.Rand
	logger  zerolog.Logger
}

var _ domain.ScheduleService = (*Service)(nil)

// NewService создаёт оркестратор.
func NewService(posts domain.PostRepo, authors domain.AuthorRepo, opts domain.OptionRepo, clock domain.Clock, rng *rand.Rand, logger zerolog.Logger) *Service {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Service{posts: posts, authors: authors, opts: opts, clock: clock, rng: rng, logger: logger}
}

// dayState — занятость одного дня. Собирается заново из хранилища при каждом
// обращении к дню: между запусками ничего не кэшируется, внешние изменения
// расписания должны быть видны.
type dayState struct {
	date        time.Time
	used        []int
	preexisting int
	added       int
}

func (d *dayState) count() int { return d.preexisting + d.added }

// runState — изменяемое состояние одного запуска.
type runState struct {
	rc      runConfig
	now     time.Time
	day     *dayState
	touched []*dayState
	picker  *authorPicker
	result  *domain.RunResult
}

// RunSchedule выполняет один проход планирования. Наружу всегда возвращается
// корректно заполненный RunResult: ни одна ошибка не покидает эту точку входа
// в виде паники или необработанного сбоя.
func (s *Service) RunSchedule(ctx context.Context, cause domain.RunCause) domain.RunResult {
	started := s.clock.Now()
	result := domain.RunResult{Cause: cause, StartedAt: started}

	fail := func(msg string) domain.RunResult {
		result.Success = false
		result.Status = domain.RunStatusFailed
		result.Message = msg
		result.FinishedAt = s.clock.Now()
		metrics.ObserveRun(string(cause), domain.RunStatusFailed, time.Since(started))
		s.logger.Error().Str("cause", string(cause)).Msg("планировщик: " + msg)
		return result
	}

	cfg, err := LoadConfig(ctx, s.opts)
	if err != nil {
		return fail(err.Error())
	}
	rc, err := prepareConfig(cfg)
	if err != nil {
		return fail(err.Error())
	}

	eligible, err := s.posts.ListEligible(ctx, rc.MonitoredStatus)
	if err != nil {
		return fail(fmt.Sprintf("выборка записей: %v", err))
	}
	if len(eligible) == 0 {
		// Короткое замыкание без единого изменения состояния: повторный
		// запуск на пустом пуле идемпотентен.
		result.Success = false
		result.Status = domain.RunStatusEmpty
		result.Message = "нет записей для планирования"
		result.FinishedAt = s.clock.Now()
		metrics.ObserveRun(string(cause), domain.RunStatusEmpty, time.Since(started))
		return result
	}

	ledger := NewDeficitLedger(s.opts, s.clock)
	if err := ledger.Load(ctx); err != nil {
		return fail(err.Error())
	}

	picker, err := newAuthorPicker(ctx, rc.SchedulingConfig, s.authors, s.opts, s.rng)
	if err != nil {
		s.logger.Warn().Err(err).Msg("планировщик: авторы недоступны, записи сохранят исходных авторов")
	}

	now := s.clock.Now()
	startDay, completedPrior, err := s.determineStart(ctx, rc, now)
	if err != nil {
		return fail(err.Error())
	}
	result.CompletedPriorDay = completedPrior

	st := &runState{
		rc:      rc,
		now:     now,
		day:     startDay,
		touched: []*dayState{startDay},
		picker:  picker,
		result:  &result,
	}

	// BACKFILL_DEFICITS: сперва добираем самые старые недоборы, снимая записи
	// с начала очереди, и только потом раздаём будущие дни.
	queueIdx := 0
	for _, entry := range ledger.OldestFirst() {
		if queueIdx >= len(eligible) {
			break
		}
		deficitDate, perr := time.ParseInLocation(dateLayout, entry.Date, s.clock.Location())
		if perr != nil {
			ledger.ClearKey(entry.Date)
			continue
		}
		remaining := entry.Shortfall
		for remaining > 0 && queueIdx < len(eligible) {
			post := eligible[queueIdx]
			queueIdx++
			if s.placePost(ctx, st, post, false) {
				remaining--
			}
		}
		if remaining <= 0 {
			ledger.Clear(deficitDate)
		} else {
			ledger.Record(deficitDate, remaining)
		}
	}

	// DISTRIBUTE_FUTURE: оставшиеся записи раскладываются по активным дням
	// с соблюдением квоты.
	for ; queueIdx < len(eligible); queueIdx++ {
		s.placePost(ctx, st, eligible[queueIdx], true)
	}

	// Затронутые дни не позже сегодняшнего переоцениваются: недобор
	// вычисляется заново, а не накапливается.
	today := truncateToDay(now)
	for _, d := range st.touched {
		if !d.date.After(today) {
			ledger.Record(d.date, rc.PostsPerDay-d.count())
		}
	}
	if err := ledger.Save(ctx); err != nil {
		result.Errors = append(result.Errors, err.Error())
		s.logger.Error().Err(err).Msg("планировщик: недоборы не сохранены")
	}
	metrics.SetDeficitOutstanding(ledger.Total())

	result.FinishedAt = s.clock.Now()
	failures := len(result.Errors)
	switch {
	case result.ScheduledCount == 0:
		result.Success = false
		result.Status = domain.RunStatusFailed
		result.Message = fmt.Sprintf("не удалось обработать ни одну запись (ошибок: %d)", failures)
	case failures > 0:
		result.Success = true
		result.Status = domain.RunStatusPartial
		result.Message = fmt.Sprintf("запланировано записей: %d, пропущено из-за ошибок: %d", result.ScheduledCount, failures)
	default:
		result.Success = true
		result.Status = domain.RunStatusDone
		result.Message = fmt.Sprintf("запланировано записей: %d", result.ScheduledCount)
	}
	metrics.ObserveRun(string(cause), result.Status, time.Since(started))
	metrics.AddScheduledPosts(result.ScheduledCount)

	s.recordRunSummary(ctx, result)
	return result
}

// determineStart выбирает день, с которого продолжается расписание: самый
// дальний уже запланированный день, если он не добит до квоты; иначе первый
// активный день после него. Дата в прошлом считается отсутствующей.
func (s *Service) determineStart(ctx context.Context, rc runConfig, now time.Time) (*dayState, bool, error) {
	today := truncateToDay(now)

	latest, ok, err := s.posts.LatestScheduledDate(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("последняя запланированная дата: %w", err)
	}
	if ok {
		// Хранилище отдаёт момент времени; календарный день существует
		// только в зоне сайта.
		local := latest.In(s.clock.Location())
		day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.clock.Location())
		if !day.Before(today) {
			state, err := s.loadDay(ctx, day)
			if err != nil {
				return nil, false, err
			}
			if state.count() < rc.PostsPerDay {
				return state, true, nil
			}
			next, err := s.loadDay(ctx, NextActiveDate(day, rc.active))
			return next, false, err
		}
	}

	todayState, err := s.loadDay(ctx, today)
	if err != nil {
		return nil, false, err
	}
	if TodayUsable(now, rc.active, rc.startMin, rc.endMin, SafetyBufferMinutes, rc.MinIntervalMinutes, todayState.used, rc.PostsPerDay) {
		return todayState, false, nil
	}
	next, err := s.loadDay(ctx, NextActiveDate(today, rc.active))
	return next, false, err
}

// loadDay пересобирает занятость дня из хранилища.
func (s *Service) loadDay(ctx context.Context, date time.Time) (*dayState, error) {
	times, err := s.posts.ListScheduledTimes(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("занятость дня %s: %w", date.Format(dateLayout), err)
	}
	state := &dayState{date: date, preexisting: len(times)}
	for _, t := range times {
		local := t.In(s.clock.Location())
		state.used = append(state.used, local.Hour()*60+local.Minute())
	}
	return state, nil
}

// advanceDay переводит курсор на следующий активный день с чистым набором слотов.
func (s *Service) advanceDay(ctx context.Context, st *runState) error {
	next, err := s.loadDay(ctx, NextActiveDate(st.day.date, st.rc.active))
	if err != nil {
		return err
	}
	st.day = next
	st.touched = append(st.touched, next)
	return nil
}

// placePost проводит одну запись через размещение слота, выбор автора,
// сохранение и проверку сохранённого статуса. Ошибка одной записи не
// останавливает запуск: она накапливается в итогах.
func (s *Service) placePost(ctx context.Context, st *runState, post domain.Post, respectQuota bool) bool {
	skip := func(format string, args ...any) bool {
		st.result.Errors = append(st.result.Errors, fmt.Sprintf(format, args...))
		return false
	}

	strikes := 0
	for {
		if respectQuota && st.day.count() >= st.rc.PostsPerDay {
			if err := s.advanceDay(ctx, st); err != nil {
				return skip("запись %d: %v", post.ID, err)
			}
			continue
		}

		minute, ok := s.drawSlot(st)
		if !ok {
			strikes++
			metrics.IncPlacementFailure()
			if strikes >= placementStrikes {
				return skip("запись %d: не удалось подобрать время на %s", post.ID, st.day.date.Format(dateLayout))
			}
			if err := s.advanceDay(ctx, st); err != nil {
				return skip("запись %d: %v", post.ID, err)
			}
			continue
		}

		publishAt := time.Date(st.day.date.Year(), st.day.date.Month(), st.day.date.Day(),
			minute/60, minute%60, 0, 0, s.clock.Location())
		if !publishAt.After(st.now.Add(SafetyBufferMinutes * time.Minute)) {
			// Инвариант будущего времени: слот без запаса отклоняется.
			strikes++
			if strikes >= placementStrikes {
				return skip("запись %d: слот %s слишком близко к текущему времени", post.ID, publishAt.Format(time.RFC3339))
			}
			if err := s.advanceDay(ctx, st); err != nil {
				return skip("запись %d: %v", post.ID, err)
			}
			continue
		}

		authorID, aerr := st.picker.Resolve(ctx, post)
		if aerr != nil {
			s.logger.Warn().Err(aerr).Int64("post", post.ID).Msg("планировщик: автор оставлен исходным")
		}

		if err := s.posts.SchedulePost(ctx, post.ID, publishAt, authorID); err != nil {
			metrics.IncPersistenceFailure()
			return skip("запись %d: сохранение: %v", post.ID, err)
		}
		saved, err := s.posts.GetPost(ctx, post.ID)
		if err != nil || saved.Status != domain.PostStatusScheduled {
			// Тихий сбой сохранения не засчитывается как успех.
			metrics.IncPersistenceFailure()
			s.logger.Error().Int64("post", post.ID).Msg("планировщик: статус записи не подтвердился после сохранения")
			return skip("запись %d: статус не подтвердился после сохранения", post.ID)
		}

		st.day.used = append(st.day.used, minute)
		st.day.added++
		st.result.Scheduled = append(st.result.Scheduled, domain.ScheduledPost{
			PostID:   post.ID,
			Title:    post.Title,
			Date:     st.day.date.Format(dateLayout),
			Datetime: publishAt,
			AuthorID: authorID,
		})
		st.result.ScheduledCount++
		return true
	}
}

// drawSlot подбирает минуту в окне текущего дня. Для сегодняшнего дня нижняя
// граница поднимается до «сейчас + запас», чтобы не выдать слот в прошлом.
func (s *Service) drawSlot(st *runState) (int, bool) {
	start := st.rc.startMin
	if sameDay(st.day.date, st.now) {
		nowMin := st.now.Hour()*60 + st.now.Minute() + SafetyBufferMinutes
		if nowMin > start {
			start = nowMin
		}
	}
	if start >= st.rc.endMin {
		return 0, false
	}
	return GenerateSlot(s.rng, start, st.rc.endMin, st.rc.MinIntervalMinutes, st.day.used)
}

// recordRunSummary сохраняет отметку и краткий итог последнего запуска.
// Сбой здесь не влияет на итог: только запись в журнал.
func (s *Service) recordRunSummary(ctx context.Context, result domain.RunResult) {
	if err := s.opts.SetOption(ctx, optionLastRunAt, result.FinishedAt.Format(time.RFC3339)); err != nil {
		s.logger.Error().Err(err).Msg("планировщик: отметка запуска не сохранена")
		return
	}
	summary := struct {
		Success        bool            `json:"success"`
		Status         string          `json:"status"`
		Cause          domain.RunCause `json:"cause"`
		ScheduledCount int             `json:"scheduled_count"`
		Errors         int             `json:"errors"`
		Message        string          `json:"message"`
		FinishedAt     time.Time       `json:"finished_at"`
	}{result.Success, result.Status, result.Cause, result.ScheduledCount, len(result.Errors), result.Message, result.FinishedAt}
	payload, err := json.Marshal(summary)
	if err != nil {
		return
	}
	if err := s.opts.SetOption(ctx, optionLastRunSummary, string(payload)); err != nil {
		s.logger.Error().Err(err).Msg("планировщик: итог запуска не сохранён")
	}
}

// Deficits возвращает текущие недоборы в порядке возрастания дат.
func (s *Service) Deficits(ctx context.Context) ([]DeficitEntry, error) {
	ledger := NewDeficitLedger(s.opts, s.clock)
	if err := ledger.Load(ctx); err != nil {
		return nil, err
	}
	return ledger.OldestFirst(), nil
}

// LastRun возвращает сохранённый итог последнего запуска, если он есть.
func (s *Service) LastRun(ctx context.Context) (string, bool, error) {
	return s.opts.GetOption(ctx, optionLastRunSummary)
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
