package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"post-drip-bot/internal/domain"
)

type fixedClock struct {
	now time.Time
}

func (c *fixedClock) Now() time.Time           { return c.now }
func (c *fixedClock) Location() *time.Location { return c.now.Location() }

type memOptions struct {
	values map[string]string
}

func newMemOptions() *memOptions { return &memOptions{values: map[string]string{}} }

func (m *memOptions) GetOption(_ context.Context, key string) (string, bool, error) {
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *memOptions) SetOption(_ context.Context, key, value string) error {
	m.values[key] = value
	return nil
}

func (m *memOptions) CompareAndSwapOption(_ context.Context, key, old, value string) (bool, error) {
	if m.values[key] != old {
		return false, nil
	}
	m.values[key] = value
	return true, nil
}

// stubStore — хранилище в памяти, реализующее все порты планировщика.
type stubStore struct {
	*memOptions
	posts      map[int64]*domain.Post
	order      []int64
	authors    []domain.Author
	silentFail map[int64]bool
}

func newStubStore() *stubStore {
	return &stubStore{
		memOptions: newMemOptions(),
		posts:      map[int64]*domain.Post{},
		silentFail: map[int64]bool{},
	}
}

func (s *stubStore) addDraft(id int64, authorID int64) {
	s.posts[id] = &domain.Post{
		ID:        id,
		Title:     fmt.Sprintf("Запись %d", id),
		Status:    domain.PostStatusDraft,
		AuthorID:  authorID,
		CreatedAt: time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(id) * time.Minute),
	}
	s.order = append(s.order, id)
}

func (s *stubStore) addScheduled(id int64, publishAt time.Time) {
	s.posts[id] = &domain.Post{
		ID:        id,
		Title:     fmt.Sprintf("Запись %d", id),
		Status:    domain.PostStatusScheduled,
		PublishAt: publishAt,
		CreatedAt: publishAt.AddDate(0, 0, -7),
	}
	s.order = append(s.order, id)
}

func (s *stubStore) ListEligible(_ context.Context, status string) ([]domain.Post, error) {
	var out []domain.Post
	for _, id := range s.order {
		if s.posts[id].Status == status {
			out = append(out, *s.posts[id])
		}
	}
	return out, nil
}

func (s *stubStore) ListScheduledTimes(_ context.Context, day time.Time) ([]time.Time, error) {
	from, to := day, day.AddDate(0, 0, 1)
	var out []time.Time
	for _, p := range s.posts {
		if p.Status != domain.PostStatusScheduled {
			continue
		}
		if !p.PublishAt.Before(from) && p.PublishAt.Before(to) {
			out = append(out, p.PublishAt)
		}
	}
	return out, nil
}

func (s *stubStore) LatestScheduledDate(_ context.Context) (time.Time, bool, error) {
	var latest time.Time
	found := false
	for _, p := range s.posts {
		if p.Status == domain.PostStatusScheduled && p.PublishAt.After(latest) {
			latest = p.PublishAt
			found = true
		}
	}
	return latest, found, nil
}

func (s *stubStore) SchedulePost(_ context.Context, postID int64, publishAt time.Time, authorID int64) error {
	p, ok := s.posts[postID]
	if !ok {
		return fmt.Errorf("запись %d не найдена", postID)
	}
	p.PublishAt = publishAt
	p.AuthorID = authorID
	if !s.silentFail[postID] {
		p.Status = domain.PostStatusScheduled
	}
	return nil
}

func (s *stubStore) GetPost(_ context.Context, postID int64) (domain.Post, error) {
	p, ok := s.posts[postID]
	if !ok {
		return domain.Post{}, fmt.Errorf("запись %d не найдена", postID)
	}
	return *p, nil
}

func (s *stubStore) ListEligibleAuthors(_ context.Context, _ []string, excluded []int64) ([]domain.Author, error) {
	skip := map[int64]bool{}
	for _, id := range excluded {
		skip[id] = true
	}
	var out []domain.Author
	for _, a := range s.authors {
		if !skip[a.ID] {
			out = append(out, a)
		}
	}
	return out, nil
}

func newTestService(store *stubStore, now time.Time, seed int64) (*Service, *fixedClock) {
	clock := &fixedClock{now: now}
	rng := rand.New(rand.NewSource(seed))
	return NewService(store, store, store, clock, rng, zerolog.Nop()), clock
}

func mondayMorning() time.Time {
	return time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)
}

func TestRunScheduleEmptyPoolIsIdempotent(t *testing.T) {
	store := newStubStore()
	svc, _ := newTestService(store, mondayMorning(), 1)

	for i := 0; i < 2; i++ {
		result := svc.RunSchedule(context.Background(), domain.RunCauseManual)
		if result.Success {
			t.Fatalf("пустой пул не должен давать успех")
		}
		if result.Status != domain.RunStatusEmpty {
			t.Fatalf("ожидали статус empty, получили %q", result.Status)
		}
		if result.Message != "нет записей для планирования" {
			t.Fatalf("неожиданное сообщение: %q", result.Message)
		}
		if len(store.values) != 0 {
			t.Fatalf("пустой запуск не должен менять состояние, записано опций: %d", len(store.values))
		}
	}
}

func TestRunScheduleDistributesAcrossDays(t *testing.T) {
	store := newStubStore()
	for i := int64(1); i <= 12; i++ {
		store.addDraft(i, 1)
	}
	svc, clock := newTestService(store, mondayMorning(), 7)

	result := svc.RunSchedule(context.Background(), domain.RunCauseScheduled)
	if !result.Success {
		t.Fatalf("ожидали успех: %s", result.Message)
	}
	if result.ScheduledCount != 12 {
		t.Fatalf("ожидали 12 запланированных, получили %d", result.ScheduledCount)
	}
	if len(result.Errors) != 0 {
		t.Fatalf("не ожидали ошибок: %v", result.Errors)
	}
	if result.Status != domain.RunStatusDone {
		t.Fatalf("ожидали статус done, получили %q", result.Status)
	}

	perDay := map[string][]int{}
	for _, sp := range result.Scheduled {
		if !sp.Datetime.After(clock.now.Add(SafetyBufferMinutes * time.Minute)) {
			t.Fatalf("слот %s без запаса от текущего времени", sp.Datetime)
		}
		wd := sp.Datetime.Weekday()
		if wd == time.Saturday || wd == time.Sunday {
			t.Fatalf("запись попала на выходной: %s", sp.Datetime)
		}
		minute := sp.Datetime.Hour()*60 + sp.Datetime.Minute()
		if minute < 540 || minute >= 1080 {
			t.Fatalf("слот %s вне окна публикаций", sp.Datetime)
		}
		perDay[sp.Date] = append(perDay[sp.Date], minute)
	}

	for date, minutes := range perDay {
		if len(minutes) > 5 {
			t.Fatalf("день %s превысил квоту: %d записей", date, len(minutes))
		}
		for i := range minutes {
			for j := i + 1; j < len(minutes); j++ {
				diff := minutes[i] - minutes[j]
				if diff < 0 {
					diff = -diff
				}
				if diff < 60 {
					t.Fatalf("день %s: слоты %d и %d нарушают интервал", date, minutes[i], minutes[j])
				}
			}
		}
	}
	if len(perDay) < 3 {
		t.Fatalf("12 записей при квоте 5 должны занять не меньше 3 дней, получили %d", len(perDay))
	}

	if _, ok := store.values[optionLastRunSummary]; !ok {
		t.Fatalf("итог запуска не сохранён")
	}
}

func TestRunScheduleSkipsInactiveToday(t *testing.T) {
	store := newStubStore()
	store.addDraft(1, 1)
	saturday := time.Date(2026, 1, 3, 10, 0, 0, 0, time.UTC)
	svc, _ := newTestService(store, saturday, 3)

	result := svc.RunSchedule(context.Background(), domain.RunCauseManual)
	if !result.Success || result.ScheduledCount != 1 {
		t.Fatalf("ожидали одну запись: %+v", result)
	}
	if result.Scheduled[0].Date != "2026-01-05" {
		t.Fatalf("с субботы ожидали перенос на понедельник, получили %s", result.Scheduled[0].Date)
	}
}

func TestRunScheduleRespectsSafetyBufferInEvening(t *testing.T) {
	store := newStubStore()
	store.addDraft(1, 1)
	evening := time.Date(2026, 1, 5, 17, 45, 0, 0, time.UTC)
	svc, _ := newTestService(store, evening, 3)

	result := svc.RunSchedule(context.Background(), domain.RunCauseManual)
	if !result.Success || result.ScheduledCount != 1 {
		t.Fatalf("ожидали одну запись: %+v", result)
	}
	if result.Scheduled[0].Date != "2026-01-06" {
		t.Fatalf("вечером день уже непригоден, ожидали завтра, получили %s", result.Scheduled[0].Date)
	}
}

func TestRunScheduleContinuesFromFurthestDay(t *testing.T) {
	store := newStubStore()
	wednesday := time.Date(2026, 1, 7, 10, 0, 0, 0, time.UTC)
	store.addScheduled(100, wednesday)
	for i := int64(1); i <= 5; i++ {
		store.addDraft(i, 1)
	}
	svc, _ := newTestService(store, mondayMorning(), 11)

	result := svc.RunSchedule(context.Background(), domain.RunCauseScheduled)
	if !result.Success || result.ScheduledCount != 5 {
		t.Fatalf("ожидали 5 записей: %+v", result)
	}
	if !result.CompletedPriorDay {
		t.Fatalf("недобитый день должен быть продолжен")
	}

	perDay := map[string]int{}
	for _, sp := range result.Scheduled {
		perDay[sp.Date]++
	}
	if perDay["2026-01-07"] != 4 {
		t.Fatalf("среда уже держала 1 запись, ожидали добивку до квоты (4), получили %d", perDay["2026-01-07"])
	}
	if perDay["2026-01-08"] != 1 {
		t.Fatalf("остаток должен уйти на четверг, получили %d", perDay["2026-01-08"])
	}
}

func TestRunScheduleUsesSiteZoneForFurthestDay(t *testing.T) {
	// Хранилище отдаёт моменты времени в UTC, зона сайта — UTC+12: календарный
	// день самой дальней записи должен определяться в зоне сайта.
	site := time.FixedZone("UTC+12", 12*3600)
	store := newStubStore()
	// Среда 09:30 по зоне сайта — в UTC это ещё вторник 21:30.
	store.addScheduled(100, time.Date(2026, 1, 7, 9, 30, 0, 0, site).UTC())
	store.addDraft(1, 1)
	svc, _ := newTestService(store, time.Date(2026, 1, 5, 8, 0, 0, 0, site), 29)

	result := svc.RunSchedule(context.Background(), domain.RunCauseScheduled)
	if !result.Success || result.ScheduledCount != 1 {
		t.Fatalf("ожидали одну запись: %+v", result)
	}
	if !result.CompletedPriorDay {
		t.Fatalf("среда держит 1/5 и должна быть продолжена")
	}
	if result.Scheduled[0].Date != "2026-01-07" {
		t.Fatalf("самый дальний день считается в зоне сайта, ожидали 2026-01-07, получили %s", result.Scheduled[0].Date)
	}
}

func TestRunScheduleStartsAfterFullFurthestDay(t *testing.T) {
	store := newStubStore()
	wednesday := time.Date(2026, 1, 7, 0, 0, 0, 0, time.UTC)
	for i := int64(100); i < 105; i++ {
		store.addScheduled(i, wednesday.Add(time.Duration(i-100)*90*time.Minute).Add(9*time.Hour))
	}
	store.addDraft(1, 1)
	svc, _ := newTestService(store, mondayMorning(), 5)

	result := svc.RunSchedule(context.Background(), domain.RunCauseScheduled)
	if !result.Success || result.ScheduledCount != 1 {
		t.Fatalf("ожидали одну запись: %+v", result)
	}
	if result.CompletedPriorDay {
		t.Fatalf("добитый до квоты день не продолжается")
	}
	if result.Scheduled[0].Date != "2026-01-08" {
		t.Fatalf("после заполненной среды ожидали четверг, получили %s", result.Scheduled[0].Date)
	}
}

func TestRunScheduleBackfillsOldestDeficit(t *testing.T) {
	store := newStubStore()
	store.values[optionDeficits] = `{"2026-01-02":2}`
	for i := int64(1); i <= 3; i++ {
		store.addDraft(i, 1)
	}
	svc, _ := newTestService(store, mondayMorning(), 9)

	result := svc.RunSchedule(context.Background(), domain.RunCauseScheduled)
	if !result.Success || result.ScheduledCount != 3 {
		t.Fatalf("ожидали 3 записи: %+v", result)
	}

	var deficits map[string]int
	if err := json.Unmarshal([]byte(store.values[optionDeficits]), &deficits); err != nil {
		t.Fatalf("недоборы не разобрались: %v", err)
	}
	if _, ok := deficits["2026-01-02"]; ok {
		t.Fatalf("добранный недобор должен быть снят: %v", deficits)
	}
	// Пул исчерпан на трёх записях, сегодняшняя квота 5 осталась недобранной.
	if deficits["2026-01-05"] != 2 {
		t.Fatalf("ожидали недобор 2 за сегодня, получили %v", deficits)
	}
}

func TestRunScheduleFailsFastOnBadConfig(t *testing.T) {
	store := newStubStore()
	store.addDraft(1, 1)
	cfg := domain.DefaultSchedulingConfig()
	cfg.PostsPerDay = 10 // 10 записей по 60 минут не помещаются в 9 часов
	payload, _ := json.Marshal(cfg)
	store.values[optionConfig] = string(payload)
	svc, _ := newTestService(store, mondayMorning(), 1)

	result := svc.RunSchedule(context.Background(), domain.RunCauseManual)
	if result.Success {
		t.Fatalf("противоречивая конфигурация должна останавливать запуск")
	}
	if result.Status != domain.RunStatusFailed {
		t.Fatalf("ожидали статус failed, получили %q", result.Status)
	}
	if result.ScheduledCount != 0 {
		t.Fatalf("до валидации ни одна запись не должна быть тронута")
	}
	if store.posts[1].Status != domain.PostStatusDraft {
		t.Fatalf("запись изменена при ошибке конфигурации")
	}
	if !strings.Contains(result.Message, "не помещаются") {
		t.Fatalf("сообщение должно объяснять причину: %q", result.Message)
	}
}

func TestRunScheduleRejectsUnconfirmedPersistence(t *testing.T) {
	store := newStubStore()
	store.addDraft(1, 1)
	store.addDraft(2, 1)
	store.silentFail[1] = true
	svc, _ := newTestService(store, mondayMorning(), 13)

	result := svc.RunSchedule(context.Background(), domain.RunCauseManual)
	if !result.Success {
		t.Fatalf("частичный успех остаётся успехом: %+v", result)
	}
	if result.ScheduledCount != 1 {
		t.Fatalf("тихий сбой сохранения не должен засчитываться, получили %d", result.ScheduledCount)
	}
	if len(result.Errors) != 1 {
		t.Fatalf("ожидали одну ошибку, получили %v", result.Errors)
	}
	if result.Scheduled[0].PostID != 2 {
		t.Fatalf("успешной должна быть запись 2, получили %d", result.Scheduled[0].PostID)
	}
	if result.Status != domain.RunStatusPartial {
		t.Fatalf("ожидали статус partial, получили %q", result.Status)
	}
	if !strings.Contains(result.Message, "пропущено") {
		t.Fatalf("итог должен упоминать пропуски: %q", result.Message)
	}
}

func TestRunScheduleRoundRobinAuthors(t *testing.T) {
	store := newStubStore()
	store.authors = []domain.Author{{ID: 10, Name: "Анна", Role: "author"}, {ID: 20, Name: "Борис", Role: "editor"}}
	for i := int64(1); i <= 4; i++ {
		store.addDraft(i, 1)
	}
	cfg := domain.DefaultSchedulingConfig()
	cfg.RandomizeAuthors = true
	cfg.Strategy = domain.AssignmentRoundRobin
	payload, _ := json.Marshal(cfg)
	store.values[optionConfig] = string(payload)
	svc, _ := newTestService(store, mondayMorning(), 17)

	result := svc.RunSchedule(context.Background(), domain.RunCauseScheduled)
	if !result.Success || result.ScheduledCount != 4 {
		t.Fatalf("ожидали 4 записи: %+v", result)
	}
	expected := []int64{10, 20, 10, 20}
	for i, sp := range result.Scheduled {
		if sp.AuthorID != expected[i] {
			t.Fatalf("позиция %d: ожидали автора %d, получили %d", i, expected[i], sp.AuthorID)
		}
	}
	if store.values[optionRotation] != "0" {
		t.Fatalf("индекс ротации должен вернуться к 0, получили %q", store.values[optionRotation])
	}
}

func TestRunScheduleRandomAuthorAvoidsCurrent(t *testing.T) {
	store := newStubStore()
	store.authors = []domain.Author{{ID: 10, Role: "author"}, {ID: 20, Role: "author"}}
	store.addDraft(1, 10)
	cfg := domain.DefaultSchedulingConfig()
	cfg.RandomizeAuthors = true
	payload, _ := json.Marshal(cfg)
	store.values[optionConfig] = string(payload)
	svc, _ := newTestService(store, mondayMorning(), 19)

	result := svc.RunSchedule(context.Background(), domain.RunCauseManual)
	if !result.Success || result.ScheduledCount != 1 {
		t.Fatalf("ожидали одну запись: %+v", result)
	}
	if result.Scheduled[0].AuthorID != 20 {
		t.Fatalf("единственная альтернатива — автор 20, получили %d", result.Scheduled[0].AuthorID)
	}
}

func TestRunScheduleCompletesPriorDayThenDistributes(t *testing.T) {
	store := newStubStore()
	wednesday := time.Date(2026, 1, 7, 0, 0, 0, 0, time.UTC)
	store.addScheduled(100, wednesday.Add(9*time.Hour))
	store.addScheduled(101, wednesday.Add(12*time.Hour))
	store.addScheduled(102, wednesday.Add(15*time.Hour))
	for i := int64(1); i <= 20; i++ {
		store.addDraft(i, 1)
	}

	cfg := domain.DefaultSchedulingConfig()
	cfg.PostsPerDay = 8
	cfg.MinIntervalMinutes = 30
	payload, _ := json.Marshal(cfg)
	store.values[optionConfig] = string(payload)
	svc, _ := newTestService(store, mondayMorning(), 23)

	result := svc.RunSchedule(context.Background(), domain.RunCauseScheduled)
	if !result.Success || result.ScheduledCount != 20 {
		t.Fatalf("ожидали 20 записей: %+v", result)
	}
	if !result.CompletedPriorDay {
		t.Fatalf("день с 3/8 должен быть продолжен")
	}

	perDay := map[string]int{}
	for _, sp := range result.Scheduled {
		perDay[sp.Date]++
	}
	if perDay["2026-01-07"] != 5 {
		t.Fatalf("среда держала 3/8, ожидали добивку на 5, получили %d", perDay["2026-01-07"])
	}
	if perDay["2026-01-08"] != 8 {
		t.Fatalf("четверг должен быть заполнен до квоты, получили %d", perDay["2026-01-08"])
	}
	if perDay["2026-01-09"] != 7 {
		t.Fatalf("остаток 7 должен уйти на пятницу, получили %d", perDay["2026-01-09"])
	}
}
