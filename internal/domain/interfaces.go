package domain

import (
	"context"
	"time"
)

// ScheduleService отвечает за проход планирования публикаций.
type ScheduleService interface {
	RunSchedule(ctx context.Context, cause RunCause) RunResult
}

// PostRepo управляет записями в хранилище.
type PostRepo interface {
	// ListEligible возвращает записи с указанным статусом в порядке создания (FIFO).
	ListEligible(ctx context.Context, status string) ([]Post, error)
	// ListScheduledTimes возвращает времена уже запланированных записей за календарный день.
	ListScheduledTimes(ctx context.Context, day time.Time) ([]time.Time, error)
	// LatestScheduledDate возвращает самую дальнюю дату, на которую уже есть
	// запланированные записи. Второй результат false, если таких записей нет.
	LatestScheduledDate(ctx context.Context) (time.Time, bool, error)
	// SchedulePost переводит запись в статус отложенной публикации.
	SchedulePost(ctx context.Context, postID int64, publishAt time.Time, authorID int64) error
	// GetPost возвращает запись по идентификатору.
	GetPost(ctx context.Context, postID int64) (Post, error)
}

// AuthorRepo возвращает пользователей, подходящих для назначения авторами.
type AuthorRepo interface {
	// ListEligibleAuthors возвращает пользователей с одной из ролей, кроме исключённых.
	ListEligibleAuthors(ctx context.Context, roles []string, excluded []int64) ([]Author, error)
}

// OptionRepo — абстрактное хранилище именованных настроек.
type OptionRepo interface {
	GetOption(ctx context.Context, key string) (string, bool, error)
	SetOption(ctx context.Context, key, value string) error
	// CompareAndSwapOption атомарно заменяет значение, если текущее равно old.
	// Возвращает false без ошибки, если значение успело измениться.
	CompareAndSwapOption(ctx context.Context, key, old, value string) (bool, error)
}

// Clock отдаёт время в часовом поясе площадки, а не машины.
type Clock interface {
	Now() time.Time
	Location() *time.Location
}

// Locker ограничивает выполнение: fn вызывается, только если ключ ещё не занят.
type Locker interface {
	Once(key string, ttl time.Duration, fn func() error) error
}

// RunNotifier доставляет итог запуска во внешний канал уведомлений.
type RunNotifier interface {
	NotifyRun(ctx context.Context, result RunResult) error
}
