package domain

import "time"

// Статусы записей в хранилище.
const (
	// PostStatusDraft — запись ещё не запланирована.
	PostStatusDraft = "draft"
	// PostStatusScheduled — запись ожидает публикации в будущем.
	PostStatusScheduled = "future"
	// PostStatusPublished — запись опубликована.
	PostStatusPublished = "publish"
)

// AssignmentStrategy описывает способ выбора автора при рандомизации.
type AssignmentStrategy string

const (
	// AssignmentRandom — равновероятный выбор из подходящих авторов.
	AssignmentRandom AssignmentStrategy = "random"
	// AssignmentRoundRobin — выбор по кругу с сохраняемым индексом ротации.
	AssignmentRoundRobin AssignmentStrategy = "round_robin"
)

// Post — снимок записи на момент запуска планирования.
type Post struct {
	ID        int64
	Title     string
	Status    string
	AuthorID  int64
	CreatedAt time.Time
	PublishAt time.Time
}

// Author описывает пользователя, которому может быть назначена запись.
type Author struct {
	ID   int64
	Name string
	Role string
}

// DefaultActiveWeekdays используется, когда в настройках не выбран ни один день.
// Дни недели нумеруются как в time.Weekday: воскресенье = 0.
var DefaultActiveWeekdays = []int{1, 2, 3, 4, 5}

// SchedulingConfig — настройки планирования. Читаются из хранилища опций один
// раз в начале каждого запуска и дальше передаются явно, чтобы исключить
// скрытые чтения меняющегося состояния посреди запуска.
type SchedulingConfig struct {
	PostsPerDay        int                `json:"posts_per_day"`
	StartTime          string             `json:"start_time"`
	EndTime            string             `json:"end_time"`
	MinIntervalMinutes int                `json:"min_interval_minutes"`
	ActiveWeekdays     []int              `json:"active_weekdays"`
	MonitoredStatus    string             `json:"monitored_status"`
	RandomizeAuthors   bool               `json:"randomize_authors"`
	Strategy           AssignmentStrategy `json:"assignment_strategy"`
	EligibleRoles      []string           `json:"eligible_roles"`
	ExcludedAuthorIDs  []int64            `json:"excluded_author_ids"`
	PreservedAuthorIDs []int64            `json:"preserved_author_ids"`
}

// DefaultSchedulingConfig возвращает настройки, используемые до первого сохранения.
func DefaultSchedulingConfig() SchedulingConfig {
	return SchedulingConfig{
		PostsPerDay:        5,
		StartTime:          "9:00 AM",
		EndTime:            "6:00 PM",
		MinIntervalMinutes: 60,
		ActiveWeekdays:     append([]int(nil), DefaultActiveWeekdays...),
		MonitoredStatus:    PostStatusDraft,
		RandomizeAuthors:   false,
		Strategy:           AssignmentRandom,
		EligibleRoles:      []string{"author", "editor"},
	}
}

// ScheduledPost описывает одну успешно запланированную запись в итогах запуска.
type ScheduledPost struct {
	PostID   int64     `json:"post_id"`
	Title    string    `json:"title"`
	Date     string    `json:"date"`
	Datetime time.Time `json:"datetime"`
	AuthorID int64     `json:"author_id"`
}

// Статусы завершения запуска.
const (
	// RunStatusDone — все пригодные записи запланированы.
	RunStatusDone = "done"
	// RunStatusPartial — часть записей пропущена из-за ошибок.
	RunStatusPartial = "partial"
	// RunStatusEmpty — пул пригодных записей пуст, состояние не менялось.
	RunStatusEmpty = "empty"
	// RunStatusFailed — запуск остановлен ошибкой.
	RunStatusFailed = "failed"
)

// RunResult — итог одного запуска планирования. Создаётся заново на каждый
// вызов, наружу отдаётся как есть и отдельной сущностью не сохраняется.
type RunResult struct {
	Success           bool            `json:"success"`
	Status            string          `json:"status"`
	Cause             RunCause        `json:"cause"`
	ScheduledCount    int             `json:"scheduled_count"`
	Scheduled         []ScheduledPost `json:"scheduled"`
	Errors            []string        `json:"errors"`
	CompletedPriorDay bool            `json:"completed_prior_day"`
	Message           string          `json:"message"`
	StartedAt         time.Time       `json:"started_at"`
	FinishedAt        time.Time       `json:"finished_at"`
}

// DayGroup — записи одного календарного дня в итогах запуска.
type DayGroup struct {
	Date  string
	Posts []ScheduledPost
}

// DayBreakdown группирует запланированные записи по дням в порядке их появления.
func (r RunResult) DayBreakdown() []DayGroup {
	var groups []DayGroup
	index := map[string]int{}
	for _, sp := range r.Scheduled {
		i, ok := index[sp.Date]
		if !ok {
			i = len(groups)
			index[sp.Date] = i
			groups = append(groups, DayGroup{Date: sp.Date})
		}
		groups[i].Posts = append(groups[i].Posts, sp)
	}
	return groups
}
