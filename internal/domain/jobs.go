package domain

import (
	"context"
	"time"
)

// RunCause описывает источник запроса на запуск планирования.
type RunCause string

const (
	// RunCauseManual — запуск запрошен вручную через API.
	RunCauseManual RunCause = "manual"
	// RunCauseScheduled — запуск инициирован планировщиком по расписанию.
	RunCauseScheduled RunCause = "scheduled"
)

// RunJob содержит информацию о задаче на запуск планирования.
type RunJob struct {
	ID          string    `json:"job_id,omitempty"`
	Cause       RunCause  `json:"cause"`
	RequestedAt time.Time `json:"requested_at"`
}

// RunQueue описывает очередь задач на запуск планирования.
type RunQueue interface {
	Enqueue(ctx context.Context, job RunJob) error
	Receive(ctx context.Context) (RunJob, RunAckFunc, error)
}

// RunAckFunc подтверждает успешную обработку или запрашивает повтор доставки задачи.
type RunAckFunc func(success bool) error
