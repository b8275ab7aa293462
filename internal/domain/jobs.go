package domain

import (
	"context"
	"time"
)

// PostJobCause описывает источник задачи на публикацию.
type PostJobCause string

const (
	// PostCauseCron — задача поставлена по расписанию.
	PostCauseCron PostJobCause = "cron"
	// PostCauseManual — задача поставлена оператором.
	PostCauseManual PostJobCause = "manual"
)

// PostJob содержит информацию о задаче ежедневной публикации.
type PostJob struct {
	ID          string       `json:"job_id,omitempty"`
	Page        string       `json:"page,omitempty"`
	Sequence    int          `json:"sequence"`
	RequestedAt time.Time    `json:"requested_at"`
	Cause       PostJobCause `json:"cause"`
}

// PostQueue описывает очередь задач на публикацию.
type PostQueue interface {
	Enqueue(ctx context.Context, job PostJob) error
	Receive(ctx context.Context) (PostJob, AckFunc, error)
}

// AckFunc подтверждает успешную обработку или запрашивает повтор доставки задачи.
type AckFunc func(success bool) error
