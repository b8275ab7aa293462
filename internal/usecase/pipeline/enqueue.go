package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ig-vote-bot/internal/domain"
)

// EnqueueDaily ставит count задач на публикацию для страницы.
// При ошибке возвращаются уже поставленные задачи.
func EnqueueDaily(ctx context.Context, q domain.PostQueue, page string, count int, cause domain.PostJobCause, now time.Time) ([]domain.PostJob, error) {
	if count <= 0 {
		count = 1
	}
	jobs := make([]domain.PostJob, 0, count)
	for i := 0; i < count; i++ {
		job := domain.PostJob{
			ID:          uuid.NewString(),
			Page:        page,
			Sequence:    i + 1,
			RequestedAt: now.UTC(),
			Cause:       cause,
		}
		if err := q.Enqueue(ctx, job); err != nil {
			return jobs, fmt.Errorf("поставить задачу %d: %w", job.Sequence, err)
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}
