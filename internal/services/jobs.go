package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"flashdeck-backend/internal/models"
)

type jobStore interface {
	Create(ctx context.Context, j *models.Job) error
}

// JobEnqueuer records a job and hands it to the worker pool.
type JobEnqueuer interface {
	Enqueue(ctx context.Context, job *models.Job) error
}

type JobQueue struct {
	jobs  jobStore
	redis *redis.Client
}

func NewJobQueue(jobs jobStore, redisClient *redis.Client) *JobQueue {
	return &JobQueue{jobs: jobs, redis: redisClient}
}

// Enqueue stores the job row and pushes it onto queue:<type>.
func (q *JobQueue) Enqueue(ctx context.Context, job *models.Job) error {
	if err := q.jobs.Create(ctx, job); err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	jobBytes, err := json.Marshal(job)
	if err != nil {
		return err
	}
	if err := q.redis.LPush(ctx, models.JobQueueName(job.Type), string(jobBytes)).Err(); err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}
	return nil
}
