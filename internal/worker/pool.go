package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"flashdeck-backend/internal/cardstream"
	"flashdeck-backend/internal/logger"
	"flashdeck-backend/internal/models"
	"flashdeck-backend/internal/services"
)

const (
	popTimeout = 5 * time.Second
	lockTTL    = 10 * time.Minute
)

// Processor runs one job type. The returned event is published on success.
type Processor interface {
	Process(ctx context.Context, job *models.Job) (models.CompletedEvent, error)
}

// FailureHandler is implemented by processors that clean up once a job fails for good.
type FailureHandler interface {
	OnFailure(ctx context.Context, job *models.Job)
}

type jobStore interface {
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
	UpdateError(ctx context.Context, id uuid.UUID, errMsg string, retryCount int) error
}

type updatePublisher interface {
	PublishUpdate(ctx context.Context, userID uuid.UUID, msg models.WSMessage)
}

// Pool pops jobs from the redis queues of its registered processors and runs them.
type Pool struct {
	redis       *redis.Client
	jobs        jobStore
	publisher   updatePublisher
	processors  map[string]Processor
	workerCount int
	log         *logger.Logger

	// requeue puts a failed job back on its queue after delay.
	requeue func(job *models.Job, delay time.Duration)

	wg sync.WaitGroup
}

func NewPool(redisClient *redis.Client, jobs jobStore, publisher updatePublisher, workerCount int, log *logger.Logger) *Pool {
	if workerCount < 1 {
		workerCount = 1
	}
	p := &Pool{
		redis:       redisClient,
		jobs:        jobs,
		publisher:   publisher,
		processors:  make(map[string]Processor),
		workerCount: workerCount,
		log:         log,
	}
	p.requeue = p.requeueAfter
	return p
}

// Register routes jobs of jobType to proc. Call before Start.
func (p *Pool) Register(jobType string, proc Processor) {
	p.processors[jobType] = proc
}

// Start launches the workers. They stop once ctx is cancelled; Wait blocks until then.
func (p *Pool) Start(ctx context.Context) {
	queues := make([]string, 0, len(p.processors))
	for jobType := range p.processors {
		queues = append(queues, models.JobQueueName(jobType))
	}

	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			p.worker(ctx, id, queues)
		}(i)
	}

	p.log.Info("started workers", "count", p.workerCount, "queues", queues)
}

func (p *Pool) Wait() {
	p.wg.Wait()
}

func (p *Pool) worker(ctx context.Context, id int, queues []string) {
	for {
		if ctx.Err() != nil {
			p.log.Debug("worker shutting down", "worker", id)
			return
		}

		result, err := p.redis.BLPop(ctx, popTimeout, queues...).Result()
		if err != nil {
			if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
				p.log.Warn("queue pop failed", "worker", id, "error", err)
				time.Sleep(time.Second)
			}
			continue
		}
		if len(result) < 2 {
			continue
		}

		var job models.Job
		if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
			p.log.Error("failed to parse job", "worker", id, "error", err)
			continue
		}

		lockKey := fmt.Sprintf("job_lock:%s", job.ID.String())
		locked, err := p.redis.SetNX(ctx, lockKey, id, lockTTL).Result()
		if err != nil || !locked {
			continue
		}

		p.runJob(ctx, &job)
		p.redis.Del(context.WithoutCancel(ctx), lockKey)
	}
}

// runJob processes one job and records the outcome.
func (p *Pool) runJob(ctx context.Context, job *models.Job) {
	log := p.log.With("job_id", job.ID, "type", job.Type)
	log.Info("processing job", "attempt", job.RetryCount+1)

	p.jobs.UpdateStatus(ctx, job.ID, models.JobStatusProcessing)
	p.publisher.PublishUpdate(ctx, job.UserID, models.WSMessage{
		Type:    models.WSTypeStatusUpdate,
		Payload: models.StatusUpdate{JobID: job.ID, Step: 1, StepName: stepName(job.Type)},
	})

	proc, ok := p.processors[job.Type]
	if !ok {
		p.fail(ctx, job, proc, fmt.Errorf("unknown job type: %s", job.Type), log)
		return
	}

	done, err := proc.Process(ctx, job)
	if err != nil {
		if ctx.Err() != nil {
			// Shutdown interrupted the job; hand it back untouched.
			p.jobs.UpdateStatus(context.WithoutCancel(ctx), job.ID, models.JobStatusPending)
			p.requeue(job, 0)
			return
		}
		p.handleFailure(ctx, job, proc, err, log)
		return
	}

	p.jobs.UpdateStatus(ctx, job.ID, models.JobStatusCompleted)
	done.JobID = job.ID
	if done.ResultID == uuid.Nil {
		done.ResultID = job.ReferenceID
	}
	p.publisher.PublishUpdate(ctx, job.UserID, models.WSMessage{Type: models.WSTypeCompleted, Payload: done})
	log.Info("job completed", "result_id", done.ResultID, "count", done.Count)
}

func (p *Pool) handleFailure(ctx context.Context, job *models.Job, proc Processor, err error, log *logger.Logger) {
	job.RetryCount++
	maxRetries := job.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	if isPermanent(err) || job.RetryCount >= maxRetries {
		p.fail(ctx, job, proc, err, log)
		return
	}

	delay := retryDelay(job.RetryCount)
	log.Warn("job failed, retrying", "attempt", job.RetryCount, "delay", delay, "error", err)
	p.jobs.UpdateStatus(ctx, job.ID, models.JobStatusPending)
	p.jobs.UpdateError(ctx, job.ID, err.Error(), job.RetryCount)
	p.requeue(job, delay)
}

func (p *Pool) fail(ctx context.Context, job *models.Job, proc Processor, err error, log *logger.Logger) {
	log.Error("job failed permanently", "attempts", job.RetryCount, "error", err)
	p.jobs.UpdateStatus(ctx, job.ID, models.JobStatusFailed)
	p.jobs.UpdateError(ctx, job.ID, err.Error(), job.RetryCount)
	if fh, ok := proc.(FailureHandler); ok {
		fh.OnFailure(ctx, job)
	}

	p.publisher.PublishUpdate(ctx, job.UserID, models.WSMessage{
		Type: models.WSTypeError,
		Payload: models.ErrorEvent{
			JobID:        job.ID,
			ErrorCode:    errorCode(err),
			ErrorMessage: err.Error(),
		},
	})
}

func (p *Pool) requeueAfter(job *models.Job, delay time.Duration) {
	jobBytes, err := json.Marshal(job)
	if err != nil {
		p.log.Error("failed to encode job for retry", "job_id", job.ID, "error", err)
		return
	}
	push := func() {
		if err := p.redis.LPush(context.Background(), models.JobQueueName(job.Type), string(jobBytes)).Err(); err != nil {
			p.log.Error("failed to requeue job", "job_id", job.ID, "error", err)
		}
	}
	if delay <= 0 {
		push()
		return
	}
	time.AfterFunc(delay, push)
}

// retryDelay is 2^attempt seconds.
func retryDelay(attempt int) time.Duration {
	return time.Duration(1<<uint(attempt)) * time.Second
}

// isPermanent reports errors that a retry cannot fix.
func isPermanent(err error) bool {
	var (
		validationErr *services.ValidationError
		notFoundErr   *services.NotFoundError
		malformedErr  *cardstream.MalformedResponseError
	)
	return errors.As(err, &validationErr) || errors.As(err, &notFoundErr) || errors.As(err, &malformedErr)
}

func errorCode(err error) string {
	var malformedErr *cardstream.MalformedResponseError
	if errors.As(err, &malformedErr) {
		return "MALFORMED_RESPONSE"
	}
	return "JOB_FAILED"
}

func stepName(jobType string) string {
	switch jobType {
	case models.JobTypeSourceProcessing:
		return "Extracting source text"
	case models.JobTypeFlashcardGeneration:
		return "Generating flashcards"
	default:
		return "Processing"
	}
}
