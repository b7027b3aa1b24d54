package jobs

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/phrazzld/companion-api/internal/domain"
	"github.com/phrazzld/companion-api/internal/store"
)

// RunnerConfig holds configuration for the job runner.
type RunnerConfig struct {
	// WorkerCount determines how many concurrent workers execute jobs.
	WorkerCount int

	// QueueSize determines the buffer size for the in-memory job queue
	// and the maximum batch claimed per poll.
	QueueSize int

	// PollInterval determines how often due jobs are claimed from the
	// store.
	PollInterval time.Duration

	// RetryDelay determines how long a failed job waits before it
	// becomes claimable again.
	RetryDelay time.Duration
}

// DefaultRunnerConfig returns a RunnerConfig with reasonable defaults.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		WorkerCount:  2,
		QueueSize:    100,
		PollInterval: 15 * time.Second,
		RetryDelay:   time.Minute,
	}
}

// Runner drives the delayed job queue: a poller claims due jobs from
// the store and a worker pool executes them. Claimed jobs are
// invisible to other runner instances, so several replicas can share
// one queue.
type Runner struct {
	jobStore   store.JobStore
	executor   *ReminderExecutor
	jobChan    chan *domain.ScheduledJob
	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	config     RunnerConfig
	logger     *slog.Logger
}

// NewRunner creates a new Runner.
func NewRunner(jobStore store.JobStore, executor *ReminderExecutor, config RunnerConfig, log *slog.Logger) (*Runner, error) {
	if jobStore == nil {
		return nil, errors.New("jobStore cannot be nil")
	}
	if executor == nil {
		return nil, errors.New("executor cannot be nil")
	}
	if config.WorkerCount <= 0 {
		config.WorkerCount = DefaultRunnerConfig().WorkerCount
	}
	if config.QueueSize <= 0 {
		config.QueueSize = DefaultRunnerConfig().QueueSize
	}
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultRunnerConfig().PollInterval
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = DefaultRunnerConfig().RetryDelay
	}
	if log == nil {
		log = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Runner{
		jobStore:   jobStore,
		executor:   executor,
		jobChan:    make(chan *domain.ScheduledJob, config.QueueSize),
		ctx:        ctx,
		cancelFunc: cancel,
		config:     config,
		logger:     log.With(slog.String("component", "job_runner")),
	}, nil
}

// Start launches the worker pool and the claim poller.
func (r *Runner) Start() {
	for i := 0; i < r.config.WorkerCount; i++ {
		r.wg.Add(1)
		go r.worker(i)
	}

	r.wg.Add(1)
	go r.poller()

	r.logger.Info("job runner started",
		slog.Int("worker_count", r.config.WorkerCount),
		slog.Duration("poll_interval", r.config.PollInterval))
}

// Stop gracefully shuts down the runner, draining claimed jobs.
func (r *Runner) Stop() {
	r.cancelFunc()
	r.wg.Wait()
	close(r.jobChan)
}

// poller periodically claims due jobs and hands them to the workers.
func (r *Runner) poller() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.claimDue()
		}
	}
}

func (r *Runner) claimDue() {
	jobs, err := r.jobStore.ClaimDue(r.ctx, time.Now().UTC(), r.config.QueueSize)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			r.logger.Error("failed to claim due jobs",
				slog.String("error", err.Error()))
		}
		return
	}

	for _, job := range jobs {
		select {
		case r.jobChan <- job:
		default:
			// Queue full; fail the claim back to pending so another
			// poll picks it up.
			r.logger.Error("job queue full, releasing claimed job",
				slog.String("job_id", job.ID))
			if err := r.jobStore.Fail(r.ctx, job.ID, "runner queue full", r.config.RetryDelay); err != nil {
				r.logger.Error("failed to release claimed job",
					slog.String("job_id", job.ID),
					slog.String("error", err.Error()))
			}
		}
	}
}

// worker executes jobs from the queue.
func (r *Runner) worker(id int) {
	defer r.wg.Done()

	r.logger.Debug("starting worker", slog.Int("worker_id", id))

	for {
		select {
		case <-r.ctx.Done():
			r.logger.Debug("stopping worker", slog.Int("worker_id", id))
			return
		case job, ok := <-r.jobChan:
			if !ok {
				return
			}
			r.processJob(job, id)
		}
	}
}

// processJob executes one claimed job and records the outcome. Job
// failures are retried with a delay until the attempts are exhausted;
// they never escalate past the runner.
func (r *Runner) processJob(job *domain.ScheduledJob, workerID int) {
	// Job execution outlives a shutting-down runner's context.
	ctx := context.Background()
	log := r.logger.With(
		slog.String("job_id", job.ID),
		slog.Int64("care_request_id", job.CareRequestID),
		slog.Int("worker_id", workerID))

	log.Info("processing job", slog.Int("attempt", job.Attempts))

	if err := r.executor.Execute(ctx, job); err != nil {
		log.Error("job execution failed", slog.String("error", err.Error()))
		if failErr := r.jobStore.Fail(ctx, job.ID, err.Error(), r.config.RetryDelay); failErr != nil {
			log.Error("failed to record job failure",
				slog.String("error", failErr.Error()))
		}
		return
	}

	if err := r.jobStore.Complete(ctx, job.ID); err != nil {
		log.Error("failed to mark job done", slog.String("error", err.Error()))
		return
	}
	log.Info("job completed")
}
