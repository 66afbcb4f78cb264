// Package orchestrator drives jobs through the fixed pipeline
// pending -> identifying -> acquiring -> separating -> generating_midi ->
// completed, dispatching each pending step to a bounded worker pool.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/trackforge/engine/internal/apperr"
	"github.com/trackforge/engine/internal/entities"
	"github.com/trackforge/engine/internal/eventbus"
	"github.com/trackforge/engine/internal/monitoring"
	"github.com/trackforge/engine/internal/steps"
	"github.com/trackforge/engine/internal/store"
)

// transitions gives the next status for a job currently in from, and the
// step handler that produces it (spec.md §4).
type transition struct {
	next entities.JobStatus
	run  func(context.Context, steps.Deps, *entities.Job) (*entities.PartialJobUpdate, error)
}

var pipeline = map[entities.JobStatus]transition{
	entities.JobPending:        {next: entities.JobIdentifying, run: steps.Identify},
	entities.JobIdentifying:    {next: entities.JobAcquiring, run: steps.Acquire},
	entities.JobAcquiring:      {next: entities.JobSeparating, run: steps.Separate},
	entities.JobSeparating:     {next: entities.JobGeneratingMidi, run: steps.GenerateMidi},
	entities.JobGeneratingMidi: {next: entities.JobCompleted, run: nil},
}

// Dispatcher owns the bounded worker pool. A job ID submitted to Submit is
// picked up by one of Workers goroutines, which runs the step for the job's
// current status, persists the result, and resubmits the job for its next
// status until it reaches a terminal state.
type Dispatcher struct {
	store     store.Store
	deps      steps.Deps
	logger    *zap.Logger
	metrics   *monitoring.PrometheusMetrics
	retention time.Duration
	pollDelay time.Duration
	events    *eventbus.Publisher

	// natsConn/natsSubject make Submit publish dispatch messages to NATS
	// instead of pushing directly onto queue; a QueueSubscribe in Start
	// feeds those messages back into queue so the same worker pool drains
	// both transports identically (spec.md §11). Nil natsConn keeps the
	// in-process channel as the only path.
	natsConn    *nats.Conn
	natsSubject string
	natsSub     *nats.Subscription

	queue chan uuid.UUID
	wg    sync.WaitGroup
}

// SetEventBus attaches an optional NATS publisher; every subsequent step
// transition is announced on it. Safe to call with nil to disable.
func (d *Dispatcher) SetEventBus(p *eventbus.Publisher) { d.events = p }

// SetNATS switches Submit to publish onto a NATS subject rather than
// enqueueing locally, with Start subscribing the worker pool to the same
// subject. Call before Start; a nil conn restores the in-process channel.
func (d *Dispatcher) SetNATS(conn *nats.Conn, subject string) {
	d.natsConn = conn
	d.natsSubject = subject
}

func NewDispatcher(st store.Store, deps steps.Deps, logger *zap.Logger, metrics *monitoring.PrometheusMetrics, workers, queueSize int, retention, pollDelay time.Duration) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	return &Dispatcher{
		store:     st,
		deps:      deps,
		logger:    logger,
		metrics:   metrics,
		retention: retention,
		pollDelay: pollDelay,
		queue:     make(chan uuid.UUID, queueSize),
	}
}

// Start launches the worker goroutines. When NATS is configured (SetNATS),
// it also subscribes the queue group to natsSubject so messages published by
// Submit on this or any other process feed the same local queue.
func (d *Dispatcher) Start(workers int) {
	if d.natsConn != nil {
		sub, err := d.natsConn.QueueSubscribe(d.natsSubject, "orchestrator-workers", func(msg *nats.Msg) {
			jobID, err := uuid.ParseBytes(msg.Data)
			if err != nil {
				d.logger.Error("decoding nats dispatch message", zap.Error(err))
				return
			}
			d.enqueueLocal(jobID)
		})
		if err != nil {
			d.logger.Error("subscribing to nats dispatch subject", zap.Error(err))
		} else {
			d.natsSub = sub
		}
	}

	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for jobID := range d.queue {
				d.runOneStep(jobID)
			}
		}()
	}
}

// Stop unsubscribes from NATS (if subscribed), closes the queue, and waits
// for in-flight steps to finish.
func (d *Dispatcher) Stop() {
	if d.natsSub != nil {
		if err := d.natsSub.Unsubscribe(); err != nil {
			d.logger.Warn("unsubscribing from nats dispatch subject", zap.Error(err))
		}
	}
	close(d.queue)
	d.wg.Wait()
}

// Submit hands a job off to the worker pool without blocking. When NATS is
// configured it publishes the job ID to natsSubject (core NATS, no
// persistence: a message with no subscriber at publish time is lost); on
// publish failure, or when NATS isn't configured, it falls back to the
// in-process channel directly.
func (d *Dispatcher) Submit(jobID uuid.UUID) {
	if d.natsConn != nil {
		err := d.natsConn.Publish(d.natsSubject, []byte(jobID.String()))
		if err == nil {
			return
		}
		d.logger.Warn("publishing dispatch message, falling back to local queue", zap.Error(err))
	}
	d.enqueueLocal(jobID)
}

func (d *Dispatcher) enqueueLocal(jobID uuid.UUID) {
	select {
	case d.queue <- jobID:
	default:
		d.logger.Warn("orchestrator queue full, dropping submission", zap.String("job_id", jobID.String()))
	}
}

func (d *Dispatcher) runOneStep(jobID uuid.UUID) {
	ctx := context.Background()

	job, err := d.store.GetJob(ctx, jobID)
	if err != nil {
		d.logger.Error("loading job for step", zap.String("job_id", jobID.String()), zap.Error(err))
		return
	}
	if job.Status == entities.JobCompleted || job.Status == entities.JobFailed {
		return
	}

	t, ok := pipeline[job.Status]
	if !ok {
		d.logger.Error("job in unknown status", zap.String("job_id", jobID.String()), zap.String("status", string(job.Status)))
		return
	}

	progress := entities.ProgressBreakpoints[t.next]
	if err := d.store.UpdateJobStatus(ctx, jobID, t.next, progress, nil); err != nil {
		d.logger.Error("advancing job status", zap.String("job_id", jobID.String()), zap.Error(err))
		return
	}
	d.events.PublishJobEvent("job.step_started", jobID, string(t.next))

	start := time.Now()
	var update *entities.PartialJobUpdate
	if t.run != nil {
		update, err = t.run(ctx, d.deps, job)
	}
	d.metrics.RecordStepDuration(string(t.next), statusLabel(err), time.Since(start))

	if err != nil {
		d.fail(ctx, jobID, t.next, err)
		return
	}

	if update != nil {
		if applyErr := d.store.ApplyJobUpdate(ctx, jobID, update); applyErr != nil {
			d.logger.Error("applying job update", zap.String("job_id", jobID.String()), zap.Error(applyErr))
		}
	}

	if t.next == entities.JobCompleted {
		if err := d.store.CompleteJob(ctx, jobID, time.Now().Add(d.retention)); err != nil {
			d.logger.Error("completing job", zap.String("job_id", jobID.String()), zap.Error(err))
			return
		}
		d.metrics.RecordJobCompleted(string(job.SourceType))
		d.events.PublishJobEvent("job.completed", jobID, string(entities.JobCompleted))
		return
	}

	d.Submit(jobID)
}

func (d *Dispatcher) fail(ctx context.Context, jobID uuid.UUID, step entities.JobStatus, cause error) {
	message := cause.Error()
	if ae, ok := apperr.As(cause); ok {
		message = ae.Message
	}
	if err := d.store.FailJob(ctx, jobID, message, time.Now().Add(d.retention)); err != nil {
		d.logger.Error("marking job failed", zap.String("job_id", jobID.String()), zap.Error(err))
	}
	d.metrics.RecordJobFailed(string(step))
	d.events.PublishJobEvent("job.failed", jobID, string(entities.JobFailed))
	d.logger.Warn("job failed", zap.String("job_id", jobID.String()), zap.String("step", string(step)), zap.Error(cause))
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ResumeAll submits every job not yet in a terminal state, used at process
// startup so work interrupted by a restart continues (spec.md §4.3).
func ResumeAll(ctx context.Context, st store.Store, d *Dispatcher, logger *zap.Logger) error {
	jobs, err := st.ListJobs(ctx, 0)
	if err != nil {
		return err
	}
	resumed := 0
	for _, job := range jobs {
		if job.Status == entities.JobCompleted || job.Status == entities.JobFailed {
			continue
		}
		d.Submit(job.ID)
		resumed++
	}
	logger.Info("resumed in-flight jobs", zap.Int("count", resumed))
	return nil
}

// Reclaim periodically submits jobs whose last_heartbeat is older than
// staleAfter, recovering from a worker that died mid-step without marking
// the job failed (Open Question #3).
func Reclaim(ctx context.Context, st store.Store, d *Dispatcher, metrics *monitoring.PrometheusMetrics, logger *zap.Logger, staleAfter, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			jobs, err := st.StaleNonTerminalJobs(ctx, staleAfter)
			if err != nil {
				logger.Error("reclaim sweep query", zap.Error(err))
				continue
			}
			for _, job := range jobs {
				logger.Info("reclaiming stale job", zap.String("job_id", job.ID.String()), zap.String("status", string(job.Status)))
				metrics.RecordReclaimedJob()
				d.Submit(job.ID)
			}
		}
	}
}
