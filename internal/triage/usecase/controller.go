package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	statedomain "mailsweep-backend/internal/state/domain"
	staterepo "mailsweep-backend/internal/state/repository"
	triagedomain "mailsweep-backend/internal/triage/domain"
)

// EventType tags a job progress event.
type EventType string

const (
	EventJobStarted   EventType = "job_started"
	EventBatchStarted EventType = "batch_started"
	EventMessage      EventType = "message"
	EventComplete     EventType = "complete"
	EventCancelled    EventType = "cancelled"
	EventError        EventType = "error"
)

// Event is one progress record emitted by a running job. Terminal events
// (complete, cancelled, error) carry the final result and are followed by
// the channel closing.
type Event struct {
	Type      EventType `json:"type"`
	JobID     string    `json:"job_id"`
	Mailbox   string    `json:"mailbox,omitempty"`
	MessageID string    `json:"message_id,omitempty"`
	Status    string    `json:"status,omitempty"`
	Category  string    `json:"category,omitempty"`
	Action    string    `json:"action,omitempty"`
	Label     string    `json:"label,omitempty"`
	Error     string    `json:"error,omitempty"`
	Result    *Result   `json:"result,omitempty"`
}

// MessageError records one message that failed inside a batch.
type MessageError struct {
	MessageID string `json:"message_id"`
	Detail    string `json:"detail"`
}

// Result is the final tally of a batch run. Skipped counts messages with an
// existing processed decision; they are not attempted and raise no events.
type Result struct {
	Mailbox      string                        `json:"mailbox"`
	Processed    int                           `json:"processed"`
	Skipped      int                           `json:"skipped"`
	Counts       map[triagedomain.Category]int `json:"counts"`
	Errors       []MessageError                `json:"errors,omitempty"`
	ErrorCount   int                           `json:"error_count"`
	StoppedEarly bool                          `json:"stopped_early"`
	Cancelled    bool                          `json:"cancelled"`

	lastProcessed processedDetail
}

// processedDetail carries the most recent successful outcome so the message
// event can report what was done.
type processedDetail struct {
	category string
	action   string
	label    string
}

func (r *Result) attempted() int { return r.Processed + r.ErrorCount }

// failFastThreshold is the attempt count after which an all-errors run is
// cut short mid-batch.
const failFastThreshold = 3

// Job is one in-flight batch run. Its event channel is buffered wide enough
// that the producer never blocks on a slow or absent subscriber, and is
// closed exactly once after the terminal event. The last buffer slot is
// reserved for the terminal event so it survives even an undrained stream.
type Job struct {
	ID        string
	Mailbox   string
	StartedAt time.Time

	events    chan Event
	cancelled atomic.Bool
	done      atomic.Bool
}

// Events returns the job's event stream. The channel closes after the
// terminal event.
func (j *Job) Events() <-chan Event { return j.events }

// Cancel requests the job stop at the next message boundary. In-flight
// message work is never interrupted mid-action.
func (j *Job) Cancel() { j.cancelled.Store(true) }

// Done reports whether the job has emitted its terminal event.
func (j *Job) Done() bool { return j.done.Load() }

func (j *Job) emit(ev Event) {
	ev.JobID = j.ID
	// Never take the slot reserved for the terminal event. The run goroutine
	// is the only sender, so the free space seen here cannot shrink before
	// the send below.
	if len(j.events) >= cap(j.events)-1 {
		return
	}
	select {
	case j.events <- ev:
	default:
	}
}

// emitTerminal delivers the final event into the reserved buffer slot.
func (j *Job) emitTerminal(ev Event) {
	ev.JobID = j.ID
	select {
	case j.events <- ev:
	default:
	}
}

// Controller runs batch cleanup jobs: walk the inbox, classify, act, log.
// Jobs run detached from the request that started them and are looked up by
// id for event streaming and cancellation. The batch path raises no alerts;
// only notification-driven sync does.
type Controller struct {
	mail        MailService
	store       staterepo.Store
	engine      *Engine
	logger      *slog.Logger
	idleTimeout time.Duration

	mu   sync.Mutex
	jobs map[string]*Job
}

// ErrJobNotFound is returned for job ids the controller does not track,
// including jobs already released.
var ErrJobNotFound = errors.New("job not found")

func NewController(mail MailService, store staterepo.Store, engine *Engine, idleTimeout time.Duration, logger *slog.Logger) *Controller {
	if idleTimeout <= 0 {
		idleTimeout = 5 * time.Minute
	}
	return &Controller{
		mail:        mail,
		store:       store,
		engine:      engine,
		logger:      logger.With("component", "controller"),
		idleTimeout: idleTimeout,
		jobs:        make(map[string]*Job),
	}
}

// Start launches a batch job over up to batchSize inbox messages and returns
// immediately with the job handle. The job runs on its own context; the
// caller's request ending does not stop it.
func (c *Controller) Start(mailbox string, batchSize int) (*Job, error) {
	if mailbox == "" {
		return nil, errors.New("mailbox required")
	}
	if batchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", batchSize)
	}

	job := &Job{
		ID:        uuid.New().String(),
		Mailbox:   mailbox,
		StartedAt: time.Now(),
		events:    make(chan Event, batchSize+8),
	}

	c.mu.Lock()
	c.jobs[job.ID] = job
	c.mu.Unlock()

	go c.run(job, batchSize)
	return job, nil
}

// Lookup returns the job for id, or ErrJobNotFound.
func (c *Controller) Lookup(jobID string) (*Job, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	job, ok := c.jobs[jobID]
	if !ok {
		return nil, ErrJobNotFound
	}
	return job, nil
}

// Cancel requests cancellation of a running job.
func (c *Controller) Cancel(jobID string) error {
	job, err := c.Lookup(jobID)
	if err != nil {
		return err
	}
	job.Cancel()
	return nil
}

// Release drops a finished job from the registry. Subscribers call it after
// draining the event stream; an idle timer releases jobs nobody drains.
func (c *Controller) Release(jobID string) {
	c.mu.Lock()
	delete(c.jobs, jobID)
	c.mu.Unlock()
}

// RunOnce executes a batch synchronously on the caller's context and returns
// the final result. Shares all semantics with Start except event streaming.
func (c *Controller) RunOnce(ctx context.Context, mailbox string, batchSize int) (*Result, error) {
	if mailbox == "" {
		return nil, errors.New("mailbox required")
	}
	if batchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", batchSize)
	}
	return c.processBatch(ctx, nil, mailbox, batchSize)
}

func (c *Controller) run(job *Job, batchSize int) {
	defer func() {
		job.done.Store(true)
		close(job.events)
		// Backstop for subscribers that never show up.
		time.AfterFunc(c.idleTimeout, func() { c.Release(job.ID) })
	}()

	job.emit(Event{Type: EventJobStarted, Mailbox: job.Mailbox})

	result, err := c.processBatch(context.Background(), job, job.Mailbox, batchSize)
	switch {
	case err != nil:
		c.logger.Error("job failed", "job_id", job.ID, "mailbox", job.Mailbox, "error", err)
		job.emitTerminal(Event{Type: EventError, Mailbox: job.Mailbox, Error: err.Error(), Result: result})
	case result.Cancelled:
		c.logger.Info("job cancelled", "job_id", job.ID, "mailbox", job.Mailbox,
			"processed", result.Processed)
		job.emitTerminal(Event{Type: EventCancelled, Mailbox: job.Mailbox, Result: result})
	default:
		c.logger.Info("job complete", "job_id", job.ID, "mailbox", job.Mailbox,
			"processed", result.Processed, "skipped", result.Skipped,
			"errors", result.ErrorCount, "stopped_early", result.StoppedEarly)
		job.emitTerminal(Event{Type: EventComplete, Mailbox: job.Mailbox, Result: result})
	}
}

// processBatch walks inbox pages until batchSize messages have been
// attempted, the inbox runs out, the job is cancelled, or the fail-fast
// guard trips. job is nil for synchronous runs; events are then suppressed.
func (c *Controller) processBatch(ctx context.Context, job *Job, mailbox string, batchSize int) (*Result, error) {
	result := &Result{
		Mailbox: mailbox,
		Counts:  make(map[triagedomain.Category]int),
	}
	executor := NewExecutor(c.mail, mailbox, c.logger)

	started := false
	pageToken := ""
	for result.attempted() < batchSize {
		remaining := batchSize - result.attempted()
		page, err := c.mail.ListInbox(ctx, mailbox, int64(remaining), pageToken)
		if err != nil {
			return result, fmt.Errorf("list inbox: %w", err)
		}
		if job != nil && len(page.IDs) > 0 && !started {
			started = true
			job.emit(Event{Type: EventBatchStarted, Mailbox: mailbox})
		}

		for _, id := range page.IDs {
			if job != nil && job.cancelled.Load() {
				result.Cancelled = true
				return result, nil
			}
			if result.attempted() >= batchSize {
				break
			}

			skipped, err := c.processOne(ctx, executor, result, mailbox, id)
			if skipped {
				continue
			}
			if job != nil {
				ev := Event{Type: EventMessage, Mailbox: mailbox, MessageID: id}
				if err != nil {
					ev.Status = "error"
					ev.Error = err.Error()
				} else {
					last := result.lastProcessed
					ev.Status = "processed"
					ev.Category = last.category
					ev.Action = last.action
					ev.Label = last.label
				}
				job.emit(ev)
			}

			if result.ErrorCount == result.attempted() && result.attempted() >= failFastThreshold {
				result.StoppedEarly = true
				return result, nil
			}
		}

		if page.NextPageToken == "" {
			break
		}
		pageToken = page.NextPageToken
	}

	// Smaller runs where every attempt failed are reported the same way.
	if result.ErrorCount > 0 && result.ErrorCount == result.attempted() {
		result.StoppedEarly = true
	}
	return result, nil
}

// processOne classifies and acts on a single message, updating the result
// tallies and the decision log. skipped is true when the message already has
// a processed decision or vanished before we reached it.
func (c *Controller) processOne(ctx context.Context, executor *Executor, result *Result, mailbox, id string) (skipped bool, err error) {
	existing, err := c.store.GetDecision(ctx, mailbox, id)
	if err != nil {
		c.recordError(ctx, result, mailbox, id, err)
		return false, err
	}
	if existing != nil && existing.State == statedomain.DecisionProcessed {
		result.Skipped++
		return true, nil
	}

	env, err := c.mail.GetMessage(ctx, mailbox, id)
	if err != nil {
		if errors.Is(err, triagedomain.ErrMessageNotFound) {
			result.Skipped++
			return true, nil
		}
		c.recordError(ctx, result, mailbox, id, err)
		return false, err
	}

	labels, err := executor.UserLabels(ctx)
	if err != nil {
		c.recordError(ctx, result, mailbox, id, err)
		return false, err
	}

	decision, err := c.engine.Classify(ctx, env, labels)
	if err != nil {
		c.recordError(ctx, result, mailbox, id, err)
		return false, err
	}

	action, label, err := executor.Apply(ctx, id, decision)
	if err != nil {
		c.recordError(ctx, result, mailbox, id, err)
		return false, err
	}

	if err := c.store.PutDecision(ctx, &statedomain.MessageDecision{
		GmailID:      id,
		MailboxEmail: mailbox,
		Category:     string(decision.Category),
		Action:       action,
		Label:        label,
		State:        statedomain.DecisionProcessed,
		DecidedAt:    time.Now(),
	}); err != nil {
		c.recordError(ctx, result, mailbox, id, err)
		return false, err
	}

	result.Processed++
	result.Counts[decision.Category]++
	result.lastProcessed = processedDetail{
		category: string(decision.Category),
		action:   action,
		label:    label,
	}
	return false, nil
}

func (c *Controller) recordError(ctx context.Context, result *Result, mailbox, id string, cause error) {
	c.logger.Warn("message failed", "mailbox", mailbox, "message_id", id, "error", cause)
	result.ErrorCount++
	result.Errors = append(result.Errors, MessageError{MessageID: id, Detail: cause.Error()})
	if err := c.store.PutDecision(ctx, &statedomain.MessageDecision{
		GmailID:      id,
		MailboxEmail: mailbox,
		State:        statedomain.DecisionError,
		ErrorDetail:  cause.Error(),
		DecidedAt:    time.Now(),
	}); err != nil {
		c.logger.Error("decision log failed", "mailbox", mailbox, "message_id", id, "error", err)
	}
}
