package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-maplefresh/internal/events"
	"github.com/noah-isme/backend-maplefresh/internal/obs"
	"github.com/noah-isme/backend-maplefresh/internal/repo"
)

// TaskEmail is the asynq task type carrying a domain event to email.
const TaskEmail = "notify:email"

// Enqueuer is the subset of *asynq.Client used to schedule tasks.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// TaskNotifier hands events to the worker instead of emailing inline.
type TaskNotifier struct {
	Client    Enqueuer
	Queue     string
	MaxRetry  int
	Retention time.Duration
}

// Notify implements the events.Notifier interface.
func (n TaskNotifier) Notify(ctx context.Context, event repo.DomainEvent) error {
	if n.Client == nil {
		return errors.New("task notify: client not configured")
	}
	task, err := NewEmailTask(event)
	if err != nil {
		return err
	}
	opts := []asynq.Option{asynq.TaskID(event.ID.String())}
	if n.Queue != "" {
		opts = append(opts, asynq.Queue(n.Queue))
	}
	if n.MaxRetry > 0 {
		opts = append(opts, asynq.MaxRetry(n.MaxRetry))
	}
	if n.Retention > 0 {
		opts = append(opts, asynq.Retention(n.Retention))
	}
	if _, err := n.Client.EnqueueContext(ctx, task, opts...); err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return nil
		}
		obs.Inc(obs.NotificationsTotal, event.Topic, "queue", "error")
		return fmt.Errorf("task notify: enqueue: %w", err)
	}
	obs.Inc(obs.NotificationsTotal, event.Topic, "queue", "enqueued")
	return nil
}

// NewEmailTask wraps event in a notify:email task.
func NewEmailTask(event repo.DomainEvent) (*asynq.Task, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("task notify: encode event: %w", err)
	}
	return asynq.NewTask(TaskEmail, payload), nil
}

// TaskHandler delivers notify:email tasks on the worker.
type TaskHandler struct {
	Email EmailNotifier
}

// ProcessTask implements asynq.Handler.
func (h TaskHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var event repo.DomainEvent
	if err := json.Unmarshal(t.Payload(), &event); err != nil {
		return fmt.Errorf("task notify: decode event: %v: %w", err, asynq.SkipRetry)
	}
	logger := zerolog.Ctx(ctx).With().Str("task", t.Type()).Str("event_id", event.ID.String()).Str("topic", event.Topic).Logger()
	if err := h.Email.Notify(logger.WithContext(ctx), event); err != nil {
		logger.Warn().Err(err).Msg("notification task failed")
		return err
	}
	logger.Debug().Msg("notification task done")
	return nil
}

var (
	_ events.Notifier = TaskNotifier{}
	_ asynq.Handler   = TaskHandler{}
)
