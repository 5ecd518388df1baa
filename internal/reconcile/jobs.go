package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// TaskMatch is the asynq task type for background matching.
const TaskMatch = "reconcile:match"

// Enqueuer schedules background matching for a stored session.
type Enqueuer interface {
	EnqueueMatch(ctx context.Context, sessionID string) error
}

type matchPayload struct {
	SessionID string `json:"sessionId"`
}

// NewMatchTask builds the asynq task for sessionID.
func NewMatchTask(sessionID string) (*asynq.Task, error) {
	payload, err := json.Marshal(matchPayload{SessionID: sessionID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskMatch, payload, asynq.MaxRetry(3), asynq.Timeout(10*time.Minute)), nil
}

// AsynqEnqueuer publishes match tasks through an asynq client.
type AsynqEnqueuer struct {
	Client *asynq.Client
	Queue  string
}

// EnqueueMatch implements Enqueuer. The session id doubles as the task id so
// a session is never queued twice.
func (e AsynqEnqueuer) EnqueueMatch(ctx context.Context, sessionID string) error {
	task, err := NewMatchTask(sessionID)
	if err != nil {
		return err
	}
	opts := []asynq.Option{asynq.TaskID(sessionID)}
	if e.Queue != "" {
		opts = append(opts, asynq.Queue(e.Queue))
	}
	if _, err := e.Client.EnqueueContext(ctx, task, opts...); err != nil {
		return fmt.Errorf("enqueue match task: %w", err)
	}
	return nil
}

// Processor runs background match tasks.
type Processor interface {
	Process(ctx context.Context, sessionID string) error
}

// NewMatchHandler adapts a Processor to an asynq handler.
func NewMatchHandler(p Processor) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload matchPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("decode match payload: %v: %w", err, asynq.SkipRetry)
		}
		return p.Process(ctx, payload.SessionID)
	}
}
