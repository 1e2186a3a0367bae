package membership

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/noah-isme/backend-memberpay/internal/obs"
)

// TaskActivate is the asynq task type carrying a membership activation.
const TaskActivate = "membership:activate"

// Activation identifies the membership grant triggered by a completed order.
type Activation struct {
	UserID       int64  `json:"user_id"`
	MembershipID int64  `json:"membership_id"`
	OrderID      string `json:"order_id"`
}

// Activator triggers the membership activation side effect for an order.
type Activator interface {
	Activate(ctx context.Context, a Activation) error
}

// Enqueuer schedules activations on the task queue. The order is already
// durably marked success when Activate runs; the queue owns retries from here.
type Enqueuer struct {
	Client *asynq.Client
	Queue  string
}

// Activate enqueues the activation task. The task ID is derived from the
// order, so a duplicate enqueue for the same order is dropped by the queue.
func (e Enqueuer) Activate(ctx context.Context, a Activation) error {
	if e.Client == nil {
		return errors.New("membership: asynq client not configured")
	}
	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("membership: encode activation: %w", err)
	}
	opts := []asynq.Option{
		asynq.TaskID("activate:" + a.OrderID),
		asynq.MaxRetry(10),
	}
	if e.Queue != "" {
		opts = append(opts, asynq.Queue(e.Queue))
	}
	_, err = e.Client.EnqueueContext(ctx, asynq.NewTask(TaskActivate, payload), opts...)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return nil
		}
		return fmt.Errorf("membership: enqueue activation: %w", err)
	}
	if obs.ActivationEnqueuedTotal != nil {
		obs.ActivationEnqueuedTotal.Inc()
	}
	return nil
}
