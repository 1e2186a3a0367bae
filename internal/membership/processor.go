package membership

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// Processor applies activation tasks pulled from the queue. The insert is
// keyed on the order, so replays of the same task are no-ops.
type Processor struct {
	Pool   *pgxpool.Pool
	Logger zerolog.Logger
}

// ProcessTask handles a TaskActivate task.
func (p *Processor) ProcessTask(ctx context.Context, t *asynq.Task) error {
	if p == nil || p.Pool == nil {
		return errors.New("membership: processor not configured")
	}
	var a Activation
	if err := json.Unmarshal(t.Payload(), &a); err != nil {
		// Malformed payloads never become valid: drop instead of retrying.
		return fmt.Errorf("membership: decode activation: %w: %w", err, asynq.SkipRetry)
	}
	if a.OrderID == "" || a.UserID <= 0 || a.MembershipID <= 0 {
		return fmt.Errorf("membership: incomplete activation for order %q: %w", a.OrderID, asynq.SkipRetry)
	}

	tag, err := p.Pool.Exec(ctx, `
		INSERT INTO membership_activations (order_id, user_id, membership_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (order_id) DO NOTHING`,
		a.OrderID, a.UserID, a.MembershipID,
	)
	if err != nil {
		return fmt.Errorf("membership: record activation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		p.Logger.Info().Str("order_id", a.OrderID).Msg("activation already recorded")
		return nil
	}
	p.Logger.Info().
		Str("order_id", a.OrderID).
		Int64("user_id", a.UserID).
		Int64("membership_id", a.MembershipID).
		Msg("membership activated")
	return nil
}
