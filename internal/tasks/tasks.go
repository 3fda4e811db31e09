// Package tasks defines the background jobs: per-order recalculation and
// the periodic promotion sweep. Jobs run through asynq; payloads are small
// JSON documents carrying ids only.
package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/arvel-dev/backend-pricing/internal/obs"
	"github.com/arvel-dev/backend-pricing/internal/order"
)

// Task type names, also the asynq routing keys.
const (
	TypeOrderRecalculate = "order:recalculate"
	TypePromotionSweep   = "promotion:sweep"
)

// OrderRecalculatePayload identifies the order to recalculate.
type OrderRecalculatePayload struct {
	OrderID uuid.UUID `json:"order_id"`
}

// NewOrderRecalculateTask builds the asynq task for one order.
func NewOrderRecalculateTask(orderID uuid.UUID) (*asynq.Task, error) {
	payload, err := json.Marshal(OrderRecalculatePayload{OrderID: orderID})
	if err != nil {
		return nil, fmt.Errorf("marshal recalculate payload: %w", err)
	}
	return asynq.NewTask(TypeOrderRecalculate, payload,
		asynq.MaxRetry(5), asynq.Timeout(time.Minute)), nil
}

// NewPromotionSweepTask builds the periodic sweep task.
func NewPromotionSweepTask() *asynq.Task {
	return asynq.NewTask(TypePromotionSweep, nil, asynq.MaxRetry(3))
}

// Recalculator reruns the pricing pipeline for one order.
type Recalculator interface {
	Recalculate(ctx context.Context, orderID uuid.UUID) (*order.Order, error)
}

// SweepStore covers the store operations the sweep needs.
type SweepStore interface {
	DisableExpiredPromotions(ctx context.Context, now time.Time) (int64, error)
	ListDraftOrderIDs(ctx context.Context, limit int) ([]uuid.UUID, error)
}

// Enqueuer matches asynq.Client.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Handler processes the background jobs.
type Handler struct {
	Cart      Recalculator
	Store     SweepStore
	Client    Enqueuer
	Logger    zerolog.Logger
	BatchSize int
	Now       func() time.Time

	// NotFoundErr marks errors that should complete the task instead of
	// retrying: recalculating a deleted order is not a failure.
	NotFoundErr error
}

func (h *Handler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

func (h *Handler) batchSize() int {
	if h.BatchSize <= 0 {
		return 500
	}
	return h.BatchSize
}

// Register attaches the handlers to the mux.
func (h *Handler) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeOrderRecalculate, h.HandleOrderRecalculate)
	mux.HandleFunc(TypePromotionSweep, h.HandlePromotionSweep)
}

// HandleOrderRecalculate reruns the pricing pipeline for the order in the
// payload. A missing order completes the task; recalculation is idempotent
// so redelivery is harmless.
func (h *Handler) HandleOrderRecalculate(ctx context.Context, t *asynq.Task) error {
	var payload OrderRecalculatePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal %s payload: %v: %w", TypeOrderRecalculate, err, asynq.SkipRetry)
	}
	if h.Cart == nil {
		return errors.New("tasks: recalculator not configured")
	}
	started := time.Now()
	o, err := h.Cart.Recalculate(ctx, payload.OrderID)
	if err != nil {
		if h.NotFoundErr != nil && errors.Is(err, h.NotFoundErr) {
			h.Logger.Warn().Str("order_id", payload.OrderID.String()).Msg("recalculate: order gone")
			return nil
		}
		obs.ObserveRecalculation("task", "error", time.Since(started))
		return fmt.Errorf("recalculate order %s: %w", payload.OrderID, err)
	}
	obs.ObserveRecalculation("task", "ok", time.Since(started))
	h.Logger.Info().
		Str("order_id", o.ID.String()).
		Msg("order recalculated")
	return nil
}

// HandlePromotionSweep disables promotions whose window has closed, then
// fans out a recalculation task per draft order so stale promotion
// adjustments disappear from stored totals.
func (h *Handler) HandlePromotionSweep(ctx context.Context, _ *asynq.Task) error {
	if h.Store == nil {
		return errors.New("tasks: sweep store not configured")
	}
	disabled, err := h.Store.DisableExpiredPromotions(ctx, h.now())
	if err != nil {
		return fmt.Errorf("promotion sweep: %w", err)
	}
	obs.ObservePromotionSweep(disabled)
	if disabled == 0 {
		h.Logger.Debug().Msg("promotion sweep: nothing expired")
		return nil
	}

	ids, err := h.Store.ListDraftOrderIDs(ctx, h.batchSize())
	if err != nil {
		return fmt.Errorf("promotion sweep: %w", err)
	}
	enqueued := 0
	for _, id := range ids {
		task, err := NewOrderRecalculateTask(id)
		if err != nil {
			return err
		}
		if h.Client == nil {
			continue
		}
		if _, err := h.Client.EnqueueContext(ctx, task); err != nil {
			return fmt.Errorf("enqueue recalculate for order %s: %w", id, err)
		}
		enqueued++
	}
	h.Logger.Info().
		Int64("promotions_disabled", disabled).
		Int("orders_enqueued", enqueued).
		Msg("promotion sweep complete")
	return nil
}
