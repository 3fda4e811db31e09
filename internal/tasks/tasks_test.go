package tasks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arvel-dev/backend-pricing/internal/order"
)

var errNotFound = errors.New("not found")

type fakeRecalculator struct {
	calls []uuid.UUID
	err   error
}

func (f *fakeRecalculator) Recalculate(_ context.Context, id uuid.UUID) (*order.Order, error) {
	f.calls = append(f.calls, id)
	if f.err != nil {
		return nil, f.err
	}
	o := order.New("buyer@example.com")
	o.ID = id
	return o, nil
}

type fakeSweepStore struct {
	disabled int64
	draftIDs []uuid.UUID
}

func (f *fakeSweepStore) DisableExpiredPromotions(context.Context, time.Time) (int64, error) {
	return f.disabled, nil
}

func (f *fakeSweepStore) ListDraftOrderIDs(context.Context, int) ([]uuid.UUID, error) {
	return f.draftIDs, nil
}

type fakeEnqueuer struct {
	tasks []*asynq.Task
}

func (f *fakeEnqueuer) EnqueueContext(_ context.Context, t *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	f.tasks = append(f.tasks, t)
	return &asynq.TaskInfo{}, nil
}

func TestHandleOrderRecalculate(t *testing.T) {
	recalc := &fakeRecalculator{}
	h := &Handler{Cart: recalc, Logger: zerolog.Nop()}

	orderID := uuid.New()
	task, err := NewOrderRecalculateTask(orderID)
	require.NoError(t, err)

	require.NoError(t, h.HandleOrderRecalculate(context.Background(), task))
	require.Len(t, recalc.calls, 1)
	assert.Equal(t, orderID, recalc.calls[0])
}

func TestHandleOrderRecalculateMissingOrderCompletes(t *testing.T) {
	recalc := &fakeRecalculator{err: errNotFound}
	h := &Handler{Cart: recalc, Logger: zerolog.Nop(), NotFoundErr: errNotFound}

	task, err := NewOrderRecalculateTask(uuid.New())
	require.NoError(t, err)
	require.NoError(t, h.HandleOrderRecalculate(context.Background(), task))
}

func TestHandleOrderRecalculateBadPayloadSkipsRetry(t *testing.T) {
	h := &Handler{Cart: &fakeRecalculator{}, Logger: zerolog.Nop()}
	err := h.HandleOrderRecalculate(context.Background(),
		asynq.NewTask(TypeOrderRecalculate, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestHandlePromotionSweepFansOut(t *testing.T) {
	ids := []uuid.UUID{uuid.New(), uuid.New()}
	client := &fakeEnqueuer{}
	h := &Handler{
		Store:  &fakeSweepStore{disabled: 1, draftIDs: ids},
		Client: client,
		Logger: zerolog.Nop(),
	}

	require.NoError(t, h.HandlePromotionSweep(context.Background(), NewPromotionSweepTask()))
	require.Len(t, client.tasks, 2)
	assert.Equal(t, TypeOrderRecalculate, client.tasks[0].Type())
}

func TestHandlePromotionSweepNothingExpired(t *testing.T) {
	client := &fakeEnqueuer{}
	h := &Handler{
		Store:  &fakeSweepStore{disabled: 0, draftIDs: []uuid.UUID{uuid.New()}},
		Client: client,
		Logger: zerolog.Nop(),
	}

	require.NoError(t, h.HandlePromotionSweep(context.Background(), NewPromotionSweepTask()))
	assert.Empty(t, client.tasks)
}
