package notify

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/forkline-erp/forkline/jobs"
)

func newTestNotifier(t *testing.T) (*AsynqNotifier, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := asynq.NewClient(asynq.RedisClientOpt{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	inspect := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = inspect.Close() })
	return NewAsynqNotifier(client), inspect
}

func TestSendEnqueuesOnDefaultQueue(t *testing.T) {
	notifier, inspect := newTestNotifier(t)

	err := notifier.Send(context.Background(), Message{
		RecipientID: 42,
		Priority:    PriorityNormal,
		Title:       "Large payment recorded",
		Amount:      6200,
	})
	require.NoError(t, err)

	ctx := context.Background()
	queues, err := inspect.SMembers(ctx, "asynq:queues").Result()
	require.NoError(t, err)
	require.Contains(t, queues, jobs.QueueDefault)

	pending, err := inspect.LLen(ctx, "asynq:{default}:pending").Result()
	require.NoError(t, err)
	require.Equal(t, int64(1), pending)
}

func TestSendRoutesHighPriorityToCriticalQueue(t *testing.T) {
	notifier, inspect := newTestNotifier(t)

	err := notifier.Send(context.Background(), Message{
		RecipientID: 42,
		Priority:    PriorityHigh,
		Title:       "Large payment recorded",
		Amount:      15000,
	})
	require.NoError(t, err)

	ctx := context.Background()
	pending, err := inspect.LLen(ctx, "asynq:{critical}:pending").Result()
	require.NoError(t, err)
	require.Equal(t, int64(1), pending)

	onDefault, err := inspect.LLen(ctx, "asynq:{default}:pending").Result()
	require.NoError(t, err)
	require.Zero(t, onDefault)
}

func TestSendWithoutClient(t *testing.T) {
	var notifier *AsynqNotifier
	require.Error(t, notifier.Send(context.Background(), Message{RecipientID: 1}))
}
