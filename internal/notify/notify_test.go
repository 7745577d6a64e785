package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/pribylovaa/comment-tree/internal/models"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestRedisSink_Publish(t *testing.T) {
	s := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	sink := NewRedisSink(rdb, "")
	root := models.RootRef{Kind: models.RootPage, ID: 7}
	require.Equal(t, "notification-page-7", sink.Channel(root))

	ctx := context.Background()
	sub := rdb.Subscribe(ctx, sink.Channel(root))
	t.Cleanup(func() { _ = sub.Close() })
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	require.NoError(t, sink.Notify(ctx, Event{Root: root, Payload: Payload{CommentID: 3, Reason: ReasonCreated}}))

	select {
	case msg := <-sub.Channel():
		var got message
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
		require.Equal(t, models.RootPage, got.ContentType)
		require.Equal(t, int64(7), got.ObjectID)
		require.Equal(t, int64(3), got.Data.CommentID)
		require.Equal(t, ReasonCreated, got.Data.Reason)
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
	}
}

type sinkFunc func(ctx context.Context, e Event) error

func (f sinkFunc) Notify(ctx context.Context, e Event) error { return f(ctx, e) }

func TestAsync_SwallowsErrors(t *testing.T) {
	var calls atomic.Int32
	a := NewAsync(sinkFunc(func(context.Context, Event) error {
		calls.Add(1)
		return errors.New("down")
	}), time.Second, nil)

	a.Emit(context.Background(), Event{})
	a.Wait()
	require.Equal(t, int32(1), calls.Load())
}

func TestAsync_IgnoresCallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var sawErr atomic.Value
	a := NewAsync(sinkFunc(func(ctx context.Context, _ Event) error {
		sawErr.Store(ctx.Err() == nil)
		return nil
	}), time.Second, nil)

	a.Emit(ctx, Event{})
	a.Wait()
	require.Equal(t, true, sawErr.Load())
}

func TestAsync_RecoversPanic(t *testing.T) {
	a := NewAsync(sinkFunc(func(context.Context, Event) error { panic("boom") }), 0, nil)

	require.NotPanics(t, func() {
		a.Emit(context.Background(), Event{})
		a.Wait()
	})
}
