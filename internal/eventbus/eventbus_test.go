package eventbus_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cubestore/metastore/internal/eventbus"
)

func TestBroadcastPreservesFIFOOrderPerListener(t *testing.T) {
	bus := eventbus.New()
	var got []any
	bus.AddListener(eventbus.ListenerFunc(func(_ context.Context, e any) error {
		got = append(got, e)
		return nil
	}))

	err := bus.Broadcast(context.Background(), []any{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, []any{1, 2, 3}, got)
}

func TestBroadcastContinuesAfterListenerError(t *testing.T) {
	bus := eventbus.New()
	var delivered int
	bus.AddListener(eventbus.ListenerFunc(func(_ context.Context, e any) error {
		delivered++
		if e == 2 {
			return fmt.Errorf("boom")
		}
		return nil
	}))

	err := bus.Broadcast(context.Background(), []any{1, 2, 3})
	require.Error(t, err)
	assert.Equal(t, 3, delivered)
}

func TestMultipleListenersEachReceiveEveryEvent(t *testing.T) {
	bus := eventbus.New()
	var a, b []any
	bus.AddListener(eventbus.ListenerFunc(func(_ context.Context, e any) error {
		a = append(a, e)
		return nil
	}))
	bus.AddListener(eventbus.ListenerFunc(func(_ context.Context, e any) error {
		b = append(b, e)
		return nil
	}))

	require.NoError(t, bus.Broadcast(context.Background(), []any{"x", "y"}))
	assert.Equal(t, []any{"x", "y"}, a)
	assert.Equal(t, []any{"x", "y"}, b)
}

func TestChannelListenerRespectsContextCancellation(t *testing.T) {
	ch := make(chan any) // unbuffered, nobody reading
	l := eventbus.NewChannelListener(ch)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := l.Notify(ctx, "event")
	require.Error(t, err)
}
