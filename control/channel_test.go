package control

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelDeliversInPostOrderExactlyOnce(t *testing.T) {
	for _, depth := range []int{1, 4} {
		ch := New(depth)
		const total = 500

		done := make(chan struct{})
		go func() {
			defer close(done)
			for i := 0; i < total; i++ {
				assert.NoError(t, ch.Post(context.Background(), DeleteFriend{Friend: uint32(i)}))
			}
		}()

		var got []uint32
		deadline := time.After(5 * time.Second)
		for len(got) < total {
			select {
			case <-deadline:
				t.Fatalf("depth %d: received %d of %d commands", depth, len(got), total)
			default:
			}
			ch.Drain(func(cmd Command) {
				got = append(got, cmd.(DeleteFriend).Friend)
			})
		}
		<-done

		for i, f := range got {
			assert.Equal(t, uint32(i), f, "depth %d", depth)
		}
		assert.False(t, ch.Drain(func(Command) { t.Fatal("unexpected duplicate") }))
	}
}

func TestDrainTakesOneCommandPerCall(t *testing.T) {
	ch := New(3)
	ctx := context.Background()
	require.NoError(t, ch.Post(ctx, NewGroup{}))
	require.NoError(t, ch.Post(ctx, LeaveGroup{Group: 2}))
	assert.Equal(t, 2, ch.Pending())

	var ops []string
	assert.True(t, ch.Drain(func(c Command) { ops = append(ops, c.Op()) }))
	assert.Equal(t, []string{"new_group"}, ops)
	assert.Equal(t, 1, ch.Pending())
}

func TestPostBlocksWhileSlotOccupied(t *testing.T) {
	ch := New(1)
	require.NoError(t, ch.Post(context.Background(), NewGroup{}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := ch.Post(ctx, NewGroup{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	var wg sync.WaitGroup
	wg.Add(1)
	posted := make(chan struct{})
	go func() {
		defer wg.Done()
		assert.NoError(t, ch.Post(context.Background(), LeaveGroup{Group: 7}))
		close(posted)
	}()

	select {
	case <-posted:
		t.Fatal("post should block until the slot is drained")
	case <-time.After(20 * time.Millisecond):
	}

	ch.Drain(func(Command) {})
	wg.Wait()

	var last Command
	ch.Drain(func(c Command) { last = c })
	assert.Equal(t, LeaveGroup{Group: 7}, last)
}

func TestPostAfterClose(t *testing.T) {
	ch := New(1)
	ch.Close()
	ch.Close()
	assert.ErrorIs(t, ch.Post(context.Background(), NewGroup{}), ErrClosed)
}

func TestCloseUnblocksWaitingProducer(t *testing.T) {
	ch := New(1)
	require.NoError(t, ch.Post(context.Background(), NewGroup{}))

	errc := make(chan error, 1)
	go func() { errc <- ch.Post(context.Background(), NewGroup{}) }()

	time.Sleep(10 * time.Millisecond)
	ch.Close()

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("producer was not released by Close")
	}
}

func TestPostRejectsNil(t *testing.T) {
	assert.Error(t, New(1).Post(context.Background(), nil))
}
