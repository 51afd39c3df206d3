package broadcast

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpapenbr/racegrid/log"
)

func collect(ch <-chan int) (*[]int, *sync.WaitGroup) {
	ret := make([]int, 0)
	wg := &sync.WaitGroup{}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for v := range ch {
			ret = append(ret, v)
		}
	}()
	return &ret, wg
}

func TestBroadcast(t *testing.T) {
	src := make(chan int)
	b := NewBroadcastServer[int](context.Background(), "test", src,
		WithLogger[int](log.Nop()), WithSendTimeout[int](time.Second))
	s1, wg1 := collect(b.Subscribe())
	s2, wg2 := collect(b.Subscribe())
	for i := range 3 {
		src <- i
	}
	b.Close()
	wg1.Wait()
	wg2.Wait()
	assert.Equal(t, []int{0, 1, 2}, *s1)
	assert.Equal(t, []int{0, 1, 2}, *s2)
}

func TestCancelSubscription(t *testing.T) {
	src := make(chan int)
	b := NewBroadcastServer[int](context.Background(), "test", src, WithLogger[int](log.Nop()))
	defer b.Close()
	ch := b.Subscribe()
	got, wg := collect(ch)
	b.CancelSubscription(ch)
	wg.Wait()
	assert.Empty(t, *got)
}

func TestAfterClose(t *testing.T) {
	src := make(chan int)
	b := NewBroadcastServer[int](context.Background(), "test", src, WithLogger[int](log.Nop()))
	b.Close()

	ch := b.Subscribe()
	_, ok := <-ch
	assert.False(t, ok, "subscription after close must be closed")

	done := make(chan struct{})
	go func() {
		b.CancelSubscription(ch)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		require.Fail(t, "CancelSubscription blocked after close")
	}
}

func TestSourceClosed(t *testing.T) {
	src := make(chan int)
	b := NewBroadcastServer[int](context.Background(), "test", src, WithLogger[int](log.Nop()))
	ch := b.Subscribe()
	close(src)
	_, ok := <-ch
	assert.False(t, ok)
	b.Close()
}

func TestSlowListenerSkips(t *testing.T) {
	var buf bytes.Buffer
	src := make(chan int)
	b := NewBroadcastServer[int](context.Background(), "test", src,
		WithLogger[int](log.New(&buf, log.WarnLevel)), WithSendTimeout[int](10*time.Millisecond))
	b.Subscribe() // never read
	src <- 1
	// the server takes the next message only after the first one was handled
	src <- 2
	b.Close()
	impl := b.(*broadcastServer[int])
	assert.GreaterOrEqual(t, impl.numSkip.Load(), int64(1))
	assert.Zero(t, impl.numSnd.Load())
	assert.Contains(t, buf.String(), "message skipped")
	assert.Contains(t, buf.String(), `"name":"test"`)
}

func TestBlockingSend(t *testing.T) {
	src := make(chan int)
	b := NewBroadcastServer[int](context.Background(), "test", src,
		WithLogger[int](log.Nop()), WithSendTimeout[int](0))
	ch := b.Subscribe()
	go func() {
		for i := range 3 {
			src <- i
		}
	}()
	// a late reader still gets every message
	time.Sleep(50 * time.Millisecond)
	got := make([]int, 0, 3)
	for range 3 {
		got = append(got, <-ch)
	}
	b.Close()
	assert.Equal(t, []int{0, 1, 2}, got)
	assert.Zero(t, b.(*broadcastServer[int]).numSkip.Load())
}
