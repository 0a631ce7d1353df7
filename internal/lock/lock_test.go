package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseMutualExclusion(t *testing.T, l Locker) {
	t.Helper()
	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(context.Background(), "loan:1")
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInside)
}

func TestKeyedMutualExclusion(t *testing.T) {
	k := NewKeyed()
	exerciseMutualExclusion(t, k)
	assert.Equal(t, 0, k.held(), "idle keys must be dropped")
}

func TestKeyedDistinctKeysDoNotBlock(t *testing.T) {
	k := NewKeyed()
	u1, err := k.Lock(context.Background(), "a")
	require.NoError(t, err)
	defer u1()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	u2, err := k.Lock(ctx, "b")
	require.NoError(t, err)
	u2()
}

func TestKeyedHonoursContext(t *testing.T) {
	k := NewKeyed()
	unlock, err := k.Lock(context.Background(), "a")
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = k.Lock(ctx, "a")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	unlock()
	unlock() // second call is a no-op
	assert.Equal(t, 0, k.held())
}

func newMiniredis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	c := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = c.Close() })
	return mr, c
}

func TestRedisMutualExclusion(t *testing.T) {
	_, c := newMiniredis(t)
	exerciseMutualExclusion(t, NewRedis(c, time.Second, WithRetry(time.Millisecond)))
}

func TestRedisReleaseOnlyOwnToken(t *testing.T) {
	mr, c := newMiniredis(t)
	r := NewRedis(c, time.Second, WithPrefix("t:"), WithRetry(time.Millisecond))
	unlock, err := r.Lock(context.Background(), "loan:9")
	require.NoError(t, err)
	require.True(t, mr.Exists("t:loan:9"))

	// another holder took over after expiry; our unlock must not delete it
	mr.FastForward(2 * time.Second)
	require.False(t, mr.Exists("t:loan:9"))
	require.NoError(t, mr.Set("t:loan:9", "someone-else"))
	unlock()
	v, err := mr.Get("t:loan:9")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", v)
}

func TestRedisHonoursContext(t *testing.T) {
	_, c := newMiniredis(t)
	r := NewRedis(c, time.Minute, WithRetry(5*time.Millisecond))
	unlock, err := r.Lock(context.Background(), "k")
	require.NoError(t, err)
	defer unlock()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = r.Lock(ctx, "k")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestConnect(t *testing.T) {
	mr, _ := newMiniredis(t)
	c, err := Connect(context.Background(), mr.Addr())
	require.NoError(t, err)
	_ = c.Close()
}
