package redis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := Wrap(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { client.Close() })
	return client, mr
}

func TestProperty_SeqIDStrictIncrement(t *testing.T) {
	client, _ := setupTestRedis(t)
	ctx := context.Background()

	properties := gopter.NewProperties(nil)

	properties.Property("sequential allocation for one conversation increments by one", prop.ForAll(
		func(conversation string, count int) bool {
			prev, err := client.NextSeq(ctx, conversation, nil)
			if err != nil {
				return false
			}
			for range count {
				next, err := client.NextSeq(ctx, conversation, nil)
				if err != nil || next != prev+1 {
					return false
				}
				prev = next
			}
			return true
		},
		gen.Identifier().Map(func(s string) string { return "group:" + s }),
		gen.IntRange(2, 20),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestNextSeq_Concurrent(t *testing.T) {
	client, _ := setupTestRedis(t)
	ctx := context.Background()

	const goroutines, perGoroutine = 8, 25
	results := make(chan int64, goroutines*perGoroutine)

	var wg sync.WaitGroup
	for range goroutines {
		wg.Go(func() {
			for range perGoroutine {
				seq, err := client.NextSeq(ctx, "group:g1", nil)
				assert.NoError(t, err)
				results <- seq
			}
		})
	}
	wg.Wait()
	close(results)

	seen := make(map[int64]bool)
	for seq := range results {
		assert.False(t, seen[seq], "duplicate seq %d", seq)
		seen[seq] = true
	}
	assert.Len(t, seen, goroutines*perGoroutine)
	for i := int64(1); i <= goroutines*perGoroutine; i++ {
		assert.True(t, seen[i], "missing seq %d", i)
	}
}

func TestNextSeq_ResumesAboveFloor(t *testing.T) {
	client, mr := setupTestRedis(t)
	ctx := context.Background()

	calls := 0
	floor := func(context.Context) (int64, error) {
		calls++
		return 41, nil
	}

	seq, err := client.NextSeq(ctx, "direct:a:b", floor)
	require.NoError(t, err)
	assert.Equal(t, int64(42), seq)

	seq, err = client.NextSeq(ctx, "direct:a:b", floor)
	require.NoError(t, err)
	assert.Equal(t, int64(43), seq)
	assert.Equal(t, 1, calls, "floor is only read while the counter is missing")

	// Redis 数据丢失后从数据库的最大值继续
	mr.FlushAll()
	seq, err = client.NextSeq(ctx, "direct:a:b", floor)
	require.NoError(t, err)
	assert.Equal(t, int64(42), seq)
	assert.Equal(t, 2, calls)
}

func TestNextSeq_FloorError(t *testing.T) {
	client, _ := setupTestRedis(t)

	_, err := client.NextSeq(context.Background(), "group:g1", func(context.Context) (int64, error) {
		return 0, errors.New("db down")
	})
	assert.ErrorContains(t, err, "db down")
}

func TestUserOnline(t *testing.T) {
	client, mr := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, client.SetUserOnline(ctx, "alice", "node-1", time.Minute))
	online, err := client.IsUserOnline(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, online)
	assert.Equal(t, "node-1", mustGet(t, mr, "user:alice:online"))

	mr.FastForward(2 * time.Minute)
	online, err = client.IsUserOnline(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, online, "presence expires with its ttl")

	require.NoError(t, client.SetUserOnline(ctx, "bob", "node-2", time.Minute))
	require.NoError(t, client.RemoveUserOnline(ctx, "bob"))
	online, err = client.IsUserOnline(ctx, "bob")
	require.NoError(t, err)
	assert.False(t, online)
}

func TestPublishSubscribe(t *testing.T) {
	client, _ := setupTestRedis(t)
	ctx := context.Background()

	pubsub, err := client.Subscribe(ctx, "events")
	require.NoError(t, err)
	defer pubsub.Close()

	require.NoError(t, client.Publish(ctx, "events", "hello"))

	select {
	case msg := <-pubsub.Channel():
		assert.Equal(t, "events", msg.Channel)
		assert.Equal(t, "hello", msg.Payload)
	case <-time.After(2 * time.Second):
		t.Fatal("message not delivered")
	}
}

func TestConnectionErrors(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := Wrap(redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1}))
	defer client.Close()
	mr.Close()

	_, err = client.NextSeq(context.Background(), "group:g1", nil)
	assert.Error(t, err)
	assert.Error(t, client.Ping(context.Background()))
}

func mustGet(t *testing.T, mr *miniredis.Miniredis, key string) string {
	t.Helper()
	v, err := mr.Get(key)
	require.NoError(t, err)
	return v
}
