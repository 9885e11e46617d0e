package ratelimit

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRedis answers INCR and EXPIRE from a map through a client hook, so no
// server is dialed.
type fakeRedis struct {
	mu         sync.Mutex
	vals       map[string]int64
	ttls       map[string]time.Duration
	failExpire bool
	batches    [][]string
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{vals: map[string]int64{}, ttls: map[string]time.Duration{}}
}

func (f *fakeRedis) DialHook(next redis.DialHook) redis.DialHook { return next }

func (f *fakeRedis) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		return f.run([]redis.Cmder{cmd})
	}
}

func (f *fakeRedis) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		return f.run(cmds)
	}
}

func (f *fakeRedis) run(cmds []redis.Cmder) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var names []string
	for _, cmd := range cmds {
		names = append(names, cmd.Name())
		args := cmd.Args()
		switch cmd.Name() {
		case "incr":
			k := args[1].(string)
			f.vals[k]++
			cmd.(*redis.IntCmd).SetVal(f.vals[k])
		case "expire":
			if f.failExpire {
				err := errors.New("LOADING redis is loading the dataset")
				cmd.SetErr(err)
				f.batches = append(f.batches, names)
				return err
			}
			k := args[1].(string)
			nx := len(args) > 3 && strings.EqualFold(args[3].(string), "nx")
			if _, has := f.ttls[k]; has && nx {
				cmd.(*redis.BoolCmd).SetVal(false)
				continue
			}
			f.ttls[k] = time.Duration(args[2].(int64)) * time.Second
			cmd.(*redis.BoolCmd).SetVal(true)
		}
	}
	f.batches = append(f.batches, names)
	return nil
}

// elapse drops keys whose window has passed.
func (f *fakeRedis) elapse(k string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.ttls[k]; ok {
		delete(f.vals, k)
		delete(f.ttls, k)
	}
}

func newTestRedisCounter(t *testing.T) (*RedisCounter, *fakeRedis) {
	t.Helper()
	fake := newFakeRedis()
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	client.AddHook(fake)
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisCounter(client, "cabinet:rl"), fake
}

func TestRedisCounter_CountsInOneTransaction(t *testing.T) {
	c, fake := newTestRedisCounter(t)
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		n, err := c.Incr(ctx, "policy:7:u1", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, i, n)
	}

	assert.Equal(t, time.Minute, fake.ttls["cabinet:rl:policy:7:u1"])
	require.Len(t, fake.batches, 3)
	assert.Equal(t, []string{"multi", "incr", "expire", "exec"}, fake.batches[0])

	n, err := c.Incr(ctx, "policy:7:u2", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "keys are independent")
}

func TestRedisCounter_LostExpireIsRecovered(t *testing.T) {
	c, fake := newTestRedisCounter(t)
	ctx := context.Background()
	key := "cabinet:rl:policy:7:u1"

	fake.failExpire = true
	_, err := c.Incr(ctx, "policy:7:u1", time.Minute)
	require.Error(t, err)
	_, hasTTL := fake.ttls[key]
	require.False(t, hasTTL)

	fake.failExpire = false
	n, err := c.Incr(ctx, "policy:7:u1", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, time.Minute, fake.ttls[key], "a later hit sets the missing TTL")

	fake.elapse(key)
	n, err = c.Incr(ctx, "policy:7:u1", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "the window resets once it expires")
}
