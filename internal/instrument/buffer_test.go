package instrument

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cabinet-admin/internal/store"
)

type captureSink struct {
	mu      sync.Mutex
	batches [][]store.AuditEvent
	err     error
}

func (s *captureSink) InsertAuditEvents(_ context.Context, events []store.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, events)
	return s.err
}

func (s *captureSink) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, b := range s.batches {
		n += len(b)
	}
	return n
}

func TestAuditBuffer_StopFlushes(t *testing.T) {
	sink := &captureSink{}
	ab := NewAuditBuffer(sink, 100, 60_000)

	ab.Record(store.AuditEvent{Actor: "u1", Action: "role.create", Entity: "role", EntityID: "3"})
	ab.Record(store.AuditEvent{Actor: "u1", Action: "role.delete", Entity: "role", EntityID: "3"})
	assert.Equal(t, 2, ab.Pending())

	ab.Stop()
	require.Len(t, sink.batches, 1)
	batch := sink.batches[0]
	require.Len(t, batch, 2)
	assert.NotEmpty(t, batch[0].ID)
	assert.NotEqual(t, batch[0].ID, batch[1].ID)
	assert.False(t, batch[0].CreatedAt.IsZero())
	assert.Equal(t, 0, ab.Pending())
}

func TestAuditBuffer_FlushWhenFull(t *testing.T) {
	sink := &captureSink{}
	ab := NewAuditBuffer(sink, 2, 60_000)
	defer ab.Stop()

	ab.Record(store.AuditEvent{Action: "a"})
	ab.Record(store.AuditEvent{Action: "b"})

	assert.Eventually(t, func() bool { return sink.total() == 2 }, time.Second, 10*time.Millisecond)
}

func TestAuditBuffer_TickerFlush(t *testing.T) {
	sink := &captureSink{}
	ab := NewAuditBuffer(sink, 100, 20)
	defer ab.Stop()

	ab.Record(store.AuditEvent{Action: "a"})
	assert.Eventually(t, func() bool { return sink.total() == 1 }, time.Second, 10*time.Millisecond)
}

func TestAuditBuffer_SinkErrorDropsBatch(t *testing.T) {
	sink := &captureSink{err: errors.New("db down")}
	ab := NewAuditBuffer(sink, 100, 60_000)
	ab.Record(store.AuditEvent{Action: "a"})
	ab.Flush()
	assert.Equal(t, 0, ab.Pending())
	ab.Stop()
}

func TestCleanup(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, mem.InsertAuditEvents(ctx, []store.AuditEvent{
		{ID: "old", CreatedAt: time.Now().AddDate(0, 0, -100)},
		{ID: "new", CreatedAt: time.Now()},
	}))
	_, err := mem.CreateRefreshToken(ctx, "u", -time.Minute)
	require.NoError(t, err)

	Cleanup(ctx, mem, 90)

	events, err := mem.ListAuditEvents(ctx, store.AuditFilter{})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "new", events[0].ID)
	n, _ := mem.DeleteExpiredTokens(ctx)
	assert.EqualValues(t, 0, n)
}
