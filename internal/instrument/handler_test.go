package instrument

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cabinet-admin/internal/store"
)

type fakeCleanup struct {
	auditBefore time.Time
	tokenCalls  int
}

func (f *fakeCleanup) DeleteAuditBefore(_ context.Context, before time.Time) (int64, error) {
	f.auditBefore = before
	return 3, nil
}

func (f *fakeCleanup) DeleteExpiredTokens(context.Context) (int64, error) {
	f.tokenCalls++
	return 0, nil
}

func TestAuditHandler_ListFilters(t *testing.T) {
	mem := store.NewMemory()
	now := time.Now()
	require.NoError(t, mem.InsertAuditEvents(context.Background(), []store.AuditEvent{
		{ID: "1", Actor: "a", Action: "role.create", Entity: "role", CreatedAt: now},
		{ID: "2", Actor: "b", Action: "role.delete", Entity: "role", CreatedAt: now.Add(time.Second)},
		{ID: "3", Actor: "a", Action: "policy.create", Entity: "policy", CreatedAt: now.Add(2 * time.Second)},
	}))

	app := fiber.New()
	app.Get("/audit", NewAuditHandler(mem).List)

	list := func(query string) []store.AuditEvent {
		resp, err := app.Test(httptest.NewRequest("GET", "/audit"+query, nil))
		require.NoError(t, err)
		require.Equal(t, 200, resp.StatusCode)
		body, _ := io.ReadAll(resp.Body)
		var out struct {
			Data []store.AuditEvent `json:"data"`
		}
		require.NoError(t, json.Unmarshal(body, &out))
		return out.Data
	}

	assert.Len(t, list(""), 3)
	assert.Len(t, list("?actor=a"), 2)
	events := list("?actor=a&entity=policy")
	require.Len(t, events, 1)
	assert.Equal(t, "3", events[0].ID)
	assert.Len(t, list("?per_page=1"), 1)
}

func TestCleanup_RetentionDisabled(t *testing.T) {
	f := &fakeCleanup{}
	Cleanup(context.Background(), f, 0)
	assert.True(t, f.auditBefore.IsZero())
	assert.Equal(t, 1, f.tokenCalls)

	Cleanup(context.Background(), f, 30)
	assert.WithinDuration(t, time.Now().AddDate(0, 0, -30), f.auditBefore, time.Minute)
	assert.Equal(t, 2, f.tokenCalls)
}

func TestJanitor_RunsOnStart(t *testing.T) {
	f := &fakeCleanup{}
	j := NewJanitor(f, 7, time.Hour)
	j.Start()
	j.Stop()
	assert.Equal(t, 1, f.tokenCalls)
}
