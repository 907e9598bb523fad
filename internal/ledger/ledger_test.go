package ledger

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vibe-io/cdk-extensions-sub001/internal/db"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "ledger.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return New(database.DB)
}

func TestAppendAndRecent(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, l.Append(ctx, Entry{
		RunID: "r1", EventType: EventRunStarted, Timestamp: base,
		Target: "web", Kind: "ec2-instance", Action: "start",
	}))
	require.NoError(t, l.Append(ctx, Entry{
		RunID: "r1", EventType: EventRunSucceeded, Timestamp: base.Add(time.Minute),
		Target: "web", Kind: "ec2-instance", Action: "start", Outcome: "success",
		Payload: map[string]any{"polls": 3, "status": "running"},
	}))
	require.NoError(t, l.Append(ctx, Entry{
		RunID: "r2", EventType: EventRunFailed, Timestamp: base.Add(2 * time.Minute),
		Target: "db", Kind: "rds-instance", Action: "stop", Outcome: "ttl_exceeded",
	}))

	entries, err := l.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, "r2", entries[0].RunID)
	assert.Equal(t, EventRunFailed, entries[0].EventType)
	assert.Equal(t, "ttl_exceeded", entries[0].Outcome)
	assert.Nil(t, entries[0].Payload)

	succeeded := entries[1]
	assert.Equal(t, EventRunSucceeded, succeeded.EventType)
	assert.Equal(t, base.Add(time.Minute), succeeded.Timestamp)
	assert.Equal(t, "running", succeeded.Payload["status"])
	assert.Equal(t, float64(3), succeeded.Payload["polls"])

	assert.Equal(t, "", entries[2].Outcome)

	limited, err := l.Recent(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestByTarget(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)

	for i, target := range []string{"web", "db", "web"} {
		require.NoError(t, l.Append(ctx, Entry{
			RunID:     string(rune('a' + i)),
			EventType: EventRunStarted,
			Target:    target,
		}))
	}

	entries, err := l.ByTarget(ctx, "web", 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.Equal(t, "web", e.Target)
	}
	// Same second, so id breaks the tie.
	assert.Equal(t, "c", entries[0].RunID)

	none, err := l.ByTarget(ctx, "missing", 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestHasSucceeded(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)

	assert.False(t, l.HasSucceeded(ctx, ""))
	assert.False(t, l.HasSucceeded(ctx, "key-1"))

	require.NoError(t, l.Append(ctx, Entry{RunID: "r1", EventType: EventRunFailed, Target: "web", IdempotencyKey: "key-1"}))
	assert.False(t, l.HasSucceeded(ctx, "key-1"))

	require.NoError(t, l.Append(ctx, Entry{RunID: "r2", EventType: EventRunSucceeded, Target: "web", IdempotencyKey: "key-1"}))
	assert.True(t, l.HasSucceeded(ctx, "key-1"))
}

func TestSucceededFirstWriterWins(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)

	var wg sync.WaitGroup
	errs := make(chan error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- l.Append(ctx, Entry{
				RunID:          string(rune('a' + i)),
				EventType:      EventRunSucceeded,
				Target:         "web",
				IdempotencyKey: "dup",
			})
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	entries, err := l.ByTarget(ctx, "web", 10)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestDeleteOlderThan(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)

	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	require.NoError(t, l.Append(ctx, Entry{RunID: "old", EventType: EventRunStarted, Target: "web", Timestamp: now.Add(-48 * time.Hour)}))
	require.NoError(t, l.Append(ctx, Entry{RunID: "new", EventType: EventRunStarted, Target: "web", Timestamp: now.Add(-time.Hour)}))

	deleted, err := l.DeleteOlderThan(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	entries, err := l.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "new", entries[0].RunID)
}
