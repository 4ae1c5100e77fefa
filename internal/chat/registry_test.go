package chat

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strawberry/sitebuilder-go/internal/assistant"
	"github.com/strawberry/sitebuilder-go/internal/config"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func sessionFor(userID string) func(context.Context) (*Session, error) {
	return func(context.Context) (*Session, error) {
		return NewSession(SessionOptions{Hash: "h", UserID: userID}), nil
	}
}

func TestRegistry(t *testing.T) {
	ctx := context.Background()

	t.Run("reuses a live session", func(t *testing.T) {
		r := NewRegistry(config.SessionInactiveTTL)
		first, err := r.GetOrCreate(ctx, "h", sessionFor("u1"))
		require.NoError(t, err)
		second, err := r.GetOrCreate(ctx, "h", sessionFor("u1"))
		require.NoError(t, err)
		assert.Same(t, first, second)
	})

	t.Run("idle sessions are replaced after the ttl", func(t *testing.T) {
		clock := &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
		r := NewRegistry(15 * time.Minute).WithClock(clock.Now)

		first, err := r.GetOrCreate(ctx, "h", sessionFor("u1"))
		require.NoError(t, err)

		clock.Advance(10 * time.Minute)
		r.Touch("h")
		clock.Advance(10 * time.Minute)
		_, ok := r.Lookup("h")
		assert.True(t, ok, "touch extends the lifetime")

		clock.Advance(16 * time.Minute)
		_, ok = r.Lookup("h")
		assert.False(t, ok)
		assert.Equal(t, 0, r.Len())

		second, err := r.GetOrCreate(ctx, "h", sessionFor("u1"))
		require.NoError(t, err)
		assert.NotSame(t, first, second)
	})

	t.Run("concurrent callers share one bootstrap", func(t *testing.T) {
		r := NewRegistry(time.Minute)
		var calls atomic.Int32
		gate := make(chan struct{})
		bootstrap := func(context.Context) (*Session, error) {
			calls.Add(1)
			<-gate
			return NewSession(SessionOptions{Hash: "h"}), nil
		}

		var wg sync.WaitGroup
		results := make([]*Session, 8)
		for i := range results {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				s, err := r.GetOrCreate(ctx, "h", bootstrap)
				assert.NoError(t, err)
				results[i] = s
			}(i)
		}
		time.Sleep(20 * time.Millisecond)
		close(gate)
		wg.Wait()

		assert.Equal(t, int32(1), calls.Load())
		for _, s := range results {
			assert.Same(t, results[0], s)
		}
	})

	t.Run("bootstrap failure is not cached", func(t *testing.T) {
		r := NewRegistry(time.Minute)
		_, err := r.GetOrCreate(ctx, "h", func(context.Context) (*Session, error) {
			return nil, errors.New("provider down")
		})
		require.Error(t, err)
		assert.Equal(t, 0, r.Len())
	})

	t.Run("set document only for the owner", func(t *testing.T) {
		r := NewRegistry(time.Minute)
		s, err := r.GetOrCreate(ctx, "h", sessionFor("u1"))
		require.NoError(t, err)

		assert.False(t, r.SetDocument("u2", "h", "<p>other</p>"))
		assert.True(t, r.SetDocument("u1", "h", "<p>published</p>"))
		assert.False(t, r.SetDocument("u1", "missing", "<p>x</p>"))
		assert.Equal(t, "<p>published</p>", s.Document())
	})
}

func TestStartThread(t *testing.T) {
	p := &fakeProvider{
		created: assistant.Run{ID: "run_0", Status: assistant.StatusQueued},
		polls:   []assistant.Run{{ID: "run_0", Status: assistant.StatusInProgress}, {ID: "run_0", Status: assistant.StatusRequiresAction}},
	}

	threadID, err := StartThread(context.Background(), p, "asst_1", "", InitialMessage("<p>hi</p>"), time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "thread_1", threadID)
	assert.Empty(t, p.polls)
}

func TestInitialMessage(t *testing.T) {
	assert.Contains(t, InitialMessage("<main>site</main>"), "<main>site</main>")
	assert.Contains(t, InitialMessage("<main>site</main>"), "/static/websites/")
	assert.NotContains(t, InitialMessage(""), "/static/websites/")
}
