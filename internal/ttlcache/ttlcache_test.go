package ttlcache

import (
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestCache_SetGetWithinTTL(t *testing.T) {
	for _, ttl := range []time.Duration{time.Millisecond, time.Second, time.Hour} {
		clock := newFakeClock()
		c := New[string, int](WithClock(clock.Now))

		if !c.Set("k", 42, ttl) {
			t.Fatalf("Set with ttl %v should succeed", ttl)
		}
		v, ok := c.Get("k")
		if !ok || v != 42 {
			t.Fatalf("expected hit with 42 for ttl %v, got ok=%v v=%v", ttl, ok, v)
		}

		// Exactly at expiry is still a hit.
		clock.Advance(ttl)
		if _, ok := c.Get("k"); !ok {
			t.Fatalf("expected hit at exact expiry for ttl %v", ttl)
		}
	}
}

func TestCache_ExpiredEntryIsRemovedOnGet(t *testing.T) {
	clock := newFakeClock()
	c := New[string, string](WithClock(clock.Now))

	c.Set("k", "v", time.Second)
	clock.Advance(time.Second + time.Nanosecond)

	if _, ok := c.Get("k"); ok {
		t.Fatal("expected miss after expiry")
	}
	if c.Len() != 0 {
		t.Fatalf("expected expired entry to be removed, Len=%d", c.Len())
	}
}

func TestCache_ZeroValueIsAHit(t *testing.T) {
	c := New[string, bool]()
	c.Set("flag", false, time.Minute)

	v, ok := c.Get("flag")
	if !ok {
		t.Fatal("stored false should be a hit")
	}
	if v {
		t.Fatal("expected false")
	}
	if _, ok := c.Get("missing"); ok {
		t.Fatal("missing key should be a miss")
	}
}

func TestCache_NonPositiveTTLRejected(t *testing.T) {
	c := New[string, int]()
	if c.Set("a", 1, 0) {
		t.Error("ttl 0 should be rejected")
	}
	if c.Set("b", 1, -time.Second) {
		t.Error("negative ttl should be rejected")
	}
	if c.Len() != 0 {
		t.Errorf("expected no entries, got %d", c.Len())
	}
}

func TestCache_EntryTimestamps(t *testing.T) {
	clock := newFakeClock()
	c := New[string, int](WithClock(clock.Now))
	c.Set("k", 1, time.Minute)

	e, ok := c.GetEntry("k")
	if !ok {
		t.Fatal("expected hit")
	}
	if !e.ExpiresAt.After(e.CreatedAt) {
		t.Errorf("ExpiresAt %v must be after CreatedAt %v", e.ExpiresAt, e.CreatedAt)
	}
	if e.ExpiresAt.Sub(e.CreatedAt) != time.Minute {
		t.Errorf("lifetime = %v, want 1m", e.ExpiresAt.Sub(e.CreatedAt))
	}
}

func TestCache_CleanExpired(t *testing.T) {
	clock := newFakeClock()
	c := New[string, int](WithClock(clock.Now))

	c.Set("short", 1, time.Second)
	c.Set("long", 2, time.Hour)
	clock.Advance(time.Minute)

	if removed := c.CleanExpired(); removed != 1 {
		t.Fatalf("CleanExpired removed %d, want 1", removed)
	}
	if c.Len() != 1 {
		t.Fatalf("Len = %d, want 1", c.Len())
	}
	if _, ok := c.Get("long"); !ok {
		t.Fatal("long-lived entry should survive the sweep")
	}
}

func TestCache_DeleteClearAndDeleteFunc(t *testing.T) {
	c := New[string, int]()
	c.Set("a:1", 1, time.Minute)
	c.Set("a:2", 2, time.Minute)
	c.Set("b:1", 3, time.Minute)

	c.Delete("b:1")
	if _, ok := c.Get("b:1"); ok {
		t.Fatal("expected b:1 deleted")
	}

	removed := c.DeleteFunc(func(k string) bool { return k == "a:1" })
	if removed != 1 || c.Len() != 1 {
		t.Fatalf("DeleteFunc removed %d, Len=%d", removed, c.Len())
	}

	c.Clear()
	if c.Len() != 0 {
		t.Fatalf("expected empty cache after Clear, got %d", c.Len())
	}
}

func TestCache_ConcurrentAccess(t *testing.T) {
	c := New[int, int]()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Set(j, i, time.Minute)
				c.Get(j)
				if j%10 == 0 {
					c.CleanExpired()
				}
			}
		}(i)
	}
	wg.Wait()
	if c.Len() != 100 {
		t.Fatalf("Len = %d, want 100", c.Len())
	}
}

func TestRunJanitor_StopsOnClose(t *testing.T) {
	c := New[string, int]()
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		RunJanitor(stop, time.Millisecond, c)
		close(done)
	}()
	close(stop)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop")
	}
}

func TestCache_OnEvict(t *testing.T) {
	clock := newFakeClock()
	c := New[string, int](WithClock(clock.Now))
	evicted := map[string]int{}
	c.OnEvict(func(k string, v int) { evicted[k] = v })

	c.Set("lazy", 1, time.Second)
	c.Set("swept", 2, time.Second)
	c.Set("deleted", 3, time.Second)
	c.Set("fresh", 4, time.Hour)
	c.Delete("deleted")

	clock.Advance(2 * time.Second)
	if _, ok := c.Get("lazy"); ok {
		t.Fatal("expected lazy to be expired")
	}
	if n := c.CleanExpired(); n != 1 {
		t.Fatalf("CleanExpired = %d, want 1", n)
	}

	want := map[string]int{"lazy": 1, "swept": 2}
	if len(evicted) != len(want) || evicted["lazy"] != 1 || evicted["swept"] != 2 {
		t.Fatalf("evicted = %v, want %v", evicted, want)
	}
}
