package cache

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func TestLRUSizeEviction(t *testing.T) {
	var evicted []string
	c := NewLRU[int](2, 0, WithOnEvict(func(k string, _ int) { evicted = append(evicted, k) }))

	c.Set("a", 1)
	c.Set("b", 2)
	if _, ok := c.Get("a"); !ok {
		t.Fatal("a should be present")
	}
	c.Set("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Fatal("b should have been evicted as least recently used")
	}
	if len(evicted) != 1 || evicted[0] != "b" {
		t.Fatalf("evicted = %v", evicted)
	}
	if c.Size() != 2 {
		t.Fatalf("size = %d", c.Size())
	}
}

func TestLRUIdleExpiry(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	var evicted []string
	c := NewLRU[string](10, time.Minute,
		WithClock[string](clock.Now),
		WithOnEvict(func(k string, _ string) { evicted = append(evicted, k) }))

	c.Set("idle", "x")
	c.Set("busy", "y")

	clock.Advance(40 * time.Second)
	c.Get("busy")
	clock.Advance(40 * time.Second)

	if n := c.CleanExpired(); n != 1 {
		t.Fatalf("cleaned = %d, want 1", n)
	}
	if _, ok := c.Get("busy"); !ok {
		t.Fatal("busy should be renewed by Get")
	}
	if len(evicted) != 1 || evicted[0] != "idle" {
		t.Fatalf("evicted = %v", evicted)
	}

	clock.Advance(2 * time.Minute)
	if _, ok := c.Get("busy"); ok {
		t.Fatal("busy should expire on Get")
	}
	if len(evicted) != 2 {
		t.Fatalf("evicted = %v", evicted)
	}
}

func TestLRUReplaceAndDelete(t *testing.T) {
	var evicted []int
	c := NewLRU[int](4, 0, WithOnEvict(func(_ string, v int) { evicted = append(evicted, v) }))

	c.Set("k", 1)
	c.Set("k", 2)
	if v, _ := c.Get("k"); v != 2 {
		t.Fatalf("v = %d", v)
	}
	c.Delete("k")
	c.Delete("missing")
	if len(evicted) != 2 || evicted[0] != 1 || evicted[1] != 2 {
		t.Fatalf("evicted = %v", evicted)
	}
}

func TestLRUGetOrCreate(t *testing.T) {
	c := NewLRU[int](4, 0)
	calls := 0
	create := func() (int, error) { calls++; return 7, nil }

	for i := 0; i < 3; i++ {
		v, err := c.GetOrCreate("k", create)
		if err != nil || v != 7 {
			t.Fatalf("v=%d err=%v", v, err)
		}
	}
	if calls != 1 {
		t.Fatalf("create called %d times", calls)
	}

	boom := errors.New("boom")
	if _, err := c.GetOrCreate("x", func() (int, error) { return 0, boom }); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if c.Size() != 1 {
		t.Fatalf("failed create must not be cached, size=%d", c.Size())
	}
}

func TestLRUPurge(t *testing.T) {
	count := 0
	c := NewLRU[int](4, 0, WithOnEvict(func(string, int) { count++ }))
	c.Set("a", 1)
	c.Set("b", 2)
	c.Purge()
	if c.Size() != 0 || count != 2 {
		t.Fatalf("size=%d evicted=%d", c.Size(), count)
	}
}

func TestManagerCleanNowAndStop(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	c := NewLRU[int](4, time.Second, WithClock[int](clock.Now))
	c.Set("a", 1)

	m := NewManager()
	m.Register(c)
	clock.Advance(2 * time.Second)
	if n := m.CleanNow(); n != 1 {
		t.Fatalf("cleaned = %d", n)
	}

	m.StartCleanup(time.Hour)
	m.Stop()
	m.Stop()
}

func TestManagerStopWithoutStart(t *testing.T) {
	m := NewManager()
	done := make(chan struct{})
	go func() {
		m.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked without StartCleanup")
	}
}
