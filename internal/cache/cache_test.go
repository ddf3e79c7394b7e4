package cache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func newTestCache(maxSize int, ttl time.Duration) (*LRUCache[int], *fakeClock) {
	clock := &fakeClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewLRUCache[int](maxSize, ttl)
	c.now = clock.now
	return c, clock
}

func TestLRUCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c, _ := newTestCache(2, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)
	if _, ok := c.Get("a"); !ok {
		t.Fatal("a should be cached")
	}
	c.Set("c", 3) // evicts b, the least recently used

	if _, ok := c.Get("b"); ok {
		t.Error("b should have been evicted")
	}
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Errorf("a = %v, %v", v, ok)
	}
	if c.Size() != 2 {
		t.Errorf("size = %d, want 2", c.Size())
	}
}

func TestLRUCache_TTL(t *testing.T) {
	c, clock := newTestCache(10, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)

	clock.t = clock.t.Add(30 * time.Second)
	c.Set("b", 3) // refreshes b's expiry

	clock.t = clock.t.Add(45 * time.Second)
	if _, ok := c.Get("a"); ok {
		t.Error("a should have expired")
	}
	if v, ok := c.Get("b"); !ok || v != 3 {
		t.Errorf("b = %v, %v; want 3, true", v, ok)
	}

	clock.t = clock.t.Add(time.Hour)
	if n := c.CleanExpired(); n != 1 {
		t.Errorf("CleanExpired removed %d, want 1", n)
	}
	if c.Size() != 0 {
		t.Errorf("size = %d, want 0", c.Size())
	}
}

func TestLRUCache_DeleteFunc(t *testing.T) {
	c, _ := newTestCache(0, time.Minute)
	for _, k := range []string{"expense|a", "expense|b", "income|a"} {
		c.Set(k, 1)
	}
	if n := c.DeleteFunc(func(k string) bool { return strings.HasPrefix(k, "expense|") }); n != 2 {
		t.Errorf("removed %d, want 2", n)
	}
	if _, ok := c.Get("income|a"); !ok {
		t.Error("income entry should survive")
	}
}

func TestLoader_CollapsesConcurrentMisses(t *testing.T) {
	c, _ := newTestCache(10, time.Minute)
	l := NewLoader(c)

	var calls int32
	release := make(chan struct{})
	load := func(context.Context) (int, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return 42, nil
	}

	const callers = 8
	var wg sync.WaitGroup
	results := make([]int, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, _, err := l.Get(context.Background(), "k", load)
			if err != nil {
				t.Errorf("Get: %v", err)
			}
			results[i] = v
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("load ran %d times, want 1", got)
	}
	for i, v := range results {
		if v != 42 {
			t.Errorf("caller %d got %d", i, v)
		}
	}

	v, hit, err := l.Get(context.Background(), "k", load)
	if err != nil || !hit || v != 42 {
		t.Errorf("second Get = %v, %v, %v; want cached 42", v, hit, err)
	}
}

func TestLoader_DoesNotCacheErrors(t *testing.T) {
	c, _ := newTestCache(10, time.Minute)
	l := NewLoader(c)
	boom := errors.New("boom")

	if _, _, err := l.Get(context.Background(), "k", func(context.Context) (int, error) { return 0, boom }); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	v, hit, err := l.Get(context.Background(), "k", func(context.Context) (int, error) { return 7, nil })
	if err != nil || hit || v != 7 {
		t.Errorf("Get after error = %v, %v, %v", v, hit, err)
	}

	if n := l.Forget(func(string) bool { return true }); n != 1 {
		t.Errorf("Forget removed %d, want 1", n)
	}
}

func TestLoader_ForgetDuringLoad(t *testing.T) {
	c, _ := newTestCache(10, time.Minute)
	l := NewLoader(c)

	entered := make(chan struct{})
	release := make(chan struct{})
	done := make(chan int)
	go func() {
		v, _, err := l.Get(context.Background(), "k", func(context.Context) (int, error) {
			close(entered)
			<-release
			return 1, nil
		})
		if err != nil {
			t.Errorf("Get: %v", err)
		}
		done <- v
	}()

	<-entered
	l.Forget(func(string) bool { return true })
	close(release)
	if v := <-done; v != 1 {
		t.Errorf("in-flight Get = %d, want 1", v)
	}

	if _, ok := c.Get("k"); ok {
		t.Fatal("load started before Forget must not be cached")
	}
	v, hit, err := l.Get(context.Background(), "k", func(context.Context) (int, error) { return 2, nil })
	if err != nil || hit || v != 2 {
		t.Errorf("Get after Forget = %v, %v, %v; want fresh 2", v, hit, err)
	}
}

func TestLoader_CallerCancelDoesNotFailOthers(t *testing.T) {
	c, _ := newTestCache(10, time.Minute)
	l := NewLoader(c)

	entered := make(chan struct{})
	release := make(chan struct{})
	load := func(ctx context.Context) (int, error) {
		close(entered)
		<-release
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		return 42, nil
	}

	leaderCtx, cancel := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, _, err := l.Get(leaderCtx, "k", load)
		leaderErr <- err
	}()
	<-entered

	type result struct {
		v   int
		err error
	}
	waiter := make(chan result, 1)
	go func() {
		v, _, err := l.Get(context.Background(), "k", load)
		waiter <- result{v, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancel()
	if err := <-leaderErr; !errors.Is(err, context.Canceled) {
		t.Errorf("leader err = %v, want context.Canceled", err)
	}
	close(release)

	got := <-waiter
	if got.err != nil || got.v != 42 {
		t.Errorf("waiter = %v, %v; want 42, nil", got.v, got.err)
	}
	if v, ok := c.Get("k"); !ok || v != 42 {
		t.Errorf("cache = %v, %v; want 42 stored", v, ok)
	}
}

func TestManager_CleanNow(t *testing.T) {
	a, clock := newTestCache(10, time.Second)
	b, _ := newTestCache(10, time.Hour)
	b.now = clock.now
	a.Set("x", 1)
	b.Set("y", 2)

	m := NewManager(nil)
	m.Register(a)
	m.Register(b)
	clock.t = clock.t.Add(time.Minute)

	if n := m.CleanNow(); n != 1 {
		t.Errorf("CleanNow removed %d, want 1", n)
	}

	m.StartCleanup(time.Millisecond)
	m.Stop()
	m.Stop() // second Stop is a no-op
}
