package cache

import (
	"strconv"
	"sync"
	"testing"
)

func byteLen(b []byte) int64 { return int64(len(b)) }

func TestCacheGetSet(t *testing.T) {
	c := New[string, int](10, nil)

	c.Set("key1", 42)

	val, ok := c.Get("key1")
	if !ok {
		t.Error("expected key1 to exist")
	}
	if val != 42 {
		t.Errorf("expected 42, got %d", val)
	}

	if _, ok := c.Get("nonexistent"); ok {
		t.Error("expected nonexistent key to not exist")
	}

	st := c.Stats()
	if st.Hits != 1 || st.Misses != 1 || st.HitRate != 0.5 {
		t.Errorf("stats = %+v, want 1 hit, 1 miss", st)
	}
}

func TestCacheReplace(t *testing.T) {
	c := New[string, []byte](100, byteLen)
	c.Set("a", make([]byte, 30))
	c.Set("a", make([]byte, 10))

	if c.Len() != 1 {
		t.Errorf("expected 1 entry, got %d", c.Len())
	}
	if got := c.Stats().Cost; got != 10 {
		t.Errorf("expected cost 10 after replace, got %d", got)
	}
}

func TestCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := New[string, []byte](100, byteLen)
	c.Set("a", make([]byte, 40))
	c.Set("b", make([]byte, 40))

	// Touch a so b is the oldest.
	c.Get("a")
	c.Set("c", make([]byte, 40))

	if _, ok := c.Get("b"); ok {
		t.Error("expected b to be evicted")
	}
	for _, k := range []string{"a", "c"} {
		if _, ok := c.Get(k); !ok {
			t.Errorf("expected %s to survive", k)
		}
	}
	st := c.Stats()
	if st.Evictions != 1 || st.Cost != 80 {
		t.Errorf("stats = %+v, want 1 eviction and cost 80", st)
	}
}

func TestCacheOversizedValue(t *testing.T) {
	c := New[string, []byte](10, byteLen)
	c.Set("small", make([]byte, 5))
	c.Set("huge", make([]byte, 11))

	if _, ok := c.Get("huge"); ok {
		t.Error("value larger than the limit was stored")
	}
	if _, ok := c.Get("small"); !ok {
		t.Error("oversized value evicted existing entries")
	}
}

func TestCacheUnlimited(t *testing.T) {
	c := New[int, int](0, nil)
	for i := range 1000 {
		c.Set(i, i)
	}
	if c.Len() != 1000 {
		t.Errorf("expected 1000 entries, got %d", c.Len())
	}
}

func TestCacheDeleteClear(t *testing.T) {
	c := New[string, int](10, nil)
	c.Set("a", 1)
	c.Set("b", 2)

	if !c.Delete("a") {
		t.Error("Delete(a) = false")
	}
	if c.Delete("a") {
		t.Error("second Delete(a) = true")
	}
	c.Clear()
	if c.Len() != 0 || c.Stats().Cost != 0 {
		t.Errorf("cache not empty after Clear: %+v", c.Stats())
	}
	c.Set("c", 3)
	if v, ok := c.Get("c"); !ok || v != 3 {
		t.Error("cache unusable after Clear")
	}
}

func TestCacheConcurrent(t *testing.T) {
	c := New[string, int](50, nil)
	var wg sync.WaitGroup
	for g := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 200 {
				key := strconv.Itoa(g*1000 + i%60)
				c.Set(key, i)
				c.Get(key)
			}
		}()
	}
	wg.Wait()

	if n := c.Len(); n > 50 {
		t.Errorf("expected at most 50 entries, got %d", n)
	}
}
