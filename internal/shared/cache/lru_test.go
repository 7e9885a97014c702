package cache

import (
	"fmt"
	"sync"
	"testing"
)

func TestLRU_GetPut(t *testing.T) {
	c := NewLRU[string, int](3)

	if _, ok := c.Get("a"); ok {
		t.Fatal("expected miss on empty cache")
	}

	c.Put("a", 1)
	c.Put("b", 2)
	c.Put("c", 3)

	if c.Len() != 3 {
		t.Fatalf("expected len 3, got %d", c.Len())
	}
	for k, want := range map[string]int{"a": 1, "b": 2, "c": 3} {
		v, ok := c.Get(k)
		if !ok || v != want {
			t.Fatalf("key %q: want %d got %d (ok=%v)", k, want, v, ok)
		}
	}
}

func TestLRU_EvictsLeastRecentAndRunsHook(t *testing.T) {
	c := NewLRU[string, int](2)
	var evicted []string
	c.OnEvict(func(k string, _ int) { evicted = append(evicted, k) })

	c.Put("a", 1)
	c.Put("b", 2)
	c.Get("a")
	c.Put("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Fatal("expected 'b' to be evicted")
	}
	if len(evicted) != 1 || evicted[0] != "b" {
		t.Fatalf("expected eviction hook for b, got %v", evicted)
	}
}

func TestLRU_RemoveAndPurge(t *testing.T) {
	c := NewLRU[string, int](4)
	removed := 0
	c.OnEvict(func(string, int) { removed++ })

	c.Put("a", 1)
	c.Put("b", 2)
	c.Put("c", 3)

	if !c.Remove("a") {
		t.Fatal("expected Remove to report a hit")
	}
	if c.Remove("a") {
		t.Fatal("expected second Remove to miss")
	}
	c.Purge()
	if c.Len() != 0 {
		t.Fatalf("expected empty cache, got %d", c.Len())
	}
	if removed != 3 {
		t.Fatalf("expected 3 eviction callbacks, got %d", removed)
	}
}

func TestLRU_ZeroCapacityNormalised(t *testing.T) {
	c := NewLRU[int, int](0)
	if c.Cap() != 1 {
		t.Fatalf("expected capacity 1, got %d", c.Cap())
	}
	c.Put(1, 1)
	c.Put(2, 2)
	if c.Len() != 1 {
		t.Fatalf("expected len 1, got %d", c.Len())
	}
}

func TestLRU_Concurrent(t *testing.T) {
	c := NewLRU[string, int](64)
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("k%d", (w*31+i)%100)
				c.Put(key, i)
				c.Get(key)
			}
		}(w)
	}
	wg.Wait()
	if c.Len() > 64 {
		t.Fatalf("cache exceeded capacity: %d", c.Len())
	}
}
