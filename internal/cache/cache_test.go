package cache

import (
	"fmt"
	"testing"
	"time"
)

func TestCache_SetGet(t *testing.T) {
	c := New(10)
	defer c.Close()

	c.Set("https://example.com/watch?v=abc", `{"title":"a"}`, time.Minute)

	got, ok := c.Get("https://example.com/watch?v=abc")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if got != `{"title":"a"}` {
		t.Errorf("got %q", got)
	}
}

func TestCache_Miss(t *testing.T) {
	c := New(10)
	defer c.Close()

	if _, ok := c.Get("missing"); ok {
		t.Error("expected cache miss")
	}
}

func TestCache_Expiry(t *testing.T) {
	c := New(10)
	defer c.Close()

	c.Set("k", "v", 10*time.Millisecond)
	time.Sleep(30 * time.Millisecond)

	if _, ok := c.Get("k"); ok {
		t.Error("expected entry to expire")
	}
	if c.Len() != 0 {
		t.Errorf("expected expired entry dropped on read, len = %d", c.Len())
	}
}

func TestCache_Delete(t *testing.T) {
	c := New(10)
	defer c.Close()

	c.Set("k", "v", time.Minute)
	c.Delete("k")

	if _, ok := c.Get("k"); ok {
		t.Error("expected entry deleted")
	}
}

func TestCache_EvictsWhenFull(t *testing.T) {
	c := New(3)
	defer c.Close()

	for i := 0; i < 3; i++ {
		c.Set(fmt.Sprintf("k%d", i), "v", time.Minute)
	}
	c.Set("k3", "v", time.Minute)

	if c.Len() != 3 {
		t.Errorf("expected cache bounded at 3 entries, len = %d", c.Len())
	}
	if _, ok := c.Get("k3"); !ok {
		t.Error("expected newest entry present after eviction")
	}
}

func TestCache_EvictsExpiredFirst(t *testing.T) {
	c := New(2)
	defer c.Close()

	c.Set("old", "v", 10*time.Millisecond)
	c.Set("live", "v", time.Minute)
	time.Sleep(30 * time.Millisecond)

	c.Set("new", "v", time.Minute)

	if _, ok := c.Get("live"); !ok {
		t.Error("expected unexpired entry to survive eviction")
	}
	if _, ok := c.Get("new"); !ok {
		t.Error("expected new entry present")
	}
}

func TestCache_OverwriteDoesNotEvict(t *testing.T) {
	c := New(2)
	defer c.Close()

	c.Set("a", "1", time.Minute)
	c.Set("b", "2", time.Minute)
	c.Set("a", "3", time.Minute)

	if got, _ := c.Get("a"); got != "3" {
		t.Errorf("expected overwrite, got %q", got)
	}
	if _, ok := c.Get("b"); !ok {
		t.Error("expected untouched entry to survive overwrite")
	}
}
