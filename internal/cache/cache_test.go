package cache

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestMemoryCache_SetGet(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	type payload struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}

	if err := c.Set(ctx, "k", &payload{Name: "lot", Count: 3}, time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	var got payload
	if err := c.Get(ctx, "k", &got); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Name != "lot" || got.Count != 3 {
		t.Errorf("Get() = %+v", got)
	}

	if err := c.Get(ctx, "missing", &got); err == nil {
		t.Error("Get() on missing key expected error")
	}
}

func TestMemoryCache_Expiration(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	if err := c.Set(ctx, "k", "v", -time.Second); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	var got string
	if err := c.Get(ctx, "k", &got); err == nil {
		t.Error("Get() on expired key expected error")
	}
	if exists, _ := c.Exists(ctx, "k"); exists {
		t.Error("Exists() = true for expired key")
	}
}

func TestMemoryCache_Del(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	_ = c.Set(ctx, "a", 1, time.Minute)
	_ = c.Set(ctx, "b", 2, time.Minute)

	if err := c.Del(ctx, "a", "b"); err != nil {
		t.Fatalf("Del() error = %v", err)
	}
	if exists, _ := c.Exists(ctx, "a"); exists {
		t.Error("key survived Del()")
	}
}

func TestMemoryCache_ConcurrentAccess(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_ = c.Set(ctx, "shared", n, time.Minute)
			var got int
			_ = c.Get(ctx, "shared", &got)
		}(i)
	}
	wg.Wait()
}

func TestNullCache(t *testing.T) {
	c := NewNullCache()
	ctx := context.Background()

	if err := c.Set(ctx, "k", "v", time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	var got string
	if err := c.Get(ctx, "k", &got); err == nil {
		t.Error("NullCache.Get() expected miss")
	}
	if exists, _ := c.Exists(ctx, "k"); exists {
		t.Error("NullCache.Exists() = true")
	}
}

func TestRedisCache_Basic(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping Redis integration test in short mode")
	}

	c, err := NewRedisCache("localhost:6379", "", 1)
	if err != nil {
		t.Skipf("skipping Redis test, cannot connect: %v", err)
	}
	defer c.Close()

	ctx := context.Background()
	key := "lotkeeper:test:basic"
	defer c.Del(ctx, key)

	if err := c.Set(ctx, key, map[string]int{"qty": 7}, time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	var got map[string]int
	if err := c.Get(ctx, key, &got); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got["qty"] != 7 {
		t.Errorf("Get() = %v, want qty=7", got)
	}
}
