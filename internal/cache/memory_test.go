package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryStoreSetGet(t *testing.T) {
	s := NewMemoryStore(4)
	ctx := context.Background()

	if err := s.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := s.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "v" {
		t.Errorf("Get = %q, want v", got)
	}

	if _, err := s.Get(ctx, "absent"); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("expected ErrCacheMiss for absent key, got %v", err)
	}
}

func TestMemoryStoreTTLExpiry(t *testing.T) {
	now := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	s := NewMemoryStore(4, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	_ = s.Set(ctx, "k", []byte("v"), time.Minute)
	if _, err := s.Get(ctx, "k"); err != nil {
		t.Fatalf("entry should be live before TTL: %v", err)
	}

	now = now.Add(61 * time.Second)
	if _, err := s.Get(ctx, "k"); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("expected miss after TTL expiry, got %v", err)
	}
	if s.Len() != 0 {
		t.Errorf("expired entry should be removed, len = %d", s.Len())
	}
}

func TestMemoryStoreLRUEviction(t *testing.T) {
	s := NewMemoryStore(2)
	ctx := context.Background()

	_ = s.Set(ctx, "a", []byte("1"), 0)
	_ = s.Set(ctx, "b", []byte("2"), 0)
	// Touch "a" so "b" becomes the eviction candidate.
	if _, err := s.Get(ctx, "a"); err != nil {
		t.Fatalf("Get a: %v", err)
	}
	_ = s.Set(ctx, "c", []byte("3"), 0)

	if _, err := s.Get(ctx, "b"); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("least recently used entry should be evicted, got %v", err)
	}
	if _, err := s.Get(ctx, "a"); err != nil {
		t.Errorf("recently used entry should survive: %v", err)
	}
	if s.Len() != 2 {
		t.Errorf("len = %d, want capacity 2", s.Len())
	}
}

func TestMemoryStoreSetNX(t *testing.T) {
	now := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	s := NewMemoryStore(4, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	ok, err := s.SetNX(ctx, "k", []byte("first"), time.Minute)
	if err != nil || !ok {
		t.Fatalf("first SetNX = (%v, %v), want (true, nil)", ok, err)
	}
	ok, err = s.SetNX(ctx, "k", []byte("second"), time.Minute)
	if err != nil || ok {
		t.Fatalf("second SetNX = (%v, %v), want (false, nil)", ok, err)
	}

	now = now.Add(2 * time.Minute)
	ok, err = s.SetNX(ctx, "k", []byte("third"), time.Minute)
	if err != nil || !ok {
		t.Fatalf("SetNX after expiry = (%v, %v), want (true, nil)", ok, err)
	}
	got, _ := s.Get(ctx, "k")
	if string(got) != "third" {
		t.Errorf("value = %q, want third", got)
	}
}

func TestMemoryStoreDelAndClose(t *testing.T) {
	s := NewMemoryStore(4)
	ctx := context.Background()

	_ = s.Set(ctx, "k", []byte("v"), 0)
	if err := s.Del(ctx, "k"); err != nil {
		t.Fatalf("Del: %v", err)
	}
	if _, err := s.Get(ctx, "k"); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("expected miss after Del, got %v", err)
	}

	_ = s.Set(ctx, "x", []byte("1"), 0)
	_ = s.Set(ctx, "y", []byte("2"), 0)
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if s.Len() != 0 {
		t.Errorf("Close should drop all entries, len = %d", s.Len())
	}
}
