package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis"

	"github.com/Adithya-Monish-Kumar-K/strobe-loadgen/pkg/config"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	srv, err := miniredis.Run()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(srv.Close)
	c, err := NewClient(context.Background(), config.RedisConfig{Addr: srv.Addr(), PoolSize: 2})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Close() })
	return c, srv
}

func TestGetSet(t *testing.T) {
	c, srv := newTestClient(t)
	ctx := context.Background()

	if _, err := c.Get(ctx, "missing"); !IsNilError(err) {
		t.Fatalf("expected nil error for missing key, got %v", err)
	}
	if err := c.Set(ctx, "k", []byte{0, 1, 2}, time.Minute); err != nil {
		t.Fatal(err)
	}
	got, err := c.Get(ctx, "k")
	if err != nil || string(got) != "\x00\x01\x02" {
		t.Fatalf("Get = %q, %v", got, err)
	}
	srv.Del("k")
	if _, err := c.Get(ctx, "k"); !IsNilError(err) {
		t.Errorf("deleted key still readable: %v", err)
	}
}

func TestFlushByPattern(t *testing.T) {
	c, srv := newTestClient(t)
	ctx := context.Background()
	for _, k := range []string{"strobe:search:a", "strobe:search:b", "other"} {
		if err := c.Set(ctx, k, []byte("v"), 0); err != nil {
			t.Fatal(err)
		}
	}
	n, err := c.FlushByPattern(ctx, "strobe:search:*")
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("deleted %d keys, want 2", n)
	}
	if !srv.Exists("other") {
		t.Error("unrelated key was deleted")
	}
}

func TestNewClientFailsWithoutServer(t *testing.T) {
	srv, err := miniredis.Run()
	if err != nil {
		t.Fatal(err)
	}
	addr := srv.Addr()
	srv.Close()
	if _, err := NewClient(context.Background(), config.RedisConfig{Addr: addr}); err == nil {
		t.Error("expected ping failure")
	}
}
