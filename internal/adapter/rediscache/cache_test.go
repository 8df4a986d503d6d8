package rediscache_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/multivitaminds/signof-sub014/internal/adapter/rediscache"
)

func TestCache_RoundTrip(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("requires REDIS_URL")
	}
	ctx := context.Background()
	c, err := rediscache.Dial(ctx, url, "signof-test:")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })

	if err := c.Set(ctx, "tenant:t1", []byte(`{"plan":"pro"}`), time.Minute); err != nil {
		t.Fatal(err)
	}
	val, ok, err := c.Get(ctx, "tenant:t1")
	if err != nil || !ok || string(val) != `{"plan":"pro"}` {
		t.Fatalf("expected hit, got %q %v %v", val, ok, err)
	}
	if err := c.Delete(ctx, "tenant:t1"); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := c.Get(ctx, "tenant:t1"); ok {
		t.Fatal("expected miss after delete")
	}
}

func TestDial_BadURL(t *testing.T) {
	if _, err := rediscache.Dial(context.Background(), "not a url", ""); err == nil {
		t.Fatal("expected parse error")
	}
}
