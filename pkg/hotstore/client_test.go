package hotstore

import (
	"context"
	"testing"
	"time"
)

func newTestClient(t *testing.T) *RedisClient {
	t.Helper()
	c, mr, err := NewSubstitute()
	if err != nil {
		t.Fatalf("NewSubstitute() error = %v", err)
	}
	t.Cleanup(func() {
		c.Close()
		mr.Close()
	})
	return c
}

func TestGetSetRoundTrip(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	if err := c.SetWithTTL(ctx, "memory:1", []byte(`{"id":"1"}`), time.Minute); err != nil {
		t.Fatalf("SetWithTTL() error = %v", err)
	}
	got, err := c.Get(ctx, "memory:1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(got) != `{"id":"1"}` {
		t.Errorf("Get() = %s, want raw json", got)
	}
}

func TestGetMissingKeyReturnsNilNoError(t *testing.T) {
	c := newTestClient(t)
	got, err := c.Get(context.Background(), "memory:missing")
	if err != nil {
		t.Fatalf("Get() error = %v, want nil", err)
	}
	if got != nil {
		t.Errorf("Get() = %v, want nil", got)
	}
}

func TestDelRemovesKey(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	c.SetWithTTL(ctx, "memory:1", []byte("x"), time.Minute)

	if err := c.Del(ctx, "memory:1"); err != nil {
		t.Fatalf("Del() error = %v", err)
	}
	got, _ := c.Get(ctx, "memory:1")
	if got != nil {
		t.Errorf("Get() after Del = %v, want nil", got)
	}
}

func TestSetMembers(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	if err := c.SetAdd(ctx, "keyword:golang", "mem-1", "mem-2"); err != nil {
		t.Fatalf("SetAdd() error = %v", err)
	}
	members, err := c.SetMembers(ctx, "keyword:golang")
	if err != nil {
		t.Fatalf("SetMembers() error = %v", err)
	}
	if len(members) != 2 {
		t.Errorf("SetMembers() = %v, want 2 members", members)
	}

	if err := c.SetRemove(ctx, "keyword:golang", "mem-1"); err != nil {
		t.Fatalf("SetRemove() error = %v", err)
	}
	members, _ = c.SetMembers(ctx, "keyword:golang")
	if len(members) != 1 {
		t.Errorf("SetMembers() after remove = %v, want 1 member", members)
	}
}

func TestHashIncrByAndGetAll(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	if _, err := c.HashIncrBy(ctx, "cache:metadata", "hits", 3); err != nil {
		t.Fatalf("HashIncrBy() error = %v", err)
	}
	if _, err := c.HashIncrBy(ctx, "cache:metadata", "hits", 2); err != nil {
		t.Fatalf("HashIncrBy() error = %v", err)
	}
	m, err := c.HashGetAll(ctx, "cache:metadata")
	if err != nil {
		t.Fatalf("HashGetAll() error = %v", err)
	}
	if m["hits"] != "5" {
		t.Errorf("hits = %s, want 5", m["hits"])
	}
}

func TestScanEnumeratesMatchingKeys(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	for _, id := range []string{"1", "2", "3"} {
		c.SetWithTTL(ctx, "memory:"+id, []byte("x"), time.Minute)
	}
	c.SetWithTTL(ctx, "keyword:golang", []byte("x"), time.Minute)

	var found []string
	cursor := uint64(0)
	for {
		newCursor, keys, err := c.Scan(ctx, cursor, "memory:*", 10)
		if err != nil {
			t.Fatalf("Scan() error = %v", err)
		}
		found = append(found, keys...)
		if newCursor == 0 {
			break
		}
		cursor = newCursor
	}
	if len(found) != 3 {
		t.Errorf("Scan() found %d keys, want 3: %v", len(found), found)
	}
}

func TestPublishSubscribe(t *testing.T) {
	c := newTestClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	received := make(chan string, 1)
	stop, err := c.Subscribe(ctx, "cache:invalidate", func(_ context.Context, channel string, payload []byte) {
		received <- string(payload)
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	defer stop()

	if err := c.Publish(ctx, "cache:invalidate", []byte(`{"memory_id":"1"}`)); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case payload := <-received:
		if payload != `{"memory_id":"1"}` {
			t.Errorf("payload = %s, want raw json", payload)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for published message")
	}
}

func TestPing(t *testing.T) {
	c := newTestClient(t)
	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
}

func TestParseInfoField(t *testing.T) {
	info := "# Clients\r\nconnected_clients:7\r\nblocked_clients:0\r\n"
	v, ok := ParseInfoField(info, "connected_clients")
	if !ok || v != "7" {
		t.Errorf("ParseInfoField() = %q, %v, want 7, true", v, ok)
	}
	if _, ok := ParseInfoField(info, "missing_field"); ok {
		t.Error("ParseInfoField() found a field that isn't present")
	}
}
