package services

import (
	"testing"
	"time"
)

func TestResponseCacheRoundTrip(t *testing.T) {
	c := NewResponseCache(time.Minute, 1000)

	key := c.Key(1, "how do I sleep better", "digest-a")
	if _, ok := c.Get(key); ok {
		t.Fatal("unexpected hit on empty cache")
	}

	c.Set(key, "try a fixed wake time")
	got, ok := c.Get(key)
	if !ok || got != "try a fixed wake time" {
		t.Errorf("Get = (%q, %v), want cached response", got, ok)
	}

	if c.Len() != 1 {
		t.Errorf("Len = %d, want 1", c.Len())
	}
}

func TestResponseCacheKeyScoping(t *testing.T) {
	c := NewResponseCache(time.Minute, 1000)

	base := c.Key(1, "message", "digest")
	tests := []struct {
		name string
		key  string
	}{
		{"different user", c.Key(2, "message", "digest")},
		{"different message", c.Key(1, "other message", "digest")},
		{"different context digest", c.Key(1, "message", "other digest")},
	}
	for _, tt := range tests {
		if tt.key == base {
			t.Errorf("%s produced the same cache key", tt.name)
		}
	}

	if c.Key(1, "message", "digest") != base {
		t.Error("identical inputs produced different keys")
	}
}

func TestResponseCacheExpiry(t *testing.T) {
	c := NewResponseCache(10*time.Millisecond, 1000)

	key := c.Key(1, "message", "digest")
	c.Set(key, "response")
	time.Sleep(30 * time.Millisecond)

	if _, ok := c.Get(key); ok {
		t.Error("entry survived past its TTL")
	}
}
