package analysiscache

import (
	"bytes"
	"io"
	"testing"

	"commsight/internal/logging"
	"commsight/internal/storage"
)

func testLogger() *logging.Logger {
	return logging.NewLogger(logging.Config{
		Format: logging.HumanFormat,
		Level:  logging.ErrorLevel,
		Output: io.Discard,
	})
}

func testCache(t *testing.T) *Cache {
	t.Helper()
	db, err := storage.Open(t.TempDir(), testLogger())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cache, err := New(db, testLogger())
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}
	t.Cleanup(cache.Close)
	return cache
}

func TestKeyDeterministic(t *testing.T) {
	batches := map[string][]byte{
		"email": []byte(`{"platform":"email"}`),
		"sms":   []byte(`{"platform":"sms"}`),
	}

	a := Key("case-1", batches, "fp")
	b := Key("case-1", batches, "fp")
	if a != b {
		t.Errorf("same inputs produced different keys: %s vs %s", a, b)
	}
}

func TestKeySensitivity(t *testing.T) {
	batches := map[string][]byte{"email": []byte("content")}
	base := Key("case-1", batches, "fp")

	tests := []struct {
		name string
		key  string
	}{
		{"case changes key", Key("case-2", batches, "fp")},
		{"config changes key", Key("case-1", batches, "other-fp")},
		{"content changes key", Key("case-1", map[string][]byte{"email": []byte("changed")}, "fp")},
		{"platform set changes key", Key("case-1", map[string][]byte{"email": []byte("content"), "sms": nil}, "fp")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.key == base {
				t.Error("key did not change")
			}
		})
	}
}

func TestPutAndGet(t *testing.T) {
	cache := testCache(t)
	payload := []byte(`{"caseId":"case-1","version":"0.3.0"}`)

	cache.Put("key-1", "case-1", payload)

	got, ok := cache.Get("key-1")
	if !ok {
		t.Fatal("expected a cache hit")
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("payload round-trip mismatch: %s", got)
	}
}

func TestGetMiss(t *testing.T) {
	cache := testCache(t)
	if _, ok := cache.Get("absent"); ok {
		t.Error("expected a miss for an absent key")
	}
}

func TestPutReplaces(t *testing.T) {
	cache := testCache(t)
	cache.Put("key-1", "case-1", []byte("first"))
	cache.Put("key-1", "case-1", []byte("second"))

	got, ok := cache.Get("key-1")
	if !ok || string(got) != "second" {
		t.Errorf("expected the replacement payload, got %q (hit=%v)", got, ok)
	}
}

func TestClearByCase(t *testing.T) {
	cache := testCache(t)
	cache.Put("key-a", "case-a", []byte("a"))
	cache.Put("key-b", "case-b", []byte("b"))

	removed, err := cache.Clear("case-a")
	if err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}

	if _, ok := cache.Get("key-a"); ok {
		t.Error("cleared entry still present")
	}
	if _, ok := cache.Get("key-b"); !ok {
		t.Error("other case's entry was removed")
	}
}

func TestClearAll(t *testing.T) {
	cache := testCache(t)
	cache.Put("key-a", "case-a", []byte("a"))
	cache.Put("key-b", "case-b", []byte("b"))

	removed, err := cache.Clear("")
	if err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}
}
