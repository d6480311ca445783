package rediscache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/hylla/pipedesk/internal/domain"
	"github.com/redis/go-redis/v9"
)

func sampleFunnels() []domain.Funnel {
	now := time.Date(2026, 3, 7, 12, 0, 0, 0, time.UTC)
	return []domain.Funnel{{
		ID:    "f1",
		Scope: domain.ScopeProject,
		Name:  "Sales",
		Stages: []domain.Stage{
			{ID: "s1", FunnelID: "f1", Name: "Lead", Order: 1, CreatedAt: now, UpdatedAt: now},
			{ID: "s2", FunnelID: "f1", Name: "Won", Order: 2, CreatedAt: now, UpdatedAt: now},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}}
}

// TestEncodeDecode verifies cached entries keep stage order and reject other versions.
func TestEncodeDecode(t *testing.T) {
	raw, err := encode(sampleFunnels())
	if err != nil {
		t.Fatalf("encode() error = %v", err)
	}
	got, ok, err := decode(raw)
	if err != nil || !ok {
		t.Fatalf("decode() = ok %v, error %v", ok, err)
	}
	if diff := cmp.Diff(sampleFunnels(), got); diff != "" {
		t.Fatalf("decode() mismatch (-want +got):\n%s", diff)
	}

	if _, ok, err := decode([]byte(`{"version":99,"funnels":[]}`)); err != nil || ok {
		t.Fatalf("decode(stale) = ok %v, error %v; want miss", ok, err)
	}
	if _, _, err := decode([]byte(`not json`)); err == nil {
		t.Fatal("expected decode error for garbage")
	}

	empty, err := encode(nil)
	if err != nil {
		t.Fatalf("encode(nil) error = %v", err)
	}
	funnels, ok, err := decode(empty)
	if err != nil || !ok || funnels == nil || len(funnels) != 0 {
		t.Fatalf("decode(empty) = %#v, %v, %v", funnels, ok, err)
	}
}

// TestKeyPerScope verifies scopes never share a key.
func TestKeyPerScope(t *testing.T) {
	if key(domain.ScopeProject) == key(domain.ScopeSubProject) {
		t.Fatal("scopes share a cache key")
	}
	if got := key(domain.ScopeSubProject); got != "pipedesk:funnels:subproject" {
		t.Fatalf("key() = %q", got)
	}
}

// TestOpenValidation verifies url parsing and ttl defaults.
func TestOpenValidation(t *testing.T) {
	if _, err := Open("", time.Minute); err == nil {
		t.Fatal("expected empty url error")
	}
	if _, err := Open("http://not-redis", time.Minute); err == nil {
		t.Fatal("expected scheme error")
	}
	cache, err := Open("redis://127.0.0.1:6379/2", 0)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer cache.Close()
	if cache.TTL() != DefaultTTL {
		t.Fatalf("TTL() = %v, want %v", cache.TTL(), DefaultTTL)
	}
}

// TestUnreachableServerReturnsErrors verifies transport failures surface as errors, not hits.
func TestUnreachableServerReturnsErrors(t *testing.T) {
	cache := New(redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	}), time.Minute)
	defer cache.Close()

	ctx := context.Background()
	if _, ok, err := cache.GetFunnels(ctx, domain.ScopeProject); err == nil || ok {
		t.Fatalf("GetFunnels() = ok %v, error %v; want error", ok, err)
	}
	if err := cache.PutFunnels(ctx, domain.ScopeProject, sampleFunnels()); err == nil {
		t.Fatal("expected PutFunnels() error")
	}
	if err := cache.InvalidateFunnels(ctx, domain.ScopeProject); err == nil {
		t.Fatal("expected InvalidateFunnels() error")
	}
}

// TestCacheAgainstServer exercises a real redis when PIPEDESK_TEST_REDIS_URL is set.
func TestCacheAgainstServer(t *testing.T) {
	url := os.Getenv("PIPEDESK_TEST_REDIS_URL")
	if url == "" {
		t.Skip("PIPEDESK_TEST_REDIS_URL not set")
	}
	cache, err := Open(url, time.Minute)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer cache.Close()
	ctx := context.Background()
	if err := cache.Ping(ctx); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
	if err := cache.InvalidateFunnels(ctx, domain.ScopeProject); err != nil {
		t.Fatalf("InvalidateFunnels() error = %v", err)
	}
	if _, ok, err := cache.GetFunnels(ctx, domain.ScopeProject); err != nil || ok {
		t.Fatalf("GetFunnels() after invalidate = ok %v, error %v", ok, err)
	}
	if err := cache.PutFunnels(ctx, domain.ScopeProject, sampleFunnels()); err != nil {
		t.Fatalf("PutFunnels() error = %v", err)
	}
	got, ok, err := cache.GetFunnels(ctx, domain.ScopeProject)
	if err != nil || !ok {
		t.Fatalf("GetFunnels() = ok %v, error %v", ok, err)
	}
	if diff := cmp.Diff(sampleFunnels(), got); diff != "" {
		t.Fatalf("GetFunnels() mismatch (-want +got):\n%s", diff)
	}
}
