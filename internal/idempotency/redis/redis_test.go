package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
)

func newTestKeyStore(t *testing.T) *KeyStore {
	t.Helper()

	addr := os.Getenv("CROWDPAY_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("CROWDPAY_TEST_REDIS_ADDR not set")
	}
	s, err := New(context.Background(), ClientConfig{Addr: addr})
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestKeyStore_Lifecycle(t *testing.T) {
	s := newTestKeyStore(t)
	ctx := context.Background()
	key := "test:" + uuid.New().String()

	claimed, err := s.Claim(ctx, key, time.Minute)
	if err != nil || !claimed {
		t.Fatalf("first Claim = %v, %v; want true, nil", claimed, err)
	}
	if claimed, _ := s.Claim(ctx, key, time.Minute); claimed {
		t.Fatal("second Claim succeeded")
	}

	if _, done, err := s.Load(ctx, key); err != nil || done {
		t.Fatalf("Load while pending = done %v, err %v", done, err)
	}

	if err := s.Complete(ctx, key, []byte("receipt"), time.Minute); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	result, done, err := s.Load(ctx, key)
	if err != nil || !done || string(result) != "receipt" {
		t.Fatalf("Load = %q, %v, %v; want receipt, true, nil", result, done, err)
	}

	if err := s.Release(ctx, key); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if claimed, _ := s.Claim(ctx, key, time.Minute); !claimed {
		t.Error("Claim after Release failed")
	}
	_ = s.Release(ctx, key)
}
