package s3archive

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/mmynk/crowdpay/internal/archive"
	"github.com/mmynk/crowdpay/internal/models"
	"github.com/mmynk/crowdpay/internal/record"
)

func newTestArchiver(t *testing.T, endpoint string) *Archiver {
	t.Helper()
	a, err := New(context.Background(), ClientConfig{
		Endpoint:       endpoint,
		Region:         "us-east-1",
		Bucket:         "escrow-archive",
		AccessKey:      "test",
		SecretKey:      "test",
		ForcePathStyle: true,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return a
}

func TestNew_Validation(t *testing.T) {
	ctx := context.Background()

	if _, err := New(ctx, ClientConfig{Region: "us-east-1"}); err == nil {
		t.Error("expected error for missing bucket")
	}
	if _, err := New(ctx, ClientConfig{Bucket: "b"}); err == nil {
		t.Error("expected error for missing region")
	}
}

func TestNormaliseEndpoint(t *testing.T) {
	tests := map[string]string{
		"minio.local:9000":      "https://minio.local:9000",
		"http://localhost:9000": "http://localhost:9000",
		"https://s3.example":    "https://s3.example",
	}
	for in, want := range tests {
		if got := normaliseEndpoint(in); got != want {
			t.Errorf("normaliseEndpoint(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestArchive_PutsBundleUnderGroupKey(t *testing.T) {
	var (
		mu     sync.Mutex
		method string
		path   string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		method, path = r.Method, r.URL.Path
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	a := newTestArchiver(t, server.URL)

	bundle := &archive.Bundle{
		Group:    &models.Group{ID: "g-42", Organizer: "org", TotalAmount: 10, ParticipantCount: 1, Status: models.GroupSettled},
		Transfer: &models.Transfer{GroupID: "g-42", From: "group:g-42", To: "wallet:org", Amount: 10},
	}
	if err := a.Archive(context.Background(), bundle); err != nil {
		t.Fatalf("Archive failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if method != http.MethodPut {
		t.Errorf("method = %s, want PUT", method)
	}
	if path != "/escrow-archive/settlements/g-42.bin" {
		t.Errorf("path = %s, want /escrow-archive/settlements/g-42.bin", path)
	}
}

func TestFetch_DecodesArchivedBundle(t *testing.T) {
	want := &archive.Bundle{
		Group: &models.Group{ID: "g-7", Name: "Rent", Organizer: "org", TotalAmount: 20, ParticipantCount: 1,
			CollectedAmount: 20, PaidParticipants: 1, Status: models.GroupSettled},
		Participants: []*models.Participant{{ID: "p-1", GroupID: "g-7", Wallet: "alice", ContributedAmount: 20}},
		Transfer:     &models.Transfer{GroupID: "g-7", From: "group:g-7", To: "wallet:org", Amount: 20},
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/escrow-archive/settlements/g-7.bin" {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`))
			return
		}
		w.Header().Set("Content-Type", contentType)
		w.Write(record.MarshalBundle(want))
	}))
	defer server.Close()

	a := newTestArchiver(t, server.URL)

	got, err := a.Fetch(context.Background(), "g-7")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("bundle mismatch (-want +got):\n%s", diff)
	}

	if _, err := a.Fetch(context.Background(), "g-missing"); !errors.Is(err, archive.ErrNotArchived) {
		t.Errorf("expected ErrNotArchived, got %v", err)
	}
}
