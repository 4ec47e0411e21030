package postgres

import (
	"context"
	"errors"
	"os"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/mmynk/crowdpay/internal/models"
	"github.com/mmynk/crowdpay/internal/storage"
)

// newTestStore connects to the database named by CROWDPAY_TEST_POSTGRES_DSN
// and skips the test when it is unset.
func newTestStore(t *testing.T) *Store {
	t.Helper()

	dsn := os.Getenv("CROWDPAY_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("CROWDPAY_TEST_POSTGRES_DSN not set")
	}

	store, err := New(context.Background(), ClientConfig{DSN: dsn, MaxConns: 8})
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStore_ContributeAndSettle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	group := &models.Group{
		Organizer:        "pg-organizer",
		TotalAmount:      200,
		ParticipantCount: 2,
		Status:           models.GroupActive,
	}
	if err := store.CreateGroup(ctx, group); err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}

	var g errgroup.Group
	for _, wallet := range []string{"alice", "bob"} {
		g.Go(func() error {
			_, _, err := store.UpdateGroup(ctx, group.ID, func(grp *models.Group) (*storage.Effects, error) {
				grp.CollectedAmount += 100
				grp.PaidParticipants++
				if grp.PaidParticipants == grp.ParticipantCount {
					grp.Status = models.GroupCompleted
				}
				return &storage.Effects{
					Receipt: &models.Participant{Wallet: wallet, ContributedAmount: 100},
					Deposit: 100,
				}, nil
			})
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("contributions failed: %v", err)
	}

	before, err := store.GetBalance(ctx, models.WalletSlot(group.Organizer))
	if err != nil {
		t.Fatalf("GetBalance failed: %v", err)
	}

	var settled atomic.Int32
	var sg errgroup.Group
	for i := 0; i < 4; i++ {
		sg.Go(func() error {
			_, _, err := store.UpdateGroup(ctx, group.ID, func(grp *models.Group) (*storage.Effects, error) {
				if grp.Status != models.GroupCompleted {
					return nil, errors.New("not completed")
				}
				grp.Status = models.GroupSettled
				return &storage.Effects{Transfer: &models.Transfer{From: grp.EscrowSlot(), To: models.WalletSlot(grp.Organizer), Amount: grp.TotalAmount}}, nil
			})
			if err == nil {
				settled.Add(1)
			}
			return nil
		})
	}
	_ = sg.Wait()

	if settled.Load() != 1 {
		t.Fatalf("settled %d times, want 1", settled.Load())
	}

	after, _ := store.GetBalance(ctx, models.WalletSlot(group.Organizer))
	if after-before != 200 {
		t.Errorf("organizer received %d, want 200", after-before)
	}
	participants, _ := store.ListParticipants(ctx, group.ID)
	if len(participants) != 2 {
		t.Errorf("participants = %d, want 2", len(participants))
	}
	if _, err := store.GetSettlement(ctx, group.ID); err != nil {
		t.Errorf("GetSettlement failed: %v", err)
	}
}

func TestStore_GetGroupNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetGroup(context.Background(), "missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_ListGroups(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	organizer := "pg-" + uuid.New().String()
	group := &models.Group{
		Name:             "Team dinner",
		Organizer:        organizer,
		TotalAmount:      100,
		ParticipantCount: 1,
		Status:           models.GroupActive,
	}
	if err := store.CreateGroup(ctx, group); err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}

	groups, err := store.ListGroups(ctx, storage.GroupFilter{Organizer: organizer})
	if err != nil {
		t.Fatalf("ListGroups failed: %v", err)
	}
	if len(groups) != 1 || groups[0].ID != group.ID || groups[0].Name != "Team dinner" {
		t.Errorf("unexpected groups: %+v", groups)
	}

	groups, err = store.ListGroups(ctx, storage.GroupFilter{Organizer: organizer, Contributor: "nobody"})
	if err != nil || len(groups) != 0 {
		t.Errorf("ListGroups = %d groups, %v; want none", len(groups), err)
	}
}
