package escrow

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/sync/errgroup"

	"github.com/mmynk/crowdpay/internal/archive"
	"github.com/mmynk/crowdpay/internal/models"
	"github.com/mmynk/crowdpay/internal/storage"
	"github.com/mmynk/crowdpay/internal/storage/memory"
	"github.com/mmynk/crowdpay/internal/storage/sqlite"
)

type fakeRecorder struct {
	mu       sync.Mutex
	results  map[string][]string
	settled  uint64
	archives int
}

func (r *fakeRecorder) ObserveOperation(op, result string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.results == nil {
		r.results = make(map[string][]string)
	}
	r.results[op] = append(r.results[op], result)
}

func (r *fakeRecorder) AddSettled(amount uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settled += amount
}

func (r *fakeRecorder) ArchiveFailed() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.archives++
}

type fakeArchiver struct {
	mu      sync.Mutex
	bundles []*archive.Bundle
	err     error
}

func (a *fakeArchiver) Archive(_ context.Context, b *archive.Bundle) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.bundles = append(a.bundles, b)
	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fixedClock() time.Time {
	return time.Unix(now, 0)
}

func newOps(t *testing.T, store storage.Store, opts ...Option) *Operations {
	t.Helper()
	base := []Option{WithLogger(quietLogger()), WithClock(fixedClock)}
	return NewOperations(store, append(base, opts...)...)
}

// stores returns one instance of every in-process backend.
func stores(t *testing.T) map[string]storage.Store {
	t.Helper()

	db, err := sqlite.New(filepath.Join(t.TempDir(), "escrow.db"))
	if err != nil {
		t.Fatalf("sqlite.New failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return map[string]storage.Store{
		"memory": memory.New(),
		"sqlite": db,
	}
}

func TestOperations_FullLifecycle(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			rec := &fakeRecorder{}
			arch := &fakeArchiver{}
			ops := newOps(t, store, WithRecorder(rec), WithArchiver(arch))

			group, err := ops.CreateGroup(ctx, "organizer", "", 300, 3)
			if err != nil {
				t.Fatalf("CreateGroup failed: %v", err)
			}
			if group.ID == "" || group.CreatedAt != now {
				t.Errorf("unexpected group: %+v", group)
			}

			for _, wallet := range []string{"alice", "bob", "carol"} {
				if _, err := ops.Contribute(ctx, group.ID, wallet, 100); err != nil {
					t.Fatalf("Contribute(%s) failed: %v", wallet, err)
				}
			}

			got, err := ops.GetGroup(ctx, group.ID)
			if err != nil {
				t.Fatalf("GetGroup failed: %v", err)
			}
			if got.Status != models.GroupCompleted {
				t.Errorf("status = %s, want completed", got.Status)
			}

			receipt, err := ops.Contribute(ctx, group.ID, "dave", 100)
			if !errors.Is(err, ErrGroupNotActive) || receipt != nil {
				t.Fatalf("fourth Contribute = %+v, %v; want ErrGroupNotActive", receipt, err)
			}
			after, err := ops.GetGroup(ctx, group.ID)
			if err != nil {
				t.Fatalf("GetGroup failed: %v", err)
			}
			if diff := cmp.Diff(got, after); diff != "" {
				t.Errorf("rejected Contribute changed the group (-before +after):\n%s", diff)
			}
			if after.CollectedAmount != 300 || after.PaidParticipants != 3 {
				t.Errorf("collected=%d paid=%d, want 300 and 3", after.CollectedAmount, after.PaidParticipants)
			}
			if participants, _ := ops.ListParticipants(ctx, group.ID); len(participants) != 3 {
				t.Errorf("participants = %d, want 3", len(participants))
			}

			escrow, _ := ops.GetBalance(ctx, group.EscrowSlot())
			if escrow != 300 {
				t.Errorf("escrow balance = %d, want 300", escrow)
			}

			transfer, err := ops.SettlePayment(ctx, group.ID, "organizer")
			if err != nil {
				t.Fatalf("SettlePayment failed: %v", err)
			}
			if transfer.Amount != 300 || transfer.To != models.WalletSlot("organizer") || transfer.From != group.EscrowSlot() {
				t.Errorf("unexpected transfer: %+v", transfer)
			}

			settled, _ := ops.GetGroup(ctx, group.ID)
			if settled.Status != models.GroupSettled || settled.SettledAt != now {
				t.Errorf("status=%s settledAt=%d", settled.Status, settled.SettledAt)
			}
			if b, _ := ops.GetBalance(ctx, models.WalletSlot("organizer")); b != 300 {
				t.Errorf("organizer balance = %d, want 300", b)
			}
			if b, _ := ops.GetBalance(ctx, group.EscrowSlot()); b != 0 {
				t.Errorf("escrow balance = %d, want 0", b)
			}

			recorded, err := ops.GetSettlement(ctx, group.ID)
			if err != nil {
				t.Fatalf("GetSettlement failed: %v", err)
			}
			if diff := cmp.Diff(transfer, recorded); diff != "" {
				t.Errorf("GetSettlement mismatch (-want +got):\n%s", diff)
			}

			if len(arch.bundles) != 1 || len(arch.bundles[0].Participants) != 3 {
				t.Fatalf("archived bundles = %+v", arch.bundles)
			}
			if rec.settled != 300 {
				t.Errorf("recorded settled = %d, want 300", rec.settled)
			}
			wantResults := []string{KindOK, KindOK, KindOK, KindGroupNotActive}
			if diff := cmp.Diff(wantResults, rec.results[OpContribute]); diff != "" {
				t.Errorf("contribute results mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestOperations_UnderfundedSettlement(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name+"/target policy is refused by the ledger", func(t *testing.T) {
			ctx := context.Background()
			ops := newOps(t, store)

			group, _ := ops.CreateGroup(ctx, "organizer-b", "", 300, 2)
			for _, wallet := range []string{"alice", "bob"} {
				if _, err := ops.Contribute(ctx, group.ID, wallet, 50); err != nil {
					t.Fatalf("Contribute failed: %v", err)
				}
			}

			_, err := ops.SettlePayment(ctx, group.ID, "organizer-b")
			if !errors.Is(err, storage.ErrInsufficientFunds) {
				t.Fatalf("expected ErrInsufficientFunds, got %v", err)
			}
			if Kind(err) != KindInsufficientFunds {
				t.Errorf("Kind = %q", Kind(err))
			}

			got, _ := ops.GetGroup(ctx, group.ID)
			if got.Status != models.GroupCompleted || got.CollectedAmount != 100 {
				t.Errorf("group changed: status=%s collected=%d", got.Status, got.CollectedAmount)
			}
			if b, _ := ops.GetBalance(ctx, group.EscrowSlot()); b != 100 {
				t.Errorf("escrow balance = %d, want 100", b)
			}
			if b, _ := ops.GetBalance(ctx, models.WalletSlot("organizer-b")); b != 0 {
				t.Errorf("organizer balance = %d, want 0", b)
			}
		})

		t.Run(name+"/collected policy pays what was collected", func(t *testing.T) {
			ctx := context.Background()
			ops := newOps(t, store, WithPolicy(Policy{Payout: PayoutCollected}))

			group, _ := ops.CreateGroup(ctx, "organizer-c", "", 300, 2)
			for _, wallet := range []string{"alice", "bob"} {
				if _, err := ops.Contribute(ctx, group.ID, wallet, 50); err != nil {
					t.Fatalf("Contribute failed: %v", err)
				}
			}

			transfer, err := ops.SettlePayment(ctx, group.ID, "organizer-c")
			if err != nil {
				t.Fatalf("SettlePayment failed: %v", err)
			}
			if transfer.Amount != 100 {
				t.Errorf("amount = %d, want 100", transfer.Amount)
			}
			if b, _ := ops.GetBalance(ctx, models.WalletSlot("organizer-c")); b != 100 {
				t.Errorf("organizer balance = %d, want 100", b)
			}
		})
	}
}

func TestOperations_OvercollectedTargetLeavesSurplus(t *testing.T) {
	ctx := context.Background()
	ops := newOps(t, memory.New())

	group, _ := ops.CreateGroup(ctx, "organizer", "", 300, 2)
	for _, wallet := range []string{"alice", "bob"} {
		if _, err := ops.Contribute(ctx, group.ID, wallet, 200); err != nil {
			t.Fatalf("Contribute failed: %v", err)
		}
	}

	transfer, err := ops.SettlePayment(ctx, group.ID, "organizer")
	if err != nil {
		t.Fatalf("SettlePayment failed: %v", err)
	}
	if transfer.Amount != 300 {
		t.Errorf("amount = %d, want 300", transfer.Amount)
	}
	if b, _ := ops.GetBalance(ctx, group.EscrowSlot()); b != 100 {
		t.Errorf("escrow surplus = %d, want 100", b)
	}
}

func TestOperations_ConcurrentSettlement(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			ops := newOps(t, store)

			group, _ := ops.CreateGroup(ctx, "organizer-d", "", 200, 2)
			for _, wallet := range []string{"alice", "bob"} {
				if _, err := ops.Contribute(ctx, group.ID, wallet, 100); err != nil {
					t.Fatalf("Contribute failed: %v", err)
				}
			}

			var successes, rejections atomic.Int32
			var g errgroup.Group
			for i := 0; i < 2; i++ {
				g.Go(func() error {
					_, err := ops.SettlePayment(ctx, group.ID, "organizer-d")
					switch {
					case err == nil:
						successes.Add(1)
					case errors.Is(err, ErrGroupNotCompleted):
						rejections.Add(1)
					default:
						return err
					}
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				t.Fatalf("unexpected settle error: %v", err)
			}

			if successes.Load() != 1 || rejections.Load() != 1 {
				t.Errorf("successes=%d rejections=%d, want 1 and 1", successes.Load(), rejections.Load())
			}
			if b, _ := ops.GetBalance(ctx, models.WalletSlot("organizer-d")); b != 200 {
				t.Errorf("organizer balance = %d, want 200", b)
			}
		})
	}
}

func TestOperations_ConcurrentContributions(t *testing.T) {
	ctx := context.Background()
	ops := newOps(t, memory.New())

	group, _ := ops.CreateGroup(ctx, "organizer", "", 1000, 10)

	var accepted, rejected atomic.Int32
	var g errgroup.Group
	for i := 0; i < 20; i++ {
		g.Go(func() error {
			_, err := ops.Contribute(ctx, group.ID, "wallet", 100)
			switch {
			case err == nil:
				accepted.Add(1)
			case errors.Is(err, ErrGroupNotActive):
				rejected.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("unexpected contribute error: %v", err)
	}

	if accepted.Load() != 10 || rejected.Load() != 10 {
		t.Errorf("accepted=%d rejected=%d, want 10 and 10", accepted.Load(), rejected.Load())
	}
	got, _ := ops.GetGroup(ctx, group.ID)
	if got.PaidParticipants != 10 || got.CollectedAmount != 1000 {
		t.Errorf("paid=%d collected=%d", got.PaidParticipants, got.CollectedAmount)
	}
}

func TestOperations_Rejections(t *testing.T) {
	ctx := context.Background()
	ops := newOps(t, memory.New())

	if _, err := ops.CreateGroup(ctx, "organizer", "", 0, 3); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("CreateGroup zero total: expected ErrInvalidArgument, got %v", err)
	}

	if _, err := ops.Contribute(ctx, "missing", "alice", 10); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Contribute missing group: expected ErrNotFound, got %v", err)
	}
	if _, err := ops.SettlePayment(ctx, "missing", "organizer"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("SettlePayment missing group: expected ErrNotFound, got %v", err)
	}
	if _, err := ops.ListParticipants(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("ListParticipants missing group: expected ErrNotFound, got %v", err)
	}

	group, _ := ops.CreateGroup(ctx, "organizer", "", 100, 1)

	if _, err := ops.SettlePayment(ctx, group.ID, "organizer"); !errors.Is(err, ErrGroupNotCompleted) {
		t.Errorf("settle active group: expected ErrGroupNotCompleted, got %v", err)
	}
	if _, err := ops.Contribute(ctx, group.ID, "alice", 0); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("zero contribution: expected ErrInvalidArgument, got %v", err)
	}
	if _, err := ops.Contribute(ctx, group.ID, "alice", 100); err != nil {
		t.Fatalf("Contribute failed: %v", err)
	}
	if _, err := ops.SettlePayment(ctx, group.ID, "mallory"); !errors.Is(err, ErrNotOrganizer) {
		t.Errorf("settle by stranger: expected ErrNotOrganizer, got %v", err)
	}

	got, _ := ops.GetGroup(ctx, group.ID)
	if got.Status != models.GroupCompleted {
		t.Errorf("status = %s, want completed", got.Status)
	}
	if b, _ := ops.GetBalance(ctx, models.WalletSlot("mallory")); b != 0 {
		t.Errorf("stranger balance = %d, want 0", b)
	}
}

func TestOperations_ArchiveFailureDoesNotFailSettlement(t *testing.T) {
	ctx := context.Background()
	rec := &fakeRecorder{}
	ops := newOps(t, memory.New(),
		WithRecorder(rec),
		WithArchiver(&fakeArchiver{err: errors.New("bucket unavailable")}),
	)

	group, _ := ops.CreateGroup(ctx, "organizer", "", 100, 1)
	if _, err := ops.Contribute(ctx, group.ID, "alice", 100); err != nil {
		t.Fatalf("Contribute failed: %v", err)
	}
	if _, err := ops.SettlePayment(ctx, group.ID, "organizer"); err != nil {
		t.Fatalf("SettlePayment failed: %v", err)
	}
	if rec.archives != 1 {
		t.Errorf("archive failures = %d, want 1", rec.archives)
	}
}
