package escrow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mmynk/crowdpay/internal/archive"
	"github.com/mmynk/crowdpay/internal/models"
	"github.com/mmynk/crowdpay/internal/storage"
)

// Operation names used for logging and metrics.
const (
	OpCreateGroup   = "create_group"
	OpContribute    = "contribute"
	OpSettlePayment = "settle_payment"
)

// Recorder receives operation outcomes. *metrics.Metrics implements it.
type Recorder interface {
	ObserveOperation(operation, result string, elapsed time.Duration)
	AddSettled(amount uint64)
	ArchiveFailed()
}

type nopRecorder struct{}

func (nopRecorder) ObserveOperation(string, string, time.Duration) {}
func (nopRecorder) AddSettled(uint64)                             {}
func (nopRecorder) ArchiveFailed()                                {}

// Operations is the entry point for the three escrow operations. Each one
// loads the group, validates it, applies the transition to a copy, and
// commits the copy together with its side effects in one store transaction.
type Operations struct {
	store    storage.Store
	policy   Policy
	archiver archive.Archiver
	recorder Recorder
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures Operations.
type Option func(*Operations)

// WithPolicy overrides DefaultPolicy.
func WithPolicy(p Policy) Option {
	return func(o *Operations) { o.policy = p }
}

// WithArchiver sets where settled groups are copied.
func WithArchiver(a archive.Archiver) Option {
	return func(o *Operations) { o.archiver = a }
}

// WithRecorder sets the metrics sink.
func WithRecorder(r Recorder) Option {
	return func(o *Operations) { o.recorder = r }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *Operations) { o.logger = l }
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Operations) { o.now = now }
}

// NewOperations creates Operations backed by store.
func NewOperations(store storage.Store, opts ...Option) *Operations {
	o := &Operations{
		store:    store,
		policy:   DefaultPolicy(),
		archiver: archive.Discard{},
		recorder: nopRecorder{},
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Policy returns the active policy.
func (o *Operations) Policy() Policy {
	return o.policy
}

func (o *Operations) finish(op string, start time.Time, err error, attrs ...any) {
	kind := Kind(err)
	o.recorder.ObserveOperation(op, kind, time.Since(start))

	attrs = append(attrs, "operation", op, "result", kind)
	switch kind {
	case KindOK:
		o.logger.Info("Escrow operation committed", attrs...)
	case KindStorageFailure:
		o.logger.Error("Escrow operation failed", append(attrs, "error", err)...)
	default:
		o.logger.Warn("Escrow operation rejected", append(attrs, "error", err)...)
	}
}

// CreateGroup creates an active group owned by organizer. name is an
// optional display label.
func (o *Operations) CreateGroup(ctx context.Context, organizer, name string, totalAmount uint64, participantCount int) (group *models.Group, err error) {
	start := time.Now()
	defer func() {
		groupID := ""
		if group != nil {
			groupID = group.ID
		}
		o.finish(OpCreateGroup, start, err, "group_id", groupID, "organizer", organizer)
	}()

	group, err = NewGroup(organizer, name, totalAmount, participantCount)
	if err != nil {
		return nil, err
	}

	now := o.now().Unix()
	group.CreatedAt = now
	group.UpdatedAt = now
	if err := o.store.CreateGroup(ctx, group); err != nil {
		return nil, fmt.Errorf("failed to create group: %w", err)
	}
	return group, nil
}

// Contribute records amount from contributor against the group and returns
// the receipt. The amount is credited to the group's escrow slot in the
// same transaction.
func (o *Operations) Contribute(ctx context.Context, groupID, contributor string, amount uint64) (receipt *models.Participant, err error) {
	start := time.Now()
	var status models.GroupStatus
	defer func() {
		o.finish(OpContribute, start, err,
			"group_id", groupID, "contributor", contributor, "amount", amount, "status", status)
	}()

	now := o.now().Unix()
	updated, effects, err := o.store.UpdateGroup(ctx, groupID, func(g *models.Group) (*storage.Effects, error) {
		r, err := ApplyContribution(g, contributor, amount, o.policy, now)
		if err != nil {
			return nil, err
		}
		return &storage.Effects{Receipt: r, Deposit: amount}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("contribute to group %s: %w", groupID, err)
	}

	status = updated.Status
	return effects.Receipt, nil
}

// SettlePayment pays out a completed group to its organizer. caller must be
// the organizer. At most one call per group succeeds.
func (o *Operations) SettlePayment(ctx context.Context, groupID, caller string) (transfer *models.Transfer, err error) {
	start := time.Now()
	defer func() {
		var amount uint64
		if transfer != nil {
			amount = transfer.Amount
		}
		o.finish(OpSettlePayment, start, err, "group_id", groupID, "caller", caller, "amount", amount)
	}()

	now := o.now().Unix()
	settled, effects, err := o.store.UpdateGroup(ctx, groupID, func(g *models.Group) (*storage.Effects, error) {
		t, err := ApplySettlement(g, caller, o.policy, now)
		if err != nil {
			return nil, err
		}
		return &storage.Effects{Transfer: t}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("settle group %s: %w", groupID, err)
	}

	transfer = effects.Transfer
	o.recorder.AddSettled(transfer.Amount)
	o.archive(ctx, settled, transfer)
	return transfer, nil
}

// archive copies a settled group to the archiver. The settlement is already
// committed, so failures are logged and counted only.
func (o *Operations) archive(ctx context.Context, group *models.Group, transfer *models.Transfer) {
	participants, err := o.store.ListParticipants(ctx, group.ID)
	if err == nil {
		err = o.archiver.Archive(ctx, &archive.Bundle{
			Group:        group,
			Participants: participants,
			Transfer:     transfer,
		})
	}
	if err != nil {
		o.recorder.ArchiveFailed()
		o.logger.Error("Failed to archive settled group", "group_id", group.ID, "error", err)
	}
}

// GetGroup returns the current state of a group.
func (o *Operations) GetGroup(ctx context.Context, groupID string) (*models.Group, error) {
	return o.store.GetGroup(ctx, groupID)
}

// ListParticipants returns a group's receipts in acceptance order.
func (o *Operations) ListParticipants(ctx context.Context, groupID string) ([]*models.Participant, error) {
	if _, err := o.store.GetGroup(ctx, groupID); err != nil {
		return nil, err
	}
	return o.store.ListParticipants(ctx, groupID)
}

// GetSettlement returns the transfer a settled group paid out.
func (o *Operations) GetSettlement(ctx context.Context, groupID string) (*models.Transfer, error) {
	return o.store.GetSettlement(ctx, groupID)
}

// ListGroups returns the groups matching filter, newest first.
func (o *Operations) ListGroups(ctx context.Context, filter storage.GroupFilter) ([]*models.Group, error) {
	return o.store.ListGroups(ctx, filter)
}

// GetBalance returns the balance held by a slot: a wallet slot or a group
// escrow slot (see models.WalletSlot and models.GroupSlot).
func (o *Operations) GetBalance(ctx context.Context, slot string) (uint64, error) {
	return o.store.GetBalance(ctx, slot)
}
