// Package escrow implements the group escrow state machine and the
// operations that drive it.
//
// The lifecycle functions (NewGroup, ApplyContribution, ApplySettlement)
// are pure: they validate against the group they are given and mutate it in
// place, so callers hand them a private copy. Operations wraps them in the
// store's atomic read-modify-write.
package escrow

import (
	"fmt"
	"math"
	"math/bits"
	"strings"
	"unicode/utf8"

	"github.com/mmynk/crowdpay/internal/models"
)

// NewGroup validates creation parameters and returns an active, empty group
// owned by organizer. name is trimmed and may be empty.
func NewGroup(organizer, name string, totalAmount uint64, participantCount int) (*models.Group, error) {
	if organizer == "" {
		return nil, fmt.Errorf("%w: organizer identity required", ErrInvalidArgument)
	}
	name = strings.TrimSpace(name)
	if len(name) > models.MaxGroupNameLen {
		return nil, fmt.Errorf("%w: group name longer than %d bytes", ErrInvalidArgument, models.MaxGroupNameLen)
	}
	if !utf8.ValidString(name) {
		return nil, fmt.Errorf("%w: group name is not valid UTF-8", ErrInvalidArgument)
	}
	if totalAmount == 0 {
		return nil, fmt.Errorf("%w: total amount must be positive", ErrInvalidArgument)
	}
	if participantCount <= 0 || participantCount > math.MaxUint8 {
		return nil, fmt.Errorf("%w: participant count must be between 1 and %d, got %d",
			ErrInvalidArgument, math.MaxUint8, participantCount)
	}

	return &models.Group{
		Name:             name,
		Organizer:        organizer,
		TotalAmount:      totalAmount,
		ParticipantCount: uint8(participantCount),
		Status:           models.GroupActive,
	}, nil
}

// ApplyContribution records one contribution against g and returns the
// receipt. On error g is left untouched.
//
// Completion is count based: the group completes when the expected number of
// contributions has arrived, whatever their sum.
func ApplyContribution(g *models.Group, contributor string, amount uint64, policy Policy, now int64) (*models.Participant, error) {
	if g.Status != models.GroupActive {
		return nil, fmt.Errorf("%w: group %s is %s", ErrGroupNotActive, g.ID, g.Status)
	}

	receipt, err := NewReceipt(g.ID, contributor, amount)
	if err != nil {
		return nil, err
	}

	collected, carry := bits.Add64(g.CollectedAmount, amount, 0)
	if carry != 0 {
		return nil, fmt.Errorf("%w: collected amount", ErrArithmeticOverflow)
	}
	if g.PaidParticipants == math.MaxUint8 {
		return nil, fmt.Errorf("%w: paid participants", ErrArithmeticOverflow)
	}
	if policy.RejectOverfunding && collected > g.TotalAmount {
		return nil, fmt.Errorf("%w: collected would be %d of %d", ErrOverfunded, collected, g.TotalAmount)
	}

	g.CollectedAmount = collected
	g.PaidParticipants++
	if g.PaidParticipants == g.ParticipantCount {
		g.Status = models.GroupCompleted
	}
	g.UpdatedAt = now

	receipt.CreatedAt = now
	return receipt, nil
}

// ApplySettlement releases the pool of a completed group to its organizer
// and returns the transfer instruction. On error g is left untouched.
func ApplySettlement(g *models.Group, caller string, policy Policy, now int64) (*models.Transfer, error) {
	if g.Status != models.GroupCompleted {
		return nil, fmt.Errorf("%w: group %s is %s", ErrGroupNotCompleted, g.ID, g.Status)
	}
	if caller != g.Organizer {
		return nil, fmt.Errorf("%w: group %s", ErrNotOrganizer, g.ID)
	}

	transfer := &models.Transfer{
		GroupID:   g.ID,
		From:      g.EscrowSlot(),
		To:        models.WalletSlot(g.Organizer),
		Amount:    policy.payout(g.CollectedAmount, g.TotalAmount),
		CreatedAt: now,
	}

	g.Status = models.GroupSettled
	g.SettledAt = now
	g.UpdatedAt = now
	return transfer, nil
}
