package models

import "fmt"

// Balance slots live in two namespaces so that no identity string can name
// a group's escrow.
const (
	groupSlotPrefix  = "group:"
	walletSlotPrefix = "wallet:"
)

// MaxGroupNameLen bounds Group.Name in bytes.
const MaxGroupNameLen = 100

// WalletSlot is the balance slot owned by an identity.
func WalletSlot(identity string) string {
	return walletSlotPrefix + identity
}

// GroupSlot is the balance slot holding the pooled funds of group id.
func GroupSlot(id string) string {
	return groupSlotPrefix + id
}

// GroupStatus is the position of a group in the escrow state machine.
type GroupStatus uint8

const (
	// GroupActive accepts contributions.
	GroupActive GroupStatus = iota
	// GroupCompleted has received every expected contribution and awaits settlement.
	GroupCompleted
	// GroupSettled has paid out. It is terminal.
	GroupSettled
)

// String returns the lower-case status name used on the wire and in storage.
func (s GroupStatus) String() string {
	switch s {
	case GroupActive:
		return "active"
	case GroupCompleted:
		return "completed"
	case GroupSettled:
		return "settled"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// ParseGroupStatus is the inverse of GroupStatus.String.
func ParseGroupStatus(s string) (GroupStatus, error) {
	switch s {
	case "active":
		return GroupActive, nil
	case "completed":
		return GroupCompleted, nil
	case "settled":
		return GroupSettled, nil
	default:
		return 0, fmt.Errorf("unknown group status %q", s)
	}
}

// Group is one escrow pool.
type Group struct {
	// ID is the group handle (UUID format).
	ID string

	// Name is a display label chosen by the organizer. It may be empty.
	Name string

	// Organizer is the identity that receives the payout. Immutable.
	Organizer string

	// TotalAmount is the funding target. Immutable.
	TotalAmount uint64

	// ParticipantCount is the number of contributions expected. Immutable.
	ParticipantCount uint8

	// CollectedAmount is the running sum of accepted contributions.
	CollectedAmount uint64

	// PaidParticipants is the number of contributions accepted so far.
	PaidParticipants uint8

	// Status is the state machine position.
	Status GroupStatus

	// CreatedAt is the Unix timestamp when the group was created.
	CreatedAt int64

	// UpdatedAt is the Unix timestamp of the last accepted transition.
	UpdatedAt int64

	// SettledAt is the Unix timestamp of settlement, zero until settled.
	SettledAt int64
}

// Clone returns a copy that can be mutated without touching g.
func (g *Group) Clone() *Group {
	c := *g
	return &c
}

// EscrowSlot is the balance slot holding this group's pooled funds.
func (g *Group) EscrowSlot() string {
	return GroupSlot(g.ID)
}

// SuggestedShare is the even split of the target across the expected
// contributions, rounded down. It is advisory; contributions of any
// positive amount are accepted.
func (g *Group) SuggestedShare() uint64 {
	if g.ParticipantCount == 0 {
		return 0
	}
	return g.TotalAmount / uint64(g.ParticipantCount)
}
