package models

// Transfer is the settlement instruction: a single movement of pooled funds
// from a group's escrow slot to its organizer. At most one exists per group.
type Transfer struct {
	// GroupID is the settled group.
	GroupID string

	// From is the source balance slot (the group's escrow slot).
	From string

	// To is the destination balance slot (the organizer's wallet slot).
	To string

	// Amount is the payout.
	Amount uint64

	// CreatedAt is the Unix timestamp when the transfer was committed.
	CreatedAt int64
}
