package models

// Participant is the immutable receipt of one accepted contribution.
// A wallet may appear on several receipts of the same group.
type Participant struct {
	// ID is the receipt handle (UUID format).
	ID string

	// GroupID is the group this contribution was paid into.
	GroupID string

	// Wallet is the contributor identity.
	Wallet string

	// ContributedAmount is the amount paid in this single contribution.
	ContributedAmount uint64

	// CreatedAt is the Unix timestamp when the contribution was accepted.
	CreatedAt int64
}
