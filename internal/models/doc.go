// Package models defines the core domain models for crowdpay.
//
// # Models
//
//   - Group: an escrow pool with a funding target, an expected number of
//     contributors, and an organizer who receives the payout
//   - Participant: an immutable receipt for one accepted contribution
//   - Transfer: the settlement instruction that moves pooled funds from the
//     group's escrow slot to the organizer
//
// # Identities and handles
//
// Identities (organizer, contributor wallet) are opaque strings supplied by
// the authentication layer. Handles (Group.ID, Participant.ID) are UUIDs
// assigned by the store. Relationships use ID strings, never pointers.
//
// # Lifecycle
//
// A group moves forward only:
//
//	Active --(paid == expected)--> Completed --(settle)--> Settled
//
// Participants are never mutated or deleted once written.
package models
