// Package storage provides abstractions for persistent data storage.
package storage

import (
	"context"
	"errors"

	"github.com/mmynk/crowdpay/internal/models"
)

var (
	// ErrNotFound is returned when an addressed group, receipt, or
	// settlement does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInsufficientFunds is returned when a transfer would overdraw its
	// source balance slot.
	ErrInsufficientFunds = errors.New("insufficient funds")
)

// Effects is what a group mutation asks the store to commit alongside the
// updated group row. All of it lands in the same transaction or none of it
// does.
type Effects struct {
	// Receipt is a new participant record to insert. The store assigns
	// ID and CreatedAt when they are empty.
	Receipt *models.Participant

	// Deposit credits the group's escrow slot. It stands in for the
	// external funding step that accompanies a contribution.
	Deposit uint64

	// Transfer moves funds between two balance slots and is recorded as
	// the group's settlement.
	Transfer *models.Transfer
}

// GroupFilter narrows ListGroups. Empty fields match everything; set fields
// must all hold.
type GroupFilter struct {
	// Organizer matches groups created by this identity.
	Organizer string

	// Contributor matches groups this identity has contributed to.
	Contributor string

	// Member matches groups this identity either organizes or has
	// contributed to.
	Member string
}

// MutateFunc receives a private copy of the current group, mutates it in
// place, and returns the side effects to commit. Returning an error aborts
// the whole update.
type MutateFunc func(group *models.Group) (*Effects, error)

// Store defines the entity store used by the escrow operations.
// This abstraction allows swapping storage backends (SQLite, PostgreSQL,
// memory) without changing the escrow layer.
//
// Implementations must serialize UpdateGroup calls against the same group
// handle. Calls against different handles may run in parallel.
type Store interface {
	// CreateGroup persists a new group.
	// The group.ID and CreatedAt fields will be populated by the store.
	CreateGroup(ctx context.Context, group *models.Group) error

	// GetGroup retrieves a group by its ID.
	// Returns ErrNotFound if the group does not exist.
	GetGroup(ctx context.Context, groupID string) (*models.Group, error)

	// UpdateGroup performs an atomic read-modify-write of one group.
	// Returns ErrNotFound if the group does not exist, the error returned
	// by fn, or ErrInsufficientFunds if the requested transfer overdraws.
	UpdateGroup(ctx context.Context, groupID string, fn MutateFunc) (*models.Group, *Effects, error)

	// ListGroups returns the groups matching filter, newest first.
	ListGroups(ctx context.Context, filter GroupFilter) ([]*models.Group, error)

	// ListParticipants returns a group's receipts in acceptance order.
	ListParticipants(ctx context.Context, groupID string) ([]*models.Participant, error)

	// GetSettlement returns the transfer recorded when the group settled.
	// Returns ErrNotFound if the group has not settled.
	GetSettlement(ctx context.Context, groupID string) (*models.Transfer, error)

	// GetBalance returns the balance held by a slot. Unknown slots hold 0.
	GetBalance(ctx context.Context, slot string) (uint64, error)

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases any resources held by the store.
	Close() error
}
