// Package memory provides an in-process implementation of storage.Store.
// Data does not survive a restart.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/crowdpay/internal/models"
	"github.com/mmynk/crowdpay/internal/storage"
)

// Ensure Store implements storage.Store
var _ storage.Store = (*Store)(nil)

// Store keeps every entity in maps guarded by one mutex. Each UpdateGroup
// runs entirely under the lock, so it is serializable against every other
// call.
type Store struct {
	mu           sync.Mutex
	groups       map[string]*models.Group
	participants map[string][]*models.Participant
	settlements  map[string]*models.Transfer
	balances     map[string]uint64
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		groups:       make(map[string]*models.Group),
		participants: make(map[string][]*models.Participant),
		settlements:  make(map[string]*models.Transfer),
		balances:     make(map[string]uint64),
	}
}

// CreateGroup stores a copy of group.
func (s *Store) CreateGroup(ctx context.Context, group *models.Group) error {
	if group.ID == "" {
		group.ID = uuid.New().String()
	}
	if group.CreatedAt == 0 {
		group.CreatedAt = time.Now().Unix()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.groups[group.ID]; exists {
		return fmt.Errorf("group already exists: %s", group.ID)
	}
	s.groups[group.ID] = group.Clone()
	return nil
}

// GetGroup returns a copy of the stored group.
func (s *Store) GetGroup(ctx context.Context, groupID string) (*models.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.groups[groupID]
	if !ok {
		return nil, fmt.Errorf("group %s: %w", groupID, storage.ErrNotFound)
	}
	return g.Clone(), nil
}

// UpdateGroup runs fn against a copy of the group and applies the result
// only if fn and every balance movement succeed.
func (s *Store) UpdateGroup(ctx context.Context, groupID string, fn storage.MutateFunc) (*models.Group, *storage.Effects, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.groups[groupID]
	if !ok {
		return nil, nil, fmt.Errorf("group %s: %w", groupID, storage.ErrNotFound)
	}

	next := current.Clone()
	effects, err := fn(next)
	if err != nil {
		return nil, nil, err
	}
	if effects == nil {
		effects = &storage.Effects{}
	}
	effects.Stamp(groupID, time.Now().Unix())

	// Stage balance changes so a failed debit leaves nothing behind.
	staged := make(map[string]uint64)
	balance := func(slot string) uint64 {
		if v, ok := staged[slot]; ok {
			return v
		}
		return s.balances[slot]
	}

	if effects.Deposit > 0 {
		v, err := storage.Credit(balance(next.EscrowSlot()), effects.Deposit)
		if err != nil {
			return nil, nil, err
		}
		staged[next.EscrowSlot()] = v
	}
	if t := effects.Transfer; t != nil {
		from, err := storage.Debit(balance(t.From), t.Amount)
		if err != nil {
			return nil, nil, fmt.Errorf("transfer from %s: %w", t.From, err)
		}
		staged[t.From] = from
		to, err := storage.Credit(balance(t.To), t.Amount)
		if err != nil {
			return nil, nil, fmt.Errorf("transfer to %s: %w", t.To, err)
		}
		staged[t.To] = to
	}

	for slot, v := range staged {
		s.balances[slot] = v
	}
	if r := effects.Receipt; r != nil {
		receipt := *r
		s.participants[groupID] = append(s.participants[groupID], &receipt)
	}
	if t := effects.Transfer; t != nil {
		transfer := *t
		s.settlements[groupID] = &transfer
	}
	s.groups[groupID] = next

	return next.Clone(), effects, nil
}

// ListGroups returns copies of the groups matching filter.
func (s *Store) ListGroups(ctx context.Context, filter storage.GroupFilter) ([]*models.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*models.Group
	for id, g := range s.groups {
		if filter.Organizer != "" && g.Organizer != filter.Organizer {
			continue
		}
		if filter.Contributor != "" && !s.contributed(id, filter.Contributor) {
			continue
		}
		if filter.Member != "" && g.Organizer != filter.Member && !s.contributed(id, filter.Member) {
			continue
		}
		out = append(out, g.Clone())
	}
	slices.SortFunc(out, func(a, b *models.Group) int {
		if c := cmp.Compare(b.CreatedAt, a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (s *Store) contributed(groupID, wallet string) bool {
	return slices.ContainsFunc(s.participants[groupID], func(p *models.Participant) bool {
		return p.Wallet == wallet
	})
}

// ListParticipants returns copies of the group's receipts.
func (s *Store) ListParticipants(ctx context.Context, groupID string) ([]*models.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := s.participants[groupID]
	out := make([]*models.Participant, len(stored))
	for i, p := range stored {
		c := *p
		out[i] = &c
	}
	return out, nil
}

// GetSettlement returns the group's recorded transfer.
func (s *Store) GetSettlement(ctx context.Context, groupID string) (*models.Transfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.settlements[groupID]
	if !ok {
		return nil, fmt.Errorf("settlement for group %s: %w", groupID, storage.ErrNotFound)
	}
	c := *t
	return &c, nil
}

// GetBalance returns the slot's balance.
func (s *Store) GetBalance(ctx context.Context, slot string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balances[slot], nil
}

// Ping always succeeds.
func (s *Store) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}
