package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mmynk/crowdpay/internal/models"
	"github.com/mmynk/crowdpay/internal/storage"
)

// Compile-time interface check.
var _ storage.Store = (*Store)(nil)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store implements storage.Store on a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to PostgreSQL, applies migrations, and returns the Store.
func New(ctx context.Context, cfg ClientConfig) (*Store, error) {
	pool, err := connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := runMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// Close shuts down the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres: ping: %w", err)
	}
	return nil
}

const groupColumns = `
	SELECT id, name, organizer, total_amount::text, participant_count, collected_amount::text,
	       paid_participants, status, created_at, updated_at, settled_at
	FROM groups`

const selectGroup = groupColumns + ` WHERE id = $1`

// CreateGroup inserts a new group.
func (s *Store) CreateGroup(ctx context.Context, group *models.Group) error {
	if group.ID == "" {
		group.ID = uuid.New().String()
	}
	if group.CreatedAt == 0 {
		group.CreatedAt = time.Now().Unix()
	}
	if group.UpdatedAt == 0 {
		group.UpdatedAt = group.CreatedAt
	}

	const query = `
		INSERT INTO groups (id, name, organizer, total_amount, participant_count, collected_amount,
		                    paid_participants, status, created_at, updated_at, settled_at)
		VALUES ($1, $2, $3, $4::text::numeric, $5, $6::text::numeric, $7, $8, $9, $10, $11)`
	_, err := s.pool.Exec(ctx, query,
		group.ID, group.Name, group.Organizer, storage.FormatAmount(group.TotalAmount), int16(group.ParticipantCount),
		storage.FormatAmount(group.CollectedAmount), int16(group.PaidParticipants), group.Status.String(),
		group.CreatedAt, group.UpdatedAt, group.SettledAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert group %s: %w", group.ID, err)
	}
	return nil
}

// GetGroup returns the group with the given ID.
func (s *Store) GetGroup(ctx context.Context, groupID string) (*models.Group, error) {
	return scanGroup(s.pool.QueryRow(ctx, selectGroup, groupID), groupID)
}

func scanGroup(row pgx.Row, groupID string) (*models.Group, error) {
	g := &models.Group{}
	var total, collected, status string
	var count, paid int16

	err := row.Scan(&g.ID, &g.Name, &g.Organizer, &total, &count, &collected,
		&paid, &status, &g.CreatedAt, &g.UpdatedAt, &g.SettledAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("group %s: %w", groupID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get group %s: %w", groupID, err)
	}

	g.ParticipantCount = uint8(count)
	g.PaidParticipants = uint8(paid)
	if g.TotalAmount, err = storage.ParseAmount(total); err != nil {
		return nil, err
	}
	if g.CollectedAmount, err = storage.ParseAmount(collected); err != nil {
		return nil, err
	}
	if g.Status, err = models.ParseGroupStatus(status); err != nil {
		return nil, err
	}
	return g, nil
}

// ListGroups returns the groups matching filter, newest first.
func (s *Store) ListGroups(ctx context.Context, filter storage.GroupFilter) ([]*models.Group, error) {
	const query = groupColumns + `
		WHERE ($1::text = '' OR organizer = $1)
		  AND ($2::text = '' OR EXISTS (SELECT 1 FROM participants p WHERE p.group_id = groups.id AND p.wallet = $2))
		  AND ($3::text = '' OR organizer = $3
		       OR EXISTS (SELECT 1 FROM participants p WHERE p.group_id = groups.id AND p.wallet = $3))
		ORDER BY created_at DESC, id`

	rows, err := s.pool.Query(ctx, query, filter.Organizer, filter.Contributor, filter.Member)
	if err != nil {
		return nil, fmt.Errorf("postgres: list groups: %w", err)
	}
	defer rows.Close()

	var groups []*models.Group
	for rows.Next() {
		g, err := scanGroup(rows, "")
		if err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate groups: %w", err)
	}
	return groups, nil
}

// UpdateGroup locks the group row, runs fn on a copy, and commits the copy
// with its effects.
func (s *Store) UpdateGroup(ctx context.Context, groupID string, fn storage.MutateFunc) (*models.Group, *storage.Effects, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	current, err := scanGroup(tx.QueryRow(ctx, selectGroup+" FOR UPDATE", groupID), groupID)
	if err != nil {
		return nil, nil, err
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

	const update = `
		UPDATE groups SET collected_amount = $1::text::numeric, paid_participants = $2, status = $3,
		                  updated_at = $4, settled_at = $5
		WHERE id = $6`
	if _, err := tx.Exec(ctx, update,
		storage.FormatAmount(next.CollectedAmount), int16(next.PaidParticipants), next.Status.String(),
		next.UpdatedAt, next.SettledAt, groupID,
	); err != nil {
		return nil, nil, fmt.Errorf("postgres: update group %s: %w", groupID, err)
	}

	if r := effects.Receipt; r != nil {
		const insert = `
			INSERT INTO participants (id, group_id, seq, wallet, contributed_amount, created_at)
			VALUES ($1, $2, $3, $4, $5::text::numeric, $6)`
		if _, err := tx.Exec(ctx, insert,
			r.ID, r.GroupID, int16(next.PaidParticipants), r.Wallet, storage.FormatAmount(r.ContributedAmount), r.CreatedAt,
		); err != nil {
			return nil, nil, fmt.Errorf("postgres: insert participant: %w", err)
		}
	}

	if effects.Deposit > 0 {
		if err := adjustBalance(ctx, tx, next.EscrowSlot(), func(b uint64) (uint64, error) {
			return storage.Credit(b, effects.Deposit)
		}); err != nil {
			return nil, nil, err
		}
	}

	if t := effects.Transfer; t != nil {
		if err := adjustBalance(ctx, tx, t.From, func(b uint64) (uint64, error) {
			return storage.Debit(b, t.Amount)
		}); err != nil {
			return nil, nil, err
		}
		if err := adjustBalance(ctx, tx, t.To, func(b uint64) (uint64, error) {
			return storage.Credit(b, t.Amount)
		}); err != nil {
			return nil, nil, err
		}

		const insert = `
			INSERT INTO settlements (group_id, from_slot, to_slot, amount, created_at)
			VALUES ($1, $2, $3, $4::text::numeric, $5)`
		if _, err := tx.Exec(ctx, insert, t.GroupID, t.From, t.To, storage.FormatAmount(t.Amount), t.CreatedAt); err != nil {
			return nil, nil, fmt.Errorf("postgres: insert settlement: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("postgres: commit: %w", err)
	}
	return next, effects, nil
}

// ListParticipants returns the group's receipts in acceptance order.
func (s *Store) ListParticipants(ctx context.Context, groupID string) ([]*models.Participant, error) {
	const query = `
		SELECT id, group_id, wallet, contributed_amount::text, created_at
		FROM participants WHERE group_id = $1 ORDER BY seq`
	rows, err := s.pool.Query(ctx, query, groupID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list participants %s: %w", groupID, err)
	}
	defer rows.Close()

	var out []*models.Participant
	for rows.Next() {
		p := &models.Participant{}
		var amount string
		if err := rows.Scan(&p.ID, &p.GroupID, &p.Wallet, &amount, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan participant: %w", err)
		}
		if p.ContributedAmount, err = storage.ParseAmount(amount); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate participants: %w", err)
	}
	return out, nil
}

// GetSettlement returns the transfer recorded for a settled group.
func (s *Store) GetSettlement(ctx context.Context, groupID string) (*models.Transfer, error) {
	const query = `
		SELECT group_id, from_slot, to_slot, amount::text, created_at
		FROM settlements WHERE group_id = $1`
	t := &models.Transfer{}
	var amount string
	err := s.pool.QueryRow(ctx, query, groupID).Scan(&t.GroupID, &t.From, &t.To, &amount, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("settlement for group %s: %w", groupID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get settlement %s: %w", groupID, err)
	}
	if t.Amount, err = storage.ParseAmount(amount); err != nil {
		return nil, err
	}
	return t, nil
}

// GetBalance returns the balance held by slot. Unknown slots hold 0.
func (s *Store) GetBalance(ctx context.Context, slot string) (uint64, error) {
	var amount string
	err := s.pool.QueryRow(ctx, "SELECT amount::text FROM balances WHERE slot = $1", slot).Scan(&amount)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("postgres: get balance %s: %w", slot, err)
	}
	return storage.ParseAmount(amount)
}

// adjustBalance locks slot's row (creating it at zero first) and applies fn.
// Creating the row before locking it keeps two transactions crediting the
// same new slot from both reading zero.
func adjustBalance(ctx context.Context, q querier, slot string, fn func(uint64) (uint64, error)) error {
	if _, err := q.Exec(ctx,
		"INSERT INTO balances (slot, amount) VALUES ($1, 0) ON CONFLICT (slot) DO NOTHING",
		slot,
	); err != nil {
		return fmt.Errorf("postgres: init balance %s: %w", slot, err)
	}

	var amount string
	if err := q.QueryRow(ctx, "SELECT amount::text FROM balances WHERE slot = $1 FOR UPDATE", slot).Scan(&amount); err != nil {
		return fmt.Errorf("postgres: lock balance %s: %w", slot, err)
	}
	current, err := storage.ParseAmount(amount)
	if err != nil {
		return err
	}
	next, err := fn(current)
	if err != nil {
		return fmt.Errorf("slot %s: %w", slot, err)
	}

	if _, err := q.Exec(ctx,
		"UPDATE balances SET amount = $1::text::numeric WHERE slot = $2",
		storage.FormatAmount(next), slot,
	); err != nil {
		return fmt.Errorf("postgres: update balance %s: %w", slot, err)
	}
	return nil
}
