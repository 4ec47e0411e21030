// Package sqlite provides a SQLite-backed implementation of the storage.Store interface.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/mmynk/crowdpay/internal/models"
	"github.com/mmynk/crowdpay/internal/storage"
)

// Ensure SQLiteStore implements storage.Store
var _ storage.Store = (*SQLiteStore)(nil)

// SQLiteStore implements storage.Store using SQLite.
//
// The pool is limited to one connection and transactions begin IMMEDIATE,
// so every UpdateGroup is serialized behind the database write lock.
type SQLiteStore struct {
	db *sql.DB
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// New creates a new SQLiteStore with the given database path.
// It creates the parent directories and runs migrations automatically.
func New(dbPath string) (*SQLiteStore, error) {
	// Create parent directory if it doesn't exist
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_txlock=immediate", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Run migrations
	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateGroup persists a new group to the database.
func (s *SQLiteStore) CreateGroup(ctx context.Context, group *models.Group) error {
	// Generate ID if not set
	if group.ID == "" {
		group.ID = uuid.New().String()
	}
	if group.CreatedAt == 0 {
		group.CreatedAt = time.Now().Unix()
	}
	if group.UpdatedAt == 0 {
		group.UpdatedAt = group.CreatedAt
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO groups (id, name, organizer, total_amount, participant_count, collected_amount,
		 paid_participants, status, created_at, updated_at, settled_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		group.ID, group.Name, group.Organizer, storage.FormatAmount(group.TotalAmount), group.ParticipantCount,
		storage.FormatAmount(group.CollectedAmount), group.PaidParticipants, group.Status.String(),
		group.CreatedAt, group.UpdatedAt, group.SettledAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert group: %w", err)
	}

	return nil
}

// GetGroup retrieves a group by ID.
func (s *SQLiteStore) GetGroup(ctx context.Context, groupID string) (*models.Group, error) {
	return getGroup(ctx, s.db, groupID)
}

const selectGroup = `SELECT id, name, organizer, total_amount, participant_count, collected_amount,
 paid_participants, status, created_at, updated_at, settled_at FROM groups`

func getGroup(ctx context.Context, q querier, groupID string) (*models.Group, error) {
	group, err := scanGroup(q.QueryRowContext(ctx, selectGroup+` WHERE id = ?`, groupID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("group %s: %w", groupID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get group: %w", err)
	}
	return group, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanGroup(row rowScanner) (*models.Group, error) {
	group := &models.Group{}
	var total, collected, status string

	err := row.Scan(&group.ID, &group.Name, &group.Organizer, &total, &group.ParticipantCount, &collected,
		&group.PaidParticipants, &status, &group.CreatedAt, &group.UpdatedAt, &group.SettledAt)
	if err != nil {
		return nil, err
	}

	if group.TotalAmount, err = storage.ParseAmount(total); err != nil {
		return nil, err
	}
	if group.CollectedAmount, err = storage.ParseAmount(collected); err != nil {
		return nil, err
	}
	if group.Status, err = models.ParseGroupStatus(status); err != nil {
		return nil, err
	}

	return group, nil
}

// ListGroups returns the groups matching filter, newest first.
func (s *SQLiteStore) ListGroups(ctx context.Context, filter storage.GroupFilter) ([]*models.Group, error) {
	rows, err := s.db.QueryContext(ctx, selectGroup+`
		WHERE (?1 = '' OR organizer = ?1)
		  AND (?2 = '' OR EXISTS (SELECT 1 FROM participants p WHERE p.group_id = groups.id AND p.wallet = ?2))
		  AND (?3 = '' OR organizer = ?3
		       OR EXISTS (SELECT 1 FROM participants p WHERE p.group_id = groups.id AND p.wallet = ?3))
		ORDER BY created_at DESC, id`,
		filter.Organizer, filter.Contributor, filter.Member,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	defer rows.Close()

	var groups []*models.Group
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate groups: %w", err)
	}

	return groups, nil
}

// UpdateGroup runs fn against the current group inside one transaction and
// commits the mutated group together with its receipt, deposit, and
// transfer.
func (s *SQLiteStore) UpdateGroup(ctx context.Context, groupID string, fn storage.MutateFunc) (*models.Group, *storage.Effects, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	current, err := getGroup(ctx, tx, groupID)
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

	_, err = tx.ExecContext(ctx,
		`UPDATE groups SET collected_amount = ?, paid_participants = ?, status = ?,
		 updated_at = ?, settled_at = ? WHERE id = ?`,
		storage.FormatAmount(next.CollectedAmount), next.PaidParticipants, next.Status.String(),
		next.UpdatedAt, next.SettledAt, groupID,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to update group: %w", err)
	}

	if r := effects.Receipt; r != nil {
		if err := insertParticipant(ctx, tx, r, next.PaidParticipants); err != nil {
			return nil, nil, err
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
		if err := transfer(ctx, tx, t); err != nil {
			return nil, nil, err
		}
		if err := insertSettlement(ctx, tx, t); err != nil {
			return nil, nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return next, effects, nil
}
