package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mmynk/crowdpay/internal/models"
	"github.com/mmynk/crowdpay/internal/storage"
)

// insertSettlement records the transfer that settled a group. The primary
// key on group_id allows exactly one per group.
func insertSettlement(ctx context.Context, q querier, t *models.Transfer) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO settlements (group_id, from_slot, to_slot, amount, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		t.GroupID, t.From, t.To, storage.FormatAmount(t.Amount), t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert settlement: %w", err)
	}
	return nil
}

// GetSettlement retrieves the transfer recorded for a settled group.
func (s *SQLiteStore) GetSettlement(ctx context.Context, groupID string) (*models.Transfer, error) {
	t := &models.Transfer{}
	var amount string

	err := s.db.QueryRowContext(ctx,
		`SELECT group_id, from_slot, to_slot, amount, created_at
		 FROM settlements WHERE group_id = ?`,
		groupID,
	).Scan(&t.GroupID, &t.From, &t.To, &amount, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("settlement for group %s: %w", groupID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get settlement: %w", err)
	}

	if t.Amount, err = storage.ParseAmount(amount); err != nil {
		return nil, err
	}
	return t, nil
}
