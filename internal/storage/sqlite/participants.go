package sqlite

import (
	"context"
	"fmt"

	"github.com/mmynk/crowdpay/internal/models"
	"github.com/mmynk/crowdpay/internal/storage"
)

// insertParticipant writes a receipt at position seq within its group.
// The (group_id, seq) uniqueness constraint rejects a receipt racing for an
// already used position.
func insertParticipant(ctx context.Context, q querier, p *models.Participant, seq uint8) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO participants (id, group_id, seq, wallet, contributed_amount, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.GroupID, seq, p.Wallet, storage.FormatAmount(p.ContributedAmount), p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert participant: %w", err)
	}
	return nil
}

// ListParticipants retrieves all receipts for a group in acceptance order.
func (s *SQLiteStore) ListParticipants(ctx context.Context, groupID string) ([]*models.Participant, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, group_id, wallet, contributed_amount, created_at
		 FROM participants WHERE group_id = ? ORDER BY seq`,
		groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}
	defer rows.Close()

	var participants []*models.Participant
	for rows.Next() {
		p := &models.Participant{}
		var amount string
		if err := rows.Scan(&p.ID, &p.GroupID, &p.Wallet, &amount, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		if p.ContributedAmount, err = storage.ParseAmount(amount); err != nil {
			return nil, err
		}
		participants = append(participants, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate participants: %w", err)
	}

	return participants, nil
}
