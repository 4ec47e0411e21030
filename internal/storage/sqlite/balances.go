package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mmynk/crowdpay/internal/models"
	"github.com/mmynk/crowdpay/internal/storage"
)

// GetBalance returns the balance held by slot. Unknown slots hold 0.
func (s *SQLiteStore) GetBalance(ctx context.Context, slot string) (uint64, error) {
	return getBalance(ctx, s.db, slot)
}

func getBalance(ctx context.Context, q querier, slot string) (uint64, error) {
	var amount string
	err := q.QueryRowContext(ctx, "SELECT amount FROM balances WHERE slot = ?", slot).Scan(&amount)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get balance: %w", err)
	}
	return storage.ParseAmount(amount)
}

// adjustBalance applies fn to the slot's balance within q's transaction.
func adjustBalance(ctx context.Context, q querier, slot string, fn func(uint64) (uint64, error)) error {
	current, err := getBalance(ctx, q, slot)
	if err != nil {
		return err
	}
	next, err := fn(current)
	if err != nil {
		return fmt.Errorf("slot %s: %w", slot, err)
	}

	_, err = q.ExecContext(ctx,
		`INSERT INTO balances (slot, amount) VALUES (?, ?)
		 ON CONFLICT (slot) DO UPDATE SET amount = excluded.amount`,
		slot, storage.FormatAmount(next),
	)
	if err != nil {
		return fmt.Errorf("failed to write balance: %w", err)
	}
	return nil
}

// transfer moves t.Amount from t.From to t.To.
func transfer(ctx context.Context, q querier, t *models.Transfer) error {
	if err := adjustBalance(ctx, q, t.From, func(b uint64) (uint64, error) {
		return storage.Debit(b, t.Amount)
	}); err != nil {
		return err
	}
	return adjustBalance(ctx, q, t.To, func(b uint64) (uint64, error) {
		return storage.Credit(b, t.Amount)
	})
}
