package storage

import (
	"errors"
	"fmt"
	"math/bits"
	"strconv"

	"github.com/google/uuid"
)

// ErrBalanceOverflow is returned when a credit would push a balance slot
// past the uint64 range.
var ErrBalanceOverflow = errors.New("balance overflow")

// Stamp fills the store-assigned fields of the effects for groupID at the
// given Unix time.
func (e *Effects) Stamp(groupID string, now int64) {
	if e == nil {
		return
	}
	if r := e.Receipt; r != nil {
		if r.ID == "" {
			r.ID = uuid.New().String()
		}
		r.GroupID = groupID
		if r.CreatedAt == 0 {
			r.CreatedAt = now
		}
	}
	if t := e.Transfer; t != nil {
		t.GroupID = groupID
		if t.CreatedAt == 0 {
			t.CreatedAt = now
		}
	}
}

// Credit adds amount to balance.
func Credit(balance, amount uint64) (uint64, error) {
	sum, carry := bits.Add64(balance, amount, 0)
	if carry != 0 {
		return 0, ErrBalanceOverflow
	}
	return sum, nil
}

// Debit subtracts amount from balance.
func Debit(balance, amount uint64) (uint64, error) {
	if amount > balance {
		return 0, fmt.Errorf("%w: have %d, need %d", ErrInsufficientFunds, balance, amount)
	}
	return balance - amount, nil
}

// FormatAmount renders an amount for SQL backends. Amounts are kept as
// decimal text because database/sql rejects uint64 values with the high
// bit set.
func FormatAmount(v uint64) string {
	return strconv.FormatUint(v, 10)
}

// ParseAmount is the inverse of FormatAmount.
func ParseAmount(s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse amount %q: %w", s, err)
	}
	return v, nil
}
