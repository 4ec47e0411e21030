package escrow

import (
	"fmt"

	"github.com/mmynk/crowdpay/internal/models"
)

// NewReceipt builds the immutable participant record for one contribution.
// The store assigns the handle and timestamp when it commits the receipt.
func NewReceipt(groupID, wallet string, amount uint64) (*models.Participant, error) {
	if wallet == "" {
		return nil, fmt.Errorf("%w: contributor identity required", ErrInvalidArgument)
	}
	if amount == 0 {
		return nil, fmt.Errorf("%w: contribution amount must be positive", ErrInvalidArgument)
	}
	return &models.Participant{
		GroupID:           groupID,
		Wallet:            wallet,
		ContributedAmount: amount,
	}, nil
}
