package escrow

import "fmt"

// PayoutPolicy selects how much a settlement pays out.
type PayoutPolicy string

const (
	// PayoutTarget pays the group's declared TotalAmount.
	PayoutTarget PayoutPolicy = "target"

	// PayoutCollected pays what was actually collected.
	PayoutCollected PayoutPolicy = "collected"
)

// ParsePayoutPolicy validates a policy name. The empty string selects
// PayoutTarget.
func ParsePayoutPolicy(s string) (PayoutPolicy, error) {
	switch PayoutPolicy(s) {
	case "", PayoutTarget:
		return PayoutTarget, nil
	case PayoutCollected:
		return PayoutCollected, nil
	default:
		return "", fmt.Errorf("%w: unknown payout policy %q", ErrInvalidArgument, s)
	}
}

// Policy holds the settlement and contribution rules that are deployment
// choices rather than state machine rules.
type Policy struct {
	Payout PayoutPolicy

	// RejectOverfunding refuses contributions that would push the
	// collected amount past TotalAmount.
	RejectOverfunding bool
}

// DefaultPolicy pays the declared target and permits over-collection.
func DefaultPolicy() Policy {
	return Policy{Payout: PayoutTarget}
}

// payout returns the settlement amount for g under p.
func (p Policy) payout(collected, target uint64) uint64 {
	if p.Payout == PayoutCollected {
		return collected
	}
	return target
}
