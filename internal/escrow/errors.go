package escrow

import (
	"errors"

	"github.com/mmynk/crowdpay/internal/storage"
)

var (
	// ErrGroupNotActive is returned by Contribute when the group no longer
	// accepts contributions.
	ErrGroupNotActive = errors.New("group is not active")

	// ErrGroupNotCompleted is returned by SettlePayment when the group is
	// not waiting for settlement (still active, or already settled).
	ErrGroupNotCompleted = errors.New("group is not completed")

	// ErrArithmeticOverflow is returned when a counter would leave its
	// representable range.
	ErrArithmeticOverflow = errors.New("arithmetic overflow")

	// ErrInvalidArgument is returned for malformed operation parameters.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotOrganizer is returned when someone other than the organizer
	// attempts to settle.
	ErrNotOrganizer = errors.New("caller is not the group organizer")

	// ErrOverfunded is returned when RejectOverfunding is set and a
	// contribution would push the collected amount past the target.
	ErrOverfunded = errors.New("contribution exceeds funding target")
)

// Failure kinds. These are stable strings used as metric labels and as
// the error metadata value on the wire.
const (
	KindOK                = "ok"
	KindGroupNotActive    = "group_not_active"
	KindGroupNotCompleted = "group_not_completed"
	KindOverflow          = "arithmetic_overflow"
	KindInvalidArgument   = "invalid_argument"
	KindNotOrganizer      = "not_organizer"
	KindOverfunded        = "overfunded"
	KindNotFound          = "not_found"
	KindInsufficientFunds = "insufficient_funds"
	KindStorageFailure    = "storage_failure"
)

// Kind classifies err into one of the failure kinds.
// Anything that is not a known precondition failure is a storage failure.
func Kind(err error) string {
	switch {
	case err == nil:
		return KindOK
	case errors.Is(err, ErrGroupNotActive):
		return KindGroupNotActive
	case errors.Is(err, ErrGroupNotCompleted):
		return KindGroupNotCompleted
	case errors.Is(err, ErrArithmeticOverflow), errors.Is(err, storage.ErrBalanceOverflow):
		return KindOverflow
	case errors.Is(err, ErrInvalidArgument):
		return KindInvalidArgument
	case errors.Is(err, ErrNotOrganizer):
		return KindNotOrganizer
	case errors.Is(err, ErrOverfunded):
		return KindOverfunded
	case errors.Is(err, storage.ErrNotFound):
		return KindNotFound
	case errors.Is(err, storage.ErrInsufficientFunds):
		return KindInsufficientFunds
	default:
		return KindStorageFailure
	}
}
