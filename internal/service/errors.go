package service

import (
	"errors"

	"connectrpc.com/connect"

	"github.com/mmynk/crowdpay/internal/escrow"
	"github.com/mmynk/crowdpay/internal/idempotency"
	pb "github.com/mmynk/crowdpay/pkg/escrowv1"
)

const (
	// kindInProgress is reported when a Contribute retry arrives while the
	// original call still holds its idempotency key.
	kindInProgress = "idempotency_in_progress"

	// kindKeyReused is reported when an idempotency key comes back with a
	// different amount than the call it completed.
	kindKeyReused = "idempotency_key_reused"
)

var errStorageFailure = errors.New("storage failure")

var kindCodes = map[string]connect.Code{
	escrow.KindGroupNotActive:    connect.CodeFailedPrecondition,
	escrow.KindGroupNotCompleted: connect.CodeFailedPrecondition,
	escrow.KindOverflow:          connect.CodeOutOfRange,
	escrow.KindInvalidArgument:   connect.CodeInvalidArgument,
	escrow.KindNotOrganizer:      connect.CodePermissionDenied,
	escrow.KindOverfunded:        connect.CodeFailedPrecondition,
	escrow.KindNotFound:          connect.CodeNotFound,
	escrow.KindInsufficientFunds: connect.CodeFailedPrecondition,
}

// toConnectError maps an operation error onto a Connect code and attaches
// its kind as error metadata. Storage failures are reported without their
// underlying message.
func toConnectError(err error) *connect.Error {
	switch {
	case errors.Is(err, idempotency.ErrInProgress):
		ce := connect.NewError(connect.CodeAborted, err)
		ce.Meta().Set(pb.ErrorKindKey, kindInProgress)
		return ce
	case errors.Is(err, idempotency.ErrKeyReused):
		ce := connect.NewError(connect.CodeInvalidArgument, err)
		ce.Meta().Set(pb.ErrorKindKey, kindKeyReused)
		return ce
	}

	kind := escrow.Kind(err)
	code, ok := kindCodes[kind]
	if !ok {
		code = connect.CodeInternal
		err = errStorageFailure
	}

	ce := connect.NewError(code, err)
	ce.Meta().Set(pb.ErrorKindKey, kind)
	return ce
}
