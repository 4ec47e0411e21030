// Package service exposes the escrow operations over Connect RPC.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"

	"connectrpc.com/connect"

	"github.com/mmynk/crowdpay/internal/escrow"
	"github.com/mmynk/crowdpay/internal/idempotency"
	"github.com/mmynk/crowdpay/internal/middleware"
	"github.com/mmynk/crowdpay/internal/models"
	"github.com/mmynk/crowdpay/internal/record"
	"github.com/mmynk/crowdpay/internal/storage"
	pb "github.com/mmynk/crowdpay/pkg/escrowv1"
)

// maxIdempotencyKeyLen bounds the client-chosen Idempotency-Key header.
const maxIdempotencyKeyLen = 128

var errUnauthenticated = errors.New("caller identity required")

// Compile-time interface check.
var _ pb.EscrowServiceHandler = (*EscrowService)(nil)

// EscrowService implements the Connect EscrowService.
type EscrowService struct {
	ops   *escrow.Operations
	guard *idempotency.Guard
}

// NewEscrowService creates an EscrowService. guard may be nil, in which
// case Idempotency-Key headers are ignored.
func NewEscrowService(ops *escrow.Operations, guard *idempotency.Guard) *EscrowService {
	return &EscrowService{ops: ops, guard: guard}
}

func callerFrom(ctx context.Context) (string, error) {
	caller := middleware.GetIdentity(ctx)
	if caller == "" {
		return "", connect.NewError(connect.CodeUnauthenticated, errUnauthenticated)
	}
	return caller, nil
}

// CreateGroup opens a group with the caller as organizer.
func (s *EscrowService) CreateGroup(ctx context.Context, req *connect.Request[pb.CreateGroupRequest]) (*connect.Response[pb.CreateGroupResponse], error) {
	caller, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	slog.Info("CreateGroup request received",
		"organizer", caller,
		"name", req.Msg.Name,
		"total_amount", req.Msg.TotalAmount,
		"participant_count", req.Msg.ParticipantCount,
	)

	count := req.Msg.ParticipantCount
	if count > math.MaxUint8 {
		return nil, toConnectError(fmt.Errorf("%w: participant count %d exceeds %d",
			escrow.ErrInvalidArgument, count, math.MaxUint8))
	}

	group, err := s.ops.CreateGroup(ctx, caller, req.Msg.Name, req.Msg.TotalAmount, int(count))
	if err != nil {
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&pb.CreateGroupResponse{Group: toPBGroup(group)}), nil
}

// Contribute records the caller's contribution. When the request carries an
// Idempotency-Key, a retry with the same key returns the original receipt.
func (s *EscrowService) Contribute(ctx context.Context, req *connect.Request[pb.ContributeRequest]) (*connect.Response[pb.ContributeResponse], error) {
	caller, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	key := req.Header().Get(pb.IdempotencyKeyHeader)
	slog.Info("Contribute request received",
		"group_id", req.Msg.GroupId,
		"contributor", caller,
		"amount", req.Msg.Amount,
		"idempotency_key", key,
	)

	if key == "" || s.guard == nil {
		receipt, err := s.ops.Contribute(ctx, req.Msg.GroupId, caller, req.Msg.Amount)
		if err != nil {
			return nil, toConnectError(err)
		}
		return connect.NewResponse(&pb.ContributeResponse{Participant: toPBParticipant(receipt)}), nil
	}

	if len(key) > maxIdempotencyKeyLen {
		return nil, toConnectError(fmt.Errorf("%w: idempotency key longer than %d bytes",
			escrow.ErrInvalidArgument, maxIdempotencyKeyLen))
	}

	// The key is scoped to the caller and group; the amount is the request
	// a replay must match.
	scoped := idempotency.Key(caller, req.Msg.GroupId, key)
	request := strconv.AppendUint(nil, req.Msg.Amount, 10)
	data, replayed, err := s.guard.Do(ctx, scoped, request, func(ctx context.Context) ([]byte, error) {
		receipt, err := s.ops.Contribute(ctx, req.Msg.GroupId, caller, req.Msg.Amount)
		if err != nil {
			return nil, err
		}
		return record.MarshalParticipant(receipt), nil
	})
	if err != nil {
		return nil, toConnectError(err)
	}

	receipt, err := record.UnmarshalParticipant(data)
	if err != nil {
		slog.Error("Failed to decode stored receipt", "key", scoped, "error", err)
		return nil, toConnectError(err)
	}

	resp := connect.NewResponse(&pb.ContributeResponse{Participant: toPBParticipant(receipt)})
	if replayed {
		slog.Info("Contribute replayed", "group_id", receipt.GroupID, "receipt_id", receipt.ID)
		resp.Header().Set(pb.ReplayedHeader, "true")
	}
	return resp, nil
}

// SettlePayment pays a completed group out to its organizer, who must be
// the caller.
func (s *EscrowService) SettlePayment(ctx context.Context, req *connect.Request[pb.SettlePaymentRequest]) (*connect.Response[pb.SettlePaymentResponse], error) {
	caller, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	slog.Info("SettlePayment request received", "group_id", req.Msg.GroupId, "caller", caller)

	transfer, err := s.ops.SettlePayment(ctx, req.Msg.GroupId, caller)
	if err != nil {
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&pb.SettlePaymentResponse{Transfer: toPBTransfer(transfer)}), nil
}

// GetGroup returns a group and, once it has settled, its transfer.
func (s *EscrowService) GetGroup(ctx context.Context, req *connect.Request[pb.GetGroupRequest]) (*connect.Response[pb.GetGroupResponse], error) {
	group, err := s.ops.GetGroup(ctx, req.Msg.GroupId)
	if err != nil {
		return nil, toConnectError(err)
	}

	resp := &pb.GetGroupResponse{Group: toPBGroup(group)}
	if group.Status == models.GroupSettled {
		transfer, err := s.ops.GetSettlement(ctx, group.ID)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return nil, toConnectError(err)
		}
		if transfer != nil {
			resp.Transfer = toPBTransfer(transfer)
		}
	}

	return connect.NewResponse(resp), nil
}

// ListParticipants returns a group's receipts in acceptance order.
func (s *EscrowService) ListParticipants(ctx context.Context, req *connect.Request[pb.ListParticipantsRequest]) (*connect.Response[pb.ListParticipantsResponse], error) {
	participants, err := s.ops.ListParticipants(ctx, req.Msg.GroupId)
	if err != nil {
		return nil, toConnectError(err)
	}

	out := make([]*pb.Participant, len(participants))
	for i, p := range participants {
		out[i] = toPBParticipant(p)
	}
	return connect.NewResponse(&pb.ListParticipantsResponse{Participants: out}), nil
}

// ListGroups returns groups filtered by organizer and contributor,
// defaulting to the caller's own groups.
func (s *EscrowService) ListGroups(ctx context.Context, req *connect.Request[pb.ListGroupsRequest]) (*connect.Response[pb.ListGroupsResponse], error) {
	filter := storage.GroupFilter{
		Organizer:   req.Msg.Organizer,
		Contributor: req.Msg.Contributor,
	}
	if filter.Organizer == "" && filter.Contributor == "" {
		caller, err := callerFrom(ctx)
		if err != nil {
			return nil, err
		}
		filter.Member = caller
	}

	groups, err := s.ops.ListGroups(ctx, filter)
	if err != nil {
		return nil, toConnectError(err)
	}

	out := make([]*pb.Group, len(groups))
	for i, g := range groups {
		out[i] = toPBGroup(g)
	}
	return connect.NewResponse(&pb.ListGroupsResponse{Groups: out}), nil
}

// GetBalance returns the caller's wallet balance, or the escrow balance of
// a group when one is named. Other wallets are not readable.
func (s *EscrowService) GetBalance(ctx context.Context, req *connect.Request[pb.GetBalanceRequest]) (*connect.Response[pb.GetBalanceResponse], error) {
	var slot string
	if req.Msg.GroupId != "" {
		group, err := s.ops.GetGroup(ctx, req.Msg.GroupId)
		if err != nil {
			return nil, toConnectError(err)
		}
		slot = group.EscrowSlot()
	} else {
		caller, err := callerFrom(ctx)
		if err != nil {
			return nil, err
		}
		slot = models.WalletSlot(caller)
	}

	amount, err := s.ops.GetBalance(ctx, slot)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&pb.GetBalanceResponse{Slot: slot, Amount: amount}), nil
}
