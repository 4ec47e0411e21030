package escrowv1

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"connectrpc.com/connect"
)

// EscrowServiceName is the fully-qualified name of the EscrowService service.
const EscrowServiceName = "crowdpay.escrow.v1.EscrowService"

// Procedure paths for each EscrowService RPC.
const (
	EscrowServiceCreateGroupProcedure      = "/crowdpay.escrow.v1.EscrowService/CreateGroup"
	EscrowServiceContributeProcedure       = "/crowdpay.escrow.v1.EscrowService/Contribute"
	EscrowServiceSettlePaymentProcedure    = "/crowdpay.escrow.v1.EscrowService/SettlePayment"
	EscrowServiceGetGroupProcedure         = "/crowdpay.escrow.v1.EscrowService/GetGroup"
	EscrowServiceListParticipantsProcedure = "/crowdpay.escrow.v1.EscrowService/ListParticipants"
	EscrowServiceListGroupsProcedure       = "/crowdpay.escrow.v1.EscrowService/ListGroups"
	EscrowServiceGetBalanceProcedure       = "/crowdpay.escrow.v1.EscrowService/GetBalance"
)

const (
	// ErrorKindKey is the error metadata key carrying the failure kind,
	// e.g. "group_not_active".
	ErrorKindKey = "Crowdpay-Error"

	// IdempotencyKeyHeader lets a client retry Contribute safely.
	IdempotencyKeyHeader = "Idempotency-Key"

	// ReplayedHeader is set to "true" on a Contribute response that was
	// served from an earlier call with the same idempotency key.
	ReplayedHeader = "Idempotency-Replayed"
)

// ErrorKind returns the failure kind attached to a Connect error, or ""
// when there is none.
func ErrorKind(err error) string {
	var ce *connect.Error
	if errors.As(err, &ce) {
		return ce.Meta().Get(ErrorKindKey)
	}
	return ""
}

// EscrowServiceHandler is implemented by the server.
type EscrowServiceHandler interface {
	CreateGroup(context.Context, *connect.Request[CreateGroupRequest]) (*connect.Response[CreateGroupResponse], error)
	Contribute(context.Context, *connect.Request[ContributeRequest]) (*connect.Response[ContributeResponse], error)
	SettlePayment(context.Context, *connect.Request[SettlePaymentRequest]) (*connect.Response[SettlePaymentResponse], error)
	GetGroup(context.Context, *connect.Request[GetGroupRequest]) (*connect.Response[GetGroupResponse], error)
	ListParticipants(context.Context, *connect.Request[ListParticipantsRequest]) (*connect.Response[ListParticipantsResponse], error)
	ListGroups(context.Context, *connect.Request[ListGroupsRequest]) (*connect.Response[ListGroupsResponse], error)
	GetBalance(context.Context, *connect.Request[GetBalanceRequest]) (*connect.Response[GetBalanceResponse], error)
}

// NewEscrowServiceHandler builds an HTTP handler from the service
// implementation. It returns the path on which to mount the handler and
// the handler itself.
func NewEscrowServiceHandler(svc EscrowServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{WithCodec()}, opts...)
	readOpts := append([]connect.HandlerOption{connect.WithIdempotency(connect.IdempotencyNoSideEffects)}, opts...)

	createGroup := connect.NewUnaryHandler(EscrowServiceCreateGroupProcedure, svc.CreateGroup, opts...)
	contribute := connect.NewUnaryHandler(EscrowServiceContributeProcedure, svc.Contribute, opts...)
	settlePayment := connect.NewUnaryHandler(EscrowServiceSettlePaymentProcedure, svc.SettlePayment, opts...)
	getGroup := connect.NewUnaryHandler(EscrowServiceGetGroupProcedure, svc.GetGroup, readOpts...)
	listParticipants := connect.NewUnaryHandler(EscrowServiceListParticipantsProcedure, svc.ListParticipants, readOpts...)
	listGroups := connect.NewUnaryHandler(EscrowServiceListGroupsProcedure, svc.ListGroups, readOpts...)
	getBalance := connect.NewUnaryHandler(EscrowServiceGetBalanceProcedure, svc.GetBalance, readOpts...)

	return "/" + EscrowServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case EscrowServiceCreateGroupProcedure:
			createGroup.ServeHTTP(w, r)
		case EscrowServiceContributeProcedure:
			contribute.ServeHTTP(w, r)
		case EscrowServiceSettlePaymentProcedure:
			settlePayment.ServeHTTP(w, r)
		case EscrowServiceGetGroupProcedure:
			getGroup.ServeHTTP(w, r)
		case EscrowServiceListParticipantsProcedure:
			listParticipants.ServeHTTP(w, r)
		case EscrowServiceListGroupsProcedure:
			listGroups.ServeHTTP(w, r)
		case EscrowServiceGetBalanceProcedure:
			getBalance.ServeHTTP(w, r)
		default:
			http.NotFound(w, r)
		}
	})
}

// EscrowServiceClient is a client for EscrowService.
type EscrowServiceClient struct {
	createGroup      *connect.Client[CreateGroupRequest, CreateGroupResponse]
	contribute       *connect.Client[ContributeRequest, ContributeResponse]
	settlePayment    *connect.Client[SettlePaymentRequest, SettlePaymentResponse]
	getGroup         *connect.Client[GetGroupRequest, GetGroupResponse]
	listParticipants *connect.Client[ListParticipantsRequest, ListParticipantsResponse]
	listGroups       *connect.Client[ListGroupsRequest, ListGroupsResponse]
	getBalance       *connect.Client[GetBalanceRequest, GetBalanceResponse]
}

// NewEscrowServiceClient constructs a client for the service at baseURL,
// e.g. "http://localhost:8080".
func NewEscrowServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *EscrowServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{WithCodec()}, opts...)

	return &EscrowServiceClient{
		createGroup:      connect.NewClient[CreateGroupRequest, CreateGroupResponse](httpClient, baseURL+EscrowServiceCreateGroupProcedure, opts...),
		contribute:       connect.NewClient[ContributeRequest, ContributeResponse](httpClient, baseURL+EscrowServiceContributeProcedure, opts...),
		settlePayment:    connect.NewClient[SettlePaymentRequest, SettlePaymentResponse](httpClient, baseURL+EscrowServiceSettlePaymentProcedure, opts...),
		getGroup:         connect.NewClient[GetGroupRequest, GetGroupResponse](httpClient, baseURL+EscrowServiceGetGroupProcedure, opts...),
		listParticipants: connect.NewClient[ListParticipantsRequest, ListParticipantsResponse](httpClient, baseURL+EscrowServiceListParticipantsProcedure, opts...),
		listGroups:       connect.NewClient[ListGroupsRequest, ListGroupsResponse](httpClient, baseURL+EscrowServiceListGroupsProcedure, opts...),
		getBalance:       connect.NewClient[GetBalanceRequest, GetBalanceResponse](httpClient, baseURL+EscrowServiceGetBalanceProcedure, opts...),
	}
}

// CreateGroup calls crowdpay.escrow.v1.EscrowService.CreateGroup.
func (c *EscrowServiceClient) CreateGroup(ctx context.Context, req *connect.Request[CreateGroupRequest]) (*connect.Response[CreateGroupResponse], error) {
	return c.createGroup.CallUnary(ctx, req)
}

// Contribute calls crowdpay.escrow.v1.EscrowService.Contribute.
func (c *EscrowServiceClient) Contribute(ctx context.Context, req *connect.Request[ContributeRequest]) (*connect.Response[ContributeResponse], error) {
	return c.contribute.CallUnary(ctx, req)
}

// SettlePayment calls crowdpay.escrow.v1.EscrowService.SettlePayment.
func (c *EscrowServiceClient) SettlePayment(ctx context.Context, req *connect.Request[SettlePaymentRequest]) (*connect.Response[SettlePaymentResponse], error) {
	return c.settlePayment.CallUnary(ctx, req)
}

// GetGroup calls crowdpay.escrow.v1.EscrowService.GetGroup.
func (c *EscrowServiceClient) GetGroup(ctx context.Context, req *connect.Request[GetGroupRequest]) (*connect.Response[GetGroupResponse], error) {
	return c.getGroup.CallUnary(ctx, req)
}

// ListParticipants calls crowdpay.escrow.v1.EscrowService.ListParticipants.
func (c *EscrowServiceClient) ListParticipants(ctx context.Context, req *connect.Request[ListParticipantsRequest]) (*connect.Response[ListParticipantsResponse], error) {
	return c.listParticipants.CallUnary(ctx, req)
}

// ListGroups calls crowdpay.escrow.v1.EscrowService.ListGroups.
func (c *EscrowServiceClient) ListGroups(ctx context.Context, req *connect.Request[ListGroupsRequest]) (*connect.Response[ListGroupsResponse], error) {
	return c.listGroups.CallUnary(ctx, req)
}

// GetBalance calls crowdpay.escrow.v1.EscrowService.GetBalance.
func (c *EscrowServiceClient) GetBalance(ctx context.Context, req *connect.Request[GetBalanceRequest]) (*connect.Response[GetBalanceResponse], error) {
	return c.getBalance.CallUnary(ctx, req)
}
