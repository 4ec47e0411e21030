// Package escrowv1 defines the crowdpay.escrow.v1 wire messages and the
// Connect handler and client for EscrowService.
//
// Messages are plain structs carried by a JSON codec. 64-bit amounts are
// encoded as decimal strings so JavaScript clients do not lose precision.
package escrowv1

// Group is the wire form of an escrow pool.
//
// SuggestedShare is TotalAmount divided evenly across ParticipantCount,
// rounded down. Clients use it as the default contribution.
type Group struct {
	Id               string `json:"id"`
	Name             string `json:"name,omitempty"`
	Organizer        string `json:"organizer"`
	TotalAmount      uint64 `json:"totalAmount,string"`
	ParticipantCount uint32 `json:"participantCount"`
	SuggestedShare   uint64 `json:"suggestedShare,string"`
	CollectedAmount  uint64 `json:"collectedAmount,string"`
	PaidParticipants uint32 `json:"paidParticipants"`
	Status           string `json:"status"`
	CreatedAt        int64  `json:"createdAt"`
	UpdatedAt        int64  `json:"updatedAt"`
	SettledAt        int64  `json:"settledAt,omitempty"`
}

// Participant is the wire form of a contribution receipt.
type Participant struct {
	Id                string `json:"id"`
	GroupId           string `json:"groupId"`
	Wallet            string `json:"wallet"`
	ContributedAmount uint64 `json:"contributedAmount,string"`
	CreatedAt         int64  `json:"createdAt"`
}

// Transfer is the wire form of a settlement payout.
type Transfer struct {
	GroupId   string `json:"groupId"`
	From      string `json:"from"`
	To        string `json:"to"`
	Amount    uint64 `json:"amount,string"`
	CreatedAt int64  `json:"createdAt"`
}

// CreateGroupRequest opens a new group owned by the caller.
type CreateGroupRequest struct {
	Name             string `json:"name,omitempty"`
	TotalAmount      uint64 `json:"totalAmount,string"`
	ParticipantCount uint32 `json:"participantCount"`
}

type CreateGroupResponse struct {
	Group *Group `json:"group"`
}

// ContributeRequest pays Amount into the group on behalf of the caller.
type ContributeRequest struct {
	GroupId string `json:"groupId"`
	Amount  uint64 `json:"amount,string"`
}

type ContributeResponse struct {
	Participant *Participant `json:"participant"`
}

// SettlePaymentRequest releases a completed group to its organizer.
type SettlePaymentRequest struct {
	GroupId string `json:"groupId"`
}

type SettlePaymentResponse struct {
	Transfer *Transfer `json:"transfer"`
}

type GetGroupRequest struct {
	GroupId string `json:"groupId"`
}

// GetGroupResponse carries the group and, once settled, its transfer.
type GetGroupResponse struct {
	Group    *Group    `json:"group"`
	Transfer *Transfer `json:"transfer,omitempty"`
}

type ListParticipantsRequest struct {
	GroupId string `json:"groupId"`
}

type ListParticipantsResponse struct {
	Participants []*Participant `json:"participants"`
}

// ListGroupsRequest filters groups by organizer and contributor identity.
// Set fields must all match. With no field set the caller's own groups are
// returned: those they organize or have contributed to.
type ListGroupsRequest struct {
	Organizer   string `json:"organizer,omitempty"`
	Contributor string `json:"contributor,omitempty"`
}

type ListGroupsResponse struct {
	Groups []*Group `json:"groups"`
}

// GetBalanceRequest selects a balance: the escrow of GroupId, or the
// caller's own wallet when GroupId is empty.
type GetBalanceRequest struct {
	GroupId string `json:"groupId,omitempty"`
}

type GetBalanceResponse struct {
	Slot   string `json:"slot"`
	Amount uint64 `json:"amount,string"`
}
