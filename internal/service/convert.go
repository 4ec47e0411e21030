package service

import (
	"github.com/mmynk/crowdpay/internal/models"
	pb "github.com/mmynk/crowdpay/pkg/escrowv1"
)

func toPBGroup(g *models.Group) *pb.Group {
	return &pb.Group{
		Id:               g.ID,
		Name:             g.Name,
		Organizer:        g.Organizer,
		TotalAmount:      g.TotalAmount,
		ParticipantCount: uint32(g.ParticipantCount),
		SuggestedShare:   g.SuggestedShare(),
		CollectedAmount:  g.CollectedAmount,
		PaidParticipants: uint32(g.PaidParticipants),
		Status:           g.Status.String(),
		CreatedAt:        g.CreatedAt,
		UpdatedAt:        g.UpdatedAt,
		SettledAt:        g.SettledAt,
	}
}

func toPBParticipant(p *models.Participant) *pb.Participant {
	return &pb.Participant{
		Id:                p.ID,
		GroupId:           p.GroupID,
		Wallet:            p.Wallet,
		ContributedAmount: p.ContributedAmount,
		CreatedAt:         p.CreatedAt,
	}
}

func toPBTransfer(t *models.Transfer) *pb.Transfer {
	return &pb.Transfer{
		GroupId:   t.GroupID,
		From:      t.From,
		To:        t.To,
		Amount:    t.Amount,
		CreatedAt: t.CreatedAt,
	}
}
