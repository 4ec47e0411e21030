// Package record encodes escrow entities as compact protobuf-wire records.
//
// Field numbers start at 1 and follow the order fields were introduced, so a
// field added later takes the next free number. Unknown fields are skipped
// on decode so records written by newer versions stay readable.
package record

import (
	"errors"
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/mmynk/crowdpay/internal/archive"
	"github.com/mmynk/crowdpay/internal/models"
)

var errWireType = errors.New("record: unexpected wire type")

// MarshalGroup encodes g.
func MarshalGroup(g *models.Group) []byte {
	var b []byte
	b = appendString(b, 1, g.ID)
	b = appendString(b, 2, g.Organizer)
	b = appendVarint(b, 3, g.TotalAmount)
	b = appendVarint(b, 4, uint64(g.ParticipantCount))
	b = appendVarint(b, 5, g.CollectedAmount)
	b = appendVarint(b, 6, uint64(g.PaidParticipants))
	b = appendVarint(b, 7, uint64(g.Status))
	b = appendVarint(b, 8, uint64(g.CreatedAt))
	b = appendVarint(b, 9, uint64(g.UpdatedAt))
	b = appendVarint(b, 10, uint64(g.SettledAt))
	if g.Name != "" {
		b = appendString(b, 11, g.Name)
	}
	return b
}

// UnmarshalGroup decodes a record produced by MarshalGroup.
func UnmarshalGroup(b []byte) (*models.Group, error) {
	g := &models.Group{}
	var count, paid, status, created, updated, settled uint64
	err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return str(typ, b, &g.ID)
		case 2:
			return str(typ, b, &g.Organizer)
		case 3:
			return varint(typ, b, &g.TotalAmount)
		case 4:
			return varint(typ, b, &count)
		case 5:
			return varint(typ, b, &g.CollectedAmount)
		case 6:
			return varint(typ, b, &paid)
		case 7:
			return varint(typ, b, &status)
		case 8:
			return varint(typ, b, &created)
		case 9:
			return varint(typ, b, &updated)
		case 10:
			return varint(typ, b, &settled)
		case 11:
			return str(typ, b, &g.Name)
		}
		return 0, nil
	})
	if err != nil {
		return nil, fmt.Errorf("decode group: %w", err)
	}
	if count > math.MaxUint8 || paid > math.MaxUint8 || status > uint64(models.GroupSettled) {
		return nil, fmt.Errorf("decode group: field out of range")
	}

	g.ParticipantCount = uint8(count)
	g.PaidParticipants = uint8(paid)
	g.Status = models.GroupStatus(status)
	g.CreatedAt = int64(created)
	g.UpdatedAt = int64(updated)
	g.SettledAt = int64(settled)
	return g, nil
}

// MarshalParticipant encodes p.
func MarshalParticipant(p *models.Participant) []byte {
	var b []byte
	b = appendString(b, 1, p.ID)
	b = appendString(b, 2, p.GroupID)
	b = appendString(b, 3, p.Wallet)
	b = appendVarint(b, 4, p.ContributedAmount)
	b = appendVarint(b, 5, uint64(p.CreatedAt))
	return b
}

// UnmarshalParticipant decodes a record produced by MarshalParticipant.
func UnmarshalParticipant(b []byte) (*models.Participant, error) {
	p := &models.Participant{}
	var created uint64
	err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return str(typ, b, &p.ID)
		case 2:
			return str(typ, b, &p.GroupID)
		case 3:
			return str(typ, b, &p.Wallet)
		case 4:
			return varint(typ, b, &p.ContributedAmount)
		case 5:
			return varint(typ, b, &created)
		}
		return 0, nil
	})
	if err != nil {
		return nil, fmt.Errorf("decode participant: %w", err)
	}
	p.CreatedAt = int64(created)
	return p, nil
}

// MarshalTransfer encodes t.
func MarshalTransfer(t *models.Transfer) []byte {
	var b []byte
	b = appendString(b, 1, t.GroupID)
	b = appendString(b, 2, t.From)
	b = appendString(b, 3, t.To)
	b = appendVarint(b, 4, t.Amount)
	b = appendVarint(b, 5, uint64(t.CreatedAt))
	return b
}

// UnmarshalTransfer decodes a record produced by MarshalTransfer.
func UnmarshalTransfer(b []byte) (*models.Transfer, error) {
	t := &models.Transfer{}
	var created uint64
	err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return str(typ, b, &t.GroupID)
		case 2:
			return str(typ, b, &t.From)
		case 3:
			return str(typ, b, &t.To)
		case 4:
			return varint(typ, b, &t.Amount)
		case 5:
			return varint(typ, b, &created)
		}
		return 0, nil
	})
	if err != nil {
		return nil, fmt.Errorf("decode transfer: %w", err)
	}
	t.CreatedAt = int64(created)
	return t, nil
}

// MarshalBundle encodes a settled group with its receipts and transfer as
// nested records.
func MarshalBundle(bundle *archive.Bundle) []byte {
	var b []byte
	b = appendBytes(b, 1, MarshalGroup(bundle.Group))
	for _, p := range bundle.Participants {
		b = appendBytes(b, 2, MarshalParticipant(p))
	}
	if bundle.Transfer != nil {
		b = appendBytes(b, 3, MarshalTransfer(bundle.Transfer))
	}
	return b
}

// UnmarshalBundle decodes a record produced by MarshalBundle.
func UnmarshalBundle(b []byte) (*archive.Bundle, error) {
	bundle := &archive.Bundle{}
	err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num < 1 || num > 3 {
			return 0, nil
		}
		var nested []byte
		n, err := bytes(typ, b, &nested)
		if err != nil || n < 0 {
			return n, err
		}
		switch num {
		case 1:
			bundle.Group, err = UnmarshalGroup(nested)
		case 2:
			var p *models.Participant
			if p, err = UnmarshalParticipant(nested); err == nil {
				bundle.Participants = append(bundle.Participants, p)
			}
		case 3:
			bundle.Transfer, err = UnmarshalTransfer(nested)
		}
		return n, err
	})
	if err != nil {
		return nil, fmt.Errorf("decode bundle: %w", err)
	}
	if bundle.Group == nil {
		return nil, fmt.Errorf("decode bundle: missing group")
	}
	return bundle, nil
}
