// Package archive copies settled groups out of the live entity store.
package archive

import (
	"context"
	"errors"
	"fmt"

	"github.com/mmynk/crowdpay/internal/models"
)

// Bundle is everything known about a settled group.
type Bundle struct {
	Group        *models.Group
	Participants []*models.Participant
	Transfer     *models.Transfer
}

// ErrNotArchived is returned when no bundle exists for a group.
var ErrNotArchived = errors.New("no archived bundle")

// Key returns the object key a bundle is archived under.
func (b *Bundle) Key() string {
	return KeyFor(b.Group.ID)
}

// KeyFor returns the object key of the bundle for groupID.
func KeyFor(groupID string) string {
	return fmt.Sprintf("settlements/%s.bin", groupID)
}

// Archiver persists settled bundles.
type Archiver interface {
	Archive(ctx context.Context, bundle *Bundle) error
}

// Discard is an Archiver that drops every bundle.
type Discard struct{}

// Archive implements Archiver.
func (Discard) Archive(context.Context, *Bundle) error { return nil }
