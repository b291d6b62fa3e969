package orders

import (
	"context"
	"time"
)

// Repository is the persistence collaborator for order records. Writes may
// lag the in-memory store.
type Repository interface {
	AppendOrder(ctx context.Context, o Order) error
	UpdateOrder(ctx context.Context, id string, patch Patch) error
	// FetchOrder returns nil when the order is absent.
	FetchOrder(ctx context.Context, id string) (*Order, error)
}

// Patch holds the fields a transition changed. Nil fields are left as stored.
type Patch struct {
	Status           *Status
	RunnerID         *string
	ClaimedAt        *time.Time
	DeliveredAt      *time.Time
	BonusMultiplier  *int64
	RemainingMinutes *int
	Message          *MessageRef
}

// TransitionPatch describes the fields written by a status change.
func TransitionPatch(o Order) Patch {
	p := Patch{
		Status:           &o.Status,
		RemainingMinutes: &o.RemainingMinutes,
	}
	if o.RunnerID != "" {
		p.RunnerID = &o.RunnerID
	}
	if !o.ClaimedAt.IsZero() {
		p.ClaimedAt = &o.ClaimedAt
	}
	if !o.DeliveredAt.IsZero() {
		p.DeliveredAt = &o.DeliveredAt
	}
	if o.BonusMultiplier > 0 {
		p.BonusMultiplier = &o.BonusMultiplier
	}
	return p
}
