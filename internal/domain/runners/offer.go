package runners

import (
	"context"
	"errors"
	"time"

	"github.com/disgoorg/karma-runner/internal/domain/orders"
)

var (
	ErrAlreadyOpen    = errors.New("runner already has an open offer")
	ErrAlreadyMatched = errors.New("runner offer already matched")
	ErrNotFound       = errors.New("runner offer not found")
	ErrInvalidOffer   = errors.New("runner offer needs minutes and at least one drink")
)

// Offer is a runner's announcement that they can fetch drinks for a while.
// Once MatchedRequesterID is set the offer is consumed.
type Offer struct {
	ID                 string
	RunnerID           string
	AvailableMinutes   int
	RemainingMinutes   int
	Capabilities       []orders.Category
	MatchedRequesterID string
	OpenedAt           time.Time
	MatchedAt          time.Time
	Message            orders.MessageRef
}

func (o *Offer) Consumed() bool {
	return o.MatchedRequesterID != ""
}

// Can reports whether the runner offered to make drinks of category c.
func (o *Offer) Can(c orders.Category) bool {
	for _, capability := range o.Capabilities {
		if capability == c {
			return true
		}
	}
	return false
}

// Event says why an offer is being rendered.
type Event string

const (
	EventOpened    Event = "opened"
	EventTick      Event = "tick"
	EventMatched   Event = "matched"
	EventWithdrawn Event = "withdrawn"
	EventExpired   Event = "expired"
)

type View struct {
	Offer
}

// Renderer updates the message displaying an offer.
type Renderer interface {
	RenderOffer(ctx context.Context, view View, event Event) error
}

// Repository records offers for the runner's profile.
type Repository interface {
	AppendOffer(ctx context.Context, runnerID string, capabilities []orders.Category, minutes int) error
}
