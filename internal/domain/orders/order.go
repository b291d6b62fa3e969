package orders

import (
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/google/uuid"
)

// MaxNotesLength caps order notes, counted in runes.
const MaxNotesLength = 30

type Status string

const (
	StatusPending   Status = "pending"
	StatusClaimed   Status = "claimed"
	StatusDelivered Status = "delivered"
	StatusCanceled  Status = "canceled"
	StatusExpired   Status = "expired"
)

// Terminal reports whether no further transition can leave the status.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCanceled || s == StatusExpired
}

// Initiator records who started an order.
type Initiator string

const (
	InitiatedByRequester Initiator = "requester"
	InitiatedByRunner    Initiator = "runner"
)

// MessageRef points at the chat message that displays an order or offer.
type MessageRef struct {
	ChannelID snowflake.ID
	MessageID snowflake.ID
}

func (r MessageRef) IsZero() bool {
	return r.ChannelID == 0 || r.MessageID == 0
}

type Order struct {
	ID          string
	RequesterID string
	RecipientID string
	RunnerID    string

	Drink    string
	Category Category
	Location string
	Notes    string

	KarmaCost       int64
	Status          Status
	BonusMultiplier int64

	CreatedAt   time.Time
	ClaimedAt   time.Time
	DeliveredAt time.Time

	RemainingMinutes int
	InitiatedBy      Initiator
	OfferID          string
	Message          MessageRef
}

// Award is the karma a delivery credits to the runner.
func (o *Order) Award() int64 {
	return o.KarmaCost * o.BonusMultiplier
}

// View is the read-only projection handed to renderers.
type View struct {
	Order
	ClaimWindow int
}

// NewID returns an opaque order identifier.
func NewID() string {
	return uuid.NewString()
}

// TruncateNotes trims notes to MaxNotesLength runes.
func TruncateNotes(notes string) string {
	r := []rune(notes)
	if len(r) <= MaxNotesLength {
		return notes
	}
	return string(r[:MaxNotesLength])
}
