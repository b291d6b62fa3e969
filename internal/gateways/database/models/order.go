package models

import (
	"time"

	"github.com/uptrace/bun"
)

type Order struct {
	bun.BaseModel `bun:"table:orders,alias:o"`

	ID          string `bun:"id,pk"`
	RequesterID string `bun:"requester_id,notnull"`
	RecipientID string `bun:"recipient_id,notnull"`
	RunnerID    string `bun:"runner_id"`

	Drink    string `bun:"drink,notnull"`
	Category string `bun:"category,notnull"`
	Location string `bun:"location,notnull"`
	Notes    string `bun:"notes"`

	KarmaCost        int64  `bun:"karma_cost,notnull"`
	Status           string `bun:"status,notnull"`
	BonusMultiplier  int64  `bun:"bonus_multiplier,notnull,default:0"`
	RemainingMinutes int    `bun:"remaining_minutes,notnull,default:0"`
	InitiatedBy      string `bun:"initiated_by,notnull"`
	OfferID          string `bun:"offer_id"`

	ChannelID string `bun:"channel_id"`
	MessageID string `bun:"message_id"`

	CreatedAt   time.Time `bun:"created_at,notnull"`
	ClaimedAt   time.Time `bun:"claimed_at,nullzero"`
	DeliveredAt time.Time `bun:"delivered_at,nullzero"`
	UpdatedAt   time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}
