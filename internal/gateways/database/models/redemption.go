package models

import (
	"time"

	"github.com/uptrace/bun"
)

type RedemptionCode struct {
	bun.BaseModel `bun:"table:redemption_codes,alias:rc"`

	Code           string    `bun:"code,pk"`
	Value          int64     `bun:"value,notnull"`
	MaxRedemptions int       `bun:"max_redemptions,notnull"`
	ExpiresAt      time.Time `bun:"expires_at,nullzero"`
	CreatedAt      time.Time `bun:"created_at,notnull,default:current_timestamp"`

	Redemptions []*Redemption `bun:"rel:has-many,join:code=code"`
}

type Redemption struct {
	bun.BaseModel `bun:"table:redemptions,alias:r"`

	ID         int64     `bun:"id,pk,autoincrement"`
	Code       string    `bun:"code,notnull"`
	UserID     string    `bun:"user_id,notnull"`
	RedeemedAt time.Time `bun:"redeemed_at,notnull"`
}
