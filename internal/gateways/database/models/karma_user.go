package models

import (
	"time"

	"github.com/uptrace/bun"
)

// KarmaUser is one row per participant: balance, derived title and the
// drinks they offered to make the last time they ran.
type KarmaUser struct {
	bun.BaseModel `bun:"table:karma_users,alias:ku"`

	ID           string   `bun:"id,pk"`
	Name         string   `bun:"name"`
	Balance      int64    `bun:"balance,notnull,default:0"`
	Title        string   `bun:"title,notnull"`
	Capabilities []string `bun:"capabilities,array"`

	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}
