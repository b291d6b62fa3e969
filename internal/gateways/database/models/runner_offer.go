package models

import (
	"time"

	"github.com/uptrace/bun"
)

type RunnerOffer struct {
	bun.BaseModel `bun:"table:runner_offers,alias:ro"`

	ID           int64     `bun:"id,pk,autoincrement"`
	RunnerID     string    `bun:"runner_id,notnull"`
	Capabilities []string  `bun:"capabilities,array"`
	Minutes      int       `bun:"minutes,notnull"`
	CreatedAt    time.Time `bun:"created_at,notnull,default:current_timestamp"`
}
