package migration

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// LegacyUser is a user document of the previous bot. Only the fields the
// karma import needs are decoded.
type LegacyUser struct {
	ID        primitive.ObjectID `bson:"_id"`
	DiscordID string             `bson:"discord_id"`
	Username  string             `bson:"username"`
	Karma     int64              `bson:"karma"`
	Joined    time.Time          `bson:"joined"`
}

// MigrationStats summarizes one import run.
type MigrationStats struct {
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
	Read       int       `json:"read"`
	Imported   int       `json:"imported"`
	Existing   int       `json:"existing"`
	Duplicates int       `json:"duplicates"`
	Skipped    int       `json:"skipped"`
	Errors     int       `json:"errors"`
}
