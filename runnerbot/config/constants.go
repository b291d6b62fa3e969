package config

import "time"

// UI and Display Constants
const (
	DefaultPageSize    = 10
	LeaderboardSize    = 50
	LeaderboardPerPage = 10

	ErrorColor   = 0xFF0000
	SuccessColor = 0x00FF00
	InfoColor    = 0x0099FF
	WarningColor = 0xFFAA00

	EmbedDefaultColor = 0x2B2D31
	PendingColor      = 0xC8A27A // latte
	ClaimedColor      = 0x6F4E37 // coffee
	DeliveredColor    = 0x2ECC71
	ClosedColor       = 0x95A5A6
)

// Database and Performance Constants
const (
	DefaultQueryTimeout     = 30 * time.Second
	BatchQueryTimeout       = 30 * time.Second
	CommandExecutionTimeout = 10 * time.Second
	SlowQueryThreshold      = 250 * time.Millisecond

	// username lookups for rendering
	UserCacheSize = 2048

	// external call fan-out
	DispatchConcurrency = 8
	DispatchTimeout     = 15 * time.Second
)

// Background processes
const (
	SweepInterval   = 30 * time.Second
	ArchiveInterval = 24 * time.Hour
	ShutdownTimeout = 10 * time.Second
)

// Order intake limits
const (
	MaxDrinkLength    = 100
	MaxLocationLength = 100
	MaxOfferMinutes   = 120
)
