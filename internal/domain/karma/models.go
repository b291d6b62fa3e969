package karma

import (
	"context"
	"errors"
	"time"
)

// DefaultStartingBalance is granted to users the ledger has never seen.
const DefaultStartingBalance int64 = 3

var (
	ErrInsufficientFunds = errors.New("insufficient karma")
	ErrInvalidAmount     = errors.New("karma amount must be positive")
	ErrInvalidCode       = errors.New("invalid redemption code")
	ErrCodeExists        = errors.New("redemption code already exists")
)

type Account struct {
	UserID  string
	Balance int64
	Title   string
}

type Redemption struct {
	UserID string
	At     time.Time
}

// RedemptionCode grants Value karma to at most MaxRedemptions distinct users
// before ExpiresAt.
type RedemptionCode struct {
	Code           string
	Value          int64
	MaxRedemptions int
	ExpiresAt      time.Time
	Redemptions    []Redemption
}

func (c *RedemptionCode) redeemedBy(userID string) bool {
	for _, r := range c.Redemptions {
		if r.UserID == userID {
			return true
		}
	}
	return false
}

type RedeemStatus string

const (
	RedeemSuccess      RedeemStatus = "success"
	RedeemExpired      RedeemStatus = "expired"
	RedeemAlreadyUsed  RedeemStatus = "already_used"
	RedeemLimitReached RedeemStatus = "limit_reached"
	RedeemNotFound     RedeemStatus = "not_found"
)

type RedeemResult struct {
	Status  RedeemStatus
	Points  int64
	Balance int64
}

// Repository persists balances. Implementations may be eventually consistent.
type Repository interface {
	GetBalance(ctx context.Context, userID string) (balance int64, found bool, err error)
	SetBalance(ctx context.Context, userID string, balance int64, title string) error
	TopBalances(ctx context.Context, limit int) ([]Account, error)
}

// CodeRepository persists redemption codes and their redemptions.
type CodeRepository interface {
	FetchCode(ctx context.Context, code string) (*RedemptionCode, error)
	SaveCode(ctx context.Context, code *RedemptionCode) error
	AppendRedemption(ctx context.Context, code string, redemption Redemption) error
}
