package karma

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

type codeState struct {
	mu   sync.Mutex
	code RedemptionCode
}

// NormalizeCode canonicalises user input for code lookups.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// CreateCode registers a new redemption code.
func (l *Ledger) CreateCode(ctx context.Context, code RedemptionCode) error {
	code.Code = NormalizeCode(code.Code)
	if code.Code == "" || code.Value <= 0 || code.MaxRedemptions < 1 {
		return fmt.Errorf("%w: code %q value %d max %d", ErrInvalidCode, code.Code, code.Value, code.MaxRedemptions)
	}

	existing, err := l.loadCode(ctx, code.Code)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("%w: %s", ErrCodeExists, code.Code)
	}

	code.Redemptions = nil
	if err := l.codeRepo.SaveCode(ctx, &code); err != nil {
		return fmt.Errorf("failed to save code: %w", err)
	}
	l.codes.Store(code.Code, &codeState{code: code})

	slog.Info("Redemption code created",
		slog.String("type", "karma"),
		slog.String("code", code.Code),
		slog.Int64("value", code.Value),
		slog.Int("max_redemptions", code.MaxRedemptions))
	return nil
}

// Redeem credits the code's value to userID if the code is unexpired, has not
// been used by this user and still has redemptions left.
func (l *Ledger) Redeem(ctx context.Context, code, userID string) (RedeemResult, error) {
	code = NormalizeCode(code)

	state, err := l.loadCode(ctx, code)
	if err != nil {
		return RedeemResult{}, err
	}
	if state == nil {
		return RedeemResult{Status: RedeemNotFound}, nil
	}

	// Load the account before touching the code so the credit cannot fail
	// after the redemption is recorded.
	a, err := l.account(ctx, userID)
	if err != nil {
		return RedeemResult{}, err
	}

	now := l.now()
	state.mu.Lock()
	switch {
	case !state.code.ExpiresAt.IsZero() && !now.Before(state.code.ExpiresAt):
		state.mu.Unlock()
		return RedeemResult{Status: RedeemExpired}, nil
	case state.code.redeemedBy(userID):
		state.mu.Unlock()
		return RedeemResult{Status: RedeemAlreadyUsed}, nil
	case len(state.code.Redemptions) >= state.code.MaxRedemptions:
		state.mu.Unlock()
		return RedeemResult{Status: RedeemLimitReached}, nil
	}
	redemption := Redemption{UserID: userID, At: now}
	state.code.Redemptions = append(state.code.Redemptions, redemption)
	value := state.code.Value
	state.mu.Unlock()

	balance := l.credit(a, value, "redeem:"+code)

	l.flushes.Add(1)
	go func() {
		defer l.flushes.Done()
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if err := l.codeRepo.AppendRedemption(ctx, code, redemption); err != nil {
			slog.Error("Failed to persist redemption",
				slog.String("type", "error"),
				slog.String("code", code),
				slog.String("user_id", userID),
				slog.Any("error", err))
		}
	}()

	return RedeemResult{Status: RedeemSuccess, Points: value, Balance: balance}, nil
}

func (l *Ledger) loadCode(ctx context.Context, code string) (*codeState, error) {
	if s, ok := l.codes.Load(code); ok {
		return s, nil
	}

	v, err, _ := l.loads.Do("code:"+code, func() (any, error) {
		if s, ok := l.codes.Load(code); ok {
			return s, nil
		}
		stored, err := l.codeRepo.FetchCode(ctx, code)
		if err != nil {
			return nil, fmt.Errorf("failed to load code %s: %w", code, err)
		}
		if stored == nil {
			return (*codeState)(nil), nil
		}
		s, _ := l.codes.LoadOrStore(code, &codeState{code: *stored})
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*codeState), nil
}
