package karma

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sync/singleflight"
)

const persistTimeout = 10 * time.Second

type account struct {
	mu      sync.Mutex
	userID  string
	balance int64

	// write-behind state, guarded by mu
	flushing bool
	dirty    bool
}

// Ledger owns karma balances. Every read-modify-write of a balance runs under
// that user's account lock; persistence happens after the lock is released.
type Ledger struct {
	repo         Repository
	codeRepo     CodeRepository
	startBalance int64

	accounts *xsync.MapOf[string, *account]
	codes    *xsync.MapOf[string, *codeState]
	loads    singleflight.Group

	flushes sync.WaitGroup
	now     func() time.Time
}

// NewLedger creates a ledger backed by the given repositories.
func NewLedger(repo Repository, codeRepo CodeRepository, startBalance int64) *Ledger {
	if startBalance < 0 {
		startBalance = DefaultStartingBalance
	}
	return &Ledger{
		repo:         repo,
		codeRepo:     codeRepo,
		startBalance: startBalance,
		accounts:     xsync.NewMapOf[string, *account](),
		codes:        xsync.NewMapOf[string, *codeState](),
		now:          time.Now,
	}
}

// SetClock overrides the time source used for redemptions.
func (l *Ledger) SetClock(now func() time.Time) {
	l.now = now
}

// Balance returns the user's account, creating it at the starting balance on
// first sight.
func (l *Ledger) Balance(ctx context.Context, userID string) (Account, error) {
	a, err := l.account(ctx, userID)
	if err != nil {
		return Account{}, err
	}
	a.mu.Lock()
	balance := a.balance
	a.mu.Unlock()

	return Account{UserID: userID, Balance: balance, Title: TitleFor(balance)}, nil
}

// Debit removes amount from the user's balance. It fails with
// ErrInsufficientFunds, leaving the balance untouched, when amount exceeds it.
func (l *Ledger) Debit(ctx context.Context, userID string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	a, err := l.account(ctx, userID)
	if err != nil {
		return 0, err
	}

	a.mu.Lock()
	if amount > a.balance {
		balance := a.balance
		a.mu.Unlock()
		return balance, fmt.Errorf("%w: balance %d, cost %d", ErrInsufficientFunds, balance, amount)
	}
	a.balance -= amount
	balance := a.balance
	a.mu.Unlock()

	slog.Info("Karma debited",
		slog.String("type", "karma"),
		slog.String("user_id", userID),
		slog.Int64("amount", amount),
		slog.Int64("balance", balance))

	l.persist(a)
	return balance, nil
}

// Credit adds amount to the user's balance. Balances have no upper bound.
func (l *Ledger) Credit(ctx context.Context, userID string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	a, err := l.account(ctx, userID)
	if err != nil {
		return 0, err
	}
	return l.credit(a, amount, "credit"), nil
}

// Refund returns karma taken by an earlier debit.
func (l *Ledger) Refund(ctx context.Context, userID string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	a, err := l.account(ctx, userID)
	if err != nil {
		return 0, err
	}
	return l.credit(a, amount, "refund"), nil
}

// Leaderboard returns the top n accounts. Persisted balances are overlaid with
// the live balances held in memory.
func (l *Ledger) Leaderboard(ctx context.Context, n int) ([]Account, error) {
	if n <= 0 {
		return nil, nil
	}
	persisted, err := l.repo.TopBalances(ctx, n+l.accounts.Size())
	if err != nil {
		return nil, fmt.Errorf("failed to load top balances: %w", err)
	}

	merged := make(map[string]int64, len(persisted))
	for _, acc := range persisted {
		merged[acc.UserID] = acc.Balance
	}
	l.accounts.Range(func(userID string, a *account) bool {
		a.mu.Lock()
		merged[userID] = a.balance
		a.mu.Unlock()
		return true
	})

	board := make([]Account, 0, len(merged))
	for userID, balance := range merged {
		board = append(board, Account{UserID: userID, Balance: balance, Title: TitleFor(balance)})
	}
	sort.Slice(board, func(i, j int) bool {
		if board[i].Balance != board[j].Balance {
			return board[i].Balance > board[j].Balance
		}
		return board[i].UserID < board[j].UserID
	})
	if len(board) > n {
		board = board[:n]
	}
	return board, nil
}

// Wait blocks until pending balance writes have been handed to the repository.
func (l *Ledger) Wait() {
	l.flushes.Wait()
}

func (l *Ledger) credit(a *account, amount int64, reason string) int64 {
	a.mu.Lock()
	a.balance += amount
	balance := a.balance
	a.mu.Unlock()

	slog.Info("Karma credited",
		slog.String("type", "karma"),
		slog.String("user_id", a.userID),
		slog.String("reason", reason),
		slog.Int64("amount", amount),
		slog.Int64("balance", balance))

	l.persist(a)
	return balance
}

func (l *Ledger) account(ctx context.Context, userID string) (*account, error) {
	if a, ok := l.accounts.Load(userID); ok {
		return a, nil
	}

	v, err, _ := l.loads.Do(userID, func() (any, error) {
		if a, ok := l.accounts.Load(userID); ok {
			return a, nil
		}
		balance, found, err := l.repo.GetBalance(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("failed to load balance for %s: %w", userID, err)
		}
		if !found {
			balance = l.startBalance
		}
		a, loaded := l.accounts.LoadOrStore(userID, &account{userID: userID, balance: balance})
		if !found && !loaded {
			l.persist(a)
		}
		return a, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*account), nil
}

// persist writes the account's latest balance. Writes for one account are
// coalesced into a single flusher so the newest balance always lands last.
func (l *Ledger) persist(a *account) {
	a.mu.Lock()
	if a.flushing {
		a.dirty = true
		a.mu.Unlock()
		return
	}
	a.flushing = true
	a.mu.Unlock()

	l.flushes.Add(1)
	go func() {
		defer l.flushes.Done()
		for {
			a.mu.Lock()
			balance := a.balance
			a.dirty = false
			a.mu.Unlock()

			ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
			if err := l.repo.SetBalance(ctx, a.userID, balance, TitleFor(balance)); err != nil {
				slog.Error("Failed to persist karma balance",
					slog.String("type", "error"),
					slog.String("user_id", a.userID),
					slog.Int64("balance", balance),
					slog.Any("error", err))
			}
			cancel()

			a.mu.Lock()
			if !a.dirty {
				a.flushing = false
				a.mu.Unlock()
				return
			}
			a.mu.Unlock()
		}
	}()
}
