package repositories

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/disgoorg/karma-runner/internal/domain/karma"
	"github.com/disgoorg/karma-runner/internal/gateways/database/models"
	"github.com/uptrace/bun"
)

type UserRepository struct {
	*BaseRepository
}

func NewUserRepository(db *bun.DB) *UserRepository {
	return &UserRepository{BaseRepository: NewBaseRepository(db)}
}

var _ karma.Repository = (*UserRepository)(nil)

func (r *UserRepository) GetBalance(ctx context.Context, userID string) (int64, bool, error) {
	user := new(models.KarmaUser)
	err := r.SelectWithTimeout(ctx, "get_balance", "karma_user", userID, func(ctx context.Context) error {
		return r.db.NewSelect().
			Model(user).
			Column("balance").
			Where("id = ?", userID).
			Scan(ctx)
	})
	if err != nil {
		if IsNotFound(err) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return user.Balance, true, nil
}

// SetBalance writes the absolute balance, creating the row on first use.
func (r *UserRepository) SetBalance(ctx context.Context, userID string, balance int64, title string) error {
	now := time.Now()
	user := &models.KarmaUser{
		ID:        userID,
		Balance:   balance,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := r.ExecWithTimeout(ctx, "set_balance", "karma_user", userID, func(ctx context.Context) (sql.Result, error) {
		return r.db.NewInsert().
			Model(user).
			On("CONFLICT (id) DO UPDATE").
			Set("balance = EXCLUDED.balance").
			Set("title = EXCLUDED.title").
			Set("updated_at = EXCLUDED.updated_at").
			Exec(ctx)
	})
	return err
}

func (r *UserRepository) TopBalances(ctx context.Context, limit int) ([]karma.Account, error) {
	var users []*models.KarmaUser
	err := r.SelectWithTimeout(ctx, "top_balances", "karma_user", limit, func(ctx context.Context) error {
		return r.db.NewSelect().
			Model(&users).
			OrderExpr("balance DESC, id ASC").
			Limit(limit).
			Scan(ctx)
	})
	if err != nil && !IsNotFound(err) {
		return nil, err
	}

	accounts := make([]karma.Account, 0, len(users))
	for _, u := range users {
		accounts = append(accounts, karma.Account{UserID: u.ID, Balance: u.Balance, Title: u.Title})
	}
	return accounts, nil
}

// UpdateName stores the display name seen on the last interaction. Users
// without a balance row yet are skipped; the ledger creates the row.
func (r *UserRepository) UpdateName(ctx context.Context, userID, name string) error {
	_, err := r.ExecWithTimeout(ctx, "update_name", "karma_user", userID, func(ctx context.Context) (sql.Result, error) {
		return r.db.NewUpdate().
			Model((*models.KarmaUser)(nil)).
			Set("name = ?", name).
			Set("updated_at = ?", time.Now()).
			Where("id = ?", userID).
			Where("name IS DISTINCT FROM ?", name).
			Exec(ctx)
	})
	return err
}

// ImportBalance seeds a user from a legacy store. Existing rows win; the
// return value reports whether a row was written.
func (r *UserRepository) ImportBalance(ctx context.Context, userID, name string, balance int64) (bool, error) {
	now := time.Now()
	user := &models.KarmaUser{
		ID:        userID,
		Name:      name,
		Balance:   balance,
		Title:     karma.TitleFor(balance),
		CreatedAt: now,
		UpdatedAt: now,
	}
	result, err := r.ExecWithTimeout(ctx, "import_balance", "karma_user", userID, func(ctx context.Context) (sql.Result, error) {
		return r.db.NewInsert().
			Model(user).
			On("CONFLICT (id) DO NOTHING").
			Exec(ctx)
	})
	if err != nil {
		return false, err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		slog.Debug("Skipped existing user during import",
			slog.String("type", "db"),
			slog.String("user_id", userID))
	}
	return n > 0, nil
}

// Capabilities returns the drink categories of the runner's latest offer.
func (r *UserRepository) Capabilities(ctx context.Context, userID string) ([]string, error) {
	offer := new(models.RunnerOffer)
	err := r.SelectWithTimeout(ctx, "capabilities", "runner_offer", userID, func(ctx context.Context) error {
		return r.db.NewSelect().
			Model(offer).
			Column("capabilities").
			Where("runner_id = ?", userID).
			Order("created_at DESC").
			Limit(1).
			Scan(ctx)
	})
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return offer.Capabilities, nil
}
