package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/disgoorg/karma-runner/internal/domain/orders"
	"github.com/disgoorg/karma-runner/internal/domain/runners"
	"github.com/disgoorg/karma-runner/internal/gateways/database/models"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
)

type OfferRepository struct {
	*BaseRepository
}

func NewOfferRepository(db *bun.DB) *OfferRepository {
	return &OfferRepository{BaseRepository: NewBaseRepository(db)}
}

var _ runners.Repository = (*OfferRepository)(nil)

// AppendOffer records the offer and copies its capabilities onto the
// runner's profile.
func (r *OfferRepository) AppendOffer(ctx context.Context, runnerID string, capabilities []orders.Category, minutes int) error {
	caps := make([]string, 0, len(capabilities))
	for _, c := range capabilities {
		caps = append(caps, string(c))
	}
	now := time.Now()

	err := r.Transaction(ctx, func(ctx context.Context, tx bun.Tx) error {
		offer := &models.RunnerOffer{
			RunnerID:     runnerID,
			Capabilities: caps,
			Minutes:      minutes,
			CreatedAt:    now,
		}
		if _, err := tx.NewInsert().Model(offer).Exec(ctx); err != nil {
			return fmt.Errorf("failed to insert offer: %w", err)
		}

		_, err := tx.NewUpdate().
			Model((*models.KarmaUser)(nil)).
			Set("capabilities = ?", pgdialect.Array(caps)).
			Set("updated_at = ?", now).
			Where("id = ?", runnerID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to update capabilities: %w", err)
		}
		return nil
	})
	return r.HandleErrorWithID("append", "runner_offer", runnerID, err)
}

// CountSince returns how many offers runnerID opened after since.
func (r *OfferRepository) CountSince(ctx context.Context, runnerID string, since time.Time) (int, error) {
	var count int
	err := r.SelectWithTimeout(ctx, "count", "runner_offer", runnerID, func(ctx context.Context) error {
		var err error
		count, err = r.db.NewSelect().
			Model((*models.RunnerOffer)(nil)).
			Where("runner_id = ?", runnerID).
			Where("created_at > ?", since).
			Count(ctx)
		return err
	})
	return count, err
}
