package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/disgoorg/karma-runner/internal/domain/karma"
	"github.com/disgoorg/karma-runner/internal/gateways/database/models"
	"github.com/uptrace/bun"
)

type CodeRepository struct {
	*BaseRepository
}

func NewCodeRepository(db *bun.DB) *CodeRepository {
	return &CodeRepository{BaseRepository: NewBaseRepository(db)}
}

var _ karma.CodeRepository = (*CodeRepository)(nil)

// FetchCode loads a code together with its redemptions. It returns nil when
// the code does not exist.
func (r *CodeRepository) FetchCode(ctx context.Context, code string) (*karma.RedemptionCode, error) {
	row := new(models.RedemptionCode)
	err := r.SelectWithTimeout(ctx, "fetch", "redemption_code", code, func(ctx context.Context) error {
		return r.db.NewSelect().
			Model(row).
			Relation("Redemptions").
			Where("rc.code = ?", code).
			Scan(ctx)
	})
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}

	c := &karma.RedemptionCode{
		Code:           row.Code,
		Value:          row.Value,
		MaxRedemptions: row.MaxRedemptions,
		ExpiresAt:      row.ExpiresAt,
		Redemptions:    make([]karma.Redemption, 0, len(row.Redemptions)),
	}
	for _, rd := range row.Redemptions {
		c.Redemptions = append(c.Redemptions, karma.Redemption{UserID: rd.UserID, At: rd.RedeemedAt})
	}
	return c, nil
}

func (r *CodeRepository) SaveCode(ctx context.Context, code *karma.RedemptionCode) error {
	row := &models.RedemptionCode{
		Code:           code.Code,
		Value:          code.Value,
		MaxRedemptions: code.MaxRedemptions,
		ExpiresAt:      code.ExpiresAt,
		CreatedAt:      time.Now(),
	}
	_, err := r.ExecWithTimeout(ctx, "save", "redemption_code", code.Code, func(ctx context.Context) (sql.Result, error) {
		return r.db.NewInsert().Model(row).Exec(ctx)
	})
	if IsConflict(err) {
		return karma.ErrCodeExists
	}
	return err
}

func (r *CodeRepository) AppendRedemption(ctx context.Context, code string, redemption karma.Redemption) error {
	row := &models.Redemption{
		Code:       code,
		UserID:     redemption.UserID,
		RedeemedAt: redemption.At,
	}
	_, err := r.ExecWithTimeout(ctx, "append", "redemption", code, func(ctx context.Context) (sql.Result, error) {
		return r.db.NewInsert().Model(row).Exec(ctx)
	})
	return err
}
