package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/disgoorg/karma-runner/internal/domain/orders"
	"github.com/disgoorg/karma-runner/internal/gateways/database/models"
	"github.com/disgoorg/snowflake/v2"
	"github.com/uptrace/bun"
)

type OrderRepository struct {
	*BaseRepository
}

func NewOrderRepository(db *bun.DB) *OrderRepository {
	return &OrderRepository{BaseRepository: NewBaseRepository(db)}
}

var _ orders.Repository = (*OrderRepository)(nil)

func (r *OrderRepository) AppendOrder(ctx context.Context, o orders.Order) error {
	row := orderToModel(o)
	row.UpdatedAt = time.Now()
	_, err := r.ExecWithTimeout(ctx, "append", "order", o.ID, func(ctx context.Context) (sql.Result, error) {
		return r.db.NewInsert().Model(row).Exec(ctx)
	})
	return err
}

func (r *OrderRepository) UpdateOrder(ctx context.Context, id string, patch orders.Patch) error {
	q := r.db.NewUpdate().
		Model((*models.Order)(nil)).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", id)

	if patch.Status != nil {
		q = q.Set("status = ?", string(*patch.Status))
	}
	if patch.RunnerID != nil {
		q = q.Set("runner_id = ?", *patch.RunnerID)
	}
	if patch.ClaimedAt != nil {
		q = q.Set("claimed_at = ?", *patch.ClaimedAt)
	}
	if patch.DeliveredAt != nil {
		q = q.Set("delivered_at = ?", *patch.DeliveredAt)
	}
	if patch.BonusMultiplier != nil {
		q = q.Set("bonus_multiplier = ?", *patch.BonusMultiplier)
	}
	if patch.RemainingMinutes != nil {
		q = q.Set("remaining_minutes = ?", *patch.RemainingMinutes)
	}
	if patch.Message != nil {
		q = q.Set("channel_id = ?", patch.Message.ChannelID.String()).
			Set("message_id = ?", patch.Message.MessageID.String())
	}

	result, err := r.ExecWithTimeout(ctx, "update", "order", id, func(ctx context.Context) (sql.Result, error) {
		return q.Exec(ctx)
	})
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return &NotFoundError{Entity: "order", ID: id}
	}
	return nil
}

// FetchOrder returns nil when no order with id was stored.
func (r *OrderRepository) FetchOrder(ctx context.Context, id string) (*orders.Order, error) {
	row := new(models.Order)
	err := r.SelectWithTimeout(ctx, "fetch", "order", id, func(ctx context.Context) error {
		return r.db.NewSelect().Model(row).Where("id = ?", id).Scan(ctx)
	})
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	o := orderFromModel(row)
	return &o, nil
}

// ListClosedSince returns orders that reached a terminal status after since,
// oldest first.
func (r *OrderRepository) ListClosedSince(ctx context.Context, since time.Time) ([]orders.Order, error) {
	var rows []*models.Order
	err := r.SelectWithTimeout(ctx, "list_closed", "order", since, func(ctx context.Context) error {
		return r.db.NewSelect().
			Model(&rows).
			Where("status IN (?)", bun.In([]string{
				string(orders.StatusDelivered),
				string(orders.StatusCanceled),
				string(orders.StatusExpired),
			})).
			Where("updated_at > ?", since).
			Order("updated_at ASC").
			Scan(ctx)
	})
	if err != nil && !errors.Is(err, sql.ErrNoRows) && !IsNotFound(err) {
		return nil, err
	}

	out := make([]orders.Order, 0, len(rows))
	for _, row := range rows {
		out = append(out, orderFromModel(row))
	}
	return out, nil
}

// CountByStatus feeds the status gauges on startup.
func (r *OrderRepository) CountByStatus(ctx context.Context) (map[orders.Status]int, error) {
	var rows []struct {
		Status string `bun:"status"`
		Count  int    `bun:"count"`
	}
	err := r.SelectWithTimeout(ctx, "count_by_status", "order", nil, func(ctx context.Context) error {
		return r.db.NewSelect().
			Model((*models.Order)(nil)).
			Column("status").
			ColumnExpr("COUNT(*) AS count").
			Group("status").
			Scan(ctx, &rows)
	})
	if err != nil && !IsNotFound(err) {
		return nil, err
	}

	counts := make(map[orders.Status]int, len(rows))
	for _, row := range rows {
		counts[orders.Status(row.Status)] = row.Count
	}
	return counts, nil
}

func orderToModel(o orders.Order) *models.Order {
	row := &models.Order{
		ID:               o.ID,
		RequesterID:      o.RequesterID,
		RecipientID:      o.RecipientID,
		RunnerID:         o.RunnerID,
		Drink:            o.Drink,
		Category:         string(o.Category),
		Location:         o.Location,
		Notes:            o.Notes,
		KarmaCost:        o.KarmaCost,
		Status:           string(o.Status),
		BonusMultiplier:  o.BonusMultiplier,
		RemainingMinutes: o.RemainingMinutes,
		InitiatedBy:      string(o.InitiatedBy),
		OfferID:          o.OfferID,
		CreatedAt:        o.CreatedAt,
		ClaimedAt:        o.ClaimedAt,
		DeliveredAt:      o.DeliveredAt,
	}
	if !o.Message.IsZero() {
		row.ChannelID = o.Message.ChannelID.String()
		row.MessageID = o.Message.MessageID.String()
	}
	return row
}

func orderFromModel(row *models.Order) orders.Order {
	o := orders.Order{
		ID:               row.ID,
		RequesterID:      row.RequesterID,
		RecipientID:      row.RecipientID,
		RunnerID:         row.RunnerID,
		Drink:            row.Drink,
		Category:         orders.Category(row.Category),
		Location:         row.Location,
		Notes:            row.Notes,
		KarmaCost:        row.KarmaCost,
		Status:           orders.Status(row.Status),
		BonusMultiplier:  row.BonusMultiplier,
		RemainingMinutes: row.RemainingMinutes,
		InitiatedBy:      orders.Initiator(row.InitiatedBy),
		OfferID:          row.OfferID,
		CreatedAt:        row.CreatedAt,
		ClaimedAt:        row.ClaimedAt,
		DeliveredAt:      row.DeliveredAt,
	}
	if channelID, err := snowflake.Parse(row.ChannelID); err == nil {
		o.Message.ChannelID = channelID
	}
	if messageID, err := snowflake.Parse(row.MessageID); err == nil {
		o.Message.MessageID = messageID
	}
	return o
}
