package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/disgoorg/karma-runner/internal/domain/orders"
	"github.com/disgoorg/karma-runner/internal/domain/runners"
)

// Place debits the requester and posts a pending order. A rejected order
// leaves the balance untouched.
func (l *Lifecycle) Place(ctx context.Context, req PlaceRequest) (*orders.Order, error) {
	category, err := resolveCategory(req)
	if err != nil {
		return nil, err
	}
	if category.Blocked() {
		return nil, fmt.Errorf("%w: %s", ErrCategoryBlocked, category)
	}
	cost := category.Cost()

	if _, err := l.ledger.Debit(ctx, req.RequesterID, cost); err != nil {
		return nil, err
	}

	now := l.now()
	o := newOrder(req, category, now)
	o.Status = orders.StatusPending
	o.RemainingMinutes = l.cfg.ClaimWindow
	o.InitiatedBy = orders.InitiatedByRequester

	deadline := now.Add(time.Duration(l.cfg.ClaimWindow) * l.cfg.TickInterval)
	if err := l.store.Insert(o, deadline); err != nil {
		l.refund(ctx, o, "place_failed")
		return nil, fmt.Errorf("failed to register order: %w", err)
	}
	l.dispatch.GoOrdered("persist:"+o.ID, "order.append", func(ctx context.Context) error {
		return l.repo.AppendOrder(ctx, o)
	})
	l.arm(o)
	l.recorder.OrderPlaced(category, o.InitiatedBy)
	l.recorder.KarmaMoved("debit", cost)

	slog.Info("Order placed",
		slog.String("type", "order"),
		slog.String("order_id", o.ID),
		slog.String("requester_id", o.RequesterID),
		slog.String("category", string(category)),
		slog.Int64("cost", cost))
	return &o, nil
}

// PlaceWithRunner creates an order against runnerID's open offer. The order
// starts out claimed and has no timers. offerID must name the offer the
// requester saw; an empty offerID accepts the runner's current offer.
func (l *Lifecycle) PlaceWithRunner(ctx context.Context, req PlaceRequest, runnerID, offerID string) (*orders.Order, error) {
	if req.RequesterID == runnerID {
		return nil, ErrSelfClaim
	}

	offer, ok := l.matcher.Offer(runnerID)
	if !ok || (offerID != "" && offer.ID != offerID) {
		return nil, ErrOfferContextMissing
	}
	if offer.Consumed() {
		return nil, runners.ErrAlreadyMatched
	}

	category, err := resolveCategory(req)
	if err != nil {
		return nil, err
	}
	// blocked categories pass only when the runner offered them
	if !offer.Can(category) {
		return nil, fmt.Errorf("%w: %s", ErrCapabilityMismatch, category)
	}
	cost := category.Cost()

	if _, err := l.ledger.Debit(ctx, req.RequesterID, cost); err != nil {
		return nil, err
	}

	now := l.now()
	o := newOrder(req, category, now)
	o.Status = orders.StatusClaimed
	o.RunnerID = runnerID
	o.ClaimedAt = now
	o.InitiatedBy = orders.InitiatedByRunner
	o.OfferID = offer.ID

	if _, err := l.matcher.MatchOffer(runnerID, offer.ID, req.RequesterID); err != nil {
		l.refund(ctx, o, "match_failed")
		if errors.Is(err, runners.ErrNotFound) {
			return nil, ErrOfferContextMissing
		}
		return nil, err
	}

	if err := l.store.Insert(o, time.Time{}); err != nil {
		l.refund(ctx, o, "place_failed")
		return nil, fmt.Errorf("failed to register order: %w", err)
	}

	l.dispatch.GoOrdered("persist:"+o.ID, "order.append", func(ctx context.Context) error {
		return l.repo.AppendOrder(ctx, o)
	})
	l.recorder.OrderPlaced(category, o.InitiatedBy)
	l.recorder.KarmaMoved("debit", cost)

	slog.Info("Order placed with runner",
		slog.String("type", "order"),
		slog.String("order_id", o.ID),
		slog.String("requester_id", o.RequesterID),
		slog.String("runner_id", runnerID),
		slog.String("offer_id", offer.ID),
		slog.Int64("cost", cost))
	return &o, nil
}

// Claim assigns a pending order to actorID.
func (l *Lifecycle) Claim(ctx context.Context, id, actorID string) (*orders.Order, error) {
	o, err := l.store.Update(id, func(o *orders.Order) (bool, error) {
		switch o.Status {
		case orders.StatusPending:
		case orders.StatusClaimed:
			return false, ErrAlreadyClaimed
		default:
			return false, ErrNotPending
		}
		if actorID == o.RequesterID {
			return false, ErrSelfClaim
		}
		o.Status = orders.StatusClaimed
		o.RunnerID = actorID
		o.ClaimedAt = notBefore(l.now(), o.CreatedAt)
		return false, nil
	})
	if err != nil {
		return nil, err
	}

	l.scheduler.CancelAll(entityKey(id))
	l.persist(o, orders.TransitionPatch(o))
	l.render(o, EventClaimed)
	l.recorder.OrderTransitioned(orders.StatusPending, orders.StatusClaimed)

	slog.Info("Order claimed",
		slog.String("type", "order"),
		slog.String("order_id", id),
		slog.String("runner_id", actorID))
	return &o, nil
}

// Deliver completes a claimed order and pays the runner KarmaCost times the
// bonus multiplier.
func (l *Lifecycle) Deliver(ctx context.Context, id, actorID string) (*orders.Order, error) {
	bonus := l.bonus()
	if bonus < 1 {
		bonus = 1
	}

	o, err := l.store.Update(id, func(o *orders.Order) (bool, error) {
		switch o.Status {
		case orders.StatusClaimed:
		case orders.StatusPending:
			return false, ErrNotClaimed
		default:
			return false, ErrNotPending
		}
		if actorID != o.RunnerID {
			return false, ErrWrongActor
		}
		o.Status = orders.StatusDelivered
		o.DeliveredAt = notBefore(l.now(), o.ClaimedAt)
		o.BonusMultiplier = bonus
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	l.scheduler.CancelAll(entityKey(id))
	award := o.Award()
	if _, err := l.ledger.Credit(context.WithoutCancel(ctx), o.RunnerID, award); err != nil {
		slog.Error("Failed to credit runner",
			slog.String("type", "error"),
			slog.String("order_id", id),
			slog.String("runner_id", o.RunnerID),
			slog.Int64("amount", award),
			slog.Any("error", err))
	} else {
		l.recorder.KarmaMoved("delivery", award)
	}
	l.persist(o, orders.TransitionPatch(o))
	l.render(o, EventDelivered)
	l.recorder.OrderTransitioned(orders.StatusClaimed, orders.StatusDelivered)

	slog.Info("Order delivered",
		slog.String("type", "order"),
		slog.String("order_id", id),
		slog.String("runner_id", o.RunnerID),
		slog.Int64("bonus", bonus),
		slog.Int64("award", award))
	return &o, nil
}

// Cancel withdraws a pending order on behalf of its requester and refunds
// them. Claimed orders cannot be canceled.
func (l *Lifecycle) Cancel(ctx context.Context, id, actorID string) (*orders.Order, error) {
	return l.terminate(ctx, id, orders.StatusCanceled, EventCanceled, func(o *orders.Order) error {
		if actorID != o.RequesterID {
			return ErrWrongActor
		}
		return nil
	})
}

// Expire ends a pending order whose claim window ran out. It is safe to call
// any number of times; only the first call on a pending order has an effect.
func (l *Lifecycle) Expire(ctx context.Context, id string) (*orders.Order, error) {
	return l.terminate(ctx, id, orders.StatusExpired, EventExpired, nil)
}

// AttachMessage records where the transport displayed the order.
func (l *Lifecycle) AttachMessage(id string, ref orders.MessageRef) error {
	o, err := l.store.Update(id, func(o *orders.Order) (bool, error) {
		o.Message = ref
		return false, nil
	})
	if err != nil {
		return err
	}
	l.persist(o, orders.Patch{Message: &ref})
	// a transition that committed before the ref existed rendered nowhere
	if o.Status != orders.StatusPending {
		l.render(o, eventFor(o.Status))
	}
	return nil
}

// SweepExpired expires pending orders whose deadline has passed. It backs up
// the expire timers and returns how many orders it expired.
func (l *Lifecycle) SweepExpired(ctx context.Context) int {
	expired := 0
	for _, id := range l.store.Due(l.now()) {
		if _, err := l.Expire(ctx, id); err == nil {
			expired++
		}
	}
	if expired > 0 {
		slog.Info("Swept expired orders",
			slog.String("type", "order"),
			slog.Int("count", expired))
	}
	return expired
}

func (l *Lifecycle) terminate(ctx context.Context, id string, to orders.Status, event Event, check func(o *orders.Order) error) (*orders.Order, error) {
	o, err := l.store.Update(id, func(o *orders.Order) (bool, error) {
		if check != nil {
			if err := check(o); err != nil {
				return false, err
			}
		}
		switch o.Status {
		case orders.StatusPending:
		case orders.StatusClaimed:
			return false, ErrAlreadyClaimed
		default:
			return false, ErrNotPending
		}
		o.Status = to
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	l.scheduler.CancelAll(entityKey(id))
	l.refund(ctx, o, string(to))
	l.persist(o, orders.TransitionPatch(o))
	l.render(o, event)
	l.recorder.OrderTransitioned(orders.StatusPending, to)

	slog.Info("Order closed",
		slog.String("type", "order"),
		slog.String("order_id", id),
		slog.String("status", string(to)),
		slog.Int64("refund", o.KarmaCost))
	return &o, nil
}

// refund returns the stored cost of o to its requester.
func (l *Lifecycle) refund(ctx context.Context, o orders.Order, reason string) {
	if _, err := l.ledger.Refund(context.WithoutCancel(ctx), o.RequesterID, o.KarmaCost); err != nil {
		slog.Error("Failed to refund requester",
			slog.String("type", "error"),
			slog.String("order_id", o.ID),
			slog.String("requester_id", o.RequesterID),
			slog.String("reason", reason),
			slog.Int64("amount", o.KarmaCost),
			slog.Any("error", err))
		return
	}
	l.recorder.KarmaMoved("refund", o.KarmaCost)
}

func resolveCategory(req PlaceRequest) (orders.Category, error) {
	category := req.Category
	if category == "" {
		c, ok := orders.Classify(req.Drink)
		if !ok {
			return "", fmt.Errorf("%w: %q", ErrUnknownDrink, req.Drink)
		}
		category = c
	}
	if !category.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownDrink, category)
	}
	return category, nil
}

func newOrder(req PlaceRequest, category orders.Category, now time.Time) orders.Order {
	recipient := req.RecipientID
	if recipient == "" {
		recipient = req.RequesterID
	}
	return orders.Order{
		ID:          orders.NewID(),
		RequesterID: req.RequesterID,
		RecipientID: recipient,
		Drink:       req.Drink,
		Category:    category,
		Location:    req.Location,
		Notes:       orders.TruncateNotes(req.Notes),
		KarmaCost:   category.Cost(),
		CreatedAt:   now,
	}
}
