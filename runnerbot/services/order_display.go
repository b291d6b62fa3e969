package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/karma-runner/internal/domain/lifecycle"
	"github.com/disgoorg/karma-runner/internal/domain/orders"
	"github.com/disgoorg/karma-runner/internal/domain/runners"
	"github.com/disgoorg/karma-runner/runnerbot/config"
	"github.com/disgoorg/karma-runner/runnerbot/utils"
	"github.com/disgoorg/snowflake/v2"
	lru "github.com/hashicorp/golang-lru"
)

// MessageClient is the subset of the disgo REST client the display needs.
type MessageClient interface {
	CreateMessage(channelID snowflake.ID, messageCreate discord.MessageCreate, opts ...rest.RequestOpt) (*discord.Message, error)
	UpdateMessage(channelID snowflake.ID, messageID snowflake.ID, messageUpdate discord.MessageUpdate, opts ...rest.RequestOpt) (*discord.Message, error)
	GetUser(userID snowflake.ID, opts ...rest.RequestOpt) (*discord.User, error)
}

// OrderDisplay keeps order and offer boards in sync with the core. It is the
// render collaborator for both lifecycle.Lifecycle and runners.Matcher.
type OrderDisplay struct {
	mu     sync.RWMutex
	client MessageClient
	names  *lru.Cache
}

var (
	_ lifecycle.Renderer = (*OrderDisplay)(nil)
	_ runners.Renderer   = (*OrderDisplay)(nil)
)

func NewOrderDisplay(cacheSize int) *OrderDisplay {
	if cacheSize <= 0 {
		cacheSize = config.UserCacheSize
	}
	names, _ := lru.New(cacheSize)
	return &OrderDisplay{names: names}
}

// SetClient installs the REST client once the bot is connected. Renders
// before that are dropped.
func (d *OrderDisplay) SetClient(client MessageClient) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.client = client
}

func (d *OrderDisplay) rest() MessageClient {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.client
}

// Remember seeds the name cache from an interaction so later renders do not
// need a REST lookup.
func (d *OrderDisplay) Remember(userID snowflake.ID, name string) {
	if name != "" {
		d.names.Add(userID, name)
	}
}

// Name returns a display name for userID, falling back to a mention.
func (d *OrderDisplay) Name(ctx context.Context, userID string) string {
	id, err := snowflake.Parse(userID)
	if err != nil {
		return userID
	}
	if v, ok := d.names.Get(id); ok {
		return v.(string)
	}
	client := d.rest()
	if client == nil {
		return discord.UserMention(id)
	}
	user, err := client.GetUser(id, rest.WithCtx(ctx))
	if err != nil {
		slog.Debug("User lookup failed",
			slog.String("type", "sys"),
			slog.String("user_id", userID),
			slog.Any("error", err))
		return discord.UserMention(id)
	}
	d.names.Add(id, user.Username)
	return user.Username
}

// PostOrder sends the initial order message and returns where it landed.
func (d *OrderDisplay) PostOrder(ctx context.Context, channelID snowflake.ID, view orders.View) (orders.MessageRef, error) {
	client := d.rest()
	if client == nil {
		return orders.MessageRef{}, fmt.Errorf("display has no client")
	}
	embed := OrderEmbed(view, d.Name(ctx, view.RequesterID))
	msg, err := client.CreateMessage(channelID, discord.MessageCreate{
		Embeds:     []discord.Embed{embed},
		Components: OrderComponents(view.Order),
	}, rest.WithCtx(ctx))
	if err != nil {
		return orders.MessageRef{}, fmt.Errorf("failed to post order: %w", err)
	}
	return orders.MessageRef{ChannelID: msg.ChannelID, MessageID: msg.ID}, nil
}

// PostOffer sends the initial runner offer message.
func (d *OrderDisplay) PostOffer(ctx context.Context, channelID snowflake.ID, view runners.View) (orders.MessageRef, error) {
	client := d.rest()
	if client == nil {
		return orders.MessageRef{}, fmt.Errorf("display has no client")
	}
	msg, err := client.CreateMessage(channelID, discord.MessageCreate{
		Embeds:     []discord.Embed{OfferEmbed(view, d.Name(ctx, view.RunnerID), runners.EventOpened)},
		Components: OfferComponents(view.Offer, runners.EventOpened),
	}, rest.WithCtx(ctx))
	if err != nil {
		return orders.MessageRef{}, fmt.Errorf("failed to post offer: %w", err)
	}
	return orders.MessageRef{ChannelID: msg.ChannelID, MessageID: msg.ID}, nil
}

func (d *OrderDisplay) RenderOrder(ctx context.Context, view orders.View, event lifecycle.Event) error {
	client := d.rest()
	if client == nil || view.Message.IsZero() {
		return nil
	}

	embed := OrderEmbed(view, d.Name(ctx, view.RequesterID))
	components := OrderComponents(view.Order)
	if _, err := client.UpdateMessage(view.Message.ChannelID, view.Message.MessageID, discord.MessageUpdate{
		Embeds:     &[]discord.Embed{embed},
		Components: &components,
	}, rest.WithCtx(ctx)); err != nil {
		return fmt.Errorf("failed to update order message: %w", err)
	}

	if notice := OrderNotice(view, event); notice != "" {
		if _, err := client.CreateMessage(view.Message.ChannelID, discord.MessageCreate{
			Content: notice,
		}, rest.WithCtx(ctx)); err != nil {
			return fmt.Errorf("failed to send order notice: %w", err)
		}
	}
	return nil
}

func (d *OrderDisplay) RenderOffer(ctx context.Context, view runners.View, event runners.Event) error {
	client := d.rest()
	if client == nil || view.Message.IsZero() {
		return nil
	}

	embed := OfferEmbed(view, d.Name(ctx, view.RunnerID), event)
	components := OfferComponents(view.Offer, event)
	if _, err := client.UpdateMessage(view.Message.ChannelID, view.Message.MessageID, discord.MessageUpdate{
		Embeds:     &[]discord.Embed{embed},
		Components: &components,
	}, rest.WithCtx(ctx)); err != nil {
		return fmt.Errorf("failed to update offer message: %w", err)
	}
	return nil
}

func statusColor(s orders.Status) int {
	switch s {
	case orders.StatusPending:
		return config.PendingColor
	case orders.StatusClaimed:
		return config.ClaimedColor
	case orders.StatusDelivered:
		return config.DeliveredColor
	default:
		return config.ClosedColor
	}
}

func mention(userID string) string {
	if id, err := snowflake.Parse(userID); err == nil {
		return discord.UserMention(id)
	}
	return userID
}

// OrderEmbed formats an order for its board message.
func OrderEmbed(view orders.View, requesterName string) discord.Embed {
	o := view.Order
	fields := []discord.EmbedField{
		{Name: "Drink", Value: fmt.Sprintf("%s (%s, %d karma)", o.Drink, o.Category, o.KarmaCost), Inline: boolPtr(true)},
		{Name: "For", Value: mention(o.RecipientID), Inline: boolPtr(true)},
		{Name: "Where", Value: o.Location, Inline: boolPtr(true)},
	}
	if o.Notes != "" {
		fields = append(fields, discord.EmbedField{Name: "Notes", Value: o.Notes})
	}

	var status string
	switch o.Status {
	case orders.StatusPending:
		status = fmt.Sprintf("Waiting for a runner. %s left", minutes(o.RemainingMinutes))
	case orders.StatusClaimed:
		status = fmt.Sprintf("%s is on it", mention(o.RunnerID))
	case orders.StatusDelivered:
		status = fmt.Sprintf("Delivered by %s", mention(o.RunnerID))
		if o.BonusMultiplier > 1 {
			status += fmt.Sprintf(" with a %dx bonus (+%d karma)", o.BonusMultiplier, o.Award())
		} else {
			status += fmt.Sprintf(" (+%d karma)", o.Award())
		}
	case orders.StatusCanceled:
		status = fmt.Sprintf("Canceled, %d karma refunded", o.KarmaCost)
	case orders.StatusExpired:
		status = fmt.Sprintf("Nobody picked this up, %d karma refunded", o.KarmaCost)
	}
	fields = append(fields, discord.EmbedField{Name: "Status", Value: status})

	title := "☕ New order"
	if o.InitiatedBy == orders.InitiatedByRunner {
		title = "☕ Order for a runner"
	}

	createdAt := o.CreatedAt
	return discord.Embed{
		Title:     title,
		Color:     statusColor(o.Status),
		Fields:    fields,
		Footer:    &discord.EmbedFooter{Text: fmt.Sprintf("Requested by %s • %s", requesterName, shortID(o.ID))},
		Timestamp: &createdAt,
	}
}

// OrderComponents returns the buttons that make sense for the order's status.
// Closed orders get an empty row set so stale buttons disappear.
func OrderComponents(o orders.Order) []discord.ContainerComponent {
	switch o.Status {
	case orders.StatusPending:
		return []discord.ContainerComponent{
			discord.NewActionRow(
				discord.NewSuccessButton("Claim", utils.OrderClaimPrefix+o.ID),
				discord.NewDangerButton("Cancel", utils.OrderCancelPrefix+o.ID),
			),
		}
	case orders.StatusClaimed:
		return []discord.ContainerComponent{
			discord.NewActionRow(
				discord.NewPrimaryButton("Delivered", utils.OrderDeliverPrefix+o.ID),
			),
		}
	default:
		return []discord.ContainerComponent{}
	}
}

// OrderNotice is an extra channel message for events people should not miss.
func OrderNotice(view orders.View, event lifecycle.Event) string {
	o := view.Order
	switch event {
	case lifecycle.EventReminder:
		return fmt.Sprintf("⏰ %s's %s is still waiting for a runner, %s left.", mention(o.RequesterID), o.Drink, minutes(o.RemainingMinutes))
	case lifecycle.EventClaimed:
		return fmt.Sprintf("%s, %s picked up your %s.", mention(o.RequesterID), mention(o.RunnerID), o.Drink)
	case lifecycle.EventDelivered:
		return fmt.Sprintf("%s, your %s has arrived. %s earned %d karma.", mention(o.RecipientID), o.Drink, mention(o.RunnerID), o.Award())
	case lifecycle.EventExpired:
		return fmt.Sprintf("%s, nobody claimed your %s. Your %d karma is back.", mention(o.RequesterID), o.Drink, o.KarmaCost)
	default:
		return ""
	}
}

// OfferEmbed formats a runner offer.
func OfferEmbed(view runners.View, runnerName string, event runners.Event) discord.Embed {
	o := view.Offer
	caps := make([]string, 0, len(o.Capabilities))
	for _, c := range o.Capabilities {
		caps = append(caps, fmt.Sprintf("%s (%d karma)", c, c.Cost()))
	}

	var status string
	color := config.PendingColor
	switch {
	case o.Consumed():
		status = fmt.Sprintf("Taken by %s", mention(o.MatchedRequesterID))
		color = config.ClaimedColor
	case event == runners.EventWithdrawn:
		status = "Withdrawn"
		color = config.ClosedColor
	case event == runners.EventExpired:
		status = "Expired"
		color = config.ClosedColor
	default:
		status = fmt.Sprintf("Open for %s", minutes(o.RemainingMinutes))
	}

	openedAt := o.OpenedAt
	return discord.Embed{
		Title: fmt.Sprintf("🏃 %s is doing a coffee run", runnerName),
		Color: color,
		Fields: []discord.EmbedField{
			{Name: "Can bring", Value: strings.Join(caps, "\n")},
			{Name: "Status", Value: status},
		},
		Timestamp: &openedAt,
	}
}

// OfferComponents returns the order and withdraw buttons while the offer is open.
func OfferComponents(o runners.Offer, event runners.Event) []discord.ContainerComponent {
	if o.Consumed() || event == runners.EventWithdrawn || event == runners.EventExpired {
		return []discord.ContainerComponent{}
	}
	return []discord.ContainerComponent{
		discord.NewActionRow(
			discord.NewPrimaryButton("Order from runner", utils.OfferOrderPrefix+o.RunnerID+"/"+o.ID),
			discord.NewSecondaryButton("Withdraw", utils.OfferWithdrawPrefix+o.RunnerID),
		),
	}
}

func minutes(n int) string {
	if n == 1 {
		return "1 minute"
	}
	return fmt.Sprintf("%d minutes", n)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func boolPtr(b bool) *bool {
	return &b
}
