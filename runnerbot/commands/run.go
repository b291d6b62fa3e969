package commands

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/handler"
	"github.com/disgoorg/karma-runner/internal/domain/lifecycle"
	"github.com/disgoorg/karma-runner/internal/domain/orders"
	"github.com/disgoorg/karma-runner/internal/domain/runners"
	"github.com/disgoorg/karma-runner/runnerbot"
	"github.com/disgoorg/karma-runner/runnerbot/config"
	"github.com/disgoorg/karma-runner/runnerbot/utils"
)

var Run = discord.SlashCommandCreate{
	Name:        "run",
	Description: "🏃 Offer to bring someone a drink",
	Options: []discord.ApplicationCommandOption{
		discord.ApplicationCommandOptionInt{
			Name:        "minutes",
			Description: "How long your offer stays open",
			Required:    true,
			MinValue:    intPtr(1),
			MaxValue:    intPtr(config.MaxOfferMinutes),
		},
		discord.ApplicationCommandOptionBool{
			Name:        "water",
			Description: "You can bring water",
		},
		discord.ApplicationCommandOptionBool{
			Name:        "drip",
			Description: "You can bring drip coffee or tea",
		},
		discord.ApplicationCommandOptionBool{
			Name:        "espresso",
			Description: "You can make espresso drinks",
		},
	},
}

func RunHandler(b *runnerbot.Bot) handler.CommandHandler {
	return func(e *handler.CommandEvent) error {
		ctx, cancel := context.WithTimeout(context.Background(), config.CommandExecutionTimeout)
		defer cancel()

		data := e.SlashCommandInteractionData()
		user := e.User()
		runnerID := user.ID.String()
		b.Display.Remember(user.ID, user.Username)

		var capabilities []orders.Category
		for _, c := range orders.Categories {
			if data.Bool(string(c)) {
				capabilities = append(capabilities, c)
			}
		}
		if len(capabilities) == 0 {
			capabilities = lastCapabilities(ctx, b, runnerID)
		}

		offer, err := b.Matcher.Open(ctx, runnerID, capabilities, data.Int("minutes"))
		if err != nil {
			return utils.EH.Reject(e, err)
		}

		ref, err := b.Display.PostOffer(ctx, b.BoardChannel(e.ChannelID()), runners.View{Offer: *offer})
		if err != nil {
			slog.Error("Failed to post offer",
				slog.String("type", "error"),
				slog.String("offer_id", offer.ID),
				slog.Any("error", err))
		} else if err = b.Matcher.AttachMessage(runnerID, offer.ID, ref); err != nil {
			slog.Warn("Offer closed before its message was attached",
				slog.String("type", "offer"),
				slog.String("offer_id", offer.ID),
				slog.Any("error", err))
		}

		names := make([]string, 0, len(capabilities))
		for _, c := range offer.Capabilities {
			names = append(names, string(c))
		}
		return utils.EH.CreateSuccess(e, fmt.Sprintf("Your offer is open for %d minutes (%s).",
			offer.AvailableMinutes, strings.Join(names, ", ")))
	}
}

// lastCapabilities reuses the categories of the runner's previous offer.
func lastCapabilities(ctx context.Context, b *runnerbot.Bot, runnerID string) []orders.Category {
	stored, err := b.UserRepository.Capabilities(ctx, runnerID)
	if err != nil {
		slog.Warn("Failed to load previous capabilities",
			slog.String("type", "db"),
			slog.String("runner_id", runnerID),
			slog.Any("error", err))
		return nil
	}
	var caps []orders.Category
	for _, raw := range stored {
		if c, ok := orders.ParseCategory(raw); ok {
			caps = append(caps, c)
		}
	}
	return caps
}

func OfferWithdrawHandler(b *runnerbot.Bot) handler.ComponentHandler {
	return func(e *handler.ComponentEvent) error {
		runnerID := e.Vars["runner"]
		if e.User().ID.String() != runnerID {
			return utils.EH.CreatePermissionError(e, "withdraw someone else's offer")
		}
		if !b.Matcher.Withdraw(runnerID) {
			return utils.EH.Reject(e, runners.ErrNotFound)
		}
		return utils.EH.CreateSuccess(e, "Offer withdrawn.")
	}
}

// OfferOrderHandler opens the order form for a runner's offer.
func OfferOrderHandler(b *runnerbot.Bot) handler.ComponentHandler {
	return func(e *handler.ComponentEvent) error {
		runnerID, offerID := e.Vars["runner"], e.Vars["offer"]
		if e.User().ID.String() == runnerID {
			return utils.EH.Reject(e, lifecycle.ErrSelfClaim)
		}

		offer, ok := b.Matcher.Offer(runnerID)
		switch {
		case !ok || offer.ID != offerID:
			return utils.EH.Reject(e, lifecycle.ErrOfferContextMissing)
		case offer.Consumed():
			return utils.EH.Reject(e, runners.ErrAlreadyMatched)
		}

		return e.Modal(OfferOrderModal(offer))
	}
}

// OfferOrderModal is the form a requester fills in to order from a runner.
func OfferOrderModal(offer runners.Offer) discord.ModalCreate {
	caps := make([]string, 0, len(offer.Capabilities))
	for _, c := range offer.Capabilities {
		caps = append(caps, string(c))
	}
	return discord.ModalCreate{
		CustomID: utils.OfferModalPrefix + offer.RunnerID + "/" + offer.ID,
		Title:    "Order from runner",
		Components: []discord.ContainerComponent{
			discord.NewActionRow(
				discord.NewShortTextInput("drink", "Drink").
					WithRequired(true).
					WithMaxLength(config.MaxDrinkLength).
					WithPlaceholder("Runner can bring: " + strings.Join(caps, ", ")),
			),
			discord.NewActionRow(
				discord.NewShortTextInput("location", "Deliver to").
					WithRequired(true).
					WithMaxLength(config.MaxLocationLength),
			),
			discord.NewActionRow(
				discord.NewShortTextInput("notes", "Notes").
					WithRequired(false).
					WithMaxLength(orders.MaxNotesLength),
			),
		},
	}
}

func OfferModalHandler(b *runnerbot.Bot) handler.ModalHandler {
	return func(e *handler.ModalEvent) error {
		ctx, cancel := context.WithTimeout(context.Background(), config.CommandExecutionTimeout)
		defer cancel()

		user := e.User()
		b.Display.Remember(user.ID, user.Username)
		runnerID, offerID := e.Vars["runner"], e.Vars["offer"]

		req := lifecycle.PlaceRequest{
			RequesterID: user.ID.String(),
			Drink:       strings.TrimSpace(e.Data.Text("drink")),
			Location:    strings.TrimSpace(e.Data.Text("location")),
			Notes:       strings.TrimSpace(e.Data.Text("notes")),
		}

		o, err := b.Lifecycle.PlaceWithRunner(ctx, req, runnerID, offerID)
		if err != nil {
			return utils.EH.Reject(e, err)
		}
		postOrder(ctx, b, e.ChannelID(), o)
		rememberName(b, user.ID, user.Username)

		return utils.EH.CreateSuccess(e, fmt.Sprintf("%s is bringing your %s. %d karma spent.",
			b.Display.Name(ctx, runnerID), o.Drink, o.KarmaCost))
	}
}
