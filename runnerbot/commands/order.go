package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/handler"
	"github.com/disgoorg/karma-runner/internal/domain/lifecycle"
	"github.com/disgoorg/karma-runner/internal/domain/orders"
	"github.com/disgoorg/karma-runner/runnerbot"
	"github.com/disgoorg/karma-runner/runnerbot/config"
	"github.com/disgoorg/karma-runner/runnerbot/utils"
	"github.com/disgoorg/snowflake/v2"
)

var Order = discord.SlashCommandCreate{
	Name:        "order",
	Description: "☕ Ask a runner to bring you a drink",
	Options: []discord.ApplicationCommandOption{
		discord.ApplicationCommandOptionString{
			Name:        "drink",
			Description: "What would you like?",
			Required:    true,
			MaxLength:   intPtr(config.MaxDrinkLength),
		},
		discord.ApplicationCommandOptionString{
			Name:        "location",
			Description: "Where should it be delivered?",
			Required:    true,
			MaxLength:   intPtr(config.MaxLocationLength),
		},
		discord.ApplicationCommandOptionString{
			Name:        "category",
			Description: "Drink category, detected from the drink when omitted",
			Choices:     categoryChoices(),
		},
		discord.ApplicationCommandOptionString{
			Name:        "notes",
			Description: "Extra instructions",
			MaxLength:   intPtr(orders.MaxNotesLength),
		},
		discord.ApplicationCommandOptionUser{
			Name:        "for",
			Description: "Order on behalf of someone else",
		},
	},
}

func categoryChoices() []discord.ApplicationCommandOptionChoiceString {
	choices := make([]discord.ApplicationCommandOptionChoiceString, 0, len(orders.Categories))
	for _, c := range orders.Categories {
		choices = append(choices, discord.ApplicationCommandOptionChoiceString{
			Name:  fmt.Sprintf("%s (%d karma)", c, c.Cost()),
			Value: string(c),
		})
	}
	return choices
}

func OrderHandler(b *runnerbot.Bot) handler.CommandHandler {
	return func(e *handler.CommandEvent) error {
		ctx, cancel := context.WithTimeout(context.Background(), config.CommandExecutionTimeout)
		defer cancel()

		data := e.SlashCommandInteractionData()
		user := e.User()
		b.Display.Remember(user.ID, user.Username)
		rememberName(b, user.ID, user.Username)

		req := lifecycle.PlaceRequest{
			RequesterID: user.ID.String(),
			Drink:       data.String("drink"),
			Location:    data.String("location"),
			Notes:       data.String("notes"),
		}
		if raw, ok := data.OptString("category"); ok {
			category, valid := orders.ParseCategory(raw)
			if !valid {
				return utils.EH.CreateUserError(e, fmt.Sprintf("Unknown category %q", raw))
			}
			req.Category = category
		}
		if recipient, ok := data.OptUser("for"); ok {
			req.RecipientID = recipient.ID.String()
			b.Display.Remember(recipient.ID, recipient.Username)
		}

		o, err := b.Lifecycle.Place(ctx, req)
		if err != nil {
			return utils.EH.Reject(e, err)
		}
		postOrder(ctx, b, e.ChannelID(), o)

		account, err := b.Ledger.Balance(ctx, req.RequesterID)
		if err != nil {
			return utils.EH.CreateSuccess(e, fmt.Sprintf("Order placed for %d karma.", o.KarmaCost))
		}
		return utils.EH.CreateSuccess(e, fmt.Sprintf(
			"Order placed for %d karma. You have %d left. A runner has %d minutes to pick it up.",
			o.KarmaCost, account.Balance, b.Lifecycle.Config().ClaimWindow))
	}
}

// postOrder shows a new order on the board and links the message to it.
func postOrder(ctx context.Context, b *runnerbot.Bot, fallback snowflake.ID, o *orders.Order) {
	view := orders.View{Order: *o, ClaimWindow: b.Lifecycle.Config().ClaimWindow}
	ref, err := b.Display.PostOrder(ctx, b.BoardChannel(fallback), view)
	if err != nil {
		slog.Error("Failed to post order",
			slog.String("type", "error"),
			slog.String("order_id", o.ID),
			slog.Any("error", err))
		return
	}
	if err = b.Lifecycle.AttachMessage(o.ID, ref); err != nil {
		slog.Warn("Order closed before its message was attached",
			slog.String("type", "order"),
			slog.String("order_id", o.ID),
			slog.Any("error", err))
	}
}

func OrderClaimHandler(b *runnerbot.Bot) handler.ComponentHandler {
	return func(e *handler.ComponentEvent) error {
		ctx, cancel := context.WithTimeout(context.Background(), config.CommandExecutionTimeout)
		defer cancel()

		user := e.User()
		b.Display.Remember(user.ID, user.Username)
		o, err := b.Lifecycle.Claim(ctx, e.Vars["id"], user.ID.String())
		if err != nil {
			return utils.EH.Reject(e, err)
		}
		rememberName(b, user.ID, user.Username)
		return utils.EH.CreateSuccess(e, fmt.Sprintf("You're on it! Bring %s to %s.", o.Drink, o.Location))
	}
}

func OrderCancelHandler(b *runnerbot.Bot) handler.ComponentHandler {
	return func(e *handler.ComponentEvent) error {
		ctx, cancel := context.WithTimeout(context.Background(), config.CommandExecutionTimeout)
		defer cancel()

		o, err := b.Lifecycle.Cancel(ctx, e.Vars["id"], e.User().ID.String())
		if err != nil {
			return utils.EH.Reject(e, err)
		}
		return utils.EH.CreateSuccess(e, fmt.Sprintf("Order canceled, %d karma refunded.", o.KarmaCost))
	}
}

func OrderDeliverHandler(b *runnerbot.Bot) handler.ComponentHandler {
	return func(e *handler.ComponentEvent) error {
		ctx, cancel := context.WithTimeout(context.Background(), config.CommandExecutionTimeout)
		defer cancel()

		o, err := b.Lifecycle.Deliver(ctx, e.Vars["id"], e.User().ID.String())
		if err != nil {
			return utils.EH.Reject(e, err)
		}
		msg := fmt.Sprintf("Delivered! You earned %d karma.", o.Award())
		if o.BonusMultiplier > 1 {
			msg = fmt.Sprintf("Delivered with a %dx bonus! You earned %d karma.", o.BonusMultiplier, o.Award())
		}
		return utils.EH.CreateSuccess(e, msg)
	}
}

// rememberName stores the user's name in the background.
func rememberName(b *runnerbot.Bot, userID snowflake.ID, name string) {
	b.Dispatcher.Go("user.name", func(ctx context.Context) error {
		return b.UserRepository.UpdateName(ctx, userID.String(), name)
	})
}

func intPtr(i int) *int {
	return &i
}
