package commands

import (
	"context"
	"fmt"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/handler"
	"github.com/disgoorg/karma-runner/internal/domain/karma"
	"github.com/disgoorg/karma-runner/runnerbot"
	"github.com/disgoorg/karma-runner/runnerbot/config"
	"github.com/disgoorg/karma-runner/runnerbot/utils"
)

var Redeem = discord.SlashCommandCreate{
	Name:        "redeem",
	Description: "🎟️ Redeem a karma code",
	Options: []discord.ApplicationCommandOption{
		discord.ApplicationCommandOptionString{
			Name:        "code",
			Description: "The code to redeem",
			Required:    true,
		},
	},
}

func RedeemHandler(b *runnerbot.Bot) handler.CommandHandler {
	return func(e *handler.CommandEvent) error {
		ctx, cancel := context.WithTimeout(context.Background(), config.CommandExecutionTimeout)
		defer cancel()

		code := e.SlashCommandInteractionData().String("code")
		result, err := b.Ledger.Redeem(ctx, code, e.User().ID.String())
		if err != nil {
			return utils.EH.Reject(e, err)
		}
		b.Metrics.Redeemed(string(result.Status))

		if result.Status == karma.RedeemSuccess {
			return utils.EH.CreateSuccess(e, fmt.Sprintf("Redeemed %d karma. Your balance is now %d.",
				result.Points, result.Balance))
		}
		return utils.EH.CreateClassifiedError(e, utils.BusinessLogicError, RedeemMessage(result.Status))
	}
}

// RedeemMessage explains a failed redemption.
func RedeemMessage(status karma.RedeemStatus) string {
	switch status {
	case karma.RedeemExpired:
		return "That code has expired."
	case karma.RedeemAlreadyUsed:
		return "You already redeemed that code."
	case karma.RedeemLimitReached:
		return "That code has been fully redeemed."
	case karma.RedeemNotFound:
		return "That code doesn't exist."
	default:
		return "That code could not be redeemed."
	}
}
