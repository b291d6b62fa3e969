package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/handler"
	"github.com/disgoorg/karma-runner/internal/domain/karma"
	"github.com/disgoorg/karma-runner/runnerbot"
	"github.com/disgoorg/karma-runner/runnerbot/config"
	"github.com/disgoorg/karma-runner/runnerbot/utils"
)

var KarmaCode = discord.SlashCommandCreate{
	Name:        "karmacode",
	Description: "🎟️ Create a redemption code (admin)",
	Options: []discord.ApplicationCommandOption{
		discord.ApplicationCommandOptionString{
			Name:        "code",
			Description: "Code users will type",
			Required:    true,
			MaxLength:   intPtr(32),
		},
		discord.ApplicationCommandOptionInt{
			Name:        "value",
			Description: "Karma granted per redemption",
			Required:    true,
			MinValue:    intPtr(1),
		},
		discord.ApplicationCommandOptionInt{
			Name:        "max_redemptions",
			Description: "How many users can redeem it",
			Required:    true,
			MinValue:    intPtr(1),
		},
		discord.ApplicationCommandOptionInt{
			Name:        "expires_in_hours",
			Description: "Hours until the code expires, never when omitted",
			MinValue:    intPtr(1),
		},
	},
}

func KarmaCodeHandler(b *runnerbot.Bot) handler.CommandHandler {
	return func(e *handler.CommandEvent) error {
		if !b.Cfg.IsAdmin(e.User().ID) {
			return utils.EH.CreatePermissionError(e, "create karma codes")
		}

		ctx, cancel := context.WithTimeout(context.Background(), config.CommandExecutionTimeout)
		defer cancel()

		data := e.SlashCommandInteractionData()
		code := karma.RedemptionCode{
			Code:           data.String("code"),
			Value:          int64(data.Int("value")),
			MaxRedemptions: data.Int("max_redemptions"),
		}
		if hours, ok := data.OptInt("expires_in_hours"); ok {
			code.ExpiresAt = time.Now().Add(time.Duration(hours) * time.Hour)
		}

		if err := b.Ledger.CreateCode(ctx, code); err != nil {
			return utils.EH.Reject(e, err)
		}

		msg := fmt.Sprintf("Code `%s` grants %d karma to up to %d users.",
			karma.NormalizeCode(code.Code), code.Value, code.MaxRedemptions)
		if !code.ExpiresAt.IsZero() {
			msg += fmt.Sprintf(" Expires <t:%d:R>.", code.ExpiresAt.Unix())
		}
		return utils.EH.CreateSuccess(e, msg)
	}
}
