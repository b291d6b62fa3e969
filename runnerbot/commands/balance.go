package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/handler"
	"github.com/disgoorg/karma-runner/internal/domain/karma"
	"github.com/disgoorg/karma-runner/runnerbot"
	"github.com/disgoorg/karma-runner/runnerbot/config"
	"github.com/disgoorg/karma-runner/runnerbot/utils"
)

var Balance = discord.SlashCommandCreate{
	Name:        "balance",
	Description: "💰 View your karma and rank",
	Options: []discord.ApplicationCommandOption{
		discord.ApplicationCommandOptionUser{
			Name:        "user",
			Description: "Whose karma to show",
		},
	},
}

func BalanceHandler(b *runnerbot.Bot) handler.CommandHandler {
	return func(e *handler.CommandEvent) error {
		ctx, cancel := context.WithTimeout(context.Background(), config.CommandExecutionTimeout)
		defer cancel()

		target := e.User()
		if u, ok := e.SlashCommandInteractionData().OptUser("user"); ok {
			target = u
		}
		b.Display.Remember(target.ID, target.Username)

		account, err := b.Ledger.Balance(ctx, target.ID.String())
		if err != nil {
			return utils.EH.Reject(e, err)
		}

		now := time.Now()
		return e.CreateMessage(discord.MessageCreate{
			Embeds: []discord.Embed{{
				Title:       "💰 " + target.Username,
				Description: balanceDescription(account),
				Color:       config.ClaimedColor,
				Footer: &discord.EmbedFooter{
					Text: fmt.Sprintf("Requested by %s", e.User().Username),
				},
				Timestamp: &now,
			}},
		})
	}
}

func balanceDescription(account karma.Account) string {
	var sb strings.Builder
	sb.WriteString("```ansi\n")
	fmt.Fprintf(&sb, "\x1b[1;36mKarma:\x1b[0m %s\n", utils.FormatNumber(account.Balance))
	fmt.Fprintf(&sb, "\x1b[1;35mRank:\x1b[0m  %s\n", account.Title)
	if title, threshold, ok := karma.NextRank(account.Balance); ok {
		fmt.Fprintf(&sb, "\n%s\n\x1b[0;37m%d more to reach %s\x1b[0m\n",
			progressBar(account.Balance, threshold), threshold-account.Balance, title)
	}
	sb.WriteString("```")
	return sb.String()
}

func progressBar(balance, threshold int64) string {
	const barLength = 10

	progress := 0.0
	if threshold > 0 && balance > 0 {
		progress = min(float64(balance)/float64(threshold), 1)
	}
	filled := int(progress * barLength)
	return "[" + strings.Repeat("■", filled) + strings.Repeat("□", barLength-filled) + "]"
}
