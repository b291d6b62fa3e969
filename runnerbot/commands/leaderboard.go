package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/handler"
	"github.com/disgoorg/karma-runner/internal/domain/karma"
	"github.com/disgoorg/karma-runner/runnerbot"
	"github.com/disgoorg/karma-runner/runnerbot/config"
	"github.com/disgoorg/karma-runner/runnerbot/utils"
	"github.com/disgoorg/paginator"
)

var Leaderboard = discord.SlashCommandCreate{
	Name:        "leaderboard",
	Description: "🏆 Top karma holders",
}

func LeaderboardHandler(b *runnerbot.Bot) handler.CommandHandler {
	return func(e *handler.CommandEvent) error {
		ctx, cancel := context.WithTimeout(context.Background(), config.CommandExecutionTimeout)
		defer cancel()

		board, err := b.Ledger.Leaderboard(ctx, config.LeaderboardSize)
		if err != nil {
			return utils.EH.Reject(e, err)
		}
		if len(board) == 0 {
			return utils.EH.CreateInfoEmbed(e, "🏆 Leaderboard", "Nobody has any karma yet.")
		}

		names := make([]string, len(board))
		for i, acc := range board {
			names[i] = b.Display.Name(ctx, acc.UserID)
		}

		pages := (len(board) + config.LeaderboardPerPage - 1) / config.LeaderboardPerPage
		return b.Paginator.Create(e.Respond, paginator.Pages{
			ID:      e.ID().String(),
			Creator: e.User().ID,
			PageFunc: func(page int, embed *discord.EmbedBuilder) {
				start := page * config.LeaderboardPerPage
				end := min(start+config.LeaderboardPerPage, len(board))
				embed.SetTitle("🏆 Leaderboard").
					SetColor(config.ClaimedColor).
					SetDescription(leaderboardPage(board[start:end], names[start:end], start)).
					SetFooterText(fmt.Sprintf("Page %d/%d", page+1, pages))
			},
			Pages:      pages,
			ExpireMode: paginator.ExpireModeAfterLastUsage,
		}, false)
	}
}

func leaderboardPage(accounts []karma.Account, names []string, offset int) string {
	var sb strings.Builder
	sb.WriteString("```ansi\n")
	for i, acc := range accounts {
		fmt.Fprintf(&sb, "%2d. \x1b[32m%s\x1b[0m %s karma \x1b[0;37m(%s)\x1b[0m\n",
			offset+i+1, names[i], utils.FormatNumber(acc.Balance), acc.Title)
	}
	sb.WriteString("```")
	return sb.String()
}
