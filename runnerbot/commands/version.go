package commands

import (
	"fmt"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/handler"
	"github.com/disgoorg/karma-runner/runnerbot"
)

var Version = discord.SlashCommandCreate{
	Name:        "version",
	Description: "version command",
}

func VersionHandler(b *runnerbot.Bot) handler.CommandHandler {
	return func(e *handler.CommandEvent) error {
		if err := e.DeferCreateMessage(true); err != nil {
			return err
		}
		content := fmt.Sprintf("Version: %s\nCommit: %s\nActive orders: %d\nOpen offers: %d",
			b.Version, b.Commit, len(b.Lifecycle.Active()), len(b.Matcher.OpenOffers()))
		_, err := e.UpdateInteractionResponse(discord.MessageUpdate{Content: &content})
		return err
	}
}
