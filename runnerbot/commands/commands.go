package commands

import "github.com/disgoorg/disgo/discord"

var Commands = []discord.ApplicationCommandCreate{
	Order,
	Run,
	Balance,
	Leaderboard,
	Redeem,
	KarmaCode,
	Version,
}
