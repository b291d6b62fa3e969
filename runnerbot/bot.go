package runnerbot

import (
	"context"
	"log/slog"
	"time"

	"github.com/disgoorg/disgo"
	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/cache"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/disgo/gateway"
	"github.com/disgoorg/karma-runner/internal/domain/dispatch"
	"github.com/disgoorg/karma-runner/internal/domain/karma"
	"github.com/disgoorg/karma-runner/internal/domain/lifecycle"
	"github.com/disgoorg/karma-runner/internal/domain/orders"
	"github.com/disgoorg/karma-runner/internal/domain/runners"
	"github.com/disgoorg/karma-runner/internal/domain/timers"
	"github.com/disgoorg/karma-runner/internal/gateways/database"
	"github.com/disgoorg/karma-runner/internal/gateways/database/repositories"
	"github.com/disgoorg/karma-runner/runnerbot/config"
	"github.com/disgoorg/karma-runner/runnerbot/metrics"
	"github.com/disgoorg/karma-runner/runnerbot/services"
	"github.com/disgoorg/karma-runner/runnerbot/utils"
	"github.com/disgoorg/paginator"
	"github.com/disgoorg/snowflake/v2"
)

func New(cfg Config, version string, commit string) *Bot {
	return &Bot{
		Cfg:       cfg,
		Paginator: paginator.New(),
		Version:   version,
		Commit:    commit,
		Processes: utils.NewBackgroundProcessManager(),
	}
}

type Bot struct {
	Cfg       Config
	Client    bot.Client
	Paginator *paginator.Manager
	Version   string
	Commit    string
	DB        *database.DB

	UserRepository  *repositories.UserRepository
	OrderRepository *repositories.OrderRepository
	CodeRepository  *repositories.CodeRepository
	OfferRepository *repositories.OfferRepository

	Scheduler  *timers.Scheduler
	Dispatcher *dispatch.Dispatcher
	Store      *orders.Store
	Ledger     *karma.Ledger
	Matcher    *runners.Matcher
	Lifecycle  *lifecycle.Lifecycle

	Display   *services.OrderDisplay
	Archiver  *services.LedgerArchiver
	Metrics   *metrics.Registry
	Processes *utils.BackgroundProcessManager
}

// SetupCore builds the marketplace core on top of the database. It must run
// before SetupBot.
func (b *Bot) SetupCore() {
	bunDB := b.DB.BunDB()
	b.UserRepository = repositories.NewUserRepository(bunDB)
	b.OrderRepository = repositories.NewOrderRepository(bunDB)
	b.CodeRepository = repositories.NewCodeRepository(bunDB)
	b.OfferRepository = repositories.NewOfferRepository(bunDB)

	lcCfg := b.Cfg.Orders.Lifecycle()
	b.Scheduler = timers.NewScheduler()
	b.Dispatcher = dispatch.New(config.DispatchConcurrency, config.DispatchTimeout)
	b.Store = orders.NewStore()
	b.Ledger = karma.NewLedger(b.UserRepository, b.CodeRepository, b.Cfg.Orders.StartingBalance)
	b.Display = services.NewOrderDisplay(config.UserCacheSize)
	b.Matcher = runners.NewMatcher(b.Scheduler, b.OfferRepository, b.Display, b.Dispatcher, lcCfg.TickInterval)
	b.Lifecycle = lifecycle.New(lcCfg, b.Store, b.Ledger, b.Matcher, b.Scheduler, b.OrderRepository, b.Display, b.Dispatcher)

	b.Metrics = metrics.NewRegistry(
		func() float64 { return float64(b.Store.Len()) },
		func() float64 { return float64(len(b.Matcher.OpenOffers())) },
	)
	b.Lifecycle.SetRecorder(b.Metrics)
	b.Scheduler.SetObserver(b.Metrics.ObserveTimer)
}

func (b *Bot) SetupBot(listeners ...bot.EventListener) error {
	client, err := disgo.New(b.Cfg.Bot.Token,
		bot.WithGatewayConfigOpts(gateway.WithIntents(gateway.IntentGuilds)),
		bot.WithCacheConfigOpts(cache.WithCaches(cache.FlagGuilds)),
		bot.WithEventListeners(b.Paginator),
		bot.WithEventListeners(listeners...),
	)
	if err != nil {
		return err
	}

	b.Client = client
	b.Display.SetClient(client.Rest())
	return nil
}

// BoardChannel is where order and offer messages are posted.
func (b *Bot) BoardChannel(fallback snowflake.ID) snowflake.ID {
	if b.Cfg.Bot.OrderChannel != 0 {
		return b.Cfg.Bot.OrderChannel
	}
	return fallback
}

func (b *Bot) OnReady(_ *events.Ready) {
	slog.Info("Karma runner is now ready",
		slog.String("type", "sys"),
		slog.String("version", b.Version),
		slog.String("commit", b.Commit))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := b.Client.SetPresence(ctx,
		gateway.WithWatchingActivity("the coffee queue"),
		gateway.WithOnlineStatus(discord.OnlineStatusOnline)); err != nil {
		slog.Error("Failed to set presence",
			slog.String("type", "error"),
			slog.Any("error", err))
	}
}

// Shutdown stops timers and background work, then drains pending writes.
func (b *Bot) Shutdown(timeout time.Duration) {
	if b.Processes != nil {
		_ = b.Processes.Shutdown(timeout)
	}
	if b.Scheduler != nil {
		b.Scheduler.Shutdown()
	}
	if b.Dispatcher != nil {
		b.Dispatcher.Close(timeout)
	}
	if b.Ledger != nil {
		b.Ledger.Wait()
	}
}
