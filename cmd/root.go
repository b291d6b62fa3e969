package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/handler"
	"github.com/disgoorg/karma-runner/internal/gateways/database"
	"github.com/disgoorg/karma-runner/runnerbot"
	"github.com/disgoorg/karma-runner/runnerbot/api"
	"github.com/disgoorg/karma-runner/runnerbot/commands"
	"github.com/disgoorg/karma-runner/runnerbot/config"
	"github.com/disgoorg/karma-runner/runnerbot/handlers"
	"github.com/disgoorg/karma-runner/runnerbot/logger"
	"github.com/disgoorg/karma-runner/runnerbot/services"
	"github.com/disgoorg/karma-runner/runnerbot/utils"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var (
	version = "dev"
	commit  = "unknown"

	configPath   string
	syncCommands bool
)

var rootCmd = &cobra.Command{
	Use:           "karma-runner",
	Short:         "Discord bot for office drink runs paid in karma",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runBot,
}

func init() {
	addConfigFlag(rootCmd.PersistentFlags())
	rootCmd.Flags().BoolVar(&syncCommands, "sync-commands", false, "Whether to sync commands to discord")
}

func addConfigFlag(fs *pflag.FlagSet) {
	fs.StringVar(&configPath, "config", "config.toml", "path to config")
}

// Execute runs the CLI with the build metadata injected by main.
func Execute(v, c string) {
	version, commit = v, c
	rootCmd.Version = fmt.Sprintf("%s (%s)", version, commit)
	if err := rootCmd.Execute(); err != nil {
		slog.Error("Command failed",
			slog.String("type", "sys"),
			slog.Any("error", err))
		os.Exit(1)
	}
}

// loadConfig reads the config and installs the configured log handler.
func loadConfig() (*runnerbot.Config, error) {
	slog.SetDefault(slog.New(logger.NewHandler(os.Stdout, logger.Options{Level: slog.LevelInfo})))

	cfg, err := runnerbot.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(slog.New(logger.New(os.Stdout, cfg.Log.Format, logger.Options{
		Level:     cfg.Log.Level,
		AddSource: cfg.Log.AddSource,
		NoColor:   cfg.Log.NoColor,
	})))
	return cfg, nil
}

func openDatabase(ctx context.Context, cfg database.DBConfig) (*database.DB, error) {
	start := time.Now()
	db, err := database.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("database connection failed after %s: %w", time.Since(start), err)
	}
	if err = db.InitializeSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}
	slog.Info("Database ready",
		slog.String("type", "db"),
		slog.String("database", cfg.Database),
		slog.Duration("took", time.Since(start)))
	return db, nil
}

func runBot(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger.LogSystem("Starting karma runner",
		slog.String("version", version),
		slog.String("commit", commit))

	setupCtx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
	defer cancel()

	db, err := openDatabase(setupCtx, cfg.DB)
	if err != nil {
		return err
	}
	defer db.Close()

	b := runnerbot.New(*cfg, version, commit)
	b.DB = db
	b.SetupCore()

	h := handler.New()
	registerHandlers(h, b, handlers.NewLogger(b.Metrics))

	if err = b.SetupBot(h, bot.NewListenerFunc(b.OnReady)); err != nil {
		return fmt.Errorf("failed to setup bot: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
		defer cancel()
		b.Client.Close(ctx)
	}()

	if syncCommands {
		slog.Info("Syncing commands",
			slog.String("type", "sys"),
			slog.Any("guild_ids", cfg.Bot.DevGuilds))
		if err = handler.SyncCommands(b.Client, commands.Commands, cfg.Bot.DevGuilds); err != nil {
			slog.Error("Failed to sync commands",
				slog.String("type", "sys"),
				slog.Any("error", err))
		}
	}

	if err = startBackground(setupCtx, b); err != nil {
		return err
	}
	defer b.Shutdown(config.ShutdownTimeout)

	if err = b.Client.OpenGateway(setupCtx); err != nil {
		return fmt.Errorf("failed to open gateway: %w", err)
	}

	slog.Info("Bot is running. Press CTRL-C to exit.", slog.String("type", "sys"))
	s := make(chan os.Signal, 1)
	signal.Notify(s, syscall.SIGINT, syscall.SIGTERM)
	<-s
	slog.Info("Shutting down bot...", slog.String("type", "sys"))
	return nil
}

func registerHandlers(h *handler.Mux, b *runnerbot.Bot, l *handlers.Logger) {
	h.Command("/version", commands.VersionHandler(b))
	h.Command("/order", l.WrapWithLogging("order", commands.OrderHandler(b)))
	h.Command("/run", l.WrapWithLogging("run", commands.RunHandler(b)))
	h.Command("/balance", l.WrapWithLogging("balance", commands.BalanceHandler(b)))
	h.Command("/leaderboard", l.WrapWithLogging("leaderboard", commands.LeaderboardHandler(b)))
	h.Command("/redeem", l.WrapWithLogging("redeem", commands.RedeemHandler(b)))
	h.Command("/karmacode", l.WrapWithLogging("karmacode", commands.KarmaCodeHandler(b)))

	h.Component(utils.OrderClaimPrefix+"{id}", l.WrapComponentWithLogging("order-claim", commands.OrderClaimHandler(b)))
	h.Component(utils.OrderCancelPrefix+"{id}", l.WrapComponentWithLogging("order-cancel", commands.OrderCancelHandler(b)))
	h.Component(utils.OrderDeliverPrefix+"{id}", l.WrapComponentWithLogging("order-deliver", commands.OrderDeliverHandler(b)))
	h.Component(utils.OfferOrderPrefix+"{runner}/{offer}", l.WrapComponentWithLogging("offer-order", commands.OfferOrderHandler(b)))
	h.Component(utils.OfferWithdrawPrefix+"{runner}", l.WrapComponentWithLogging("offer-withdraw", commands.OfferWithdrawHandler(b)))
	h.Modal(utils.OfferModalPrefix+"{runner}/{offer}", l.WrapModalWithLogging("offer-modal", commands.OfferModalHandler(b)))
}

// startBackground launches the expiry sweep, the ledger archive and the HTTP
// API under the bot's process manager.
func startBackground(ctx context.Context, b *runnerbot.Bot) error {
	b.Processes.StartTicker("order-sweep", "Expires pending orders whose timers were lost",
		config.SweepInterval, func(ctx context.Context) error {
			b.Lifecycle.SweepExpired(ctx)
			return nil
		})

	if b.Cfg.Archive.Enabled {
		client, err := services.NewS3Client(ctx, services.ArchiverConfig{
			Key:      b.Cfg.Archive.Key,
			Secret:   b.Cfg.Archive.Secret,
			Region:   b.Cfg.Archive.Region,
			Bucket:   b.Cfg.Archive.Bucket,
			Endpoint: b.Cfg.Archive.Endpoint,
			Prefix:   b.Cfg.Archive.Prefix,
		})
		if err != nil {
			return err
		}
		b.Archiver = services.NewLedgerArchiver(b.OrderRepository, client,
			b.Cfg.Archive.Bucket, b.Cfg.Archive.Prefix, time.Now().Add(-config.ArchiveInterval))
		b.Processes.StartProcess("ledger-archive", "Exports closed orders to object storage", func(ctx context.Context) {
			b.Archiver.Run(ctx, config.ArchiveInterval)
		})
	}

	if b.Cfg.HTTP.Enabled {
		router := api.NewRouter(api.Deps{
			DB:      b.DB,
			Ledger:  b.Ledger,
			Orders:  b.Lifecycle,
			Names:   b.Display,
			Metrics: b.Metrics.Handler(),
		})
		srv := api.NewServer(b.Cfg.HTTP.Addr, router)
		b.Processes.StartProcess("http", "Serves health, metrics and read-only API", func(ctx context.Context) {
			if err := srv.Run(ctx); err != nil {
				logger.LogError("HTTP server stopped", err)
			}
		})
	}
	return nil
}
