package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/disgoorg/karma-runner/internal/gateways/database/repositories"
	"github.com/disgoorg/karma-runner/runnerbot/migration"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var dumpPath string

var migrateCMD = &cobra.Command{
	Use:   "migrate",
	Short: "import karma balances from the legacy Mongo users collection",
	Long: "Copies balances of users the bot has never seen from the [mongo] " +
		"collection, or from a mongodump file given with --file. Existing " +
		"balances are left untouched.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		db, err := openDatabase(ctx, cfg.DB)
		if err != nil {
			return err
		}
		defer db.Close()

		migrator := migration.NewMigrator(repositories.NewUserRepository(db.BunDB()))

		if dumpPath != "" {
			err = migrator.MigrateFromFile(ctx, dumpPath)
		} else {
			err = migrateFromMongo(ctx, migrator, cfg.Mongo.URI, cfg.Mongo.Database, cfg.Mongo.Collection)
		}
		if err != nil {
			slog.Error("Migration failed",
				slog.String("type", "db"),
				slog.Any("error", err))
			return err
		}

		stats := migrator.Stats()
		slog.Info("Migration completed successfully!",
			slog.String("type", "db"),
			slog.Int("imported", stats.Imported),
			slog.Int("errors", stats.Errors))
		return nil
	},
}

func migrateFromMongo(ctx context.Context, migrator *migration.Migrator, uri, database, collection string) error {
	if uri == "" || database == "" {
		return errors.New("mongo.uri and mongo.database are required without --file")
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return fmt.Errorf("failed to connect to mongo: %w", err)
	}
	defer func() {
		if err := client.Disconnect(context.WithoutCancel(ctx)); err != nil {
			slog.Warn("Failed to disconnect from mongo",
				slog.String("type", "db"),
				slog.Any("error", err))
		}
	}()
	if err = client.Ping(ctx, nil); err != nil {
		return fmt.Errorf("mongo ping failed: %w", err)
	}

	migrator.UseMongo(client, database, collection)
	return migrator.MigrateFromMongo(ctx)
}

func init() {
	migrateCMD.Flags().StringVar(&dumpPath, "file", "", "mongodump users.bson to import instead of the live collection")
	rootCmd.AddCommand(migrateCMD)
}
