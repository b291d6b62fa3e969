package migration

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

const maxDocumentSize = 16 * 1024 * 1024

// BalanceImporter stores a legacy balance unless the user already has one.
type BalanceImporter interface {
	ImportBalance(ctx context.Context, userID, name string, balance int64) (bool, error)
}

// Migrator copies karma balances from the legacy Mongo users collection, or
// from a mongodump of it, into Postgres. Users already known to the ledger
// keep their current balance.
type Migrator struct {
	target     BalanceImporter
	mongoDB    *mongo.Database
	collection string
	stats      MigrationStats
}

func NewMigrator(target BalanceImporter) *Migrator {
	return &Migrator{target: target, collection: "users"}
}

func (m *Migrator) UseMongo(client *mongo.Client, dbName, collection string) {
	if client != nil && dbName != "" {
		m.mongoDB = client.Database(dbName)
	}
	if collection != "" {
		m.collection = collection
	}
}

func (m *Migrator) Stats() MigrationStats {
	return m.stats
}

// MigrateFromMongo imports every user of the configured collection.
func (m *Migrator) MigrateFromMongo(ctx context.Context) error {
	if m.mongoDB == nil {
		return errors.New("mongoDB not configured; call UseMongo first")
	}
	m.begin(m.mongoDB.Name() + "." + m.collection)

	cur, err := m.mongoDB.Collection(m.collection).Find(ctx, bson.D{})
	if err != nil {
		return fmt.Errorf("failed to query users: %w", err)
	}
	defer cur.Close(ctx)

	seen := make(map[string]struct{})
	for cur.Next(ctx) {
		var u LegacyUser
		if err := cur.Decode(&u); err != nil {
			m.stats.Errors++
			slog.Warn("Failed to decode legacy user",
				slog.String("type", "db"),
				slog.Any("error", err))
			continue
		}
		if err := m.importUser(ctx, u, seen); err != nil {
			return err
		}
	}
	if err := cur.Err(); err != nil {
		return fmt.Errorf("users cursor failed: %w", err)
	}

	m.finish()
	return nil
}

// MigrateFromFile imports users from a mongodump BSON file.
func (m *Migrator) MigrateFromFile(ctx context.Context, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open BSON file %s: %w", path, err)
	}
	defer file.Close()
	m.begin(path)

	seen := make(map[string]struct{})
	err = readDocuments(file, func(doc []byte) error {
		var u LegacyUser
		if err := bson.Unmarshal(doc, &u); err != nil {
			m.stats.Errors++
			slog.Warn("Failed to decode legacy user",
				slog.String("type", "db"),
				slog.Int("document", m.stats.Read+m.stats.Errors),
				slog.Any("error", err))
			return nil
		}
		return m.importUser(ctx, u, seen)
	})
	if err != nil {
		return err
	}

	m.finish()
	return nil
}

func (m *Migrator) importUser(ctx context.Context, u LegacyUser, seen map[string]struct{}) error {
	m.stats.Read++
	if _, err := snowflake.Parse(u.DiscordID); err != nil {
		m.stats.Skipped++
		return nil
	}
	if _, dup := seen[u.DiscordID]; dup {
		m.stats.Duplicates++
		return nil
	}
	seen[u.DiscordID] = struct{}{}

	balance := max(u.Karma, 0)
	inserted, err := m.target.ImportBalance(ctx, u.DiscordID, u.Username, balance)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		m.stats.Errors++
		slog.Error("Failed to import balance",
			slog.String("type", "error"),
			slog.String("user_id", u.DiscordID),
			slog.Any("error", err))
		return nil
	}
	if inserted {
		m.stats.Imported++
	} else {
		m.stats.Existing++
	}

	if m.stats.Read%1000 == 0 {
		slog.Info("Import progress",
			slog.String("type", "db"),
			slog.Int("read", m.stats.Read),
			slog.Int("imported", m.stats.Imported))
	}
	return nil
}

func (m *Migrator) begin(source string) {
	m.stats = MigrationStats{StartTime: time.Now()}
	slog.Info("Starting karma import",
		slog.String("type", "db"),
		slog.String("source", source))
}

func (m *Migrator) finish() {
	m.stats.EndTime = time.Now()
	slog.Info("Karma import completed",
		slog.String("type", "db"),
		slog.Duration("took", m.stats.EndTime.Sub(m.stats.StartTime)),
		slog.Int("read", m.stats.Read),
		slog.Int("imported", m.stats.Imported),
		slog.Int("existing", m.stats.Existing),
		slog.Int("duplicates", m.stats.Duplicates),
		slog.Int("skipped", m.stats.Skipped),
		slog.Int("errors", m.stats.Errors))
}

// readDocuments splits a mongodump stream into length-prefixed documents.
func readDocuments(r io.Reader, fn func(doc []byte) error) error {
	reader := bufio.NewReader(r)
	offset := int64(0)
	for {
		lengthBytes := make([]byte, 4)
		if _, err := io.ReadFull(reader, lengthBytes); err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("failed to read document length at byte %d: %w", offset, err)
		}

		length := int32(binary.LittleEndian.Uint32(lengthBytes))
		if length <= 4 || length > maxDocumentSize {
			return fmt.Errorf("invalid document length %d at byte %d", length, offset)
		}

		doc := make([]byte, length)
		copy(doc, lengthBytes)
		if _, err := io.ReadFull(reader, doc[4:]); err != nil {
			return fmt.Errorf("failed to read document at byte %d: %w", offset, err)
		}
		offset += int64(length)

		if err := fn(doc); err != nil {
			return err
		}
	}
}
