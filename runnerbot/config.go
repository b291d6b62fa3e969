package runnerbot

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/disgoorg/karma-runner/internal/domain/karma"
	"github.com/disgoorg/karma-runner/internal/domain/lifecycle"
	"github.com/disgoorg/karma-runner/internal/gateways/database"
	"github.com/disgoorg/snowflake/v2"
	"github.com/pelletier/go-toml/v2"
)

func LoadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err = toml.NewDecoder(file).DisallowUnknownFields().Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.applyDefaults()
	if err = cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type Config struct {
	Log     LogConfig         `toml:"log"`
	Bot     BotConfig         `toml:"bot"`
	DB      database.DBConfig `toml:"db"`
	Orders  OrdersConfig      `toml:"orders"`
	HTTP    HTTPConfig        `toml:"http"`
	Archive ArchiveConfig     `toml:"archive"`
	Mongo   MongoConfig       `toml:"mongo"`
}

type BotConfig struct {
	DevGuilds []snowflake.ID `toml:"dev_guilds"`
	Token     string         `toml:"token"`
	// Admins may create redemption codes.
	Admins []snowflake.ID `toml:"admins"`
	// OrderChannel receives order and offer boards. Zero means the channel
	// the command was used in.
	OrderChannel snowflake.ID `toml:"order_channel"`
}

type LogConfig struct {
	Level     slog.Level `toml:"level"`
	Format    string     `toml:"format"`
	AddSource bool       `toml:"add_source"`
	NoColor   bool       `toml:"no_color"`
}

type OrdersConfig struct {
	ClaimWindow     int   `toml:"claim_window"`
	TickSeconds     int   `toml:"tick_seconds"`
	StartingBalance int64 `toml:"starting_balance"`
}

func (c OrdersConfig) Lifecycle() lifecycle.Config {
	return lifecycle.Config{
		ClaimWindow:  c.ClaimWindow,
		TickInterval: time.Duration(c.TickSeconds) * time.Second,
	}
}

type HTTPConfig struct {
	Enabled bool   `toml:"enabled"`
	Addr    string `toml:"addr"`
}

// ArchiveConfig points at an S3 compatible bucket (DigitalOcean Spaces works)
// that receives a JSON lines export of closed orders.
type ArchiveConfig struct {
	Enabled  bool   `toml:"enabled"`
	Key      string `toml:"key"`
	Secret   string `toml:"secret"`
	Region   string `toml:"region"`
	Bucket   string `toml:"bucket"`
	Endpoint string `toml:"endpoint"`
	Prefix   string `toml:"prefix"`
}

// MongoConfig is only read by the migrate command.
type MongoConfig struct {
	URI        string `toml:"uri"`
	Database   string `toml:"database"`
	Collection string `toml:"collection"`
}

func (c *Config) applyDefaults() {
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Orders.ClaimWindow <= 0 {
		c.Orders.ClaimWindow = lifecycle.DefaultClaimWindow
	}
	if c.Orders.TickSeconds <= 0 {
		c.Orders.TickSeconds = int(lifecycle.DefaultTickInterval / time.Second)
	}
	if c.Orders.StartingBalance <= 0 {
		c.Orders.StartingBalance = karma.DefaultStartingBalance
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
	if c.Archive.Prefix == "" {
		c.Archive.Prefix = "orders"
	}
	if c.Mongo.Collection == "" {
		c.Mongo.Collection = "users"
	}
	if c.DB.Port == 0 {
		c.DB.Port = 5432
	}
}

func (c *Config) Validate() error {
	var errs []error
	if c.Bot.Token == "" {
		errs = append(errs, errors.New("bot.token is required"))
	}
	if c.DB.Host == "" || c.DB.Database == "" {
		errs = append(errs, errors.New("db.host and db.database are required"))
	}
	if c.Archive.Enabled && c.Archive.Bucket == "" {
		errs = append(errs, errors.New("archive.bucket is required when archive is enabled"))
	}
	return errors.Join(errs...)
}

// IsAdmin reports whether userID may use admin commands.
func (c *Config) IsAdmin(userID snowflake.ID) bool {
	for _, id := range c.Bot.Admins {
		if id == userID {
			return true
		}
	}
	return false
}
