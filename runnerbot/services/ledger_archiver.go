package services

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/disgoorg/json"
	"github.com/disgoorg/karma-runner/internal/domain/orders"
)

// ClosedOrderSource lists orders that reached a terminal status.
type ClosedOrderSource interface {
	ListClosedSince(ctx context.Context, since time.Time) ([]orders.Order, error)
}

// ObjectPutter is satisfied by *s3.Client.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type ArchiverConfig struct {
	Key      string
	Secret   string
	Region   string
	Bucket   string
	Endpoint string
	Prefix   string
}

// LedgerArchiver exports closed orders as JSON lines to an S3 compatible
// bucket. Each run covers the orders closed since the previous run.
type LedgerArchiver struct {
	source ClosedOrderSource
	client ObjectPutter
	bucket string
	prefix string

	mu    sync.Mutex
	since time.Time
	now   func() time.Time
}

// NewS3Client builds an S3 client for AWS or any S3 compatible endpoint.
func NewS3Client(ctx context.Context, cfg ArchiverConfig) (*s3.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.Key, cfg.Secret, "")),
		awsconfig.WithRegion(cfg.Region),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to load archive config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

func NewLedgerArchiver(source ClosedOrderSource, client ObjectPutter, bucket, prefix string, since time.Time) *LedgerArchiver {
	return &LedgerArchiver{
		source: source,
		client: client,
		bucket: bucket,
		prefix: prefix,
		since:  since,
		now:    time.Now,
	}
}

type archivedOrder struct {
	ID              string     `json:"id"`
	RequesterID     string     `json:"requester_id"`
	RecipientID     string     `json:"recipient_id"`
	RunnerID        string     `json:"runner_id,omitempty"`
	Drink           string     `json:"drink"`
	Category        string     `json:"category"`
	Location        string     `json:"location"`
	Notes           string     `json:"notes,omitempty"`
	KarmaCost       int64      `json:"karma_cost"`
	Status          string     `json:"status"`
	BonusMultiplier int64      `json:"bonus_multiplier,omitempty"`
	Award           int64      `json:"award"`
	InitiatedBy     string     `json:"initiated_by"`
	OfferID         string     `json:"offer_id,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	ClaimedAt       *time.Time `json:"claimed_at,omitempty"`
	DeliveredAt     *time.Time `json:"delivered_at,omitempty"`
}

func toArchived(o orders.Order) archivedOrder {
	a := archivedOrder{
		ID:              o.ID,
		RequesterID:     o.RequesterID,
		RecipientID:     o.RecipientID,
		RunnerID:        o.RunnerID,
		Drink:           o.Drink,
		Category:        string(o.Category),
		Location:        o.Location,
		Notes:           o.Notes,
		KarmaCost:       o.KarmaCost,
		Status:          string(o.Status),
		BonusMultiplier: o.BonusMultiplier,
		InitiatedBy:     string(o.InitiatedBy),
		OfferID:         o.OfferID,
		CreatedAt:       o.CreatedAt,
	}
	if o.Status == orders.StatusDelivered {
		a.Award = o.Award()
	}
	if !o.ClaimedAt.IsZero() {
		claimed := o.ClaimedAt
		a.ClaimedAt = &claimed
	}
	if !o.DeliveredAt.IsZero() {
		delivered := o.DeliveredAt
		a.DeliveredAt = &delivered
	}
	return a
}

// Export uploads one object with every order closed since the last export
// and returns its key. Nothing is uploaded when there is nothing new.
func (a *LedgerArchiver) Export(ctx context.Context) (string, int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	until := a.now().UTC()
	closed, err := a.source.ListClosedSince(ctx, a.since)
	if err != nil {
		return "", 0, fmt.Errorf("failed to list closed orders: %w", err)
	}
	if len(closed) == 0 {
		a.since = until
		return "", 0, nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, o := range closed {
		if err = enc.Encode(toArchived(o)); err != nil {
			return "", 0, fmt.Errorf("failed to encode order %s: %w", o.ID, err)
		}
	}

	key := path.Join(a.prefix, until.Format("2006/01/02"), fmt.Sprintf("orders-%d.jsonl", until.Unix()))
	if _, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/x-ndjson"),
	}); err != nil {
		return "", 0, fmt.Errorf("failed to upload archive %s: %w", key, err)
	}

	a.since = until
	slog.Info("Archived closed orders",
		slog.String("type", "sys"),
		slog.String("bucket", a.bucket),
		slog.String("key", key),
		slog.Int("orders", len(closed)))
	return key, len(closed), nil
}

// Run exports every interval until ctx is done.
func (a *LedgerArchiver) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, _, err := a.Export(ctx); err != nil {
				slog.Error("Order archive failed",
					slog.String("type", "error"),
					slog.Any("error", err))
			}
		case <-ctx.Done():
			return
		}
	}
}
