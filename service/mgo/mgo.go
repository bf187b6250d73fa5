package mgo

import (
	"context"
	"time"

	"teamchat/logger"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Config struct {
	URI         string
	Database    string
	Username    string
	Password    string
	MaxPoolSize uint64
	MaxRetry    int
}

// Connect dials mongo with bounded retries and exponential backoff and
// returns the application database handle.
func Connect(ctx context.Context, cfg Config) (*mongo.Database, error) {
	if cfg.MaxRetry <= 0 {
		cfg.MaxRetry = 3
	}
	opts := options.Client().ApplyURI(cfg.URI)
	if cfg.MaxPoolSize > 0 {
		opts.SetMaxPoolSize(cfg.MaxPoolSize)
	}
	if cfg.Username != "" {
		opts.SetAuth(options.Credential{Username: cfg.Username, Password: cfg.Password})
	}

	backoff := 200 * time.Millisecond
	var lastErr error
	for attempt := 0; attempt < cfg.MaxRetry; attempt++ {
		cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		client, err := mongo.Connect(cctx, opts)
		if err == nil {
			err = client.Ping(cctx, nil)
			if err == nil {
				cancel()
				return client.Database(cfg.Database), nil
			}
			_ = client.Disconnect(cctx)
		}
		cancel()
		lastErr = err
		logger.Warnf("mongo connect attempt %d failed: %v", attempt+1, err)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < 5*time.Second {
			backoff *= 2
		}
	}
	return nil, errors.Wrap(lastErr, "mongo connect")
}
