package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

var ErrMissingURI = errors.New("mongo uri is empty")

type MongoConfig struct {
	ServerSelectionTimeout time.Duration
	MaxPoolSize            uint64
}

func DefaultMongoConfig() MongoConfig {
	return MongoConfig{
		ServerSelectionTimeout: 15 * time.Second,
		MaxPoolSize:            25,
	}
}

func OpenMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	return OpenMongoWithConfig(ctx, uri, DefaultMongoConfig())
}

func OpenMongoWithConfig(ctx context.Context, uri string, cfg MongoConfig) (*mongo.Client, error) {
	if uri == "" {
		return nil, ErrMissingURI
	}
	if cfg.ServerSelectionTimeout <= 0 {
		cfg.ServerSelectionTimeout = 15 * time.Second
	}
	if cfg.MaxPoolSize == 0 {
		cfg.MaxPoolSize = 25
	}

	opts := options.Client().
		ApplyURI(uri).
		SetServerSelectionTimeout(cfg.ServerSelectionTimeout).
		SetMaxPoolSize(cfg.MaxPoolSize)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ServerSelectionTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	return client, nil
}
