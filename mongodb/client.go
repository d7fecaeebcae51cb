package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.opentelemetry.io/contrib/instrumentation/go.mongodb.org/mongo-driver/mongo/otelmongo"

	"go.pilab.hu/vident/log"
)

const (
	connectTimeout = 10 * time.Second
	pingTimeout    = 5 * time.Second
)

// Connect opens an instrumented client, verifies the primary answers and
// returns the named database.
func Connect(ctx context.Context, uri, dbName string, logger log.Logger) (*mongo.Client, *mongo.Database, error) {
	clientOptions := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(connectTimeout).
		SetMonitor(otelmongo.NewMonitor())

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("failed to ping MongoDB primary: %w", err)
	}

	logger.Info(ctx, "MongoDB client connected", log.Fields{"database": dbName})

	return client, client.Database(dbName), nil
}

// Close disconnects the client, logging rather than returning the error.
func Close(ctx context.Context, client *mongo.Client, logger log.Logger) {
	if client == nil {
		return
	}
	if err := client.Disconnect(ctx); err != nil {
		logger.Error(ctx, "Error closing MongoDB connection", err)
	}
}
