package mongodb

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"go.pilab.hu/vident/domain"
	serrors "go.pilab.hu/vident/errors"
)

// ApplicationRepository stores applications registered by developers.
type ApplicationRepository struct {
	coll *mongo.Collection
}

var _ domain.ApplicationRepository = (*ApplicationRepository)(nil)

func NewApplicationRepository(ctx context.Context, db *mongo.Database) (*ApplicationRepository, error) {
	repo := &ApplicationRepository{coll: db.Collection(ApplicationsCollection)}

	err := createIndexes(ctx, repo.coll, []mongo.IndexModel{
		{Keys: bson.D{{Key: "developer_id", Value: 1}}},
	})
	if err != nil {
		return nil, err
	}

	return repo, nil
}

func (r *ApplicationRepository) Create(ctx context.Context, app *domain.Application) error {
	if _, err := r.coll.InsertOne(ctx, app); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("application: %w", serrors.ErrConflict)
		}
		return fmt.Errorf("failed to create application: %w", err)
	}
	return nil
}

func (r *ApplicationRepository) Get(ctx context.Context, appID string) (*domain.Application, error) {
	var app domain.Application
	if err := r.coll.FindOne(ctx, bson.M{"_id": appID}).Decode(&app); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, serrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get application: %w", err)
	}
	return &app, nil
}

func (r *ApplicationRepository) Exists(ctx context.Context, appID string) (bool, error) {
	n, err := r.coll.CountDocuments(ctx, bson.M{"_id": appID}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("failed to check application: %w", err)
	}
	return n > 0, nil
}

func (r *ApplicationRepository) OwnerOf(ctx context.Context, appID string) (string, error) {
	opts := options.FindOne().SetProjection(bson.M{"developer_id": 1})

	var app struct {
		DeveloperID string `bson:"developer_id"`
	}
	if err := r.coll.FindOne(ctx, bson.M{"_id": appID}, opts).Decode(&app); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return "", serrors.ErrNotFound
		}
		return "", fmt.Errorf("failed to get application owner: %w", err)
	}
	return app.DeveloperID, nil
}

func (r *ApplicationRepository) ListByDeveloper(ctx context.Context, developerID string) ([]*domain.Application, error) {
	cursor, err := r.coll.Find(ctx, bson.M{"developer_id": developerID}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to list applications: %w", err)
	}

	apps := []*domain.Application{}
	if err := cursor.All(ctx, &apps); err != nil {
		return nil, fmt.Errorf("failed to decode applications: %w", err)
	}
	return apps, nil
}

func (r *ApplicationRepository) UpdateSecret(ctx context.Context, appID, secretHash string) error {
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": appID}, bson.M{"$set": bson.M{"secret_hash": secretHash}})
	if err != nil {
		return fmt.Errorf("failed to update application secret: %w", err)
	}
	if res.MatchedCount == 0 {
		return serrors.ErrNotFound
	}
	return nil
}

func (r *ApplicationRepository) Delete(ctx context.Context, appID string) (bool, error) {
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": appID})
	if err != nil {
		return false, fmt.Errorf("failed to delete application: %w", err)
	}
	return res.DeletedCount > 0, nil
}
