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

// VirtualIDRepository stores pseudonyms. The unique (app_id, system_id)
// index is what keeps concurrent GetOrCreate calls from minting two.
type VirtualIDRepository struct {
	coll *mongo.Collection
}

var _ domain.VirtualIDRepository = (*VirtualIDRepository)(nil)

func NewVirtualIDRepository(ctx context.Context, db *mongo.Database) (*VirtualIDRepository, error) {
	repo := &VirtualIDRepository{coll: db.Collection(VirtualIdentityCollection)}

	err := createIndexes(ctx, repo.coll, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "app_id", Value: 1}, {Key: "system_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("app_system_unique"),
		},
		{Keys: bson.D{{Key: "system_id", Value: 1}}},
	})
	if err != nil {
		return nil, err
	}

	return repo, nil
}

func (r *VirtualIDRepository) find(ctx context.Context, filter bson.M) (*domain.VirtualIdentity, error) {
	var vid domain.VirtualIdentity
	if err := r.coll.FindOne(ctx, filter).Decode(&vid); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, serrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find virtual identity: %w", err)
	}
	return &vid, nil
}

func (r *VirtualIDRepository) FindByPair(ctx context.Context, appID, systemID string) (*domain.VirtualIdentity, error) {
	return r.find(ctx, bson.M{"app_id": appID, "system_id": systemID})
}

func (r *VirtualIDRepository) Get(ctx context.Context, virtualID string) (*domain.VirtualIdentity, error) {
	return r.find(ctx, bson.M{"_id": virtualID})
}

func (r *VirtualIDRepository) Exists(ctx context.Context, virtualID string) (bool, error) {
	n, err := r.coll.CountDocuments(ctx, bson.M{"_id": virtualID}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("failed to check virtual identity: %w", err)
	}
	return n > 0, nil
}

func (r *VirtualIDRepository) Insert(ctx context.Context, vid *domain.VirtualIdentity) error {
	if _, err := r.coll.InsertOne(ctx, vid); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("virtual identity: %w", serrors.ErrConflict)
		}
		return fmt.Errorf("failed to insert virtual identity: %w", err)
	}
	return nil
}

func (r *VirtualIDRepository) list(ctx context.Context, filter bson.M) ([]string, error) {
	cursor, err := r.coll.Find(ctx, filter, options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return nil, fmt.Errorf("failed to list virtual identities: %w", err)
	}
	return collectIDs(ctx, cursor, "_id")
}

func (r *VirtualIDRepository) ListBySystemID(ctx context.Context, systemID string) ([]string, error) {
	return r.list(ctx, bson.M{"system_id": systemID})
}

func (r *VirtualIDRepository) ListByAppID(ctx context.Context, appID string) ([]string, error) {
	return r.list(ctx, bson.M{"app_id": appID})
}

func (r *VirtualIDRepository) CountBySystemID(ctx context.Context, systemID string) (int64, error) {
	return r.coll.CountDocuments(ctx, bson.M{"system_id": systemID})
}

func (r *VirtualIDRepository) CountByAppID(ctx context.Context, appID string) (int64, error) {
	return r.coll.CountDocuments(ctx, bson.M{"app_id": appID})
}

func (r *VirtualIDRepository) DeleteBySystemID(ctx context.Context, systemID string) (int64, error) {
	res, err := r.coll.DeleteMany(ctx, bson.M{"system_id": systemID})
	if err != nil {
		return 0, fmt.Errorf("failed to delete virtual identities: %w", err)
	}
	return res.DeletedCount, nil
}

func (r *VirtualIDRepository) DeleteByAppID(ctx context.Context, appID string) (int64, error) {
	res, err := r.coll.DeleteMany(ctx, bson.M{"app_id": appID})
	if err != nil {
		return 0, fmt.Errorf("failed to delete virtual identities: %w", err)
	}
	return res.DeletedCount, nil
}
