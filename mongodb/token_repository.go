package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"go.pilab.hu/vident/domain"
	serrors "go.pilab.hu/vident/errors"
)

// TokenRepository stores token rows. The document _id is the access hash.
type TokenRepository struct {
	coll *mongo.Collection
}

var _ domain.TokenRepository = (*TokenRepository)(nil)

func NewTokenRepository(ctx context.Context, db *mongo.Database) (*TokenRepository, error) {
	repo := &TokenRepository{coll: db.Collection(TokensCollection)}

	err := createIndexes(ctx, repo.coll, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "refresh_hash", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "virtual_id", Value: 1}}},
		{Keys: bson.D{{Key: "refresh_expires_at", Value: 1}}},
	})
	if err != nil {
		return nil, err
	}

	return repo, nil
}

func (r *TokenRepository) Insert(ctx context.Context, token *domain.Token) error {
	if _, err := r.coll.InsertOne(ctx, token); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("token: %w", serrors.ErrConflict)
		}
		return fmt.Errorf("failed to store token: %w", err)
	}
	return nil
}

func (r *TokenRepository) HashTaken(ctx context.Context, accessHash, refreshHash string) (bool, error) {
	filter := bson.M{"$or": bson.A{
		bson.M{"_id": accessHash},
		bson.M{"refresh_hash": refreshHash},
	}}

	n, err := r.coll.CountDocuments(ctx, filter, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("failed to check token hashes: %w", err)
	}
	return n > 0, nil
}

func (r *TokenRepository) find(ctx context.Context, filter bson.M) (*domain.Token, error) {
	var token domain.Token
	if err := r.coll.FindOne(ctx, filter).Decode(&token); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, serrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find token: %w", err)
	}
	return &token, nil
}

func (r *TokenRepository) FindByAccessHash(ctx context.Context, accessHash string) (*domain.Token, error) {
	return r.find(ctx, bson.M{"_id": accessHash})
}

func (r *TokenRepository) FindByRefreshHash(ctx context.Context, refreshHash string) (*domain.Token, error) {
	return r.find(ctx, bson.M{"refresh_hash": refreshHash})
}

func (r *TokenRepository) deleteMany(ctx context.Context, filter bson.M) (int64, error) {
	res, err := r.coll.DeleteMany(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to delete tokens: %w", err)
	}
	return res.DeletedCount, nil
}

func (r *TokenRepository) DeleteByAccessHash(ctx context.Context, accessHash string) (int64, error) {
	return r.deleteMany(ctx, bson.M{"_id": accessHash})
}

func (r *TokenRepository) DeleteByRefreshHash(ctx context.Context, refreshHash string) (int64, error) {
	return r.deleteMany(ctx, bson.M{"refresh_hash": refreshHash})
}

func (r *TokenRepository) DeleteByVirtualIDs(ctx context.Context, virtualIDs []string) (int64, error) {
	if len(virtualIDs) == 0 {
		return 0, nil
	}
	return r.deleteMany(ctx, bson.M{"virtual_id": bson.M{"$in": virtualIDs}})
}

func (r *TokenRepository) DeleteRefreshExpired(ctx context.Context, now time.Time) (int64, error) {
	return r.deleteMany(ctx, bson.M{"refresh_expires_at": bson.M{"$lte": now.UTC()}})
}
