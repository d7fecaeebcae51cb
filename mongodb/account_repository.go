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

// AccountRepository stores accounts. Handles and email ciphertexts are unique,
// which is what makes equality lookup on the encrypted email usable.
type AccountRepository struct {
	coll *mongo.Collection
}

var _ domain.AccountRepository = (*AccountRepository)(nil)

func NewAccountRepository(ctx context.Context, db *mongo.Database) (*AccountRepository, error) {
	repo := &AccountRepository{coll: db.Collection(AccountsCollection)}

	err := createIndexes(ctx, repo.coll, []mongo.IndexModel{
		{Keys: bson.D{{Key: "user_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
	})
	if err != nil {
		return nil, err
	}

	return repo, nil
}

func (r *AccountRepository) Create(ctx context.Context, account *domain.Account) error {
	if _, err := r.coll.InsertOne(ctx, account); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("account: %w", serrors.ErrConflict)
		}
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

func (r *AccountRepository) Get(ctx context.Context, systemID string) (*domain.Account, error) {
	var account domain.Account
	if err := r.coll.FindOne(ctx, bson.M{"_id": systemID}).Decode(&account); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, serrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &account, nil
}

func (r *AccountRepository) exists(ctx context.Context, filter bson.M) (bool, error) {
	n, err := r.coll.CountDocuments(ctx, filter, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("failed to check account: %w", err)
	}
	return n > 0, nil
}

func (r *AccountRepository) Exists(ctx context.Context, systemID string) (bool, error) {
	return r.exists(ctx, bson.M{"_id": systemID})
}

func (r *AccountRepository) ExistsByUserID(ctx context.Context, userID string) (bool, error) {
	return r.exists(ctx, bson.M{"user_id": userID})
}

func (r *AccountRepository) ExistsByEmail(ctx context.Context, emailCiphertext string) (bool, error) {
	return r.exists(ctx, bson.M{"email": emailCiphertext})
}

func (r *AccountRepository) FindForSignIn(ctx context.Context, id, emailCiphertext string) ([]*domain.Account, error) {
	or := bson.A{bson.M{"_id": id}, bson.M{"user_id": id}}
	if emailCiphertext != "" {
		or = append(or, bson.M{"email": emailCiphertext})
	}

	cursor, err := r.coll.Find(ctx, bson.M{"$or": or})
	if err != nil {
		return nil, fmt.Errorf("failed to find accounts: %w", err)
	}

	accounts := []*domain.Account{}
	if err := cursor.All(ctx, &accounts); err != nil {
		return nil, fmt.Errorf("failed to decode accounts: %w", err)
	}
	return accounts, nil
}

func (r *AccountRepository) Update(ctx context.Context, systemID string, patch domain.AccountPatch) error {
	set := bson.M{"updated_at": time.Now().UTC()}
	if patch.UserID != nil {
		set["user_id"] = *patch.UserID
	}
	if patch.Name != nil {
		set["name"] = *patch.Name
	}
	if patch.Email != nil {
		set["email"] = *patch.Email
	}
	if patch.PasswordHash != nil {
		set["password_hash"] = *patch.PasswordHash
	}
	if patch.AccountType != nil {
		set["account_type"] = *patch.AccountType
	}

	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": systemID}, bson.M{"$set": set})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("account: %w", serrors.ErrConflict)
		}
		return fmt.Errorf("failed to update account: %w", err)
	}
	if res.MatchedCount == 0 {
		return serrors.ErrNotFound
	}
	return nil
}

func (r *AccountRepository) Delete(ctx context.Context, systemID string) (bool, error) {
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": systemID})
	if err != nil {
		return false, fmt.Errorf("failed to delete account: %w", err)
	}
	return res.DeletedCount > 0, nil
}
