package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"
)

const (
	AccountsCollection        = "accounts"
	ApplicationsCollection    = "applications"
	VirtualIdentityCollection = "virtual_identities"
	TokensCollection          = "tokens"
)

// Repositories bundles the store collaborators backed by one database.
type Repositories struct {
	VirtualIDs   *VirtualIDRepository
	Tokens       *TokenRepository
	Accounts     *AccountRepository
	Applications *ApplicationRepository
}

// NewRepositories creates every repository, ensuring their indexes.
func NewRepositories(ctx context.Context, db *mongo.Database) (*Repositories, error) {
	vids, err := NewVirtualIDRepository(ctx, db)
	if err != nil {
		return nil, err
	}
	tokens, err := NewTokenRepository(ctx, db)
	if err != nil {
		return nil, err
	}
	accounts, err := NewAccountRepository(ctx, db)
	if err != nil {
		return nil, err
	}
	apps, err := NewApplicationRepository(ctx, db)
	if err != nil {
		return nil, err
	}

	return &Repositories{
		VirtualIDs:   vids,
		Tokens:       tokens,
		Accounts:     accounts,
		Applications: apps,
	}, nil
}

func createIndexes(ctx context.Context, coll *mongo.Collection, models []mongo.IndexModel) error {
	if _, err := coll.Indexes().CreateMany(ctx, models); err != nil {
		return fmt.Errorf("failed to create indexes for %s: %w", coll.Name(), err)
	}
	return nil
}

func collectIDs(ctx context.Context, cursor *mongo.Cursor, field string) ([]string, error) {
	defer cursor.Close(ctx)

	ids := []string{}
	for cursor.Next(ctx) {
		v, ok := cursor.Current.Lookup(field).StringValueOK()
		if !ok {
			return nil, fmt.Errorf("document without string %s", field)
		}
		ids = append(ids, v)
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}
