package domain

import (
	"context"
	"time"
)

// VirtualIDRepository stores pseudonyms. Implementations must enforce
// uniqueness of the virtual ID and of the (app, system) pair, returning
// serrors.ErrConflict on either violation.
type VirtualIDRepository interface {
	// FindByPair returns the pseudonym for (appID, systemID) or ErrNotFound.
	FindByPair(ctx context.Context, appID, systemID string) (*VirtualIdentity, error)

	// Get returns the pseudonym by virtual ID or ErrNotFound.
	Get(ctx context.Context, virtualID string) (*VirtualIdentity, error)

	// Exists reports whether the virtual ID is taken.
	Exists(ctx context.Context, virtualID string) (bool, error)

	// Insert persists a new pseudonym.
	Insert(ctx context.Context, vid *VirtualIdentity) error

	ListBySystemID(ctx context.Context, systemID string) ([]string, error)
	ListByAppID(ctx context.Context, appID string) ([]string, error)

	CountBySystemID(ctx context.Context, systemID string) (int64, error)
	CountByAppID(ctx context.Context, appID string) (int64, error)

	// DeleteBySystemID and DeleteByAppID return the number of removed rows.
	DeleteBySystemID(ctx context.Context, systemID string) (int64, error)
	DeleteByAppID(ctx context.Context, appID string) (int64, error)
}

// TokenRepository stores token rows keyed by the hashed secrets.
//
//nolint:interfacebloat
type TokenRepository interface {
	// Insert persists a token row. A duplicate hash yields ErrConflict.
	Insert(ctx context.Context, token *Token) error

	// HashTaken reports whether any row uses accessHash as its access hash
	// or refreshHash as its refresh hash.
	HashTaken(ctx context.Context, accessHash, refreshHash string) (bool, error)

	FindByAccessHash(ctx context.Context, accessHash string) (*Token, error)
	FindByRefreshHash(ctx context.Context, refreshHash string) (*Token, error)

	// DeleteByAccessHash and DeleteByRefreshHash return the removed row count.
	DeleteByAccessHash(ctx context.Context, accessHash string) (int64, error)
	DeleteByRefreshHash(ctx context.Context, refreshHash string) (int64, error)

	// DeleteByVirtualIDs removes every token bound to any of the virtual IDs.
	DeleteByVirtualIDs(ctx context.Context, virtualIDs []string) (int64, error)

	// DeleteRefreshExpired removes rows whose refresh expiry is at or before now.
	DeleteRefreshExpired(ctx context.Context, now time.Time) (int64, error)
}

// AccountRepository is the account store collaborator.
type AccountRepository interface {
	// Create inserts an account. Duplicate system ID, handle or email ciphertext
	// yields ErrConflict.
	Create(ctx context.Context, account *Account) error
	Get(ctx context.Context, systemID string) (*Account, error)
	Exists(ctx context.Context, systemID string) (bool, error)

	// FindForSignIn returns every account whose system ID or handle equals id,
	// or whose email ciphertext equals emailCiphertext.
	FindForSignIn(ctx context.Context, id, emailCiphertext string) ([]*Account, error)

	ExistsByUserID(ctx context.Context, userID string) (bool, error)
	ExistsByEmail(ctx context.Context, emailCiphertext string) (bool, error)

	Update(ctx context.Context, systemID string, patch AccountPatch) error
	Delete(ctx context.Context, systemID string) (bool, error)
}

// ApplicationRepository is the application store collaborator.
type ApplicationRepository interface {
	Create(ctx context.Context, app *Application) error
	Get(ctx context.Context, appID string) (*Application, error)
	Exists(ctx context.Context, appID string) (bool, error)

	// OwnerOf returns the developer's system ID or ErrNotFound.
	OwnerOf(ctx context.Context, appID string) (string, error)

	ListByDeveloper(ctx context.Context, developerID string) ([]*Application, error)
	UpdateSecret(ctx context.Context, appID, secretHash string) error
	Delete(ctx context.Context, appID string) (bool, error)
}
