package domain

import "time"

// AccountType classifies an account. The values are opaque to the identity
// core; they are stored and echoed back.
type AccountType int

// Account is the persisted account record. Email holds the deterministic
// ciphertext produced by mailcrypt, never the plaintext.
type Account struct {
	SystemID     string      `bson:"_id"           json:"id"`
	UserID       string      `bson:"user_id"       json:"user_id"`
	Name         string      `bson:"name"          json:"name"`
	Email        string      `bson:"email"         json:"-"`
	PasswordHash string      `bson:"password_hash" json:"-"`
	AccountType  AccountType `bson:"account_type"  json:"account_type"`
	CreatedAt    time.Time   `bson:"created_at"    json:"created_at"`
	UpdatedAt    time.Time   `bson:"updated_at"    json:"updated_at"`
}

// AccountProfile is the account view with a decrypted email address.
type AccountProfile struct {
	SystemID    string      `json:"id"`
	UserID      string      `json:"user_id"`
	Name        string      `json:"name"`
	Email       string      `json:"mailaddress"`
	AccountType AccountType `json:"account_type"`
}

// AccountUpdate is a partial profile update in plaintext form.
type AccountUpdate struct {
	UserID      *string
	Name        *string
	Email       *string
	Password    *string
	AccountType *AccountType
}

// IsEmpty reports whether the update carries no field at all.
func (u AccountUpdate) IsEmpty() bool {
	return u.UserID == nil && u.Name == nil && u.Email == nil && u.Password == nil && u.AccountType == nil
}

// AccountPatch is the storage form of an AccountUpdate: the email is already
// encrypted and the password already hashed. Nil fields are left untouched.
type AccountPatch struct {
	UserID       *string
	Name         *string
	Email        *string
	PasswordHash *string
	AccountType  *AccountType
}
