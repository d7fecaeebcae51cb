package domain

import "time"

// VirtualIdentity maps an (application, account) pair to an opaque pseudonym.
// At most one exists per pair; records are never mutated.
type VirtualIdentity struct {
	VirtualID string    `bson:"_id"        json:"virtual_id"`
	AppID     string    `bson:"app_id"     json:"app_id"`
	SystemID  string    `bson:"system_id"  json:"id"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}

// LinkedInformation is the reverse lookup of a virtual identity.
type LinkedInformation struct {
	AppID       string      `json:"app"`
	SystemID    string      `json:"id"`
	UserID      string      `json:"user_id"`
	Name        string      `json:"name"`
	Email       string      `json:"mailaddress"`
	AccountType AccountType `json:"account_type"`
}
