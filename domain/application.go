package domain

import "time"

// Application is a client registered by a developer account.
// Public applications carry no verifiable secret.
type Application struct {
	ID             string    `bson:"_id"                        json:"client_id"`
	Name           string    `bson:"name"                       json:"name"`
	Description    string    `bson:"description,omitempty"      json:"description,omitempty"`
	DeveloperID    string    `bson:"developer_id"               json:"-"`
	RedirectURIs   []string  `bson:"redirect_uris"              json:"redirect_uri"`
	PrivacyPolicy  string    `bson:"privacy_policy"             json:"privacy_policy"`
	TermsOfService string    `bson:"terms_of_service,omitempty" json:"terms_of_service,omitempty"`
	Public         bool      `bson:"public"                     json:"public"`
	SecretHash     string    `bson:"secret_hash,omitempty"      json:"-"`
	CreatedAt      time.Time `bson:"created_at"                 json:"created_at"`
}

// ApplicationCredentials is returned once on registration or secret
// regeneration. Secret is empty for public applications.
type ApplicationCredentials struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret,omitempty"`
}
