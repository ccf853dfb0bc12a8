package models

import "time"

// User is a charity staff account.
type User struct {
	ID                    string    `json:"_id"`
	Username              string    `json:"username"`
	PasswordHash          string    `json:"-"`
	UsedRegistrationCodes []string  `json:"usedRegistrationCodes"`
	CreatedAt             time.Time `json:"createdAt"`
}

// PublicUser is an account held by a member of the public.
type PublicUser struct {
	ID           string        `json:"_id"`
	Username     string        `json:"username"`
	Email        string        `json:"email"`
	PasswordHash string        `json:"-"`
	FavoriteCats []string      `json:"favoriteCats"`
	ExternalAuth *ExternalAuth `json:"externalAuth,omitempty"`
	CreatedAt    time.Time     `json:"createdAt"`
}

type ExternalAuth struct {
	Provider   string `json:"provider"`
	ProviderID string `json:"providerId"`
}

type RegistrationCode struct {
	ID        string    `json:"_id"`
	Code      string    `json:"code"`
	Used      bool      `json:"used"`
	UsedBy    *string   `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
}
