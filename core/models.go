package core

import (
	"time"
)

// ProviderType identifies the identity provider that produced a request's credential.
type ProviderType string

const (
	ProviderAuth0                ProviderType = "auth0"
	ProviderAzureActiveDirectory ProviderType = "azureActiveDirectory"
	ProviderNetlify              ProviderType = "netlify"
	ProviderGoTrue               ProviderType = "goTrue"
	ProviderClerk                ProviderType = "clerk"
	ProviderSupabase             ProviderType = "supabase"
	ProviderDbAuth               ProviderType = "dbAuth"
	ProviderCustom               ProviderType = "custom"
	// Host applications may register further providers
)

// User represents a row of the credential store
type User struct {
	ID                  string
	Username            string
	HashedPassword      string
	Salt                string
	ResetToken          *string    // Nullable - only while a reset is pending
	ResetTokenExpiresAt *time.Time // Nullable - only while a reset is pending
	Attributes          map[string]any
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// SanitizedUser is a user with the password hash and salt stripped, safe to hand
// to clients and host callbacks.
type SanitizedUser struct {
	ID                  string         `json:"id"`
	Username            string         `json:"username"`
	ResetToken          *string        `json:"resetToken,omitempty"`
	ResetTokenExpiresAt *time.Time     `json:"resetTokenExpiresAt,omitempty"`
	Attributes          map[string]any `json:"attributes,omitempty"`
	CreatedAt           time.Time      `json:"createdAt"`
	UpdatedAt           time.Time      `json:"updatedAt"`
}

func (u *User) Sanitize() *SanitizedUser {
	return &SanitizedUser{
		ID:                  u.ID,
		Username:            u.Username,
		ResetToken:          u.ResetToken,
		ResetTokenExpiresAt: u.ResetTokenExpiresAt,
		Attributes:          u.Attributes,
		CreatedAt:           u.CreatedAt,
		UpdatedAt:           u.UpdatedAt,
	}
}

// Response is the transport-neutral result of a dbAuth invocation.
type Response struct {
	StatusCode int
	Body       string
	Headers    map[string]string
}
