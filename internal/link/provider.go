package link

import (
	"fmt"

	"golang.org/x/oauth2"
)

// ProviderConfig describes one identity provider an account can be
// linked through.
type ProviderConfig struct {
	// Name identifies the provider, e.g. "google".
	Name string

	// ClientID and ClientSecret are the OAuth client credentials.
	ClientID     string
	ClientSecret string

	// AuthURL and TokenURL are the provider's OAuth 2.0 endpoints.
	AuthURL  string
	TokenURL string

	// RedirectURL receives the provider callback.
	RedirectURL string

	// Scopes requested during authorization.
	Scopes []string
}

func (p ProviderConfig) oauthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     p.ClientID,
		ClientSecret: p.ClientSecret,
		RedirectURL:  p.RedirectURL,
		Scopes:       p.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  p.AuthURL,
			TokenURL: p.TokenURL,
		},
	}
}

// UnknownProviderError reports a provider name no configuration exists
// for.
type UnknownProviderError struct {
	Provider string
}

func (e *UnknownProviderError) Error() string {
	return fmt.Sprintf("unknown provider %q", e.Provider)
}

// Message returns a user-facing description.
func (e *UnknownProviderError) Message() string {
	return fmt.Sprintf("Accounts from %q cannot be connected.", e.Provider)
}
