package domain

import "time"

// AssistantScope is the only OAuth scope the embedded assistant API accepts.
const AssistantScope = "https://www.googleapis.com/auth/assistant-sdk-prototype"

// ExpirySkew is subtracted from the token lifetime so a token is never
// presented in its last seconds.
const ExpirySkew = time.Minute

// ClientSecret is the "installed" section of the OAuth client document
// downloaded from the cloud console.
type ClientSecret struct {
	ClientID     string
	ClientSecret string
	AuthURI      string
	TokenURI     string
	ProjectID    string
	RedirectURIs []string
}

type TokenPair struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

type Credential struct {
	AccessToken  string
	RefreshToken string
	ClientID     string
	ClientSecret string
	TokenURI     string
	Scopes       []string
	Expiry       time.Time
}

func NewCredential(secret ClientSecret, pair TokenPair, scopes []string) Credential {
	return Credential{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ClientID:     secret.ClientID,
		ClientSecret: secret.ClientSecret,
		TokenURI:     secret.TokenURI,
		Scopes:       scopes,
		Expiry:       pair.Expiry,
	}
}

// Valid reports whether the access token can be presented at now. A token
// with an unknown expiry is treated as stale.
func (c Credential) Valid(now time.Time) bool {
	if c.AccessToken == "" || c.Expiry.IsZero() {
		return false
	}
	return now.Add(ExpirySkew).Before(c.Expiry)
}

func (c Credential) CanRefresh() bool {
	return c.RefreshToken != "" && c.TokenURI != ""
}

func (c Credential) TokenPair() TokenPair {
	return TokenPair{
		AccessToken:  c.AccessToken,
		RefreshToken: c.RefreshToken,
		Expiry:       c.Expiry,
	}
}
