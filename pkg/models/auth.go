package models

// AuthTokens holds the credentials extracted from a settings blob. They are
// never part of the settings handed to actions.
type AuthTokens struct {
	AccessToken     string `json:"accessToken,omitempty"`
	RefreshToken    string `json:"refreshToken,omitempty"`
	RefreshTokenURL string `json:"refreshTokenUrl,omitempty"`
}

// OAuth2ClientCredentials is the credential set used to refresh an access token.
type OAuth2ClientCredentials struct {
	AuthTokens

	ClientID     string `json:"clientId,omitempty"`
	ClientSecret string `json:"clientSecret,omitempty"`
}

type RefreshAccessTokenResult struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
}
