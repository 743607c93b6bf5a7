package accounts

import "time"

// Config holds the tunables for the accounts stack. Implementations are
// expected to be cheap getters over already-loaded configuration.
type Config interface {
	GetSigningKey() string
	GetTokenExpiration() time.Duration
	GetIssuer() string
	GetAudience() []string
	GetContextKey() string
	GetAuthScheme() string
	GetBcryptCost() int
	GetResetCodeExpiration() time.Duration
	GetVerificationCodeExpiration() time.Duration
}

// SimpleConfig is a literal-friendly Config implementation.
type SimpleConfig struct {
	SigningKey                 string
	TokenExpiration            time.Duration
	Issuer                     string
	Audience                   []string
	ContextKey                 string
	AuthScheme                 string
	BcryptCost                 int
	ResetCodeExpiration        time.Duration
	VerificationCodeExpiration time.Duration
}

func (c SimpleConfig) GetSigningKey() string            { return c.SigningKey }
func (c SimpleConfig) GetIssuer() string                { return c.Issuer }
func (c SimpleConfig) GetAudience() []string            { return c.Audience }
func (c SimpleConfig) GetBcryptCost() int               { return c.BcryptCost }

func (c SimpleConfig) GetTokenExpiration() time.Duration {
	if c.TokenExpiration <= 0 {
		return DefaultTokenTTL
	}
	return c.TokenExpiration
}

func (c SimpleConfig) GetContextKey() string {
	if c.ContextKey == "" {
		return "accounts:principal"
	}
	return c.ContextKey
}

func (c SimpleConfig) GetAuthScheme() string {
	if c.AuthScheme == "" {
		return "Bearer"
	}
	return c.AuthScheme
}

func (c SimpleConfig) GetResetCodeExpiration() time.Duration {
	if c.ResetCodeExpiration <= 0 {
		return DefaultResetCodeTTL
	}
	return c.ResetCodeExpiration
}

func (c SimpleConfig) GetVerificationCodeExpiration() time.Duration {
	if c.VerificationCodeExpiration <= 0 {
		return DefaultVerificationCodeTTL
	}
	return c.VerificationCodeExpiration
}
