package auth

// SimpleConfig is a literal Config implementation for hosts that do not
// bring their own configuration layer.
type SimpleConfig struct {
	SigningKey      string   `json:"signing_key"`
	Issuer          string   `json:"issuer"`
	Audience        []string `json:"audience"`
	ContextKey      string   `json:"context_key"`
	AccessTokenTTL  int      `json:"access_token_ttl"`   // minutes
	SessionTTL      int      `json:"session_ttl"`        // hours
	OneTimeTokenTTL int      `json:"one_time_token_ttl"` // minutes
	MFATokenTTL     int      `json:"mfa_token_ttl"`      // minutes
}

var _ Config = (*SimpleConfig)(nil)

func (c *SimpleConfig) GetSigningKey() string { return c.SigningKey }

func (c *SimpleConfig) GetIssuer() string { return c.Issuer }

func (c *SimpleConfig) GetAudience() []string { return c.Audience }

func (c *SimpleConfig) GetContextKey() string {
	if c.ContextKey == "" {
		return "user"
	}
	return c.ContextKey
}

// GetAccessTokenTTL is the stateless token lifetime in minutes.
func (c *SimpleConfig) GetAccessTokenTTL() int {
	if c.AccessTokenTTL <= 0 {
		return 15
	}
	return c.AccessTokenTTL
}

// GetSessionTTL is the refresh session window in hours.
func (c *SimpleConfig) GetSessionTTL() int {
	if c.SessionTTL <= 0 {
		return 24 * 7
	}
	return c.SessionTTL
}

// GetOneTimeTokenTTL is the verify/reset token lifetime in minutes.
func (c *SimpleConfig) GetOneTimeTokenTTL() int {
	if c.OneTimeTokenTTL <= 0 {
		return 60
	}
	return c.OneTimeTokenTTL
}

// GetMFATokenTTL is the MFA challenge lifetime in minutes.
func (c *SimpleConfig) GetMFATokenTTL() int {
	if c.MFATokenTTL <= 0 {
		return 5
	}
	return c.MFATokenTTL
}
