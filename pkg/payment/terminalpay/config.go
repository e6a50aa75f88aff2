package terminalpay

// Config represents the configuration for the terminal provider client
type Config struct {
	// APIKey authenticates against the provider API
	APIKey string

	// MerchantID identifies the merchant account
	MerchantID string

	// BaseURL is the provider API base URL
	BaseURL string
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return ErrInvalidRequest
	}
	if c.MerchantID == "" {
		return ErrInvalidRequest
	}
	if c.BaseURL == "" {
		return ErrInvalidRequest
	}
	return nil
}
