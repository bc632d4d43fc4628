package shopify

import "time"

const (
	DefaultAPIVersion = "2024-10"

	// Refresh the OAuth token this long before it expires
	tokenSafetyMargin = 5 * time.Minute

	// Client-credentials tokens live 24h when Shopify omits expires_in
	defaultTokenLifetime = 24 * time.Hour
)

// Config contains configuration for the Shopify Admin API client
type Config struct {
	// StoreDomain is the myshopify.com domain, e.g. "my-shop.myshopify.com"
	StoreDomain string

	// OAuth client-credentials pair; ignored when AccessToken is set
	ClientID     string
	ClientSecret string

	// AccessToken is a static Admin API token
	AccessToken string

	APIVersion string

	// BaseURL overrides https://StoreDomain (tests, proxies)
	BaseURL string
}

func (c *Config) storeURL() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	return "https://" + c.StoreDomain
}

func (c *Config) adminURL() string {
	version := c.APIVersion
	if version == "" {
		version = DefaultAPIVersion
	}
	return c.storeURL() + "/admin/api/" + version
}
