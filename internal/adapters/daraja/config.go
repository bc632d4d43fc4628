package daraja

import "time"

const (
	SandboxBaseURL    = "https://sandbox.safaricom.co.ke"
	ProductionBaseURL = "https://api.safaricom.co.ke"

	// Daraja field limits
	maxAccountReferenceLen = 12
	maxDescriptionLen      = 13

	// Refresh the OAuth token this long before Daraja says it expires
	tokenSafetyMargin = 5 * time.Minute

	transactionTypeBuyGoods = "CustomerBuyGoodsOnline"
	transactionTypePayBill  = "CustomerPayBillOnline"
)

// Config contains configuration for the Daraja STK push adapter
type Config struct {
	ConsumerKey    string
	ConsumerSecret string

	// Shortcode is the Lipa Na M-Pesa Online business shortcode used for signing
	Shortcode string

	// TillNumber selects Buy Goods; when empty the shortcode is billed as a PayBill
	TillNumber string

	Passkey     string
	CallbackURL string

	// Environment is "sandbox" or "production"
	Environment string

	// BaseURL overrides the environment's API host (tests, proxies)
	BaseURL string
}

// DefaultBaseURL returns the API host for a Daraja environment
func DefaultBaseURL(environment string) string {
	if environment == "production" {
		return ProductionBaseURL
	}
	return SandboxBaseURL
}

func (c *Config) baseURL() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	return DefaultBaseURL(c.Environment)
}

// transactionType returns the STK TransactionType and PartyB for this account
func (c *Config) transactionType() (string, string) {
	if c.TillNumber != "" {
		return transactionTypeBuyGoods, c.TillNumber
	}
	return transactionTypePayBill, c.Shortcode
}
