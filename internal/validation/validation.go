// Package validation holds the pure checkout input checks: Kenyan phone
// normalization, amount rounding and address/cart shape rules.
package validation

import (
	"errors"
	"regexp"
	"strings"

	"github.com/kevin07696/mpesa-bridge/internal/domain"
	"github.com/shopspring/decimal"
)

// MaxAmount is the gateway's per-transaction ceiling in KES
const MaxAmount int64 = 500000

var (
	ErrPhoneRequired   = errors.New("Phone number is required")
	ErrPhoneInvalid    = errors.New("Invalid Kenyan phone number format")
	ErrEmailInvalid    = errors.New("Invalid email address format")
	ErrAmountInvalid   = errors.New("Invalid amount")
	ErrAmountTooSmall  = errors.New("Amount must be greater than 0")
	ErrAmountTooLarge  = errors.New("Amount exceeds M-Pesa limit (KES 500,000)")
	ErrCartEmpty       = errors.New("Cart is empty")
	ErrCartItemNoID    = errors.New("Invalid cart item: missing variant_id or title")
	ErrCartItemQty     = errors.New("Invalid cart item: quantity must be at least 1")
	ErrShippingMissing = errors.New("Shipping address is required")
)

var (
	phoneSeparators = regexp.MustCompile(`[\s\-()]`)
	phonePatterns   = []*regexp.Regexp{
		regexp.MustCompile(`^0[17]\d{8}$`),
		regexp.MustCompile(`^254[17]\d{8}$`),
		regexp.MustCompile(`^\+254[17]\d{8}$`),
		regexp.MustCompile(`^[17]\d{8}$`),
	}
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
)

// NormalizePhone accepts 0712345678, 254712345678, +254712345678 and
// 712345678 (and the 01 ranges) and returns the 254XXXXXXXXX form.
func NormalizePhone(raw string) (string, error) {
	cleaned := phoneSeparators.ReplaceAllString(raw, "")
	if cleaned == "" {
		return "", ErrPhoneRequired
	}

	matched := false
	for _, p := range phonePatterns {
		if p.MatchString(cleaned) {
			matched = true
			break
		}
	}
	if !matched {
		return "", ErrPhoneInvalid
	}

	digits := strings.TrimPrefix(cleaned, "+")
	switch {
	case strings.HasPrefix(digits, "254"):
		return digits, nil
	case strings.HasPrefix(digits, "0"):
		return "254" + digits[1:], nil
	default:
		return "254" + digits, nil
	}
}

// NormalizeAmount rounds a positive amount up to whole shillings.
// nil means the caller sent no usable number.
func NormalizeAmount(amount *decimal.Decimal) (int64, error) {
	if amount == nil {
		return 0, ErrAmountInvalid
	}
	if !amount.IsPositive() {
		return 0, ErrAmountTooSmall
	}
	rounded := amount.Ceil()
	if rounded.GreaterThan(decimal.NewFromInt(MaxAmount)) {
		return 0, ErrAmountTooLarge
	}
	return rounded.IntPart(), nil
}

// ValidateEmail accepts an empty email; a present one must look like local@domain.tld
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" || emailPattern.MatchString(email) {
		return nil
	}
	return ErrEmailInvalid
}

// ValidateShipping returns one message per missing or too-short field
func ValidateShipping(addr *domain.ShippingAddress) []string {
	if addr == nil {
		return []string{ErrShippingMissing.Error()}
	}

	var problems []string
	if len([]rune(strings.TrimSpace(addr.FullName))) < 2 {
		problems = append(problems, "Full name is required")
	}
	if len([]rune(strings.TrimSpace(addr.Address))) < 5 {
		problems = append(problems, "Street address is required")
	}
	if len([]rune(strings.TrimSpace(addr.City))) < 2 {
		problems = append(problems, "City is required")
	}
	if strings.TrimSpace(addr.County) == "" {
		problems = append(problems, "County is required")
	}
	return problems
}

// ValidateCartItems reports the first malformed item
func ValidateCartItems(items []domain.CartItem) error {
	if len(items) == 0 {
		return ErrCartEmpty
	}
	for _, item := range items {
		if item.VariantID == "" && strings.TrimSpace(item.Title) == "" {
			return ErrCartItemNoID
		}
		if item.Quantity < 1 {
			return ErrCartItemQty
		}
	}
	return nil
}

// Checkout is a checkout request that passed validation, with its
// phone and amount in gateway form
type Checkout struct {
	Request *domain.CheckoutRequest
	Phone   string
	Amount  int64
}

// ValidateCheckout runs every check and reports all problems at once.
// On success the shipping county is canonicalised and text fields trimmed.
func ValidateCheckout(req *domain.CheckoutRequest) (*Checkout, error) {
	if req == nil {
		req = &domain.CheckoutRequest{}
	}

	var verrs domain.ValidationErrors

	phone, err := NormalizePhone(req.Phone)
	if err != nil {
		verrs.Add(err.Error())
	}
	if err := ValidateEmail(req.Email); err != nil {
		verrs.Add(err.Error())
	}
	for _, msg := range ValidateShipping(req.Shipping) {
		verrs.Add(msg)
	}
	amount, err := NormalizeAmount(req.Amount)
	if err != nil {
		verrs.Add(err.Error())
	}
	if err := ValidateCartItems(req.CartItems); err != nil {
		verrs.Add(err.Error())
	}

	if err := verrs.ErrOrNil(); err != nil {
		return nil, err
	}

	req.Email = strings.TrimSpace(req.Email)
	req.Shipping.FullName = strings.TrimSpace(req.Shipping.FullName)
	req.Shipping.Address = strings.TrimSpace(req.Shipping.Address)
	req.Shipping.City = strings.TrimSpace(req.Shipping.City)
	req.Shipping.County = CanonicalCounty(req.Shipping.County)

	return &Checkout{Request: req, Phone: phone, Amount: amount}, nil
}
