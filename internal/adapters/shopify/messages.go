package shopify

import "encoding/json"

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	Scope       string `json:"scope"`
	ExpiresIn   int64  `json:"expires_in"`
}

type lineItem struct {
	VariantID        json.Number `json:"variant_id,omitempty"`
	Quantity         int         `json:"quantity"`
	Title            string      `json:"title,omitempty"`
	Price            string      `json:"price,omitempty"`
	RequiresShipping bool        `json:"requires_shipping,omitempty"`
}

type address struct {
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Address1    string `json:"address1"`
	Address2    string `json:"address2"`
	City        string `json:"city"`
	Province    string `json:"province"`
	Country     string `json:"country"`
	CountryCode string `json:"country_code"`
	Zip         string `json:"zip"`
	Phone       string `json:"phone"`
}

type customer struct {
	ID        int64  `json:"id,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

type noteAttribute struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type orderTransaction struct {
	Kind    string `json:"kind"`
	Status  string `json:"status"`
	Amount  string `json:"amount"`
	Gateway string `json:"gateway"`
}

type orderInput struct {
	LineItems              []lineItem         `json:"line_items"`
	Customer               customer           `json:"customer"`
	ShippingAddress        address            `json:"shipping_address"`
	BillingAddress         address            `json:"billing_address"`
	Email                  string             `json:"email,omitempty"`
	Phone                  string             `json:"phone,omitempty"`
	FinancialStatus        string             `json:"financial_status"`
	SendReceipt            bool               `json:"send_receipt"`
	SendFulfillmentReceipt bool               `json:"send_fulfillment_receipt"`
	Note                   string             `json:"note"`
	NoteAttributes         []noteAttribute    `json:"note_attributes"`
	Tags                   string             `json:"tags"`
	Transactions           []orderTransaction `json:"transactions"`
}

type createOrderRequest struct {
	Order orderInput `json:"order"`
}

type orderResponse struct {
	Order struct {
		ID             int64  `json:"id"`
		Name           string `json:"name"`
		OrderNumber    int64  `json:"order_number"`
		OrderStatusURL string `json:"order_status_url"`
		TotalPrice     string `json:"total_price"`
		CreatedAt      string `json:"created_at"`
	} `json:"order"`
}

type customerSearchResponse struct {
	Customers []customer `json:"customers"`
}

type variantResponse struct {
	Variant struct {
		ID                int64  `json:"id"`
		InventoryQuantity int    `json:"inventory_quantity"`
		InventoryPolicy   string `json:"inventory_policy"`
	} `json:"variant"`
}

// apiErrors is Shopify's error body; "errors" is a string, list or field map
type apiErrors struct {
	Errors           json.RawMessage `json:"errors"`
	ErrorDescription string          `json:"error_description"`
}
