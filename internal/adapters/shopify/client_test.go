package shopify

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kevin07696/mpesa-bridge/internal/domain"
	"github.com/kevin07696/mpesa-bridge/pkg/timeutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const apiPrefix = "/admin/api/2024-10"

type fakeShopify struct {
	t *testing.T

	tokenCalls  atomic.Int32
	orderCalls  atomic.Int32
	searchCalls atomic.Int32

	searchStatus int
	customers    string
	orderHandler func(w http.ResponseWriter, n int32)
	variant      func(w http.ResponseWriter, id string)

	mu        sync.Mutex
	lastOrder map[string]interface{}
	lastToken string
}

func (f *fakeShopify) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/admin/oauth/access_token":
		n := f.tokenCalls.Add(1)
		require.NoError(f.t, r.ParseForm())
		assert.Equal(f.t, "client_credentials", r.PostForm.Get("grant_type"))
		assert.Equal(f.t, "client-id", r.PostForm.Get("client_id"))
		assert.Equal(f.t, "client-secret", r.PostForm.Get("client_secret"))
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "shpat_" + string(rune('0'+n)),
			"scope":        "write_orders,read_customers",
			"expires_in":   86399,
		})

	case r.URL.Path == apiPrefix+"/customers/search.json":
		f.searchCalls.Add(1)
		assert.Equal(f.t, "phone:+254712345678", r.URL.Query().Get("query"))
		if f.searchStatus != 0 {
			w.WriteHeader(f.searchStatus)
			return
		}
		customers := f.customers
		if customers == "" {
			customers = `{"customers":[]}`
		}
		_, _ = w.Write([]byte(customers))

	case r.URL.Path == apiPrefix+"/orders.json":
		n := f.orderCalls.Add(1)
		body, _ := io.ReadAll(r.Body)
		var payload map[string]interface{}
		require.NoError(f.t, json.Unmarshal(body, &payload))
		f.mu.Lock()
		f.lastOrder = payload["order"].(map[string]interface{})
		f.lastToken = r.Header.Get("X-Shopify-Access-Token")
		f.mu.Unlock()
		if f.orderHandler != nil {
			f.orderHandler(w, n)
			return
		}
		createdOrder(w)

	case len(r.URL.Path) > len(apiPrefix+"/variants/") && r.URL.Path[:len(apiPrefix+"/variants/")] == apiPrefix+"/variants/":
		id := r.URL.Path[len(apiPrefix+"/variants/"):]
		f.variant(w, id[:len(id)-len(".json")])

	default:
		http.NotFound(w, r)
	}
}

func (f *fakeShopify) order() (map[string]interface{}, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastOrder, f.lastToken
}

func createdOrder(w http.ResponseWriter) {
	w.WriteHeader(http.StatusCreated)
	_, _ = w.Write([]byte(`{"order":{
		"id": 5123456789012,
		"name": "#1001",
		"order_number": 1001,
		"order_status_url": "https://shop.example.com/orders/abc/authenticate?key=xyz",
		"total_price": "2500.00",
		"created_at": "2025-01-15T10:31:00+03:00"
	}}`))
}

func newTestClient(t *testing.T, fake *fakeShopify, mutate func(*Config)) (*Client, *timeutil.FakeClock) {
	t.Helper()
	fake.t = t
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	cfg := &Config{
		StoreDomain:  "shop.example.com",
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		BaseURL:      srv.URL,
	}
	if mutate != nil {
		mutate(cfg)
	}

	client := NewClient(cfg, srv.Client(), zaptest.NewLogger(t))
	clock := timeutil.NewFakeClock(time.Date(2025, 1, 15, 7, 30, 0, 0, time.UTC))
	client.clock = clock
	return client, clock
}

func paidTransaction() *domain.Transaction {
	price := decimal.RequireFromString("150")
	return &domain.Transaction{
		CheckoutRequestID:  "ws_CO_1",
		OrderReference:     "ORDM5X2K9AB",
		Phone:              "254712345678",
		Email:              "jane@example.com",
		Amount:             2500,
		MpesaReceiptNumber: "NLJ7RT61SV",
		State:              domain.StatePending,
		Shipping: domain.ShippingAddress{
			FullName: "Jane Wanjiku Kamau",
			Address:  "Kenyatta Avenue 12",
			City:     "Nairobi",
			County:   "Nairobi",
			Notes:    "Call on arrival",
		},
		CartItems: []domain.CartItem{
			{VariantID: "44012345678901", Quantity: 2},
			{Title: "Gift wrap", Quantity: 1, Price: &price},
		},
	}
}

func TestConfig_AdminURL(t *testing.T) {
	cfg := &Config{StoreDomain: "my-shop.myshopify.com"}
	assert.Equal(t, "https://my-shop.myshopify.com/admin/api/2024-10", cfg.adminURL())

	cfg.APIVersion = "2025-01"
	assert.Equal(t, "https://my-shop.myshopify.com/admin/api/2025-01", cfg.adminURL())
}

func TestCreateOrderForTransaction_NewCustomer(t *testing.T) {
	fake := &fakeShopify{}
	client, _ := newTestClient(t, fake, nil)

	order, err := client.CreateOrderForTransaction(t.Context(), paidTransaction())
	require.NoError(t, err)

	assert.Equal(t, "5123456789012", order.ID)
	assert.Equal(t, "#1001", order.Name)
	assert.Equal(t, int64(1001), order.OrderNumber)
	assert.Equal(t, "https://shop.example.com/orders/abc/authenticate?key=xyz", order.StatusURL)
	assert.Equal(t, "2500.00", order.TotalPrice)

	sent, token := fake.order()
	assert.Equal(t, "shpat_1", token)
	assert.Equal(t, "paid", sent["financial_status"])
	assert.Equal(t, true, sent["send_receipt"])
	assert.Equal(t, "mpesa-payment", sent["tags"])
	assert.Equal(t, "Paid via M-Pesa. Receipt: NLJ7RT61SV\nDelivery notes: Call on arrival", sent["note"])

	lineItems := sent["line_items"].([]interface{})
	require.Len(t, lineItems, 2)
	assert.Equal(t, map[string]interface{}{"variant_id": float64(44012345678901), "quantity": float64(2)}, lineItems[0])
	assert.Equal(t, map[string]interface{}{
		"title": "Gift wrap", "price": "150.00", "quantity": float64(1), "requires_shipping": true,
	}, lineItems[1])

	shipping := sent["shipping_address"].(map[string]interface{})
	assert.Equal(t, "Jane", shipping["first_name"])
	assert.Equal(t, "Wanjiku Kamau", shipping["last_name"])
	assert.Equal(t, "Kenyatta Avenue 12", shipping["address1"])
	assert.Equal(t, "Nairobi", shipping["province"])
	assert.Equal(t, "KE", shipping["country_code"])
	assert.Equal(t, "+254712345678", shipping["phone"])
	assert.Equal(t, shipping, sent["billing_address"])

	customer := sent["customer"].(map[string]interface{})
	assert.Equal(t, "Jane", customer["first_name"])
	assert.Equal(t, "jane@example.com", customer["email"])
	assert.Equal(t, "+254712345678", customer["phone"])
	assert.NotContains(t, customer, "id")

	transactions := sent["transactions"].([]interface{})
	require.Len(t, transactions, 1)
	assert.Equal(t, map[string]interface{}{
		"kind": "sale", "status": "success", "amount": "2500.00", "gateway": "M-Pesa",
	}, transactions[0])

	attrs := sent["note_attributes"].([]interface{})
	assert.Contains(t, attrs, map[string]interface{}{"name": "M-Pesa Receipt", "value": "NLJ7RT61SV"})
}

func TestCreateOrderForTransaction_ExistingCustomer(t *testing.T) {
	fake := &fakeShopify{customers: `{"customers":[{"id":777,"first_name":"Jane"}]}`}
	client, _ := newTestClient(t, fake, nil)

	_, err := client.CreateOrderForTransaction(t.Context(), paidTransaction())
	require.NoError(t, err)

	sent, _ := fake.order()
	assert.Equal(t, map[string]interface{}{"id": float64(777)}, sent["customer"])
}

func TestCreateOrderForTransaction_SearchFailureCreatesCustomer(t *testing.T) {
	fake := &fakeShopify{searchStatus: http.StatusInternalServerError}
	client, _ := newTestClient(t, fake, nil)

	_, err := client.CreateOrderForTransaction(t.Context(), paidTransaction())
	require.NoError(t, err)

	sent, _ := fake.order()
	customer := sent["customer"].(map[string]interface{})
	assert.Equal(t, "+254712345678", customer["phone"])
	assert.Equal(t, int32(1), fake.searchCalls.Load())
}

func TestCreateOrderForTransaction_RetriesOnceAfterUnauthorized(t *testing.T) {
	fake := &fakeShopify{orderHandler: func(w http.ResponseWriter, n int32) {
		if n == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"errors":"[API] Invalid API key or access token"}`))
			return
		}
		createdOrder(w)
	}}
	client, _ := newTestClient(t, fake, nil)

	order, err := client.CreateOrderForTransaction(t.Context(), paidTransaction())
	require.NoError(t, err)

	assert.Equal(t, "#1001", order.Name)
	assert.Equal(t, int32(2), fake.orderCalls.Load())
	assert.Equal(t, int32(2), fake.tokenCalls.Load())
	_, token := fake.order()
	assert.Equal(t, "shpat_2", token)
}

func TestCreateOrderForTransaction_StaticToken(t *testing.T) {
	fake := &fakeShopify{}
	client, _ := newTestClient(t, fake, func(c *Config) { c.AccessToken = "shpat_static" })

	_, err := client.CreateOrderForTransaction(t.Context(), paidTransaction())
	require.NoError(t, err)

	_, token := fake.order()
	assert.Equal(t, "shpat_static", token)
	assert.Equal(t, int32(0), fake.tokenCalls.Load())
}

func TestCreateOrderForTransaction_APIError(t *testing.T) {
	fake := &fakeShopify{orderHandler: func(w http.ResponseWriter, _ int32) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"errors":{"line_items":["is invalid"]}}`))
	}}
	client, _ := newTestClient(t, fake, nil)

	_, err := client.CreateOrderForTransaction(t.Context(), paidTransaction())
	require.Error(t, err)

	assert.Equal(t, domain.ErrorCodeCommerceError, domain.GetErrorCode(err))
	assert.Contains(t, err.Error(), "line_items: is invalid")
	assert.Equal(t, int32(1), fake.orderCalls.Load())
}

func TestCreateOrderForTransaction_RequiresReceipt(t *testing.T) {
	fake := &fakeShopify{}
	client, _ := newTestClient(t, fake, nil)

	txn := paidTransaction()
	txn.MpesaReceiptNumber = ""

	_, err := client.CreateOrderForTransaction(t.Context(), txn)
	require.Error(t, err)
	assert.Equal(t, int32(0), fake.orderCalls.Load())
}

func TestAccessToken_RefreshedBeforeExpiry(t *testing.T) {
	fake := &fakeShopify{}
	client, clock := newTestClient(t, fake, nil)
	ctx := t.Context()

	_, err := client.CreateOrderForTransaction(ctx, paidTransaction())
	require.NoError(t, err)
	assert.Equal(t, int32(1), fake.tokenCalls.Load())

	clock.Advance(86399*time.Second - tokenSafetyMargin - time.Second)
	_, err = client.CreateOrderForTransaction(ctx, paidTransaction())
	require.NoError(t, err)
	assert.Equal(t, int32(1), fake.tokenCalls.Load())

	clock.Advance(time.Second)
	_, err = client.CreateOrderForTransaction(ctx, paidTransaction())
	require.NoError(t, err)
	assert.Equal(t, int32(2), fake.tokenCalls.Load())
}

func TestCheckInventory(t *testing.T) {
	fake := &fakeShopify{variant: func(w http.ResponseWriter, id string) {
		switch id {
		case "1":
			_, _ = w.Write([]byte(`{"variant":{"id":1,"inventory_quantity":5,"inventory_policy":"deny"}}`))
		case "2":
			_, _ = w.Write([]byte(`{"variant":{"id":2,"inventory_quantity":0,"inventory_policy":"deny"}}`))
		case "3":
			_, _ = w.Write([]byte(`{"variant":{"id":3,"inventory_quantity":0,"inventory_policy":"continue"}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"errors":"Not Found"}`))
		}
	}}
	client, _ := newTestClient(t, fake, func(c *Config) { c.AccessToken = "shpat_static" })

	tests := []struct {
		variant   domain.VariantID
		available bool
		quantity  int
	}{
		{"1", true, 5},
		{"gid://shopify/ProductVariant/2", false, 0},
		{"3", true, 0},
		{"404", true, 0},
		{"not-a-number", true, 0},
	}

	for _, tt := range tests {
		t.Run(string(tt.variant), func(t *testing.T) {
			status, err := client.CheckInventory(t.Context(), tt.variant)
			require.NoError(t, err)
			assert.Equal(t, tt.available, status.Available)
			assert.Equal(t, tt.quantity, status.Quantity)
		})
	}
}

func TestNumericVariantID(t *testing.T) {
	id, ok := numericVariantID("gid://shopify/ProductVariant/44012345678901")
	assert.True(t, ok)
	assert.Equal(t, "44012345678901", id)

	_, ok = numericVariantID("")
	assert.False(t, ok)
	_, ok = numericVariantID("abc")
	assert.False(t, ok)
}

func TestBuildLineItems_CustomItemFallsBackToVariantText(t *testing.T) {
	items := buildLineItems([]domain.CartItem{{VariantID: "SKU-RED", Quantity: 1}})
	require.Len(t, items, 1)
	assert.Equal(t, "SKU-RED", items[0].Title)
	assert.Equal(t, "0.00", items[0].Price)
	assert.True(t, items[0].RequiresShipping)
}

func TestSplitName(t *testing.T) {
	first, last := splitName("  Jane   Wanjiku Kamau ")
	assert.Equal(t, "Jane", first)
	assert.Equal(t, "Wanjiku Kamau", last)

	first, last = splitName("Jane")
	assert.Equal(t, "Jane", first)
	assert.Empty(t, last)
}

func TestErrorMessage(t *testing.T) {
	assert.Equal(t, "Not Found", errorMessage([]byte(`{"errors":"Not Found"}`)))
	assert.Equal(t, "a; b", errorMessage([]byte(`{"errors":["a","b"]}`)))
	assert.Equal(t, "email: is invalid", errorMessage([]byte(`{"errors":{"email":["is invalid"]}}`)))
	assert.Equal(t, "bad client", errorMessage([]byte(`{"error":"invalid_client","error_description":"bad client"}`)))
	assert.Empty(t, errorMessage([]byte(`<html>`)))
}
