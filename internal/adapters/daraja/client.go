package daraja

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/kevin07696/mpesa-bridge/internal/domain"
	"github.com/kevin07696/mpesa-bridge/internal/domain/ports"
	"github.com/kevin07696/mpesa-bridge/pkg/observability"
	"github.com/kevin07696/mpesa-bridge/pkg/resilience"
	"github.com/kevin07696/mpesa-bridge/pkg/timeutil"
	"go.uber.org/zap"
)

const (
	tokenPath = "/oauth/v1/generate?grant_type=client_credentials"
	pushPath  = "/mpesa/stkpush/v1/processrequest"
	queryPath = "/mpesa/stkpushquery/v1/query"

	// Daraja answers a query for an in-flight push with this error code
	// instead of a ResultCode
	errorCodeStillProcessing = "500.001.1001"

	maxTokenAttempts = 3
	maxResponseBytes = 1 << 20
	serviceLabel     = "daraja"
)

var _ ports.PaymentGateway = (*Client)(nil)

// statusError is a non-2xx response from Daraja
type statusError struct {
	api    *apiError
	body   string
	status int
}

func (e *statusError) Error() string {
	if e.api != nil {
		return fmt.Sprintf("daraja returned %d: %s %s", e.status, e.api.ErrorCode, e.api.ErrorMessage)
	}
	return fmt.Sprintf("daraja returned %d", e.status)
}

// Client implements ports.PaymentGateway against the Safaricom Daraja API
type Client struct {
	config     *Config
	httpClient *http.Client
	logger     *zap.Logger
	breaker    *resilience.CircuitBreaker
	backoff    resilience.BackoffStrategy
	clock      timeutil.Clock

	tokenMu     sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewClient creates a Daraja client. httpClient must carry a bounded timeout.
func NewClient(config *Config, httpClient *http.Client, logger *zap.Logger) *Client {
	return &Client{
		config:     config,
		httpClient: httpClient,
		logger:     logger,
		breaker:    resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig()),
		backoff:    resilience.TokenBackoff(),
		clock:      timeutil.SystemClock{},
	}
}

// Password is base64(shortcode + passkey + timestamp)
func (c *Client) Password(timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(c.config.Shortcode + c.config.Passkey + timestamp))
}

// InitiatePush sends an STK push to the customer's handset
func (c *Client) InitiatePush(ctx context.Context, req domain.PushRequest) (*domain.PushResult, error) {
	start := time.Now()

	var result *domain.PushResult
	err := c.breaker.Call(func() error {
		var err error
		result, err = c.initiatePush(ctx, req)
		return err
	}, isRejection)

	c.observe("stk_push", start, err)
	if err != nil {
		return nil, c.breakerError(err)
	}
	return result, nil
}

func (c *Client) initiatePush(ctx context.Context, req domain.PushRequest) (*domain.PushResult, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	timestamp := timeutil.GatewayTimestamp(c.clock.Now())
	txType, partyB := c.config.transactionType()
	payload := stkPushRequest{
		BusinessShortCode: c.config.Shortcode,
		Password:          c.Password(timestamp),
		Timestamp:         timestamp,
		TransactionType:   txType,
		Amount:            req.Amount,
		PartyA:            req.Phone,
		PartyB:            partyB,
		PhoneNumber:       req.Phone,
		CallBackURL:       c.config.CallbackURL,
		AccountReference:  truncate(req.Reference, maxAccountReferenceLen),
		TransactionDesc:   truncate(req.Description, maxDescriptionLen),
	}

	c.logger.Info("Sending STK push",
		zap.String("phone", maskPhone(req.Phone)),
		zap.Int64("amount", req.Amount),
		zap.String("reference", payload.AccountReference),
		zap.String("transaction_type", txType),
	)

	body, err := c.postJSON(ctx, pushPath, token, payload)
	if err != nil {
		return nil, c.classify("stk push", err)
	}

	var resp stkPushResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, domain.WrapError(domain.ErrorCodeGatewayError, "invalid stk push response", err)
	}

	if resp.ResponseCode != "0" {
		c.logger.Warn("STK push rejected",
			zap.String("response_code", string(resp.ResponseCode)),
			zap.String("response_description", resp.ResponseDescription),
		)
		return nil, domain.NewDomainError(domain.ErrorCodeGatewayRejected, "stk push rejected").
			WithDetail("response_code", string(resp.ResponseCode)).
			WithDetail("response_description", resp.ResponseDescription)
	}
	if resp.CheckoutRequestID == "" {
		return nil, domain.NewDomainError(domain.ErrorCodeGatewayError, "stk push response missing CheckoutRequestID")
	}

	c.logger.Info("STK push accepted",
		zap.String("checkout_request_id", resp.CheckoutRequestID),
		zap.String("merchant_request_id", resp.MerchantRequestID),
	)

	return &domain.PushResult{
		CheckoutRequestID:   resp.CheckoutRequestID,
		MerchantRequestID:   resp.MerchantRequestID,
		ResponseDescription: resp.ResponseDescription,
	}, nil
}

// QueryStatus asks Daraja for the live result of a push
func (c *Client) QueryStatus(ctx context.Context, checkoutRequestID string) (*domain.GatewayStatus, error) {
	start := time.Now()

	var result *domain.GatewayStatus
	err := c.breaker.Call(func() error {
		var err error
		result, err = c.queryStatus(ctx, checkoutRequestID)
		return err
	}, isRejection)

	c.observe("stk_query", start, err)
	if err != nil {
		return nil, c.breakerError(err)
	}
	return result, nil
}

func (c *Client) queryStatus(ctx context.Context, checkoutRequestID string) (*domain.GatewayStatus, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	timestamp := timeutil.GatewayTimestamp(c.clock.Now())
	body, err := c.postJSON(ctx, queryPath, token, stkQueryRequest{
		BusinessShortCode: c.config.Shortcode,
		Password:          c.Password(timestamp),
		Timestamp:         timestamp,
		CheckoutRequestID: checkoutRequestID,
	})
	if err != nil {
		var se *statusError
		if errors.As(err, &se) && se.api != nil && se.api.ErrorCode == errorCodeStillProcessing {
			return &domain.GatewayStatus{ResultCode: se.api.ErrorCode, ResultDesc: se.api.ErrorMessage}, nil
		}
		return nil, c.classify("stk query", err)
	}

	var resp stkQueryResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, domain.WrapError(domain.ErrorCodeGatewayError, "invalid stk query response", err)
	}
	if resp.ResultCode == "" {
		return nil, domain.NewDomainError(domain.ErrorCodeGatewayError, "stk query response missing ResultCode")
	}

	c.logger.Debug("STK query answered",
		zap.String("checkout_request_id", checkoutRequestID),
		zap.String("result_code", string(resp.ResultCode)),
		zap.String("result_desc", resp.ResultDesc),
	)

	return &domain.GatewayStatus{ResultCode: string(resp.ResultCode), ResultDesc: resp.ResultDesc}, nil
}

// accessToken returns the cached bearer token, fetching a new one when it is
// within tokenSafetyMargin of expiry
func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()

	if c.token != "" && c.clock.Now().Before(c.tokenExpiry) {
		return c.token, nil
	}

	var lastErr error
	for attempt := 0; attempt < maxTokenAttempts; attempt++ {
		if attempt > 0 {
			delay := c.backoff.NextDelay(attempt - 1)
			c.logger.Warn("Retrying Daraja token fetch",
				zap.Int("attempt", attempt),
				zap.Duration("backoff_delay", delay),
				zap.Error(lastErr),
			)
			select {
			case <-ctx.Done():
				return "", c.classify("token fetch", ctx.Err())
			case <-time.After(delay):
			}
		}

		start := time.Now()
		token, ttl, err := c.fetchToken(ctx)
		c.observe("token", start, err)
		if err == nil {
			c.token = token
			c.tokenExpiry = c.clock.Now().Add(ttl - tokenSafetyMargin)
			return token, nil
		}
		lastErr = err

		var se *statusError
		if errors.As(err, &se) && se.status < http.StatusInternalServerError {
			break
		}
	}

	c.logger.Error("Failed to get Daraja access token", zap.Error(lastErr))
	return "", c.classify("token fetch", lastErr)
}

func (c *Client) fetchToken(ctx context.Context) (string, time.Duration, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.baseURL()+tokenPath, nil)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.SetBasicAuth(c.config.ConsumerKey, c.config.ConsumerSecret)

	body, err := c.do(httpReq)
	if err != nil {
		return "", 0, err
	}

	var resp tokenResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", 0, fmt.Errorf("invalid token response: %w", err)
	}
	if resp.AccessToken == "" {
		return "", 0, errors.New("token response missing access_token")
	}

	seconds, err := strconv.Atoi(string(resp.ExpiresIn))
	if err != nil || seconds <= 0 {
		seconds = 3599
	}

	return resp.AccessToken, time.Duration(seconds) * time.Second, nil
}

// invalidateToken drops a token Daraja has refused
func (c *Client) invalidateToken() {
	c.tokenMu.Lock()
	c.token = ""
	c.tokenExpiry = time.Time{}
	c.tokenMu.Unlock()
}

func (c *Client) postJSON(ctx context.Context, path, token string, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.baseURL()+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Content-Type", "application/json")

	body, err := c.do(httpReq)
	var se *statusError
	if errors.As(err, &se) && se.status == http.StatusUnauthorized {
		c.invalidateToken()
	}
	return body, err
}

func (c *Client) do(httpReq *http.Request) ([]byte, error) {
	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		se := &statusError{status: httpResp.StatusCode, api: parseAPIError(body), body: string(body)}
		c.logger.Warn("Daraja returned error status",
			zap.String("path", httpReq.URL.Path),
			zap.Int("status_code", se.status),
			zap.String("response_body", se.body),
		)
		return nil, se
	}

	return body, nil
}

// classify maps a transport or status failure to a gateway domain error.
// 4xx answers other than auth failures are rejections of this request.
func (c *Client) classify(op string, err error) error {
	var domainErr *domain.DomainError
	if errors.As(err, &domainErr) {
		return err
	}

	var se *statusError
	if errors.As(err, &se) {
		if se.status >= 400 && se.status < 500 && se.status != http.StatusUnauthorized {
			return domain.WrapError(domain.ErrorCodeGatewayRejected, op+" rejected", err)
		}
		return domain.WrapError(domain.ErrorCodeGatewayError, op+" failed", err)
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return domain.WrapError(domain.ErrorCodeGatewayTimeout, op+" timed out", err)
	}
	return domain.WrapError(domain.ErrorCodeGatewayError, op+" failed", err)
}

func (c *Client) breakerError(err error) error {
	if errors.Is(err, resilience.ErrCircuitOpen) || errors.Is(err, resilience.ErrTooManyProbes) {
		return domain.WrapError(domain.ErrorCodeGatewayError, "daraja unavailable", err)
	}
	return err
}

func (c *Client) observe(operation string, start time.Time, err error) {
	outcome := "ok"
	switch {
	case err == nil:
	case isRejection(err):
		outcome = "rejected"
	default:
		outcome = "error"
	}
	observability.RecordExternalCall(serviceLabel, operation, outcome, time.Since(start))
}

func isRejection(err error) bool {
	return domain.GetErrorCode(err) == domain.ErrorCodeGatewayRejected
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// maskPhone keeps the country code and last three digits
func maskPhone(phone string) string {
	if len(phone) <= 6 {
		return "***"
	}
	return phone[:3] + "******" + phone[len(phone)-3:]
}
