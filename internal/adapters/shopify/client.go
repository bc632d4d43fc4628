package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
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
	maxResponseBytes = 1 << 20
	serviceLabel     = "shopify"
)

var _ ports.CommerceClient = (*Client)(nil)

// statusError is a non-2xx response from Shopify
type statusError struct {
	message string
	status  int
}

func (e *statusError) Error() string {
	if e.message != "" {
		return fmt.Sprintf("shopify returned %d: %s", e.status, e.message)
	}
	return fmt.Sprintf("shopify returned %d", e.status)
}

// Client implements ports.CommerceClient against the Shopify Admin REST API
type Client struct {
	config     *Config
	httpClient *http.Client
	logger     *zap.Logger
	breaker    *resilience.CircuitBreaker
	clock      timeutil.Clock

	tokenMu     sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewClient creates a Shopify client. httpClient must carry a bounded timeout.
func NewClient(config *Config, httpClient *http.Client, logger *zap.Logger) *Client {
	return &Client{
		config:     config,
		httpClient: httpClient,
		logger:     logger,
		breaker:    resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig()),
		clock:      timeutil.SystemClock{},
	}
}

// accessToken returns the static token, or a cached client-credentials token
func (c *Client) accessToken(ctx context.Context) (string, error) {
	if c.config.AccessToken != "" {
		return c.config.AccessToken, nil
	}

	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()

	if c.token != "" && c.clock.Now().Before(c.tokenExpiry.Add(-tokenSafetyMargin)) {
		return c.token, nil
	}

	c.logger.Info("Fetching Shopify access token")

	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {c.config.ClientID},
		"client_secret": {c.config.ClientSecret},
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.config.storeURL()+"/admin/oauth/access_token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	start := time.Now()
	body, err := c.do(httpReq)
	c.observe("token", start, err)
	if err != nil {
		return "", domain.WrapError(domain.ErrorCodeCommerceError, "failed to get Shopify access token", err)
	}

	var resp tokenResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", domain.WrapError(domain.ErrorCodeCommerceError, "invalid token response", err)
	}
	if resp.AccessToken == "" {
		return "", domain.NewDomainError(domain.ErrorCodeCommerceError, "token response missing access_token")
	}

	lifetime := defaultTokenLifetime
	if resp.ExpiresIn > 0 {
		lifetime = time.Duration(resp.ExpiresIn) * time.Second
	}
	c.token = resp.AccessToken
	c.tokenExpiry = c.clock.Now().Add(lifetime)

	c.logger.Info("Shopify access token obtained",
		zap.Duration("expires_in", lifetime),
		zap.String("scope", resp.Scope),
	)

	return c.token, nil
}

func (c *Client) clearToken() {
	c.tokenMu.Lock()
	c.token = ""
	c.tokenExpiry = time.Time{}
	c.tokenMu.Unlock()
}

// request calls the Admin API, refreshing the token and retrying once on 401
func (c *Client) request(ctx context.Context, method, path string, payload, out interface{}) error {
	var data []byte
	if payload != nil {
		var err error
		data, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
	}

	body, err := c.send(ctx, method, path, data)
	var se *statusError
	if errors.As(err, &se) && se.status == http.StatusUnauthorized && c.config.AccessToken == "" {
		c.logger.Info("Shopify token rejected, refreshing", zap.String("path", path))
		c.clearToken()
		body, err = c.send(ctx, method, path, data)
	}
	if err != nil {
		return err
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return domain.WrapError(domain.ErrorCodeCommerceError, "invalid response from "+path, err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, path string, data []byte) ([]byte, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	var reader io.Reader
	if data != nil {
		reader = bytes.NewReader(data)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, c.config.adminURL()+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("X-Shopify-Access-Token", token)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	return c.do(httpReq)
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
		c.logger.Warn("Shopify returned error status",
			zap.String("path", httpReq.URL.Path),
			zap.Int("status_code", httpResp.StatusCode),
			zap.String("response_body", string(body)),
		)
		return nil, &statusError{status: httpResp.StatusCode, message: errorMessage(body)}
	}

	return body, nil
}

// errorMessage flattens Shopify's "errors" value into one line
func errorMessage(body []byte) string {
	var e apiErrors
	if err := json.Unmarshal(body, &e); err != nil {
		return ""
	}
	if e.ErrorDescription != "" {
		return e.ErrorDescription
	}
	if len(e.Errors) == 0 {
		return ""
	}

	var s string
	if json.Unmarshal(e.Errors, &s) == nil {
		return s
	}
	var list []string
	if json.Unmarshal(e.Errors, &list) == nil {
		return strings.Join(list, "; ")
	}
	var fields map[string][]string
	if json.Unmarshal(e.Errors, &fields) == nil {
		parts := make([]string, 0, len(fields))
		for field, msgs := range fields {
			parts = append(parts, field+": "+strings.Join(msgs, ", "))
		}
		return strings.Join(parts, "; ")
	}
	return string(e.Errors)
}

func (c *Client) observe(operation string, start time.Time, err error) {
	outcome := "ok"
	var se *statusError
	switch {
	case err == nil:
	case errors.As(err, &se) && se.status >= 400 && se.status < 500:
		outcome = "rejected"
	default:
		outcome = "error"
	}
	observability.RecordExternalCall(serviceLabel, operation, outcome, time.Since(start))
}

// isClientError reports 4xx answers, which say nothing about Shopify's health
func isClientError(err error) bool {
	var se *statusError
	return errors.As(err, &se) && se.status >= 400 && se.status < 500
}
