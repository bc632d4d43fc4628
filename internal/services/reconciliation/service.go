// Package reconciliation correlates push payment initiations with their
// asynchronous confirmations and drives order creation from the outcome.
package reconciliation

import (
	"strconv"
	"strings"
	"time"

	"github.com/kevin07696/mpesa-bridge/internal/domain/ports"
	svcports "github.com/kevin07696/mpesa-bridge/internal/services/ports"
	"github.com/kevin07696/mpesa-bridge/pkg/resilience"
	"github.com/kevin07696/mpesa-bridge/pkg/timeutil"
	"go.uber.org/zap"
)

// DefaultRetention is how long a transaction stays queryable after creation
const DefaultRetention = 10 * time.Minute

// DefaultCommitAttempts bounds store writes of a fulfillment result per delivery
const DefaultCommitAttempts = 3

// Config tunes retention and outbound timeouts
type Config struct {
	Timeouts *resilience.TimeoutConfig
	// Retention applies to every state unless overridden below
	Retention time.Duration
	// UnresolvedRetention applies to payment_received_order_failed.
	// Zero means Retention.
	UnresolvedRetention time.Duration
	// CommitAttempts and CommitBackoff govern retries of the write that
	// records an order against its transaction
	CommitAttempts int
	CommitBackoff  resilience.BackoffStrategy
}

// DefaultConfig returns production settings
func DefaultConfig() Config {
	return Config{
		Timeouts:       resilience.DefaultTimeoutConfig(),
		Retention:      DefaultRetention,
		CommitAttempts: DefaultCommitAttempts,
		CommitBackoff:  resilience.CommitBackoff(),
	}
}

var _ svcports.PaymentService = (*Service)(nil)

// Service is the transaction reconciliation core
type Service struct {
	gateway  ports.PaymentGateway
	commerce ports.CommerceClient
	store    ports.TransactionStore
	clock    timeutil.Clock
	logger   *zap.Logger
	locks    *keyLocks
	timeouts *resilience.TimeoutConfig

	retention           time.Duration
	unresolvedRetention time.Duration
	commitAttempts      int
	commitBackoff       resilience.BackoffStrategy
}

// NewService creates a reconciliation service
func NewService(
	gateway ports.PaymentGateway,
	commerce ports.CommerceClient,
	store ports.TransactionStore,
	clock timeutil.Clock,
	logger *zap.Logger,
	cfg Config,
) *Service {
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	if cfg.Timeouts == nil {
		cfg.Timeouts = resilience.DefaultTimeoutConfig()
	}
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultRetention
	}
	if cfg.UnresolvedRetention <= 0 {
		cfg.UnresolvedRetention = cfg.Retention
	}
	if cfg.CommitAttempts <= 0 {
		cfg.CommitAttempts = DefaultCommitAttempts
	}
	if cfg.CommitBackoff == nil {
		cfg.CommitBackoff = resilience.CommitBackoff()
	}

	return &Service{
		gateway:             gateway,
		commerce:            commerce,
		store:               store,
		clock:               clock,
		logger:              logger,
		locks:               newKeyLocks(),
		timeouts:            cfg.Timeouts,
		retention:           cfg.Retention,
		unresolvedRetention: cfg.UnresolvedRetention,
		commitAttempts:      cfg.CommitAttempts,
		commitBackoff:       cfg.CommitBackoff,
	}
}

// newOrderReference derives a short caller-visible id from the clock:
// "ORD" + upper-case base-36 Unix milliseconds, which fits the gateway's
// 12-character account reference.
func (s *Service) newOrderReference() string {
	return "ORD" + strings.ToUpper(strconv.FormatInt(s.clock.Now().UnixMilli(), 36))
}
