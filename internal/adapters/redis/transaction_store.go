package redis

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strconv"
	"time"

	"github.com/kevin07696/mpesa-bridge/internal/domain"
	"github.com/kevin07696/mpesa-bridge/internal/domain/ports"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	defaultKeyPrefix = "mpesa:txn:"
	indexSuffix      = "created"
	maxWatchRetries  = 3
)

var _ ports.TransactionStore = (*TransactionStore)(nil)

// insertScript writes the value and its index entry in one step, and only
// when the key is new. ARGV: payload, ttl in ms (0 = none), score, member.
var insertScript = goredis.NewScript(`
local ok
if tonumber(ARGV[2]) > 0 then
  ok = redis.call('SET', KEYS[1], ARGV[1], 'NX', 'PX', ARGV[2])
else
  ok = redis.call('SET', KEYS[1], ARGV[1], 'NX')
end
if not ok then
  return 0
end
redis.call('ZADD', KEYS[2], ARGV[3], ARGV[4])
return 1
`)

// StoreConfig configures key layout and expiry
type StoreConfig struct {
	KeyPrefix string
	// TTL expires keys the sweeper never reached, e.g. after a crash.
	// Zero keeps keys until deleted.
	TTL time.Duration
}

// TransactionStore keeps each transaction as a JSON string under
// <prefix><checkoutRequestId> and indexes creation time in a sorted set
// scored by Unix milliseconds.
type TransactionStore struct {
	client goredis.UniversalClient
	logger *zap.Logger
	prefix string
	ttl    time.Duration
}

// NewTransactionStore creates a store on an existing client
func NewTransactionStore(client goredis.UniversalClient, cfg StoreConfig, logger *zap.Logger) *TransactionStore {
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &TransactionStore{
		client: client,
		logger: logger,
		prefix: prefix,
		ttl:    cfg.TTL,
	}
}

func (s *TransactionStore) key(checkoutRequestID string) string {
	return s.prefix + checkoutRequestID
}

func (s *TransactionStore) indexKey() string {
	return s.prefix + indexSuffix
}

func (s *TransactionStore) Insert(ctx context.Context, txn *domain.Transaction) error {
	payload, err := json.Marshal(txn)
	if err != nil {
		return storeError("encode transaction", err)
	}

	inserted, err := insertScript.Run(ctx, s.client,
		[]string{s.key(txn.CheckoutRequestID), s.indexKey()},
		payload, s.ttl.Milliseconds(), txn.CreatedAt.UnixMilli(), txn.CheckoutRequestID,
	).Int()
	if err != nil {
		return storeError("insert transaction", err)
	}
	if inserted == 0 {
		return domain.WrapError(domain.ErrorCodeTxnAlreadyExists, "transaction already exists", nil).
			WithDetail("checkout_request_id", txn.CheckoutRequestID)
	}
	return nil
}

func (s *TransactionStore) Get(ctx context.Context, checkoutRequestID string) (*domain.Transaction, error) {
	raw, err := s.client.Get(ctx, s.key(checkoutRequestID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, domain.ErrTxnNotFound
	}
	if err != nil {
		return nil, storeError("get transaction", err)
	}
	return decodeTransaction(raw)
}

// Update rewrites the value under WATCH so a concurrent writer on another
// instance cannot move a terminal transaction to a different state.
func (s *TransactionStore) Update(ctx context.Context, txn *domain.Transaction) error {
	payload, err := json.Marshal(txn)
	if err != nil {
		return storeError("encode transaction", err)
	}
	key := s.key(txn.CheckoutRequestID)

	update := func(tx *goredis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, goredis.Nil) {
			return domain.ErrTxnNotFound
		}
		if err != nil {
			return storeError("get transaction", err)
		}
		stored, err := decodeTransaction(raw)
		if err != nil {
			return err
		}
		if stored.State.IsTerminal() && stored.State != txn.State {
			return domain.WrapError(domain.ErrorCodeTxnInvalidState, "transaction already resolved", nil).
				WithDetail("checkout_request_id", txn.CheckoutRequestID).
				WithDetail("stored_state", string(stored.State))
		}

		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.SetArgs(ctx, key, payload, goredis.SetArgs{Mode: "XX", KeepTTL: true})
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxWatchRetries; attempt++ {
		err = s.client.Watch(ctx, update, key)
		if !errors.Is(err, goredis.TxFailedErr) {
			break
		}
		s.logger.Debug("Transaction changed during update, retrying",
			zap.String("checkout_request_id", txn.CheckoutRequestID),
			zap.Int("attempt", attempt+1),
		)
	}
	if err == nil || domain.GetErrorCode(err) != "" {
		return err
	}
	return storeError("update transaction", err)
}

func (s *TransactionStore) Delete(ctx context.Context, checkoutRequestID string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Del(ctx, s.key(checkoutRequestID))
		pipe.ZRem(ctx, s.indexKey(), checkoutRequestID)
		return nil
	})
	if err != nil {
		return storeError("delete transaction", err)
	}
	return nil
}

// ListCreatedBefore returns matches oldest first. Index entries whose key
// already expired are pruned.
func (s *TransactionStore) ListCreatedBefore(ctx context.Context, cutoff time.Time) ([]*domain.Transaction, error) {
	ids, err := s.client.ZRangeByScore(ctx, s.indexKey(), &goredis.ZRangeBy{
		Min: "-inf",
		Max: scoreBefore(cutoff),
	}).Result()
	if err != nil {
		return nil, storeError("list transactions", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.key(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, storeError("load transactions", err)
	}

	var (
		out   []*domain.Transaction
		stale []interface{}
	)
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		txn, err := decodeTransaction([]byte(raw))
		if err != nil {
			s.logger.Warn("Skipping undecodable transaction",
				zap.String("checkout_request_id", ids[i]),
				zap.Error(err),
			)
			continue
		}
		if txn.CreatedAt.Before(cutoff) {
			out = append(out, txn)
		}
	}

	if len(stale) > 0 {
		if err := s.client.ZRem(ctx, s.indexKey(), stale...).Err(); err != nil {
			s.logger.Warn("Failed to prune expired index entries", zap.Error(err))
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *TransactionStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// scoreBefore is an inclusive bound on the millisecond score; exact
// ordering is settled against CreatedAt after loading.
func scoreBefore(cutoff time.Time) string {
	return strconv.FormatInt(cutoff.UnixMilli(), 10)
}

func decodeTransaction(raw []byte) (*domain.Transaction, error) {
	var txn domain.Transaction
	if err := json.Unmarshal(raw, &txn); err != nil {
		return nil, storeError("decode transaction", err)
	}
	return &txn, nil
}

func storeError(op string, err error) error {
	return domain.WrapError(domain.ErrorCodeStoreError, op, err)
}
