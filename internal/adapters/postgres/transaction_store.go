package postgres

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kevin07696/mpesa-bridge/internal/domain"
	"github.com/kevin07696/mpesa-bridge/internal/domain/ports"
	"go.uber.org/zap"
)

//go:embed schema.sql
var schemaSQL string

const selectColumns = `checkout_request_id, merchant_request_id, order_reference, phone, email,
	cart_token, amount, state, cart_items, shipping, commerce_order,
	mpesa_receipt_number, error_detail, created_at, completed_at`

var _ ports.TransactionStore = (*TransactionStore)(nil)

// TransactionStore persists transactions in the mpesa_transactions table,
// letting several bridge instances share reconciliation state
type TransactionStore struct {
	pool         *pgxpool.Pool
	db           *DBExecutor
	logger       *zap.Logger
	queryTimeout time.Duration
}

// NewTransactionStore creates a store on an existing pool
func NewTransactionStore(pool *pgxpool.Pool, logger *zap.Logger, queryTimeout time.Duration) *TransactionStore {
	if queryTimeout <= 0 {
		queryTimeout = 2 * time.Second
	}
	return &TransactionStore{
		pool:         pool,
		db:           NewDBExecutor(pool),
		logger:       logger,
		queryTimeout: queryTimeout,
	}
}

// Migrate creates the table and indexes if they do not exist
func (s *TransactionStore) Migrate(ctx context.Context) error {
	return s.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, schemaSQL); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
		return nil
	})
}

func (s *TransactionStore) Insert(ctx context.Context, txn *domain.Transaction) error {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	params, err := rowParams(txn)
	if err != nil {
		return storeError("encode transaction", err)
	}

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO mpesa_transactions (
			checkout_request_id, merchant_request_id, order_reference, phone, email,
			cart_token, amount, state, cart_items, shipping, commerce_order,
			mpesa_receipt_number, error_detail, created_at, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (checkout_request_id) DO NOTHING`,
		params...,
	)
	if err != nil {
		return storeError("insert transaction", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.WrapError(domain.ErrorCodeTxnAlreadyExists, "transaction already exists", nil).
			WithDetail("checkout_request_id", txn.CheckoutRequestID)
	}
	return nil
}

func (s *TransactionStore) Get(ctx context.Context, checkoutRequestID string) (*domain.Transaction, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	row := s.pool.QueryRow(ctx,
		`SELECT `+selectColumns+` FROM mpesa_transactions WHERE checkout_request_id = $1`,
		checkoutRequestID,
	)
	txn, err := scanTransaction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrTxnNotFound
	}
	if err != nil {
		return nil, storeError("get transaction", err)
	}
	return txn, nil
}

// Update replaces the row. The stored state is locked first so a terminal
// row written by another instance is never moved to a different state.
func (s *TransactionStore) Update(ctx context.Context, txn *domain.Transaction) error {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	params, err := rowParams(txn)
	if err != nil {
		return storeError("encode transaction", err)
	}

	return s.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		var current string
		err := tx.QueryRow(ctx,
			`SELECT state FROM mpesa_transactions WHERE checkout_request_id = $1 FOR UPDATE`,
			txn.CheckoutRequestID,
		).Scan(&current)
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrTxnNotFound
		}
		if err != nil {
			return storeError("lock transaction", err)
		}

		stored := domain.TransactionState(current)
		if stored.IsTerminal() && stored != txn.State {
			return domain.WrapError(domain.ErrorCodeTxnInvalidState, "transaction already resolved", nil).
				WithDetail("checkout_request_id", txn.CheckoutRequestID).
				WithDetail("stored_state", current)
		}

		_, err = tx.Exec(ctx, `
			UPDATE mpesa_transactions SET
				merchant_request_id = $2, order_reference = $3, phone = $4, email = $5,
				cart_token = $6, amount = $7, state = $8, cart_items = $9, shipping = $10,
				commerce_order = $11, mpesa_receipt_number = $12, error_detail = $13,
				created_at = $14, completed_at = $15, updated_at = now()
			WHERE checkout_request_id = $1`,
			params...,
		)
		if err != nil {
			return storeError("update transaction", err)
		}
		return nil
	})
}

func (s *TransactionStore) Delete(ctx context.Context, checkoutRequestID string) error {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	if _, err := s.pool.Exec(ctx,
		`DELETE FROM mpesa_transactions WHERE checkout_request_id = $1`,
		checkoutRequestID,
	); err != nil {
		return storeError("delete transaction", err)
	}
	return nil
}

// ListCreatedBefore returns matches oldest first
func (s *TransactionStore) ListCreatedBefore(ctx context.Context, cutoff time.Time) ([]*domain.Transaction, error) {
	var out []*domain.Transaction
	err := s.db.WithReadOnlyTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		rows, err := tx.Query(ctx,
			`SELECT `+selectColumns+` FROM mpesa_transactions
			WHERE created_at < $1 ORDER BY created_at ASC`,
			cutoff,
		)
		if err != nil {
			return storeError("list transactions", err)
		}
		defer rows.Close()

		for rows.Next() {
			txn, err := scanTransaction(rows)
			if err != nil {
				return storeError("scan transaction", err)
			}
			out = append(out, txn)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *TransactionStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// rowParams returns the 15 column values in selectColumns order
func rowParams(txn *domain.Transaction) ([]any, error) {
	items := txn.CartItems
	if items == nil {
		items = []domain.CartItem{}
	}
	cartItems, err := jsonColumn(items)
	if err != nil {
		return nil, err
	}
	shipping, err := jsonColumn(txn.Shipping)
	if err != nil {
		return nil, err
	}
	var order []byte
	if txn.CommerceOrder != nil {
		if order, err = jsonColumn(txn.CommerceOrder); err != nil {
			return nil, err
		}
	}

	return []any{
		txn.CheckoutRequestID,
		nullText(txn.MerchantRequestID),
		txn.OrderReference,
		txn.Phone,
		nullText(txn.Email),
		nullText(txn.CartToken),
		txn.Amount,
		string(txn.State),
		cartItems,
		shipping,
		order,
		nullText(txn.MpesaReceiptNumber),
		nullText(txn.ErrorDetail),
		txn.CreatedAt,
		txn.CompletedAt,
	}, nil
}

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var (
		txn                          domain.Transaction
		merchantID, email, cartToken pgtype.Text
		receipt, errorDetail         pgtype.Text
		state                        string
		cartItems, shipping, order   []byte
		completedAt                  *time.Time
	)

	if err := row.Scan(
		&txn.CheckoutRequestID,
		&merchantID,
		&txn.OrderReference,
		&txn.Phone,
		&email,
		&cartToken,
		&txn.Amount,
		&state,
		&cartItems,
		&shipping,
		&order,
		&receipt,
		&errorDetail,
		&txn.CreatedAt,
		&completedAt,
	); err != nil {
		return nil, err
	}

	txn.MerchantRequestID = textValue(merchantID)
	txn.Email = textValue(email)
	txn.CartToken = textValue(cartToken)
	txn.MpesaReceiptNumber = textValue(receipt)
	txn.ErrorDetail = textValue(errorDetail)
	txn.State = domain.TransactionState(state)
	txn.CompletedAt = completedAt

	if err := json.Unmarshal(cartItems, &txn.CartItems); err != nil {
		return nil, fmt.Errorf("decode cart_items: %w", err)
	}
	if err := json.Unmarshal(shipping, &txn.Shipping); err != nil {
		return nil, fmt.Errorf("decode shipping: %w", err)
	}
	if len(order) > 0 {
		txn.CommerceOrder = &domain.CommerceOrder{}
		if err := json.Unmarshal(order, txn.CommerceOrder); err != nil {
			return nil, fmt.Errorf("decode commerce_order: %w", err)
		}
	}
	return &txn, nil
}

func storeError(op string, err error) error {
	return domain.WrapError(domain.ErrorCodeStoreError, op, err)
}
