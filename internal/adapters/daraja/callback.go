package daraja

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/kevin07696/mpesa-bridge/internal/domain"
	"github.com/kevin07696/mpesa-bridge/pkg/timeutil"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const resultCodeSuccess = "0"

// ParseConfirmation decodes the STK callback posted to CallBackURL.
// Metadata is read only for successful results, and a successful result
// must carry an MpesaReceiptNumber.
func (c *Client) ParseConfirmation(body []byte) (*domain.Confirmation, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var envelope callbackEnvelope
	if err := dec.Decode(&envelope); err != nil {
		return nil, domain.WrapError(domain.ErrorCodeValidationFailed, "invalid callback payload", err)
	}

	cb := envelope.Body.STKCallback
	if cb == nil {
		return nil, domain.NewDomainError(domain.ErrorCodeValidationFailed, "callback missing Body.stkCallback")
	}
	if cb.CheckoutRequestID == "" {
		return nil, domain.NewDomainError(domain.ErrorCodeValidationFailed, "callback missing CheckoutRequestID")
	}

	conf := &domain.Confirmation{
		ResultCode:        string(cb.ResultCode),
		ResultDesc:        cb.ResultDesc,
		MerchantRequestID: cb.MerchantRequestID,
		CheckoutRequestID: cb.CheckoutRequestID,
		Success:           string(cb.ResultCode) == resultCodeSuccess,
	}

	if !conf.Success {
		return conf, nil
	}
	if cb.CallbackMetadata == nil {
		return nil, domain.NewDomainError(domain.ErrorCodeValidationFailed, "successful callback missing CallbackMetadata").
			WithDetail("checkout_request_id", conf.CheckoutRequestID)
	}

	for _, item := range cb.CallbackMetadata.Item {
		value := metadataString(item.Value)
		switch item.Name {
		case "Amount":
			amount, err := decimal.NewFromString(value)
			if err != nil {
				c.logger.Warn("Unparseable callback amount",
					zap.String("checkout_request_id", conf.CheckoutRequestID),
					zap.String("amount", value),
				)
				continue
			}
			conf.Amount = amount
		case "MpesaReceiptNumber":
			conf.ReceiptNumber = value
		case "TransactionDate":
			at, err := timeutil.ParseGatewayTimestamp(value)
			if err != nil {
				c.logger.Warn("Unparseable callback transaction date",
					zap.String("checkout_request_id", conf.CheckoutRequestID),
					zap.String("transaction_date", value),
				)
				continue
			}
			conf.TransactionDate = at
		case "PhoneNumber":
			conf.PhoneNumber = value
		}
	}

	if conf.ReceiptNumber == "" {
		return nil, domain.NewDomainError(domain.ErrorCodeValidationFailed, "successful callback missing MpesaReceiptNumber").
			WithDetail("checkout_request_id", conf.CheckoutRequestID)
	}
	return conf, nil
}

func metadataString(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case json.Number:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}
