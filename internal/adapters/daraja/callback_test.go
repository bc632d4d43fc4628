package daraja

import (
	"net/http"
	"testing"
	"time"

	"github.com/kevin07696/mpesa-bridge/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const successCallback = `{
  "Body": {
    "stkCallback": {
      "MerchantRequestID": "29115-34620561-1",
      "CheckoutRequestID": "ws_CO_191220191020363925",
      "ResultCode": 0,
      "ResultDesc": "The service request is processed successfully.",
      "CallbackMetadata": {
        "Item": [
          {"Name": "Amount", "Value": 2500.00},
          {"Name": "MpesaReceiptNumber", "Value": "NLJ7RT61SV"},
          {"Name": "Balance"},
          {"Name": "TransactionDate", "Value": 20191219102115},
          {"Name": "PhoneNumber", "Value": 254712345678}
        ]
      }
    }
  }
}`

const cancelledCallback = `{
  "Body": {
    "stkCallback": {
      "MerchantRequestID": "29115-34620561-1",
      "CheckoutRequestID": "ws_CO_191220191020363925",
      "ResultCode": 1032,
      "ResultDesc": "Request cancelled by user"
    }
  }
}`

func parser(t *testing.T) *Client {
	return NewClient(&Config{}, http.DefaultClient, zaptest.NewLogger(t))
}

func TestParseConfirmation_Success(t *testing.T) {
	conf, err := parser(t).ParseConfirmation([]byte(successCallback))
	require.NoError(t, err)

	assert.True(t, conf.Success)
	assert.Equal(t, "0", conf.ResultCode)
	assert.Equal(t, "ws_CO_191220191020363925", conf.CheckoutRequestID)
	assert.Equal(t, "29115-34620561-1", conf.MerchantRequestID)
	assert.Equal(t, "NLJ7RT61SV", conf.ReceiptNumber)
	assert.True(t, decimal.NewFromInt(2500).Equal(conf.Amount))
	assert.Equal(t, "254712345678", conf.PhoneNumber)
	assert.Equal(t, time.Date(2019, 12, 19, 7, 21, 15, 0, time.UTC), conf.TransactionDate)
}

func TestParseConfirmation_Cancelled(t *testing.T) {
	conf, err := parser(t).ParseConfirmation([]byte(cancelledCallback))
	require.NoError(t, err)

	assert.False(t, conf.Success)
	assert.Equal(t, "1032", conf.ResultCode)
	assert.Equal(t, "Request cancelled by user", conf.ResultDesc)
	assert.Empty(t, conf.ReceiptNumber)
	assert.True(t, conf.Amount.IsZero())
}

func TestParseConfirmation_StringResultCode(t *testing.T) {
	conf, err := parser(t).ParseConfirmation([]byte(`{"Body":{"stkCallback":{
		"CheckoutRequestID":"ws_CO_1","ResultCode":"0","ResultDesc":"ok",
		"CallbackMetadata":{"Item":[{"Name":"MpesaReceiptNumber","Value":"NLJ7RT61SV"}]}}}}`))
	require.NoError(t, err)
	assert.True(t, conf.Success)
	assert.Equal(t, "NLJ7RT61SV", conf.ReceiptNumber)
}

func TestParseConfirmation_SuccessWithoutReceipt(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"no metadata", `{"Body":{"stkCallback":{"CheckoutRequestID":"ws_CO_9","ResultCode":0,"ResultDesc":"ok"}}}`},
		{"metadata without receipt", `{"Body":{"stkCallback":{"CheckoutRequestID":"ws_CO_9","ResultCode":0,"ResultDesc":"ok",
			"CallbackMetadata":{"Item":[{"Name":"Amount","Value":1500}]}}}}`},
		{"empty receipt", `{"Body":{"stkCallback":{"CheckoutRequestID":"ws_CO_9","ResultCode":0,"ResultDesc":"ok",
			"CallbackMetadata":{"Item":[{"Name":"MpesaReceiptNumber","Value":""}]}}}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conf, err := parser(t).ParseConfirmation([]byte(tt.body))
			require.Error(t, err)
			assert.Nil(t, conf)
			assert.True(t, domain.IsValidationError(err))
		})
	}
}

func TestParseConfirmation_FailureIgnoresMetadata(t *testing.T) {
	conf, err := parser(t).ParseConfirmation([]byte(`{"Body":{"stkCallback":{
		"CheckoutRequestID":"ws_CO_1","ResultCode":1,"ResultDesc":"insufficient balance",
		"CallbackMetadata":{"Item":[{"Name":"MpesaReceiptNumber","Value":"SHOULDNOT"}]}}}}`))
	require.NoError(t, err)
	assert.False(t, conf.Success)
	assert.Empty(t, conf.ReceiptNumber)
}

func TestParseConfirmation_Malformed(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `not json`},
		{"missing stkCallback", `{"Body":{}}`},
		{"missing checkout id", `{"Body":{"stkCallback":{"ResultCode":0}}}`},
		{"empty", ``},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parser(t).ParseConfirmation([]byte(tt.body))
			require.Error(t, err)
			assert.True(t, domain.IsValidationError(err))
		})
	}
}
