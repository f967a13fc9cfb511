package pagofacil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"
)

// PaymentStatusCompleted is the paymentStatus value of a paid transaction
const PaymentStatusCompleted = 1

// TransactionQuery selects a transaction by the gateway id or by our own
// payment number. The gateway id wins when both are set.
type TransactionQuery struct {
	PagofacilTransactionID string `json:"pagofacilTransactionId,omitempty"`
	CompanyTransactionID   string `json:"companyTransactionId,omitempty"`
}

// TransactionStatus is the gateway's view of a transaction
type TransactionStatus struct {
	PagofacilTransactionID   FlexString          `json:"pagofacilTransactionId"`
	CompanyTransactionID     FlexString          `json:"companyTransactionId"`
	PaymentStatus            FlexInt             `json:"paymentStatus"`
	PaymentStatusDescription string              `json:"paymentStatusDescription"`
	Amount                   decimal.NullDecimal `json:"amount"`
	PayerName                string              `json:"payerName"`
	PayerDocument            FlexString          `json:"payerDocument"`
	PaymentDate              string              `json:"paymentDate"`
	PaymentTime              string              `json:"paymentTime"`

	// Raw is the undecoded values object, kept for audit
	Raw json.RawMessage `json:"-"`
}

// Completed reports whether the gateway considers the payment done
func (t *TransactionStatus) Completed() bool {
	return int(t.PaymentStatus) == PaymentStatusCompleted
}

// QueryTransaction asks the gateway for the current state of a transaction
func (c *Client) QueryTransaction(ctx context.Context, q TransactionQuery) (*TransactionStatus, error) {
	if q.PagofacilTransactionID != "" {
		q.CompanyTransactionID = ""
	} else if q.CompanyTransactionID == "" {
		return nil, errors.New("pagofacil: transaction query needs a transaction id or payment number")
	}

	var values rawValues
	if err := c.doAuthorized(ctx, http.MethodPost, endpointQueryTransaction, q, &values); err != nil {
		return nil, err
	}

	var status TransactionStatus
	if err := json.Unmarshal(values.raw, &status); err != nil {
		return nil, fmt.Errorf("pagofacil %s: failed to decode values: %w", endpointQueryTransaction, err)
	}
	status.Raw = values.raw
	return &status, nil
}
