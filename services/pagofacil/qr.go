package pagofacil

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Currency codes as the gateway numbers them
const (
	CurrencyUSD = 1
	CurrencyBOB = 2
)

// CurrencyCode maps an ISO code to the gateway's numeric code, defaulting to BOB
func CurrencyCode(iso string) int {
	if strings.EqualFold(iso, "USD") {
		return CurrencyUSD
	}
	return CurrencyBOB
}

// OrderDetail is one line of the order shown to the payer
type OrderDetail struct {
	Serial   int     `json:"serial"`
	Product  string  `json:"product"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"`
	Discount float64 `json:"discount"`
	Total    float64 `json:"total"`
}

// QRRequest is the body of a generate-QR call
type QRRequest struct {
	PaymentMethod int           `json:"paymentMethod"`
	ClientName    string        `json:"clientName"`
	DocumentType  int           `json:"documentType"`
	DocumentID    string        `json:"documentId"`
	PhoneNumber   string        `json:"phoneNumber"`
	Email         string        `json:"email"`
	PaymentNumber string        `json:"paymentNumber"`
	Amount        float64       `json:"amount"`
	Currency      int           `json:"currency"`
	ClientCode    string        `json:"clientCode"`
	CallbackURL   string        `json:"callbackUrl"`
	OrderDetail   []OrderDetail `json:"orderDetail"`
}

// QRResponse is what the gateway returns for a generated QR
type QRResponse struct {
	TransactionID              FlexString `json:"transactionId"`
	PaymentMethodTransactionID FlexString `json:"paymentMethodTransactionId"`
	Status                     FlexInt    `json:"status"`
	ExpirationDate             string     `json:"expirationDate"`
	QRBase64                   string     `json:"qrBase64"`
}

var expirationLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ExpiresAt parses ExpirationDate; ok is false when it is absent or unreadable
func (r QRResponse) ExpiresAt(loc *time.Location) (time.Time, bool) {
	if r.ExpirationDate == "" {
		return time.Time{}, false
	}
	for _, layout := range expirationLayouts {
		if t, err := time.ParseInLocation(layout, r.ExpirationDate, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// NewSingleItemQRRequest builds a request for one payable concept
func NewSingleItemQRRequest(product string, amount decimal.Decimal) QRRequest {
	value := amount.Round(2).InexactFloat64()
	return QRRequest{
		Amount: value,
		OrderDetail: []OrderDetail{{
			Serial:   1,
			Product:  product,
			Quantity: 1,
			Price:    value,
			Total:    value,
		}},
	}
}

// GenerateQR asks the gateway for a payable QR. When req.PaymentMethod is
// zero the resolved QR method is filled in.
func (c *Client) GenerateQR(ctx context.Context, req QRRequest) (*QRResponse, error) {
	if req.PaymentMethod == 0 {
		req.PaymentMethod = c.ResolvePaymentMethodID(ctx)
	}
	if req.PaymentNumber == "" {
		return nil, fmt.Errorf("pagofacil: payment number is required")
	}

	var resp QRResponse
	if err := c.doAuthorized(ctx, http.MethodPost, endpointGenerateQR, req, &resp); err != nil {
		return nil, err
	}
	if resp.TransactionID == "" || resp.QRBase64 == "" {
		return nil, &APIError{Endpoint: endpointGenerateQR, StatusCode: http.StatusOK, Message: "response is missing transactionId or qrBase64"}
	}
	return &resp, nil
}
