package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// SettlementStatus represents the lifecycle state of a payment attempt
type SettlementStatus string

const (
	SettlementRequested SettlementStatus = "requested"
	SettlementConfirmed SettlementStatus = "confirmed"
	SettlementFailed    SettlementStatus = "failed"
)

// SettlementMethod is how the money was collected
type SettlementMethod string

const (
	SettlementMethodManual SettlementMethod = "manual"
	SettlementMethodQR     SettlementMethod = "qr"
)

// Settlement is one payment attempt or record against an installment.
// Rows are never deleted; unconfirmed attempts stay as an audit trail.
type Settlement struct {
	ID                   uint             `gorm:"primaryKey" json:"id"`
	InstallmentID        uint             `gorm:"not null;index" json:"installment_id"`
	Amount               decimal.Decimal  `gorm:"type:numeric(12,2);not null" json:"amount"`
	Currency             string           `gorm:"type:varchar(10);not null" json:"currency"`
	Method               SettlementMethod `gorm:"type:varchar(20);not null" json:"method"`
	Status               SettlementStatus `gorm:"type:varchar(20);not null;index" json:"status"`
	ExternalReference    string           `gorm:"type:varchar(64);not null;uniqueIndex" json:"external_reference"`
	GatewayTransactionID string           `gorm:"type:varchar(100);index" json:"gateway_transaction_id,omitempty"`
	Confirmed            bool             `gorm:"not null" json:"confirmed"`
	ConfirmedAt          *time.Time       `json:"confirmed_at,omitempty"`
	RequestedAt          time.Time        `gorm:"not null" json:"requested_at"`
	ExpiresAt            *time.Time       `json:"expires_at,omitempty"`

	PayerKind      PayerKind `gorm:"type:varchar(20)" json:"payer_kind"`
	PayerID        uint      `json:"payer_id"`
	VerifiedByKind PayerKind `gorm:"type:varchar(20)" json:"verified_by_kind,omitempty"`
	VerifiedByID   *uint     `json:"verified_by_id,omitempty"`

	QRImage    string `gorm:"type:text" json:"qr_image,omitempty"` // base64 PNG as issued by the gateway
	QRImageURL string `gorm:"type:varchar(512)" json:"qr_image_url,omitempty"`

	// Reported by the gateway on status queries; kept apart from Amount so a
	// mismatch can be detected instead of silently overwritten.
	ReportedAmount decimal.NullDecimal `gorm:"type:numeric(12,2)" json:"reported_amount,omitempty"`
	PayerName      string              `gorm:"type:varchar(255)" json:"payer_name,omitempty"`
	PayerDocument  string              `gorm:"type:varchar(50)" json:"payer_document,omitempty"`
	GatewayPayload datatypes.JSON      `json:"gateway_payload,omitempty"`

	FailureReason  string `gorm:"type:text" json:"failure_reason,omitempty"`
	Notes          string `gorm:"type:text" json:"notes,omitempty"`
	SupersededByID *uint  `gorm:"index" json:"superseded_by_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for Settlement
func (Settlement) TableName() string {
	return "settlements"
}

// Payer returns the identity the settlement was requested for
func (s *Settlement) Payer() PayerIdentity {
	return PayerIdentity{Kind: s.PayerKind, ID: s.PayerID}
}

// IsTerminal reports whether no further transition is allowed
func (s *Settlement) IsTerminal() bool {
	return s.Confirmed || s.Status == SettlementConfirmed || s.Status == SettlementFailed
}

// IsActiveQR reports whether this is an issued, unexpired QR still awaiting payment
func (s *Settlement) IsActiveQR(now time.Time) bool {
	if s.Method != SettlementMethodQR || s.Status != SettlementRequested || s.Confirmed {
		return false
	}
	if s.SupersededByID != nil || s.GatewayTransactionID == "" {
		return false
	}
	return s.ExpiresAt == nil || now.Before(*s.ExpiresAt)
}

// IsIssuing reports whether the gateway call for this QR may still be
// running. Rows older than window are treated as abandoned.
func (s *Settlement) IsIssuing(now time.Time, window time.Duration) bool {
	if s.Method != SettlementMethodQR || s.Status != SettlementRequested || s.Confirmed {
		return false
	}
	if s.SupersededByID != nil || s.GatewayTransactionID != "" || s.FailureReason != "" {
		return false
	}
	return now.Sub(s.RequestedAt) < window
}
