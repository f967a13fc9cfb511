package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// InstallmentStatus is always derived from confirmed settlements, never stored
type InstallmentStatus string

const (
	InstallmentPending       InstallmentStatus = "PENDING"
	InstallmentPartiallyPaid InstallmentStatus = "PARTIALLY_PAID"
	InstallmentPaid          InstallmentStatus = "PAID"
	InstallmentOverdue       InstallmentStatus = "OVERDUE"
)

// PaymentPlan is the installment schedule generated once per enrollment
type PaymentPlan struct {
	ID               uint            `gorm:"primaryKey" json:"id"`
	EnrollmentID     uint            `gorm:"not null;uniqueIndex" json:"enrollment_id"`
	BaseAmount       decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"base_amount"`
	DiscountPercent  decimal.Decimal `gorm:"type:numeric(5,2);not null" json:"discount_percent"`
	AgreementID      *uint           `gorm:"index" json:"agreement_id,omitempty"`
	AgreementPercent decimal.Decimal `gorm:"type:numeric(5,2);not null" json:"agreement_percent"`
	TotalAmount      decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"total_amount"`
	InstallmentCount int             `gorm:"not null" json:"installment_count"` // monthly installments, deposit excluded
	IncludesDeposit  bool            `gorm:"not null" json:"includes_deposit"`
	Currency         string          `gorm:"type:varchar(10);not null" json:"currency"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`

	// Relationships
	Enrollment   *Enrollment   `gorm:"foreignKey:EnrollmentID" json:"enrollment,omitempty"`
	Installments []Installment `gorm:"foreignKey:PaymentPlanID;constraint:OnDelete:CASCADE" json:"installments,omitempty"`
}

// TableName specifies the table name for PaymentPlan
func (PaymentPlan) TableName() string {
	return "payment_plans"
}

// ScheduledTotal sums the nominal amounts of the loaded installments
func (p *PaymentPlan) ScheduledTotal() decimal.Decimal {
	total := decimal.Zero
	for _, inst := range p.Installments {
		total = total.Add(inst.Amount)
	}
	return total
}

// Installment is one payable slice of a PaymentPlan
type Installment struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	PaymentPlanID uint            `gorm:"not null;index" json:"payment_plan_id"`
	Sequence      int             `gorm:"not null" json:"sequence"` // 0 is the up-front deposit when present
	Label         string          `gorm:"type:varchar(100)" json:"label"`
	StartDate     time.Time       `gorm:"not null" json:"start_date"`
	DueDate       time.Time       `gorm:"not null;index" json:"due_date"`
	Amount        decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"amount"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`

	// Relationships
	Settlements []Settlement `gorm:"foreignKey:InstallmentID" json:"settlements,omitempty"`
}

// TableName specifies the table name for Installment
func (Installment) TableName() string {
	return "installments"
}

// PaidAmount sums the loaded settlements that are confirmed
func (i *Installment) PaidAmount() decimal.Decimal {
	paid := decimal.Zero
	for _, s := range i.Settlements {
		if s.Confirmed {
			paid = paid.Add(s.Amount)
		}
	}
	return paid
}

// DeriveStatus computes an installment status from its nominal and paid amounts
func DeriveStatus(nominal, paid decimal.Decimal, due, now time.Time) InstallmentStatus {
	remaining := nominal.Sub(paid)
	switch {
	case !remaining.IsPositive():
		return InstallmentPaid
	case now.After(due):
		return InstallmentOverdue
	case paid.IsPositive():
		return InstallmentPartiallyPaid
	default:
		return InstallmentPending
	}
}
