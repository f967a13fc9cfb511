package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sahilchouksey/tuition-api/model"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// InstallmentBalance is the derived state of one installment
type InstallmentBalance struct {
	InstallmentID uint                    `json:"installment_id"`
	Sequence      int                     `json:"sequence"`
	Label         string                  `json:"label"`
	DueDate       time.Time               `json:"due_date"`
	Nominal       decimal.Decimal         `json:"nominal"`
	Paid          decimal.Decimal         `json:"paid"`
	Remaining     decimal.Decimal         `json:"remaining"`
	Status        model.InstallmentStatus `json:"status"`
	Overdue       bool                    `json:"overdue"`
	FullyPaid     bool                    `json:"fully_paid"`
}

// PlanSummary aggregates every installment of a plan
type PlanSummary struct {
	PlanID          uint                 `json:"plan_id"`
	EnrollmentID    uint                 `json:"enrollment_id"`
	Currency        string               `json:"currency"`
	TotalAmount     decimal.Decimal      `json:"total_amount"`
	PaidAmount      decimal.Decimal      `json:"paid_amount"`
	RemainingAmount decimal.Decimal      `json:"remaining_amount"`
	Complete        bool                 `json:"complete"`
	Installments    []InstallmentBalance `json:"installments"`
}

// LedgerService answers "is this installment paid" from confirmed settlements only
type LedgerService struct {
	db  *gorm.DB
	now func() time.Time
}

// NewLedgerService creates a new ledger service
func NewLedgerService(db *gorm.DB) *LedgerService {
	return &LedgerService{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// BalanceOf derives an InstallmentBalance from a nominal and a paid amount
func BalanceOf(inst *model.Installment, paid decimal.Decimal, now time.Time) InstallmentBalance {
	remaining := inst.Amount.Sub(paid)
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}
	status := model.DeriveStatus(inst.Amount, paid, inst.DueDate, now)
	return InstallmentBalance{
		InstallmentID: inst.ID,
		Sequence:      inst.Sequence,
		Label:         inst.Label,
		DueDate:       inst.DueDate,
		Nominal:       inst.Amount,
		Paid:          paid,
		Remaining:     remaining,
		Status:        status,
		Overdue:       status == model.InstallmentOverdue,
		FullyPaid:     status == model.InstallmentPaid,
	}
}

// InstallmentBalance returns paid, remaining and overdue for one installment
func (s *LedgerService) InstallmentBalance(ctx context.Context, installmentID uint) (*InstallmentBalance, error) {
	var inst model.Installment
	if err := s.db.WithContext(ctx).First(&inst, installmentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInstallmentNotFound
		}
		return nil, fmt.Errorf("failed to load installment: %w", err)
	}

	paid, err := confirmedTotal(s.db.WithContext(ctx), inst.ID)
	if err != nil {
		return nil, err
	}

	balance := BalanceOf(&inst, paid, s.now())
	return &balance, nil
}

// PlanSummary returns every installment balance of a plan plus totals
func (s *LedgerService) PlanSummary(ctx context.Context, planID uint) (*PlanSummary, error) {
	return planSummary(s.db.WithContext(ctx), planID, s.now())
}

func planSummary(db *gorm.DB, planID uint, now time.Time) (*PlanSummary, error) {
	var plan model.PaymentPlan
	err := db.Preload("Installments", func(tx *gorm.DB) *gorm.DB {
		return tx.Order("sequence ASC")
	}).Preload("Installments.Settlements", "confirmed = ?", true).
		First(&plan, planID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPlanNotFound
		}
		return nil, fmt.Errorf("failed to load payment plan: %w", err)
	}

	summary := &PlanSummary{
		PlanID:          plan.ID,
		EnrollmentID:    plan.EnrollmentID,
		Currency:        plan.Currency,
		TotalAmount:     plan.TotalAmount,
		PaidAmount:      decimal.Zero,
		RemainingAmount: decimal.Zero,
		Complete:        len(plan.Installments) > 0,
		Installments:    make([]InstallmentBalance, 0, len(plan.Installments)),
	}
	for i := range plan.Installments {
		inst := &plan.Installments[i]
		balance := BalanceOf(inst, inst.PaidAmount(), now)
		summary.Installments = append(summary.Installments, balance)
		summary.PaidAmount = summary.PaidAmount.Add(balance.Paid)
		summary.RemainingAmount = summary.RemainingAmount.Add(balance.Remaining)
		if !balance.FullyPaid {
			summary.Complete = false
		}
	}
	return summary, nil
}

// confirmedTotal sums confirmed settlements of an installment. Called inside
// the confirming transaction it sees every earlier commit.
func confirmedTotal(tx *gorm.DB, installmentID uint) (decimal.Decimal, error) {
	var amounts []decimal.Decimal
	err := tx.Model(&model.Settlement{}).
		Where("installment_id = ? AND confirmed = ?", installmentID, true).
		Pluck("amount", &amounts).Error
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum settlements: %w", err)
	}
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total.Round(2), nil
}

// forUpdate adds SELECT ... FOR UPDATE where the dialect supports it.
// SQLite runs with a single connection, so writers are already serialized.
func forUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "postgres" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

// lockInstallment loads an installment holding its row lock until tx ends
func lockInstallment(tx *gorm.DB, installmentID uint) (*model.Installment, error) {
	var inst model.Installment
	if err := forUpdate(tx).First(&inst, installmentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInstallmentNotFound
		}
		return nil, fmt.Errorf("failed to lock installment: %w", err)
	}
	return &inst, nil
}
