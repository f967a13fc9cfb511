package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sahilchouksey/tuition-api/model"
	"github.com/sahilchouksey/tuition-api/services/calculator"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PlanService generates and corrects payment plans
type PlanService struct {
	db  *gorm.DB
	now func() time.Time
}

// NewPlanService creates a new plan service
func NewPlanService(db *gorm.DB) *PlanService {
	return &PlanService{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// GeneratePlanRequest holds the inputs for a plan. AgreementPercent, when
// set, overrides the agreement lookup.
type GeneratePlanRequest struct {
	EnrollmentID     uint
	DiscountPercent  decimal.Decimal
	AgreementPercent *decimal.Decimal
	InstallmentCount int
	IncludeDeposit   bool
	Amounts          []decimal.Decimal
}

// GeneratePlan computes and stores the plan of an enrollment. The plan and
// its installments are written in one transaction; nothing is stored on error.
func (s *PlanService) GeneratePlan(ctx context.Context, req GeneratePlanRequest) (*model.PaymentPlan, error) {
	var plan *model.PaymentPlan

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		enrollment, err := loadEnrollment(tx, req.EnrollmentID)
		if err != nil {
			return err
		}

		var existing int64
		if err := tx.Model(&model.PaymentPlan{}).Where("enrollment_id = ?", enrollment.ID).Count(&existing).Error; err != nil {
			return fmt.Errorf("failed to check existing plan: %w", err)
		}
		if existing > 0 {
			return ErrPlanExists
		}

		plan = &model.PaymentPlan{EnrollmentID: enrollment.ID}
		if err := s.fillPlan(tx, plan, enrollment, req); err != nil {
			return err
		}

		if err := tx.Create(plan).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrPlanExists
			}
			return fmt.Errorf("failed to create payment plan: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("payment plan generated",
		"plan_id", plan.ID,
		"enrollment_id", plan.EnrollmentID,
		"total", plan.TotalAmount.StringFixed(2),
		"installments", len(plan.Installments),
	)
	return plan, nil
}

// RegeneratePlan replaces the installments of an existing plan. It is
// rejected once any settlement exists against the plan.
func (s *PlanService) RegeneratePlan(ctx context.Context, req GeneratePlanRequest) (*model.PaymentPlan, error) {
	var plan model.PaymentPlan

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		enrollment, err := loadEnrollment(tx, req.EnrollmentID)
		if err != nil {
			return err
		}

		if err := forUpdate(tx).Where("enrollment_id = ?", enrollment.ID).First(&plan).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrPlanNotFound
			}
			return fmt.Errorf("failed to load payment plan: %w", err)
		}

		count, err := planSettlementCount(tx, plan.ID)
		if err != nil {
			return err
		}
		if count > 0 {
			return ErrPlanLocked
		}

		if err := tx.Where("payment_plan_id = ?", plan.ID).Delete(&model.Installment{}).Error; err != nil {
			return fmt.Errorf("failed to remove installments: %w", err)
		}

		plan.Installments = nil
		plan.AgreementID = nil
		if err := s.fillPlan(tx, &plan, enrollment, req); err != nil {
			return err
		}

		// Save would upsert the association too; write the plan row and the
		// new installments explicitly.
		if err := tx.Model(&plan).Select(
			"BaseAmount", "DiscountPercent", "AgreementID", "AgreementPercent",
			"TotalAmount", "InstallmentCount", "IncludesDeposit", "Currency",
		).Updates(&plan).Error; err != nil {
			return fmt.Errorf("failed to update payment plan: %w", err)
		}
		for i := range plan.Installments {
			plan.Installments[i].PaymentPlanID = plan.ID
		}
		if err := tx.Create(&plan.Installments).Error; err != nil {
			return fmt.Errorf("failed to create installments: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("payment plan regenerated", "plan_id", plan.ID, "total", plan.TotalAmount.StringFixed(2))
	return &plan, nil
}

// fillPlan computes the schedule and copies it onto plan
func (s *PlanService) fillPlan(tx *gorm.DB, plan *model.PaymentPlan, enrollment *model.Enrollment, req GeneratePlanRequest) error {
	agreementPercent := decimal.Zero
	switch {
	case req.AgreementPercent != nil:
		agreementPercent = *req.AgreementPercent
	default:
		agreement, err := findAgreement(tx, enrollment)
		if err != nil {
			return err
		}
		if agreement != nil {
			plan.AgreementID = &agreement.ID
			agreementPercent = agreement.Percent
		}
	}

	sched, err := calculator.Compute(calculator.PlanInput{
		ProgramCost:      enrollment.Program.Cost,
		DiscountPercent:  req.DiscountPercent,
		AgreementPercent: agreementPercent,
		InstallmentCount: req.InstallmentCount,
		IncludeDeposit:   req.IncludeDeposit,
		Amounts:          req.Amounts,
	}, s.now())
	if err != nil {
		return err
	}

	currency := enrollment.Program.Currency
	if currency == "" {
		currency = "BOB"
	}

	plan.BaseAmount = enrollment.Program.Cost
	plan.DiscountPercent = req.DiscountPercent
	plan.AgreementPercent = agreementPercent
	plan.TotalAmount = sched.FinalAmount
	plan.InstallmentCount = req.InstallmentCount
	plan.IncludesDeposit = req.IncludeDeposit
	plan.Currency = currency
	plan.Installments = make([]model.Installment, 0, len(sched.Installments))
	for _, si := range sched.Installments {
		plan.Installments = append(plan.Installments, model.Installment{
			Sequence:  si.Sequence,
			Label:     si.Label,
			StartDate: si.StartDate,
			DueDate:   si.DueDate,
			Amount:    si.Amount,
		})
	}
	return nil
}

// GetPlan loads a plan with its installments in schedule order
func (s *PlanService) GetPlan(ctx context.Context, planID uint) (*model.PaymentPlan, error) {
	var plan model.PaymentPlan
	err := s.db.WithContext(ctx).Preload("Installments", func(tx *gorm.DB) *gorm.DB {
		return tx.Order("sequence ASC")
	}).First(&plan, planID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPlanNotFound
		}
		return nil, fmt.Errorf("failed to load payment plan: %w", err)
	}
	return &plan, nil
}

// DeleteInstallment removes an unpaid installment and shrinks the plan total
// so the plan still sums to its installments. Only allowed before any
// settlement exists on the plan.
func (s *PlanService) DeleteInstallment(ctx context.Context, installmentID uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inst, err := lockInstallment(tx, installmentID)
		if err != nil {
			return err
		}

		var own int64
		if err := tx.Model(&model.Settlement{}).Where("installment_id = ?", inst.ID).Count(&own).Error; err != nil {
			return fmt.Errorf("failed to count settlements: %w", err)
		}
		if own > 0 {
			return ErrInstallmentLocked
		}

		var plan model.PaymentPlan
		if err := forUpdate(tx).First(&plan, inst.PaymentPlanID).Error; err != nil {
			return fmt.Errorf("failed to load payment plan: %w", err)
		}
		count, err := planSettlementCount(tx, plan.ID)
		if err != nil {
			return err
		}
		if count > 0 {
			return ErrPlanLocked
		}

		if err := tx.Delete(&model.Installment{}, inst.ID).Error; err != nil {
			return fmt.Errorf("failed to delete installment: %w", err)
		}

		updates := map[string]interface{}{
			"total_amount": plan.TotalAmount.Sub(inst.Amount),
		}
		if inst.Sequence == 0 {
			updates["includes_deposit"] = false
		} else {
			updates["installment_count"] = plan.InstallmentCount - 1
		}
		if err := tx.Model(&plan).Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to update payment plan: %w", err)
		}

		slog.Info("installment deleted", "installment_id", inst.ID, "plan_id", plan.ID)
		return nil
	})
}

func loadEnrollment(tx *gorm.DB, enrollmentID uint) (*model.Enrollment, error) {
	var enrollment model.Enrollment
	if err := tx.Preload("Program").First(&enrollment, enrollmentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEnrollmentNotFound
		}
		return nil, fmt.Errorf("failed to load enrollment: %w", err)
	}
	if enrollment.Program == nil {
		return nil, fmt.Errorf("%w: enrollment %d has no program", ErrInvalidPlan, enrollment.ID)
	}
	return &enrollment, nil
}

// findAgreement returns the first active agreement covering the enrollment,
// by ascending id. The first match wins even if a later one is larger.
func findAgreement(tx *gorm.DB, enrollment *model.Enrollment) (*model.Agreement, error) {
	var agreements []model.Agreement
	err := tx.Where("institution_id = ? AND active = ?", enrollment.InstitutionID, true).
		Where("program_id IS NULL OR program_id = ?", enrollment.ProgramID).
		Order("id ASC").
		Limit(1).
		Find(&agreements).Error
	if err != nil {
		return nil, fmt.Errorf("failed to look up agreements: %w", err)
	}
	if len(agreements) == 0 {
		return nil, nil
	}
	return &agreements[0], nil
}

func planSettlementCount(tx *gorm.DB, planID uint) (int64, error) {
	var count int64
	err := tx.Model(&model.Settlement{}).
		Joins("JOIN installments ON installments.id = settlements.installment_id").
		Where("installments.payment_plan_id = ?", planID).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count plan settlements: %w", err)
	}
	return count, nil
}
