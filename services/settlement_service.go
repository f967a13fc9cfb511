package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sahilchouksey/tuition-api/model"
	"github.com/sahilchouksey/tuition-api/services/calculator"
	"github.com/sahilchouksey/tuition-api/services/pagofacil"
	"github.com/sahilchouksey/tuition-api/utils/metrics"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	// DefaultQRLifetime applies when the gateway does not report an expiry
	DefaultQRLifetime = 24 * time.Hour
	// DefaultIssueWindow bounds how long a QR request without a gateway
	// answer counts as in flight
	DefaultIssueWindow = 2 * time.Minute

	// ProviderPagoFacil tags gateway events from the QR gateway
	ProviderPagoFacil = "pagofacil"

	defaultReferencePrefix = "TUI"
	referenceAttempts      = 5
)

// Gateway is the part of the QR gateway client the orchestrator needs
type Gateway interface {
	GenerateQR(ctx context.Context, req pagofacil.QRRequest) (*pagofacil.QRResponse, error)
	QueryTransaction(ctx context.Context, q pagofacil.TransactionQuery) (*pagofacil.TransactionStatus, error)
}

// QRArchive stores an issued QR image and returns a public URL for it
type QRArchive interface {
	ArchiveQR(ctx context.Context, reference, qrBase64 string) (string, error)
}

// SettlementConfig holds orchestrator settings
type SettlementConfig struct {
	CallbackURL     string
	QRLifetime      time.Duration
	IssueWindow     time.Duration
	ReferencePrefix string
	// GatewayLocation is the zone the gateway writes expiration dates in
	GatewayLocation *time.Location
}

// SettlementService drives payment attempts from request to confirmation
type SettlementService struct {
	db       *gorm.DB
	gateway  Gateway
	notifier Notifier
	archive  QRArchive
	cfg      SettlementConfig
	now      func() time.Time
}

// NewSettlementService creates a new settlement orchestrator
func NewSettlementService(db *gorm.DB, gateway Gateway, notifier Notifier, cfg SettlementConfig) *SettlementService {
	if cfg.QRLifetime <= 0 {
		cfg.QRLifetime = DefaultQRLifetime
	}
	if cfg.IssueWindow <= 0 {
		cfg.IssueWindow = DefaultIssueWindow
	}
	if cfg.ReferencePrefix == "" {
		cfg.ReferencePrefix = defaultReferencePrefix
	}
	if cfg.GatewayLocation == nil {
		cfg.GatewayLocation = time.FixedZone("BOT", -4*60*60)
	}
	return &SettlementService{
		db:       db,
		gateway:  gateway,
		notifier: notifier,
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetArchive enables archiving of issued QR images
func (s *SettlementService) SetArchive(archive QRArchive) {
	s.archive = archive
}

// QRResult is returned by RequestQR
type QRResult struct {
	Settlement *model.Settlement `json:"settlement"`
	Reused     bool              `json:"reused"`
}

// RequestQR issues a QR for the remaining balance of an installment. An
// active QR for the same amount is returned as is; active QRs for another
// amount, and QRs still waiting on the gateway, are superseded so at most one
// issued QR stays payable.
func (s *SettlementService) RequestQR(ctx context.Context, installmentID uint, payer model.PayerIdentity) (*QRResult, error) {
	now := s.now()

	var (
		settlement *model.Settlement
		plan       *model.PaymentPlan
		reused     bool
	)

	// Intent is persisted in its own short transaction; the gateway call
	// happens after commit.
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inst, err := lockInstallment(tx, installmentID)
		if err != nil {
			return err
		}

		paid, err := confirmedTotal(tx, inst.ID)
		if err != nil {
			return err
		}
		remaining := inst.Amount.Sub(paid)
		if !remaining.IsPositive() {
			return ErrAlreadyPaid
		}

		plan, err = loadBillingPlan(tx, inst.PaymentPlanID)
		if err != nil {
			return err
		}

		var open []model.Settlement
		err = tx.Where("installment_id = ? AND method = ? AND status = ? AND confirmed = ? AND superseded_by_id IS NULL",
			inst.ID, model.SettlementMethodQR, model.SettlementRequested, false).
			Order("id DESC").
			Find(&open).Error
		if err != nil {
			return fmt.Errorf("failed to load open settlements: %w", err)
		}

		var stale []uint
		for i := range open {
			if open[i].IsIssuing(now, s.cfg.IssueWindow) {
				stale = append(stale, open[i].ID)
				continue
			}
			if !open[i].IsActiveQR(now) {
				continue
			}
			if settlement == nil && open[i].Amount.Equal(remaining) {
				settlement = &open[i]
				reused = true
				continue
			}
			stale = append(stale, open[i].ID)
		}

		if settlement == nil {
			if payer.IsZero() {
				payer = model.StudentPayer(plan.Enrollment.StudentID)
			}
			ref, err := s.newReference(tx)
			if err != nil {
				return err
			}
			settlement = &model.Settlement{
				InstallmentID:     inst.ID,
				Amount:            remaining,
				Currency:          plan.Currency,
				Method:            model.SettlementMethodQR,
				Status:            model.SettlementRequested,
				ExternalReference: ref,
				RequestedAt:       now,
				PayerKind:         payer.Kind,
				PayerID:           payer.ID,
			}
			if err := tx.Create(settlement).Error; err != nil {
				return fmt.Errorf("failed to create settlement: %w", err)
			}
		}

		if len(stale) > 0 {
			err := tx.Model(&model.Settlement{}).Where("id IN ?", stale).
				Update("superseded_by_id", settlement.ID).Error
			if err != nil {
				return fmt.Errorf("failed to supersede settlements: %w", err)
			}
			slog.Info("superseded active QR settlements", "installment_id", inst.ID, "superseded", stale, "by", settlement.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if reused {
		slog.Info("reusing active QR", "settlement_id", settlement.ID, "installment_id", installmentID)
		return &QRResult{Settlement: settlement, Reused: true}, nil
	}
	metrics.Settlements.WithLabelValues(string(model.SettlementMethodQR), "requested").Inc()

	resp, gwErr := s.gateway.GenerateQR(ctx, s.qrRequest(settlement, plan))
	if gwErr != nil {
		return nil, s.recordGatewayFailure(ctx, settlement, plan, gwErr)
	}

	expires := now.Add(s.cfg.QRLifetime)
	if t, ok := resp.ExpiresAt(s.cfg.GatewayLocation); ok {
		expires = t.UTC()
	}

	// the image is stored in its own column, keep it out of the payload copy
	audit := *resp
	audit.QRBase64 = ""
	payload, err := json.Marshal(audit)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal gateway response: %w", err)
	}

	settlement.GatewayTransactionID = resp.TransactionID.String()
	settlement.QRImage = resp.QRBase64
	settlement.ExpiresAt = &expires
	settlement.GatewayPayload = datatypes.JSON(payload)
	settlement.FailureReason = ""

	if s.archive != nil {
		url, err := s.archive.ArchiveQR(ctx, settlement.ExternalReference, resp.QRBase64)
		if err != nil {
			slog.Warn("failed to archive QR image", "settlement_id", settlement.ID, "error", err)
		} else {
			settlement.QRImageURL = url
		}
	}

	err = s.db.WithContext(context.WithoutCancel(ctx)).Model(settlement).
		Select("GatewayTransactionID", "QRImage", "QRImageURL", "ExpiresAt", "GatewayPayload", "FailureReason").
		Updates(settlement).Error
	if err != nil {
		return nil, fmt.Errorf("failed to store issued QR: %w", err)
	}

	// a concurrent request may have replaced this one while the gateway answered
	var current model.Settlement
	err = s.db.WithContext(context.WithoutCancel(ctx)).Select("id", "superseded_by_id").First(&current, settlement.ID).Error
	if err != nil {
		return nil, fmt.Errorf("failed to reload settlement: %w", err)
	}
	if current.SupersededByID != nil {
		settlement.SupersededByID = current.SupersededByID
		slog.Warn("QR superseded while it was being issued",
			"settlement_id", settlement.ID,
			"superseded_by", *current.SupersededByID,
		)
	}

	slog.Info("QR issued",
		"settlement_id", settlement.ID,
		"installment_id", settlement.InstallmentID,
		"reference", settlement.ExternalReference,
		"transaction_id", settlement.GatewayTransactionID,
		"amount", settlement.Amount.StringFixed(2),
	)
	return &QRResult{Settlement: settlement}, nil
}

// recordGatewayFailure keeps the REQUESTED row, stores why it failed and
// tells the operators. The returned error is what the caller should see.
func (s *SettlementService) recordGatewayFailure(ctx context.Context, settlement *model.Settlement, plan *model.PaymentPlan, gwErr error) error {
	ctx = context.WithoutCancel(ctx)
	reason := gwErr.Error()

	err := s.db.WithContext(ctx).Model(settlement).Update("failure_reason", reason).Error
	if err != nil {
		slog.Error("failed to record gateway failure", "settlement_id", settlement.ID, "error", err)
	}
	metrics.Settlements.WithLabelValues(string(model.SettlementMethodQR), "gateway_error").Inc()

	if err := s.notifier.AlertOperators(ctx, OperatorAlert{
		InstallmentID: settlement.InstallmentID,
		SettlementID:  settlement.ID,
		Payer:         settlement.Payer(),
		Operation:     "generate-qr",
		Error:         reason,
	}); err != nil {
		slog.Error("failed to alert operators", "settlement_id", settlement.ID, "error", err)
	}

	event := s.event(settlement, plan, OutcomeFailure)
	event.Reason = "payment gateway unavailable"
	if err := s.notifier.SettlementFailed(ctx, event); err != nil {
		slog.Warn("failed to send failure notification", "settlement_id", settlement.ID, "error", err)
	}

	if errors.Is(gwErr, pagofacil.ErrAuth) {
		return fmt.Errorf("%w: %v", ErrGatewayUnavailable, gwErr)
	}
	return fmt.Errorf("%w: %v", ErrGatewayRequest, gwErr)
}

func (s *SettlementService) qrRequest(settlement *model.Settlement, plan *model.PaymentPlan) pagofacil.QRRequest {
	inst := fmt.Sprintf("installment %d", settlement.InstallmentID)
	product := inst
	if program := plan.Enrollment.Program; program != nil {
		product = fmt.Sprintf("%s - %s", program.Name, inst)
	}

	req := pagofacil.NewSingleItemQRRequest(product, settlement.Amount)
	req.PaymentNumber = settlement.ExternalReference
	req.Currency = pagofacil.CurrencyCode(settlement.Currency)
	req.CallbackURL = s.cfg.CallbackURL

	if student := plan.Enrollment.Student; student != nil {
		req.ClientName = student.Name
		req.DocumentType = student.DocumentType
		req.DocumentID = student.DocumentID
		req.PhoneNumber = student.Phone
		req.Email = student.Email
		req.ClientCode = student.Code
	}
	if req.DocumentType == 0 {
		req.DocumentType = 1
	}
	return req
}

// CallbackRequest is an inbound gateway notification as received
type CallbackRequest struct {
	Payload pagofacil.CallbackPayload
	Raw     []byte
	Headers map[string]string
}

// CallbackResult reports what happened to a callback
type CallbackResult struct {
	EventID      uint                     `json:"event_id"`
	Status       model.GatewayEventStatus `json:"status"`
	SettlementID uint                     `json:"settlement_id,omitempty"`
	Confirmed    bool                     `json:"confirmed"`
}

// HandleCallback records a gateway callback and confirms the settlement it
// names. Duplicate deliveries are recorded and change nothing.
func (s *SettlementService) HandleCallback(ctx context.Context, req CallbackRequest) (*CallbackResult, error) {
	now := s.now()
	ref := req.Payload.Reference()

	event := &model.GatewayEvent{
		Provider:   ProviderPagoFacil,
		Reference:  ref,
		Status:     model.GatewayEventReceived,
		ReceivedAt: now,
	}
	if len(req.Raw) > 0 && json.Valid(req.Raw) {
		event.Payload = datatypes.JSON(req.Raw)
	}
	if len(req.Headers) > 0 {
		if headers, err := json.Marshal(req.Headers); err == nil {
			event.Headers = datatypes.JSON(headers)
		}
	}
	if err := s.db.WithContext(ctx).Create(event).Error; err != nil {
		return nil, fmt.Errorf("failed to record gateway event: %w", err)
	}

	result := &CallbackResult{EventID: event.ID}

	var settlement model.Settlement
	err := s.db.WithContext(ctx).Where("external_reference = ?", ref).First(&settlement).Error
	if ref == "" || errors.Is(err, gorm.ErrRecordNotFound) {
		slog.Warn("callback for unknown reference", "reference", ref, "event_id", event.ID)
		result.Status = model.GatewayEventIgnored
		s.finishEvent(ctx, event, nil, result.Status, "unknown reference")
		return result, nil
	}
	if err != nil {
		s.finishEvent(ctx, event, nil, model.GatewayEventFailed, err.Error())
		return nil, fmt.Errorf("failed to load settlement: %w", err)
	}
	result.SettlementID = settlement.ID

	conf, err := s.confirm(ctx, settlement.ID, req.Payload.Monto, "callback")
	if err != nil {
		result.Status = model.GatewayEventFailed
		s.finishEvent(ctx, event, &settlement.ID, result.Status, err.Error())
		return result, err
	}

	result.Status = model.GatewayEventProcessed
	result.Confirmed = conf.changed
	msg := ""
	if !conf.changed {
		msg = "already confirmed"
	}
	s.finishEvent(ctx, event, &settlement.ID, result.Status, msg)
	return result, nil
}

func (s *SettlementService) finishEvent(ctx context.Context, event *model.GatewayEvent, settlementID *uint, status model.GatewayEventStatus, msg string) {
	processed := s.now()
	event.Status = status
	event.SettlementID = settlementID
	event.Error = msg
	event.ProcessedAt = &processed

	err := s.db.WithContext(context.WithoutCancel(ctx)).Model(event).
		Select("Status", "SettlementID", "Error", "ProcessedAt").
		Updates(event).Error
	if err != nil {
		slog.Error("failed to update gateway event", "event_id", event.ID, "error", err)
	}
	metrics.Callbacks.WithLabelValues(string(status)).Inc()
}

// PollResult is returned by PollStatus
type PollResult struct {
	Settlement         *model.Settlement `json:"settlement"`
	GatewayStatus      int               `json:"gateway_status"`
	GatewayDescription string            `json:"gateway_description"`
	Confirmed          bool              `json:"newly_confirmed"`
}

// PollStatus asks the gateway about a QR settlement. Payer data, the raw
// payload and the reported amount are always stored; the settlement amount
// is never overwritten.
func (s *SettlementService) PollStatus(ctx context.Context, settlementID uint) (*PollResult, error) {
	var settlement model.Settlement
	if err := s.db.WithContext(ctx).First(&settlement, settlementID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSettlementNotFound
		}
		return nil, fmt.Errorf("failed to load settlement: %w", err)
	}

	result := &PollResult{Settlement: &settlement}
	if settlement.Method != model.SettlementMethodQR {
		return result, nil
	}

	status, err := s.gateway.QueryTransaction(ctx, pagofacil.TransactionQuery{
		PagofacilTransactionID: settlement.GatewayTransactionID,
		CompanyTransactionID:   settlement.ExternalReference,
	})
	if err != nil {
		slog.Warn("transaction query failed", "settlement_id", settlement.ID, "error", err)
		if errors.Is(err, pagofacil.ErrAuth) {
			return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrGatewayRequest, err)
	}
	result.GatewayStatus = int(status.PaymentStatus)
	result.GatewayDescription = status.PaymentStatusDescription

	settlement.PayerName = status.PayerName
	settlement.PayerDocument = status.PayerDocument.String()
	settlement.ReportedAmount = status.Amount
	if len(status.Raw) > 0 {
		settlement.GatewayPayload = datatypes.JSON(status.Raw)
	}
	columns := []interface{}{"PayerDocument", "ReportedAmount", "GatewayPayload"}
	if settlement.GatewayTransactionID == "" && status.PagofacilTransactionID != "" {
		settlement.GatewayTransactionID = status.PagofacilTransactionID.String()
		columns = append(columns, "GatewayTransactionID")
	}
	err = s.db.WithContext(ctx).Model(&settlement).
		Select("PayerName", columns...).
		Updates(&settlement).Error
	if err != nil {
		return nil, fmt.Errorf("failed to store gateway metadata: %w", err)
	}

	if !status.Completed() || settlement.Confirmed {
		return result, nil
	}

	conf, err := s.confirm(ctx, settlement.ID, status.Amount, "poll")
	if err != nil {
		return result, err
	}
	result.Settlement = conf.settlement
	result.Confirmed = conf.changed
	return result, nil
}

// ManualPaymentRequest records money collected outside the gateway
type ManualPaymentRequest struct {
	InstallmentID uint
	Amount        decimal.Decimal
	Verifier      model.PayerIdentity
	Payer         model.PayerIdentity
	Notes         string
}

// RecordManualPayment stores an already confirmed manual settlement
func (s *SettlementService) RecordManualPayment(ctx context.Context, req ManualPaymentRequest) (*model.Settlement, error) {
	amount := calculator.Round(req.Amount)
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	now := s.now()

	var (
		settlement *model.Settlement
		plan       *model.PaymentPlan
		paid       decimal.Decimal
		nominal    decimal.Decimal
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inst, err := lockInstallment(tx, req.InstallmentID)
		if err != nil {
			return err
		}
		nominal = inst.Amount

		paid, err = confirmedTotal(tx, inst.ID)
		if err != nil {
			return err
		}
		remaining := inst.Amount.Sub(paid)
		if !remaining.IsPositive() {
			return ErrAlreadyPaid
		}
		if amount.GreaterThan(remaining) {
			return fmt.Errorf("%w: remaining %s", ErrInsufficientRemaining, remaining.StringFixed(2))
		}

		plan, err = loadBillingPlan(tx, inst.PaymentPlanID)
		if err != nil {
			return err
		}

		payer := req.Payer
		if payer.IsZero() {
			payer = model.StudentPayer(plan.Enrollment.StudentID)
		}
		ref, err := s.newReference(tx)
		if err != nil {
			return err
		}

		settlement = &model.Settlement{
			InstallmentID:     inst.ID,
			Amount:            amount,
			Currency:          plan.Currency,
			Method:            model.SettlementMethodManual,
			Status:            model.SettlementConfirmed,
			ExternalReference: ref,
			Confirmed:         true,
			ConfirmedAt:       &now,
			RequestedAt:       now,
			PayerKind:         payer.Kind,
			PayerID:           payer.ID,
			Notes:             req.Notes,
		}
		if !req.Verifier.IsZero() {
			settlement.VerifiedByKind = req.Verifier.Kind
			settlement.VerifiedByID = &req.Verifier.ID
		}
		if err := tx.Create(settlement).Error; err != nil {
			return fmt.Errorf("failed to create settlement: %w", err)
		}
		paid = paid.Add(amount)
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("manual payment recorded",
		"settlement_id", settlement.ID,
		"installment_id", settlement.InstallmentID,
		"amount", amount.StringFixed(2),
		"verified_by", req.Verifier.String(),
	)
	s.afterConfirm(ctx, settlement, plan, paid, nominal)
	return settlement, nil
}

// MarkFailed closes a REQUESTED attempt as FAILED
func (s *SettlementService) MarkFailed(ctx context.Context, settlementID uint, reason string) (*model.Settlement, error) {
	res := s.db.WithContext(ctx).Model(&model.Settlement{}).
		Where("id = ? AND status = ? AND confirmed = ?", settlementID, model.SettlementRequested, false).
		Updates(map[string]interface{}{
			"status":         model.SettlementFailed,
			"failure_reason": reason,
		})
	if res.Error != nil {
		return nil, fmt.Errorf("failed to mark settlement failed: %w", res.Error)
	}

	var settlement model.Settlement
	if err := s.db.WithContext(ctx).First(&settlement, settlementID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSettlementNotFound
		}
		return nil, fmt.Errorf("failed to load settlement: %w", err)
	}
	if res.RowsAffected == 0 {
		return nil, ErrInvalidTransition
	}

	metrics.Settlements.WithLabelValues(string(settlement.Method), "failed").Inc()
	slog.Info("settlement marked failed", "settlement_id", settlement.ID, "reason", reason)

	var plan *model.PaymentPlan
	var inst model.Installment
	if err := s.db.WithContext(ctx).Select("id", "payment_plan_id").First(&inst, settlement.InstallmentID).Error; err != nil {
		slog.Warn("failed to load installment for notification", "settlement_id", settlement.ID, "error", err)
	} else if plan, err = loadBillingPlan(s.db.WithContext(ctx), inst.PaymentPlanID); err != nil {
		slog.Warn("failed to load payment plan for notification", "settlement_id", settlement.ID, "error", err)
	}

	event := s.event(&settlement, plan, OutcomeFailure)
	event.Reason = reason
	if err := s.notifier.SettlementFailed(ctx, event); err != nil {
		slog.Warn("failed to send failure notification", "settlement_id", settlement.ID, "error", err)
	}
	return &settlement, nil
}

// ReconcilableSettlements lists QR attempts worth polling: issued, unpaid and
// not yet expired. Superseded QRs stay in the list since a payer may still
// scan the old image.
func (s *SettlementService) ReconcilableSettlements(ctx context.Context) ([]uint, error) {
	var open []model.Settlement
	err := s.db.WithContext(ctx).
		Select("id", "expires_at").
		Where("method = ? AND status = ? AND confirmed = ? AND gateway_transaction_id <> ''",
			model.SettlementMethodQR, model.SettlementRequested, false).
		Order("id ASC").
		Find(&open).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list open settlements: %w", err)
	}

	now := s.now()
	ids := make([]uint, 0, len(open))
	for _, st := range open {
		if st.ExpiresAt == nil || now.Before(*st.ExpiresAt) {
			ids = append(ids, st.ID)
		}
	}
	return ids, nil
}

type confirmation struct {
	settlement *model.Settlement
	plan       *model.PaymentPlan
	paid       decimal.Decimal
	nominal    decimal.Decimal
	changed    bool
}

// confirm moves a settlement to CONFIRMED under the installment lock. A
// confirmed settlement is returned unchanged; a failed one is rejected.
func (s *SettlementService) confirm(ctx context.Context, settlementID uint, reported decimal.NullDecimal, source string) (*confirmation, error) {
	now := s.now()
	out := &confirmation{}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current model.Settlement
		if err := tx.First(&current, settlementID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrSettlementNotFound
			}
			return fmt.Errorf("failed to load settlement: %w", err)
		}

		inst, err := lockInstallment(tx, current.InstallmentID)
		if err != nil {
			return err
		}
		// reread now that concurrent confirmations are serialized
		if err := tx.First(&current, settlementID).Error; err != nil {
			return fmt.Errorf("failed to reload settlement: %w", err)
		}
		out.settlement = &current
		out.nominal = inst.Amount

		if current.Confirmed {
			return nil
		}
		if current.IsTerminal() {
			return fmt.Errorf("%w: status %s", ErrInvalidTransition, current.Status)
		}

		if reported.Valid && !calculator.WithinEpsilon(reported.Decimal, current.Amount) {
			return fmt.Errorf("%w: gateway reported %s, settlement is %s",
				ErrReconciliationMismatch, reported.Decimal.StringFixed(2), current.Amount.StringFixed(2))
		}

		paid, err := confirmedTotal(tx, inst.ID)
		if err != nil {
			return err
		}
		if paid.Add(current.Amount).GreaterThan(inst.Amount) {
			return fmt.Errorf("%w: confirming %s would exceed installment %s (already paid %s)",
				ErrReconciliationMismatch, current.Amount.StringFixed(2), inst.Amount.StringFixed(2), paid.StringFixed(2))
		}

		res := tx.Model(&model.Settlement{}).
			Where("id = ? AND confirmed = ?", current.ID, false).
			Updates(map[string]interface{}{
				"confirmed":    true,
				"confirmed_at": now,
				"status":       model.SettlementConfirmed,
			})
		if res.Error != nil {
			return fmt.Errorf("failed to confirm settlement: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil
		}

		current.Confirmed = true
		current.ConfirmedAt = &now
		current.Status = model.SettlementConfirmed
		out.paid = paid.Add(current.Amount)
		out.changed = true

		out.plan, err = loadBillingPlan(tx, inst.PaymentPlanID)
		return err
	})
	if err != nil {
		// the gateway says money moved; anything short of confirming goes to an operator
		if errors.Is(err, ErrReconciliationMismatch) || errors.Is(err, ErrInvalidTransition) {
			s.reportMismatch(ctx, settlementID, source, err)
		}
		return nil, err
	}

	if out.changed {
		slog.Info("settlement confirmed",
			"settlement_id", out.settlement.ID,
			"installment_id", out.settlement.InstallmentID,
			"source", source,
			"amount", out.settlement.Amount.StringFixed(2),
		)
		s.afterConfirm(ctx, out.settlement, out.plan, out.paid, out.nominal)
	}
	return out, nil
}

// reportMismatch alerts operators about a payment the gateway reported but
// that could not be confirmed.
func (s *SettlementService) reportMismatch(ctx context.Context, settlementID uint, source string, cause error) {
	ctx = context.WithoutCancel(ctx)
	metrics.Settlements.WithLabelValues(string(model.SettlementMethodQR), "mismatch").Inc()
	slog.Error("gateway payment not confirmed, held for manual review",
		"settlement_id", settlementID,
		"source", source,
		"error", cause,
	)

	alert := OperatorAlert{SettlementID: settlementID, Operation: source, Error: cause.Error()}
	var settlement model.Settlement
	if err := s.db.WithContext(ctx).First(&settlement, settlementID).Error; err == nil {
		alert.InstallmentID = settlement.InstallmentID
		alert.Payer = settlement.Payer()
	}
	if err := s.notifier.AlertOperators(ctx, alert); err != nil {
		slog.Error("failed to alert operators", "settlement_id", settlementID, "error", err)
	}
}

// afterConfirm runs post-commit side effects. None of them can undo the
// confirmation.
func (s *SettlementService) afterConfirm(ctx context.Context, settlement *model.Settlement, plan *model.PaymentPlan, paid, nominal decimal.Decimal) {
	ctx = context.WithoutCancel(ctx)
	metrics.Settlements.WithLabelValues(string(settlement.Method), "confirmed").Inc()

	if err := s.notifier.SettlementSucceeded(ctx, s.event(settlement, plan, OutcomeSuccess)); err != nil {
		slog.Warn("failed to send payment notification", "settlement_id", settlement.ID, "error", err)
	}

	if paid.LessThan(nominal) {
		return
	}
	slog.Info("installment fully paid", "installment_id", settlement.InstallmentID, "paid", paid.StringFixed(2))

	if plan == nil {
		return
	}
	summary, err := planSummary(s.db.WithContext(ctx), plan.ID, s.now())
	if err != nil {
		slog.Warn("failed to check plan completion", "plan_id", plan.ID, "error", err)
		return
	}
	if summary.Complete {
		slog.Info("payment plan completed", "plan_id", plan.ID, "enrollment_id", plan.EnrollmentID, "total", summary.PaidAmount.StringFixed(2))
	}
}

func (s *SettlementService) event(settlement *model.Settlement, plan *model.PaymentPlan, outcome SettlementOutcome) SettlementEvent {
	event := SettlementEvent{
		SettlementID:     settlement.ID,
		InstallmentID:    settlement.InstallmentID,
		Payer:            settlement.Payer(),
		Amount:           settlement.Amount,
		Currency:         settlement.Currency,
		GatewayReference: settlement.ExternalReference,
		Outcome:          outcome,
	}
	if plan != nil && plan.Enrollment != nil && plan.Enrollment.Program != nil {
		event.ProgramName = plan.Enrollment.Program.Name
	}
	return event
}

// newReference returns an external reference no settlement uses yet
func (s *SettlementService) newReference(tx *gorm.DB) (string, error) {
	for i := 0; i < referenceAttempts; i++ {
		ref := fmt.Sprintf("%s-%s", s.cfg.ReferencePrefix, strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")))
		var count int64
		if err := tx.Model(&model.Settlement{}).Where("external_reference = ?", ref).Count(&count).Error; err != nil {
			return "", fmt.Errorf("failed to check reference: %w", err)
		}
		if count == 0 {
			return ref, nil
		}
	}
	return "", errors.New("could not generate a unique payment reference")
}

func loadBillingPlan(tx *gorm.DB, planID uint) (*model.PaymentPlan, error) {
	var plan model.PaymentPlan
	err := tx.Preload("Enrollment.Student").Preload("Enrollment.Program").First(&plan, planID).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load payment plan: %w", err)
	}
	if plan.Enrollment == nil {
		return nil, fmt.Errorf("payment plan %d has no enrollment", plan.ID)
	}
	return &plan, nil
}
