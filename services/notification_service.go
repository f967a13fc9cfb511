package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/sahilchouksey/tuition-api/model"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// SettlementOutcome is the result reported to the notification sink
type SettlementOutcome string

const (
	OutcomeSuccess SettlementOutcome = "success"
	OutcomeFailure SettlementOutcome = "failure"
)

// SettlementEvent describes a settled or failed payment attempt
type SettlementEvent struct {
	SettlementID     uint
	InstallmentID    uint
	Payer            model.PayerIdentity
	Amount           decimal.Decimal
	Currency         string
	ProgramName      string
	GatewayReference string
	Outcome          SettlementOutcome
	Reason           string
}

// OperatorAlert is raised when a gateway call needs human follow-up
type OperatorAlert struct {
	InstallmentID uint
	SettlementID  uint
	Payer         model.PayerIdentity
	Operation     string
	Error         string
}

// Notifier receives settlement outcomes. Delivery failures are logged by
// callers and never undo a settlement.
type Notifier interface {
	SettlementSucceeded(ctx context.Context, event SettlementEvent) error
	SettlementFailed(ctx context.Context, event SettlementEvent) error
	AlertOperators(ctx context.Context, alert OperatorAlert) error
}

// ReceiptMailer delivers payment receipts by email
type ReceiptMailer interface {
	SendPaymentReceipt(toEmail, studentName string, event SettlementEvent) error
}

// NotificationService persists in-app notifications for payers and operators
type NotificationService struct {
	db        *gorm.DB
	operators []model.PayerIdentity
	mailer    ReceiptMailer
}

// Ensure NotificationService implements Notifier
var _ Notifier = (*NotificationService)(nil)

// NewNotificationService creates a new notification service. operatorIDs are
// admin user ids that receive gateway alerts.
func NewNotificationService(db *gorm.DB, operatorIDs []uint) *NotificationService {
	operators := make([]model.PayerIdentity, 0, len(operatorIDs))
	for _, id := range operatorIDs {
		operators = append(operators, model.AdminPayer(id))
	}
	return &NotificationService{db: db, operators: operators}
}

// SetMailer enables receipt emails to students
func (s *NotificationService) SetMailer(mailer ReceiptMailer) {
	s.mailer = mailer
}

// CreateNotificationRequest represents a request to create a notification
type CreateNotificationRequest struct {
	Recipient    model.PayerIdentity
	Type         model.NotificationType
	Category     model.NotificationCategory
	Title        string
	Message      string
	SettlementID *uint
	Metadata     *model.NotificationMetadata
}

// ListNotificationsOptions represents options for listing notifications
type ListNotificationsOptions struct {
	Recipient  model.PayerIdentity
	UnreadOnly bool
	Limit      int
	Offset     int
}

// CreateNotification creates a new notification for a recipient
func (s *NotificationService) CreateNotification(ctx context.Context, req CreateNotificationRequest) (*model.UserNotification, error) {
	notification := &model.UserNotification{
		RecipientKind: req.Recipient.Kind,
		RecipientID:   req.Recipient.ID,
		Type:          req.Type,
		Category:      req.Category,
		Title:         req.Title,
		Message:       req.Message,
		Read:          false,
		SettlementID:  req.SettlementID,
	}

	// Serialize metadata if provided
	if req.Metadata != nil {
		metadataJSON, err := json.Marshal(req.Metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal metadata: %w", err)
		}
		notification.Metadata = datatypes.JSON(metadataJSON)
	}

	if err := s.db.WithContext(ctx).Create(notification).Error; err != nil {
		return nil, fmt.Errorf("failed to create notification: %w", err)
	}

	slog.Debug("created notification", "id", notification.ID, "recipient", req.Recipient.String(), "title", req.Title)
	return notification, nil
}

func eventMetadata(event SettlementEvent) *model.NotificationMetadata {
	return &model.NotificationMetadata{
		InstallmentID:    event.InstallmentID,
		PayerKind:        event.Payer.Kind,
		PayerID:          event.Payer.ID,
		Amount:           event.Amount.StringFixed(2),
		Currency:         event.Currency,
		ProgramName:      event.ProgramName,
		GatewayReference: event.GatewayReference,
		Outcome:          string(event.Outcome),
		Reason:           event.Reason,
	}
}

// SettlementSucceeded tells the payer their payment was received
func (s *NotificationService) SettlementSucceeded(ctx context.Context, event SettlementEvent) error {
	if event.Payer.IsZero() {
		return nil
	}
	_, err := s.CreateNotification(ctx, CreateNotificationRequest{
		Recipient:    event.Payer,
		Type:         model.NotificationTypeSuccess,
		Category:     model.NotificationCategoryPayment,
		Title:        "Payment received",
		Message:      fmt.Sprintf("We received %s %s for %s.", event.Amount.StringFixed(2), event.Currency, event.ProgramName),
		SettlementID: &event.SettlementID,
		Metadata:     eventMetadata(event),
	})
	if err != nil {
		return err
	}

	if s.mailer != nil && event.Payer.Kind == model.PayerKindStudent {
		s.mailReceipt(ctx, event)
	}
	return nil
}

// mailReceipt failures are logged only; the in-app notification is already stored
func (s *NotificationService) mailReceipt(ctx context.Context, event SettlementEvent) {
	var student model.Student
	if err := s.db.WithContext(ctx).First(&student, event.Payer.ID).Error; err != nil {
		slog.Warn("receipt not sent, student not found", "student_id", event.Payer.ID, "error", err)
		return
	}
	if student.Email == "" {
		return
	}
	if err := s.mailer.SendPaymentReceipt(student.Email, student.Name, event); err != nil {
		slog.Warn("failed to send payment receipt", "settlement_id", event.SettlementID, "error", err)
	}
}

// SettlementFailed tells the payer their payment attempt did not go through
func (s *NotificationService) SettlementFailed(ctx context.Context, event SettlementEvent) error {
	if event.Payer.IsZero() {
		return nil
	}
	_, err := s.CreateNotification(ctx, CreateNotificationRequest{
		Recipient:    event.Payer,
		Type:         model.NotificationTypeError,
		Category:     model.NotificationCategoryPayment,
		Title:        "Payment could not be processed",
		Message:      fmt.Sprintf("Your payment of %s %s for %s could not be processed. Please try again later.", event.Amount.StringFixed(2), event.Currency, event.ProgramName),
		SettlementID: &event.SettlementID,
		Metadata:     eventMetadata(event),
	})
	return err
}

// AlertOperators logs the alert and drops a notification for every configured operator
func (s *NotificationService) AlertOperators(ctx context.Context, alert OperatorAlert) error {
	slog.Error("operator alert",
		"operation", alert.Operation,
		"installment_id", alert.InstallmentID,
		"settlement_id", alert.SettlementID,
		"payer", alert.Payer.String(),
		"error", alert.Error,
	)

	metadata := &model.NotificationMetadata{
		InstallmentID: alert.InstallmentID,
		PayerKind:     alert.Payer.Kind,
		PayerID:       alert.Payer.ID,
		Outcome:       string(OutcomeFailure),
		Reason:        alert.Error,
	}
	var settlementID *uint
	if alert.SettlementID != 0 {
		settlementID = &alert.SettlementID
	}

	for _, op := range s.operators {
		_, err := s.CreateNotification(ctx, CreateNotificationRequest{
			Recipient:    op,
			Type:         model.NotificationTypeWarning,
			Category:     model.NotificationCategoryOperator,
			Title:        fmt.Sprintf("Gateway %s failed", alert.Operation),
			Message:      fmt.Sprintf("Installment %d for %s: %s", alert.InstallmentID, alert.Payer.String(), alert.Error),
			SettlementID: settlementID,
			Metadata:     metadata,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// GetNotifications retrieves notifications for a recipient, newest first
func (s *NotificationService) GetNotifications(ctx context.Context, opts ListNotificationsOptions) ([]model.UserNotification, int64, error) {
	var notifications []model.UserNotification
	var total int64

	query := s.db.WithContext(ctx).Model(&model.UserNotification{}).
		Where("recipient_kind = ? AND recipient_id = ?", opts.Recipient.Kind, opts.Recipient.ID)

	if opts.UnreadOnly {
		query = query.Where("read = ?", false)
	}

	// Get total count
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count notifications: %w", err)
	}

	// Apply pagination
	if opts.Limit > 0 {
		query = query.Limit(opts.Limit)
	} else {
		query = query.Limit(50) // Default limit
	}

	if opts.Offset > 0 {
		query = query.Offset(opts.Offset)
	}

	if err := query.Order("created_at DESC, id DESC").Find(&notifications).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch notifications: %w", err)
	}

	return notifications, total, nil
}

// GetUnreadCount returns the number of unread notifications of a recipient
func (s *NotificationService) GetUnreadCount(ctx context.Context, recipient model.PayerIdentity) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.UserNotification{}).
		Where("recipient_kind = ? AND recipient_id = ? AND read = ?", recipient.Kind, recipient.ID, false).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}
	return count, nil
}

// MarkAsRead marks a notification as read
func (s *NotificationService) MarkAsRead(ctx context.Context, notificationID uint, recipient model.PayerIdentity) error {
	result := s.db.WithContext(ctx).Model(&model.UserNotification{}).
		Where("id = ? AND recipient_kind = ? AND recipient_id = ?", notificationID, recipient.Kind, recipient.ID).
		Update("read", true)

	if result.Error != nil {
		return fmt.Errorf("failed to mark notification as read: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		return ErrNotificationNotFound
	}

	return nil
}

// CleanupOldNotifications removes read notifications older than the specified duration
func (s *NotificationService) CleanupOldNotifications(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)

	result := s.db.WithContext(ctx).
		Where("created_at < ? AND read = ?", cutoff, true).
		Delete(&model.UserNotification{})

	if result.Error != nil {
		return 0, fmt.Errorf("failed to cleanup old notifications: %w", result.Error)
	}

	if result.RowsAffected > 0 {
		slog.Info("cleaned up old notifications", "count", result.RowsAffected)
	}

	return result.RowsAffected, nil
}
