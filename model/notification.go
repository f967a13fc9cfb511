package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// NotificationType represents the type/severity of notification
type NotificationType string

const (
	NotificationTypeInfo    NotificationType = "info"
	NotificationTypeSuccess NotificationType = "success"
	NotificationTypeWarning NotificationType = "warning"
	NotificationTypeError   NotificationType = "error"
)

// NotificationCategory represents the category of notification
type NotificationCategory string

const (
	NotificationCategoryPayment  NotificationCategory = "payment"
	NotificationCategoryOperator NotificationCategory = "operator_alert"
	NotificationCategoryGeneral  NotificationCategory = "general"
)

// UserNotification is an in-app message addressed to a payer or an operator.
// Recipients are identified by kind and id since they live in different tables.
type UserNotification struct {
	ID            uint                 `gorm:"primaryKey" json:"id"`
	CreatedAt     time.Time            `json:"created_at"`
	UpdatedAt     time.Time            `json:"updated_at"`
	DeletedAt     gorm.DeletedAt       `gorm:"index" json:"deleted_at,omitempty"`
	RecipientKind PayerKind            `gorm:"type:varchar(20);not null;index:idx_notification_recipient" json:"recipient_kind"`
	RecipientID   uint                 `gorm:"not null;index:idx_notification_recipient" json:"recipient_id"`
	Type          NotificationType     `gorm:"type:varchar(20);not null" json:"type"`
	Category      NotificationCategory `gorm:"type:varchar(30);not null" json:"category"`
	Title         string               `gorm:"type:varchar(255);not null" json:"title"`
	Message       string               `gorm:"type:text" json:"message"`
	Read          bool                 `gorm:"not null" json:"read"`
	SettlementID  *uint                `gorm:"index" json:"settlement_id,omitempty"`
	Metadata      datatypes.JSON       `json:"metadata,omitempty"`
}

// TableName specifies the table name for UserNotification
func (UserNotification) TableName() string {
	return "user_notifications"
}

// NotificationMetadata is the settlement event handed to the notification sink
type NotificationMetadata struct {
	InstallmentID    uint      `json:"installmentId"`
	PayerKind        PayerKind `json:"payerKind,omitempty"`
	PayerID          uint      `json:"payerId"`
	Amount           string    `json:"amount"`
	Currency         string    `json:"currency,omitempty"`
	ProgramName      string    `json:"programName,omitempty"`
	GatewayReference string    `json:"gatewayReference,omitempty"`
	Outcome          string    `json:"outcome"`
	Reason           string    `json:"reason,omitempty"`
}

// NotificationResponse represents the API response format for a notification
type NotificationResponse struct {
	ID           uint                 `json:"id"`
	Type         NotificationType     `json:"type"`
	Category     NotificationCategory `json:"category"`
	Title        string               `json:"title"`
	Message      string               `json:"message"`
	Read         bool                 `json:"read"`
	SettlementID *uint                `json:"settlement_id,omitempty"`
	Metadata     datatypes.JSON       `json:"metadata,omitempty"`
	CreatedAt    time.Time            `json:"created_at"`
}

// ToResponse converts a UserNotification to NotificationResponse
func (n *UserNotification) ToResponse() NotificationResponse {
	return NotificationResponse{
		ID:           n.ID,
		Type:         n.Type,
		Category:     n.Category,
		Title:        n.Title,
		Message:      n.Message,
		Read:         n.Read,
		SettlementID: n.SettlementID,
		Metadata:     n.Metadata,
		CreatedAt:    n.CreatedAt,
	}
}
