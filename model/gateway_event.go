package model

import (
	"time"

	"gorm.io/datatypes"
)

// GatewayEventStatus tracks how an inbound callback was processed
type GatewayEventStatus string

const (
	GatewayEventReceived  GatewayEventStatus = "received"
	GatewayEventProcessed GatewayEventStatus = "processed"
	GatewayEventIgnored   GatewayEventStatus = "ignored"
	GatewayEventFailed    GatewayEventStatus = "failed"
)

// GatewayEvent logs every callback delivered by the payment gateway, one row
// per delivery, so duplicates and replays remain visible.
type GatewayEvent struct {
	ID           uint               `gorm:"primaryKey" json:"id"`
	Provider     string             `gorm:"type:varchar(30);not null" json:"provider"`
	Reference    string             `gorm:"type:varchar(64);index" json:"reference"`
	SettlementID *uint              `gorm:"index" json:"settlement_id,omitempty"`
	Headers      datatypes.JSON     `json:"headers,omitempty"`
	Payload      datatypes.JSON     `json:"payload,omitempty"`
	Status       GatewayEventStatus `gorm:"type:varchar(20);not null" json:"status"`
	Error        string             `gorm:"type:text" json:"error,omitempty"`
	ReceivedAt   time.Time          `gorm:"not null" json:"received_at"`
	ProcessedAt  *time.Time         `json:"processed_at,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

// TableName specifies the table name for GatewayEvent
func (GatewayEvent) TableName() string {
	return "gateway_events"
}
