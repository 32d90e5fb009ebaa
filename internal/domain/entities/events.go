package entities

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Pub/sub and WebSocket message types
const (
	EventTypeApplicationUpdate = "application_update"
	EventTypeWelcome           = "welcome"
	EventTypePong              = "pong"
	EventTypeSubscribed        = "subscribed"
	EventTypeError             = "error"
)

// ApplicationUpdateData is the data payload of an application_update event
type ApplicationUpdateData struct {
	ID        uuid.UUID         `json:"id"`
	Status    ApplicationStatus `json:"status"`
	RiskScore *decimal.Decimal  `json:"risk_score,omitempty"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// RealtimeMessage is the wire envelope on the pub/sub channel and the
// WebSocket connection: {type, data}
type RealtimeMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// NewApplicationUpdate builds the update event for a status change
func NewApplicationUpdate(app *Application) RealtimeMessage {
	return RealtimeMessage{
		Type: EventTypeApplicationUpdate,
		Data: ApplicationUpdateData{
			ID:        app.ID,
			Status:    app.Status,
			RiskScore: app.RiskScore,
			UpdatedAt: app.UpdatedAt,
		},
	}
}

// ClientAction is a command sent by a WebSocket client
type ClientAction struct {
	Action        string `json:"action"`
	ApplicationID string `json:"application_id,omitempty"`
}
