package entities

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Money precision limits: fixed-point 12 integer digits + 2 fractional.
const (
	MoneyMaxIntegerDigits   = 12
	MoneyFractionalDigits   = 2
	RiskScoreIntegerDigits  = 5
	RiskScoreFractionDigits = 2
)

// Application is a credit application as stored. FullName and
// IdentityDocument hold AES-GCM ciphertext; plaintext only exists in the
// request DTO and the decrypted response DTO.
type Application struct {
	ID                  uuid.UUID         `json:"id" db:"id"`
	Country             CountryCode       `json:"country" db:"country"`
	FullName            []byte            `json:"-" db:"full_name"`
	IdentityDocument    []byte            `json:"-" db:"identity_document"`
	DocumentFingerprint string            `json:"-" db:"document_fingerprint"`
	RequestedAmount     decimal.Decimal   `json:"requested_amount" db:"requested_amount"`
	MonthlyIncome       decimal.Decimal   `json:"monthly_income" db:"monthly_income"`
	Currency            string            `json:"currency" db:"currency"`
	IdempotencyKey      *string           `json:"idempotency_key,omitempty" db:"idempotency_key"`
	Status              ApplicationStatus `json:"status" db:"status"`
	CountrySpecificData JSONDocument      `json:"country_specific_data,omitempty" db:"country_specific_data"`
	BankingData         JSONDocument      `json:"banking_data,omitempty" db:"banking_data"`
	RiskScore           *decimal.Decimal  `json:"risk_score,omitempty" db:"risk_score"`
	ValidationErrors    StringList        `json:"validation_errors,omitempty" db:"validation_errors"`
	CreatedAt           time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time         `json:"updated_at" db:"updated_at"`
	DeletedAt           *time.Time        `json:"deleted_at,omitempty" db:"deleted_at"`
}

// CreateApplicationRequest is the intake payload for POST /applications
type CreateApplicationRequest struct {
	Country             string                 `json:"country" binding:"required" validate:"required"`
	FullName            string                 `json:"full_name" binding:"required" validate:"required,min=3,max=200"`
	IdentityDocument    string                 `json:"identity_document" binding:"required" validate:"required,min=5,max=40"`
	RequestedAmount     string                 `json:"requested_amount" binding:"required" validate:"required"`
	MonthlyIncome       string                 `json:"monthly_income" binding:"required" validate:"required"`
	Currency            string                 `json:"currency" binding:"required" validate:"required,len=3"`
	IdempotencyKey      *string                `json:"idempotency_key,omitempty" validate:"omitempty,max=128"`
	CountrySpecificData map[string]interface{} `json:"country_specific_data,omitempty"`
}

// ApplicationResponse is the decrypted, API-facing shape of an application.
// This is the only place ciphertext is surfaced as plaintext.
type ApplicationResponse struct {
	ID                  uuid.UUID              `json:"id"`
	Country             CountryCode            `json:"country"`
	FullName            string                 `json:"full_name"`
	IdentityDocument    string                 `json:"identity_document"`
	RequestedAmount     decimal.Decimal        `json:"requested_amount"`
	MonthlyIncome       decimal.Decimal        `json:"monthly_income"`
	Currency            string                 `json:"currency"`
	Status              ApplicationStatus      `json:"status"`
	RiskScore           *decimal.Decimal       `json:"risk_score,omitempty"`
	ValidationErrors    []string               `json:"validation_errors,omitempty"`
	BankingData         map[string]interface{} `json:"banking_data,omitempty"`
	CountrySpecificData map[string]interface{} `json:"country_specific_data,omitempty"`
	CreatedAt           time.Time              `json:"created_at"`
	UpdatedAt           time.Time              `json:"updated_at"`
}

// AuditLog is one row of the status-change audit trail, written by the
// AFTER UPDATE trigger whenever applications.status changes and by the
// AFTER INSERT trigger on creation (with a NULL old status).
type AuditLog struct {
	ID            int64              `json:"id" db:"id"`
	ApplicationID uuid.UUID          `json:"application_id" db:"application_id"`
	OldStatus     *ApplicationStatus `json:"old_status,omitempty" db:"old_status"`
	NewStatus     ApplicationStatus  `json:"new_status" db:"new_status"`
	ChangedBy     string             `json:"changed_by" db:"changed_by"`
	ChangeReason  string             `json:"change_reason" db:"change_reason"`
	Metadata      JSONDocument       `json:"metadata,omitempty" db:"metadata"`
	CreatedAt     time.Time          `json:"created_at" db:"created_at"`
}

// ErrorResponse is the standard error envelope
type ErrorResponse struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}
