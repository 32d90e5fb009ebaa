package entities

import (
	"github.com/shopspring/decimal"
)

// BankingData is the financial profile returned by a country's banking
// provider, or the conservative fallback artifact when its breaker is open.
type BankingData struct {
	ProviderName       string                 `json:"provider_name"`
	CreditScore        int                    `json:"credit_score"`
	TotalDebt          decimal.Decimal        `json:"total_debt"`
	MonthlyObligations decimal.Decimal        `json:"monthly_obligations"`
	HasDefaults        bool                   `json:"has_defaults"`
	AdditionalData     map[string]interface{} `json:"additional_data,omitempty"`
}

// IsFallback reports whether this data came from an open circuit rather
// than the provider
func (b *BankingData) IsFallback() bool {
	if b.AdditionalData == nil {
		return false
	}
	fallback, ok := b.AdditionalData["fallback"].(bool)
	return ok && fallback
}

// ToDocument converts the banking data to its persisted JSON shape
func (b *BankingData) ToDocument() JSONDocument {
	doc := JSONDocument{
		"provider_name":       b.ProviderName,
		"credit_score":        b.CreditScore,
		"total_debt":          b.TotalDebt.String(),
		"monthly_obligations": b.MonthlyObligations.String(),
		"has_defaults":        b.HasDefaults,
	}
	if b.AdditionalData != nil {
		doc["additional_data"] = b.AdditionalData
	}
	return doc
}

// Recommendation is the outcome of a country strategy evaluation
type Recommendation string

const (
	RecommendApprove Recommendation = "APPROVE"
	RecommendReject  Recommendation = "REJECT"
	RecommendReview  Recommendation = "REVIEW"
)

// Evaluation is the result of scoring an application against banking data
type Evaluation struct {
	Recommendation Recommendation  `json:"recommendation"`
	RiskScore      decimal.Decimal `json:"risk_score"`
	Notes          []string        `json:"notes,omitempty"`
}

// ValidationResult is the outcome of a document format check
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}
