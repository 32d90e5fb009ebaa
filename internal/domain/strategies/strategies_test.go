package strategies

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/global-credit/credit_core/internal/domain/entities"
	domainerrors "github.com/global-credit/credit_core/internal/domain/errors"
)

type stubFetcher struct {
	data *entities.BankingData
	err  error
}

func (s *stubFetcher) FetchBankingData(ctx context.Context, country entities.CountryCode, document, fullName string) (*entities.BankingData, error) {
	return s.data, s.err
}

func testRegistry() *Registry {
	return NewRegistry(&stubFetcher{})
}

func TestRegistryCoversAllCountries(t *testing.T) {
	r := testRegistry()
	for country := range entities.CountryCurrencies {
		s, err := r.ForCountry(country)
		require.NoError(t, err, country)
		assert.Equal(t, country, s.Country())
		assert.NotEmpty(t, s.ProviderName())
	}
}

func TestRegistryRejectsUnknownCountry(t *testing.T) {
	r := testRegistry()
	_, err := r.ForCountry(entities.CountryCode("US"))
	require.Error(t, err)
	assert.Equal(t, domainerrors.KindUnsupportedCountry, domainerrors.KindOf(err))
	assert.False(t, domainerrors.IsTransient(err))
}

func TestDocumentValidation(t *testing.T) {
	r := testRegistry()

	tests := []struct {
		country  entities.CountryCode
		document string
		valid    bool
	}{
		{entities.CountryES, "12345678Z", true},
		{entities.CountryES, "X1234567L", true},
		{entities.CountryES, "1234567Z", false},
		{entities.CountryES, "ABCDEFGHI", false},
		{entities.CountryMX, "GARC850101HDFRRN09", true},
		{entities.CountryMX, "SHORT", false},
		{entities.CountryCO, "1032456789", true},
		{entities.CountryCO, "12345", false},
		{entities.CountryBR, "12345678901", true},
		{entities.CountryBR, "1234567890", false},
		{entities.CountryAR, "12345678", true},
		{entities.CountryAR, "123456", false},
		{entities.CountryCL, "12345678-5", true},
		{entities.CountryCL, "1234567-K", true},
		{entities.CountryCL, "12345678", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.country)+"/"+tt.document, func(t *testing.T) {
			s, err := r.ForCountry(tt.country)
			require.NoError(t, err)

			result := s.ValidateDocument(tt.document)
			assert.Equal(t, tt.valid, result.Valid)
			if !tt.valid {
				assert.NotEmpty(t, result.Errors)
			}
		})
	}
}

func TestDocumentValidationNormalizesCase(t *testing.T) {
	r := testRegistry()
	s, err := r.ForCountry(entities.CountryES)
	require.NoError(t, err)

	assert.True(t, s.ValidateDocument(" 12345678z ").Valid)
}

func newApplication(amount, income string) *entities.Application {
	return &entities.Application{
		ID:              uuid.New(),
		Country:         entities.CountryES,
		RequestedAmount: decimal.RequireFromString(amount),
		MonthlyIncome:   decimal.RequireFromString(income),
		Currency:        "EUR",
		Status:          entities.StatusValidating,
	}
}

func goodBanking() *entities.BankingData {
	return &entities.BankingData{
		ProviderName:       "cirbe",
		CreditScore:        720,
		TotalDebt:          decimal.RequireFromString("5000.00"),
		MonthlyObligations: decimal.RequireFromString("300.00"),
		HasDefaults:        false,
	}
}

func TestEvaluateApprovesHealthyProfile(t *testing.T) {
	r := testRegistry()
	s, _ := r.ForCountry(entities.CountryES)

	eval := s.Evaluate(newApplication("15000.00", "3500.00"), goodBanking())
	assert.Equal(t, entities.RecommendApprove, eval.Recommendation)
	assert.True(t, eval.RiskScore.LessThanOrEqual(decimal.NewFromInt(40)))
}

func TestEvaluateRejectsDefaults(t *testing.T) {
	r := testRegistry()
	s, _ := r.ForCountry(entities.CountryES)

	banking := goodBanking()
	banking.HasDefaults = true

	eval := s.Evaluate(newApplication("15000.00", "3500.00"), banking)
	assert.Equal(t, entities.RecommendReject, eval.Recommendation)
	assert.NotEmpty(t, eval.Notes)
}

func TestEvaluateRejectsLowCreditScore(t *testing.T) {
	r := testRegistry()
	s, _ := r.ForCountry(entities.CountryES)

	banking := goodBanking()
	banking.CreditScore = 480

	eval := s.Evaluate(newApplication("15000.00", "3500.00"), banking)
	assert.Equal(t, entities.RecommendReject, eval.Recommendation)
}

func TestEvaluateFallbackAlwaysReviews(t *testing.T) {
	r := testRegistry()

	fallback := &entities.BankingData{
		ProviderName:       "cirbe (FALLBACK — Circuit Open)",
		CreditScore:        500,
		TotalDebt:          decimal.RequireFromString("50000.00"),
		MonthlyObligations: decimal.RequireFromString("2000.00"),
		AdditionalData:     map[string]interface{}{"fallback": true},
	}

	for country := range entities.CountryCurrencies {
		s, err := r.ForCountry(country)
		require.NoError(t, err)

		eval := s.Evaluate(newApplication("15000.00", "3500.00"), fallback)
		assert.Equal(t, entities.RecommendReview, eval.Recommendation,
			"fallback data must never approve or reject (%s)", country)
	}
}

func TestEvaluateOverIndebtedProfileIsNotApproved(t *testing.T) {
	r := testRegistry()
	s, _ := r.ForCountry(entities.CountryES)

	banking := goodBanking()
	banking.TotalDebt = decimal.RequireFromString("30000.00")
	banking.MonthlyObligations = decimal.RequireFromString("2900.00")

	eval := s.Evaluate(newApplication("15000.00", "3500.00"), banking)
	assert.NotEqual(t, entities.RecommendApprove, eval.Recommendation)
	assert.NotEmpty(t, eval.Notes)
}

func TestEvaluateRiskScoreBounds(t *testing.T) {
	r := testRegistry()
	s, _ := r.ForCountry(entities.CountryES)

	banking := goodBanking()
	banking.CreditScore = 605
	banking.TotalDebt = decimal.RequireFromString("100000.00")
	banking.MonthlyObligations = decimal.RequireFromString("3400.00")

	eval := s.Evaluate(newApplication("50000.00", "3500.00"), banking)
	assert.True(t, eval.RiskScore.GreaterThanOrEqual(decimal.Zero))
	assert.True(t, eval.RiskScore.LessThanOrEqual(decimal.NewFromInt(100)))
}
