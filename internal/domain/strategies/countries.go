package strategies

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/global-credit/credit_core/internal/domain/entities"
)

// countryStrategy implements Strategy with per-country document rules and
// evaluation thresholds. Checksum verification of national documents is a
// pluggable concern handled outside this module; here only format is
// enforced.
type countryStrategy struct {
	country    entities.CountryCode
	provider   string
	docPattern *regexp.Regexp
	docHint    string
	limits     thresholds
	fetcher    Fetcher
}

func (s *countryStrategy) Country() entities.CountryCode { return s.country }
func (s *countryStrategy) ProviderName() string          { return s.provider }

func (s *countryStrategy) ValidateDocument(document string) entities.ValidationResult {
	doc := strings.ToUpper(strings.TrimSpace(document))
	if doc == "" {
		return entities.ValidationResult{Valid: false, Errors: []string{"identity document is required"}}
	}
	if !s.docPattern.MatchString(doc) {
		return entities.ValidationResult{
			Valid:  false,
			Errors: []string{fmt.Sprintf("identity document does not match the %s format (%s)", s.country, s.docHint)},
		}
	}
	return entities.ValidationResult{Valid: true}
}

func (s *countryStrategy) FetchBankingData(ctx context.Context, document, fullName string) (*entities.BankingData, error) {
	return s.fetcher.FetchBankingData(ctx, s.country, document, fullName)
}

func (s *countryStrategy) Evaluate(app *entities.Application, banking *entities.BankingData) entities.Evaluation {
	return evaluate(app, banking, s.limits)
}

func newSpainStrategy(fetcher Fetcher) Strategy {
	return &countryStrategy{
		country:    entities.CountryES,
		provider:   "cirbe",
		docPattern: regexp.MustCompile(`^(\d{8}[A-Z]|[XYZ]\d{7}[A-Z])$`),
		docHint:    "DNI 12345678A or NIE X1234567A",
		limits: thresholds{
			minCreditScore:    650,
			reviewCreditScore: 600,
			maxDebtToIncome:   decimal.RequireFromString("0.40"),
			installmentMonths: 24,
		},
		fetcher: fetcher,
	}
}

func newMexicoStrategy(fetcher Fetcher) Strategy {
	return &countryStrategy{
		country:    entities.CountryMX,
		provider:   "buro_de_credito",
		docPattern: regexp.MustCompile(`^[A-Z]{4}\d{6}[HM][A-Z]{5}[A-Z0-9]\d$`),
		docHint:    "CURP, 18 characters",
		limits: thresholds{
			minCreditScore:    660,
			reviewCreditScore: 590,
			maxDebtToIncome:   decimal.RequireFromString("0.35"),
			installmentMonths: 24,
		},
		fetcher: fetcher,
	}
}

func newColombiaStrategy(fetcher Fetcher) Strategy {
	return &countryStrategy{
		country:    entities.CountryCO,
		provider:   "datacredito",
		docPattern: regexp.MustCompile(`^\d{6,10}$`),
		docHint:    "cedula de ciudadania, 6-10 digits",
		limits: thresholds{
			minCreditScore:    640,
			reviewCreditScore: 580,
			maxDebtToIncome:   decimal.RequireFromString("0.40"),
			installmentMonths: 18,
		},
		fetcher: fetcher,
	}
}

func newBrazilStrategy(fetcher Fetcher) Strategy {
	return &countryStrategy{
		country:    entities.CountryBR,
		provider:   "serasa",
		docPattern: regexp.MustCompile(`^\d{11}$`),
		docHint:    "CPF, 11 digits",
		limits: thresholds{
			minCreditScore:    670,
			reviewCreditScore: 600,
			maxDebtToIncome:   decimal.RequireFromString("0.35"),
			installmentMonths: 24,
		},
		fetcher: fetcher,
	}
}

func newArgentinaStrategy(fetcher Fetcher) Strategy {
	return &countryStrategy{
		country:    entities.CountryAR,
		provider:   "veraz",
		docPattern: regexp.MustCompile(`^\d{7,8}$`),
		docHint:    "DNI, 7-8 digits",
		limits: thresholds{
			minCreditScore:    630,
			reviewCreditScore: 570,
			maxDebtToIncome:   decimal.RequireFromString("0.45"),
			installmentMonths: 18,
		},
		fetcher: fetcher,
	}
}

func newChileStrategy(fetcher Fetcher) Strategy {
	return &countryStrategy{
		country:    entities.CountryCL,
		provider:   "dicom",
		docPattern: regexp.MustCompile(`^\d{7,8}-[\dK]$`),
		docHint:    "RUT 12345678-5",
		limits: thresholds{
			minCreditScore:    640,
			reviewCreditScore: 590,
			maxDebtToIncome:   decimal.RequireFromString("0.40"),
			installmentMonths: 24,
		},
		fetcher: fetcher,
	}
}
