// Package strategies maps each supported country onto its document
// validation rules, banking provider and credit evaluation policy.
package strategies

import (
	"context"

	"github.com/global-credit/credit_core/internal/domain/entities"
	domainerrors "github.com/global-credit/credit_core/internal/domain/errors"
)

// Strategy is one country's processing policy. ValidateDocument and
// Evaluate are pure and perform no I/O; FetchBankingData may call a remote
// provider and is always wrapped by the circuit breaker registry.
type Strategy interface {
	Country() entities.CountryCode
	ProviderName() string
	ValidateDocument(document string) entities.ValidationResult
	FetchBankingData(ctx context.Context, document, fullName string) (*entities.BankingData, error)
	Evaluate(app *entities.Application, banking *entities.BankingData) entities.Evaluation
}

// Fetcher is the provider dependency injected into strategies
type Fetcher interface {
	FetchBankingData(ctx context.Context, country entities.CountryCode, document, fullName string) (*entities.BankingData, error)
}

// Registry is the immutable country → strategy table, built once at
// process start.
type Registry struct {
	strategies map[entities.CountryCode]Strategy
}

// NewRegistry builds the registry for all supported countries
func NewRegistry(fetcher Fetcher) *Registry {
	table := map[entities.CountryCode]Strategy{}
	for _, s := range []Strategy{
		newSpainStrategy(fetcher),
		newMexicoStrategy(fetcher),
		newColombiaStrategy(fetcher),
		newBrazilStrategy(fetcher),
		newArgentinaStrategy(fetcher),
		newChileStrategy(fetcher),
	} {
		table[s.Country()] = s
	}
	return &Registry{strategies: table}
}

// ForCountry resolves the strategy for a country. Unknown countries are a
// permanent failure.
func (r *Registry) ForCountry(country entities.CountryCode) (Strategy, error) {
	s, ok := r.strategies[country]
	if !ok {
		return nil, domainerrors.UnsupportedCountryError(string(country))
	}
	return s, nil
}

// Countries lists the registered country codes
func (r *Registry) Countries() []entities.CountryCode {
	out := make([]entities.CountryCode, 0, len(r.strategies))
	for c := range r.strategies {
		out = append(out, c)
	}
	return out
}
