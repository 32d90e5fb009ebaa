// Package bankingprovider implements the HTTP client for the per-country
// credit bureau / banking data providers.
package bankingprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/global-credit/credit_core/internal/domain/entities"
	domainerrors "github.com/global-credit/credit_core/internal/domain/errors"
)

// Fetcher retrieves a banking profile for a document holder
type Fetcher interface {
	FetchBankingData(ctx context.Context, country entities.CountryCode, document, fullName string) (*entities.BankingData, error)
}

// Client calls the provider HTTP APIs. One client serves every country;
// the per-country base URL and provider identity come from configuration.
type Client struct {
	httpClient *http.Client
	baseURLs   map[string]string
	logger     *zap.Logger
}

// NewClient creates a provider client
func NewClient(baseURLs map[string]string, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURLs:   baseURLs,
		logger:     logger,
	}
}

type profileRequest struct {
	IdentityDocument string `json:"identity_document"`
	FullName         string `json:"full_name"`
}

type profileResponse struct {
	Provider           string                 `json:"provider"`
	CreditScore        int                    `json:"credit_score"`
	TotalDebt          string                 `json:"total_debt"`
	MonthlyObligations string                 `json:"monthly_obligations"`
	HasDefaults        bool                   `json:"has_defaults"`
	AdditionalData     map[string]interface{} `json:"additional_data"`
}

// FetchBankingData requests the credit profile from the country's provider.
// Failures are classified so the retry policy and the circuit breaker see
// the right error class.
func (c *Client) FetchBankingData(ctx context.Context, country entities.CountryCode, document, fullName string) (*entities.BankingData, error) {
	baseURL, ok := c.baseURLs[string(country)]
	if !ok || baseURL == "" {
		return nil, domainerrors.ProviderUnavailableError(string(country), fmt.Errorf("no provider endpoint configured for %s", country))
	}

	body, err := json.Marshal(profileRequest{
		IdentityDocument: document,
		FullName:         fullName,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal provider request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/v1/credit-profile", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build provider request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportError(string(country), err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return nil, domainerrors.ProviderUnavailableError(string(country), fmt.Errorf("provider returned %d", resp.StatusCode))
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusRequestTimeout:
		return nil, domainerrors.ProviderUnavailableError(string(country), fmt.Errorf("provider returned %d", resp.StatusCode))
	case resp.StatusCode >= 400:
		return nil, domainerrors.ValidationError("identity_document", fmt.Sprintf("provider rejected request with %d", resp.StatusCode))
	}

	var profile profileResponse
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, domainerrors.ProviderUnavailableError(string(country), fmt.Errorf("malformed provider response: %w", err))
	}

	totalDebt, err := decimal.NewFromString(profile.TotalDebt)
	if err != nil {
		return nil, domainerrors.ProviderUnavailableError(string(country), fmt.Errorf("malformed total_debt: %w", err))
	}
	obligations, err := decimal.NewFromString(profile.MonthlyObligations)
	if err != nil {
		return nil, domainerrors.ProviderUnavailableError(string(country), fmt.Errorf("malformed monthly_obligations: %w", err))
	}

	return &entities.BankingData{
		ProviderName:       profile.Provider,
		CreditScore:        profile.CreditScore,
		TotalDebt:          totalDebt,
		MonthlyObligations: obligations,
		HasDefaults:        profile.HasDefaults,
		AdditionalData:     profile.AdditionalData,
	}, nil
}

func classifyTransportError(country string, err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return domainerrors.Wrap(domainerrors.KindNetworkTimeout, err, "provider request timed out")
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domainerrors.Wrap(domainerrors.KindNetworkTimeout, err, "provider request timed out")
	}
	return domainerrors.Wrap(domainerrors.KindConnection, err, fmt.Sprintf("provider connection failed for %s", country))
}
