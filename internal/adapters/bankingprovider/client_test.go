package bankingprovider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/global-credit/credit_core/internal/domain/entities"
	domainerrors "github.com/global-credit/credit_core/internal/domain/errors"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewClient(map[string]string{"ES": server.URL}, 2*time.Second, zap.NewNop())
}

func TestFetchBankingDataSuccess(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/credit-profile", r.URL.Path)

		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "12345678Z", req["identity_document"])

		json.NewEncoder(w).Encode(map[string]interface{}{
			"provider":            "cirbe",
			"credit_score":        720,
			"total_debt":          "5000.00",
			"monthly_obligations": "300.00",
			"has_defaults":        false,
		})
	})

	data, err := client.FetchBankingData(context.Background(), entities.CountryES, "12345678Z", "Juan García López")
	require.NoError(t, err)
	assert.Equal(t, "cirbe", data.ProviderName)
	assert.Equal(t, 720, data.CreditScore)
	assert.Equal(t, "5000.00", data.TotalDebt.StringFixed(2))
	assert.False(t, data.HasDefaults)
	assert.False(t, data.IsFallback())
}

func TestFetchBankingDataServerErrorIsTransient(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.FetchBankingData(context.Background(), entities.CountryES, "12345678Z", "Juan")
	require.Error(t, err)
	assert.Equal(t, domainerrors.KindProviderUnavailable, domainerrors.KindOf(err))
	assert.True(t, domainerrors.IsTransient(err))
}

func TestFetchBankingDataClientErrorIsPermanent(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})

	_, err := client.FetchBankingData(context.Background(), entities.CountryES, "12345678Z", "Juan")
	require.Error(t, err)
	assert.Equal(t, domainerrors.KindValidation, domainerrors.KindOf(err))
	assert.False(t, domainerrors.IsTransient(err))
}

func TestFetchBankingDataMalformedResponseIsTransient(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	})

	_, err := client.FetchBankingData(context.Background(), entities.CountryES, "12345678Z", "Juan")
	require.Error(t, err)
	assert.True(t, domainerrors.IsTransient(err))
}

func TestFetchBankingDataUnconfiguredCountry(t *testing.T) {
	client := NewClient(map[string]string{}, time.Second, zap.NewNop())

	_, err := client.FetchBankingData(context.Background(), entities.CountryMX, "GARC850101HDFRRN09", "Ana")
	require.Error(t, err)
	assert.Equal(t, domainerrors.KindProviderUnavailable, domainerrors.KindOf(err))
}

func TestFetchBankingDataTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	t.Cleanup(server.Close)

	client := NewClient(map[string]string{"ES": server.URL}, 50*time.Millisecond, zap.NewNop())

	_, err := client.FetchBankingData(context.Background(), entities.CountryES, "12345678Z", "Juan")
	require.Error(t, err)
	assert.Equal(t, domainerrors.KindNetworkTimeout, domainerrors.KindOf(err))
	assert.True(t, domainerrors.IsTransient(err))
}
