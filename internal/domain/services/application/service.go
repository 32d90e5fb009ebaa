// Package application implements credit application intake and the
// asynchronous processing that drives each application through its
// lifecycle.
package application

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/global-credit/credit_core/internal/domain/entities"
	domainerrors "github.com/global-credit/credit_core/internal/domain/errors"
	"github.com/global-credit/credit_core/internal/domain/strategies"
	"github.com/global-credit/credit_core/internal/infrastructure/breaker"
	"github.com/global-credit/credit_core/internal/infrastructure/repositories"
	"github.com/global-credit/credit_core/pkg/crypto"
	"github.com/global-credit/credit_core/pkg/logger"
)

// Publisher emits best-effort realtime updates
type Publisher interface {
	Publish(ctx context.Context, msg entities.RealtimeMessage)
}

// Service orchestrates application intake and processing
type Service struct {
	appRepo    *repositories.ApplicationRepository
	strategies *strategies.Registry
	breakers   *breaker.Registry
	publisher  Publisher
	encryptor  *crypto.Encryptor
	logger     *logger.Logger
}

// NewService creates the application service
func NewService(
	appRepo *repositories.ApplicationRepository,
	strategyRegistry *strategies.Registry,
	breakers *breaker.Registry,
	publisher Publisher,
	encryptor *crypto.Encryptor,
	logger *logger.Logger,
) *Service {
	return &Service{
		appRepo:    appRepo,
		strategies: strategyRegistry,
		breakers:   breakers,
		publisher:  publisher,
		encryptor:  encryptor,
		logger:     logger,
	}
}

// Create validates and persists a new application. The database trigger
// enqueues processing in the same transaction; this path never touches the
// work queue. Returns the application and whether it was newly created
// (false on an idempotency-key replay).
func (s *Service) Create(ctx context.Context, req *entities.CreateApplicationRequest) (*entities.ApplicationResponse, bool, error) {
	country := entities.CountryCode(strings.ToUpper(strings.TrimSpace(req.Country)))
	if !country.IsValid() {
		return nil, false, domainerrors.UnsupportedCountryError(req.Country)
	}

	strategy, err := s.strategies.ForCountry(country)
	if err != nil {
		return nil, false, err
	}

	document := strings.ToUpper(strings.TrimSpace(req.IdentityDocument))
	if result := strategy.ValidateDocument(document); !result.Valid {
		return nil, false, domainerrors.ValidationError("identity_document", strings.Join(result.Errors, "; "))
	}

	if currency := strings.ToUpper(req.Currency); currency != country.Currency() {
		return nil, false, domainerrors.ValidationError("currency",
			"currency must be "+country.Currency()+" for country "+string(country))
	}

	amount, err := entities.ParseMoney("requested_amount", req.RequestedAmount)
	if err != nil {
		return nil, false, err
	}
	income, err := entities.ParseMoney("monthly_income", req.MonthlyIncome)
	if err != nil {
		return nil, false, err
	}

	encryptedName, err := s.encryptor.Encrypt(strings.TrimSpace(req.FullName))
	if err != nil {
		return nil, false, domainerrors.Wrap(domainerrors.KindUnknown, err, "failed to encrypt full name")
	}
	encryptedDocument, err := s.encryptor.Encrypt(document)
	if err != nil {
		return nil, false, domainerrors.Wrap(domainerrors.KindUnknown, err, "failed to encrypt identity document")
	}

	app := &entities.Application{
		ID:                  uuid.New(),
		Country:             country,
		FullName:            encryptedName,
		IdentityDocument:    encryptedDocument,
		DocumentFingerprint: s.encryptor.Fingerprint(string(country) + ":" + document),
		RequestedAmount:     amount,
		MonthlyIncome:       income,
		Currency:            country.Currency(),
		IdempotencyKey:      req.IdempotencyKey,
		Status:              entities.StatusPending,
		CountrySpecificData: entities.JSONDocument(req.CountrySpecificData),
	}

	if err := s.appRepo.Insert(ctx, app); err != nil {
		if domainerrors.IsIdempotencyHit(err) && req.IdempotencyKey != nil {
			existing, getErr := s.appRepo.GetByIdempotencyKey(ctx, *req.IdempotencyKey)
			if getErr != nil {
				return nil, false, getErr
			}
			resp, respErr := s.ToResponse(existing)
			return resp, false, respErr
		}
		return nil, false, err
	}

	s.logger.Info("Application created",
		"application_id", app.ID,
		"country", app.Country,
		"requested_amount", app.RequestedAmount,
	)

	resp, err := s.ToResponse(app)
	return resp, true, err
}

// Get loads an application as its decrypted API shape
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*entities.ApplicationResponse, error) {
	app, err := s.appRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.ToResponse(app)
}

// AuditTrail returns the ordered status history
func (s *Service) AuditTrail(ctx context.Context, id uuid.UUID) ([]*entities.AuditLog, error) {
	if _, err := s.appRepo.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return s.appRepo.ListAuditTrail(ctx, id)
}

// Cancel performs a manual PENDING → CANCELLED transition with attribution
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, changedBy, reason string) (*entities.ApplicationResponse, error) {
	app, err := s.appRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	updated, err := s.appRepo.TransitionStatus(ctx, id, app.Status, entities.StatusCancelled, repositories.StatusUpdate{
		ChangedBy:    changedBy,
		ChangeReason: reason,
	})
	if err != nil {
		return nil, err
	}

	s.publisher.Publish(ctx, entities.NewApplicationUpdate(updated))
	return s.ToResponse(updated)
}

// ToResponse decrypts PII into the API response shape. This helper is the
// only decryption point in the system.
func (s *Service) ToResponse(app *entities.Application) (*entities.ApplicationResponse, error) {
	fullName, err := s.encryptor.Decrypt(app.FullName)
	if err != nil {
		return nil, domainerrors.Wrap(domainerrors.KindUnknown, err, "failed to decrypt full name")
	}
	document, err := s.encryptor.Decrypt(app.IdentityDocument)
	if err != nil {
		return nil, domainerrors.Wrap(domainerrors.KindUnknown, err, "failed to decrypt identity document")
	}

	return &entities.ApplicationResponse{
		ID:                  app.ID,
		Country:             app.Country,
		FullName:            fullName,
		IdentityDocument:    document,
		RequestedAmount:     app.RequestedAmount,
		MonthlyIncome:       app.MonthlyIncome,
		Currency:            app.Currency,
		Status:              app.Status,
		RiskScore:           app.RiskScore,
		ValidationErrors:    []string(app.ValidationErrors),
		BankingData:         map[string]interface{}(app.BankingData),
		CountrySpecificData: map[string]interface{}(app.CountrySpecificData),
		CreatedAt:           app.CreatedAt,
		UpdatedAt:           app.UpdatedAt,
	}, nil
}
