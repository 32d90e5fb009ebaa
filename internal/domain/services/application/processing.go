package application

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/global-credit/credit_core/internal/domain/entities"
	domainerrors "github.com/global-credit/credit_core/internal/domain/errors"
	"github.com/global-credit/credit_core/internal/infrastructure/breaker"
	"github.com/global-credit/credit_core/internal/infrastructure/repositories"
	"github.com/global-credit/credit_core/pkg/tracing"
)

// ProcessResult reports what the task body did, for pending_job bookkeeping
type ProcessResult struct {
	Skipped     bool
	SkipReason  string
	FinalStatus entities.ApplicationStatus
}

// Process runs the full evaluation of one application. The caller (worker
// pool) holds the per-application lock for the duration; this body assumes
// exclusive ownership of the row's status.
//
// At-least-once delivery means the same task can arrive twice; a status
// already terminal or beyond VALIDATING short-circuits to completion.
// VALIDATING itself is not beyond: a row left there by a failed or
// retried attempt re-enters the pipeline at the validation step, so
// retries and DLQ re-enqueues resume instead of skipping.
func (s *Service) Process(ctx context.Context, applicationID uuid.UUID) (*ProcessResult, error) {
	app, err := s.appRepo.GetByID(ctx, applicationID)
	if err != nil {
		return nil, err
	}

	switch app.Status {
	case entities.StatusPending, entities.StatusValidating:
	default:
		s.logger.Info("Application already advanced, skipping",
			"application_id", app.ID,
			"status", app.Status,
		)
		return &ProcessResult{
			Skipped:     true,
			SkipReason:  "already processed (status " + string(app.Status) + ")",
			FinalStatus: app.Status,
		}, nil
	}

	strategy, err := s.strategies.ForCountry(app.Country)
	if err != nil {
		// Country became unsupported between insert and pickup: park the
		// application for a human rather than rejecting it outright.
		return s.parkUnsupportedCountry(ctx, app, err)
	}

	trace.SpanFromContext(ctx).SetAttributes(
		tracing.AttrCountry.String(string(app.Country)),
		tracing.AttrProvider.String(strategy.ProviderName()),
	)

	if app.Status == entities.StatusPending {
		app, err = s.appRepo.TransitionStatus(ctx, app.ID, entities.StatusPending, entities.StatusValidating, repositories.StatusUpdate{
			ChangedBy:    "worker",
			ChangeReason: "processing started",
		})
		if err != nil {
			return nil, err
		}
		s.publisher.Publish(ctx, entities.NewApplicationUpdate(app))
	}

	document, err := s.encryptor.Decrypt(app.IdentityDocument)
	if err != nil {
		return nil, domainerrors.Wrap(domainerrors.KindUnknown, err, "failed to decrypt identity document")
	}
	fullName, err := s.encryptor.Decrypt(app.FullName)
	if err != nil {
		return nil, domainerrors.Wrap(domainerrors.KindUnknown, err, "failed to decrypt full name")
	}

	if result := strategy.ValidateDocument(document); !result.Valid {
		app, err = s.appRepo.TransitionStatus(ctx, app.ID, entities.StatusValidating, entities.StatusRejected, repositories.StatusUpdate{
			ValidationErrors: entities.StringList(result.Errors),
			ChangedBy:        "worker",
			ChangeReason:     "document validation failed",
		})
		if err != nil {
			return nil, err
		}
		s.publisher.Publish(ctx, entities.NewApplicationUpdate(app))
		return &ProcessResult{FinalStatus: app.Status}, nil
	}

	// Provider call behind the breaker; an open circuit degrades to the
	// conservative fallback profile instead of failing the task.
	key := breaker.Key{Country: app.Country, Provider: strategy.ProviderName()}
	banking, err := s.breakers.Call(ctx, key, func(ctx context.Context) (*entities.BankingData, error) {
		return strategy.FetchBankingData(ctx, document, fullName)
	})
	if err != nil {
		return nil, err
	}

	evaluation := strategy.Evaluate(app, banking)
	target := recommendationStatus(evaluation.Recommendation)

	app, err = s.appRepo.TransitionStatus(ctx, app.ID, entities.StatusValidating, target, repositories.StatusUpdate{
		RiskScore:        &evaluation.RiskScore,
		BankingData:      banking.ToDocument(),
		ValidationErrors: entities.StringList(evaluation.Notes),
		ChangedBy:        "worker",
		ChangeReason:     "evaluation completed",
	})
	if err != nil {
		return nil, err
	}
	s.publisher.Publish(ctx, entities.NewApplicationUpdate(app))

	s.logger.Info("Application processed",
		"application_id", app.ID,
		"status", app.Status,
		"risk_score", evaluation.RiskScore,
		"fallback", banking.IsFallback(),
	)

	return &ProcessResult{FinalStatus: app.Status}, nil
}

func recommendationStatus(rec entities.Recommendation) entities.ApplicationStatus {
	switch rec {
	case entities.RecommendApprove:
		return entities.StatusApproved
	case entities.RecommendReject:
		return entities.StatusRejected
	default:
		return entities.StatusUnderReview
	}
}

// parkUnsupportedCountry moves the application to UNDER_REVIEW with the
// cause recorded, then surfaces the permanent error for dead-lettering.
func (s *Service) parkUnsupportedCountry(ctx context.Context, app *entities.Application, cause error) (*ProcessResult, error) {
	if app.Status == entities.StatusPending {
		validating, err := s.appRepo.TransitionStatus(ctx, app.ID, entities.StatusPending, entities.StatusValidating, repositories.StatusUpdate{
			ChangedBy:    "worker",
			ChangeReason: "processing started",
		})
		if err != nil {
			return nil, cause
		}
		app = validating
	}

	parked, err := s.appRepo.TransitionStatus(ctx, app.ID, entities.StatusValidating, entities.StatusUnderReview, repositories.StatusUpdate{
		ValidationErrors: entities.StringList{cause.Error()},
		ChangedBy:        "worker",
		ChangeReason:     "country no longer supported",
	})
	if err != nil {
		return nil, cause
	}
	s.publisher.Publish(ctx, entities.NewApplicationUpdate(parked))
	return nil, cause
}
