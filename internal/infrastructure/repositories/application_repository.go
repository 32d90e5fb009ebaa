package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/global-credit/credit_core/internal/domain/entities"
	domainerrors "github.com/global-credit/credit_core/internal/domain/errors"
	"github.com/global-credit/credit_core/pkg/logger"
)

const uniqueViolation = "23505"

const applicationColumns = `
	id, country, full_name, identity_document, document_fingerprint,
	requested_amount, monthly_income, currency, idempotency_key, status,
	country_specific_data, banking_data, risk_score, validation_errors,
	created_at, updated_at, deleted_at`

// ApplicationRepository owns all reads and writes of the applications table
type ApplicationRepository struct {
	db     *sqlx.DB
	logger *logger.Logger
}

// NewApplicationRepository creates a new application repository
func NewApplicationRepository(db *sqlx.DB, logger *logger.Logger) *ApplicationRepository {
	return &ApplicationRepository{db: db, logger: logger}
}

// Insert persists a new application. The enqueue trigger creates the
// pending_jobs row in the same transaction; constraint violations surface
// as typed conflicts.
func (r *ApplicationRepository) Insert(ctx context.Context, app *entities.Application) error {
	query := `
		INSERT INTO applications (
			id, country, full_name, identity_document, document_fingerprint,
			requested_amount, monthly_income, currency, idempotency_key,
			status, country_specific_data
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query,
		app.ID,
		string(app.Country),
		app.FullName,
		app.IdentityDocument,
		app.DocumentFingerprint,
		app.RequestedAmount,
		app.MonthlyIncome,
		app.Currency,
		app.IdempotencyKey,
		string(app.Status),
		app.CountrySpecificData,
	).Scan(&app.CreatedAt, &app.UpdatedAt)

	if err != nil {
		if conflict := r.mapConflict(err, app); conflict != nil {
			return conflict
		}
		r.logger.Error("Failed to insert application", "error", err)
		return domainerrors.DatabaseUnavailableError(err)
	}

	return nil
}

func (r *ApplicationRepository) mapConflict(err error, app *entities.Application) error {
	var pqErr *pq.Error
	if !asPQError(err, &pqErr) || string(pqErr.Code) != uniqueViolation {
		return nil
	}

	switch pqErr.Constraint {
	case "uq_applications_idempotency_key":
		key := ""
		if app.IdempotencyKey != nil {
			key = *app.IdempotencyKey
		}
		return domainerrors.IdempotencyHitError(key)
	case "uq_applications_active_document":
		return domainerrors.ActiveDuplicateError(string(app.Country))
	default:
		return domainerrors.Wrap(domainerrors.KindValidation, err, "unique constraint violation")
	}
}

// GetByID loads an application by id
func (r *ApplicationRepository) GetByID(ctx context.Context, id uuid.UUID) (*entities.Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM applications WHERE id = $1 AND deleted_at IS NULL`

	var app entities.Application
	err := r.db.GetContext(ctx, &app, query, id)
	if err == sql.ErrNoRows {
		return nil, domainerrors.NotFoundError("application")
	}
	if err != nil {
		r.logger.Error("Failed to get application", "error", err, "application_id", id)
		return nil, domainerrors.DatabaseUnavailableError(err)
	}
	return &app, nil
}

// GetByIdempotencyKey loads the application previously created with a key
func (r *ApplicationRepository) GetByIdempotencyKey(ctx context.Context, key string) (*entities.Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM applications WHERE idempotency_key = $1`

	var app entities.Application
	err := r.db.GetContext(ctx, &app, query, key)
	if err == sql.ErrNoRows {
		return nil, domainerrors.NotFoundError("application")
	}
	if err != nil {
		return nil, domainerrors.DatabaseUnavailableError(err)
	}
	return &app, nil
}

// StatusUpdate carries the optional fields persisted with a transition
type StatusUpdate struct {
	RiskScore        *decimal.Decimal
	BankingData      entities.JSONDocument
	ValidationErrors entities.StringList
	ChangedBy        string
	ChangeReason     string
}

// TransitionStatus atomically moves an application between statuses. The
// UPDATE is guarded by the expected source status, so a lost race updates
// zero rows and is reported as a state transition conflict; the audit
// trigger records the change with the caller's attribution.
func (r *ApplicationRepository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to entities.ApplicationStatus, upd StatusUpdate) (*entities.Application, error) {
	if err := from.ValidateTransition(to); err != nil {
		return nil, domainerrors.StateTransitionError(string(from), string(to))
	}

	var app *entities.Application
	txErr := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if err := setAuditAttribution(ctx, tx, upd.ChangedBy, upd.ChangeReason); err != nil {
			return err
		}

		query := `
			UPDATE applications
			SET status = $1,
			    risk_score = COALESCE($2, risk_score),
			    banking_data = COALESCE($3, banking_data),
			    validation_errors = COALESCE($4, validation_errors)
			WHERE id = $5 AND status = $6 AND deleted_at IS NULL
			RETURNING ` + applicationColumns

		var updated entities.Application
		err := tx.GetContext(ctx, &updated, query,
			string(to), upd.RiskScore, upd.BankingData, upd.ValidationErrors, id, string(from))
		if err == sql.ErrNoRows {
			// Either the row is gone or another writer moved it first;
			// re-read outside the guard to report precisely.
			current, readErr := r.currentStatus(ctx, tx, id)
			if readErr != nil {
				return readErr
			}
			return domainerrors.StateTransitionError(string(current), string(to))
		}
		if err != nil {
			return domainerrors.DatabaseUnavailableError(err)
		}
		app = &updated
		return nil
	})

	if txErr != nil {
		return nil, txErr
	}
	return app, nil
}

func (r *ApplicationRepository) currentStatus(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (entities.ApplicationStatus, error) {
	var status string
	err := tx.GetContext(ctx, &status, `SELECT status FROM applications WHERE id = $1 AND deleted_at IS NULL`, id)
	if err == sql.ErrNoRows {
		return "", domainerrors.NotFoundError("application")
	}
	if err != nil {
		return "", domainerrors.DatabaseUnavailableError(err)
	}
	return entities.ApplicationStatus(status), nil
}

// setAuditAttribution exposes the caller identity to the audit trigger for
// the scope of the transaction
func setAuditAttribution(ctx context.Context, tx *sqlx.Tx, changedBy, reason string) error {
	if changedBy == "" && reason == "" {
		return nil
	}
	if _, err := tx.ExecContext(ctx, `SELECT set_config('app.changed_by', $1, true), set_config('app.change_reason', $2, true)`, changedBy, reason); err != nil {
		return domainerrors.DatabaseUnavailableError(err)
	}
	return nil
}

// ListAuditTrail returns the ordered status history of an application
func (r *ApplicationRepository) ListAuditTrail(ctx context.Context, id uuid.UUID) ([]*entities.AuditLog, error) {
	query := `
		SELECT id, application_id, old_status, new_status, changed_by,
		       change_reason, metadata, created_at
		FROM audit_logs
		WHERE application_id = $1
		ORDER BY created_at ASC, id ASC`

	var logs []*entities.AuditLog
	if err := r.db.SelectContext(ctx, &logs, query, id); err != nil {
		return nil, domainerrors.DatabaseUnavailableError(err)
	}
	return logs, nil
}

// ListStalePending returns PENDING applications older than the cutoff,
// used by the optional stale-application auto-cancellation job
func (r *ApplicationRepository) ListStalePending(ctx context.Context, olderThan time.Duration, limit int) ([]*entities.Application, error) {
	query := `
		SELECT ` + applicationColumns + `
		FROM applications
		WHERE status = 'PENDING'
		  AND deleted_at IS NULL
		  AND created_at < NOW() - make_interval(secs => $1)
		ORDER BY created_at ASC
		LIMIT $2`

	var apps []*entities.Application
	if err := r.db.SelectContext(ctx, &apps, query, olderThan.Seconds(), limit); err != nil {
		return nil, domainerrors.DatabaseUnavailableError(err)
	}
	return apps, nil
}

// CountRows approximates the applications row count for the partition
// conversion threshold
func (r *ApplicationRepository) CountRows(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM applications`); err != nil {
		return 0, domainerrors.DatabaseUnavailableError(err)
	}
	return count, nil
}

func withTx(ctx context.Context, db *sqlx.DB, fn func(*sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return domainerrors.DatabaseUnavailableError(err)
	}

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return domainerrors.DatabaseUnavailableError(err)
	}
	return nil
}

func asPQError(err error, target **pq.Error) bool {
	for err != nil {
		if pqErr, ok := err.(*pq.Error); ok {
			*target = pqErr
			return true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = unwrapper.Unwrap()
	}
	return false
}
