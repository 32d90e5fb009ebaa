package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	domainerrors "github.com/global-credit/credit_core/internal/domain/errors"
	"github.com/global-credit/credit_core/pkg/logger"
)

// MaintenanceRepository executes the DDL-level maintenance work: monthly
// partition assurance for the applications table and its derived tables.
type MaintenanceRepository struct {
	db     *sqlx.DB
	logger *logger.Logger
}

// NewMaintenanceRepository creates a maintenance repository
func NewMaintenanceRepository(db *sqlx.DB, logger *logger.Logger) *MaintenanceRepository {
	return &MaintenanceRepository{db: db, logger: logger}
}

// IsPartitioned reports whether a table is range-partitioned
func (r *MaintenanceRepository) IsPartitioned(ctx context.Context, table string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM pg_partitioned_table pt
			JOIN pg_class c ON c.oid = pt.partrelid
			WHERE c.relname = $1
		)`

	var partitioned bool
	if err := r.db.GetContext(ctx, &partitioned, query, table); err != nil {
		return false, domainerrors.DatabaseUnavailableError(err)
	}
	return partitioned, nil
}

// EnsureMonthlyPartitions creates missing monthly partitions for the given
// table covering now through monthsAhead months.
func (r *MaintenanceRepository) EnsureMonthlyPartitions(ctx context.Context, table string, monthsAhead int) error {
	partitioned, err := r.IsPartitioned(ctx, table)
	if err != nil {
		return err
	}
	if !partitioned {
		// Conversion happens separately once the row threshold is crossed
		return nil
	}

	now := time.Now().UTC()
	for i := 0; i <= monthsAhead; i++ {
		start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, i, 0)
		end := start.AddDate(0, 1, 0)
		name := fmt.Sprintf("%s_y%04dm%02d", table, start.Year(), int(start.Month()))

		// Identifiers cannot be bound as parameters; names are built from
		// validated table constants and formatted dates only.
		ddl := fmt.Sprintf(
			`CREATE TABLE IF NOT EXISTS %s PARTITION OF %s FOR VALUES FROM ('%s') TO ('%s')`,
			name, table,
			start.Format("2006-01-02"), end.Format("2006-01-02"),
		)
		if _, err := r.db.ExecContext(ctx, ddl); err != nil {
			return domainerrors.DatabaseUnavailableError(err)
		}
		r.logger.Debug("Ensured partition", "table", table, "partition", name)
	}
	return nil
}

// ConvertToPartitioned turns a plain table into a range-partitioned one on
// created_at, attaching the existing data as the DEFAULT partition so the
// conversion needs no rewrite. New monthly partitions are created by
// EnsureMonthlyPartitions afterwards.
func (r *MaintenanceRepository) ConvertToPartitioned(ctx context.Context, table string) error {
	legacy := table + "_legacy"

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return domainerrors.DatabaseUnavailableError(err)
	}
	defer tx.Rollback()

	stmts := []string{
		fmt.Sprintf(`ALTER TABLE %s RENAME TO %s`, table, legacy),
		fmt.Sprintf(`CREATE TABLE %s (LIKE %s INCLUDING DEFAULTS INCLUDING CONSTRAINTS) PARTITION BY RANGE (created_at)`, table, legacy),
		fmt.Sprintf(`ALTER TABLE %s ATTACH PARTITION %s DEFAULT`, table, legacy),
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return domainerrors.DatabaseUnavailableError(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return domainerrors.DatabaseUnavailableError(err)
	}

	r.logger.Info("Converted table to range partitioning", "table", table)
	return nil
}
