package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pitabwire/reportbuilder/model"
)

// Schema creates the reports table. The full configuration is kept in a
// JSONB payload; identity, ownership and versioning live in columns.
const Schema = `
CREATE TABLE IF NOT EXISTS reports (
	id          TEXT PRIMARY KEY,
	tenant_id   TEXT NOT NULL,
	owner_id    TEXT NOT NULL,
	name        TEXT NOT NULL,
	payload     JSONB NOT NULL,
	version     INTEGER NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS reports_tenant_updated_idx ON reports (tenant_id, updated_at DESC);
`

// uniqueViolation is the PostgreSQL error code for a duplicate key.
const uniqueViolation = "23505"

var _ ReportStore = (*PgReportStore)(nil)

// PgReportStore is a PostgreSQL-backed ReportStore using pgx/v5.
type PgReportStore struct {
	pool *pgxpool.Pool
}

// NewPgReportStore creates a new PostgreSQL report store.
func NewPgReportStore(pool *pgxpool.Pool) *PgReportStore {
	return &PgReportStore{pool: pool}
}

// EnsureSchema creates the reports table if it does not exist.
func (s *PgReportStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("create reports schema: %w", err)
	}
	return nil
}

// Create inserts a new report.
func (s *PgReportStore) Create(ctx context.Context, r model.ReportConfiguration) (model.ReportConfiguration, error) {
	now := time.Now().UTC()
	r.Version = 1
	r.CreatedAt = now
	r.UpdatedAt = now

	payload, err := json.Marshal(r)
	if err != nil {
		return model.ReportConfiguration{}, fmt.Errorf("marshal report: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO reports (
			id, tenant_id, owner_id, name, payload, version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		r.ID, r.TenantID, r.OwnerID, r.Name, payload, r.Version, r.CreatedAt, r.UpdatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return model.ReportConfiguration{}, model.NewConflictError(
			fmt.Sprintf("report %q already exists", r.ID),
		)
	}
	if err != nil {
		return model.ReportConfiguration{}, fmt.Errorf("insert report: %w", err)
	}
	return r, nil
}

// Get retrieves a report by ID, scoped to tenant.
func (s *PgReportStore) Get(ctx context.Context, tenantID, reportID string) (model.ReportConfiguration, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, tenant_id, owner_id, payload, version, created_at, updated_at
		FROM reports
		WHERE id = $1 AND tenant_id = $2`,
		reportID, tenantID,
	)
	r, err := scanReport(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.ReportConfiguration{}, model.NewNotFoundError(
			fmt.Sprintf("report %q not found", reportID),
		)
	}
	if err != nil {
		return model.ReportConfiguration{}, fmt.Errorf("query report: %w", err)
	}
	return r, nil
}

// Update persists a changed report with optimistic locking.
func (s *PgReportStore) Update(ctx context.Context, r model.ReportConfiguration) (model.ReportConfiguration, error) {
	expected := r.Version
	r.Version++
	r.UpdatedAt = time.Now().UTC()

	payload, err := json.Marshal(r)
	if err != nil {
		return model.ReportConfiguration{}, fmt.Errorf("marshal report: %w", err)
	}

	var createdAt time.Time
	err = s.pool.QueryRow(ctx, `
		UPDATE reports SET
			name = $1,
			payload = $2,
			version = $3,
			updated_at = $4
		WHERE id = $5 AND tenant_id = $6 AND version = $7
		RETURNING created_at`,
		r.Name, payload, r.Version, r.UpdatedAt,
		r.ID, r.TenantID, expected,
	).Scan(&createdAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.ReportConfiguration{}, model.NewConflictError(
			fmt.Sprintf("report %q version conflict (expected %d)", r.ID, expected),
		)
	}
	if err != nil {
		return model.ReportConfiguration{}, fmt.Errorf("update report: %w", err)
	}
	r.CreatedAt = createdAt
	return r, nil
}

// List returns the tenant's reports, most recently updated first.
func (s *PgReportStore) List(ctx context.Context, tenantID string, filters ReportFilters) ([]model.ReportConfiguration, error) {
	query := `SELECT id, tenant_id, owner_id, payload, version, created_at, updated_at
	          FROM reports
	          WHERE tenant_id = $1`
	args := []any{tenantID}
	argIdx := 2

	if filters.OwnerID != "" {
		query += fmt.Sprintf(" AND owner_id = $%d", argIdx)
		args = append(args, filters.OwnerID)
		argIdx++
	}

	query += " ORDER BY updated_at DESC, id ASC"

	if filters.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, filters.Limit)
		argIdx++
	}
	if filters.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, filters.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query reports: %w", err)
	}
	defer rows.Close()

	result := []model.ReportConfiguration{}
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

// Delete removes a report.
func (s *PgReportStore) Delete(ctx context.Context, tenantID, reportID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM reports WHERE id = $1 AND tenant_id = $2`, reportID, tenantID)
	if err != nil {
		return fmt.Errorf("delete report: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.NewNotFoundError(fmt.Sprintf("report %q not found", reportID))
	}
	return nil
}

// Ping checks the database connection.
func (s *PgReportStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// scanReport decodes the payload and lets the columns win for identity,
// ownership and versioning.
func scanReport(row pgx.Row) (model.ReportConfiguration, error) {
	var (
		r       model.ReportConfiguration
		id      string
		tenant  string
		owner   string
		payload []byte
		version int
		created time.Time
		updated time.Time
	)
	if err := row.Scan(&id, &tenant, &owner, &payload, &version, &created, &updated); err != nil {
		return model.ReportConfiguration{}, err
	}
	if err := json.Unmarshal(payload, &r); err != nil {
		return model.ReportConfiguration{}, fmt.Errorf("unmarshal report %q: %w", id, err)
	}
	r.ID, r.TenantID, r.OwnerID = id, tenant, owner
	r.Version = version
	r.CreatedAt, r.UpdatedAt = created, updated
	return r, nil
}
