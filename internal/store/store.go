// Package store persists report configurations.
package store

import (
	"context"

	"github.com/pitabwire/reportbuilder/model"
)

// ReportStore persists report configurations per tenant.
type ReportStore interface {
	// Create persists a new report. The store sets Version to 1 and stamps
	// CreatedAt and UpdatedAt. Returns CONFLICT if the id is taken.
	Create(ctx context.Context, report model.ReportConfiguration) (model.ReportConfiguration, error)

	// Get retrieves a report by ID, scoped to a tenant. Returns NOT_FOUND if
	// the report doesn't exist or belongs to a different tenant.
	Get(ctx context.Context, tenantID, reportID string) (model.ReportConfiguration, error)

	// Update persists a changed report with optimistic locking. The version
	// must match the stored version. Returns CONFLICT if it has changed.
	Update(ctx context.Context, report model.ReportConfiguration) (model.ReportConfiguration, error)

	// List returns the tenant's reports, most recently updated first.
	List(ctx context.Context, tenantID string, filters ReportFilters) ([]model.ReportConfiguration, error)

	// Delete removes a report.
	Delete(ctx context.Context, tenantID, reportID string) error

	// Ping reports whether the store is reachable.
	Ping(ctx context.Context) error
}

// ReportFilters are optional filters for listing reports.
type ReportFilters struct {
	OwnerID string
	Limit   int
	Offset  int
}
