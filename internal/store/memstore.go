package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/pitabwire/reportbuilder/model"
)

var _ ReportStore = (*MemoryReportStore)(nil)

// MemoryReportStore is an in-memory ReportStore for development and tests.
type MemoryReportStore struct {
	mu      sync.RWMutex
	reports map[string]model.ReportConfiguration // key: report ID
	now     func() time.Time
}

// NewMemoryReportStore creates a new in-memory report store.
func NewMemoryReportStore() *MemoryReportStore {
	return &MemoryReportStore{
		reports: make(map[string]model.ReportConfiguration),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Create persists a new report.
func (s *MemoryReportStore) Create(_ context.Context, r model.ReportConfiguration) (model.ReportConfiguration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.reports[r.ID]; exists {
		return model.ReportConfiguration{}, model.NewConflictError(
			fmt.Sprintf("report %q already exists", r.ID),
		)
	}

	now := s.now()
	r.Version = 1
	r.CreatedAt = now
	r.UpdatedAt = now
	s.reports[r.ID] = r
	return r, nil
}

// Get retrieves a report by ID, scoped to tenant.
func (s *MemoryReportStore) Get(_ context.Context, tenantID, reportID string) (model.ReportConfiguration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, exists := s.reports[reportID]
	if !exists || r.TenantID != tenantID {
		return model.ReportConfiguration{}, model.NewNotFoundError(
			fmt.Sprintf("report %q not found", reportID),
		)
	}
	return r, nil
}

// Update persists a changed report with optimistic locking.
func (s *MemoryReportStore) Update(_ context.Context, r model.ReportConfiguration) (model.ReportConfiguration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.reports[r.ID]
	if !exists || existing.TenantID != r.TenantID {
		return model.ReportConfiguration{}, model.NewNotFoundError(
			fmt.Sprintf("report %q not found", r.ID),
		)
	}

	// Optimistic lock check.
	if existing.Version != r.Version {
		return model.ReportConfiguration{}, model.NewConflictError(
			fmt.Sprintf("report %q version conflict (expected %d, got %d)", r.ID, r.Version, existing.Version),
		)
	}

	r.Version++
	r.CreatedAt = existing.CreatedAt
	r.UpdatedAt = s.now()
	s.reports[r.ID] = r
	return r, nil
}

// List returns the tenant's reports, most recently updated first.
func (s *MemoryReportStore) List(_ context.Context, tenantID string, filters ReportFilters) ([]model.ReportConfiguration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []model.ReportConfiguration{}
	for _, r := range s.reports {
		if r.TenantID != tenantID {
			continue
		}
		if filters.OwnerID != "" && r.OwnerID != filters.OwnerID {
			continue
		}
		result = append(result, r)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].UpdatedAt.Equal(result[j].UpdatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].UpdatedAt.After(result[j].UpdatedAt)
	})

	// Apply offset and limit.
	if filters.Offset > 0 {
		if filters.Offset >= len(result) {
			return []model.ReportConfiguration{}, nil
		}
		result = result[filters.Offset:]
	}
	if filters.Limit > 0 && filters.Limit < len(result) {
		result = result[:filters.Limit]
	}
	return result, nil
}

// Delete removes a report.
func (s *MemoryReportStore) Delete(_ context.Context, tenantID, reportID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, exists := s.reports[reportID]
	if !exists || r.TenantID != tenantID {
		return model.NewNotFoundError(fmt.Sprintf("report %q not found", reportID))
	}
	delete(s.reports, reportID)
	return nil
}

// Ping always succeeds.
func (s *MemoryReportStore) Ping(context.Context) error {
	return nil
}

// Len returns the number of stored reports.
func (s *MemoryReportStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.reports)
}
