package report

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pitabwire/reportbuilder/internal/layout"
	"github.com/pitabwire/reportbuilder/internal/observability"
	"github.com/pitabwire/reportbuilder/internal/preview"
	"github.com/pitabwire/reportbuilder/internal/store"
	"github.com/pitabwire/reportbuilder/model"
)

// Recorder receives service telemetry. *observability.Metrics satisfies it.
type Recorder interface {
	RecordCommand(command, status string, duration time.Duration)
	RecordBlockedAction(action string)
	RecordCascade(visualizations, filters, relationships int)
	SetActiveSessions(count int)
	RecordSave(status string)
	RecordPreview(status string)
	RecordPreviewCacheHit()
	RecordPreviewCacheMiss()
}

type nopRecorder struct{}

func (nopRecorder) RecordCommand(string, string, time.Duration) {}
func (nopRecorder) RecordBlockedAction(string)                  {}
func (nopRecorder) RecordCascade(int, int, int)                 {}
func (nopRecorder) SetActiveSessions(int)                       {}
func (nopRecorder) RecordSave(string)                           {}
func (nopRecorder) RecordPreview(string)                        {}
func (nopRecorder) RecordPreviewCacheHit()                      {}
func (nopRecorder) RecordPreviewCacheMiss()                     {}

// ServiceOption configures optional Service dependencies.
type ServiceOption func(*Service)

// WithPreviewCache sets the cache for built preview payloads.
func WithPreviewCache(c preview.Cache, ttl time.Duration) ServiceOption {
	return func(s *Service) {
		s.cache = c
		s.cacheTTL = ttl
	}
}

// WithRecorder sets the telemetry recorder.
func WithRecorder(r Recorder) ServiceOption {
	return func(s *Service) { s.recorder = r }
}

// WithLogger sets the fallback logger.
func WithLogger(l *zap.Logger) ServiceOption {
	return func(s *Service) { s.logger = l }
}

// WithLayoutTemplates sets the templates available to every session.
func WithLayoutTemplates(ts *layout.TemplateSet) ServiceOption {
	return func(s *Service) { s.templates = ts }
}

// WithCanvasDefaults sets the canvas of newly created reports.
func WithCanvasDefaults(l model.ReportLayout) ServiceOption {
	return func(s *Service) { s.canvas = l }
}

// WithIdleTimeout sets how long a session may go unused before Sweep
// closes it.
func WithIdleTimeout(d time.Duration) ServiceOption {
	return func(s *Service) { s.idleTimeout = d }
}

// WithMaxPreviewRows caps the sample rows a preview accepts. Zero means no
// cap.
func WithMaxPreviewRows(n int) ServiceOption {
	return func(s *Service) { s.maxRows = n }
}

// WithServiceClock sets the clock for sessions, previews and sweeping.
func WithServiceClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// WithServiceIDGenerator sets the generator for session, report and element
// ids.
func WithServiceIDGenerator(gen func() string) ServiceOption {
	return func(s *Service) { s.newID = gen }
}

// session is one subject's open editing session on a report.
type session struct {
	mu       sync.Mutex
	id       string
	tenantID string
	ownerID  string
	agg      *Aggregate
	lastUsed time.Time
}

// Service manages editing sessions over report aggregates and persists
// them through a ReportStore.
type Service struct {
	mu       sync.Mutex
	sessions map[string]*session

	store     store.ReportStore
	catalog   Catalog
	templates *layout.TemplateSet
	cache     preview.Cache
	cacheTTL  time.Duration
	recorder  Recorder
	logger    *zap.Logger

	canvas      model.ReportLayout
	idleTimeout time.Duration
	maxRows     int
	now         func() time.Time
	newID       func() string
}

// NewService creates a Service with its required dependencies.
func NewService(st store.ReportStore, cat Catalog, opts ...ServiceOption) *Service {
	s := &Service{
		sessions:    make(map[string]*session),
		store:       st,
		catalog:     cat,
		recorder:    nopRecorder{},
		logger:      zap.NewNop(),
		idleTimeout: 30 * time.Minute,
		now:         time.Now,
		newID:       uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.templates == nil {
		s.templates = layout.NewTemplateSet()
	}
	return s
}

// Open starts an editing session. An empty reportID starts a blank report
// owned by the caller; otherwise the tenant's saved report is loaded.
func (s *Service) Open(ctx context.Context, rctx *model.RequestContext, reportID string) (model.ReportSnapshot, error) {
	var r model.ReportConfiguration
	if reportID != "" {
		loaded, err := s.store.Get(ctx, rctx.TenantID, reportID)
		if err != nil {
			return model.ReportSnapshot{}, err
		}
		r = loaded
	} else {
		r = model.ReportConfiguration{
			TenantID: rctx.TenantID,
			OwnerID:  rctx.SubjectID,
			Layout:   s.canvas,
		}
		r.Layout.Components = nil
	}

	sess := &session{
		id:       s.newID(),
		tenantID: rctx.TenantID,
		ownerID:  rctx.SubjectID,
		agg: New(r, s.catalog,
			WithClock(s.now),
			WithIDGenerator(s.newID),
			WithTemplates(s.templates),
		),
		lastUsed: s.now(),
	}

	s.mu.Lock()
	s.sessions[sess.id] = sess
	count := len(s.sessions)
	s.mu.Unlock()
	s.recorder.SetActiveSessions(count)

	observability.RequestLogger(ctx, s.logger).Info("report session opened",
		zap.String("session_id", sess.id),
		zap.String("report_id", r.ID),
	)
	return sess.agg.Snapshot(sess.id), nil
}

// Snapshot returns the current state of a session.
func (s *Service) Snapshot(_ context.Context, rctx *model.RequestContext, sessionID string) (model.ReportSnapshot, error) {
	var snap model.ReportSnapshot
	err := s.withSession(rctx, sessionID, func(sess *session) error {
		snap = sess.agg.Snapshot(sess.id)
		return nil
	})
	return snap, err
}

// Execute applies one editing command to a session and returns the
// resulting snapshot.
func (s *Service) Execute(ctx context.Context, rctx *model.RequestContext, sessionID string, cmd Command) (model.ReportSnapshot, Effect, error) {
	var (
		snap model.ReportSnapshot
		eff  Effect
	)
	err := s.withSession(rctx, sessionID, func(sess *session) error {
		start := time.Now()
		var err error
		eff, err = sess.agg.Execute(cmd)
		s.recorder.RecordCommand(string(cmd.Type), statusOf(err), time.Since(start))

		logger := observability.RequestLogger(ctx, s.logger).With(
			zap.String("session_id", sess.id),
			zap.String("command", string(cmd.Type)),
		)
		if err != nil {
			logger.Debug("command rejected", zap.Error(err))
			return err
		}
		if eff.Cascade != nil && eff.Cascade.Total() > 0 {
			c := eff.Cascade
			s.recorder.RecordCascade(len(c.Visualizations), c.Filters, c.Relationships)
			logger.Info("data source removed with dependents",
				zap.String("data_source_id", c.DataSourceID),
				zap.Strings("visualizations", c.Visualizations),
				zap.Int("filters", c.Filters),
				zap.Int("relationships", c.Relationships),
			)
		} else {
			logger.Debug("command applied")
		}
		snap = sess.agg.Snapshot(sess.id)
		return nil
	})
	return snap, eff, err
}

// Save persists the session's report. A report without an id is created;
// otherwise it is updated under optimistic locking.
func (s *Service) Save(ctx context.Context, rctx *model.RequestContext, sessionID string) (model.ReportSnapshot, error) {
	ctx, span := observability.StartSpan(ctx, "report.save",
		observability.AttrSessionID.String(sessionID),
		observability.AttrTenantID.String(rctx.TenantID),
	)

	var snap model.ReportSnapshot
	err := s.withSession(rctx, sessionID, func(sess *session) error {
		if err := sess.agg.Gate(ActionSave); err != nil {
			s.recorder.RecordBlockedAction(ActionSave)
			return err
		}
		if verrs := sess.agg.Validate(); len(verrs) > 0 {
			s.recorder.RecordSave("invalid")
			return model.NewValidationError(verrs)
		}

		r := sess.agg.Report()
		var (
			saved model.ReportConfiguration
			err   error
		)
		if r.ID == "" {
			r.ID = s.newID()
			saved, err = s.store.Create(ctx, r)
		} else {
			saved, err = s.store.Update(ctx, r)
		}
		if err != nil {
			s.recorder.RecordSave(statusOf(err))
			return err
		}

		sess.agg.MarkSaved(saved)
		s.recorder.RecordSave("success")
		span.SetAttributes(observability.AttrReportID.String(saved.ID))
		observability.RequestLogger(ctx, s.logger).Info("report saved",
			zap.String("session_id", sess.id),
			zap.String("report_id", saved.ID),
			zap.Int("version", saved.Version),
		)
		snap = sess.agg.Snapshot(sess.id)
		return nil
	})
	observability.EndSpanWithError(span, err)
	return snap, err
}

// Preview builds the rendering payload for the session's report, filtering
// the sample rows through its filter groups. Built payloads are cached by
// content.
func (s *Service) Preview(ctx context.Context, rctx *model.RequestContext, sessionID string, rows []map[string]any) (model.PreviewPayload, error) {
	ctx, span := observability.StartSpan(ctx, "report.preview",
		observability.AttrSessionID.String(sessionID),
		observability.AttrRowCount.Int(len(rows)),
	)

	var payload model.PreviewPayload
	err := s.withSession(rctx, sessionID, func(sess *session) error {
		if err := sess.agg.Gate(ActionPreview); err != nil {
			s.recorder.RecordBlockedAction(ActionPreview)
			return err
		}
		if s.maxRows > 0 && len(rows) > s.maxRows {
			return model.NewBadRequestError(fmt.Sprintf("preview accepts at most %d rows", s.maxRows))
		}

		logger := observability.RequestLogger(ctx, s.logger).With(zap.String("session_id", sess.id))
		r := sess.agg.Report()
		now := s.now()
		key, err := preview.Key(rctx.TenantID, r, rows, now)
		if err != nil {
			return err
		}

		if s.cache != nil {
			cached, found, err := s.cache.Get(ctx, key)
			switch {
			case err != nil:
				logger.Warn("preview cache read failed", zap.Error(err))
			case found:
				s.recorder.RecordPreviewCacheHit()
				s.recorder.RecordPreview("success")
				span.SetAttributes(observability.AttrCacheHit.Bool(true))
				payload = *cached
				return nil
			}
			s.recorder.RecordPreviewCacheMiss()
		}

		built, err := preview.Build(r, rows, now)
		if err != nil {
			s.recorder.RecordPreview("error")
			return err
		}
		built.CacheKey = key

		if s.cache != nil {
			if err := s.cache.Set(ctx, key, built, s.cacheTTL); err != nil {
				logger.Warn("preview cache write failed", zap.Error(err))
			}
		}
		s.recorder.RecordPreview("success")
		span.SetAttributes(observability.AttrCacheHit.Bool(false))
		logger.Debug("preview built",
			zap.String("cache_key", key),
			zap.Int("matched_rows", built.MatchedRows),
		)
		payload = built
		return nil
	})
	observability.EndSpanWithError(span, err)
	return payload, err
}

// Close cancels any in-flight interaction and ends the session. Unsaved
// changes are discarded.
func (s *Service) Close(ctx context.Context, rctx *model.RequestContext, sessionID string) error {
	err := s.withSession(rctx, sessionID, func(sess *session) error {
		sess.agg.CancelInteraction()
		return nil
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.sessions, sessionID)
	count := len(s.sessions)
	s.mu.Unlock()
	s.recorder.SetActiveSessions(count)

	observability.RequestLogger(ctx, s.logger).Info("report session closed",
		zap.String("session_id", sessionID),
	)
	return nil
}

// List returns the tenant's saved reports.
func (s *Service) List(ctx context.Context, rctx *model.RequestContext, filters store.ReportFilters) ([]model.ReportConfiguration, error) {
	return s.store.List(ctx, rctx.TenantID, filters)
}

// Delete removes a saved report. Only its owner may delete it.
func (s *Service) Delete(ctx context.Context, rctx *model.RequestContext, reportID string) error {
	r, err := s.store.Get(ctx, rctx.TenantID, reportID)
	if err != nil {
		return err
	}
	if r.OwnerID != "" && r.OwnerID != rctx.SubjectID {
		return model.NewForbiddenError(fmt.Sprintf("report %q belongs to another subject", reportID))
	}
	return s.store.Delete(ctx, rctx.TenantID, reportID)
}

// Sweep closes sessions unused for longer than the idle timeout and
// returns how many it closed.
func (s *Service) Sweep(now time.Time) int {
	s.mu.Lock()
	var expired []string
	for id, sess := range s.sessions {
		sess.mu.Lock()
		idle := now.Sub(sess.lastUsed)
		sess.mu.Unlock()
		if idle > s.idleTimeout {
			expired = append(expired, id)
		}
	}
	for _, id := range expired {
		delete(s.sessions, id)
	}
	count := len(s.sessions)
	s.mu.Unlock()

	if len(expired) > 0 {
		s.recorder.SetActiveSessions(count)
		s.logger.Info("idle report sessions closed", zap.Int("count", len(expired)))
	}
	return len(expired)
}

// Sessions returns the number of open sessions.
func (s *Service) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// withSession runs fn with the caller's session locked. Sessions of other
// subjects or tenants are reported as not found.
func (s *Service) withSession(rctx *model.RequestContext, sessionID string, fn func(*session) error) error {
	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	s.mu.Unlock()
	if !ok || sess.tenantID != rctx.TenantID || sess.ownerID != rctx.SubjectID {
		return model.NewSessionNotFoundError(sessionID)
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.lastUsed = s.now()
	return fn(sess)
}

// statusOf labels an outcome for metrics by its error code.
func statusOf(err error) string {
	if err == nil {
		return "success"
	}
	var env *model.ErrorEnvelope
	if errors.As(err, &env) {
		switch env.Code {
		case model.ErrConflict:
			return "conflict"
		case model.ErrInternalError:
			return "error"
		}
		return "failure"
	}
	return "error"
}
