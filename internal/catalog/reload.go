package catalog

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// ReloadObserver receives catalog reload outcomes.
type ReloadObserver interface {
	RecordCatalogReload(status string)
	SetCatalogSourcesLoaded(count int)
}

// Reloader re-reads the catalog directories and swaps the registry contents
// when the combined checksum changes. A load or validation failure keeps the
// previous catalog.
type Reloader struct {
	registry    *Registry
	loader      *Loader
	validator   *Validator
	directories []string
	observer    ReloadObserver
	logger      *zap.Logger
}

// NewReloader creates a Reloader for the given registry and directories.
// observer and logger may be nil.
func NewReloader(registry *Registry, directories []string, observer ReloadObserver, logger *zap.Logger) *Reloader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reloader{
		registry:    registry,
		loader:      NewLoader(),
		validator:   NewValidator(),
		directories: directories,
		observer:    observer,
		logger:      logger,
	}
}

// Reload loads and validates the catalogs once. It reports whether the
// registry contents changed.
func (r *Reloader) Reload() (bool, error) {
	defs, err := r.loader.LoadAll(r.directories)
	if err != nil {
		r.record("error")
		return false, err
	}
	if verrs := r.validator.Validate(defs); len(verrs) > 0 {
		r.record("invalid")
		return false, fmt.Errorf("catalog validation failed: %d errors, first: %w", len(verrs), verrs[0])
	}

	next := NewRegistry(defs)
	if next.Checksum() == r.registry.Checksum() {
		r.record("unchanged")
		return false, nil
	}
	r.registry.Replace(defs)
	r.record("success")
	if r.observer != nil {
		r.observer.SetCatalogSourcesLoaded(r.registry.Len())
	}
	return true, nil
}

// Run calls Reload every interval until ctx is done.
func (r *Reloader) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			changed, err := r.Reload()
			switch {
			case err != nil:
				r.logger.Warn("catalog reload failed, keeping previous catalog", zap.Error(err))
			case changed:
				r.logger.Info("catalog reloaded",
					zap.Int("data_sources", r.registry.Len()),
					zap.String("checksum", r.registry.Checksum()),
				)
			}
		}
	}
}

func (r *Reloader) record(status string) {
	if r.observer != nil {
		r.observer.RecordCatalogReload(status)
	}
}
