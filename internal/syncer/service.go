// Package syncer implements the background worker that keeps the engine's
// auxiliary data current: region boundaries, the supplementary presets and
// the custom presets stored in the repository.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rafaeljc/mimir/internal/catalog"
	"github.com/rafaeljc/mimir/internal/config"
	"github.com/rafaeljc/mimir/internal/observability"
	"github.com/rafaeljc/mimir/internal/regions"
	"github.com/rafaeljc/mimir/internal/resolver"
	"github.com/rafaeljc/mimir/internal/ruleengine"
	"github.com/rafaeljc/mimir/internal/store"
	"github.com/rafaeljc/mimir/internal/validation"
)

// Job names used in logs and metric labels.
const (
	JobAtlas              = "atlas"
	JobSupplementary      = "supplementary"
	JobSupplementaryIndex = "supplementary_index"
	JobCustomPresets      = "custom_presets"
)

// Event tells the syncer that something changed outside of its loop.
type Event int

const (
	// EventCustomPresets means the repository was modified.
	EventCustomPresets Event = iota + 1
	// EventLanguage means a new catalog snapshot was installed.
	EventLanguage
)

// Sources locates the data files the syncer loads.
type Sources struct {
	Loader *catalog.Loader

	// BoundariesFile and ShapesFile are opened through Loader. An empty
	// ShapesFile skips named shapes.
	BoundariesFile string
	ShapesFile     string

	// Supplementary enables the name-suggestion presets.
	Supplementary bool
}

// Service orchestrates the background loads.
type Service struct {
	logger  *slog.Logger
	config  config.SyncerConfig
	engine  *resolver.Engine
	sources Sources
	repo    store.CustomPresetRepository

	events chan Event
	ready  chan struct{}

	// Owned by the Run goroutine.
	supplementary []*ruleengine.Preset
	version       int64
	haveVersion   bool
}

// New creates a syncer. repo may be nil when custom presets are disabled.
func New(logger *slog.Logger, cfg config.SyncerConfig, engine *resolver.Engine, src Sources, repo store.CustomPresetRepository) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	validation.AssertNotNil(engine, "syncer engine")
	validation.AssertNotNil(src.Loader, "syncer catalog loader")

	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = time.Minute
	}

	return &Service{
		logger:  logger,
		config:  cfg,
		engine:  engine,
		sources: src,
		repo:    repo,
		events:  make(chan Event, 16),
		ready:   make(chan struct{}),
	}
}

// Notify schedules work for ev. It never blocks; if the queue is full the
// next poll picks the change up.
func (s *Service) Notify(ev Event) {
	select {
	case s.events <- ev:
	default:
		s.logger.Warn("syncer event queue full, deferring to next poll", slog.Int("event", int(ev)))
	}
}

// Ready is closed once the startup loads have finished, successfully or not.
func (s *Service) Ready() <-chan struct{} {
	return s.ready
}

// Run performs the startup loads and then reacts to events and the poll
// ticker. It blocks until ctx is cancelled. Job failures are logged and
// never stop the loop.
func (s *Service) Run(ctx context.Context) error {
	s.logger.Info("starting syncer service", slog.String("poll_interval", s.config.PollInterval.String()))

	s.Bootstrap(ctx)

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("syncer service stopping...")
			return nil
		case ev := <-s.events:
			switch ev {
			case EventCustomPresets:
				s.syncCustom(ctx, true)
			case EventLanguage:
				s.syncSupplementary(ctx)
			}
		case <-ticker.C:
			s.poll(ctx)
		}
	}
}

// Bootstrap loads the atlas concurrently with the preset overlays and closes
// Ready. Custom presets go first so the supplementary build already includes
// them. Run calls it; without a running syncer, call it once at startup.
func (s *Service) Bootstrap(ctx context.Context) {
	defer close(s.ready)

	var g errgroup.Group
	g.Go(func() error {
		if s.sources.BoundariesFile == "" {
			s.logger.Info("no boundaries configured, polygon location entries stay closed")
			return nil
		}
		_ = s.runJob(ctx, JobAtlas, s.loadAtlas)
		return nil
	})
	g.Go(func() error {
		s.syncCustom(ctx, true)
		if s.sources.Supplementary {
			if err := s.runJob(ctx, JobSupplementary, s.loadSupplementary); err == nil {
				s.syncSupplementary(ctx)
			}
		}
		return nil
	})
	_ = g.Wait()
}

// poll catches changes made by other instances and language changes that
// were not announced through Notify.
func (s *Service) poll(ctx context.Context) {
	s.syncCustom(ctx, false)
	if s.supplementary != nil && !s.engine.HasSupplementary() {
		s.syncSupplementary(ctx)
	}
}

func (s *Service) loadAtlas(ctx context.Context) error {
	f, err := s.sources.Loader.Open(s.sources.BoundariesFile)
	if err != nil {
		return permanent(fmt.Errorf("failed to open boundaries: %w", err))
	}
	defer f.Close()

	boundaries, err := regions.Load(f)
	if err != nil {
		return permanent(fmt.Errorf("failed to load boundaries: %w", err))
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	atlas := &regions.Atlas{Regions: boundaries}
	if s.sources.ShapesFile != "" {
		shapes, err := s.loadShapes()
		if err != nil {
			// Shapes only back a few location sets; boundaries are still useful.
			s.logger.Warn("named shapes unavailable", slog.Any("error", err))
		}
		atlas.Shapes = shapes
	}

	s.engine.SetAtlas(atlas)
	s.logger.Info("region atlas installed", slog.Int("regions", boundaries.Len()))
	return nil
}

func (s *Service) loadShapes() (*regions.Shapes, error) {
	f, err := s.sources.Loader.Open(s.sources.ShapesFile)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return regions.LoadShapes(f)
}

func (s *Service) loadSupplementary(ctx context.Context) error {
	presets, err := s.sources.Loader.LoadSupplementary(ctx)
	if err != nil {
		if errors.Is(err, catalog.ErrCorruptCatalog) || errors.Is(err, fs.ErrNotExist) {
			return permanent(err)
		}
		return err
	}
	s.supplementary = presets
	return nil
}

func (s *Service) syncSupplementary(ctx context.Context) {
	if s.supplementary == nil {
		return
	}
	_ = s.runJob(ctx, JobSupplementaryIndex, func(context.Context) error {
		return s.engine.RebuildSupplementary(s.supplementary)
	})
}

// syncCustom reinstalls the custom presets. Unless force is set it does so
// only when the repository version moved.
func (s *Service) syncCustom(ctx context.Context, force bool) {
	if s.repo == nil {
		return
	}
	_ = s.runJob(ctx, JobCustomPresets, func(ctx context.Context) error {
		// Read the version first so a concurrent write is seen again next poll.
		version, err := s.repo.Version(ctx)
		if err != nil {
			return err
		}
		if !force && s.haveVersion && version == s.version {
			return nil
		}

		if err := ReloadCustomPresets(ctx, s.logger, s.engine, s.repo); err != nil {
			return err
		}
		s.version, s.haveVersion = version, true
		return nil
	})
}

// ReloadCustomPresets compiles the stored custom presets and installs them.
// Invalid entries and entries whose id the catalog already uses are skipped
// with a warning.
func ReloadCustomPresets(ctx context.Context, log *slog.Logger, engine *resolver.Engine, repo store.CustomPresetRepository) error {
	custom, err := repo.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list custom presets: %w", err)
	}
	presets, errs := store.CompileAll(custom)
	for _, err := range errs {
		log.Warn("skipping invalid custom preset", slog.Any("error", err))
	}

	dropped, err := engine.InstallCustomPresets(presets)
	if err != nil {
		return fmt.Errorf("failed to install custom presets: %w", err)
	}
	for _, id := range dropped {
		log.Warn("skipping custom preset that shadows a catalog preset", slog.String("id", id))
	}
	return nil
}

// runJob executes fn with a timeout, retrying transient failures with
// exponential backoff, and records its duration and outcome.
func (s *Service) runJob(ctx context.Context, job string, fn func(context.Context) error) error {
	start := time.Now()

	var err error
retry:
	for attempt := 0; ; attempt++ {
		jobCtx, cancel := context.WithTimeout(ctx, s.config.JobTimeout)
		err = fn(jobCtx)
		cancel()

		var perm *permanentError
		if err == nil || errors.As(err, &perm) || attempt >= s.config.MaxRetries {
			break
		}

		delay := s.config.RetryDelay(attempt)
		s.logger.Warn("syncer job attempt failed",
			slog.String("job", job),
			slog.Int("attempt", attempt+1),
			slog.Duration("backoff", delay),
			slog.Any("error", err),
		)
		select {
		case <-ctx.Done():
			err = ctx.Err()
			break retry
		case <-time.After(delay):
		}
	}

	observability.SyncerJobDuration.WithLabelValues(job).Observe(time.Since(start).Seconds())
	if err != nil {
		observability.SyncerJobsTotal.WithLabelValues(job, "fail").Inc()
		s.logger.Error("syncer job failed", slog.String("job", job), slog.Any("error", err))
		return err
	}
	observability.SyncerJobsTotal.WithLabelValues(job, "success").Inc()
	return nil
}

// permanentError marks failures that retrying cannot fix, such as a corrupt
// data file.
type permanentError struct{ err error }

func permanent(err error) error { return &permanentError{err: err} }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }
