package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"curvrank/internal/artifact"
	"curvrank/internal/config"
	"curvrank/internal/dataset"
	"curvrank/internal/ledger"
	"curvrank/internal/logging"
	"curvrank/internal/pipeline"
	"curvrank/internal/preflight"
	"curvrank/internal/services"
)

// Session holds the workspace for one command.
type Session struct {
	cfg    *config.Config
	logger *slog.Logger
	lock   *flock.Flock
	ledger *ledger.Store
	store  *artifact.Store
}

// Summary describes a finished command.
type Summary struct {
	RunID   string
	Report  *pipeline.Report
	Methods []MethodReport
}

// Open acquires the workspace lock and opens the ledger and artifact store.
// Runs left marked running by a killed process are closed as interrupted.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Session, error) {
	if cfg == nil {
		return nil, errors.New("session requires config")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	lock := flock.New(cfg.LockPath())
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, services.Wrap(services.ErrWorkspaceInUse, "session", "acquire lock",
			"another curvrank process is using "+cfg.Paths.WorkspaceDir, nil)
	}

	s := &Session{cfg: cfg, logger: logger, lock: lock}
	s.ledger, err = ledger.Open(cfg.LedgerPath())
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	compression, err := artifact.ParseCompression(cfg.Artifacts.Compression)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	s.store, err = artifact.Open(cfg.ArtifactDir(), compression)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	if n, err := s.ledger.MarkInterrupted(ctx); err != nil {
		logger.Warn("could not close stale runs", logging.Error(err))
	} else if n > 0 {
		logging.WarnWithContext(logger, "previous run did not finish", "run_interrupted",
			logging.Int64("runs", n),
			logging.String(logging.FieldImpact, "completed artifacts are reused; missing ones are recomputed"),
		)
	}
	return s, nil
}

// Close releases the ledger and the workspace lock.
func (s *Session) Close() error {
	var errs []error
	if s.ledger != nil {
		errs = append(errs, s.ledger.Close())
		s.ledger = nil
	}
	if s.lock != nil {
		errs = append(errs, s.lock.Unlock())
		s.lock = nil
	}
	return errors.Join(errs...)
}

// Store returns the session's artifact store.
func (s *Session) Store() *artifact.Store { return s.store }

// Ledger returns the session's run ledger.
func (s *Session) Ledger() *ledger.Store { return s.ledger }

// Workflow loads the catalog and builds the workflow for the session.
func (s *Session) Workflow() (*Workflow, error) {
	catalog, err := dataset.LoadCatalog(s.cfg.Paths.CatalogPath)
	if err != nil {
		return nil, err
	}
	return New(s.cfg, s.store, catalog, s.logger)
}

// Run executes preflight, every stage and the evaluation, recording the
// run in the ledger.
func (s *Session) Run(ctx context.Context) (*Summary, error) {
	return s.record(ctx, "run", func(ctx context.Context, runID string, summary *Summary) error {
		if err := preflight.Err(preflight.RunAll(s.cfg)); err != nil {
			return err
		}
		w, err := s.Workflow()
		if err != nil {
			return err
		}
		stats := w.Catalog().Stats()
		s.logger.Info("catalog loaded",
			logging.Int("images", stats.Images),
			logging.Int("individuals", stats.Individuals),
			logging.Int("encounters", stats.Encounters),
			logging.Int("single_encounter_individuals", stats.Singletons),
		)
		graph, err := w.Graph()
		if err != nil {
			return err
		}
		scheduler := pipeline.NewScheduler(s.store, pipeline.Options{
			Workers:   s.cfg.Workers.PoolSize,
			BatchSize: s.cfg.Workers.GPUBatchSize,
			Logger:    s.logger,
		})
		report, runErr := scheduler.Run(ctx, graph, w.Catalog().Items())
		summary.Report = report
		s.recordStages(ctx, runID, report)
		if runErr != nil {
			return runErr
		}
		summary.Methods, err = w.Evaluate(ctx)
		if err != nil {
			return err
		}
		s.recordAccuracy(ctx, runID, summary.Methods)
		return nil
	})
}

// Evaluate rewrites the reports from stored results without computing.
func (s *Session) Evaluate(ctx context.Context) (*Summary, error) {
	return s.record(ctx, "evaluate", func(ctx context.Context, runID string, summary *Summary) error {
		w, err := s.Workflow()
		if err != nil {
			return err
		}
		summary.Methods, err = w.Evaluate(ctx)
		if err != nil {
			return err
		}
		s.recordAccuracy(ctx, runID, summary.Methods)
		return nil
	})
}

func (s *Session) record(ctx context.Context, command string, fn func(context.Context, string, *Summary) error) (*Summary, error) {
	fingerprint, err := config.Fingerprint(s.cfg)
	if err != nil {
		return nil, err
	}
	runID := uuid.NewString()
	ctx = services.WithRunID(ctx, runID)
	logger := logging.WithContext(ctx, s.logger)
	if _, err := s.ledger.BeginRun(ctx, runID, command, fingerprint); err != nil {
		return nil, err
	}

	started := time.Now()
	logger.Info("run started", logging.Event("run_start"), logging.String("command", command), logging.String("config_fingerprint", fingerprint))

	summary := &Summary{RunID: runID}
	runErr := fn(ctx, runID, summary)

	status, message := ledger.StatusCompleted, ""
	switch {
	case runErr == nil:
	case errors.Is(runErr, context.Canceled):
		status, message = ledger.StatusInterrupted, "cancelled"
	default:
		status, message = ledger.StatusFailed, services.Reason(runErr)
	}
	// The run context may be cancelled; the ledger update must still land.
	if err := s.ledger.FinishRun(context.WithoutCancel(ctx), runID, status, message); err != nil {
		logger.Error("failed to record run result", logging.Error(err))
	}
	if runErr != nil {
		logging.ErrorWithContext(logger, "run failed", "run_failed",
			logging.String("status", string(status)),
			logging.Duration("duration", time.Since(started)),
			logging.Error(runErr),
		)
		return summary, runErr
	}
	logger.Info("run complete", logging.Event("run_complete"), logging.Duration("duration", time.Since(started)))
	return summary, nil
}

func (s *Session) recordStages(ctx context.Context, runID string, report *pipeline.Report) {
	if report == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	for _, st := range report.Stages {
		done, failed, cached := st.Counts()
		count := ledger.StageCount{
			Stage:        st.Stage,
			Device:       st.Device.String(),
			Items:        len(st.Items),
			Done:         done,
			Failed:       failed,
			Cached:       cached,
			CachedFailed: int(st.CachedFailed.GetCardinality()),
			Duration:     st.Duration,
		}
		if err := s.ledger.RecordStage(ctx, runID, count); err != nil {
			s.logger.Warn("failed to record stage counts", logging.Stage(st.Stage), logging.Error(err))
		}
	}
}

func (s *Session) recordAccuracy(ctx context.Context, runID string, methods []MethodReport) {
	for _, m := range methods {
		for run, ev := range m.Runs {
			if err := s.ledger.RecordAccuracy(ctx, runID, m.Method, run, ev.TopK); err != nil {
				s.logger.Warn("failed to record accuracy", logging.String("method", m.Method), logging.Error(err))
			}
		}
	}
}
