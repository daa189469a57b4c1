package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"curvrank/internal/artifact"
	"curvrank/internal/logging"
	"curvrank/internal/services"
)

// Options configures a Scheduler.
type Options struct {
	// Workers bounds concurrent CPU items; 0 uses GOMAXPROCS.
	Workers int
	// BatchSize is the GPU batch size.
	BatchSize int
	Logger    *slog.Logger
}

// Scheduler runs stage graphs against an artifact store.
type Scheduler struct {
	store     *artifact.Store
	workers   int
	batchSize int
	logger    *slog.Logger
}

// NewScheduler returns a scheduler writing to store.
func NewScheduler(store *artifact.Store, opts Options) *Scheduler {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	batch := opts.BatchSize
	if batch < 1 {
		batch = 1
	}
	return &Scheduler{store: store, workers: opts.Workers, batchSize: batch, logger: logger}
}

// Store returns the backing artifact store.
func (s *Scheduler) Store() *artifact.Store { return s.store }

// Run executes every stage of the graph in dependency order over universe.
// Per-item failures are recorded and never returned; only fatal errors and
// cancellation stop the run. The report covers every stage that started.
func (s *Scheduler) Run(ctx context.Context, graph *Graph, universe []string) (*Report, error) {
	stages, err := graph.Resolve()
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "resolve graph", "invalid stage graph", err)
	}
	report := &Report{}
	for _, st := range stages {
		items, err := s.itemsFor(ctx, st, universe)
		if err != nil {
			return report, err
		}
		stageReport, err := s.RunStage(ctx, graph, st, items)
		if stageReport != nil {
			report.Stages = append(report.Stages, stageReport)
		}
		if err != nil {
			return report, err
		}
	}
	return report, nil
}

func (s *Scheduler) itemsFor(ctx context.Context, st *Stage, universe []string) ([]string, error) {
	if st.Items == nil {
		return universe, nil
	}
	items, err := st.Items(ctx)
	if err != nil {
		return nil, fmt.Errorf("stage %s: list items: %w", st.Name, err)
	}
	return items, nil
}

type pendingItem struct {
	index   int
	item    string
	missing []string
}

// RunStage executes one stage over items.
func (s *Scheduler) RunStage(ctx context.Context, graph *Graph, st *Stage, items []string) (*StageReport, error) {
	stageCtx := services.WithStage(ctx, st.Name)
	logger := logging.WithContext(stageCtx, s.logger)
	report := newStageReport(st, items)
	started := time.Now()

	logger.Info("stage started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.String("device", st.Device.String()),
		logging.Int("items", len(items)),
		logging.String("fingerprint", st.Fingerprint),
	)

	var upstream []*Stage
	if graph != nil {
		for _, name := range st.Upstream {
			if up, ok := graph.Stage(name); ok && up.sharesUniverse() && st.sharesUniverse() {
				upstream = append(upstream, up)
			}
		}
	}

	var pending []pendingItem
	for i, item := range items {
		if err := stageCtx.Err(); err != nil {
			return report, err
		}
		state := s.Check(st, item)
		switch {
		case state.Failed:
			report.CachedFailed.Add(uint32(i))
			continue
		case state.Complete:
			report.Cached.Add(uint32(i))
			continue
		}
		if reason, failed := s.upstreamFailure(upstream, item); failed {
			s.recordFailure(logger, report, st, i, item, reason)
			continue
		}
		pending = append(pending, pendingItem{index: i, item: item, missing: state.Missing})
	}

	var err error
	if len(pending) > 0 {
		if st.Device == GPU {
			err = s.runBatches(stageCtx, logger, st, pending, report)
		} else {
			err = s.runPool(stageCtx, logger, st, pending, report)
		}
	}
	report.Duration = time.Since(started)

	done, failed, cached := report.Counts()
	if err != nil {
		logger.Warn("stage interrupted",
			logging.String(logging.FieldEventType, "stage_interrupted"),
			logging.Int("done", done),
			logging.Int("failed", failed),
			logging.Int("pending", report.Pending()),
			logging.Error(err),
		)
		return report, err
	}
	logger.Info("stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.Int("done", done),
		logging.Int("failed", failed),
		logging.Int("cached", cached),
		logging.Int("cached_failed", int(report.CachedFailed.GetCardinality())),
		logging.Duration("duration", report.Duration),
	)
	return report, nil
}

// ItemState is the completeness of one item for one stage.
type ItemState struct {
	Complete bool
	Failed   bool
	Reason   string
	Missing  []string
}

// Check reports whether an item is complete without computing anything.
func (s *Scheduler) Check(st *Stage, item string) ItemState {
	if reason, ok := s.store.Failed(st.Name, st.Fingerprint, item); ok {
		return ItemState{Complete: true, Failed: true, Reason: reason}
	}
	present, err := s.store.SubKeys(st.Name, st.Fingerprint, item)
	if err != nil {
		return ItemState{Missing: st.ExpectedSubKeys()}
	}
	var missing []string
	for _, sub := range st.ExpectedSubKeys() {
		if !slices.Contains(present, sub) {
			missing = append(missing, sub)
		}
	}
	return ItemState{Complete: len(missing) == 0, Missing: missing}
}

func (s *Scheduler) upstreamFailure(upstream []*Stage, item string) (string, bool) {
	for _, up := range upstream {
		if reason, ok := s.store.Failed(up.Name, up.Fingerprint, item); ok {
			return fmt.Sprintf("upstream %s failed: %s", up.Name, reason), true
		}
	}
	return "", false
}

func (s *Scheduler) runPool(ctx context.Context, logger *slog.Logger, st *Stage, pending []pendingItem, report *StageReport) error {
	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	pool := NewWorkerPool(s.workers)
	var mu sync.Mutex
	for _, p := range pending {
		task := func() {
			if runCtx.Err() != nil {
				return
			}
			itemCtx := services.WithItem(runCtx, p.item)
			outputs, err := safeCompute(itemCtx, st, p)
			if err == nil {
				err = s.persist(st, p, outputs)
			}
			if err != nil && (services.IsFatal(err) || interrupted(runCtx, err)) {
				cancel(err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				s.recordFailure(logger, report, st, p.index, p.item, services.Reason(err))
				return
			}
			report.Done.Add(uint32(p.index))
		}
		if err := pool.Submit(runCtx, task); err != nil {
			break
		}
	}
	pool.Close()

	if err := ctx.Err(); err != nil {
		return err
	}
	return context.Cause(runCtx)
}

// interrupted reports whether err comes from cancellation rather than from
// the item itself. Interrupted items get no failure marker so the next run
// computes them again.
func interrupted(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func safeCompute(ctx context.Context, st *Stage, p pendingItem) (outputs Outputs, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = services.Wrap(services.ErrWorker, st.Name, "compute", fmt.Sprintf("panic: %v", r), nil)
		}
	}()
	return st.Compute(ctx, p.item, p.missing)
}

func (s *Scheduler) runBatches(ctx context.Context, logger *slog.Logger, st *Stage, pending []pendingItem, report *StageReport) error {
	for start := 0; start < len(pending); start += s.batchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(start+s.batchSize, len(pending))
		chunk := pending[start:end]
		batch := make([]string, s.batchSize)
		for i, p := range chunk {
			batch[i] = p.item
		}

		results, err := safeBatch(ctx, st, batch)
		if err == nil && len(results) != len(batch) {
			err = services.Wrap(services.ErrWorker, st.Name, "compute batch",
				fmt.Sprintf("%d results for batch of %d", len(results), len(batch)), nil)
		}
		if err != nil {
			if services.IsFatal(err) {
				return err
			}
			if interrupted(ctx, err) {
				return firstErr(ctx.Err(), err)
			}
			for _, p := range chunk {
				s.recordFailure(logger, report, st, p.index, p.item, services.Reason(err))
			}
			continue
		}
		halted := ctx.Err()
		for i, p := range chunk {
			outputs, ok := results[i].Value()
			if !ok {
				if halted != nil {
					continue
				}
				s.recordFailure(logger, report, st, p.index, p.item, results[i].Reason())
				continue
			}
			if err := s.persist(st, p, outputs); err != nil {
				s.recordFailure(logger, report, st, p.index, p.item, services.Reason(err))
				continue
			}
			report.Done.Add(uint32(p.index))
		}
		logger.Debug("batch complete",
			logging.Int("batch_start", start),
			logging.Int("batch_items", len(chunk)),
			logging.Int("padding", len(batch)-len(chunk)),
		)
		if halted != nil {
			return halted
		}
	}
	return nil
}

func firstErr(primary, fallback error) error {
	if primary != nil {
		return primary
	}
	return fallback
}

func safeBatch(ctx context.Context, st *Stage, batch []string) (results []Result[Outputs], err error) {
	defer func() {
		if r := recover(); r != nil {
			err = services.Wrap(services.ErrWorker, st.Name, "compute batch", fmt.Sprintf("panic: %v", r), nil)
		}
	}()
	return st.ComputeBatch(ctx, batch)
}

// persist writes every missing sub-key. A compute function that omits one
// of them fails the item.
func (s *Scheduler) persist(st *Stage, p pendingItem, outputs Outputs) error {
	for _, sub := range p.missing {
		if _, ok := outputs[sub]; !ok {
			return services.Wrap(services.ErrWorker, st.Name, "persist", fmt.Sprintf("output %s not produced", sub), nil)
		}
	}
	for _, sub := range p.missing {
		key := artifact.Key{Stage: st.Name, Fingerprint: st.Fingerprint, Item: p.item, Sub: sub}
		if err := s.store.Write(key, outputs[sub]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scheduler) recordFailure(logger *slog.Logger, report *StageReport, st *Stage, index int, item, reason string) {
	report.Failed.Add(uint32(index))
	report.Reasons[item] = reason
	if err := s.store.MarkFailed(st.Name, st.Fingerprint, item, reason); err != nil {
		logger.Error("failed to persist failure marker", logging.Item(item), logging.Error(err))
	}
	logging.WarnWithContext(logger, "item failed", "item_failed",
		logging.Item(item),
		logging.String("reason", reason),
		logging.String(logging.FieldImpact, "item skipped by downstream stages"),
	)
}
