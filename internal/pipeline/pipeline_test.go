package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"curvrank/internal/artifact"
	"curvrank/internal/services"
)

func newTestScheduler(t *testing.T, batch int) *Scheduler {
	t.Helper()
	store, err := artifact.Open(t.TempDir(), artifact.CompressionLZ4)
	require.NoError(t, err)
	return NewScheduler(store, Options{Workers: 3, BatchSize: batch})
}

func itemNames(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("item-%02d", i)
	}
	return out
}

func TestResultTaggedValues(t *testing.T) {
	ok := Ok(42)
	v, valid := ok.Value()
	assert.True(t, valid)
	assert.Equal(t, 42, v)
	assert.Empty(t, ok.Reason())

	failed := Failed[int]("too short")
	assert.False(t, failed.OK())
	assert.Equal(t, "too short", failed.Reason())
	assert.Equal(t, "failed", Failed[string]("").Reason())
}

func cpuStage(name string, upstream ...string) *Stage {
	return &Stage{
		Name:        name,
		Upstream:    upstream,
		Fingerprint: "fp",
		Compute: func(context.Context, string, []string) (Outputs, error) {
			return Outputs{DefaultSubKey: 1}, nil
		},
	}
}

func TestGraphResolve(t *testing.T) {
	g := NewGraph()
	require.NoError(t, g.Add(cpuStage("report", "identify"), cpuStage("load"), cpuStage("identify", "curvature", "load"), cpuStage("curvature", "load")))
	stages, err := g.Resolve()
	require.NoError(t, err)
	var names []string
	for _, s := range stages {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"load", "curvature", "identify", "report"}, names)

	assert.Error(t, g.Add(cpuStage("load")), "duplicate stage")

	unknown := NewGraph()
	require.NoError(t, unknown.Add(cpuStage("a", "missing")))
	_, err = unknown.Resolve()
	assert.ErrorContains(t, err, "unknown stage missing")

	cyclic := NewGraph()
	require.NoError(t, cyclic.Add(cpuStage("a", "b"), cpuStage("b", "a"), cpuStage("c")))
	_, err = cyclic.Resolve()
	assert.ErrorContains(t, err, "cycle")

	invalid := NewGraph()
	assert.Error(t, invalid.Add(&Stage{Name: "gpu", Device: GPU, Fingerprint: "fp"}))
}

func TestWorkerPoolRunsEveryTask(t *testing.T) {
	pool := NewWorkerPool(4)
	var count atomic.Int64
	for range 100 {
		require.NoError(t, pool.Submit(context.Background(), func() { count.Add(1) }))
	}
	pool.Close()
	assert.Equal(t, int64(100), count.Load())
	assert.ErrorIs(t, pool.Submit(context.Background(), func() {}), ErrPoolClosed)
	pool.Close()
}

func TestWorkerPoolSubmitHonoursContext(t *testing.T) {
	pool := NewWorkerPool(1)
	release := make(chan struct{})
	require.NoError(t, pool.Submit(context.Background(), func() { <-release }))
	require.NoError(t, pool.Submit(context.Background(), func() {}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := pool.Submit(ctx, func() {})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	close(release)
	pool.Close()
}

func TestCompleteItemSkipsCompute(t *testing.T) {
	s := newTestScheduler(t, 1)
	var calls atomic.Int64
	st := &Stage{
		Name:        "curvature",
		Fingerprint: "fp",
		Compute: func(context.Context, string, []string) (Outputs, error) {
			calls.Add(1)
			return Outputs{DefaultSubKey: "fresh"}, nil
		},
	}
	key := artifact.Key{Stage: "curvature", Fingerprint: "fp", Item: "a", Sub: DefaultSubKey}
	require.NoError(t, s.Store().Write(key, "existing"))

	state := s.Check(st, "a")
	assert.True(t, state.Complete)
	assert.Empty(t, state.Missing)

	report, err := s.RunStage(context.Background(), nil, st, []string{"a"})
	require.NoError(t, err)
	assert.Zero(t, calls.Load())
	_, _, cached := report.Counts()
	assert.Equal(t, 1, cached)

	var got string
	require.NoError(t, s.Store().Read(key, &got))
	assert.Equal(t, "existing", got)
}

func TestFailureIsIsolatedPerItem(t *testing.T) {
	for _, mode := range []string{"error", "panic"} {
		t.Run(mode, func(t *testing.T) {
			s := newTestScheduler(t, 1)
			items := itemNames(10)
			var calls atomic.Int64
			st := &Stage{
				Name:        "descriptors",
				Fingerprint: "fp",
				Compute: func(_ context.Context, item string, _ []string) (Outputs, error) {
					calls.Add(1)
					if item == "item-04" {
						if mode == "panic" {
							panic("injected")
						}
						return nil, errors.New("injected failure")
					}
					return Outputs{DefaultSubKey: item}, nil
				},
			}
			g := NewGraph()
			require.NoError(t, g.Add(st))

			report, err := s.Run(context.Background(), g, items)
			require.NoError(t, err)
			sr, ok := report.Stage("descriptors")
			require.True(t, ok)
			done, failed, _ := sr.Counts()
			assert.Equal(t, 9, done)
			assert.Equal(t, 1, failed)
			assert.Equal(t, []string{"item-04"}, sr.FailedItems())
			assert.Contains(t, sr.Reasons["item-04"], "injected")

			reason, marked := s.Store().Failed("descriptors", "fp", "item-04")
			assert.True(t, marked)
			assert.NotEmpty(t, reason)
			for _, item := range items {
				if item == "item-04" {
					continue
				}
				assert.True(t, s.Check(st, item).Complete, item)
			}

			again, err := s.Run(context.Background(), g, items)
			require.NoError(t, err)
			sr, _ = again.Stage("descriptors")
			done, failed, cached := sr.Counts()
			assert.Equal(t, 0, done)
			assert.Equal(t, 0, failed)
			assert.Equal(t, 9, cached)
			assert.Equal(t, 1, sr.TotalFailed())
			assert.Equal(t, int64(10), calls.Load())
		})
	}
}

func TestOnlyMissingSubKeysAreComputed(t *testing.T) {
	s := newTestScheduler(t, 1)
	var mu sync.Mutex
	var seen [][]string
	st := &Stage{
		Name:        "block_curvature",
		Fingerprint: "fp",
		SubKeys:     []string{"0.050", "0.100"},
		Compute: func(_ context.Context, _ string, missing []string) (Outputs, error) {
			mu.Lock()
			seen = append(seen, slices.Clone(missing))
			mu.Unlock()
			out := Outputs{}
			for _, m := range missing {
				out[m] = m
			}
			return out, nil
		},
	}
	require.NoError(t, s.Store().Write(artifact.Key{Stage: "block_curvature", Fingerprint: "fp", Item: "a", Sub: "0.050"}, "kept"))

	state := s.Check(st, "a")
	assert.False(t, state.Complete)
	assert.Equal(t, []string{"0.100"}, state.Missing)

	_, err := s.RunStage(context.Background(), nil, st, []string{"a"})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"0.100"}}, seen)
	assert.True(t, s.Check(st, "a").Complete)

	var kept string
	require.NoError(t, s.Store().Read(artifact.Key{Stage: "block_curvature", Fingerprint: "fp", Item: "a", Sub: "0.050"}, &kept))
	assert.Equal(t, "kept", kept)
}

func TestMissingOutputFailsItem(t *testing.T) {
	s := newTestScheduler(t, 1)
	st := &Stage{
		Name:        "partial",
		Fingerprint: "fp",
		SubKeys:     []string{"x", "y"},
		Compute: func(context.Context, string, []string) (Outputs, error) {
			return Outputs{"x": 1}, nil
		},
	}
	report, err := s.RunStage(context.Background(), nil, st, []string{"a"})
	require.NoError(t, err)
	_, failed, _ := report.Counts()
	assert.Equal(t, 1, failed)
}

func TestUpstreamFailurePropagates(t *testing.T) {
	s := newTestScheduler(t, 1)
	edge := &Stage{
		Name:        "trailing_edge",
		Fingerprint: "fp1",
		Compute: func(_ context.Context, item string, _ []string) (Outputs, error) {
			if item == "bad" {
				return nil, services.Wrap(services.ErrExtraction, "trailing_edge", "slice", "no outline", nil)
			}
			return Outputs{DefaultSubKey: item}, nil
		},
	}
	var downstreamCalls atomic.Int64
	curv := &Stage{
		Name:        "curvature",
		Upstream:    []string{"trailing_edge"},
		Fingerprint: "fp2",
		Compute: func(_ context.Context, item string, _ []string) (Outputs, error) {
			downstreamCalls.Add(1)
			return Outputs{DefaultSubKey: item}, nil
		},
	}
	g := NewGraph()
	require.NoError(t, g.Add(edge, curv))

	report, err := s.Run(context.Background(), g, []string{"good", "bad"})
	require.NoError(t, err)
	sr, _ := report.Stage("curvature")
	done, failed, _ := sr.Counts()
	assert.Equal(t, 1, done)
	assert.Equal(t, 1, failed)
	assert.Equal(t, int64(1), downstreamCalls.Load())
	assert.Contains(t, sr.Reasons["bad"], "upstream trailing_edge failed")
}

func TestGPUStageRunsPaddedBatches(t *testing.T) {
	s := newTestScheduler(t, 2)
	var batches [][]string
	st := &Stage{
		Name:        "segmentation",
		Device:      GPU,
		Fingerprint: "fp",
		ComputeBatch: func(_ context.Context, items []string) ([]Result[Outputs], error) {
			batches = append(batches, slices.Clone(items))
			out := make([]Result[Outputs], len(items))
			for i, item := range items {
				switch item {
				case "":
					out[i] = Ok(Outputs{DefaultSubKey: "padding"})
				case "item-01":
					out[i] = Failed[Outputs]("mask missing")
				default:
					out[i] = Ok(Outputs{DefaultSubKey: item})
				}
			}
			return out, nil
		},
	}
	report, err := s.RunStage(context.Background(), nil, st, itemNames(5))
	require.NoError(t, err)

	require.Len(t, batches, 3)
	for _, b := range batches {
		assert.Len(t, b, 2)
	}
	assert.Equal(t, []string{"item-04", ""}, batches[2])
	done, failed, _ := report.Counts()
	assert.Equal(t, 4, done)
	assert.Equal(t, 1, failed)
	assert.Equal(t, "mask missing", report.Reasons["item-01"])

	entries, err := os.ReadDir(s.Store().Root() + "/segmentation/fp")
	require.NoError(t, err)
	assert.Len(t, entries, 5, "padding results must not be persisted")
}

func TestFatalErrorAbortsRun(t *testing.T) {
	s := newTestScheduler(t, 1)
	st := &Stage{
		Name:        "identify",
		Fingerprint: "fp",
		Compute: func(context.Context, string, []string) (Outputs, error) {
			return nil, services.Wrap(services.ErrConfigurationMismatch, "identify", "lookup", "scale sets differ", nil)
		},
	}
	g := NewGraph()
	require.NoError(t, g.Add(st))
	_, err := s.Run(context.Background(), g, itemNames(4))
	require.Error(t, err)
	assert.True(t, services.IsFatal(err))
	assert.ErrorIs(t, err, services.ErrConfigurationMismatch)
}

func TestCancelledRunStopsDispatch(t *testing.T) {
	s := newTestScheduler(t, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var calls atomic.Int64
	st := &Stage{
		Name:        "slow",
		Fingerprint: "fp",
		Compute: func(context.Context, string, []string) (Outputs, error) {
			calls.Add(1)
			return Outputs{DefaultSubKey: 1}, nil
		},
	}
	g := NewGraph()
	require.NoError(t, g.Add(st))
	_, err := s.Run(ctx, g, itemNames(20))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls.Load())
}

func TestCancelMidItemLeavesItemsPending(t *testing.T) {
	s := newTestScheduler(t, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	st := &Stage{
		Name:        "identify",
		Fingerprint: "fp",
		Compute: func(ctx context.Context, item string, _ []string) (Outputs, error) {
			if item == "item-00" {
				cancel()
			}
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	g := NewGraph()
	require.NoError(t, g.Add(st))
	items := itemNames(3)
	report, err := s.Run(ctx, g, items)
	assert.ErrorIs(t, err, context.Canceled)
	require.Len(t, report.Stages, 1)
	_, failed, _ := report.Stages[0].Counts()
	assert.Zero(t, failed)
	for _, item := range items {
		state := s.Check(st, item)
		assert.False(t, state.Failed, item)
		assert.False(t, state.Complete, item)
	}

	st.Compute = func(_ context.Context, item string, _ []string) (Outputs, error) {
		return Outputs{DefaultSubKey: item}, nil
	}
	report, err = s.Run(context.Background(), g, items)
	require.NoError(t, err)
	done, failed, _ := report.Stages[0].Counts()
	assert.Equal(t, 3, done)
	assert.Zero(t, failed)
}

func TestCancelMidBatchLeavesItemsPending(t *testing.T) {
	s := newTestScheduler(t, 2)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var batches atomic.Int64
	st := &Stage{
		Name:        "segmentation",
		Device:      GPU,
		Fingerprint: "fp",
		ComputeBatch: func(ctx context.Context, items []string) ([]Result[Outputs], error) {
			if batches.Add(1) == 2 {
				cancel()
				return nil, ctx.Err()
			}
			out := make([]Result[Outputs], len(items))
			for i, item := range items {
				out[i] = Ok(Outputs{DefaultSubKey: item})
			}
			return out, nil
		},
	}
	items := itemNames(5)
	report, err := s.RunStage(ctx, nil, st, items)
	assert.ErrorIs(t, err, context.Canceled)
	done, failed, _ := report.Counts()
	assert.Equal(t, 2, done)
	assert.Zero(t, failed)
	for _, item := range items[2:] {
		state := s.Check(st, item)
		assert.False(t, state.Failed, item)
		assert.False(t, state.Complete, item)
	}
}

func TestCancelAfterBatchSkipsFailureMarkers(t *testing.T) {
	s := newTestScheduler(t, 2)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	st := &Stage{
		Name:        "segmentation",
		Device:      GPU,
		Fingerprint: "fp",
		ComputeBatch: func(ctx context.Context, items []string) ([]Result[Outputs], error) {
			cancel()
			return []Result[Outputs]{
				Ok(Outputs{DefaultSubKey: items[0]}),
				Failed[Outputs](ctx.Err().Error()),
			}, nil
		},
	}
	items := itemNames(4)
	report, err := s.RunStage(ctx, nil, st, items)
	assert.ErrorIs(t, err, context.Canceled)
	done, failed, _ := report.Counts()
	assert.Equal(t, 1, done)
	assert.Zero(t, failed)
	assert.True(t, s.Check(st, "item-00").Complete)
	assert.False(t, s.Check(st, "item-01").Failed)
}

func TestStageItemsOverrideUniverse(t *testing.T) {
	s := newTestScheduler(t, 1)
	var got []string
	var mu sync.Mutex
	st := &Stage{
		Name:        "identify",
		Fingerprint: "fp",
		Items: func(context.Context) ([]string, error) {
			return []string{"0:enc-1", "0:enc-2"}, nil
		},
		Compute: func(_ context.Context, item string, _ []string) (Outputs, error) {
			mu.Lock()
			got = append(got, item)
			mu.Unlock()
			return Outputs{DefaultSubKey: item}, nil
		},
	}
	g := NewGraph()
	require.NoError(t, g.Add(st))
	_, err := s.Run(context.Background(), g, itemNames(3))
	require.NoError(t, err)
	slices.Sort(got)
	assert.Equal(t, []string{"0:enc-1", "0:enc-2"}, got)
}
