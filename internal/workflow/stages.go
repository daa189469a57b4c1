package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"path/filepath"
	"slices"
	"sync"

	"gonum.org/v1/gonum/mat"

	"curvrank/internal/ann"
	"curvrank/internal/artifact"
	"curvrank/internal/config"
	"curvrank/internal/contour"
	"curvrank/internal/curvature"
	"curvrank/internal/dataset"
	"curvrank/internal/descriptor"
	"curvrank/internal/logging"
	"curvrank/internal/pipeline"
	"curvrank/internal/ranking"
	"curvrank/internal/segment"
	"curvrank/internal/services"
	"curvrank/internal/similarity"
)

// Stage names.
const (
	StageSegmentation       = "segmentation"
	StageTrailingEdge       = "trailing_edge"
	StageBlockCurvature     = "block_curvature"
	StageDTWSignatures      = "dtw_signatures"
	StageCurvDescriptors    = "curv_descriptors"
	StageGaussDescriptors   = "gauss_descriptors"
	StageDTWIdentify        = "dtw_identify"
	StageDescriptorIdentify = "descriptor_identify"
)

// Identification methods.
const (
	MethodDTW         = "dtw"
	MethodDescriptors = "descriptors"
)

// Workflow builds and backs the stage graph for one configuration.
type Workflow struct {
	cfg     *config.Config
	store   *artifact.Store
	catalog *dataset.Catalog
	masks   *segment.Loader
	logger  *slog.Logger
	fps     map[string]string
	scales  map[string]float64
	pairs   []descriptor.GaussPair
	ident   *Identifier

	splitsOnce func() ([]dataset.Split, error)
}

// lineage ties a stage fingerprint to the fingerprints of its inputs so an
// upstream change invalidates everything downstream.
type lineage struct {
	Upstream []string `toml:"upstream"`
}

type maskSection struct {
	MaskDir string `toml:"mask_dir"`
}

type outlineSection struct {
	OutlineDir string `toml:"outline_dir"`
}

type curvatureSection struct {
	TransposeDims bool `toml:"transpose_dims"`
}

type resampleSection struct {
	Length int `toml:"length"`
}

type keypointSection struct {
	Length       int  `toml:"length"`
	NumKeypoints int  `toml:"num_keypoints"`
	FeatDim      int  `toml:"feat_dim"`
	Uniform      bool `toml:"uniform"`
}

type dtwSection struct {
	Scales       []float64 `toml:"scales"`
	Window       int       `toml:"window"`
	Cost         string    `toml:"cost"`
	Coefficients []float64 `toml:"coefficients"`
}

type descriptorIdentifySection struct {
	Type        string   `toml:"type"`
	Keys        []string `toml:"keys"`
	K           int      `toml:"k"`
	Index       string   `toml:"index"`
	Aggregation string   `toml:"aggregation"`
	HNSWM       int      `toml:"hnsw_m"`
	HNSWEF      int      `toml:"hnsw_ef"`
	Seed        int64    `toml:"seed"`
}

// New prepares a workflow over catalog. Fingerprints for every stage are
// derived here; per-scale and per-kernel sub-keys are left out of them so
// adding a scale computes only the new sub-keys.
func New(cfg *config.Config, store *artifact.Store, catalog *dataset.Catalog, logger *slog.Logger) (*Workflow, error) {
	if cfg == nil || store == nil || catalog == nil {
		return nil, fmt.Errorf("workflow requires config, store and catalog")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	masks, err := segment.NewLoader(cfg.Paths.MaskDir)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "workflow", "index masks", cfg.Paths.MaskDir, err)
	}
	w := &Workflow{
		cfg:     cfg,
		store:   store,
		catalog: catalog,
		masks:   masks,
		logger:  logger,
		fps:     make(map[string]string),
		scales:  make(map[string]float64, len(cfg.Curvature.Scales)),
		pairs:   descriptor.GaussPairs(cfg.Descriptors.GaussM, cfg.Descriptors.GaussS),
	}
	for _, s := range cfg.Curvature.Scales {
		w.scales[curvature.Key(s)] = s
	}
	if err := w.fingerprint(); err != nil {
		return nil, err
	}
	w.splitsOnce = sync.OnceValues(w.computeSplits)
	w.ident = newIdentifier(w)
	return w, nil
}

func (w *Workflow) fingerprint() error {
	d := w.cfg.Descriptors
	keypoints := func(length int) keypointSection {
		return keypointSection{Length: length, NumKeypoints: d.NumKeypoints, FeatDim: d.FeatDim, Uniform: d.Uniform}
	}
	steps := []struct {
		stage    string
		section  any
		upstream []string
	}{
		{StageSegmentation, maskSection{w.cfg.Paths.MaskDir}, nil},
		{StageTrailingEdge, outlineSection{w.cfg.Paths.OutlineDir}, []string{StageSegmentation}},
		{StageBlockCurvature, curvatureSection{w.cfg.Curvature.TransposeDims}, []string{StageTrailingEdge}},
		{StageDTWSignatures, resampleSection{w.cfg.DTW.CurvLength}, []string{StageBlockCurvature}},
		{StageCurvDescriptors, keypoints(d.CurvLength), []string{StageBlockCurvature}},
		{StageGaussDescriptors, keypoints(d.ContourLength), []string{StageTrailingEdge}},
		{splitsKey, w.cfg.Evaluation, []string{StageTrailingEdge}},
		{StageDTWIdentify, dtwSection{
			Scales:       slices.Sorted(maps.Keys(w.scales)),
			Window:       w.cfg.DTW.Window,
			Cost:         w.cfg.DTW.Cost,
			Coefficients: w.cfg.Coefficients(),
		}, []string{StageDTWSignatures, splitsKey}},
		{StageDescriptorIdentify, descriptorIdentifySection{
			Type:        d.Type,
			Keys:        w.descriptorKeys(),
			K:           w.cfg.Identification.K,
			Index:       w.cfg.Identification.Index,
			Aggregation: w.cfg.Identification.Aggregation,
			HNSWM:       w.cfg.Identification.HNSWM,
			HNSWEF:      w.cfg.Identification.HNSWEF,
			Seed:        w.cfg.Evaluation.Seed,
		}, []string{w.descriptorStage(), splitsKey}},
	}
	for _, step := range steps {
		var up lineage
		for _, name := range step.upstream {
			up.Upstream = append(up.Upstream, w.fps[name])
		}
		fp, err := config.Fingerprint(step.section, up)
		if err != nil {
			return err
		}
		w.fps[step.stage] = fp
	}
	return nil
}

// Fingerprint returns the artifact fingerprint of a stage.
func (w *Workflow) Fingerprint(stage string) string { return w.fps[stage] }

// Store returns the artifact store the workflow writes to.
func (w *Workflow) Store() *artifact.Store { return w.store }

// Catalog returns the catalog the workflow was built over.
func (w *Workflow) Catalog() *dataset.Catalog { return w.catalog }

// Methods returns the enabled identification methods in a fixed order.
func (w *Workflow) Methods() []string {
	var out []string
	for _, m := range []string{MethodDTW, MethodDescriptors} {
		if slices.Contains(w.cfg.Identification.Methods, m) {
			out = append(out, m)
		}
	}
	return out
}

func (w *Workflow) descriptorStage() string {
	if w.cfg.Descriptors.Type == "gauss" {
		return StageGaussDescriptors
	}
	return StageCurvDescriptors
}

func (w *Workflow) scaleKeys() []string {
	return slices.Sorted(maps.Keys(w.scales))
}

func (w *Workflow) descriptorKeys() []string {
	if w.cfg.Descriptors.Type == "gauss" {
		keys := make([]string, len(w.pairs))
		for i, p := range w.pairs {
			keys[i] = p.Key()
		}
		slices.Sort(keys)
		return keys
	}
	return w.scaleKeys()
}

// Graph registers every stage the configuration needs.
func (w *Workflow) Graph() (*pipeline.Graph, error) {
	g := pipeline.NewGraph()
	stages := []*pipeline.Stage{
		{
			Name:         StageSegmentation,
			Device:       pipeline.GPU,
			Fingerprint:  w.fps[StageSegmentation],
			ComputeBatch: w.masks.Batch,
		},
		{
			Name:        StageTrailingEdge,
			Upstream:    []string{StageSegmentation},
			Fingerprint: w.fps[StageTrailingEdge],
			Compute:     w.computeTrailingEdge,
		},
		{
			Name:        StageBlockCurvature,
			Upstream:    []string{StageTrailingEdge},
			Fingerprint: w.fps[StageBlockCurvature],
			SubKeys:     w.scaleKeys(),
			Compute:     w.computeCurvature,
		},
	}
	methods := w.Methods()
	if slices.Contains(methods, MethodDTW) {
		stages = append(stages,
			&pipeline.Stage{
				Name:        StageDTWSignatures,
				Upstream:    []string{StageBlockCurvature},
				Fingerprint: w.fps[StageDTWSignatures],
				SubKeys:     w.scaleKeys(),
				Compute:     w.computeDTWSignatures,
			},
			w.identifyStage(StageDTWIdentify, StageDTWSignatures, w.ident.IdentifyDTW),
		)
	}
	if slices.Contains(methods, MethodDescriptors) {
		encoder := &pipeline.Stage{
			Name:        StageCurvDescriptors,
			Upstream:    []string{StageBlockCurvature},
			Fingerprint: w.fps[StageCurvDescriptors],
			SubKeys:     w.scaleKeys(),
			Compute:     w.computeCurvDescriptors,
		}
		if w.cfg.Descriptors.Type == "gauss" {
			encoder = &pipeline.Stage{
				Name:        StageGaussDescriptors,
				Upstream:    []string{StageTrailingEdge},
				Fingerprint: w.fps[StageGaussDescriptors],
				SubKeys:     w.descriptorKeys(),
				Compute:     w.computeGaussDescriptors,
			}
		}
		stages = append(stages, encoder,
			w.identifyStage(StageDescriptorIdentify, encoder.Name, w.ident.IdentifyDescriptors))
	}
	if err := g.Add(stages...); err != nil {
		return nil, err
	}
	return g, nil
}

type identifyFunc func(ctx context.Context, split dataset.Split, query dataset.Encounter) (ranking.Result, error)

func (w *Workflow) identifyStage(name, upstream string, identify identifyFunc) *pipeline.Stage {
	return &pipeline.Stage{
		Name:        name,
		Upstream:    []string{upstream},
		Fingerprint: w.fps[name],
		Items:       w.QueryItems,
		Compute: func(ctx context.Context, item string, _ []string) (pipeline.Outputs, error) {
			split, query, err := w.lookupQuery(ctx, item)
			if err != nil {
				return nil, err
			}
			result, err := identify(ctx, split, query)
			if err != nil {
				return nil, err
			}
			return pipeline.Outputs{pipeline.DefaultSubKey: result}, nil
		},
	}
}

func (w *Workflow) computeTrailingEdge(_ context.Context, item string, _ []string) (pipeline.Outputs, error) {
	outline, err := contour.LoadOutline(filepath.Join(w.cfg.Paths.OutlineDir, item+".json"))
	if err != nil {
		return nil, err
	}
	edge, err := outline.TrailingEdge()
	if err != nil {
		return nil, err
	}
	return pipeline.Outputs{pipeline.DefaultSubKey: edge}, nil
}

func (w *Workflow) computeCurvature(_ context.Context, item string, missing []string) (pipeline.Outputs, error) {
	edge, err := w.readEdge(item)
	if err != nil {
		return nil, err
	}
	opts := curvature.Options{TransposeDims: w.cfg.Curvature.TransposeDims}
	out := make(pipeline.Outputs, len(missing))
	for _, key := range missing {
		vec, err := curvature.ComputeScale(edge, w.scales[key], opts)
		if err != nil {
			return nil, err
		}
		out[key] = vec
	}
	return out, nil
}

func (w *Workflow) computeDTWSignatures(_ context.Context, item string, missing []string) (pipeline.Outputs, error) {
	edge, curv, err := w.readCurvature(item, missing)
	if err != nil {
		return nil, err
	}
	desc, err := descriptor.EncodeBlock(curv, edge, w.cfg.DTW.CurvLength)
	if err != nil {
		return nil, err
	}
	return descriptorOutputs(desc), nil
}

func (w *Workflow) computeCurvDescriptors(_ context.Context, item string, missing []string) (pipeline.Outputs, error) {
	edge, curv, err := w.readCurvature(item, missing)
	if err != nil {
		return nil, err
	}
	desc, err := descriptor.EncodeCurvKeypoints(curv, edge, w.keypointOptions(w.cfg.Descriptors.CurvLength))
	if err != nil {
		return nil, err
	}
	return descriptorOutputs(desc), nil
}

func (w *Workflow) computeGaussDescriptors(_ context.Context, item string, missing []string) (pipeline.Outputs, error) {
	edge, err := w.readEdge(item)
	if err != nil {
		return nil, err
	}
	var pairs []descriptor.GaussPair
	for _, p := range w.pairs {
		if slices.Contains(missing, p.Key()) {
			pairs = append(pairs, p)
		}
	}
	desc, err := descriptor.EncodeGauss(edge, pairs, w.keypointOptions(w.cfg.Descriptors.ContourLength))
	if err != nil {
		return nil, err
	}
	return descriptorOutputs(desc), nil
}

func (w *Workflow) keypointOptions(length int) descriptor.KeypointOptions {
	d := w.cfg.Descriptors
	return descriptor.KeypointOptions{Length: length, NumKeypoints: d.NumKeypoints, FeatDim: d.FeatDim, Uniform: d.Uniform}
}

func descriptorOutputs(desc descriptor.Descriptor) pipeline.Outputs {
	out := make(pipeline.Outputs, len(desc))
	for key, m := range desc {
		out[key] = m
	}
	return out
}

func (w *Workflow) readEdge(item string) (contour.Edge, error) {
	var edge contour.Edge
	key := artifact.Key{Stage: StageTrailingEdge, Fingerprint: w.fps[StageTrailingEdge], Item: item, Sub: pipeline.DefaultSubKey}
	if err := w.store.Read(key, &edge); err != nil {
		return nil, services.Wrap(services.ErrExtraction, StageTrailingEdge, "read edge", item, err)
	}
	return edge, nil
}

func (w *Workflow) readCurvature(item string, keys []string) (contour.Edge, map[float64]curvature.Vector, error) {
	edge, err := w.readEdge(item)
	if err != nil {
		return nil, nil, err
	}
	curv := make(map[float64]curvature.Vector, len(keys))
	for _, key := range keys {
		var vec curvature.Vector
		k := artifact.Key{Stage: StageBlockCurvature, Fingerprint: w.fps[StageBlockCurvature], Item: item, Sub: key}
		if err := w.store.Read(k, &vec); err != nil {
			return nil, nil, services.Wrap(services.ErrExtraction, StageBlockCurvature, "read curvature", item, err)
		}
		curv[w.scales[key]] = vec
	}
	return edge, curv, nil
}

// ReadDescriptor assembles an item's descriptor from a stage's per-key
// artifacts.
func (w *Workflow) ReadDescriptor(stage, item string, keys []string) (descriptor.Descriptor, error) {
	fp := w.fps[stage]
	if reason, failed := w.store.Failed(stage, fp, item); failed {
		return nil, services.Wrap(services.ErrExtraction, stage, "read descriptor", item+": "+reason, nil)
	}
	desc := make(descriptor.Descriptor, len(keys))
	for _, key := range keys {
		var m mat.Dense
		if err := w.store.Read(artifact.Key{Stage: stage, Fingerprint: fp, Item: item, Sub: key}, &m); err != nil {
			return nil, services.Wrap(services.ErrExtraction, stage, "read descriptor", item, err)
		}
		desc[key] = &m
	}
	return desc, nil
}

// annOptions maps identification settings onto the index backend.
func (w *Workflow) annOptions() ann.Options {
	id := w.cfg.Identification
	return ann.Options{
		Backend:     id.Index,
		HNSW:        ann.HNSWOptions{M: id.HNSWM, EF: id.HNSWEF, Seed: uint64(w.cfg.Evaluation.Seed)},
		Concurrency: w.cfg.Workers.PoolSize,
	}
}

func (w *Workflow) aligner() (similarity.Aligner, error) {
	cost, err := similarity.CostByName(w.cfg.DTW.Cost)
	if err != nil {
		return similarity.Aligner{}, err
	}
	var weights []float64
	if coeffs := w.cfg.Coefficients(); len(coeffs) > 0 {
		weights = similarity.SpatialWeights(w.cfg.DTW.CurvLength, coeffs)
	}
	return similarity.Aligner{Window: w.cfg.DTW.Window, Cost: cost, Weights: weights}, nil
}
