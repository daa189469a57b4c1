package pipeline

import (
	"time"

	"github.com/RoaringBitmap/roaring/v2"
)

// StageReport records what happened to every item of one stage. Bitmaps
// hold indexes into Items.
type StageReport struct {
	Stage  string
	Device Device
	Items  []string
	Done   *roaring.Bitmap
	Failed *roaring.Bitmap
	Cached *roaring.Bitmap
	// CachedFailed holds items whose failure marker predates this run.
	CachedFailed *roaring.Bitmap
	Reasons      map[string]string
	Duration     time.Duration
}

func newStageReport(stage *Stage, items []string) *StageReport {
	return &StageReport{
		Stage:        stage.Name,
		Device:       stage.Device,
		Items:        items,
		Done:         roaring.New(),
		Failed:       roaring.New(),
		Cached:       roaring.New(),
		CachedFailed: roaring.New(),
		Reasons:      make(map[string]string),
	}
}

// Counts returns done, failed and cached item counts.
func (r *StageReport) Counts() (done, failed, cached int) {
	return int(r.Done.GetCardinality()), int(r.Failed.GetCardinality()), int(r.Cached.GetCardinality())
}

// TotalFailed counts items failed now or by an earlier run.
func (r *StageReport) TotalFailed() int {
	return int(roaring.Or(r.Failed, r.CachedFailed).GetCardinality())
}

// FailedItems lists the items that failed during this run.
func (r *StageReport) FailedItems() []string {
	out := make([]string, 0, r.Failed.GetCardinality())
	it := r.Failed.Iterator()
	for it.HasNext() {
		out = append(out, r.Items[it.Next()])
	}
	return out
}

// Pending counts items neither computed, failed nor already complete; it is
// non-zero only for cancelled runs.
func (r *StageReport) Pending() int {
	settled := roaring.FastOr(r.Done, r.Failed, r.Cached, r.CachedFailed)
	return len(r.Items) - int(settled.GetCardinality())
}

// Report collects stage reports in execution order.
type Report struct {
	Stages []*StageReport
}

// Stage returns the report for a stage name.
func (r *Report) Stage(name string) (*StageReport, bool) {
	for _, s := range r.Stages {
		if s.Stage == name {
			return s, true
		}
	}
	return nil, false
}
