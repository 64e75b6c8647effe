package usecase

import (
	"sort"

	"KPISentinel/internal/domain/models"
	domrepo "KPISentinel/internal/domain/repository"
	domsvc "KPISentinel/internal/domain/service"
)

// DefaultRecentN is how many recent samples the dashboard shows per metric.
const DefaultRecentN = 20

// DashboardUseCase builds read-only views over the store.
type DashboardUseCase struct {
	store    domrepo.SeriesStore
	analyzer domsvc.Analyzer
	recentN  int
}

func NewDashboardUseCase(store domrepo.SeriesStore, analyzer domsvc.Analyzer, recentN int) *DashboardUseCase {
	if recentN <= 0 {
		recentN = DefaultRecentN
	}
	return &DashboardUseCase{store: store, analyzer: analyzer, recentN: recentN}
}

// List returns a view for every metric, ordered by name.
func (d *DashboardUseCase) List(n int) []models.KPIView {
	names := d.store.ListMetricNames()
	views := make([]models.KPIView, 0, len(names))
	for _, name := range names {
		if v, ok := d.Get(name, n); ok {
			views = append(views, v)
		}
	}
	return views
}

// Get returns the view of one metric. ok is false for unknown metrics.
// Recent holds the last n samples by timestamp and the forecast runs over them;
// the verdict uses the full snapshot in arrival order.
func (d *DashboardUseCase) Get(name string, n int) (models.KPIView, bool) {
	if n <= 0 {
		n = d.recentN
	}
	snap := d.store.Snapshot(name)
	if len(snap) == 0 {
		return models.KPIView{}, false
	}

	ordered := make([]models.Sample, len(snap))
	copy(ordered, snap)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Timestamp.Before(ordered[j].Timestamp)
	})
	if len(ordered) > n {
		ordered = ordered[len(ordered)-n:]
	}

	return models.KPIView{
		Name:     name,
		Count:    len(snap),
		Recent:   ordered,
		Forecast: d.analyzer.Forecast(models.Values(ordered)),
		Verdict:  d.analyzer.Classify(snap),
	}, true
}
