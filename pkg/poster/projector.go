// projector.go - Derived metrics shown on the poster.
package poster

import "sync"

// DerivedMetric is a display value computed from one FormState field.
type DerivedMetric struct {
	Label string `json:"label"`
	Value int    `json:"value"`
}

// Metric labels, in display order.
const (
	LabelClockDays        = "打卡天数"
	LabelTotalTargetCount = "总目标数"
	LabelTotalPoints      = "评分"
)

// MetricFields are the source fields of the projector, in display order.
var MetricFields = []Field{FieldClockDays, FieldTotalTargetCount, FieldTotalPoints}

type metricKey struct {
	clockDays, targets, points *int
}

func (k metricKey) equal(o metricKey) bool {
	return intEqual(k.clockDays, o.clockDays) &&
		intEqual(k.targets, o.targets) &&
		intEqual(k.points, o.points)
}

// Projector computes the derived metrics and caches the last result on its
// three source fields.
type Projector struct {
	mu       sync.Mutex
	valid    bool
	key      metricKey
	cached   []DerivedMetric
	computed int
}

// NewProjector returns a projector with an empty cache.
func NewProjector() *Projector {
	return &Projector{}
}

// Project returns clock days, total target count and total points, in that
// order. Undefined fields display as 0. The result is a fresh slice.
func (p *Projector) Project(s FormState) []DerivedMetric {
	key := metricKey{
		clockDays: cloneInt(s.ClockDays),
		targets:   cloneInt(s.TotalTargetCount),
		points:    cloneInt(s.TotalPoints),
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.valid || !p.key.equal(key) {
		p.cached = project(s)
		p.key = key
		p.valid = true
		p.computed++
	}
	out := make([]DerivedMetric, len(p.cached))
	copy(out, p.cached)
	return out
}

func project(s FormState) []DerivedMetric {
	return []DerivedMetric{
		{Label: LabelClockDays, Value: valueOrZero(s.ClockDays)},
		{Label: LabelTotalTargetCount, Value: valueOrZero(s.TotalTargetCount)},
		{Label: LabelTotalPoints, Value: valueOrZero(s.TotalPoints)},
	}
}

func valueOrZero(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}
