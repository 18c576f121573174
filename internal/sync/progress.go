package sync

import "sync/atomic"

const (
	// ProgressTotalUnits is the advisory work budget of one job
	ProgressTotalUnits = 10

	// ProgressFetchUnits is the share of the budget spent on the network fetch
	ProgressFetchUnits = 8

	progressParsedUnits = 9
)

// Progress tracks completed work units of one job. It only moves forward
// and is safe for concurrent readers.
type Progress struct {
	completed atomic.Int64
}

// Completed returns the units done so far
func (p *Progress) Completed() int64 {
	if p == nil {
		return 0
	}
	return p.completed.Load()
}

// Total returns the unit budget
func (*Progress) Total() int64 {
	return ProgressTotalUnits
}

// Fraction returns completion in [0, 1]
func (p *Progress) Fraction() float64 {
	return float64(p.Completed()) / ProgressTotalUnits
}

// advance raises the completed count to units; lower values are ignored
func (p *Progress) advance(units int64) {
	if p == nil {
		return
	}
	if units > ProgressTotalUnits {
		units = ProgressTotalUnits
	}
	for {
		cur := p.completed.Load()
		if units <= cur || p.completed.CompareAndSwap(cur, units) {
			return
		}
	}
}

// fetchProgress maps byte progress onto the fetch share of the budget
func (p *Progress) fetchProgress(received, total int64) {
	if total <= 0 || received <= 0 {
		return
	}
	units := received * ProgressFetchUnits / total
	if units > ProgressFetchUnits {
		units = ProgressFetchUnits
	}
	p.advance(units)
}
