package coordinator

import "sync/atomic"

// stubSubmitter records scheduler calls without running anything
type stubSubmitter struct {
	latestCalls atomic.Int32
	submits     atomic.Int32
}

func (s *stubSubmitter) Submit(bool) (*Handle, error) {
	s.submits.Add(1)
	return nil, ErrStopped
}

func (s *stubSubmitter) Latest() (Snapshot, bool) {
	s.latestCalls.Add(1)
	return Snapshot{}, false
}
