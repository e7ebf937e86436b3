package service

import (
	"sync/atomic"
	"time"
)

// State: что видно снаружи через /readyz и /healthz.
type State struct {
	ready     atomic.Bool
	startedAt time.Time

	lastSignalUnix    atomic.Int64 // unix seconds
	lastReconcileUnix atomic.Int64
}

func NewState() *State {
	return &State{startedAt: time.Now()}
}

// SetReady: поднимается, когда открыт приём сигналов.
func (s *State) SetReady(v bool) { s.ready.Store(v) }
func (s *State) Ready() bool     { return s.ready.Load() }

func (s *State) TouchSignal(t time.Time)    { s.lastSignalUnix.Store(t.Unix()) }
func (s *State) TouchReconcile(t time.Time) { s.lastReconcileUnix.Store(t.Unix()) }

func (s *State) LastSignal() time.Time    { return fromUnix(s.lastSignalUnix.Load()) }
func (s *State) LastReconcile() time.Time { return fromUnix(s.lastReconcileUnix.Load()) }

func (s *State) Uptime() time.Duration { return time.Since(s.startedAt) }

func fromUnix(u int64) time.Time {
	if u == 0 {
		return time.Time{}
	}
	return time.Unix(u, 0)
}
