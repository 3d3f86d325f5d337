package engine

import (
	"sync"
	"time"

	"github.com/hskang/krx-signals/internal/model"
)

// Store owns the open and archived positions for a set of instruments and
// applies engine results to them. Safe for concurrent use.
type Store struct {
	mu       sync.Mutex
	open     map[string]*model.Position
	closed   []model.ClosedPosition
	lastExit map[string]time.Time
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		open:     make(map[string]*model.Position),
		lastExit: make(map[string]time.Time),
	}
}

// Seed installs previously persisted open positions, replacing any existing
// entry for the same ticker.
func (s *Store) Seed(positions []model.Position) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range positions {
		p := positions[i]
		s.open[p.Ticker] = &p
	}
}

// SeedClosed installs previously archived positions so the same-session
// reopen guard survives a restart.
func (s *Store) SeedClosed(closed []model.ClosedPosition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range closed {
		s.closed = append(s.closed, c)
		if c.ExitDate.After(s.lastExit[c.Ticker]) {
			s.lastExit[c.Ticker] = c.ExitDate
		}
	}
}

// Evaluate runs one engine cycle against the stored position for in.Ticker
// and commits the outcome: an updated or newly opened position replaces the
// stored one, an exit archives it.
func (s *Store) Evaluate(e *Engine, in Input) (model.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	in.LastExitDate = s.lastExit[in.Ticker]
	res, err := e.Evaluate(s.open[in.Ticker], in)
	if err != nil {
		return model.Result{}, err
	}

	switch {
	case res.Closed != nil:
		delete(s.open, in.Ticker)
		s.closed = append(s.closed, *res.Closed)
		s.lastExit[in.Ticker] = res.Closed.ExitDate
	case res.Position != nil:
		s.open[in.Ticker] = res.Position
	}
	return res, nil
}

// Get returns a copy of the open position for ticker, or nil.
func (s *Store) Get(ticker string) *model.Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open[ticker].Clone()
}

// Open returns copies of all open positions.
func (s *Store) Open() []model.Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Position, 0, len(s.open))
	for _, p := range s.open {
		out = append(out, *p.Clone())
	}
	return out
}

// Closed returns the archived positions, oldest first.
func (s *Store) Closed() []model.ClosedPosition {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.ClosedPosition, len(s.closed))
	copy(out, s.closed)
	return out
}
