package universe

import (
	"sync"

	"github.com/hskang/krx-signals/internal/model"
)

// Registry is the in-memory watch list shared by the monitor and signald.
// Safe for concurrent use.
type Registry struct {
	mu          sync.RWMutex
	instruments map[string]model.Instrument
	order       []string
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{instruments: make(map[string]model.Instrument)}
}

// Replace swaps the full instrument set, preserving the given order.
func (r *Registry) Replace(instruments []model.Instrument) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.instruments = make(map[string]model.Instrument, len(instruments))
	r.order = make([]string, 0, len(instruments))
	for _, ins := range instruments {
		if _, ok := r.instruments[ins.Ticker]; ok {
			continue
		}
		r.instruments[ins.Ticker] = ins
		r.order = append(r.order, ins.Ticker)
	}
}

// Get returns the instrument for ticker.
func (r *Registry) Get(ticker string) (model.Instrument, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ins, ok := r.instruments[ticker]
	return ins, ok
}

// All returns the instruments in registration order.
func (r *Registry) All() []model.Instrument {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.Instrument, 0, len(r.order))
	for _, t := range r.order {
		out = append(out, r.instruments[t])
	}
	return out
}

// Len returns the instrument count.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.instruments)
}
