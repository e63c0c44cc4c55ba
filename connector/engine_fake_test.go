package connector_test

import (
	"encoding/json"
	"sync"

	"github.com/flagsync/flagsync/engine"
)

// fakeEngine records every payload handed to TakeState and answers flag
// queries from the most recent full document it could parse.
type fakeEngine struct {
	mu       sync.Mutex
	states   []string
	flags    map[string]bool
	warnings []string
	takeErr  error
}

func (f *fakeEngine) TakeState(state json.RawMessage) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.takeErr != nil {
		return nil, f.takeErr
	}
	f.states = append(f.states, string(state))

	var doc struct {
		Features []struct {
			Name    string `json:"name"`
			Enabled bool   `json:"enabled"`
		} `json:"features"`
	}
	if json.Unmarshal(state, &doc) == nil {
		if f.flags == nil {
			f.flags = make(map[string]bool)
		}
		for _, ft := range doc.Features {
			f.flags[ft.Name] = ft.Enabled
		}
	}
	return f.warnings, nil
}

func (f *fakeEngine) IsEnabled(name string, _ engine.Context) *bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.flags[name]
	if !ok {
		return nil
	}
	return &v
}

func (f *fakeEngine) GetVariant(string, engine.Context) *engine.Variant { return nil }
func (f *fakeEngine) CountToggle(string, bool)                          {}
func (f *fakeEngine) CountVariant(string, string)                       {}
func (f *fakeEngine) ShouldEmitImpressionEvent(string) bool             { return false }
func (f *fakeEngine) ListKnownToggles() []engine.ToggleDefinition       { return nil }
func (f *fakeEngine) MetricsBucket() json.RawMessage                    { return nil }

func (f *fakeEngine) stateCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.states)
}

func (f *fakeEngine) allStates() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.states...)
}

func (f *fakeEngine) enabled(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.flags[name]
}
