package flagsync_test

import (
	"encoding/json"
	"sync"

	"github.com/flagsync/flagsync/engine"
)

// fakeEngine is a minimal engine for exercising the client: it records
// ingested payloads, answers flag queries from the most recent parsed
// document, and tracks counter calls.
type fakeEngine struct {
	mu            sync.Mutex
	states        []string
	flags         map[string]bool
	variants      map[string]engine.Variant
	impressions   map[string]bool
	toggles       []engine.ToggleDefinition
	bucket        json.RawMessage
	toggleCounts  map[string]int
	variantCounts map[string]int
	lastCtx       engine.Context
	takeErr       error
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		flags:         make(map[string]bool),
		variants:      make(map[string]engine.Variant),
		impressions:   make(map[string]bool),
		toggleCounts:  make(map[string]int),
		variantCounts: make(map[string]int),
	}
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
		for _, ft := range doc.Features {
			f.flags[ft.Name] = ft.Enabled
		}
	}
	return nil, nil
}

func (f *fakeEngine) IsEnabled(name string, ctx engine.Context) *bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastCtx = ctx
	v, ok := f.flags[name]
	if !ok {
		return nil
	}
	return &v
}

func (f *fakeEngine) GetVariant(name string, ctx engine.Context) *engine.Variant {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastCtx = ctx
	v, ok := f.variants[name]
	if !ok {
		return nil
	}
	return &v
}

func (f *fakeEngine) CountToggle(name string, enabled bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.toggleCounts[name]++
}

func (f *fakeEngine) CountVariant(name string, variant string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.variantCounts[name]++
}

func (f *fakeEngine) ShouldEmitImpressionEvent(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.impressions[name]
}

func (f *fakeEngine) ListKnownToggles() []engine.ToggleDefinition {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]engine.ToggleDefinition(nil), f.toggles...)
}

// MetricsBucket drains the bucket: a second call before new activity has
// nothing to report.
func (f *fakeEngine) MetricsBucket() json.RawMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	b := f.bucket
	f.bucket = nil
	return b
}

func (f *fakeEngine) setBucket(b json.RawMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bucket = b
}

func (f *fakeEngine) setFlag(name string, enabled bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flags[name] = enabled
}

func (f *fakeEngine) stateCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.states)
}

func (f *fakeEngine) enabled(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.flags[name]
}

func (f *fakeEngine) lastContext() engine.Context {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastCtx
}

func (f *fakeEngine) toggleCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.toggleCounts[name]
}

func (f *fakeEngine) variantCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.variantCounts[name]
}
