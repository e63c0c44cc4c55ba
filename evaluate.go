package flagsync

import (
	"log/slog"

	"github.com/google/uuid"

	"github.com/flagsync/flagsync/engine"
)

// FallbackFunc decides the result when the engine does not know a flag.
type FallbackFunc func(featureName string, ctx engine.Context) bool

// EvalOption customizes a single evaluation call.
type EvalOption func(*evalOptions)

type evalOptions struct {
	fallback FallbackFunc
}

// WithFallback supplies the value used when the engine does not know the
// flag. Without it, unknown flags evaluate to false.
func WithFallback(fn FallbackFunc) EvalOption {
	return func(o *evalOptions) { o.fallback = fn }
}

// IsEnabled evaluates a flag against ctx. It never fails: unknown flags
// resolve through the fallback (default false), and event callback
// problems are logged, not propagated.
func (c *Client) IsEnabled(featureName string, ctx Context, opts ...EvalOption) bool {
	var o evalOptions
	for _, opt := range opts {
		opt(&o)
	}

	normalized := c.normalizeContext(ctx)

	enabled := false
	if res := c.engine.IsEnabled(featureName, normalized); res != nil {
		enabled = *res
	} else if o.fallback != nil {
		enabled = o.fallback(featureName, normalized)
	}

	c.engine.CountToggle(featureName, enabled)
	c.emitImpression(EventFeatureFlag, featureName, enabled, "", normalized)
	return enabled
}

// GetVariant resolves a variant for the flag. Unknown flags and flags
// without variants yield the canonical disabled variant.
func (c *Client) GetVariant(featureName string, ctx Context) engine.Variant {
	normalized := c.normalizeContext(ctx)

	variant := c.engine.GetVariant(featureName, normalized)
	if variant == nil {
		if !c.IsInitialized() {
			c.logger.Debug("variant requested before the client loaded any state",
				slog.String("feature", featureName))
		}
		disabled := engine.Disabled
		variant = &disabled
	}

	c.engine.CountVariant(featureName, variant.Name)
	c.engine.CountToggle(featureName, variant.FeatureEnabled)
	c.emitImpression(EventVariant, featureName, variant.Enabled, variant.Name, normalized)
	return *variant
}

// FeatureDefinition describes a flag known to the engine.
type FeatureDefinition struct {
	Type    string
	Project string
}

// FeatureDefinitions returns a read-only snapshot of the flags the engine
// currently knows. It has no side effects on counters or events.
func (c *Client) FeatureDefinitions() map[string]FeatureDefinition {
	toggles := c.engine.ListKnownToggles()
	defs := make(map[string]FeatureDefinition, len(toggles))
	for _, t := range toggles {
		defs[t.Name] = FeatureDefinition{Type: t.Type, Project: t.Project}
	}
	return defs
}

// emitImpression delivers an evaluation event when the flag is configured
// for impression eventing. Callback failures never reach the evaluation
// caller.
func (c *Client) emitImpression(eventType EventType, featureName string, enabled bool, variant string, ctx engine.Context) {
	if c.eventCallback == nil {
		return
	}
	if !c.engine.ShouldEmitImpressionEvent(featureName) {
		return
	}
	invokeCallback(c.eventCallback, ImpressionEvent{
		baseEvent:   baseEvent{eventType: eventType, id: uuid.New()},
		FeatureName: featureName,
		Enabled:     enabled,
		Variant:     variant,
		Context:     ctx,
	}, c.logger)
}
