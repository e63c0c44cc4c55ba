package engine

import "encoding/json"

// Context carries the normalized, fully stringified evaluation attributes
// handed to the engine. All coercion happens before a Context is built, so
// implementations can treat every field as an opaque string.
type Context struct {
	UserID        string            `json:"userId,omitempty"`
	SessionID     string            `json:"sessionId,omitempty"`
	RemoteAddress string            `json:"remoteAddress,omitempty"`
	Environment   string            `json:"environment,omitempty"`
	AppName       string            `json:"appName,omitempty"`
	CurrentTime   string            `json:"currentTime,omitempty"`
	Properties    map[string]string `json:"properties,omitempty"`
}

// VariantPayload is the optional payload attached to a variant.
type VariantPayload struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Variant is the result of a variant evaluation.
type Variant struct {
	Name           string          `json:"name"`
	Enabled        bool            `json:"enabled"`
	FeatureEnabled bool            `json:"feature_enabled"`
	Payload        *VariantPayload `json:"payload,omitempty"`
}

// Disabled is the canonical variant returned when a flag has no variant
// configured or the engine does not know the flag.
var Disabled = Variant{Name: "disabled"}

// ToggleDefinition describes a flag known to the engine.
type ToggleDefinition struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Project string `json:"project"`
}

// Engine is the evaluation engine the synchronization core feeds and the
// client queries. The engine is an external collaborator: this package only
// defines the contract, never evaluation semantics.
//
// TakeState must be idempotent under replay of the same payload, and safe to
// call concurrently with evaluation queries.
type Engine interface {
	// TakeState ingests a raw feature-state or delta payload. Returned
	// warnings describe flags that could not be parsed; they are advisory.
	TakeState(state json.RawMessage) ([]string, error)

	// IsEnabled evaluates a flag. A nil result means the engine does not
	// know the flag; the caller decides the fallback.
	IsEnabled(name string, ctx Context) *bool

	// GetVariant resolves a variant. A nil result means no variant applies.
	GetVariant(name string, ctx Context) *Variant

	// CountToggle and CountVariant feed the engine-side metrics counters.
	CountToggle(name string, enabled bool)
	CountVariant(name string, variant string)

	// ShouldEmitImpressionEvent reports whether the named flag is configured
	// for impression eventing.
	ShouldEmitImpressionEvent(name string) bool

	// ListKnownToggles returns definitions of every flag the engine holds.
	ListKnownToggles() []ToggleDefinition

	// MetricsBucket drains the current metrics bucket as a raw JSON object,
	// or returns nil when there is nothing to report.
	MetricsBucket() json.RawMessage
}
