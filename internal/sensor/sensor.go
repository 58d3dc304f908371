// Package sensor defines the boundary to the platform step source and
// provides a simulated source for development.
package sensor

import "context"

// Availability is the tri-state the UI renders while the step source is
// being probed.
type Availability string

const (
	AvailabilityChecking    Availability = "checking"
	AvailabilityAvailable   Availability = "available"
	AvailabilityUnavailable Availability = "unavailable"
)

// DeltaHandler receives one non-negative step delta per sensor report.
type DeltaHandler func(delta int64)

// Subscription is a live delta stream. Unsubscribe releases it; after
// Unsubscribe returns, the handler is never invoked again.
type Subscription interface {
	Unsubscribe()
}

// Source is a stream of step deltas. Available is probed once at wiring
// time; a source that reports false never delivers deltas.
type Source interface {
	Available(ctx context.Context) (bool, error)
	Subscribe(ctx context.Context, handler DeltaHandler) (Subscription, error)
}

// Probe resolves a source's tri-state availability. A probe error is an
// unavailable sensor, not a failure: the host keeps running either way.
func Probe(ctx context.Context, src Source) Availability {
	if src == nil {
		return AvailabilityUnavailable
	}
	ok, err := src.Available(ctx)
	if err != nil || !ok {
		return AvailabilityUnavailable
	}
	return AvailabilityAvailable
}
