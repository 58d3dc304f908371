// Package backend selects and assembles the step source the daemon runs
// with.
package backend

import (
	"context"
	"io"
	"time"

	"stepledger/internal/config"
	"stepledger/internal/ledger"
	"stepledger/internal/sensor"
)

// Type identifies a step source backend.
type Type string

const (
	TypeAMQP      Type = "amqp"
	TypeSimulated Type = "simulated"
	TypeNone      Type = "none"
)

// IsValid reports whether t names a known backend.
func (t Type) IsValid() bool {
	switch t {
	case TypeAMQP, TypeSimulated, TypeNone:
		return true
	}
	return false
}

// Config carries the settings a backend needs.
type Config struct {
	Type Type

	// AMQP backend.
	URL        string
	Exchange   string
	DeltaQueue string
	EventQueue string

	// Simulated backend.
	SimTick time.Duration
	Seed    int64
}

// FromAppConfig maps the application configuration onto a backend config.
func FromAppConfig(cfg *config.Config) Config {
	return Config{
		Type:       Type(cfg.SensorBackend),
		URL:        cfg.AMQPURL,
		Exchange:   cfg.AMQPExchange,
		DeltaQueue: cfg.AMQPDeltaQueue,
		EventQueue: cfg.AMQPEventQueue,
		SimTick:    cfg.SimTick,
		Seed:       time.Now().UnixNano(),
	}
}

// Result is an assembled backend. Source is nil for TypeNone, Notifier is
// only set when the backend can carry goal events back out, and Closer
// releases broker resources when present.
type Result struct {
	Source   sensor.Source
	Notifier ledger.GoalNotifier
	Closer   io.Closer
}

// Close releases the backend's resources if it holds any.
func (r *Result) Close() error {
	if r.Closer != nil {
		return r.Closer.Close()
	}
	return nil
}

// Factory builds backends from configuration.
type Factory interface {
	CreateBackend(ctx context.Context, cfg Config) (*Result, error)
}
