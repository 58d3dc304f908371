package backend

import (
	"context"
	"fmt"

	"stepledger/internal/amqp"
	"stepledger/internal/log"
	"stepledger/internal/sensor"
)

// DefaultFactory implements Factory.
type DefaultFactory struct {
	logger *log.Logger
}

func NewFactory(logger *log.Logger) Factory {
	return &DefaultFactory{logger: logger.WithComponent(log.ComponentSensor)}
}

func (f *DefaultFactory) CreateBackend(ctx context.Context, cfg Config) (*Result, error) {
	if !cfg.Type.IsValid() {
		return nil, fmt.Errorf("invalid backend type: %s", cfg.Type)
	}

	switch cfg.Type {
	case TypeAMQP:
		return f.createAMQPBackend(cfg)
	case TypeSimulated:
		return f.createSimulatedBackend(cfg)
	default:
		f.logger.Info("no step source configured")
		return &Result{}, nil
	}
}

func (f *DefaultFactory) createAMQPBackend(cfg Config) (*Result, error) {
	client, err := amqp.NewClient(cfg.URL, cfg.Exchange, cfg.DeltaQueue, cfg.EventQueue)
	if err != nil {
		return nil, fmt.Errorf("connecting to broker: %w", err)
	}

	f.logger.Info("amqp step source ready", "url", cfg.URL, "queue", cfg.DeltaQueue)
	return &Result{
		Source:   client,
		Notifier: client,
		Closer:   client,
	}, nil
}

func (f *DefaultFactory) createSimulatedBackend(cfg Config) (*Result, error) {
	source := sensor.NewSimulated(cfg.SimTick, 0, cfg.Seed)

	f.logger.Info("simulated step source ready", "tick", cfg.SimTick.String())
	return &Result{Source: source}, nil
}
