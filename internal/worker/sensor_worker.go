// Package worker bridges a step source into the ledger service.
package worker

import (
	"context"
	"fmt"

	"stepledger/internal/ledger"
	"stepledger/internal/log"
	"stepledger/internal/sensor"
)

// SensorWorker probes a step source, subscribes to its delta stream and
// forwards every delta into the ledger.
type SensorWorker struct {
	source sensor.Source
	ledger *ledger.Service
	logger *log.Logger
}

func NewSensorWorker(source sensor.Source, svc *ledger.Service, logger *log.Logger) *SensorWorker {
	return &SensorWorker{
		source: source,
		ledger: svc,
		logger: logger.WithComponent(log.ComponentWorker),
	}
}

// Run subscribes to the source and blocks until ctx is canceled. The probe
// result is reported to the ledger either way so the today view can show
// sensor availability.
func (w *SensorWorker) Run(ctx context.Context) error {
	availability := sensor.Probe(ctx, w.source)
	w.ledger.SetAvailability(availability)

	if availability != sensor.AvailabilityAvailable {
		w.logger.WarnContext(ctx, "step source unavailable, no deltas will arrive")
		<-ctx.Done()
		return ctx.Err()
	}

	sub, err := w.source.Subscribe(ctx, w.handleDelta)
	if err != nil {
		w.ledger.SetAvailability(sensor.AvailabilityUnavailable)
		return fmt.Errorf("subscribing to step source: %w", err)
	}
	defer sub.Unsubscribe()

	w.logger.InfoContext(ctx, "step source subscribed")
	<-ctx.Done()
	return ctx.Err()
}

func (w *SensorWorker) handleDelta(delta int64) {
	ctx := context.Background()
	snap, err := w.ledger.RecordDelta(ctx, delta)
	if err != nil {
		w.logger.WarnContext(ctx, "dropping step delta",
			log.FieldDelta, delta,
			log.FieldError, err.Error())
		return
	}
	w.logger.Debug("step delta recorded", log.FieldDelta, delta, log.FieldSteps, snap.Steps)
}
