// Command stepsim publishes step delta messages to the broker, standing in
// for a real pedometer bridge during development.
package main

import (
	"context"
	"flag"
	"math/rand"
	"os"
	"time"

	"stepledger/internal/amqp"
	"stepledger/internal/cli"
	"stepledger/internal/log"
)

func main() {
	logger := cli.SetupLogger()
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig(logger)

	interval := flag.Duration("interval", 2*time.Second, "delay between published deltas")
	maxBurst := flag.Int64("max-burst", 30, "maximum steps per delta")
	count := flag.Int("count", 0, "number of deltas to publish, 0 means until interrupted")
	flag.Parse()

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPDeltaQueue, cfg.AMQPEventQueue)
	if err != nil {
		logger.Error("connecting to broker", log.FieldError, err.Error())
		os.Exit(1)
	}
	defer client.Close()

	ctx, stop := cli.SignalContext()
	defer stop()

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	published := 0
	for {
		select {
		case <-ctx.Done():
			logger.Info("simulator stopped", "published", published)
			return
		case <-ticker.C:
			steps := rng.Int63n(*maxBurst) + 1
			if err := publish(ctx, client, steps); err != nil {
				logger.Warn("publish failed", log.FieldError, err.Error())
				continue
			}
			published++
			logger.Info("published step delta", log.FieldDelta, steps, "published", published)
			if *count > 0 && published >= *count {
				return
			}
		}
	}
}

func publish(ctx context.Context, client *amqp.Client, steps int64) error {
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return client.PublishStepDelta(pctx, amqp.NewStepDeltaMessage(steps))
}
