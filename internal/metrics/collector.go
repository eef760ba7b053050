package metrics

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// QueueSnapshot is one reading of the queue numbers behind the gauges.
type QueueSnapshot struct {
	CountsByStatus      map[string]int
	HighPriorityPending int
	ProcessedToday      int
}

// StatsFunc reads the current queue numbers. The collector calls it once
// per tick, so implementations should aggregate everything in one pass.
type StatsFunc func(ctx context.Context) (QueueSnapshot, error)

// StartCollector launches a goroutine that periodically updates the queue
// gauges. It runs every interval until the context is cancelled.
func StartCollector(ctx context.Context, stats StatsFunc, interval time.Duration) {
	collect(ctx, stats)

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				collect(ctx, stats)
			}
		}
	}()

	log.Info().Dur("interval", interval).Msg("metrics: collector started")
}

func collect(ctx context.Context, stats StatsFunc) {
	if stats == nil {
		return
	}

	snap, err := stats(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("metrics: failed to collect queue stats")
		return
	}

	for status, count := range snap.CountsByStatus {
		QueueItemsByStatus.WithLabelValues(status).Set(float64(count))
	}
	QueueHighPriorityPending.Set(float64(snap.HighPriorityPending))
	QueueProcessedToday.Set(float64(snap.ProcessedToday))
}
