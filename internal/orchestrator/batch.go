package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/captjreacher/pimp-my-brand/internal/metrics"
)

// DefaultBatchSize bounds in-chunk parallelism when the caller does not
// choose one.
const DefaultBatchSize = 10

// BatchSummary accounts for every item of a batch run.
type BatchSummary struct {
	Total      int      `json:"total"`
	Successful int      `json:"successful"`
	Failed     int      `json:"failed"`
	Warnings   []string `json:"warnings,omitempty"`
}

// ExecuteBatch runs op over items in sequential chunks of batchSize; items
// within a chunk run concurrently. Each item's outcome is independent: a
// failure never cancels siblings. A cancelled context skips chunks that
// have not started yet; items of an in-flight chunk run to completion.
func ExecuteBatch[T any](ctx context.Context, items []T, op func(ctx context.Context, item T) error, batchSize int) BatchSummary {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	summary := BatchSummary{Total: len(items)}
	var mu sync.Mutex

	for start := 0; start < len(items); start += batchSize {
		if err := ctx.Err(); err != nil {
			skipped := len(items) - start
			summary.Failed += skipped
			summary.Warnings = append(summary.Warnings,
				fmt.Sprintf("batch aborted, %d items were not started: %v", skipped, err))
			log.Warn().Int("skipped", skipped).Err(err).Msg("orchestrator: batch aborted")
			break
		}

		end := min(start+batchSize, len(items))
		var wg sync.WaitGroup
		for _, item := range items[start:end] {
			wg.Add(1)
			go func(item T) {
				defer wg.Done()
				err := runItemGuarded(ctx, op, item)

				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					summary.Failed++
					metrics.BatchItemsTotal.WithLabelValues("failed").Inc()
				} else {
					summary.Successful++
					metrics.BatchItemsTotal.WithLabelValues("success").Inc()
				}
			}(item)
		}
		wg.Wait()
	}

	if summary.Failed > 0 && summary.Failed < summary.Total {
		summary.Warnings = append(summary.Warnings,
			fmt.Sprintf("%d out of %d items failed to process", summary.Failed, summary.Total))
	}

	return summary
}

func runItemGuarded[T any](ctx context.Context, op func(ctx context.Context, item T) error, item T) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Any("panic", r).Msg("orchestrator: batch item panicked")
			err = fmt.Errorf("batch item panicked: %v", r)
		}
	}()
	return op(ctx, item)
}
