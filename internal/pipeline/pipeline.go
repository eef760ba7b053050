// Package pipeline glues analysis to moderation: content is scored, the
// score is recorded in metrics, and anything the auto-flag policy catches
// is placed on the moderation queue as a system action.
package pipeline

import (
	"context"
	"fmt"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/captjreacher/pimp-my-brand/internal/content"
	"github.com/captjreacher/pimp-my-brand/internal/errs"
	"github.com/captjreacher/pimp-my-brand/internal/events"
	"github.com/captjreacher/pimp-my-brand/internal/metrics"
	"github.com/captjreacher/pimp-my-brand/internal/modqueue"
	"github.com/captjreacher/pimp-my-brand/internal/orchestrator"
	"github.com/captjreacher/pimp-my-brand/internal/risk"
	"github.com/captjreacher/pimp-my-brand/internal/tracing"
)

// Pipeline runs the analyze-then-flag flow for newly created content.
type Pipeline struct {
	analyzer *risk.Analyzer
	orch     *orchestrator.Orchestrator
	queue    *modqueue.Queue
	bus      *events.Bus
}

// New wires the pipeline.
func New(analyzer *risk.Analyzer, orch *orchestrator.Orchestrator, queue *modqueue.Queue, bus *events.Bus) *Pipeline {
	return &Pipeline{analyzer: analyzer, orch: orch, queue: queue, bus: bus}
}

// ProcessResult is the outcome of one content intake run.
type ProcessResult struct {
	Score    risk.Score
	Item     *modqueue.Item // non-nil when the content was queued for review
	AuditID  string         // set when a queue entry was attempted
	Warnings []string
}

// Flagged reports whether the content landed on the moderation queue.
func (r *ProcessResult) Flagged() bool {
	return r.Item != nil
}

// ProcessContent analyzes the input and, when the auto-flag policy triggers
// or analysis is degraded, queues the content for human review as a system
// action. The analysis itself never fails; only queueing can return an
// error.
func (p *Pipeline) ProcessContent(ctx context.Context, contentType content.Type, contentID string, input content.AnalysisInput) (*ProcessResult, error) {
	if !contentType.Valid() {
		return nil, &errs.ValidationError{Field: "content_type", Message: "unknown content type: " + string(contentType)}
	}
	if contentID == "" {
		return nil, &errs.ValidationError{Field: "content_id", Message: "content id is required"}
	}

	ctx, span := tracing.AnalysisSpan(ctx, string(contentType))
	score := p.analyzer.Analyze(input)
	span.End()

	metrics.AnalysesTotal.WithLabelValues(string(contentType)).Inc()
	if score.Degraded {
		metrics.AnalysesDegradedTotal.Inc()
	}
	for _, f := range score.Factors {
		metrics.RiskFactorsTotal.WithLabelValues(string(f.Type)).Inc()
	}

	result := &ProcessResult{Score: score, Warnings: score.Warnings}

	// Degraded analysis is routed to manual review rather than silently
	// approved: an extraction bug must not become a moderation bypass.
	if !score.AutoFlag && !score.Degraded {
		return result, nil
	}
	if score.AutoFlag {
		metrics.AutoFlagsTotal.Inc()
	}

	res := p.orch.Execute(ctx, orchestrator.Request{
		Action:     orchestrator.ActionAutoFlag,
		ActorID:    nil, // system action
		TargetType: "content",
		TargetID:   &contentID,
		Details: map[string]string{
			"content_type": string(contentType),
			"risk_score":   strconv.FormatFloat(score.OverallScore, 'f', 1, 64),
			"confidence":   strconv.FormatFloat(score.Confidence, 'f', 2, 64),
			"degraded":     strconv.FormatBool(score.Degraded),
		},
	}, func(ctx context.Context) (any, []string, error) {
		item, err := p.queue.FlagContent(ctx, contentType, contentID, input.UserID, modqueue.FlagOptions{
			Reason:      flagReason(score),
			RiskScore:   score.OverallScore,
			AutoFlagged: true,
			Details:     flagDetails(score),
		})
		if err != nil {
			return nil, nil, err
		}
		return item, nil, nil
	})

	result.AuditID = res.AuditID
	result.Warnings = append(result.Warnings, res.Warnings...)
	if !res.Success {
		return result, res.Err
	}

	item := res.Data.(*modqueue.Item)
	result.Item = item
	p.bus.Emit(events.ContentFlagged, item)

	log.Info().
		Str("content_id", contentID).
		Str("content_type", string(contentType)).
		Float64("risk_score", score.OverallScore).
		Int("priority", item.Priority).
		Bool("degraded", score.Degraded).
		Msg("pipeline: content queued for review")

	return result, nil
}

func flagReason(score risk.Score) string {
	if score.Degraded {
		return "content analysis degraded; queued for manual review"
	}
	return fmt.Sprintf("automatic risk flag: score %.1f, confidence %.2f", score.OverallScore, score.Confidence)
}

func flagDetails(score risk.Score) map[string]string {
	details := map[string]string{
		"risk_score": strconv.FormatFloat(score.OverallScore, 'f', 1, 64),
		"confidence": strconv.FormatFloat(score.Confidence, 'f', 2, 64),
	}
	if score.Degraded {
		details["degraded"] = "true"
	}
	for _, f := range score.Factors {
		details["factor:"+string(f.Type)] = f.Description
	}
	return details
}
