// Package summarize turns a formatted transcript into a delivered
// meeting summary through a fixed sequence of LLM calls: plan the
// topics, summarize each part, extract next steps, clean the whole,
// then produce a TL;DR.
package summarize

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/suitenumerique/meet/pkg/llm"
	"github.com/suitenumerique/meet/pkg/logging"
	"github.com/suitenumerique/meet/pkg/observability"
	"github.com/suitenumerique/meet/pkg/transcript"
)

// PlanPart is one topic of the summarization plan, with the 1-based
// transcript line ranges it covers.
type PlanPart struct {
	Title      string  `json:"title"`
	LineRanges [][]int `json:"plages_lignes"`
}

// Plan is the schema-constrained output of the plan stage.
type Plan struct {
	Parts []PlanPart `json:"parts"`
}

// fallbackPartTitle names the single-topic plan used when the model
// proposes no parts. Absence of topics is a partial-data condition, not
// a failure.
const fallbackPartTitle = "General"

// Document is the assembled summary, ready for webhook delivery.
type Document struct {
	Title   string
	Content string
}

// Pipeline runs the summarization stages sequentially. It is stateless
// across invocations: re-running on the same transcript is idempotent
// modulo model nondeterminism.
type Pipeline struct {
	caller        llm.Caller
	locale        transcript.LocaleStrings
	metrics       observability.MetricsRecorder
	logger        logging.Logger
	tracer        *observability.Tracer
	partTolerance int
}

// NewPipeline creates a pipeline. partTolerance is the ± band around
// the derived part count passed to the plan stage.
func NewPipeline(caller llm.Caller, locale transcript.LocaleStrings, partTolerance int, metrics observability.MetricsRecorder, logger logging.Logger) *Pipeline {
	return &Pipeline{
		caller:        caller,
		locale:        locale,
		metrics:       metrics,
		logger:        logger.With(logging.F("component", "summarize")),
		tracer:        observability.NewTracer(),
		partTolerance: partTolerance,
	}
}

// Run produces the summary document for one transcript. Any stage
// failure aborts the run; there is no per-stage checkpointing, the
// owning job re-runs the whole pipeline on retry.
func (p *Pipeline) Run(ctx context.Context, transcriptText, title string) (Document, error) {
	plan, err := p.plan(ctx, transcriptText)
	if err != nil {
		return Document{}, err
	}
	p.logger.Info("plan generated", logging.F("parts", len(plan.Parts)))

	rawSummary, err := p.summarizeParts(ctx, transcriptText, plan)
	if err != nil {
		return Document{}, err
	}
	p.logger.Info("parts summarized")

	nextSteps, err := p.nextSteps(ctx, transcriptText)
	if err != nil {
		return Document{}, err
	}
	p.logger.Info("next steps generated")

	cleaned, err := p.call(ctx, "cleaning", llm.Request{
		System: promptSystemCleaning,
		User:   rawSummary,
	})
	if err != nil {
		return Document{}, err
	}
	p.logger.Info("summary cleaned")

	tldr, err := p.call(ctx, "tldr", llm.Request{
		System: promptSystemTLDR,
		User:   transcriptText + "\n\n" + cleaned,
	})
	if err != nil {
		return Document{}, err
	}
	p.logger.Info("tldr generated")

	content := tldr + "\n\n" + cleaned
	if nextSteps != "" {
		content += "\n\n" + nextSteps
	}

	return Document{
		Title:   strings.ReplaceAll(p.locale.SummaryTitleTemplate, "{title}", title),
		Content: content,
	}, nil
}

// plan asks the model to partition the line-numbered transcript into
// titled topics. An empty result falls back to a single catch-all part
// covering the whole transcript.
func (p *Pipeline) plan(ctx context.Context, transcriptText string) (Plan, error) {
	target := PartCount(transcriptText)
	minParts := target - p.partTolerance
	if minParts < 1 {
		minParts = 1
	}
	maxParts := target + p.partTolerance

	system := strings.ReplaceAll(promptSystemPlan, "{min_parts}", strconv.Itoa(minParts))
	system = strings.ReplaceAll(system, "{max_parts}", strconv.Itoa(maxParts))

	out, err := p.call(ctx, "plan", llm.Request{
		System:     system,
		User:       NumberLines(transcriptText),
		SchemaName: "summary_plan",
		Schema:     llm.GenerateSchema[Plan](),
	})
	if err != nil {
		return Plan{}, err
	}

	var plan Plan
	if err := json.Unmarshal([]byte(out), &plan); err != nil {
		return Plan{}, &llm.CallError{Stage: "plan", Err: fmt.Errorf("malformed plan JSON: %w", err)}
	}
	if len(plan.Parts) == 0 {
		p.logger.Warn("plan returned no topics, using single-part fallback")
		plan.Parts = []PlanPart{{Title: fallbackPartTitle}}
	}
	return plan, nil
}

// summarizeParts issues one call per plan topic and joins the titled
// sections in plan order. Each call sees the part's transcript excerpt
// when the plan gave line ranges, the full transcript otherwise.
func (p *Pipeline) summarizeParts(ctx context.Context, transcriptText string, plan Plan) (string, error) {
	sections := make([]string, 0, len(plan.Parts))
	for _, part := range plan.Parts {
		excerpt := ExtractLines(transcriptText, part.LineRanges)
		if excerpt == "" {
			excerpt = transcriptText
		}
		user := strings.ReplaceAll(promptUserPart, "{part}", part.Title)
		user = strings.ReplaceAll(user, "{transcript}", excerpt)

		p.logger.Info("summarizing part", logging.F("title", part.Title))
		section, err := p.call(ctx, "part_summary", llm.Request{
			System: promptSystemPart,
			User:   user,
		})
		if err != nil {
			return "", err
		}
		sections = append(sections, section)
	}
	return strings.Join(sections, "\n\n"), nil
}

func (p *Pipeline) nextSteps(ctx context.Context, transcriptText string) (string, error) {
	out, err := p.call(ctx, "next_steps", llm.Request{
		System:     promptSystemNextSteps,
		User:       transcriptText,
		SchemaName: "next_steps",
		Schema:     llm.GenerateSchema[ActionList](),
	})
	if err != nil {
		return "", err
	}

	var list ActionList
	if err := json.Unmarshal([]byte(out), &list); err != nil {
		return "", &llm.CallError{Stage: "next_steps", Err: fmt.Errorf("malformed next-steps JSON: %w", err)}
	}
	return RenderNextSteps(list), nil
}

// call issues one completion under a stage-tagged span and records its
// latency. Failures are tagged with the stage name so job logs show
// where a retried run died.
func (p *Pipeline) call(ctx context.Context, stage string, req llm.Request) (string, error) {
	ctx, span := p.tracer.StartLLMSpan(ctx, p.caller.Model())
	defer span.End()
	helper := observability.NewSpanHelper(span)
	helper.SetStage(stage)

	started := time.Now()
	out, err := p.caller.Complete(ctx, req)
	p.metrics.RecordLLMCall(stage, p.caller.Model(), time.Since(started), err)
	if err != nil {
		helper.SetError(err, "llm_error", true)
		var callErr *llm.CallError
		if errors.As(err, &callErr) && callErr.Stage == "" {
			callErr.Stage = stage
			return "", callErr
		}
		return "", &llm.CallError{Stage: stage, Err: err}
	}
	helper.SetSuccess()
	return out, nil
}
