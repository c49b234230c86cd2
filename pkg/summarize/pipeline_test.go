package summarize

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suitenumerique/meet/pkg/llm"
	"github.com/suitenumerique/meet/pkg/logging"
	"github.com/suitenumerique/meet/pkg/observability"
	"github.com/suitenumerique/meet/pkg/transcript"
)

// stageRecorder captures the stage label of every recorded LLM call.
type stageRecorder struct {
	observability.NopRecorder

	stages []string
	failed int
}

func (r *stageRecorder) RecordLLMCall(stage, _ string, _ time.Duration, err error) {
	r.stages = append(r.stages, stage)
	if err != nil {
		r.failed++
	}
}

// fakeCaller answers each stage from a canned script keyed on the
// system prompt, recording every request it sees.
type fakeCaller struct {
	responses map[string]string
	requests  []llm.Request
	failOn    string
}

func (f *fakeCaller) Complete(_ context.Context, req llm.Request) (string, error) {
	f.requests = append(f.requests, req)
	for key, resp := range f.responses {
		if strings.Contains(req.System, key) {
			if f.failOn == key {
				return "", &llm.CallError{Err: errors.New("model unavailable")}
			}
			return resp, nil
		}
	}
	return "", &llm.CallError{Err: errors.New("unexpected prompt")}
}

func (f *fakeCaller) Model() string { return "fake-model" }

func newScriptedCaller() *fakeCaller {
	return &fakeCaller{responses: map[string]string{
		"diviser le contenu":   `{"parts": [{"title": "Budget", "plages_lignes": [[1, 2]]}, {"title": "Planning", "plages_lignes": [[3, 4]]}]}`,
		"une partie du résumé": "### Sujet\nRésumé de partie.",
		"prochaines étapes":    `{"actions": [{"title": "Send report", "assignees": ["Bob"], "due_date": "2024-01-10"}]}`,
		"nettoyer un résumé":   "Résumé nettoyé.",
		"TL;DR":                "### Résumé TL;DR\n\nRésumé court.",
	}}
}

func testPipeline(caller llm.Caller) *Pipeline {
	return NewPipeline(caller, transcript.GetLocale("fr"), 2, observability.NopRecorder{}, logging.NewNopLogger())
}

func TestPartCount(t *testing.T) {
	assert.Equal(t, 1, PartCount(strings.Repeat("a", 200)))
	// ~3800 tokens → round(0.5 + 2.3·log1p(1)) = 2.
	assert.Equal(t, 2, PartCount(strings.Repeat("a", 3800*4)))
	assert.Equal(t, 1, PartCount(""))
	// Long transcripts grow sub-linearly.
	assert.Greater(t, PartCount(strings.Repeat("a", 3800*4*10)), 2)
	assert.Less(t, PartCount(strings.Repeat("a", 3800*4*10)), 15)
}

func TestNumberLines(t *testing.T) {
	assert.Equal(t, "1: a\n2: b\n", NumberLines("a\nb"))
}

func TestExtractLines(t *testing.T) {
	text := "l1\nl2\nl3\nl4\nl5"

	assert.Equal(t, "l2\nl3", ExtractLines(text, [][]int{{2, 3}}))
	assert.Equal(t, "l1\nl4\nl5", ExtractLines(text, [][]int{{1, 1}, {4, 5}}))
	// Clipped and degenerate ranges never panic.
	assert.Equal(t, "l1\nl2\nl3\nl4\nl5", ExtractLines(text, [][]int{{0, 99}}))
	assert.Equal(t, "", ExtractLines(text, [][]int{{4, 2}, {7}}))
	assert.Equal(t, "", ExtractLines(text, nil))
}

func TestRenderNextSteps(t *testing.T) {
	out := RenderNextSteps(ActionList{Actions: []Action{
		{Title: "Send report", Assignees: []string{"Bob"}, DueDate: "2024-01-10"},
		{Title: "Book room", Assignees: nil, DueDate: ""},
	}})

	assert.Contains(t, out, "### Prochaines étapes")
	assert.Contains(t, out, "- [ ] Send report Assignée à : Bob, Échéance : 2024-01-10")
	assert.Contains(t, out, "- [ ] Book room Assignée à : -, Échéance : -")

	assert.Equal(t, "", RenderNextSteps(ActionList{}))
}

func TestPipelineRunAssemblesDocument(t *testing.T) {
	caller := newScriptedCaller()
	p := testPipeline(caller)

	doc, err := p.Run(context.Background(), "ligne un\nligne deux\nligne trois\nligne quatre", "Réunion \"standup\" du 2024-01-10 à 10h00")
	require.NoError(t, err)

	assert.Equal(t, `Résumé de Réunion "standup" du 2024-01-10 à 10h00`, doc.Title)

	// TL;DR first, then cleaned body, then next steps.
	tldrIdx := strings.Index(doc.Content, "Résumé court.")
	cleanIdx := strings.Index(doc.Content, "Résumé nettoyé.")
	stepsIdx := strings.Index(doc.Content, "### Prochaines étapes")
	require.NotEqual(t, -1, tldrIdx)
	require.NotEqual(t, -1, cleanIdx)
	require.NotEqual(t, -1, stepsIdx)
	assert.Less(t, tldrIdx, cleanIdx)
	assert.Less(t, cleanIdx, stepsIdx)

	// Two plan parts → two part-summary calls, plus plan, next steps,
	// cleaning and tldr.
	assert.Len(t, caller.requests, 6)
}

func TestPipelinePlanStageSeesNumberedLines(t *testing.T) {
	caller := newScriptedCaller()
	p := testPipeline(caller)

	_, err := p.Run(context.Background(), "un\ndeux", "t")
	require.NoError(t, err)

	planReq := caller.requests[0]
	assert.Equal(t, "summary_plan", planReq.SchemaName)
	assert.NotNil(t, planReq.Schema)
	assert.Contains(t, planReq.User, "1: un")
	assert.Contains(t, planReq.User, "2: deux")
	// Derived target 1, tolerance 2 → band clamps at 1..3.
	assert.Contains(t, planReq.System, "entre 1 et 3 sujets")
}

func TestPipelineEmptyPlanFallsBack(t *testing.T) {
	caller := newScriptedCaller()
	caller.responses["diviser le contenu"] = `{"parts": []}`
	p := testPipeline(caller)

	doc, err := p.Run(context.Background(), "bonjour", "t")
	require.NoError(t, err)
	assert.NotEmpty(t, doc.Content)

	// Exactly one part-summary call, fed the whole transcript.
	var partReqs []llm.Request
	for _, req := range caller.requests {
		if strings.Contains(req.System, "une partie du résumé") {
			partReqs = append(partReqs, req)
		}
	}
	require.Len(t, partReqs, 1)
	assert.Contains(t, partReqs[0].User, "General")
	assert.Contains(t, partReqs[0].User, "bonjour")
}

func TestPipelineEmptyActionsOmitsSection(t *testing.T) {
	caller := newScriptedCaller()
	caller.responses["prochaines étapes"] = `{"actions": []}`
	p := testPipeline(caller)

	doc, err := p.Run(context.Background(), "bonjour", "t")
	require.NoError(t, err)
	assert.NotContains(t, doc.Content, "### Prochaines étapes")
	assert.False(t, strings.HasSuffix(doc.Content, "\n\n"))
}

func TestPipelineRecordsLLMCallPerStage(t *testing.T) {
	caller := newScriptedCaller()
	rec := &stageRecorder{}
	p := NewPipeline(caller, transcript.GetLocale("fr"), 2, rec, logging.NewNopLogger())

	_, err := p.Run(context.Background(), "ligne un\nligne deux\nligne trois\nligne quatre", "t")
	require.NoError(t, err)

	// Two plan parts → two part-summary calls.
	assert.Equal(t, []string{"plan", "part_summary", "part_summary", "next_steps", "cleaning", "tldr"}, rec.stages)
	assert.Zero(t, rec.failed)
}

func TestPipelineRecordsFailedLLMCall(t *testing.T) {
	caller := newScriptedCaller()
	caller.failOn = "nettoyer un résumé"
	rec := &stageRecorder{}
	p := NewPipeline(caller, transcript.GetLocale("fr"), 2, rec, logging.NewNopLogger())

	_, err := p.Run(context.Background(), "bonjour", "t")
	require.Error(t, err)
	assert.Equal(t, 1, rec.failed)
	assert.Equal(t, "cleaning", rec.stages[len(rec.stages)-1])
}

func TestPipelineMalformedPlanIsCallError(t *testing.T) {
	caller := newScriptedCaller()
	caller.responses["diviser le contenu"] = "not json"
	p := testPipeline(caller)

	_, err := p.Run(context.Background(), "bonjour", "t")
	var callErr *llm.CallError
	require.ErrorAs(t, err, &callErr)
	assert.Equal(t, "plan", callErr.Stage)
}

func TestPipelineStageFailureTagged(t *testing.T) {
	caller := newScriptedCaller()
	caller.failOn = "nettoyer un résumé"
	p := testPipeline(caller)

	_, err := p.Run(context.Background(), "bonjour", "t")
	var callErr *llm.CallError
	require.ErrorAs(t, err, &callErr)
	assert.Equal(t, "cleaning", callErr.Stage)
}
