package services

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"disaster-analysis-pipeline/internal/config"
	"disaster-analysis-pipeline/internal/models"
	"disaster-analysis-pipeline/internal/pkg/logger"
)

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(config.LogConfig{Level: "error", Format: "text", Output: "stderr"})
	if err != nil {
		t.Fatal(err)
	}
	return log
}

func reserveAll(t *testing.T, sc *models.SynthesisContext, descriptors ...models.AgentDescriptor) {
	t.Helper()
	for _, desc := range descriptors {
		if err := sc.Reserve(desc); err != nil {
			t.Fatal(err)
		}
	}
}

func settle(t *testing.T, sc *models.SynthesisContext, result *models.AgentResult) {
	t.Helper()
	if err := sc.Settle(result.AgentID, result); err != nil {
		t.Fatal(err)
	}
}

func TestSynthesizeOrdersByRelevanceThenPriority(t *testing.T) {
	sc := models.NewSynthesisContext("req-1", models.NewPrompt("flood risk forecast for brazil", nil))
	reserveAll(t, sc,
		models.AgentDescriptor{ID: models.AgentRetrieval, Priority: 3, AlwaysOn: true},
		models.AgentDescriptor{ID: models.AgentForecast, Priority: 2},
		models.AgentDescriptor{ID: models.AgentWebSearch, Priority: 1},
	)

	settle(t, sc, models.NewTextResult(models.AgentRetrieval, []models.TextSnippet{
		// Shares flood, risk, brazil with the prompt: relevance 3.
		{Text: "Flood risk rising across Brazil", Source: "report-a"},
		// Shares nothing: relevance 0.
		{Text: "General weather observations", Source: "report-b"},
	}))
	settle(t, sc, models.NewNumericResult(models.AgentForecast, &models.NumericResult{
		Metric: "total_deaths",
		Source: "warehouse",
		Points: []models.SeriesPoint{{Year: 2020, Value: 10}, {Year: 2021, Value: 12}},
	}))
	settle(t, sc, models.NewFailureResult(models.AgentWebSearch, models.FailureReasonTimeout))

	report, err := NewSynthesizer(nil, newTestLogger(t)).Synthesize(sc)
	if err != nil {
		t.Fatal(err)
	}

	if len(report.Sections) != 3 {
		t.Fatalf("got %d sections, want 3", len(report.Sections))
	}

	relevances := []float64{
		report.Sections[0].Relevance,
		report.Sections[1].Relevance,
		report.Sections[2].Relevance,
	}
	if !reflect.DeepEqual(relevances, []float64{3, 2, 0}) {
		t.Errorf("relevances = %v, want [3 2 0]", relevances)
	}
	if report.Sections[1].Kind != models.ResultKindNumeric {
		t.Errorf("middle section kind = %s, want numeric (priority weight)", report.Sections[1].Kind)
	}

	if !reflect.DeepEqual(report.Manifest.Contributed, []string{models.AgentRetrieval, models.AgentForecast}) {
		t.Errorf("contributed = %v", report.Manifest.Contributed)
	}
	if report.Manifest.Failed[models.AgentWebSearch] != models.FailureReasonTimeout {
		t.Errorf("failed = %v", report.Manifest.Failed)
	}
}

func TestSynthesizeTieBreaksByPriorityThenInvocationOrder(t *testing.T) {
	sc := models.NewSynthesisContext("req-1", models.NewPrompt("flood", nil))
	reserveAll(t, sc,
		models.AgentDescriptor{ID: models.AgentWebSearch, Priority: 1},
		models.AgentDescriptor{ID: models.AgentRetrieval, Priority: 3},
	)

	// Both snippets score 1; the higher-priority agent must come first even
	// though it was invoked second.
	settle(t, sc, models.NewTextResult(models.AgentWebSearch, []models.TextSnippet{
		{Text: "flood warnings issued", Source: "web"},
	}))
	settle(t, sc, models.NewTextResult(models.AgentRetrieval, []models.TextSnippet{
		{Text: "flood archives opened", Source: "index"},
	}))

	report, err := NewSynthesizer(nil, newTestLogger(t)).Synthesize(sc)
	if err != nil {
		t.Fatal(err)
	}

	if report.Sections[0].AgentIDs[0] != models.AgentRetrieval {
		t.Errorf("first section from %v, want retrieval (higher priority)", report.Sections[0].AgentIDs)
	}
	if report.Sections[1].AgentIDs[0] != models.AgentWebSearch {
		t.Errorf("second section from %v, want websearch", report.Sections[1].AgentIDs)
	}
}

func TestSynthesizeDeduplicatesIdenticalText(t *testing.T) {
	sc := models.NewSynthesisContext("req-1", models.NewPrompt("flood in brazil", nil))
	reserveAll(t, sc,
		models.AgentDescriptor{ID: models.AgentRetrieval, Priority: 3},
		models.AgentDescriptor{ID: models.AgentWebSearch, Priority: 1},
	)

	// Same text up to case and punctuation; one section with merged sources.
	settle(t, sc, models.NewTextResult(models.AgentRetrieval, []models.TextSnippet{
		{Text: "Flood in Brazil!", Source: "report-a"},
	}))
	settle(t, sc, models.NewTextResult(models.AgentWebSearch, []models.TextSnippet{
		{Text: "flood in   brazil", Source: "https://example.com/news"},
	}))

	report, err := NewSynthesizer(nil, newTestLogger(t)).Synthesize(sc)
	if err != nil {
		t.Fatal(err)
	}

	if len(report.Sections) != 1 {
		t.Fatalf("got %d sections, want 1 after dedupe", len(report.Sections))
	}
	section := report.Sections[0]
	if !reflect.DeepEqual(section.Sources, []string{"report-a", "https://example.com/news"}) {
		t.Errorf("sources = %v, want both merged", section.Sources)
	}
	if !reflect.DeepEqual(section.AgentIDs, []string{models.AgentRetrieval, models.AgentWebSearch}) {
		t.Errorf("agent ids = %v, want both merged", section.AgentIDs)
	}
}

func TestSynthesizeAllFailed(t *testing.T) {
	sc := models.NewSynthesisContext("req-1", models.NewPrompt("flood", nil))
	reserveAll(t, sc,
		models.AgentDescriptor{ID: models.AgentRetrieval, Priority: 3},
		models.AgentDescriptor{ID: models.AgentForecast, Priority: 2},
	)
	settle(t, sc, models.NewFailureResult(models.AgentRetrieval, models.FailureReasonTimeout))
	settle(t, sc, models.NewFailureResult(models.AgentForecast, models.FailureReasonPanic))

	_, err := NewSynthesizer(nil, newTestLogger(t)).Synthesize(sc)
	if !errors.Is(err, models.ErrNoUsableOutput) {
		t.Errorf("err = %v, want ErrNoUsableOutput", err)
	}
}

func TestSynthesizeEmptySuccessYieldsEmptyReport(t *testing.T) {
	sc := models.NewSynthesisContext("req-1", models.NewPrompt("flood", nil))
	reserveAll(t, sc, models.AgentDescriptor{ID: models.AgentRetrieval, Priority: 3, AlwaysOn: true})

	// An empty hit list is still a successful contribution.
	settle(t, sc, models.NewTextResult(models.AgentRetrieval, nil))

	report, err := NewSynthesizer(nil, newTestLogger(t)).Synthesize(sc)
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Sections) != 0 {
		t.Errorf("got %d sections, want 0", len(report.Sections))
	}
	if !reflect.DeepEqual(report.Manifest.Contributed, []string{models.AgentRetrieval}) {
		t.Errorf("contributed = %v", report.Manifest.Contributed)
	}
}

func TestSynthesizeIsIdempotent(t *testing.T) {
	sc := models.NewSynthesisContext("req-1", models.NewPrompt("flood risk in peru", nil))
	reserveAll(t, sc,
		models.AgentDescriptor{ID: models.AgentRetrieval, Priority: 3},
		models.AgentDescriptor{ID: models.AgentStatistics, Priority: 2},
	)
	settle(t, sc, models.NewTextResult(models.AgentRetrieval, []models.TextSnippet{
		{Text: "Flood risk remains elevated in Peru", Source: "report-a"},
		{Text: "Unrelated archive entry", Source: "report-b"},
	}))
	settle(t, sc, models.NewNumericResult(models.AgentStatistics, &models.NumericResult{
		Metric: "summary_statistics",
		Source: "warehouse",
		Values: []models.NamedValue{{Name: "total_events", Value: 12}},
	}))

	synthesizer := NewSynthesizer(nil, newTestLogger(t))
	first, err := synthesizer.Synthesize(sc)
	if err != nil {
		t.Fatal(err)
	}
	second, err := synthesizer.Synthesize(sc)
	if err != nil {
		t.Fatal(err)
	}

	if !reflect.DeepEqual(first, second) {
		t.Error("re-running synthesis on the same context produced a different report")
	}
}

func TestSynthesizeFailsOnUnsettledSlot(t *testing.T) {
	sc := models.NewSynthesisContext("req-1", models.NewPrompt("flood", nil))
	reserveAll(t, sc, models.AgentDescriptor{ID: models.AgentRetrieval, Priority: 3})

	_, err := NewSynthesizer(nil, newTestLogger(t)).Synthesize(sc)
	if err == nil {
		t.Fatal("synthesis over an unsettled context must fail")
	}
}

func TestKeywordScorerCountsDistinctOverlap(t *testing.T) {
	promptTokens := models.TokenSet("flood risk in brazil")
	scorer := KeywordScorer{}

	if got := scorer.Score(promptTokens, "Flood flood FLOOD"); got != 1 {
		t.Errorf("repeated token score = %v, want 1", got)
	}
	if got := scorer.Score(promptTokens, "flood risk brazil update"); got != 3 {
		t.Errorf("score = %v, want 3", got)
	}
	if got := scorer.Score(promptTokens, "nothing related"); got != 0 {
		t.Errorf("score = %v, want 0", got)
	}
}

func TestRenderNumericBodyMarksForecastYears(t *testing.T) {
	body := renderNumericBody(&models.NumericResult{
		Metric:       "total_deaths",
		Source:       "warehouse",
		Points:       []models.SeriesPoint{{Year: 2021, Value: 10}, {Year: 2022, Value: 20}, {Year: 2023, Value: 30}},
		ForecastFrom: 2023,
	})

	if !containsLine(body, "  2023: 30 (forecast)") {
		t.Errorf("body missing forecast marker:\n%s", body)
	}
	if containsLine(body, "  2022: 20 (forecast)") {
		t.Errorf("observed year marked as forecast:\n%s", body)
	}
}

func containsLine(body, line string) bool {
	for _, l := range strings.Split(body, "\n") {
		if l == line {
			return true
		}
	}
	return false
}
