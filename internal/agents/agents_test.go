package agents

import (
	"context"
	"errors"
	"math"
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

type stubWarehouse struct {
	points    []models.SeriesPoint
	pointsErr error
	stats     *SummaryStats
	statsErr  error
}

func (s *stubWarehouse) YearlyTotals(_ context.Context, _ models.Metric, _ models.DisasterFilter) ([]models.SeriesPoint, error) {
	return s.points, s.pointsErr
}

func (s *stubWarehouse) SummaryStats(_ context.Context, _ models.DisasterFilter) (*SummaryStats, error) {
	return s.stats, s.statsErr
}

type stubIndex struct {
	hits []IndexHit
	err  error
}

func (s *stubIndex) Search(_ context.Context, _ string, _ int) ([]IndexHit, error) {
	return s.hits, s.err
}

type stubSearcher struct {
	hits []WebHit
	err  error
}

func (s *stubSearcher) Fetch(_ context.Context, _ string) ([]WebHit, error) {
	return s.hits, s.err
}

type stubRenderer struct {
	artifactID string
	err        error
}

func (s *stubRenderer) Render(_ context.Context, _ *models.NumericResult) (string, error) {
	return s.artifactID, s.err
}

func errorCode(t *testing.T, err error) string {
	t.Helper()
	var pe *models.PipelineError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *PipelineError, got %T: %v", err, err)
	}
	return pe.Code
}

func TestForecastAgentExtendsLinearTrend(t *testing.T) {
	warehouse := &stubWarehouse{points: []models.SeriesPoint{
		{Year: 2018, Value: 10},
		{Year: 2019, Value: 20},
		{Year: 2020, Value: 30},
		{Year: 2021, Value: 40},
		{Year: 2022, Value: 50},
	}}
	agent := NewForecastAgent(warehouse, newTestLogger(t))

	result, err := agent.Invoke(context.Background(), models.NewPrompt("flood deaths forecast", nil))
	if err != nil {
		t.Fatal(err)
	}
	if result.Kind != models.ResultKindNumeric {
		t.Fatalf("Kind = %s, want numeric", result.Kind)
	}

	numeric := result.Numeric
	if numeric.ForecastFrom != 2023 {
		t.Errorf("ForecastFrom = %d, want 2023", numeric.ForecastFrom)
	}
	if len(numeric.Points) != 10 {
		t.Fatalf("got %d points, want 5 observed + 5 predicted", len(numeric.Points))
	}

	// Perfectly linear input: slope 10 per year.
	last := numeric.Points[len(numeric.Points)-1]
	if last.Year != 2027 || math.Abs(last.Value-100) > 1e-6 {
		t.Errorf("last point = %+v, want {2027 100}", last)
	}
}

func TestForecastAgentRejectsShortHistory(t *testing.T) {
	warehouse := &stubWarehouse{points: []models.SeriesPoint{
		{Year: 2020, Value: 1},
		{Year: 2021, Value: 2},
	}}
	agent := NewForecastAgent(warehouse, newTestLogger(t))

	_, err := agent.Invoke(context.Background(), models.NewPrompt("forecast", nil))
	if code := errorCode(t, err); code != "INSUFFICIENT_HISTORY" {
		t.Errorf("code = %q, want INSUFFICIENT_HISTORY", code)
	}
}

func TestLinearFitConstantSeries(t *testing.T) {
	slope, intercept := linearFit([]models.SeriesPoint{
		{Year: 2020, Value: 7},
		{Year: 2021, Value: 7},
		{Year: 2022, Value: 7},
	})
	if math.Abs(slope) > 1e-9 {
		t.Errorf("slope = %v, want 0", slope)
	}
	if math.Abs(slope*2023+intercept-7) > 1e-6 {
		t.Errorf("prediction for 2023 = %v, want 7", slope*2023+intercept)
	}
}

func TestStatisticsAgentComputesAverages(t *testing.T) {
	warehouse := &stubWarehouse{stats: &SummaryStats{
		TotalEvents:     4,
		TotalDeaths:     100,
		TotalAffected:   2000,
		TotalDamageUSD:  4e6,
		MinYear:         2010,
		MaxYear:         2020,
		CommonLocations: []string{"coastal north", "highlands"},
	}}
	agent := NewStatisticsAgent(warehouse, newTestLogger(t))

	result, err := agent.Invoke(context.Background(), models.NewPrompt("flood statistics", nil))
	if err != nil {
		t.Fatal(err)
	}

	values := make(map[string]float64)
	for _, v := range result.Numeric.Values {
		values[v.Name] = v.Value
	}
	if values["avg_deaths_per_event"] != 25 {
		t.Errorf("avg_deaths_per_event = %v, want 25", values["avg_deaths_per_event"])
	}
	if values["avg_affected_per_event"] != 500 {
		t.Errorf("avg_affected_per_event = %v, want 500", values["avg_affected_per_event"])
	}
	if values["year_range"] != 10 {
		t.Errorf("year_range = %v, want 10", values["year_range"])
	}
	if len(result.Numeric.Highlights) != 2 {
		t.Errorf("got %d highlights, want 2", len(result.Numeric.Highlights))
	}
}

func TestStatisticsAgentNoRecords(t *testing.T) {
	agent := NewStatisticsAgent(&stubWarehouse{stats: &SummaryStats{}}, newTestLogger(t))

	_, err := agent.Invoke(context.Background(), models.NewPrompt("statistics", nil))
	if code := errorCode(t, err); code != "NO_MATCHING_RECORDS" {
		t.Errorf("code = %q, want NO_MATCHING_RECORDS", code)
	}
}

func TestRetrievalAgentMapsHits(t *testing.T) {
	index := &stubIndex{hits: []IndexHit{
		{Text: "Severe flooding hit the region", Source: "report-2011.pdf", Score: 0.92},
	}}
	agent := NewRetrievalAgent(index, 5, newTestLogger(t))

	result, err := agent.Invoke(context.Background(), models.NewPrompt("flood", nil))
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Text.Snippets) != 1 {
		t.Fatalf("got %d snippets, want 1", len(result.Text.Snippets))
	}
	if result.Text.Snippets[0].Source != "report-2011.pdf" {
		t.Errorf("Source = %q", result.Text.Snippets[0].Source)
	}
}

func TestRetrievalAgentEmptyIndexIsSuccess(t *testing.T) {
	agent := NewRetrievalAgent(&stubIndex{}, 5, newTestLogger(t))

	result, err := agent.Invoke(context.Background(), models.NewPrompt("flood", nil))
	if err != nil {
		t.Fatal(err)
	}
	if result.IsFailure() {
		t.Error("empty index must yield an empty success, not a failure")
	}
	if len(result.Text.Snippets) != 0 {
		t.Errorf("got %d snippets, want 0", len(result.Text.Snippets))
	}
}

func TestWebSearchAgentFallsBackToTitle(t *testing.T) {
	searcher := &stubSearcher{hits: []WebHit{
		{Title: "Flood update", Text: "", URL: "https://example.com/a"},
		{Title: "", Text: "", URL: "https://example.com/b"},
		{Title: "Storm news", Text: "Heavy rain expected", URL: "https://example.com/c"},
	}}
	agent := NewWebSearchAgent(searcher, newTestLogger(t))

	result, err := agent.Invoke(context.Background(), models.NewPrompt("latest flood news", nil))
	if err != nil {
		t.Fatal(err)
	}

	snippets := result.Text.Snippets
	if len(snippets) != 2 {
		t.Fatalf("got %d snippets, want 2 (empty hit dropped)", len(snippets))
	}
	if snippets[0].Text != "Flood update" {
		t.Errorf("snippet text = %q, want title fallback", snippets[0].Text)
	}
	if snippets[1].Text != "Heavy rain expected" {
		t.Errorf("snippet text = %q", snippets[1].Text)
	}
}

func TestVisualizationAgentRendersChart(t *testing.T) {
	warehouse := &stubWarehouse{points: []models.SeriesPoint{
		{Year: 2019, Value: 5},
		{Year: 2020, Value: 9},
	}}
	agent := NewVisualizationAgent(warehouse, &stubRenderer{artifactID: "chart-123"}, newTestLogger(t))

	result, err := agent.Invoke(context.Background(), models.NewPrompt("chart of flood deaths", nil))
	if err != nil {
		t.Fatal(err)
	}
	if result.Kind != models.ResultKindChart {
		t.Fatalf("Kind = %s, want chart", result.Kind)
	}
	if result.Chart.ArtifactID != "chart-123" {
		t.Errorf("ArtifactID = %q", result.Chart.ArtifactID)
	}
	if result.Chart.Caption == "" {
		t.Error("chart caption should not be empty")
	}
}

func TestBuildSubjectQuery(t *testing.T) {
	tests := []struct {
		prompt string
		want   string
	}{
		{"flood in Brazil 2011 deaths", "flood in brazil 2011"},
		{"earthquake damage", "earthquake"},
		{"anything else entirely", "anything else entirely"},
	}
	for _, tt := range tests {
		got := buildSubjectQuery(models.NewPrompt(tt.prompt, nil))
		if got != tt.want {
			t.Errorf("buildSubjectQuery(%q) = %q, want %q", tt.prompt, got, tt.want)
		}
	}
}
