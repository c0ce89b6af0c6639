package models

import "time"

// ResultKind discriminates the AgentResult union. Closed set: agents produce
// exactly one of these per invocation.
type ResultKind string

const (
	ResultKindText    ResultKind = "text"
	ResultKindNumeric ResultKind = "numeric"
	ResultKindChart   ResultKind = "chart"
	ResultKindFailure ResultKind = "failure"
)

// AgentResult is the typed partial result of a single agent invocation.
// Exactly one of Text, Numeric, Chart or Failure is set, matching Kind.
type AgentResult struct {
	AgentID  string         `json:"agent_id"`
	Kind     ResultKind     `json:"kind"`
	Text     *TextResult    `json:"text,omitempty"`
	Numeric  *NumericResult `json:"numeric,omitempty"`
	Chart    *ChartRef      `json:"chart,omitempty"`
	Failure  *Failure       `json:"failure,omitempty"`
	Duration time.Duration  `json:"duration_ms,omitempty"`
}

type TextResult struct {
	Snippets []TextSnippet `json:"snippets"`
}

type TextSnippet struct {
	Text   string  `json:"text"`
	Source string  `json:"source"`
	Score  float64 `json:"score,omitempty"`
}

type NumericResult struct {
	Metric string        `json:"metric"`
	Unit   string        `json:"unit,omitempty"`
	Source string        `json:"source"`
	Points []SeriesPoint `json:"points,omitempty"`
	Values []NamedValue  `json:"values,omitempty"`

	// Highlights carries non-numeric context such as frequently hit
	// locations.
	Highlights []string `json:"highlights,omitempty"`

	// ForecastFrom is the first year of predicted (as opposed to observed)
	// points, zero when the series is purely historical.
	ForecastFrom int `json:"forecast_from,omitempty"`
}

type SeriesPoint struct {
	Year  int     `json:"year"`
	Value float64 `json:"value"`
}

type NamedValue struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

type ChartRef struct {
	ArtifactID string `json:"artifact_id"`
	Caption    string `json:"caption,omitempty"`
}

type Failure struct {
	AgentID string `json:"agent_id"`
	Reason  string `json:"reason"`
}

const (
	FailureReasonTimeout  = "timeout"
	FailureReasonDeadline = "deadline-exceeded"
	FailureReasonPanic    = "panic"
)

func NewTextResult(agentID string, snippets []TextSnippet) *AgentResult {
	return &AgentResult{
		AgentID: agentID,
		Kind:    ResultKindText,
		Text:    &TextResult{Snippets: snippets},
	}
}

func NewNumericResult(agentID string, numeric *NumericResult) *AgentResult {
	return &AgentResult{
		AgentID: agentID,
		Kind:    ResultKindNumeric,
		Numeric: numeric,
	}
}

func NewChartResult(agentID string, chart *ChartRef) *AgentResult {
	return &AgentResult{
		AgentID: agentID,
		Kind:    ResultKindChart,
		Chart:   chart,
	}
}

func NewFailureResult(agentID, reason string) *AgentResult {
	return &AgentResult{
		AgentID: agentID,
		Kind:    ResultKindFailure,
		Failure: &Failure{AgentID: agentID, Reason: reason},
	}
}

func (r *AgentResult) IsFailure() bool {
	return r.Kind == ResultKindFailure
}
