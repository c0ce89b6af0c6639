package services

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"disaster-analysis-pipeline/internal/models"
	"disaster-analysis-pipeline/internal/pkg/logger"
)

// Scorer ranks a snippet's topical relevance to the prompt. It is a
// replaceable strategy: the default counts shared normalized tokens, and an
// embedding-similarity implementation can be swapped in without touching the
// orchestrator.
type Scorer interface {
	Score(promptTokens map[string]struct{}, text string) float64
}

// KeywordScorer scores by keyword overlap: the number of distinct normalized
// prompt tokens occurring in the snippet.
type KeywordScorer struct{}

func (KeywordScorer) Score(promptTokens map[string]struct{}, text string) float64 {
	matched := make(map[string]struct{})
	for _, token := range models.Tokens(text) {
		if _, ok := promptTokens[token]; ok {
			matched[token] = struct{}{}
		}
	}
	return float64(len(matched))
}

// Synthesizer merges a settled SynthesisContext into one ordered report.
// Synthesis is deterministic: the same context always produces the same
// report.
type Synthesizer struct {
	scorer Scorer
	logger *logger.Logger
}

func NewSynthesizer(scorer Scorer, log *logger.Logger) *Synthesizer {
	if scorer == nil {
		scorer = KeywordScorer{}
	}
	return &Synthesizer{
		scorer: scorer,
		logger: log,
	}
}

// candidate is a section plus the sort keys that are dropped from the final
// report.
type candidate struct {
	section    models.Section
	priority   float64
	agentOrder int
	itemOrder  int
	normalized string
}

// Synthesize builds the final report from the per-agent results. Failure
// entries are dropped into the manifest; if nothing else remains the request
// has no usable output.
func (s *Synthesizer) Synthesize(sc *models.SynthesisContext) (*models.Report, error) {
	startTime := time.Now()
	promptTokens := sc.Prompt.TokenSetOf()

	manifest := models.Manifest{
		Contributed: []string{},
		Failed:      map[string]string{},
	}

	var candidates []candidate
	usable := 0

	for agentOrder, agentID := range sc.AgentIDs() {
		result, ok := sc.Result(agentID)
		if !ok {
			// The orchestrator settles every slot before synthesis;
			// an unsettled slot here is a bug upstream.
			return nil, models.NewInternalError("SLOT_NOT_SETTLED",
				fmt.Sprintf("agent %s never settled", agentID))
		}

		if result.IsFailure() {
			manifest.Failed[agentID] = result.Failure.Reason
			continue
		}

		usable++
		manifest.Contributed = append(manifest.Contributed, agentID)

		desc, _ := sc.Descriptor(agentID)
		candidates = append(candidates, s.resultCandidates(result, desc, agentOrder, promptTokens)...)
	}

	if usable == 0 {
		return nil, models.ErrNoUsableOutput.WithMetadata("request_id", sc.RequestID)
	}

	candidates = dedupeCandidates(candidates)

	// Stable: equal keys keep agent invocation order, then item order.
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].section.Relevance != candidates[j].section.Relevance {
			return candidates[i].section.Relevance > candidates[j].section.Relevance
		}
		return candidates[i].priority > candidates[j].priority
	})

	sections := make([]models.Section, 0, len(candidates))
	for _, cand := range candidates {
		sections = append(sections, cand.section)
	}

	report := &models.Report{
		RequestID: sc.RequestID,
		Prompt:    sc.Prompt.Text,
		Sections:  sections,
		Manifest:  manifest,
	}

	s.logger.LogService("synthesizer", "synthesize", time.Since(startTime), logger.Fields{
		"request_id":  sc.RequestID,
		"sections":    len(sections),
		"contributed": len(manifest.Contributed),
		"failed":      len(manifest.Failed),
	}, nil)

	return report, nil
}

// resultCandidates turns one successful agent result into scored section
// candidates. Text snippets are keyword-scored; numeric and chart results
// carry the agent's priority weight as a fixed relevance.
func (s *Synthesizer) resultCandidates(result *models.AgentResult, desc models.AgentDescriptor, agentOrder int, promptTokens map[string]struct{}) []candidate {
	switch result.Kind {
	case models.ResultKindText:
		candidates := make([]candidate, 0, len(result.Text.Snippets))
		for itemOrder, snippet := range result.Text.Snippets {
			candidates = append(candidates, candidate{
				section: models.Section{
					Kind:      models.ResultKindText,
					AgentIDs:  []string{result.AgentID},
					Relevance: s.scorer.Score(promptTokens, snippet.Text),
					Body:      snippet.Text,
					Sources:   []string{snippet.Source},
				},
				priority:   desc.Priority,
				agentOrder: agentOrder,
				itemOrder:  itemOrder,
				normalized: models.NormalizeText(snippet.Text),
			})
		}
		return candidates

	case models.ResultKindNumeric:
		return []candidate{{
			section: models.Section{
				Kind:      models.ResultKindNumeric,
				AgentIDs:  []string{result.AgentID},
				Relevance: desc.Priority,
				Body:      renderNumericBody(result.Numeric),
				Sources:   []string{result.Numeric.Source},
				Numeric:   result.Numeric,
			},
			priority:   desc.Priority,
			agentOrder: agentOrder,
		}}

	case models.ResultKindChart:
		return []candidate{{
			section: models.Section{
				Kind:      models.ResultKindChart,
				AgentIDs:  []string{result.AgentID},
				Relevance: desc.Priority,
				Body:      result.Chart.Caption,
				Chart:     result.Chart,
			},
			priority:   desc.Priority,
			agentOrder: agentOrder,
		}}

	default:
		return nil
	}
}

// dedupeCandidates collapses text candidates with identical normalized
// bodies. The higher-scored instance survives; on ties the earlier one does.
// Provenance merges either way.
func dedupeCandidates(candidates []candidate) []candidate {
	kept := make([]candidate, 0, len(candidates))
	byNormalized := make(map[string]int)

	for _, cand := range candidates {
		if cand.section.Kind != models.ResultKindText || cand.normalized == "" {
			kept = append(kept, cand)
			continue
		}

		idx, seen := byNormalized[cand.normalized]
		if !seen {
			byNormalized[cand.normalized] = len(kept)
			kept = append(kept, cand)
			continue
		}

		existing := &kept[idx]
		if cand.section.Relevance > existing.section.Relevance {
			sources := mergeStrings(existing.section.Sources, cand.section.Sources)
			agentIDs := mergeStrings(existing.section.AgentIDs, cand.section.AgentIDs)
			existing.section = cand.section
			existing.section.Sources = sources
			existing.section.AgentIDs = agentIDs
			existing.priority = cand.priority
			existing.agentOrder = cand.agentOrder
			existing.itemOrder = cand.itemOrder
		} else {
			existing.section.Sources = mergeStrings(existing.section.Sources, cand.section.Sources)
			existing.section.AgentIDs = mergeStrings(existing.section.AgentIDs, cand.section.AgentIDs)
		}
	}

	return kept
}

func mergeStrings(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	merged := make([]string, 0, len(a)+len(b))
	for _, value := range append(append([]string{}, a...), b...) {
		if value == "" {
			continue
		}
		if _, dup := seen[value]; dup {
			continue
		}
		seen[value] = struct{}{}
		merged = append(merged, value)
	}
	return merged
}

// renderNumericBody formats a numeric result as deterministic plain text.
func renderNumericBody(numeric *models.NumericResult) string {
	var lines []string

	for _, value := range numeric.Values {
		lines = append(lines, fmt.Sprintf("%s: %s", nameLabel(value.Name), formatValue(value.Value)))
	}

	if len(numeric.Points) > 0 {
		first := numeric.Points[0]
		last := numeric.Points[len(numeric.Points)-1]
		label := models.Metric(numeric.Metric).Label()
		if numeric.ForecastFrom > 0 {
			lines = append(lines, fmt.Sprintf("%s: observed %d-%d, forecast %d-%d",
				label, first.Year, numeric.ForecastFrom-1, numeric.ForecastFrom, last.Year))
		} else {
			lines = append(lines, fmt.Sprintf("%s: %d-%d", label, first.Year, last.Year))
		}
		for _, point := range numeric.Points {
			marker := ""
			if numeric.ForecastFrom > 0 && point.Year >= numeric.ForecastFrom {
				marker = " (forecast)"
			}
			lines = append(lines, fmt.Sprintf("  %d: %s%s", point.Year, formatValue(point.Value), marker))
		}
	}

	if len(numeric.Highlights) > 0 {
		lines = append(lines, "Most affected locations: "+strings.Join(numeric.Highlights, ", "))
	}

	return strings.Join(lines, "\n")
}

func nameLabel(name string) string {
	return models.Metric(name).Label()
}

func formatValue(value float64) string {
	if value == float64(int64(value)) {
		return fmt.Sprintf("%d", int64(value))
	}
	return fmt.Sprintf("%.2f", value)
}
