package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Section is one ordered unit of the final report. Sections are sorted by
// descending relevance; ties keep agent priority then invocation order.
type Section struct {
	Kind      ResultKind `json:"kind"`
	AgentIDs  []string   `json:"agent_ids"`
	Relevance float64    `json:"relevance"`
	Body      string     `json:"body"`
	Sources   []string   `json:"sources,omitempty"`

	Numeric *NumericResult `json:"numeric,omitempty"`
	Chart   *ChartRef      `json:"chart,omitempty"`
}

// Manifest records which agents contributed to a report and which failed,
// for observability.
type Manifest struct {
	Contributed []string          `json:"contributed"`
	Failed      map[string]string `json:"failed,omitempty"`
}

type Report struct {
	RequestID   string    `json:"request_id"`
	Prompt      string    `json:"prompt"`
	Sections    []Section `json:"sections"`
	Manifest    Manifest  `json:"manifest"`
	GeneratedAt time.Time `json:"generated_at"`
}

// SynthesisContext accumulates one AgentResult per applicable agent for a
// single request. Slots are pre-reserved by the orchestrator in invocation
// order; each slot is write-once, no agent may overwrite another's entry.
type SynthesisContext struct {
	RequestID string
	Prompt    *Prompt

	order       []string
	descriptors map[string]AgentDescriptor
	results     map[string]*AgentResult
}

func NewSynthesisContext(requestID string, prompt *Prompt) *SynthesisContext {
	return &SynthesisContext{
		RequestID:   requestID,
		Prompt:      prompt,
		descriptors: make(map[string]AgentDescriptor),
		results:     make(map[string]*AgentResult),
	}
}

// Reserve registers a slot for an applicable agent. Slot order is invocation
// order and drives tie-breaking during synthesis.
func (sc *SynthesisContext) Reserve(desc AgentDescriptor) error {
	if _, exists := sc.descriptors[desc.ID]; exists {
		return NewInternalError("SLOT_ALREADY_RESERVED",
			fmt.Sprintf("slot for agent %s already reserved", desc.ID))
	}
	sc.order = append(sc.order, desc.ID)
	sc.descriptors[desc.ID] = desc
	return nil
}

// Settle writes an agent's result into its reserved slot, exactly once.
func (sc *SynthesisContext) Settle(agentID string, result *AgentResult) error {
	if _, reserved := sc.descriptors[agentID]; !reserved {
		return NewInternalError("SLOT_NOT_RESERVED",
			fmt.Sprintf("no slot reserved for agent %s", agentID))
	}
	if _, settled := sc.results[agentID]; settled {
		return NewInternalError("SLOT_ALREADY_SETTLED",
			fmt.Sprintf("slot for agent %s already settled", agentID))
	}
	sc.results[agentID] = result
	return nil
}

func (sc *SynthesisContext) Settled(agentID string) bool {
	_, ok := sc.results[agentID]
	return ok
}

// AgentIDs returns the reserved slots in invocation order.
func (sc *SynthesisContext) AgentIDs() []string {
	return append([]string(nil), sc.order...)
}

func (sc *SynthesisContext) Descriptor(agentID string) (AgentDescriptor, bool) {
	desc, ok := sc.descriptors[agentID]
	return desc, ok
}

func (sc *SynthesisContext) Result(agentID string) (*AgentResult, bool) {
	result, ok := sc.results[agentID]
	return result, ok
}

// Results returns settled entries in invocation order. Unsettled slots are
// skipped; the orchestrator guarantees every slot is settled before synthesis.
func (sc *SynthesisContext) Results() []*AgentResult {
	results := make([]*AgentResult, 0, len(sc.order))
	for _, agentID := range sc.order {
		if result, ok := sc.results[agentID]; ok {
			results = append(results, result)
		}
	}
	return results
}

// AgentUpdate is a per-agent progress event streamed during a request.
type AgentUpdate struct {
	RequestID string        `json:"request_id"`
	AgentName string        `json:"agent_name"`
	Status    AgentStatus   `json:"status"`
	Message   string        `json:"message"`
	Duration  time.Duration `json:"duration,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

type AgentStatus string

const (
	AgentStatusProcessing AgentStatus = "processing"
	AgentStatusCompleted  AgentStatus = "completed"
	AgentStatusFailed     AgentStatus = "failed"
)

// AnalyzeRequest is the caller-facing request body.
type AnalyzeRequest struct {
	Prompt     string   `json:"prompt" binding:"required"`
	Tags       []string `json:"tags,omitempty"`
	DeadlineMS int      `json:"deadline_ms,omitempty"`
}

type AnalyzeResponse struct {
	RequestID   string  `json:"request_id"`
	Status      string  `json:"status"`
	Message     string  `json:"message,omitempty"`
	Report      *Report `json:"report,omitempty"`
	TotalTimeMS float64 `json:"total_time_ms"`
}

func GenerateRequestID() string {
	return uuid.New().String()
}
