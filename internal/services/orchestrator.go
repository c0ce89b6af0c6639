package services

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"disaster-analysis-pipeline/internal/agents"
	"disaster-analysis-pipeline/internal/config"
	"disaster-analysis-pipeline/internal/models"
	"disaster-analysis-pipeline/internal/pkg/logger"
)

// ProgressSink receives per-agent progress updates and finished reports.
// Implemented by StateStore; both calls are best effort and never fail a
// request.
type ProgressSink interface {
	PublishAgentUpdate(ctx context.Context, update *models.AgentUpdate) error
	StoreReport(ctx context.Context, report *models.Report) error
}

// HealthChecker is anything the orchestrator can probe for liveness.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Orchestrator fans a prompt out to every applicable agent, collects their
// results under per-agent and global deadlines, and hands the settled context
// to the synthesizer. A single failing agent degrades the report; it never
// fails the request.
type Orchestrator struct {
	descriptors []models.AgentDescriptor
	agents      map[string]agents.Agent
	synthesizer *Synthesizer
	progress    ProgressSink
	health      map[string]HealthChecker
	config      config.OrchestratorConfig
	logger      *logger.Logger

	activeRequests sync.Map
	activeCount    int64
	totalRequests  int64
	completedCount int64
	failedCount    int64
}

type activeRequest struct {
	Prompt    string
	StartedAt time.Time
}

// settledResult pairs an agent id with its outcome on the collection channel.
type settledResult struct {
	agentID string
	result  *models.AgentResult
}

func NewOrchestrator(
	descriptors []models.AgentDescriptor,
	registry map[string]agents.Agent,
	synthesizer *Synthesizer,
	progress ProgressSink,
	health map[string]HealthChecker,
	cfg config.OrchestratorConfig,
	log *logger.Logger,
) (*Orchestrator, error) {
	if len(descriptors) == 0 {
		return nil, fmt.Errorf("orchestrator needs at least one agent descriptor")
	}
	for _, desc := range descriptors {
		if _, ok := registry[desc.ID]; !ok {
			return nil, fmt.Errorf("descriptor %q has no registered agent", desc.ID)
		}
	}

	return &Orchestrator{
		descriptors: descriptors,
		agents:      registry,
		synthesizer: synthesizer,
		progress:    progress,
		health:      health,
		config:      cfg,
		logger:      log,
	}, nil
}

// Analyze runs one request end to end: agent selection, concurrent
// invocation, synthesis. The only request-level failures are
// NO_APPLICABLE_AGENT and NO_USABLE_OUTPUT; everything else degrades into the
// report manifest.
func (o *Orchestrator) Analyze(ctx context.Context, requestID string, prompt *models.Prompt, deadlineOverride time.Duration) (*models.Report, error) {
	startTime := time.Now()
	atomic.AddInt64(&o.totalRequests, 1)
	atomic.AddInt64(&o.activeCount, 1)
	o.activeRequests.Store(requestID, &activeRequest{Prompt: prompt.Text, StartedAt: startTime})
	defer func() {
		o.activeRequests.Delete(requestID)
		atomic.AddInt64(&o.activeCount, -1)
	}()

	selected := o.selectAgents(prompt)
	if len(selected) == 0 {
		atomic.AddInt64(&o.failedCount, 1)
		o.logger.LogRequest(requestID, "no_applicable_agent", time.Since(startTime), nil)
		return nil, models.ErrNoApplicableAgent.WithMetadata("request_id", requestID)
	}

	sc := models.NewSynthesisContext(requestID, prompt)
	for _, desc := range selected {
		if err := sc.Reserve(desc); err != nil {
			atomic.AddInt64(&o.failedCount, 1)
			return nil, err
		}
	}

	deadline := o.config.GlobalDeadline
	if deadlineOverride > 0 && deadlineOverride < deadline {
		deadline = deadlineOverride
	}
	runCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	resultCh := make(chan settledResult, len(selected))
	for _, desc := range selected {
		go o.invokeAgent(runCtx, requestID, desc, prompt, resultCh)
	}

	o.collectResults(runCtx, requestID, sc, resultCh)

	report, err := o.synthesizer.Synthesize(sc)
	if err != nil {
		atomic.AddInt64(&o.failedCount, 1)
		o.logger.LogRequest(requestID, "synthesis_failed", time.Since(startTime), err)
		return nil, err
	}
	report.GeneratedAt = time.Now().UTC()

	o.storeReport(report)

	atomic.AddInt64(&o.completedCount, 1)
	o.logger.LogRequest(requestID, "completed", time.Since(startTime), nil)
	return report, nil
}

// selectAgents returns the descriptors whose triggers match the prompt, in
// configuration order. Configuration order is invocation order.
func (o *Orchestrator) selectAgents(prompt *models.Prompt) []models.AgentDescriptor {
	promptTokens := prompt.TokenSetOf()

	var selected []models.AgentDescriptor
	for _, desc := range o.descriptors {
		if desc.Matches(promptTokens) {
			selected = append(selected, desc)
		}
	}
	return selected
}

// invokeAgent runs one agent under its own timeout, converting every possible
// outcome (including panics) into exactly one settled result.
func (o *Orchestrator) invokeAgent(runCtx context.Context, requestID string, desc models.AgentDescriptor, prompt *models.Prompt, resultCh chan<- settledResult) {
	startTime := time.Now()
	o.publishUpdate(requestID, desc.ID, models.AgentStatusProcessing, "started", 0)

	agentCtx, cancel := context.WithTimeout(runCtx, desc.Timeout)
	defer cancel()

	var result *models.AgentResult
	func() {
		defer func() {
			if r := recover(); r != nil {
				o.logger.Error("Agent panicked",
					"request_id", requestID,
					"agent", desc.ID,
					"panic", fmt.Sprintf("%v", r),
					"stack", string(debug.Stack()))
				result = models.NewFailureResult(desc.ID, models.FailureReasonPanic)
			}
		}()

		invoked, err := o.agents[desc.ID].Invoke(agentCtx, prompt)
		if err != nil {
			result = models.NewFailureResult(desc.ID, failureReason(err, agentCtx, runCtx))
			return
		}
		result = invoked
	}()

	result.Duration = time.Since(startTime)
	o.logger.LogAgent(requestID, desc.ID, "settled", result.Duration, nil)

	if result.IsFailure() {
		o.publishUpdate(requestID, desc.ID, models.AgentStatusFailed, result.Failure.Reason, result.Duration)
	} else {
		o.publishUpdate(requestID, desc.ID, models.AgentStatusCompleted, string(result.Kind), result.Duration)
	}

	resultCh <- settledResult{agentID: desc.ID, result: result}
}

// failureReason maps an invocation error to a manifest reason. An expired
// per-agent deadline is a timeout; an expired global deadline is
// deadline-exceeded even when the agent surfaced it as its own error.
func failureReason(err error, agentCtx, runCtx context.Context) string {
	if runCtx.Err() != nil {
		return models.FailureReasonDeadline
	}
	if agentCtx.Err() != nil {
		return models.FailureReasonTimeout
	}

	var pe *models.PipelineError
	if errors.As(err, &pe) {
		if pe.Type == models.ErrorTypeTimeout {
			return models.FailureReasonTimeout
		}
		return pe.Code
	}
	return "invocation-error"
}

// collectResults settles every reserved slot: agent results as they arrive,
// then deadline-exceeded failures for whatever is still outstanding after the
// global deadline plus a short abandon grace.
func (o *Orchestrator) collectResults(runCtx context.Context, requestID string, sc *models.SynthesisContext, resultCh <-chan settledResult) {
	pending := len(sc.AgentIDs())
	var graceCh <-chan time.Time

	for pending > 0 {
		select {
		case settled := <-resultCh:
			if err := sc.Settle(settled.agentID, settled.result); err != nil {
				// Write-once violation; the duplicate entry is dropped.
				o.logger.Error("Dropped duplicate agent result",
					"request_id", requestID,
					"agent", settled.agentID,
					"error", err.Error())
				continue
			}
			pending--

		case <-runCtx.Done():
			if graceCh == nil {
				timer := time.NewTimer(o.config.AbandonGrace)
				defer timer.Stop()
				graceCh = timer.C
				continue
			}
			// Cancelled again with the grace timer already armed; keep
			// draining until it fires.
			select {
			case settled := <-resultCh:
				if err := sc.Settle(settled.agentID, settled.result); err == nil {
					pending--
				}
			case <-graceCh:
				o.abandonPending(requestID, sc)
				return
			}

		case <-graceCh:
			o.abandonPending(requestID, sc)
			return
		}
	}
}

// abandonPending force-settles every still-unsettled slot as
// deadline-exceeded. The agent goroutines keep running until their contexts
// unwind but can no longer touch the context entries.
func (o *Orchestrator) abandonPending(requestID string, sc *models.SynthesisContext) {
	for _, agentID := range sc.AgentIDs() {
		if sc.Settled(agentID) {
			continue
		}
		o.logger.Warn("Abandoning agent past global deadline",
			"request_id", requestID,
			"agent", agentID)
		_ = sc.Settle(agentID, models.NewFailureResult(agentID, models.FailureReasonDeadline))
		o.publishUpdate(requestID, agentID, models.AgentStatusFailed, models.FailureReasonDeadline, 0)
	}
}

// publishUpdate streams a progress event, best effort. Publishing uses its
// own short deadline so a slow store cannot hold up a request.
func (o *Orchestrator) publishUpdate(requestID, agentID string, status models.AgentStatus, message string, duration time.Duration) {
	if o.progress == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := o.progress.PublishAgentUpdate(ctx, &models.AgentUpdate{
		RequestID: requestID,
		AgentName: agentID,
		Status:    status,
		Message:   message,
		Duration:  duration,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		o.logger.Warn("Failed to publish agent update",
			"request_id", requestID,
			"agent", agentID,
			"error", err.Error())
	}
}

// storeReport caches the finished report for replay, best effort.
func (o *Orchestrator) storeReport(report *models.Report) {
	if o.progress == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := o.progress.StoreReport(ctx, report); err != nil {
		o.logger.Warn("Failed to store report",
			"request_id", report.RequestID,
			"error", err.Error())
	}
}

// GetStats returns a snapshot of orchestrator counters for the stats endpoint.
func (o *Orchestrator) GetStats() map[string]any {
	active := make([]map[string]any, 0)
	o.activeRequests.Range(func(key, value any) bool {
		req := value.(*activeRequest)
		active = append(active, map[string]any{
			"request_id":  key,
			"prompt":      req.Prompt,
			"running_for": time.Since(req.StartedAt).String(),
		})
		return true
	})

	return map[string]any{
		"total_requests":     atomic.LoadInt64(&o.totalRequests),
		"completed_requests": atomic.LoadInt64(&o.completedCount),
		"failed_requests":    atomic.LoadInt64(&o.failedCount),
		"active_requests":    atomic.LoadInt64(&o.activeCount),
		"active_detail":      active,
		"agents":             len(o.descriptors),
	}
}

// HealthCheck probes every registered collaborator and reports per-service
// status.
func (o *Orchestrator) HealthCheck(ctx context.Context) map[string]string {
	statuses := make(map[string]string, len(o.health))
	for name, checker := range o.health {
		if err := checker.HealthCheck(ctx); err != nil {
			statuses[name] = err.Error()
		} else {
			statuses[name] = "healthy"
		}
	}
	return statuses
}

// Close waits for in-flight requests to drain, up to the given timeout.
func (o *Orchestrator) Close(timeout time.Duration) error {
	o.logger.Info("Orchestrator shutting down",
		"active_requests", atomic.LoadInt64(&o.activeCount))

	deadline := time.After(timeout)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		if atomic.LoadInt64(&o.activeCount) == 0 {
			o.logger.Info("Orchestrator drained")
			return nil
		}
		select {
		case <-ticker.C:
		case <-deadline:
			remaining := atomic.LoadInt64(&o.activeCount)
			o.logger.Warn("Orchestrator shutdown timed out", "abandoned_requests", remaining)
			return fmt.Errorf("shutdown timed out with %d active requests", remaining)
		}
	}
}
