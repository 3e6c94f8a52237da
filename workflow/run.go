package workflow

import (
	"maps"
	"time"
)

// Input returns the input handed to node id. Roots receive the run input;
// other nodes receive the union of their predecessors' outputs, applied in
// connection order so later connections overwrite earlier keys.
func (p *Plan) Input(id string, input map[string]any, steps map[string]StepResult) map[string]any {
	if p.IsRoot(id) {
		return maps.Clone(input)
	}

	merged := make(map[string]any)
	for _, pred := range p.preds[id] {
		maps.Copy(merged, steps[pred].Output)
	}
	return merged
}

// Blocked returns the first predecessor of id that did not complete.
func (p *Plan) Blocked(id string, steps map[string]StepResult) (string, bool) {
	for _, pred := range p.preds[id] {
		if r, ok := steps[pred]; !ok || r.Status != StepCompleted {
			return pred, true
		}
	}
	return "", false
}

// Skip records id as skipped at the given time.
func (p *Plan) Skip(steps map[string]StepResult, id string, status StepStatus, reason string, at time.Time) {
	steps[id] = StepResult{
		NodeID:     id,
		Kind:       p.nodes[id].Kind,
		Status:     status,
		Error:      reason,
		StartedAt:  at,
		FinishedAt: at,
	}
}

// Finalize derives the terminal status of s from its step results.
//
// A cancelled run ends Cancelled. Otherwise the run fails when failFast is
// set and any node failed, or when no terminal node completed; in every
// other case it completes, flagged Partial with the unfinished terminals
// listed in FailedBranches. Output maps each completed terminal to its
// output and Error carries the earliest step failure.
func (p *Plan) Finalize(s *ExecutionState, failFast, cancelled bool, now time.Time) {
	for id := range p.nodes {
		if _, ok := s.Steps[id]; ok {
			continue
		}
		status := StepSkipped
		if cancelled {
			status = StepCancelled
		}
		p.Skip(s.Steps, id, status, "", now)
	}

	output := make(map[string]any)
	var unfinished []string
	for _, id := range p.leaves {
		r := s.Steps[id]
		if r.Status == StepCompleted {
			output[id] = r.Output
			continue
		}
		unfinished = append(unfinished, id)
	}

	first, failed := p.firstFailure(s.Steps)

	s.FinishedAt = &now
	s.Partial = false
	s.FailedBranches = nil
	s.Error = nil
	if len(output) > 0 {
		s.Output = output
	}

	switch {
	case cancelled:
		s.Status = StatusCancelled
	case failed && failFast, len(output) == 0:
		s.Status = StatusFailed
		s.Output = nil
		s.Error = &ErrorInfo{
			Kind:    ErrorStepFailure,
			Message: "no terminal step completed",
		}
		if failed {
			s.Error.Message = first.Error
			s.Error.NodeID = first.NodeID
		}
	default:
		s.Status = StatusCompleted
		if len(unfinished) > 0 {
			s.Partial = true
			s.FailedBranches = unfinished
		}
	}
}

func (p *Plan) firstFailure(steps map[string]StepResult) (StepResult, bool) {
	var (
		first StepResult
		found bool
	)
	for _, r := range steps {
		if r.Status != StepFailed {
			continue
		}
		switch {
		case !found,
			r.FinishedAt.Before(first.FinishedAt),
			r.FinishedAt.Equal(first.FinishedAt) && p.order[r.NodeID] < p.order[first.NodeID]:
			first, found = r, true
		}
	}
	return first, found
}
