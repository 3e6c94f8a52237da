package agents

import (
	"slices"
	"sync"

	"github.com/google/uuid"
)

// liveRun is the in-memory state of a run while its agent call is open.
type liveRun struct {
	mu  sync.Mutex
	run Run
}

func (l *liveRun) append(msg string) {
	l.mu.Lock()
	l.run.Progress = append(l.run.Progress, msg)
	l.mu.Unlock()
}

func (l *liveRun) snapshot() Run {
	l.mu.Lock()
	defer l.mu.Unlock()
	r := l.run
	r.Progress = slices.Clone(l.run.Progress)
	return r
}

// registry tracks in-flight runs. byAgent holds at most one run per agent;
// claiming a slot is a single LoadOrStore so concurrent dispatches cannot
// both win.
type registry struct {
	byAgent sync.Map // uuid.UUID -> *liveRun
	byRun   sync.Map // uuid.UUID -> *liveRun
}

// acquire claims the agent's slot for l. When another run holds it, that run
// is returned with false.
func (r *registry) acquire(l *liveRun) (*liveRun, bool) {
	existing, loaded := r.byAgent.LoadOrStore(l.run.AgentID, l)
	if loaded {
		return existing.(*liveRun), false
	}
	r.byRun.Store(l.run.ID, l)
	return l, true
}

// release frees the slot only if l still owns it.
func (r *registry) release(l *liveRun) {
	r.byRun.Delete(l.run.ID)
	r.byAgent.CompareAndDelete(l.run.AgentID, l)
}

func (r *registry) running(agentID uuid.UUID) bool {
	_, ok := r.byAgent.Load(agentID)
	return ok
}

func (r *registry) lookup(runID uuid.UUID) (*liveRun, bool) {
	v, ok := r.byRun.Load(runID)
	if !ok {
		return nil, false
	}
	return v.(*liveRun), true
}
