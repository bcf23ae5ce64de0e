package app

import "sync"

// RunnerRegistry tracks the live runner for each in-progress attempt.
// One runner per attempt; a second Put for the same attempt keeps the
// existing runner so a rejoin cannot reset a run.
type RunnerRegistry struct {
	mu      sync.RWMutex
	runners map[string]*Runner
}

func NewRunnerRegistry() *RunnerRegistry {
	return &RunnerRegistry{runners: make(map[string]*Runner)}
}

// Put registers a runner and returns the one actually held for the attempt.
func (r *RunnerRegistry) Put(attemptID string, runner *Runner) *Runner {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.runners[attemptID]; ok {
		return existing
	}
	r.runners[attemptID] = runner
	return runner
}

func (r *RunnerRegistry) Get(attemptID string) (*Runner, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	runner, ok := r.runners[attemptID]
	return runner, ok
}

func (r *RunnerRegistry) Delete(attemptID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.runners, attemptID)
}
