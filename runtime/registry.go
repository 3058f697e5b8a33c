package runtime

import (
	"sync"

	"github.com/juju/errors"

	"github.com/warriorguo/flowexec/types"
)

var (
	_ types.RunnerRegistry = &RunnerRegistry{}
)

// RunnerRegistry maps (type, version) to a node runner. A runner registered
// with version "" serves every version of its type without an exact match.
type RunnerRegistry struct {
	mu      sync.RWMutex
	runners map[string]types.NodeRunner
}

func NewRunnerRegistry() *RunnerRegistry {
	return &RunnerRegistry{runners: make(map[string]types.NodeRunner)}
}

func runnerKey(nodeType, version string) string {
	return nodeType + "@" + version
}

func (r *RunnerRegistry) Register(nodeType, version string, runner types.NodeRunner) error {
	if runner == nil {
		return errors.BadRequestf("runner of %s is nil", nodeType)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	key := runnerKey(nodeType, version)
	if _, exists := r.runners[key]; exists {
		return errors.AlreadyExistsf("runner %s", key)
	}
	r.runners[key] = runner
	return nil
}

func (r *RunnerRegistry) Resolve(nodeType, version string) (types.NodeRunner, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if runner, exists := r.runners[runnerKey(nodeType, version)]; exists {
		return runner, nil
	}
	if runner, exists := r.runners[runnerKey(nodeType, "")]; exists {
		return runner, nil
	}
	return nil, errors.NotFoundf("runner %s", runnerKey(nodeType, version))
}

// runRegistry is a run-id keyed map. Remove only drops the entry when the
// caller still owns it.
type runRegistry[T comparable] struct {
	mu      sync.RWMutex
	entries map[string]T
}

func (r *runRegistry[T]) add(runID string, v T, overwrite bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.entries == nil {
		r.entries = make(map[string]T)
	}
	if _, exists := r.entries[runID]; exists && !overwrite {
		return
	}
	r.entries[runID] = v
}

func (r *runRegistry[T]) get(runID string) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	v, exists := r.entries[runID]
	return v, exists
}

func (r *runRegistry[T]) remove(runID string, owner T) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if v, exists := r.entries[runID]; !exists || v != owner {
		return false
	}
	delete(r.entries, runID)
	return true
}

func (r *runRegistry[T]) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// ExecutionRegistry finds the ExecutionData of a live run, used to
// propagate replies from nested runs to their parent.
type ExecutionRegistry struct {
	reg runRegistry[*types.ExecutionData]
}

func NewExecutionRegistry() *ExecutionRegistry {
	return &ExecutionRegistry{}
}

func (r *ExecutionRegistry) Add(ed *types.ExecutionData) {
	r.reg.add(ed.RunID, ed, true)
}

func (r *ExecutionRegistry) Get(runID string) (*types.ExecutionData, bool) {
	return r.reg.get(runID)
}

func (r *ExecutionRegistry) Remove(ed *types.ExecutionData) bool {
	return r.reg.remove(ed.RunID, ed)
}

func (r *ExecutionRegistry) Len() int {
	return r.reg.len()
}

// FlowRegistry finds the flow a run is executing. Add keeps the first
// registration so loop bodies sharing a run id never replace the outer flow.
type FlowRegistry struct {
	reg runRegistry[*types.FlowDefinition]
}

func NewFlowRegistry() *FlowRegistry {
	return &FlowRegistry{}
}

func (r *FlowRegistry) Add(runID string, flow *types.FlowDefinition) {
	r.reg.add(runID, flow, false)
}

func (r *FlowRegistry) Get(runID string) (*types.FlowDefinition, bool) {
	return r.reg.get(runID)
}

func (r *FlowRegistry) Remove(runID string, flow *types.FlowDefinition) bool {
	return r.reg.remove(runID, flow)
}

func (r *FlowRegistry) Len() int {
	return r.reg.len()
}
