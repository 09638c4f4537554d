package rollo

import (
	"fmt"
	"sync"

	"github.com/radiofrance/rollo/internal/logger"
	"github.com/radiofrance/rollo/pkg/dag"
)

// State is a phase of the per-resource rollout state machine.
type State string

const (
	StatePending     State = "pending"
	StateApplying    State = "applying"
	StateVerifying   State = "verifying"
	StatePromoting   State = "promoting"
	StateRollingBack State = "rolling-back"
	StateRolledBack  State = "rolled-back"
	StateSucceeded   State = "succeeded"
	StateFailed      State = "failed"
	StateSkipped     State = "skipped"
)

// transitions lists the legal next states of each state. A rollout always starts
// in StatePending, and ends in one of the terminal states: StateSucceeded,
// StateFailed, StateRolledBack or StateSkipped.
var transitions = map[State][]State{
	StatePending:     {StateApplying, StateSkipped},
	StateApplying:    {StateVerifying, StateSucceeded, StateFailed},
	StateVerifying:   {StatePromoting, StateSucceeded, StateRollingBack, StateFailed},
	StatePromoting:   {StateSucceeded, StateRollingBack, StateFailed},
	StateRollingBack: {StateRolledBack, StateFailed},
}

// stateMachine tracks the rollout state of every resource of a run, and rejects
// illegal transitions, which are programming errors in the strategies.
type stateMachine struct {
	mutex  sync.Mutex
	states map[string]State
}

func newStateMachine(graph *dag.DAG) *stateMachine {
	machine := &stateMachine{
		states: map[string]State{},
	}

	graph.Walk(func(node *dag.Node) {
		machine.states[node.Resource.ID()] = StatePending
	})

	return machine
}

// Transition moves a resource to the given state.
func (m *stateMachine) Transition(resourceID string, to State) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	from, ok := m.states[resourceID]
	if !ok {
		return fmt.Errorf("unknown resource %s in rollout state machine", resourceID)
	}

	if !canTransition(from, to) {
		return fmt.Errorf("illegal rollout transition for %s: %s -> %s", resourceID, from, to)
	}

	m.states[resourceID] = to
	logger.Debugf("Resource %s: %s -> %s", resourceID, from, to)
	return nil
}

// Current returns the current state of a resource.
func (m *stateMachine) Current(resourceID string) State {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	return m.states[resourceID]
}

func canTransition(from, to State) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}
