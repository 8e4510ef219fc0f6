package engine

import "github.com/loopwork/agentchat/internal/steps"

// Memory is the agent's live mutable step list. It is owned by a single
// process-wide agent; one run at a time mutates it, so it carries no lock.
type Memory struct {
	steps []steps.Step
}

func NewMemory() *Memory {
	return &Memory{}
}

// Reset clears the live step list for a fresh conversation. Previously
// persisted steps are unaffected.
func (m *Memory) Reset() {
	m.steps = nil
}

func (m *Memory) Append(step steps.Step) {
	m.steps = append(m.steps, step)
}

// Replace swaps in a rehydrated step list, discarding the current one.
func (m *Memory) Replace(list []steps.Step) {
	m.steps = append([]steps.Step(nil), list...)
}

// Steps returns a copy of the step list. The slice is the caller's; the
// steps themselves stay shared with live memory.
func (m *Memory) Steps() []steps.Step {
	return append([]steps.Step(nil), m.steps...)
}

func (m *Memory) Len() int { return len(m.steps) }

// nextStepNumber continues action-step numbering across resumed runs.
func (m *Memory) nextStepNumber() int {
	max := 0
	for _, step := range m.steps {
		if action, ok := step.(*steps.ActionStep); ok && action.StepNumber > max {
			max = action.StepNumber
		}
	}
	return max + 1
}
