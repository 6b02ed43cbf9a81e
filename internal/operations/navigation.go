package operations

// Navigator holds the current step index and guards moves against the
// derived step states. A rejected move is a no-op reported as false; it is
// never an error. Navigator is not safe for concurrent use; Session guards it.
type Navigator struct {
	current int
}

// NewNavigator returns a navigator positioned at start
func NewNavigator(start int) *Navigator {
	return &Navigator{current: start}
}

// Current returns the current step index
func (n *Navigator) Current() int {
	return n.current
}

// GoToStep moves to i when states[i] is navigable.
func (n *Navigator) GoToStep(states []StepState, i int) bool {
	if i < 0 || i >= len(states) || !states[i].CanNavigate {
		return false
	}
	n.current = i
	return true
}

// NextStep moves forward one step when that step is navigable.
func (n *Navigator) NextStep(states []StepState) bool {
	return n.GoToStep(states, n.current+1)
}

// PreviousStep moves back one step regardless of derived status.
func (n *Navigator) PreviousStep() bool {
	if n.current <= 0 {
		return false
	}
	n.current--
	return true
}

// Reset re-points the navigator without consulting any guard.
func (n *Navigator) Reset(i int) {
	n.current = i
}
