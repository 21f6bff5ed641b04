// Package calls handles the video call lifecycle: initiating a call row,
// reacting to its status changes and auto-rejecting unanswered calls.
package calls

import (
	"fmt"

	"github.com/pveiga/skillswap/internal/store"
)

// validTransitions is the call status state machine. A call leaves
// pending exactly once; accepted calls may later be marked completed.
var validTransitions = map[string][]string{
	store.CallPending:  {store.CallAccepted, store.CallRejected},
	store.CallAccepted: {store.CallCompleted},
}

// CanTransition reports whether from may move to to.
func CanTransition(from, to string) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition validates a status move.
func Transition(from, to string) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("invalid call transition %s -> %s", from, to)
	}
	return nil
}

// Terminal reports whether no further status change is possible.
func Terminal(status string) bool {
	return len(validTransitions[status]) == 0
}
