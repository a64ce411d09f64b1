package model

import (
	"errors"
	"fmt"
)

// ErrIllegalTransition is returned when a status change is not listed in the
// owning entity's transition table.
var ErrIllegalTransition = errors.New("illegal state transition")

// transitions maps a state to the states it may move to.
type transitions[S ~string] map[S][]S

func (t transitions[S]) allows(from, to S) bool {
	for _, next := range t[from] {
		if next == to {
			return true
		}
	}
	return false
}

func (t transitions[S]) move(entity string, from, to S) (S, error) {
	if !t.allows(from, to) {
		return from, fmt.Errorf("%w: %s %s -> %s", ErrIllegalTransition, entity, from, to)
	}
	return to, nil
}
