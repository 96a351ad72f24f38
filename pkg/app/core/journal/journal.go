// Package journal records undo steps so a component can roll back every
// change made since a snapshot, the way go-ethereum's StateDB reverts a
// failed call.
package journal

import "fmt"

// Journal is an undo log. It is not safe for concurrent use; callers guard it
// with the same lock that guards the state it describes.
type Journal struct {
	undo []func()
}

// Append records fn as the step that undoes the change just applied.
func (j *Journal) Append(fn func()) {
	j.undo = append(j.undo, fn)
}

// Snapshot returns an id for the current position in the log.
func (j *Journal) Snapshot() int {
	return len(j.undo)
}

// RevertToSnapshot undoes, newest first, every change recorded after id.
func (j *Journal) RevertToSnapshot(id int) {
	if id < 0 || id > len(j.undo) {
		panic(fmt.Errorf("journal snapshot %d cannot be reverted (length %d)", id, len(j.undo)))
	}
	for i := len(j.undo) - 1; i >= id; i-- {
		j.undo[i]()
		j.undo[i] = nil
	}
	j.undo = j.undo[:id]
}

// Reset drops all recorded steps, making the current state permanent.
func (j *Journal) Reset() {
	clear(j.undo)
	j.undo = j.undo[:0]
}

// Len returns the number of recorded steps.
func (j *Journal) Len() int {
	return len(j.undo)
}
