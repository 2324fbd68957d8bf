// Package driver is the Packet Driver API multiplexer: the INT-vector entry
// point, the handle table and receive classifier, transmit submission, the
// statistics surface, and the install/uninstall (TSR) services.
package driver

import (
	"github.com/sirupsen/logrus"
)

// Unwind is the LIFO of compensating actions built up during install.
// Every init step that acquires something pushes its undo; on failure or on
// normal teardown the entries run in reverse order.
type Unwind struct {
	entries []unwindEntry
	log     *logrus.Logger
}

type unwindEntry struct {
	name string
	undo func() error
}

func NewUnwind(log *logrus.Logger) *Unwind {
	return &Unwind{log: log}
}

// Push appends an undo action.
func (u *Unwind) Push(name string, undo func() error) {
	u.entries = append(u.entries, unwindEntry{name: name, undo: undo})
}

// Run pops and executes every entry in reverse. A failing action is logged
// and does not stop the rest from running; the registry is empty afterwards.
func (u *Unwind) Run() {
	for i := len(u.entries) - 1; i >= 0; i-- {
		e := u.entries[i]
		if err := e.undo(); err != nil {
			u.log.WithFields(logrus.Fields{"step": e.name, "error": err}).Warn("unwind action failed")
		}
	}
	u.entries = nil
}

// Len returns the pending action count.
func (u *Unwind) Len() int { return len(u.entries) }
