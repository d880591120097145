// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package session

import (
	"errors"
	"fmt"
	"sync"
)

// State is a live correlation session lifecycle state.
type State string

const (
	// StateIdle is the initial state: readers not yet acquired.
	StateIdle State = "idle"

	// StateRunning means the collection loop is active.
	StateRunning State = "running"

	// StateStopped is terminal: readers released, no further ingest.
	StateStopped State = "stopped"
)

// AllStates returns every session state.
func AllStates() []State {
	return []State{StateIdle, StateRunning, StateStopped}
}

// ErrInvalidTransition is returned for a disallowed state change, such
// as starting a session twice.
var ErrInvalidTransition = errors.New("invalid session state transition")

// stateMachine enforces the session transition graph:
//
//	IDLE → RUNNING    : Start acquired readers
//	IDLE → STOPPED    : Stop before Start
//	RUNNING → STOPPED : Stop, duration elapsed, or context cancelled
//
// STOPPED is terminal. There is deliberately no STOPPED → RUNNING
// edge: a session is single-use, which is what guarantees no ingest
// can happen after Stop.
//
// Thread Safety: safe for concurrent use.
type stateMachine struct {
	mu          sync.RWMutex
	current     State
	transitions map[State]map[State]bool
}

func newStateMachine() *stateMachine {
	sm := &stateMachine{
		current:     StateIdle,
		transitions: make(map[State]map[State]bool),
	}
	for _, state := range AllStates() {
		sm.transitions[state] = make(map[State]bool)
	}

	sm.addTransition(StateIdle, StateRunning)
	sm.addTransition(StateIdle, StateStopped)
	sm.addTransition(StateRunning, StateStopped)

	return sm
}

func (sm *stateMachine) addTransition(from, to State) {
	sm.transitions[from][to] = true
}

// state returns the current state.
func (sm *stateMachine) state() State {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.current
}

// transition moves to the target state, or fails with
// ErrInvalidTransition.
func (sm *stateMachine) transition(to State) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if !sm.transitions[sm.current][to] {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, sm.current, to)
	}
	sm.current = to
	return nil
}

// transitionFrom moves from -> to only when the machine is still in
// from. Used where the caller's decision was made outside the lock.
func (sm *stateMachine) transitionFrom(from, to State) bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.current != from || !sm.transitions[from][to] {
		return false
	}
	sm.current = to
	return true
}
