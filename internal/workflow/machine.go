// Package workflow provides a table driven status transition engine.
package workflow

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition reports an edge missing from the table or a failed guard.
var ErrInvalidTransition = errors.New("workflow: invalid transition")

// Guard inspects the subject before an edge is taken. Returning an error
// blocks the transition; the error is handed back unchanged.
type Guard[T any] func(subject T) error

// Edge is a directed pair of statuses.
type Edge[S comparable] struct {
	From S
	To   S
}

// Machine holds the allowed transitions for one subject type.
type Machine[S comparable, T any] struct {
	allowed map[S]map[S]struct{}
	guards  map[Edge[S]][]Guard[T]
	system  map[Edge[S]]struct{}
}

// New returns an empty machine.
func New[S comparable, T any]() *Machine[S, T] {
	return &Machine[S, T]{
		allowed: make(map[S]map[S]struct{}),
		guards:  make(map[Edge[S]][]Guard[T]),
		system:  make(map[Edge[S]]struct{}),
	}
}

// Allow registers from -> each of to.
func (m *Machine[S, T]) Allow(from S, to ...S) *Machine[S, T] {
	next, ok := m.allowed[from]
	if !ok {
		next = make(map[S]struct{})
		m.allowed[from] = next
	}
	for _, s := range to {
		next[s] = struct{}{}
	}
	return m
}

// AllowSystem registers an edge that only internal flows may take.
func (m *Machine[S, T]) AllowSystem(from, to S) *Machine[S, T] {
	m.Allow(from, to)
	m.system[Edge[S]{From: from, To: to}] = struct{}{}
	return m
}

// Guard attaches a guard to an edge. Guards run in registration order.
func (m *Machine[S, T]) Guard(from, to S, guard Guard[T]) *Machine[S, T] {
	key := Edge[S]{From: from, To: to}
	m.guards[key] = append(m.guards[key], guard)
	return m
}

// Can reports whether the edge exists at all.
func (m *Machine[S, T]) Can(from, to S) bool {
	_, ok := m.allowed[from][to]
	return ok
}

// Request validates an edge asked for by a caller. System edges are refused.
func (m *Machine[S, T]) Request(from, to S, subject T) error {
	if _, ok := m.system[Edge[S]{From: from, To: to}]; ok {
		return fmt.Errorf("%w: %v -> %v is not a user transition", ErrInvalidTransition, from, to)
	}
	return m.check(from, to, subject)
}

// Apply validates an edge taken by an internal flow.
func (m *Machine[S, T]) Apply(from, to S, subject T) error {
	return m.check(from, to, subject)
}

func (m *Machine[S, T]) check(from, to S, subject T) error {
	if !m.Can(from, to) {
		return fmt.Errorf("%w: %v -> %v", ErrInvalidTransition, from, to)
	}
	for _, guard := range m.guards[Edge[S]{From: from, To: to}] {
		if err := guard(subject); err != nil {
			return err
		}
	}
	return nil
}
