package statemachine

import (
	"context"
	"fmt"
	"slices"
)

// Guard vetoes a transition by returning an error. Its message becomes the
// rejection reason.
type Guard[S, E ~string, D any] func(ctx context.Context, from S, event E, data D) error

// Action runs a side effect once the guards passed. An error aborts the transition.
type Action[S, E ~string, D any] func(ctx context.Context, from, to S, event E, data D) error

// Transition is one edge of the table. Among edges sharing From and Event the
// first whose guards pass wins.
type Transition[S, E ~string, D any] struct {
	From    S
	To      S
	Event   E
	Guards  []Guard[S, E, D]
	Actions []Action[S, E, D]
}

// Machine is an immutable transition table.
type Machine[S, E ~string, D any] struct {
	table map[S]map[E][]Transition[S, E, D]
}

// Fire evaluates event from state from and returns the target state.
func (m *Machine[S, E, D]) Fire(ctx context.Context, from S, event E, data D) (S, error) {
	t, err := m.match(ctx, from, event, data)
	if err != nil {
		return from, err
	}
	for _, action := range t.Actions {
		if err := action(ctx, from, t.To, event, data); err != nil {
			return from, fmt.Errorf("action failed: %w", err)
		}
	}
	return t.To, nil
}

// CanFire reports whether Fire would pass the guards. Actions are not run.
func (m *Machine[S, E, D]) CanFire(ctx context.Context, from S, event E, data D) bool {
	_, err := m.match(ctx, from, event, data)
	return err == nil
}

// Events lists the events declared from state from, sorted.
func (m *Machine[S, E, D]) Events(from S) []E {
	events := make([]E, 0, len(m.table[from]))
	for e := range m.table[from] {
		events = append(events, e)
	}
	slices.Sort(events)
	return events
}

func (m *Machine[S, E, D]) match(ctx context.Context, from S, event E, data D) (*Transition[S, E, D], error) {
	candidates := m.table[from][event]
	if len(candidates) == 0 {
		return nil, &NoTransitionError{From: string(from), Event: string(event)}
	}

	var reason string
	for i := range candidates {
		if err := runGuards(ctx, candidates[i].Guards, from, event, data); err != nil {
			if reason == "" {
				reason = err.Error()
			}
			continue
		}
		return &candidates[i], nil
	}
	return nil, &RejectedError{From: string(from), Event: string(event), Reason: reason}
}

func runGuards[S, E ~string, D any](ctx context.Context, guards []Guard[S, E, D], from S, event E, data D) error {
	for _, g := range guards {
		if err := g(ctx, from, event, data); err != nil {
			return err
		}
	}
	return nil
}
