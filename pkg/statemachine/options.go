package statemachine

import "fmt"

// Option declares transitions on a Machine under construction.
type Option[S, E ~string, D any] func(*Machine[S, E, D]) error

// TransitionOption configures one transition.
type TransitionOption[S, E ~string, D any] func(*Transition[S, E, D])

// New builds a Machine from opts.
func New[S, E ~string, D any](opts ...Option[S, E, D]) (*Machine[S, E, D], error) {
	m := &Machine[S, E, D]{table: make(map[S]map[E][]Transition[S, E, D])}
	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// MustNew is New for package-level tables; it panics on error.
func MustNew[S, E ~string, D any](opts ...Option[S, E, D]) *Machine[S, E, D] {
	m, err := New(opts...)
	if err != nil {
		panic(fmt.Sprintf("statemachine: %v", err))
	}
	return m
}

// WithTransition adds from --event--> to.
func WithTransition[S, E ~string, D any](from, to S, event E, opts ...TransitionOption[S, E, D]) Option[S, E, D] {
	return func(m *Machine[S, E, D]) error {
		t := Transition[S, E, D]{From: from, To: to, Event: event}
		for _, opt := range opts {
			opt(&t)
		}
		return m.add(t)
	}
}

// WithTransitionFrom declares the same transition from several states.
func WithTransitionFrom[S, E ~string, D any](froms []S, to S, event E, opts ...TransitionOption[S, E, D]) Option[S, E, D] {
	return func(m *Machine[S, E, D]) error {
		for _, from := range froms {
			if err := WithTransition(from, to, event, opts...)(m); err != nil {
				return err
			}
		}
		return nil
	}
}

// WithTransitions adds ts in order.
func WithTransitions[S, E ~string, D any](ts []Transition[S, E, D]) Option[S, E, D] {
	return func(m *Machine[S, E, D]) error {
		for i, t := range ts {
			if err := m.add(t); err != nil {
				return fmt.Errorf("transition[%d] %s->%s on %s: %w", i, t.From, t.To, t.Event, err)
			}
		}
		return nil
	}
}

// WithGuard adds a guard. Guards run in order and all must pass.
func WithGuard[S, E ~string, D any](g Guard[S, E, D]) TransitionOption[S, E, D] {
	return func(t *Transition[S, E, D]) {
		if g != nil {
			t.Guards = append(t.Guards, g)
		}
	}
}

// WithAction adds an action run when the transition fires.
func WithAction[S, E ~string, D any](a Action[S, E, D]) TransitionOption[S, E, D] {
	return func(t *Transition[S, E, D]) {
		if a != nil {
			t.Actions = append(t.Actions, a)
		}
	}
}

func (m *Machine[S, E, D]) add(t Transition[S, E, D]) error {
	if t.Event == "" {
		return fmt.Errorf("%w: empty event", ErrInvalidTransition)
	}
	if m.table[t.From] == nil {
		m.table[t.From] = make(map[E][]Transition[S, E, D])
	}
	m.table[t.From][t.Event] = append(m.table[t.From][t.Event], t)
	return nil
}
