package library

import (
	"io"
	"log/slog"
	"time"
)

// Library wires the three lending components over one Store.
type Library struct {
	Catalog *Catalog
	Members *Membership
	Ledger  *LedgerEngine

	env *env
}

// env is the configuration every component shares.
type env struct {
	clock   Clock
	policy  Policy
	logger  *slog.Logger
	metrics MetricsCollector
}

func (e *env) today() Date    { return Today(e.clock) }
func (e *env) now() time.Time { return e.clock.Now() }

// Option configures a Library.
type Option func(*env) error

// WithClock replaces the system clock.
func WithClock(c Clock) Option {
	return func(e *env) error {
		if c == nil {
			return &FieldError{Field: "clock", Message: "must not be nil"}
		}
		e.clock = c
		return nil
	}
}

// WithPolicy replaces DefaultPolicy().
func WithPolicy(p Policy) Option {
	return func(e *env) error {
		if err := p.Validate(); err != nil {
			return err
		}
		e.policy = p
		return nil
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(e *env) error {
		if l != nil {
			e.logger = l
		}
		return nil
	}
}

func WithMetrics(m MetricsCollector) Option {
	return func(e *env) error {
		if m != nil {
			e.metrics = m
		}
		return nil
	}
}

// New builds a Library over store.
func New(store Store, opts ...Option) (*Library, error) {
	e := &env{
		clock:   SystemClock{},
		policy:  DefaultPolicy(),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		metrics: nopMetrics{},
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}

	catalog := &Catalog{env: e, store: store}
	members := &Membership{env: e, store: store}
	return &Library{
		Catalog: catalog,
		Members: members,
		Ledger:  &LedgerEngine{env: e, store: store, catalog: catalog, members: members},
		env:     e,
	}, nil
}

// Policy returns the lending policy in force.
func (l *Library) Policy() Policy { return l.env.policy }

// Today is the library's current calendar day.
func (l *Library) Today() Date { return l.env.today() }
