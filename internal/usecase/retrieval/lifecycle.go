package retrieval

import (
	"context"
	"fmt"

	"github.com/kailas-cloud/ragdex/internal/domain"
)

// State is the engine connection state.
type State int

const (
	// StateUninitialized means no store handle has been obtained yet.
	StateUninitialized State = iota
	// StateReady means the engine holds a live store handle.
	StateReady
	// StateFaulted means the engine was closed and will not reconnect.
	StateFaulted
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	case StateFaulted:
		return "faulted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// State reports the current connection state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Start connects eagerly. Operations connect lazily when Start was never called.
func (e *Engine) Start(ctx context.Context) error {
	_, err := e.acquire(ctx)
	return err
}

// Close releases the store handle. Every later operation fails with ErrNotInitialized.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == StateFaulted {
		return nil
	}
	var err error
	if e.store != nil {
		err = e.store.Close()
		e.store = nil
	}
	e.state = StateFaulted
	e.cause = domain.ErrEngineClosed
	if err != nil {
		return fmt.Errorf("close store: %w", err)
	}
	return nil
}

// acquire returns the store handle, connecting on first use.
// A failed connect leaves the engine uninitialized so the next call tries again.
func (e *Engine) acquire(ctx context.Context) (Store, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case StateReady:
		return e.store, nil
	case StateFaulted:
		return nil, fmt.Errorf("%w: %w", domain.ErrNotInitialized, e.cause)
	}

	st, err := e.connector.Connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrNotInitialized, domain.Connection("connect vector store", err))
	}
	e.store = st
	e.state = StateReady
	e.logger.Info("vector store connected")
	return st, nil
}
