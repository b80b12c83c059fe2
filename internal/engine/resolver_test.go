package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAwaitDeps_EmptySetIsReadyImmediately(t *testing.T) {
	never := make(chan struct{})
	assert.NoError(t, awaitDeps(never, "op", nil))
}

func TestAwaitDeps_NilEntriesIgnored(t *testing.T) {
	never := make(chan struct{})
	assert.NoError(t, awaitDeps(never, "op", []Completion{nil, Terminated(nil)}))
}

func TestAwaitDeps_WaitsForAllUpstreams(t *testing.T) {
	never := make(chan struct{})
	a := newLatch()
	b := newLatch()

	done := make(chan error, 1)
	go func() {
		done <- awaitDeps(never, "op", []Completion{a, b})
	}()

	select {
	case <-done:
		t.Fatal("resolver fired before upstreams completed")
	case <-time.After(20 * time.Millisecond):
	}

	a.fire(nil, 1)
	select {
	case <-done:
		t.Fatal("resolver fired with one upstream still running")
	case <-time.After(20 * time.Millisecond):
	}

	b.fire(nil, 2)
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("resolver never fired")
	}
}

func TestAwaitDeps_UpstreamErrorPropagates(t *testing.T) {
	never := make(chan struct{})
	boom := errors.New("upstream boom")

	err := awaitDeps(never, "op-7", []Completion{Terminated(boom)})
	require.Error(t, err)
	assert.True(t, IsDependencyError(err))
	assert.True(t, errors.Is(err, boom))
}

func TestAwaitDeps_CancelAbortsWait(t *testing.T) {
	cancel := make(chan struct{})
	close(cancel)

	pending := newLatch()
	err := awaitDeps(cancel, "op", []Completion{pending})
	assert.Equal(t, errCancelled, err)
}

func TestDepsReady_FastPath(t *testing.T) {
	ready, err := depsReady("op", nil)
	require.NoError(t, err)
	assert.True(t, ready)

	ready, err = depsReady("op", []Completion{Terminated(nil)})
	require.NoError(t, err)
	assert.True(t, ready)

	pending := newLatch()
	ready, err = depsReady("op", []Completion{pending})
	require.NoError(t, err)
	assert.False(t, ready)

	_, err = depsReady("op", []Completion{Terminated(errors.New("x"))})
	assert.True(t, IsDependencyError(err))
}
