package engine

import (
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHandlerChain_RegistrationOrder(t *testing.T) {
	chain := NewHandlerChain(slog.Default())

	var order []string
	chain.Register(func(Event) { order = append(order, "first") })
	chain.Register(func(Event) { order = append(order, "second") })
	chain.Register(func(Event) { order = append(order, "third") })

	chain.dispatch(Event{Token: "op-1"})
	assert.Equal(t, []string{"first", "second", "third"}, order)
}

func TestHandlerChain_PanicDoesNotSuppressEvent(t *testing.T) {
	chain := NewHandlerChain(slog.Default())

	var sawErr error
	chain.Register(func(Event) { panic("handler bug") })
	chain.Register(func(ev Event) { sawErr = ev.Err })

	boom := errors.New("primary failure")
	chain.dispatch(Event{Token: "op-2", Err: boom})

	assert.Equal(t, boom, sawErr, "later handlers still observe the original event")
}

func TestHandlerChain_NilHandlerIgnored(t *testing.T) {
	chain := NewHandlerChain(nil)
	chain.Register(nil)
	chain.dispatch(Event{}) // must not panic
}

func TestHandlerChain_EventPassedByValue(t *testing.T) {
	chain := NewHandlerChain(slog.Default())

	chain.Register(func(ev Event) { ev.Token = "mutated" })
	var got string
	chain.Register(func(ev Event) { got = ev.Token })

	chain.dispatch(Event{Token: "op-3"})
	assert.Equal(t, "op-3", got, "handlers cannot alter what later handlers see")
}
