package engine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/saltline/polar-engine/internal/domain"
	"github.com/saltline/polar-engine/internal/engine"
)

func TestBroadcasterFanOut(t *testing.T) {
	b := engine.NewBroadcaster(discardLogger())

	var a, c []engine.Status
	b.Subscribe(func(st engine.Status) { a = append(a, st) })
	b.Subscribe(func(st engine.Status) { c = append(c, st) })
	assert.Equal(t, 2, b.Len())

	b.Publish(engine.Status{Recording: true})
	b.Publish(engine.Status{Recording: false})

	assert.Len(t, a, 2)
	assert.Len(t, c, 2)
	assert.True(t, a[0].Recording)
	assert.False(t, a[1].Recording)
}

func TestBroadcasterUnsubscribe(t *testing.T) {
	b := engine.NewBroadcaster(discardLogger())

	var n int
	unsubscribe := b.Subscribe(func(engine.Status) { n++ })

	b.Publish(engine.Status{})
	unsubscribe()
	unsubscribe()
	b.Publish(engine.Status{})

	assert.Equal(t, 1, n)
	assert.Zero(t, b.Len())
}

func TestBroadcasterPanicIsolation(t *testing.T) {
	b := engine.NewBroadcaster(discardLogger())

	b.Subscribe(func(engine.Status) { panic("observer bug") })

	var got engine.Status
	b.Subscribe(func(st engine.Status) { got = st })

	st := engine.Status{Gates: domain.GateSnapshot{EngineOff: domain.VerdictPass}}
	assert.NotPanics(t, func() { b.Publish(st) })
	assert.Equal(t, domain.VerdictPass, got.Gates.EngineOff)
}

func TestBroadcasterPublishNoObservers(t *testing.T) {
	b := engine.NewBroadcaster(discardLogger())
	assert.NotPanics(t, func() { b.Publish(engine.Status{}) })
}
