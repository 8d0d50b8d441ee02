package groutine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestGoNamesGoroutine(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	names := make(chan string, 1)
	Go(nil, "worker-1", func(ctx context.Context) {
		names <- GetName(ctx)
	})

	select {
	case name := <-names:
		assert.Equal(t, "worker-1", name, "context MUST carry the goroutine name")
	case <-time.After(time.Second):
		t.Fatal("goroutine did not run")
	}
}

func TestGoRecoversPanic(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	type recovered struct {
		name  string
		value any
	}
	got := make(chan recovered, 1)

	prev := PanicHandler
	PanicHandler = func(name string, r any) { got <- recovered{name, r} }
	defer func() { PanicHandler = prev }()

	Go(context.Background(), "panicky", func(context.Context) {
		panic("boom")
	})

	select {
	case r := <-got:
		require.Equal(t, "panicky", r.name)
		assert.Equal(t, "boom", r.value, "panic value MUST reach the handler")
	case <-time.After(time.Second):
		t.Fatal("panic was not reported")
	}
}

func TestGetNameWithoutName(t *testing.T) {
	assert.Empty(t, GetName(context.Background()))
	//nolint:staticcheck
	assert.Empty(t, GetName(nil))
}
