package monitor

import (
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestExecutorRunsTasksInOrder(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	e := newExecutor("test", logrus.New())
	defer e.Close()

	var (
		mu  sync.Mutex
		got []int
	)
	for i := 0; i < 100; i++ {
		i := i
		require.True(t, e.Submit(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		}))
	}
	e.Sync()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 100)
	for i, v := range got {
		assert.Equal(t, i, v, "tasks MUST run in submission order")
	}
}

func TestExecutorCloseDrainsQueue(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	e := newExecutor("test", logrus.New())
	ran := 0
	for i := 0; i < 10; i++ {
		e.Submit(func() { ran++ })
	}
	e.Close()

	assert.Equal(t, 10, ran, "queued tasks MUST run before Close returns")
	assert.False(t, e.Submit(func() { ran++ }), "Submit after Close MUST be rejected")
	e.Sync()
	assert.Equal(t, 10, ran)
}

func TestExecutorRecoversPanics(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	logger, hook := test.NewNullLogger()
	e := newExecutor("test", logger)
	defer e.Close()

	e.Submit(func() { panic("boom") })
	done := false
	e.Submit(func() { done = true })
	e.Sync()

	assert.True(t, done, "executor MUST keep running after a panic")
	require.NotNil(t, hook.LastEntry())
	var found bool
	for _, entry := range hook.AllEntries() {
		if entry.Message == "Recovered panic in monitor task" {
			found = true
			assert.Equal(t, logrus.ErrorLevel, entry.Level)
		}
	}
	assert.True(t, found, "panic MUST be logged")
}
