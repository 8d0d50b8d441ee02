package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/bletower/internal/device"
	"github.com/srg/bletower/internal/devicefactory"
	"github.com/srg/bletower/internal/testutils"
	"go.uber.org/goleak"
)

// syncBuffer is a bytes.Buffer safe for a command goroutine writing while the test reads.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// commandRun is a command executing in the background.
type commandRun struct {
	out    *syncBuffer
	errOut *syncBuffer
	done   chan error
	cancel context.CancelFunc
}

// CommandTestSuite runs bletower commands against the suite's fake adapter.
// All cmd/bletower test suites should embed this instead of FakeAdapterSuite.
type CommandTestSuite struct {
	testutils.FakeAdapterSuite

	originalFactory func(string, *logrus.Logger, devicefactory.Options) (device.Adapter, error)
	requested       []string
}

func (s *CommandTestSuite) SetupTest() {
	// signal.NotifyContext starts the runtime's signal loop once per process
	s.LeakOptions = []goleak.Option{goleak.IgnoreAnyFunction("os/signal.loop")}
	s.FakeAdapterSuite.SetupTest()

	s.requested = nil
	s.originalFactory = devicefactory.AdapterFactory
	devicefactory.AdapterFactory = func(name string, _ *logrus.Logger, _ devicefactory.Options) (device.Adapter, error) {
		s.requested = append(s.requested, name)
		return s.Adapter, nil
	}
}

func (s *CommandTestSuite) TearDownTest() {
	devicefactory.AdapterFactory = s.originalFactory
	s.FakeAdapterSuite.TearDownTest()
}

// ExecuteCommand runs the root command with args to completion.
func (s *CommandTestSuite) ExecuteCommand(args ...string) (string, error) {
	run := s.StartCommand(args...)
	err := s.Wait(run)
	return run.out.String(), err
}

// StartCommand runs the root command with args in the background.
func (s *CommandTestSuite) StartCommand(args ...string) *commandRun {
	ctx, cancel := context.WithCancel(context.Background())
	run := &commandRun{out: &syncBuffer{}, errOut: &syncBuffer{}, done: make(chan error, 1), cancel: cancel}

	cmd := newRootCmd()
	cmd.SetOut(run.out)
	cmd.SetErr(run.errOut)
	cmd.SetArgs(args)
	go func() {
		run.done <- cmd.ExecuteContext(ctx)
	}()
	return run
}

// Wait returns the command's error, failing the test if it does not finish.
func (s *CommandTestSuite) Wait(run *commandRun) error {
	defer run.cancel()
	select {
	case err := <-run.done:
		return err
	case <-time.After(5 * time.Second):
		s.FailNow("command MUST finish", "stdout:\n%s\nstderr:\n%s", run.out.String(), run.errOut.String())
		return nil
	}
}

// Stop interrupts a running command and returns its error.
func (s *CommandTestSuite) Stop(run *commandRun) error {
	run.cancel()
	return s.Wait(run)
}

// WaitForOutput waits until stdout contains substr.
func (s *CommandTestSuite) WaitForOutput(run *commandRun, substr string) {
	s.Require().Eventually(func() bool {
		return strings.Contains(run.out.String(), substr)
	}, testutils.DefaultEventTimeout, time.Millisecond, "output MUST contain %q; got:\n%s", substr, run.out.String())
}

// AdvertiseSensor waits for the scan and reports a heart rate sensor.
func (s *CommandTestSuite) AdvertiseSensor() {
	s.Require().Eventually(s.Adapter.Scanning, testutils.DefaultEventTimeout, time.Millisecond, "scan MUST start")
	s.Adapter.EmitScanResult(testutils.NewScanResult("H10", "AA:BB:CC:DD:EE:FF", -55, "180D"))
}

// WriteConfig writes a YAML config file and returns its path
func (s *CommandTestSuite) WriteConfig(body string) string {
	path := filepath.Join(s.T().TempDir(), "bletower.yaml")
	s.Require().NoError(os.WriteFile(path, []byte(body), 0o600), "config write MUST succeed")
	return path
}

// JSONLine returns the first output line with the given event kind.
func (s *CommandTestSuite) JSONLine(output, kind string) string {
	marker := `"kind":"` + kind + `"`
	for _, line := range strings.Split(output, "\n") {
		if strings.Contains(line, marker) {
			return line
		}
	}
	s.FailNow("missing event line", "no %s line in:\n%s", kind, output)
	return ""
}
