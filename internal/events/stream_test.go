package events

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/suite"
)

// StreamTestSuite covers the overwrite-oldest delivery contract of Stream
type StreamTestSuite struct {
	suite.Suite

	logger *logrus.Logger
	hook   *test.Hook
}

func (suite *StreamTestSuite) SetupTest() {
	suite.logger, suite.hook = test.NewNullLogger()
	suite.logger.SetLevel(logrus.DebugLevel)
}

func (suite *StreamTestSuite) drain(s *Stream) []Event {
	var out []Event
	for e := range s.C() {
		out = append(out, e)
	}
	return out
}

func (suite *StreamTestSuite) TestSendWithinCapacity() {
	// GOAL: Verify events below capacity are delivered in order
	//
	// TEST SCENARIO: Send 3 events into a stream of 4 → close → drain → all 3 in order, nothing dropped
	s := NewStream(4, suite.logger)
	for i := 0; i < 3; i++ {
		suite.True(s.Send(ServiceDiscovered{Code: i}), "Send MUST succeed on an open stream")
	}
	s.Close()

	got := suite.drain(s)
	suite.Equal([]Event{ServiceDiscovered{Code: 0}, ServiceDiscovered{Code: 1}, ServiceDiscovered{Code: 2}}, got)
	suite.Equal(int64(0), s.GetMetrics().Dropped, "nothing MUST be dropped below capacity")
}

func (suite *StreamTestSuite) TestOverflowDropsOldest() {
	// GOAL: Verify a full stream never blocks and keeps the newest events
	//
	// TEST SCENARIO: Send 5 events into a stream of 3 with no consumer → last 3 survive → drops counted, logged and hooked
	var droppedKinds []int
	s := NewStream(3, suite.logger, WithDropHandler(func(e Event) {
		droppedKinds = append(droppedKinds, e.(ServiceDiscovered).Code)
	}))

	for i := 0; i < 5; i++ {
		s.Send(ServiceDiscovered{Code: i})
	}
	s.Close()

	got := suite.drain(s)
	suite.Equal([]Event{ServiceDiscovered{Code: 2}, ServiceDiscovered{Code: 3}, ServiceDiscovered{Code: 4}}, got, "newest events MUST survive")
	suite.Equal([]int{0, 1}, droppedKinds, "drop handler MUST see the oldest events")

	m := s.GetMetrics()
	suite.Equal(int64(5), m.Written)
	suite.Equal(int64(2), m.Dropped)

	warned := false
	for _, entry := range suite.hook.AllEntries() {
		if entry.Level == logrus.WarnLevel {
			warned = true
		}
	}
	suite.True(warned, "first drop MUST be logged as a warning")
}

func (suite *StreamTestSuite) TestCloseKeepsBufferedEvents() {
	// GOAL: Verify Close flushes accepted events and rejects later ones
	//
	// TEST SCENARIO: Send → Close → Send again → only the first event is readable, second is rejected
	s := NewStream(2, suite.logger)
	suite.True(s.Send(DeviceFound{Name: "HRM"}))
	s.Close()
	s.Close()

	suite.False(s.Send(DeviceFound{Name: "late"}), "Send MUST fail after Close")
	suite.Equal([]Event{DeviceFound{Name: "HRM"}}, suite.drain(s))
	suite.Equal(int64(1), s.GetMetrics().Rejected)
}

func (suite *StreamTestSuite) TestConcurrentProducers() {
	// GOAL: Verify concurrent producers never block and never exceed capacity
	//
	// TEST SCENARIO: 8 goroutines send 100 events each with no consumer → all Send calls return → buffer full, rest dropped
	s := NewStream(16, suite.logger)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				s.Send(ServiceDiscovered{Code: i})
			}
		}()
	}
	wg.Wait()

	suite.Equal(16, s.Len(), "buffer MUST be full")
	m := s.GetMetrics()
	suite.Equal(int64(800), m.Written)
	suite.Equal(int64(800-16), m.Dropped)
	s.Close()
}

func (suite *StreamTestSuite) TestDefaultCapacity() {
	s := NewStream(0, nil)
	suite.Equal(DefaultStreamCapacity, s.Cap(), "non-positive capacity MUST fall back to the default")
	s.Close()
}

func TestStreamTestSuite(t *testing.T) {
	suite.Run(t, new(StreamTestSuite))
}

// EventTestSuite covers rendering of events
type EventTestSuite struct {
	suite.Suite
}

func (suite *EventTestSuite) TestResult() {
	ok := Ok(100)
	suite.True(ok.IsOk())
	suite.Equal(100, ok.Get())
	suite.NoError(ok.Err())

	cause := errors.New("invalid data")
	failed := Fail[int](cause)
	suite.False(failed.IsOk())
	v, err := failed.Value()
	suite.Equal(0, v, "failure MUST NOT carry a value")
	suite.ErrorIs(err, cause)

	suite.Error(Fail[string](nil).Err(), "nil cause MUST still produce a failure")
}

func (suite *EventTestSuite) TestJSONKeepsFieldOrder() {
	// GOAL: Verify JSON lines have "kind" first and fields in declaration order
	//
	// TEST SCENARIO: Marshal several variants → compare exact JSON text
	tests := []struct {
		event    Event
		expected string
	}{
		{DeviceFound{Name: "HRM", Address: "AA:BB", RSSI: -60}, `{"kind":"device_found","name":"HRM","address":"AA:BB","rssi":-60}`},
		{ReadFailed{}, `{"kind":"read_failed"}`},
		{WriteFailed{Message: Ptr("characteristic write failed"), Code: Ptr(257)}, `{"kind":"write_failed","message":"characteristic write failed","code":257}`},
		{HeartRateRead{Result: Ok(72)}, `{"kind":"heart_rate_read","bpm":72}`},
		{BatteryLevelRead{Result: Fail[int](errors.New("invalid data"))}, `{"kind":"battery_level_read","error":"invalid data"}`},
		{MonitoringFailed{Cause: fmt.Errorf("monitoring timeout")}, `{"kind":"monitoring_failed","error":"monitoring timeout"}`},
		{
			DeviceInformationReceived{Result: Ok(DeviceInformation{
				ManufacturerName: "Acme", ModelNumber: "H1", SerialNumber: "42",
				HardwareRevision: "1", FirmwareRevision: "2", SoftwareRevision: "3",
			})},
			`{"kind":"device_information_received","manufacturer_name":"Acme","model_number":"H1","serial_number":"42","hardware_revision":"1","firmware_revision":"2","software_revision":"3"}`,
		},
	}

	for _, tt := range tests {
		suite.Run(tt.event.Kind(), func() {
			data, err := MarshalJSON(tt.event)
			suite.Require().NoError(err)
			suite.Equal(tt.expected, string(data))
		})
	}
}

func (suite *EventTestSuite) TestDescribe() {
	suite.Equal("read failed", Describe(ReadFailed{}))
	suite.Equal("read failed: characteristic read failed (status 257)",
		Describe(ReadFailed{Message: Ptr("characteristic read failed"), Code: Ptr(257)}))
	suite.Equal("sensor location: Chest", Describe(SensorLocationRead{Result: Ok("Chest")}))
	suite.Equal("heart rate: error: invalid data", Describe(HeartRateRead{Result: Fail[int](errors.New("invalid data"))}))
}

func TestEventTestSuite(t *testing.T) {
	suite.Run(t, new(EventTestSuite))
}
