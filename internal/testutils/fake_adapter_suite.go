package testutils

import (
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"
	"go.uber.org/goleak"
)

// FakeAdapterSuite provides a reusable test suite with a fake radio adapter.
//
// Basic usage (heart-rate peripheral profile):
//
//	type MonitorSuite struct {
//	    testutils.FakeAdapterSuite
//	}
//
//	func TestMonitorSuite(t *testing.T) {
//	    suite.Run(t, new(MonitorSuite))
//	}
//
// Custom profile usage:
//
//	func (s *MonitorSuite) SetupTest() {
//	    s.WithProfile().
//	        WithService("180D").
//	        WithCharacteristic("2A37", "read,notify", []byte{80})
//
//	    s.FakeAdapterSuite.SetupTest() // Call parent last to apply configuration
//	}
//
// Every test is checked for leaked goroutines.
type FakeAdapterSuite struct {
	suite.Suite

	Helper *TestHelper
	Logger *logrus.Logger

	ProfileBuilder *ProfileBuilder
	Adapter        *FakeAdapter

	// LeakOptions are added to the goroutine leak check, e.g. for runtime-owned goroutines.
	LeakOptions []goleak.Option

	leakOpt goleak.Option
}

// SetupSuite initializes shared helpers once
func (s *FakeAdapterSuite) SetupSuite() {
	s.Helper = NewTestHelper(s.T())
	s.Logger = s.Helper.Logger
}

// SetupTest builds the adapter from the configured profile, the heart-rate profile by default.
func (s *FakeAdapterSuite) SetupTest() {
	s.leakOpt = goleak.IgnoreCurrent()
	if s.ProfileBuilder == nil {
		s.ProfileBuilder = NewProfileBuilder().FromJSON(HeartRateProfileJSON)
	}
	s.Adapter = NewFakeAdapter(s.ProfileBuilder.Build())
}

// TearDownTest verifies no goroutines leaked and resets the profile
func (s *FakeAdapterSuite) TearDownTest() {
	goleak.VerifyNone(s.T(), append([]goleak.Option{s.leakOpt}, s.LeakOptions...)...)
	s.ProfileBuilder = nil
	s.Adapter = nil
}

// WithProfile returns the profile builder for fluent configuration
func (s *FakeAdapterSuite) WithProfile() *ProfileBuilder {
	if s.ProfileBuilder == nil {
		s.ProfileBuilder = NewProfileBuilder()
	}
	return s.ProfileBuilder
}
