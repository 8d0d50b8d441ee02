// Package heartrate specializes the generic monitor for heart rate sensors: it
// interprets Heart Rate Measurement, Body Sensor Location and Battery Level values
// and exposes the heart rate commands on top of the monitor's event stream.
package heartrate
