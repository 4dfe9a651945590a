// Package telemetry is the client side of the hub's HTTP API: the sensor
// list, the latest reading per sensor and the per-sensor rolling history.
package telemetry

import "time"

// Sensor is one entry of /api/sensors.
type Sensor struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ReadingPoint is a single raw reading as published by the hub.
type ReadingPoint struct {
	Timestamp int64   `json:"t"` // epoch milliseconds
	RawValue  float64 `json:"v"`
}

// Time returns the reading timestamp as a local time.Time.
func (p ReadingPoint) Time() time.Time {
	return time.UnixMilli(p.Timestamp)
}

// LiveStatus is the per-poll online state of a sensor.
type LiveStatus struct {
	Online      bool
	LastReading *ReadingPoint
}

// StatusFrom derives a LiveStatus from a /api/live map. An absent key means
// the sensor is offline.
func StatusFrom(live map[string]ReadingPoint, id string) LiveStatus {
	p, ok := live[id]
	if !ok {
		return LiveStatus{}
	}
	return LiveStatus{Online: true, LastReading: &p}
}
