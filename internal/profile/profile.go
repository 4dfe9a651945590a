// Package profile holds the static per-sensor display configuration: how a
// raw reading is converted to display units, the fixed chart axis range,
// gridline spacing and the default threshold.
package profile

import (
	"math"
	"strings"
)

// Profile is the immutable display configuration for one sensor id.
type Profile struct {
	Name             string
	Unit             string                // suffix appended to display values, e.g. " mA"
	Transform        func(float64) float64 // raw -> display
	DisplayMin       float64
	DisplayMax       float64
	TickSpacing      float64
	DefaultThreshold float64
}

// Display converts a raw reading to display units.
func (p Profile) Display(raw float64) float64 {
	if p.Transform == nil {
		return raw
	}
	return p.Transform(raw)
}

// UnitLabel returns the unit without surrounding whitespace.
func (p Profile) UnitLabel() string {
	return strings.TrimSpace(p.Unit)
}

// RoundHalfUp rounds x to the nearest integer, ties toward +Inf.
func RoundHalfUp(x float64) float64 {
	return math.Floor(x + 0.5)
}

// Default is used for any sensor id without an explicit profile.
var Default = Profile{
	Name:             "default",
	Unit:             "",
	Transform:        func(v float64) float64 { return v },
	DisplayMin:       0,
	DisplayMax:       4096,
	TickSpacing:      1000,
	DefaultThreshold: 800,
}

// profiles maps sensor ids (the "sensor/<id>" topic suffix) to profiles.
var profiles = []Profile{
	{
		Name:             "photo",
		Unit:             "", // raw ADC counts
		Transform:        RoundHalfUp,
		DisplayMin:       0,
		DisplayMax:       4096,
		TickSpacing:      1000,
		DefaultThreshold: 800,
	},
	{
		Name:             "current",
		Unit:             " mA",
		Transform:        func(v float64) float64 { return RoundHalfUp(v * 1000) }, // A -> mA
		DisplayMin:       300,
		DisplayMax:       500,
		TickSpacing:      25,
		DefaultThreshold: 400,
	},
}

// For returns the profile registered for a sensor id, or Default.
func For(id string) Profile {
	for _, p := range profiles {
		if p.Name == id {
			return p
		}
	}
	return Default
}
