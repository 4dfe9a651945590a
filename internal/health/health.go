// Package health turns a display value and threshold into the verdict shown
// on a sensor card.
package health

// Verdict is the health state of a sensor.
type Verdict int

const (
	Offline Verdict = iota
	OK
	NotOK
)

// BannerText is shown while a sensor is below its threshold.
const BannerText = "⚠ Threshold reached!"

// String returns the card text for the verdict.
func (v Verdict) String() string {
	switch v {
	case OK:
		return "Sensor OK"
	case NotOK:
		return "SENSOR NOT OK"
	default:
		return "OFFLINE"
	}
}

// Result is the outcome of one classification.
type Result struct {
	Verdict       Verdict
	BannerVisible bool
}

// Classify computes the verdict for a single reading. The value equal to the
// threshold is still OK. There is no memory of previous verdicts.
func Classify(online bool, displayValue, threshold float64) Result {
	switch {
	case !online:
		return Result{Verdict: Offline}
	case displayValue >= threshold:
		return Result{Verdict: OK}
	default:
		return Result{Verdict: NotOK, BannerVisible: true}
	}
}
