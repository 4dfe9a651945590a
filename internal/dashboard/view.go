package dashboard

import (
	"strconv"

	"github.com/luki/sensordash/internal/chart"
	"github.com/luki/sensordash/internal/health"
	"github.com/luki/sensordash/internal/profile"
	"github.com/luki/sensordash/internal/telemetry"
	"github.com/luki/sensordash/internal/threshold"
)

// RecentCount is the length of the per-card readings list.
const RecentCount = 10

const clockLayout = "15:04:05"

// CardViewState is everything a card shows. It is derived from the card's
// inputs on demand and never stored.
type CardViewState struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Unit          string         `json:"unit"`
	Online        bool           `json:"online"`
	StatusText    string         `json:"status"`
	Verdict       health.Verdict `json:"-"`
	VerdictText   string         `json:"verdict"`
	BannerVisible bool           `json:"banner_visible"`
	BannerText    string         `json:"banner,omitempty"`
	HasValue      bool           `json:"has_value"`
	Value         float64        `json:"value"`
	ValueText     string         `json:"value_text"`
	UpdatedText   string         `json:"updated"`
	BaselineText  string         `json:"baseline"`
	DropText      string         `json:"drop_pct"`
	Threshold     float64        `json:"threshold"`
	ThresholdText string         `json:"threshold_text"`
	Recent        []string       `json:"recent"`
}

// ViewInputs are the sources a CardViewState is built from.
type ViewInputs struct {
	ID        string
	Name      string
	Profile   profile.Profile
	Threshold threshold.State
	Live      telemetry.LiveStatus
	History   []telemetry.ReadingPoint
	Polled    bool // false until the first cycle that reached this card
}

// Project builds the view of one card.
func Project(in ViewInputs) CardViewState {
	p := in.Profile
	st := in.Threshold
	v := CardViewState{
		ID:            in.ID,
		Name:          in.Name,
		Unit:          p.UnitLabel(),
		Online:        in.Live.Online,
		StatusText:    "offline",
		ValueText:     "–",
		UpdatedText:   "never",
		DropText:      formatNumber(st.DropPercent),
		Threshold:     st.Threshold,
		ThresholdText: formatNumber(st.Threshold),
	}
	if v.Name == "" {
		v.Name = in.ID
	}
	if st.HasBaseline {
		v.BaselineText = formatNumber(st.Baseline)
	}
	if in.Live.Online {
		v.StatusText = "online"
	}

	if r := in.Live.LastReading; r != nil {
		v.HasValue = true
		v.Value = p.Display(r.RawValue)
		v.ValueText = chart.FormatValue(v.Value) + p.Unit
		v.UpdatedText = "Updated " + r.Time().Format(clockLayout)
	}

	res := health.Classify(in.Live.Online && v.HasValue, v.Value, st.Threshold)
	v.Verdict = res.Verdict
	v.VerdictText = res.Verdict.String()
	if !in.Polled {
		v.VerdictText = "Loading…"
	}
	v.BannerVisible = res.BannerVisible
	if res.BannerVisible {
		v.BannerText = health.BannerText
	}

	n := len(in.History)
	for i := n - 1; i >= 0 && i >= n-RecentCount; i-- {
		pt := in.History[i]
		v.Recent = append(v.Recent, pt.Time().Format(clockLayout)+": "+chart.FormatValue(p.Display(pt.RawValue))+p.Unit)
	}

	return v
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
