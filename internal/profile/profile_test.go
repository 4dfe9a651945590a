package profile

import (
	"testing"
)

func TestFor(t *testing.T) {
	tests := []struct {
		id   string
		want string
	}{
		{"photo", "photo"},
		{"current", "current"},
		{"humidity", "default"},
		{"", "default"},
	}
	for _, tt := range tests {
		got := For(tt.id)
		if got.Name != tt.want {
			t.Errorf("For(%q) = %q, want %q", tt.id, got.Name, tt.want)
		}
	}
}

func TestProfilesHaveValidRange(t *testing.T) {
	ids := []string{"unknown"}
	for _, p := range profiles {
		ids = append(ids, p.Name)
	}
	for _, id := range ids {
		p := For(id)
		if p.DisplayMin >= p.DisplayMax {
			t.Errorf("%s: DisplayMin %v >= DisplayMax %v", p.Name, p.DisplayMin, p.DisplayMax)
		}
		if p.TickSpacing <= 0 {
			t.Errorf("%s: TickSpacing %v", p.Name, p.TickSpacing)
		}
	}
}

func TestCurrentTransform(t *testing.T) {
	p := For("current")
	if got := p.Display(0.39); got != 390 {
		t.Errorf("Display(0.39) = %v, want 390", got)
	}
	if got := p.Display(0.4216); got != 422 {
		t.Errorf("Display(0.4216) = %v, want 422", got)
	}
	if p.UnitLabel() != "mA" {
		t.Errorf("UnitLabel = %q, want mA", p.UnitLabel())
	}
}

func TestRoundHalfUp(t *testing.T) {
	tests := []struct{ in, want float64 }{
		{377.5, 378},
		{377.4, 377},
		{-2.5, -2},
		{0, 0},
	}
	for _, tt := range tests {
		if got := RoundHalfUp(tt.in); got != tt.want {
			t.Errorf("RoundHalfUp(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
