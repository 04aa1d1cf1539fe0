package ehs

import (
	"strings"
	"testing"

	"github.com/lox/weatherfusion/internal/models"
)

func TestClassifyHeat(t *testing.T) {
	tests := []struct {
		highF        *float64
		wantCategory string
		wantWorkRest string
	}{
		{models.Float(130), "Extreme Danger", "10/20/10"},
		{models.Float(125), "Extreme Danger", "10/20/10"},
		{models.Float(105), "Danger", "20/30/10"},
		{models.Float(95), "Extreme Caution", "30/40/10"},
		{models.Float(85), "Caution", "Normal"},
		{models.Float(80), "Caution", "Normal"},
		{models.Float(79.9), "", "Normal"},
		{nil, "", "Normal"},
	}
	for _, tt := range tests {
		category, guidance := ClassifyHeat(tt.highF)
		if category != tt.wantCategory {
			t.Errorf("ClassifyHeat(%v) category = %q, want %q", tt.highF, category, tt.wantCategory)
		}
		if guidance.WorkRestMin != tt.wantWorkRest {
			t.Errorf("ClassifyHeat(%v) work/rest = %q, want %q", tt.highF, guidance.WorkRestMin, tt.wantWorkRest)
		}
	}
}

func TestClassifyHeatDefaultGuidance(t *testing.T) {
	_, guidance := ClassifyHeat(nil)
	want := models.HeatGuidance{
		ContinuousHeavyWorkMin:     "Normal",
		HydrationCupsPerMin:        "Baseline",
		WorkRestMin:                "Normal",
		SupervisorAssessmentsPerHr: "0",
		RadioCheckins:              "start",
	}
	if guidance != want {
		t.Errorf("default guidance = %+v", guidance)
	}
}

func TestClassifyFreeze(t *testing.T) {
	tests := []struct {
		lowF      *float64
		breezy    bool
		wantBadge string
		wantWind  bool
	}{
		{models.Float(27), true, "Hard Freeze", true},
		{models.Float(28), false, "Hard Freeze", false},
		{models.Float(30), true, "Freeze", true},
		{models.Float(32), false, "Freeze", false},
		{models.Float(34), true, "Frost", false}, // wind suffix only at or below 32
		{models.Float(36), false, "Frost", false},
		{models.Float(40), true, "", false},
		{nil, true, "", false},
	}
	for _, tt := range tests {
		badge, guidance := ClassifyFreeze(tt.lowF, tt.breezy)
		if badge != tt.wantBadge {
			t.Errorf("ClassifyFreeze(%v, %v) badge = %q, want %q", tt.lowF, tt.breezy, badge, tt.wantBadge)
		}
		if got := strings.Contains(guidance, "Wind-chill"); got != tt.wantWind {
			t.Errorf("ClassifyFreeze(%v, %v) wind suffix = %v, want %v (guidance %q)", tt.lowF, tt.breezy, got, tt.wantWind, guidance)
		}
		if tt.wantBadge == "" && guidance != "" {
			t.Errorf("ClassifyFreeze(%v, %v) guidance = %q, want empty", tt.lowF, tt.breezy, guidance)
		}
	}
}
