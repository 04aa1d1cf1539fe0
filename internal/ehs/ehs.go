// Package ehs maps daily temperature extremes to occupational heat and
// freeze guidance. The tables are fixed policy, not configuration.
package ehs

import "github.com/lox/weatherfusion/internal/models"

// LightningNote accompanies every ensemble day regardless of conditions.
const LightningNote = "Cease outdoor work when thunder is heard; resume 30 min after last lightning."

type heatBand struct {
	name       string
	thresholdF float64
	guidance   models.HeatGuidance
}

// Evaluated top down; the first threshold at or below the high wins.
var heatBands = []heatBand{
	{
		name:       "Extreme Danger",
		thresholdF: 125,
		guidance: models.HeatGuidance{
			ContinuousHeavyWorkMin:     "0",
			HydrationCupsPerMin:        "≥1/10",
			WorkRestMin:                "10/20/10",
			SupervisorAssessmentsPerHr: "4",
			RadioCheckins:              "q15m",
		},
	},
	{
		name:       "Danger",
		thresholdF: 100,
		guidance: models.HeatGuidance{
			ContinuousHeavyWorkMin:     "10",
			HydrationCupsPerMin:        "1/10–15",
			WorkRestMin:                "20/30/10",
			SupervisorAssessmentsPerHr: "2",
			RadioCheckins:              "q30m",
		},
	},
	{
		name:       "Extreme Caution",
		thresholdF: 90,
		guidance: models.HeatGuidance{
			ContinuousHeavyWorkMin:     "15",
			HydrationCupsPerMin:        "1/15–20",
			WorkRestMin:                "30/40/10",
			SupervisorAssessmentsPerHr: "1",
			RadioCheckins:              "start+q1h",
		},
	},
	{
		name:       "Caution",
		thresholdF: 80,
		guidance: models.HeatGuidance{
			ContinuousHeavyWorkMin:     "30",
			HydrationCupsPerMin:        "1/20",
			WorkRestMin:                "Normal",
			SupervisorAssessmentsPerHr: "0 (periodic)",
			RadioCheckins:              "start+q2h",
		},
	},
}

var defaultHeatGuidance = models.HeatGuidance{
	ContinuousHeavyWorkMin:     "Normal",
	HydrationCupsPerMin:        "Baseline",
	WorkRestMin:                "Normal",
	SupervisorAssessmentsPerHr: "0",
	RadioCheckins:              "start",
}

// ClassifyHeat returns the heat band for a daily high plus its guidance
// table. A nil or sub-80 high returns an empty category with the default
// guidance.
func ClassifyHeat(highF *float64) (string, models.HeatGuidance) {
	if highF == nil {
		return "", defaultHeatGuidance
	}
	for _, band := range heatBands {
		if *highF >= band.thresholdF {
			return band.name, band.guidance
		}
	}
	return "", defaultHeatGuidance
}

var freezeGuidance = map[string]string{
	"Frost":       "Cover exposed sensors; monitor slick surfaces; plan extra footing checks.",
	"Freeze":      "Limit time on elevated surfaces; stage warm shelters; confirm cold-weather PPE/buddy checks.",
	"Hard Freeze": "Pause non-essential outdoor handling; enforce short outdoor rotations; keep warming shelter within reach.",
}

const windChillSuffix = " Wind-chill risk: add face/hand protection."

// ClassifyFreeze returns the freeze badge and guidance for a daily low. The
// wind flag extends the guidance below freezing.
func ClassifyFreeze(lowF *float64, breezy bool) (string, string) {
	if lowF == nil {
		return "", ""
	}
	var badge string
	switch {
	case *lowF <= 28:
		badge = "Hard Freeze"
	case *lowF <= 32:
		badge = "Freeze"
	case *lowF <= 36:
		badge = "Frost"
	default:
		return "", ""
	}
	guidance := freezeGuidance[badge]
	if breezy && *lowF <= 32 {
		guidance += windChillSuffix
	}
	return badge, guidance
}
