// Package ensemble blends per-source daily records into one best-estimate
// record per (site, day).
package ensemble

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/lox/weatherfusion/internal/ehs"
	"github.com/lox/weatherfusion/internal/models"
)

// Plausibility windows for daily extremes in °F. Values outside are treated
// as absent rather than poisoning the mean.
var (
	highLimits = [2]float64{-40, 130}
	lowLimits  = [2]float64{-60, 95}
)

// precipPriority orders labels from most to least hazardous; the reducer
// returns the highest-priority label any source reported.
var precipPriority = []string{
	"Freezing Rain",
	"Ice Pellets",
	"Snow",
	"Sleet",
	"Rain",
	"Showers",
	"Drizzle",
	"Thunderstorms",
}

var windTokens = []string{"breezy", "wind", "gust"}

func round1(v float64) float64 { return math.Round(v*10) / 10 }

func sanitize(value *float64, limits [2]float64) *float64 {
	if value == nil || *value < limits[0] || *value > limits[1] {
		return nil
	}
	return value
}

func meanOf(values []*float64) *float64 {
	var sum float64
	var n int
	for _, v := range values {
		if v == nil {
			continue
		}
		sum += *v
		n++
	}
	if n == 0 {
		return nil
	}
	return models.Float(round1(sum / float64(n)))
}

func maxOf(values []*float64) *float64 {
	var best *float64
	for _, v := range values {
		if v == nil {
			continue
		}
		if best == nil || *v > *best {
			best = v
		}
	}
	if best == nil {
		return nil
	}
	return models.Float(*best)
}

func maxPop(values []*float64) *float64 {
	best := maxOf(values)
	if best == nil {
		return nil
	}
	return models.Float(round1(*best))
}

// dominantPrecip picks the highest-priority label present; when none of the
// priority labels appears, the most frequent label wins with ties broken by
// first occurrence.
func dominantPrecip(types []string) string {
	counts := make(map[string]int)
	var order []string
	for _, t := range types {
		if t == "" {
			continue
		}
		if counts[t] == 0 {
			order = append(order, t)
		}
		counts[t]++
	}
	if len(order) == 0 {
		return ""
	}
	for _, label := range precipPriority {
		if counts[label] > 0 {
			return label
		}
	}
	best := order[0]
	for _, label := range order[1:] {
		if counts[label] > counts[best] {
			best = label
		}
	}
	return best
}

func containsWindToken(s string) bool {
	if s == "" {
		return false
	}
	lowered := strings.ToLower(s)
	for _, token := range windTokens {
		if strings.Contains(lowered, token) {
			return true
		}
	}
	return false
}

func joinUnique(fragments []string, sep string) string {
	var unique []string
	seen := make(map[string]bool)
	for _, f := range fragments {
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		unique = append(unique, f)
	}
	return strings.Join(unique, sep)
}

// BuildSiteEnsembles reduces one site's source records to at most days
// blended records in ascending date order. Days where every temperature was
// missing or implausible are skipped.
func BuildSiteEnsembles(siteName string, records []models.SourceDailyRecord, days int) []models.DailyEnsemble {
	grouped := make(map[time.Time][]models.SourceDailyRecord)
	var dates []time.Time
	for _, rec := range records {
		if _, ok := grouped[rec.Date]; !ok {
			dates = append(dates, rec.Date)
		}
		grouped[rec.Date] = append(grouped[rec.Date], rec)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	var output []models.DailyEnsemble
	for _, day := range dates {
		if len(output) >= days {
			break
		}
		bucket := grouped[day]

		var highs, lows, pops, qpfs, snows, ices []*float64
		var types, notes []string
		breezy := false
		for _, rec := range bucket {
			highs = append(highs, sanitize(rec.HighF, highLimits))
			lows = append(lows, sanitize(rec.LowF, lowLimits))
			pops = append(pops, rec.PopPct)
			qpfs = append(qpfs, rec.QPFInches)
			snows = append(snows, rec.SnowInches)
			ices = append(ices, rec.IceInches)
			types = append(types, rec.PrecipType)
			notes = append(notes, rec.PrecipNotes)
			if containsWindToken(rec.WindPhrase) || containsWindToken(rec.Notes) {
				breezy = true
			}
		}

		high := meanOf(highs)
		low := meanOf(lows)
		// A low above the high means at least one source disagrees about
		// which window it measured; drop the low rather than publish an
		// inverted pair.
		if high != nil && low != nil && *low > *high {
			low = nil
		}
		if high == nil && low == nil {
			continue
		}

		heatCategory, heatGuidance := ehs.ClassifyHeat(high)
		freezeBadge, freezeGuidance := ehs.ClassifyFreeze(low, breezy)

		sourceSet := make(map[string]bool)
		for _, rec := range bucket {
			sourceSet[rec.Source] = true
		}
		sources := make([]string, 0, len(sourceSet))
		for s := range sourceSet {
			sources = append(sources, s)
		}
		sort.Strings(sources)

		label := bucket[0].Label
		if label == "" {
			label = models.DayLabel(day)
		}

		output = append(output, models.DailyEnsemble{
			SiteName:        siteName,
			Date:            day,
			Label:           label,
			HighF:           high,
			LowF:            low,
			PopPct:          maxPop(pops),
			QPFInches:       maxOf(qpfs),
			SnowInches:      maxOf(snows),
			IceInches:       maxOf(ices),
			PrecipType:      dominantPrecip(types),
			PrecipNotes:     joinUnique(notes, " | "),
			HeatCategory:    heatCategory,
			HeatGuidance:    heatGuidance,
			FreezeRiskBadge: freezeBadge,
			FreezeGuidance:  freezeGuidance,
			Sources:         sources,
			SourcesCount:    len(sources),
			LowConfidence:   len(sources) < 2,
			LightningNote:   ehs.LightningNote,
		})
	}
	return output
}
